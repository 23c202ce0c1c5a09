package engine

import "github.com/aprilasr/april/internal/aprilerr"

// maxDecodeJoinPerEncode bounds how many decode/join iterations the
// collect loop runs per encoder invocation, preventing a pathological
// string of confident non-blank emissions from one acoustic frame from
// blowing up per-segment work.
const maxDecodeJoinPerEncode = 4

// runCollectLoop batches ready sessions through encode -> (decode? ->
// join)* until no session has further work. It is the single
// synchronisation point between sessions sharing a Model: every
// participating session's effects (tensor state, emitted tokens) are
// published before the next round begins.
//
// Ordering guarantee: for a single session, every encoder run is followed
// by zero or more decode/join rounds and all emissions for that segment,
// strictly before the next encoder run for that same session.
func runCollectLoop(backend Backend, sessions []*Session) {
	if len(sessions) == 0 {
		return
	}

	for {
		encoded := batchEncode(backend, sessions)

		joinRounds := 0
		joined := false
		for joinRounds < maxDecodeJoinPerEncode {
			decodeProgress := batchDecode(backend, sessions)
			joinProgress := batchJoin(backend, sessions, joinRounds)
			if joinProgress {
				joined = true
			}
			if !decodeProgress && !joinProgress {
				break
			}
			joinRounds++
		}

		if !encoded && !joined {
			return
		}
	}
}

func batchEncode(backend Backend, sessions []*Session) bool {
	var batchSessions []*Session
	for _, s := range sessions {
		segBuf := segmentBuf(s.model.params)
		if s.fbank.PullSegments(segBuf) {
			flattenSegment(segBuf, s.tensors.encInp)
			s.currentTimeMS += uint64(s.fbank.LastStrideMS())
			batchSessions = append(batchSessions, s)
		}
	}
	if len(batchSessions) == 0 {
		return false
	}

	inputs := make([][]float32, len(batchSessions))
	hStates := make([][]float32, len(batchSessions))
	cStates := make([][]float32, len(batchSessions))
	outputs := make([][]float32, len(batchSessions))
	for i, s := range batchSessions {
		inputs[i] = s.tensors.encInp
		hStates[i] = s.tensors.hState
		cStates[i] = s.tensors.cState
		outputs[i] = s.tensors.encOut
	}

	if err := backend.Encode(inputs, hStates, cStates, outputs); err != nil {
		panic(aprilerr.New(aprilerr.KindBackend, "encode", err))
	}
	for _, s := range batchSessions {
		s.tensors.encOutRefreshed = true
	}
	return true
}

func batchDecode(backend Backend, sessions []*Session) bool {
	var batchSessions []*Session
	for _, s := range sessions {
		if s.tensors.requiresDecoding {
			batchSessions = append(batchSessions, s)
		}
	}
	if len(batchSessions) == 0 {
		return false
	}

	tokenCtx := make([][2]int32, len(batchSessions))
	outputs := make([][]float32, len(batchSessions))
	for i, s := range batchSessions {
		tokenCtx[i] = s.tensors.tokenCtx
		outputs[i] = s.tensors.decOut
	}

	if err := backend.Decode(tokenCtx, outputs); err != nil {
		panic(aprilerr.New(aprilerr.KindBackend, "decode", err))
	}
	for _, s := range batchSessions {
		s.tensors.requiresDecoding = false
		s.tensors.decOutRefreshed = true
	}
	return true
}

func batchJoin(backend Backend, sessions []*Session, iteration int) bool {
	var batchSessions []*Session
	for _, s := range sessions {
		if s.tensors.encOutRefreshed || s.tensors.decOutRefreshed {
			batchSessions = append(batchSessions, s)
		}
	}
	if len(batchSessions) == 0 {
		return false
	}

	encOut := make([][]float32, len(batchSessions))
	decOut := make([][]float32, len(batchSessions))
	logits := make([][]float32, len(batchSessions))
	for i, s := range batchSessions {
		encOut[i] = s.tensors.encOut
		decOut[i] = s.tensors.decOut
		logits[i] = s.tensors.logits
	}

	if err := backend.Join(encOut, decOut, logits); err != nil {
		panic(aprilerr.New(aprilerr.KindBackend, "join", err))
	}
	for _, s := range batchSessions {
		s.tensors.encOutRefreshed = false
		s.tensors.decOutRefreshed = false
	}

	earlyEmit := earlyEmitBias(s0(batchSessions), iteration)
	for _, s := range batchSessions {
		s.onLogits(earlyEmit)
	}
	return true
}

// s0 exists only to keep earlyEmitBias's signature symmetric across
// sessions that may carry per-session schedules; all sessions currently
// share the default schedule, so any session in the batch is
// representative.
func s0(sessions []*Session) *Session {
	if len(sessions) == 0 {
		return nil
	}
	return sessions[0]
}

func earlyEmitBias(s *Session, iteration int) float32 {
	if s == nil {
		return 0
	}
	if iteration >= len(s.earlyEmitSchedule) {
		return 0
	}
	return s.earlyEmitSchedule[iteration]
}

func segmentBuf(p *Params) [][]float32 {
	out := make([][]float32, p.SegmentSize)
	for i := range out {
		out[i] = make([]float32, p.MelFeatures)
	}
	return out
}

func flattenSegment(seg [][]float32, dst []float32) {
	row := 0
	for _, r := range seg {
		row += copy(dst[row:], r)
	}
}
