package engine

import (
	"github.com/aprilasr/april/internal/aprilerr"
	"github.com/aprilasr/april/internal/dsp"
	"github.com/aprilasr/april/internal/ring"
)

// Mode selects a Session's concurrency model. The three values are
// mutually exclusive; Sync is the default (zero value).
type Mode int

const (
	// ModeSync runs the Filterbank and collect loop inline on the caller's
	// goroutine during feed_pcm16/flush. No AudioRing, no ProcThread use.
	ModeSync Mode = iota
	// ModeAsyncRealtime pushes audio into the AudioRing and lets the
	// Model's shared ProcThread drain it. No speed compression is applied:
	// like ModeAsyncNoRealtime, an AudioRing overflow drops the chunk and
	// surfaces CantKeepUp.
	ModeAsyncRealtime
	// ModeAsyncNoRealtime is the asynchronous mode without speed
	// compression: under load it surfaces CantKeepUp instead.
	ModeAsyncNoRealtime
)

// Config configures a new Session.
type Config struct {
	SpeakerID string // reserved, unimplemented: not persisted across restarts
	Handler   Handler
	Mode      Mode
}

// segsize is the maximum number of int16 samples processed per feed_pcm16
// chunk, matching the engine this was ported from.
const segsize = 3200

// Session carries one audio stream's recurrent state, token context,
// active-hypothesis buffer, and time accounting.
type Session struct {
	model  *Model
	config Config

	fbank   *dsp.Filterbank
	tensors *tensorSlots

	activeTokens      []Token
	activeTokenHead   int
	lastHandlerHead   int
	lastHandlerLastID int32 // stand-in for the source's pointer-equality check; see DESIGN.md

	currentTimeMS      uint64
	lastEmissionTimeMS uint64
	emittedSilence     bool
	wasFlushed         bool

	audioRing *ring.Ring

	earlyEmitSchedule []float32
}

// NewSession validates cfg and attaches a new Session to m.
func NewSession(m *Model, cfg Config) (*Session, error) {
	if cfg.Handler == nil {
		return nil, aprilerr.New(aprilerr.KindConfig, "NewSession", errMissingHandler)
	}
	fbank, err := dsp.NewFilterbank(m.fbankOpts)
	if err != nil {
		return nil, aprilerr.New(aprilerr.KindConfig, "NewSession", err)
	}

	s := &Session{
		model:              m,
		config:             cfg,
		fbank:              fbank,
		tensors:            newTensorSlots(m.params),
		activeTokens:       make([]Token, 0, MaxActiveTokens),
		lastHandlerLastID:  m.params.BlankID,
		lastEmissionTimeMS: 0,
		earlyEmitSchedule:  []float32{2.0, 1.0, 0.0},
	}
	s.tensors.tokenCtx = [2]int32{m.params.BlankID, m.params.BlankID}

	if cfg.Mode != ModeSync {
		s.audioRing = ring.New()
		m.ensureProc()
	}

	m.register(s)
	return s, nil
}

// Free detaches the Session from its Model. The ProcThread, if any,
// finishes its current drain of this Session before this call observes
// the registry mutation (guaranteed by the Model's registry lock).
func (s *Session) Free() {
	s.model.unregister(s)
}

// FeedPCM16 processes up to segsize shorts per internal chunk. In
// synchronous mode it runs the Filterbank and collect loop inline; in
// asynchronous mode it pushes into the AudioRing and raises AUDIO on the
// shared ProcThread, never blocking the caller.
func (s *Session) FeedPCM16(shorts []int16) {
	if len(shorts) == 0 {
		return
	}
	s.wasFlushed = false

	if s.config.Mode != ModeSync {
		s.feedAsync(shorts)
		return
	}

	for off := 0; off < len(shorts); off += segsize {
		end := off + segsize
		if end > len(shorts) {
			end = len(shorts)
		}
		s.feedChunkSync(shorts[off:end])
	}
}

func (s *Session) feedChunkSync(shorts []int16) {
	s.pushToFilterbank(shorts)
	runCollectLoop(s.model.backend, []*Session{s})
}

// feedAsync pushes the entire chunk in one Push call so the ring's
// non-blocking, non-partial-write contract applies to the whole caller
// chunk at once, matching the source's atomic ap_push_audio rather than
// silently enqueuing part of an oversized call before reporting overflow.
func (s *Session) feedAsync(shorts []int16) {
	if !s.audioRing.Push(shorts) {
		s.model.logger.Warn("audio ring overflow, dropping chunk", "samples", len(shorts))
		s.config.Handler(KindCantKeepUp, nil)
	}
	s.model.raiseAudio()
}

func (s *Session) pushToFilterbank(shorts []int16) {
	floats := make([]float64, len(shorts))
	for i, v := range shorts {
		floats[i] = float64(v) / 32768.0
	}
	s.fbank.AcceptWaveform(floats)
}

// drainRing moves whatever is queued in the AudioRing into the
// Filterbank. Called only from the shared ProcThread callback.
func (s *Session) drainRing() {
	for {
		chunk := s.audioRing.Pull(segsize)
		if len(chunk) == 0 {
			return
		}
		s.pushToFilterbank(chunk)
		s.audioRing.Finish(len(chunk))
	}
}

// Flush is idempotent: running it twice with no intervening FeedPCM16
// produces the callbacks of exactly one flush.
func (s *Session) Flush() {
	if s.config.Mode != ModeSync {
		s.model.raiseFlush()
		return
	}
	s.flushSync()
}

func (s *Session) flushSync() {
	for s.fbank.Flush() {
		runCollectLoop(s.model.backend, []*Session{s})
	}
	s.finalizeOnce()
}

// finalizeOnce runs the flush-time finalize (finalize tokens, clear
// context, emit silence) exactly once per was_flushed cycle: a second
// Flush with no intervening FeedPCM16 is a no-op. FeedPCM16 clears the
// flag on the next real audio, matching the source's was_flushed guard.
func (s *Session) finalizeOnce() {
	if s.wasFlushed {
		return
	}
	s.finalizeAndClear(true)
	s.wasFlushed = true
}

// RealtimeSpeedup reports the Filterbank's advisory speed factor. Nothing in
// the engine calls SetSpeed or measures processing speed, so it is 1.0.
func (s *Session) RealtimeSpeedup() float32 {
	return float32(s.fbank.GetSpeed())
}
