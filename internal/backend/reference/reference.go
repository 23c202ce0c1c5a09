// Package reference implements a deterministic, pure-Go stand-in for the
// tensor-compute backend, used by tests and by example CLIs that want to
// exercise the engine without a real model. Per the engine's design notes,
// any batched runtime that accepts per-sample pointer arrays and is
// deterministic per call satisfies the backend contract; this one just
// hashes its inputs instead of running real kernels.
package reference

import (
	"errors"
	"math"
)

// Backend is a deterministic fake: encode/decode/join are simple,
// reproducible functions of their inputs, not real network evaluation.
// It exists to make the engine's scheduler, emission policy, and
// concurrency contract testable without a real model file or tensor
// runtime.
type Backend struct {
	TokenCount int
	BlankID    int32
	JoinerDim  int
}

// New returns a Backend sized for the given vocabulary and joiner width.
func New(tokenCount int, blankID int32, joinerDim int) *Backend {
	return &Backend{TokenCount: tokenCount, BlankID: blankID, JoinerDim: joinerDim}
}

func (b *Backend) Encode(inputs, hStates, cStates, outputs [][]float32) error {
	if len(inputs) != len(outputs) {
		return errors.New("reference: encode batch size mismatch")
	}
	for i, in := range inputs {
		out := outputs[i]
		for j := range out {
			var acc float32
			for _, v := range in {
				acc += v
			}
			out[j] = float32(math.Sin(float64(acc) + float64(j)))
			hStates[i][j%len(hStates[i])] += out[j] * 0.01
			cStates[i][j%len(cStates[i])] += out[j] * 0.01
		}
	}
	return nil
}

func (b *Backend) Decode(tokenCtx [][2]int32, outputs [][]float32) error {
	if len(tokenCtx) != len(outputs) {
		return errors.New("reference: decode batch size mismatch")
	}
	for i, ctx := range tokenCtx {
		out := outputs[i]
		seed := float64(ctx[0]*31 + ctx[1])
		for j := range out {
			out[j] = float32(math.Cos(seed + float64(j)))
		}
	}
	return nil
}

func (b *Backend) Join(encOut, decOut, logits [][]float32) error {
	if len(encOut) != len(logits) || len(decOut) != len(logits) {
		return errors.New("reference: join batch size mismatch")
	}
	for i := range logits {
		out := logits[i]
		for t := 0; t < b.TokenCount; t++ {
			var acc float32
			for j := 0; j < b.JoinerDim && j < len(encOut[i]) && j < len(decOut[i]); j++ {
				acc += encOut[i][j]*0.5 + decOut[i][j]*0.5
			}
			out[t] = acc - float32(t)*0.001
		}
		// Bias the blank logit upward so silence/steady-state input
		// predominantly yields blank, matching a well-trained model's
		// behaviour on quiet audio without needing real weights.
		out[b.BlankID] += 2.0
	}
	return nil
}
