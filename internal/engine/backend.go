package engine

// Backend is the tensor-compute capability the engine depends on: three
// pure, deterministic batched operations over per-sample pointer arrays.
// Any backend satisfying this contract (an ONNX Runtime session, a custom
// kernel set, or — for tests — the reference backend) is usable; loading
// weights and running kernels is an external collaborator, not part of
// this package.
type Backend interface {
	// Encode runs the acoustic encoder for a batch. inputs[i] holds one
	// session's segment_size*mel_features input; hStates[i]/cStates[i]
	// hold that session's recurrent state, updated in place; outputs[i]
	// receives the encoder output for that session.
	Encode(inputs, hStates, cStates, outputs [][]float32) error

	// Decode runs the stateless prediction network for a batch. tokenCtx[i]
	// holds one session's 2-token context; outputs[i] receives that
	// session's decoder output.
	Decode(tokenCtx [][2]int32, outputs [][]float32) error

	// Join runs the joiner for a batch, combining encoder and decoder
	// outputs into per-session token logits.
	Join(encOut, decOut, logits [][]float32) error
}
