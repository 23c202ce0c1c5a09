package engine

// tensorSlots holds one session's scratch buffers for the encoder,
// decoder and joiner, plus the freshness bookkeeping the scheduler uses to
// decide which stages still have work.
type tensorSlots struct {
	encInp   []float32 // segment_size * mel_features
	hState   []float32 // num_layers * h_dim
	cState   []float32 // num_layers * c_dim
	encOut   []float32 // joiner_dim
	decOut   []float32 // joiner_dim
	logits   []float32 // token_count
	tokenCtx [2]int32

	encOutRefreshed  bool
	decOutRefreshed  bool
	requiresDecoding bool
}

func newTensorSlots(p *Params) *tensorSlots {
	return &tensorSlots{
		encInp: make([]float32, p.SegmentSize*p.MelFeatures),
		hState: make([]float32, p.LayerCount*p.HiddenDim),
		cState: make([]float32, p.LayerCount*p.HiddenDim),
		encOut: make([]float32, p.JoinerDim),
		decOut: make([]float32, p.JoinerDim),
		logits: make([]float32, p.TokenCount),
	}
}
