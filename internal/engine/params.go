package engine

// Params is the immutable set of parameters read from a model file: tensor
// shapes, audio front-end configuration, and vocabulary sizing. Nothing in
// the engine mutates a Params after model load.
type Params struct {
	BatchSize     int
	SegmentSize   int // frames per encoder input, e.g. 9
	SegmentStep   int // frames advanced per pull, e.g. 4
	MelFeatures   int
	SampleRate    int
	FrameShiftMs  float64
	FrameLengthMs float64
	RoundPow2     bool
	MelLow        float64
	MelHigh       float64
	SnipEdges     bool

	TokenCount int
	BlankID    int32
	Vocabulary []string // indexable by token id, length TokenCount

	LayerCount int
	HiddenDim  int
	JoinerDim  int

	Name        string
	Description string
	Language    string
}
