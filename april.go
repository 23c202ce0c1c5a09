// Package april is a streaming automatic speech recognition runtime
// implementing an RNN-Transducer architecture: a recurrent acoustic
// encoder, a stateless prediction network, and a joiner, driven by a
// cross-session batching scheduler and a greedy decoding loop with
// early-emission, repetition suppression, and silence detection.
//
// The package exposes opaque Model and Session handles; the concurrency,
// batching, and emission-policy machinery lives in internal packages.
package april

import (
	"os"

	"github.com/aprilasr/april/internal/engine"
	"github.com/aprilasr/april/internal/modelfile"
	"github.com/charmbracelet/log"
)

// Init performs process-wide one-time initialisation and asserts the
// caller was compiled against this build's API version.
func Init(apiVersion int) error {
	return engine.Init(apiVersion)
}

// APIVersion is the version Init expects callers to pass.
const APIVersion = engine.APIVersion

// Backend is the tensor-compute capability a Model needs: the encoder,
// decoder and joiner as three pure, deterministic batched operations.
// Production backends (an ONNX Runtime session, a custom kernel set)
// implement this; internal/backend/reference provides a deterministic
// stand-in for tests and example tooling.
type Backend = engine.Backend

// Model is an opaque handle to loaded weights, its parameters, and the
// table of Sessions attached to it.
type Model struct {
	m *engine.Model
}

// CreateModel loads a GGUF model file from path and pairs it with a
// Backend, returning nil on any load failure (the error is also
// returned for callers that want detail; language-neutral callers of the
// public operation described in the design only see the nil). A load
// failure is logged at warning level per the ModelLoadError taxonomy.
func CreateModel(path string, backend Backend, logger *log.Logger) (*Model, error) {
	params, _, err := modelfile.LoadGGUF(path)
	if err != nil {
		if logger == nil {
			logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "april"})
		}
		logger.Warn("model load failed", "path", path, "err", err)
		return nil, err
	}
	return &Model{m: engine.NewModel(params, backend, logger)}, nil
}

// NewModelFromParams builds a Model directly from already-loaded Params,
// bypassing file parsing. Used by CLIs and tests that construct Params
// programmatically.
func NewModelFromParams(params *engine.Params, backend Backend, logger *log.Logger) *Model {
	return &Model{m: engine.NewModel(params, backend, logger)}
}

func (m *Model) Name() string        { return m.m.Name() }
func (m *Model) Description() string { return m.m.Description() }
func (m *Model) Language() string    { return m.m.Language() }
func (m *Model) SampleRate() int     { return m.m.SampleRate() }

// Free releases the Model. Its precondition is that no live Session still
// references it.
func (m *Model) Free() error { return m.m.Free() }

// Flag selects a Session's concurrency mode; the three non-zero-adjacent
// values are mutually exclusive.
type Flag = engine.Mode

const (
	// FlagZero requests a synchronous Session (the default).
	FlagZero = engine.ModeSync
	// FlagAsyncRT requests an asynchronous real-time Session. No speed
	// compression is applied; overload is handled as with FlagAsyncNoRT.
	FlagAsyncRT = engine.ModeAsyncRealtime
	// FlagAsyncNoRT requests an asynchronous Session without speedup.
	FlagAsyncNoRT = engine.ModeAsyncNoRealtime
)

// ResultKind is the closed set of callback result kinds.
type ResultKind = engine.ResultKind

const (
	PartialRecognition = engine.KindPartialRecognition
	FinalRecognition   = engine.KindFinalRecognition
	Silence            = engine.KindSilence
	CantKeepUp         = engine.KindCantKeepUp
)

// TokenFlag is a bitset on a Token.
type TokenFlag = engine.TokenFlag

const (
	WordBoundaryBit = engine.FlagWordBoundary
	SentenceEndBit  = engine.FlagSentenceEnd
)

// Token is one emitted (or tentatively emitted) recognition unit.
type Token = engine.Token

// Handler is the user callback sink; tokens is borrowed for the call's
// duration only.
type Handler = engine.Handler

// Config configures a new Session.
type Config struct {
	SpeakerID string
	Handler   Handler
	Flags     Flag
}

// Session is an opaque handle to one audio stream's recognition state.
type Session struct {
	s *engine.Session
}

// CreateSession attaches a new Session to m. It returns an error
// (ConfigError) if cfg is missing a handler.
func CreateSession(m *Model, cfg Config) (*Session, error) {
	s, err := engine.NewSession(m.m, engine.Config{
		SpeakerID: cfg.SpeakerID,
		Handler:   cfg.Handler,
		Mode:      cfg.Flags,
	})
	if err != nil {
		return nil, err
	}
	return &Session{s: s}, nil
}

// FeedPCM16 feeds mono int16 PCM samples at the model's declared sample
// rate.
func (s *Session) FeedPCM16(shorts []int16) { s.s.FeedPCM16(shorts) }

// Flush forces final results for any pending partial recognition.
func (s *Session) Flush() { s.s.Flush() }

// RealtimeGetSpeedup reports the real-time compression factor. The engine
// never changes it, so it is always 1.0.
func (s *Session) RealtimeGetSpeedup() float32 { return s.s.RealtimeSpeedup() }

// Free detaches the Session from its Model.
func (s *Session) Free() { s.s.Free() }
