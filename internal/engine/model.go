package engine

import (
	"sync"

	"github.com/aprilasr/april/internal/aprilerr"
	"github.com/aprilasr/april/internal/dsp"
	"github.com/aprilasr/april/internal/proc"
	"github.com/charmbracelet/log"
)

// sessionTableCapacity is the minimum guaranteed capacity for a Model's
// attached-session table.
const sessionTableCapacity = 64

// Model is an opaque handle to loaded weights plus its Params, a
// Filterbank configuration template derived from them, a lazily-spawned
// shared ProcThread, and the registry of attached Sessions.
type Model struct {
	params  *Params
	backend Backend
	logger  *log.Logger

	fbankOpts dsp.Options

	mu       sync.Mutex
	sessions map[*Session]struct{}

	procOnce sync.Once
	proc     *proc.Thread
}

// NewModel constructs a Model from already-loaded params and a backend.
// Model file parsing (GGUF/legacy) lives in internal/modelfile and is not
// this package's concern; create_model in the public surface composes the
// two.
func NewModel(params *Params, backend Backend, logger *log.Logger) *Model {
	if logger == nil {
		logger = defaultLogger()
	}
	m := &Model{
		params:   params,
		backend:  backend,
		logger:   logger,
		sessions: make(map[*Session]struct{}, sessionTableCapacity),
	}
	m.fbankOpts = dsp.Options{
		SampleFreq:       float64(params.SampleRate),
		FrameShiftMs:     params.FrameShiftMs,
		FrameLengthMs:    params.FrameLengthMs,
		NumBins:          params.MelFeatures,
		RoundPow2:        params.RoundPow2,
		MelLow:           params.MelLow,
		MelHigh:          params.MelHigh,
		SnipEdges:        params.SnipEdges,
		RemoveDCOffset:   true,
		PreemphCoeff:     0.97,
		PullSegmentCount: params.SegmentSize,
		PullSegmentStep:  params.SegmentStep,
		OnRowBufferOverflow: func() {
			logger.Warn("filterbank row buffer overflow, dropping frame", "model", params.Name)
		},
	}
	logger.Info("model loaded", "name", params.Name, "sample_rate", params.SampleRate)
	return m
}

// Name, Description, Language, SampleRate are metadata accessors; the
// returned strings are valid for the Model's lifetime.
func (m *Model) Name() string        { return m.params.Name }
func (m *Model) Description() string { return m.params.Description }
func (m *Model) Language() string    { return m.params.Language }
func (m *Model) SampleRate() int     { return m.params.SampleRate }

// Free releases the Model. Its precondition is that no live Session still
// references it; violating this returns a KindInvariant error and leaves
// the Model and its ProcThread untouched, so Sessions never point at freed
// state.
func (m *Model) Free() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions) != 0 {
		return aprilerr.New(aprilerr.KindInvariant, "Model.Free", errSessionsStillLive)
	}
	if m.proc != nil {
		m.proc.Terminate()
	}
	m.logger.Info("model freed", "name", m.params.Name)
	return nil
}

func (m *Model) register(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s] = struct{}{}
	m.logger.Info("session attached", "mode", s.config.Mode, "live_sessions", len(m.sessions))
}

func (m *Model) unregister(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, s)
	m.logger.Info("session detached", "live_sessions", len(m.sessions))
}

func (m *Model) asyncSessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for s := range m.sessions {
		if s.config.Mode != ModeSync {
			out = append(out, s)
		}
	}
	return out
}

// ensureProc lazily spawns the Model's single shared ProcThread. The
// thread callback drains every asynchronous session's AudioRing into its
// Filterbank, then runs one collect loop across all of them, matching the
// batched async path: a single worker serving every session attached to
// this Model, never a thread per session.
func (m *Model) ensureProc() {
	m.procOnce.Do(func() {
		m.proc = proc.New(func(f proc.Flag) {
			sessions := m.asyncSessions()
			if f&proc.FlagAudio != 0 {
				for _, s := range sessions {
					s.drainRing()
				}
			}
			if f&proc.FlagFlush != 0 {
				for _, s := range sessions {
					for s.fbank.Flush() {
						runCollectLoop(m.backend, []*Session{s})
					}
				}
			}
			runCollectLoop(m.backend, sessions)
			if f&proc.FlagFlush != 0 {
				for _, s := range sessions {
					s.finalizeOnce()
				}
			}
		})
	})
}

func (m *Model) raiseAudio() {
	m.ensureProc()
	m.proc.Raise(proc.FlagAudio)
}

func (m *Model) raiseFlush() {
	m.ensureProc()
	m.proc.Raise(proc.FlagFlush)
}
