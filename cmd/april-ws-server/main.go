// Command april-ws-server exposes April sessions over WebSocket: a
// client opens a connection, streams binary PCM16 frames, and receives
// JSON-encoded recognition events in return. All connections on one
// server share a single Model, so the ModelRuntime scheduler batches
// their encoder/decoder/joiner calls across sessions, exactly as
// described in SPEC_FULL.md's cross-session fan-out supplement.
package main

import (
	"encoding/binary"
	"encoding/json"
	"net/http"
	"os"
	"sync"

	"github.com/aprilasr/april"
	"github.com/aprilasr/april/internal/backend/reference"
	"github.com/aprilasr/april/internal/engine"
	"github.com/aprilasr/april/internal/modelfile"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
)

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "april_ws_sessions_active",
		Help: "Currently open WebSocket recognition sessions",
	})
	sessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "april_ws_sessions_total",
		Help: "Total WebSocket sessions opened",
	})
	cantKeepUpTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "april_ws_cant_keep_up_total",
		Help: "Total CantKeepUp results surfaced to clients",
	})
	tokensEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "april_ws_tokens_emitted_total",
		Help: "Tokens emitted, by result kind",
	}, []string{"kind"})
)

// tokenEvent is the JSON shape sent to the client for every callback.
type tokenEvent struct {
	SessionID string  `json:"session_id"`
	Kind      string  `json:"kind"`
	Text      string  `json:"text"`
	TimeMS    uint64  `json:"time_ms,omitempty"`
	Tokens    []token `json:"tokens,omitempty"`
}

type token struct {
	Text    string  `json:"text"`
	LogProb float32 `json:"logprob"`
	TimeMS  uint64  `json:"time_ms"`
	Flags   uint8   `json:"flags"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type server struct {
	model  *april.Model
	logger *log.Logger
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("april-ws-server", pflag.ContinueOnError)
	addr := flags.StringP("addr", "a", ":8088", "listen address")
	modelPath := flags.StringP("model", "m", "", "path to a GGUF model file (optional, uses a demo model otherwise)")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "april-ws-server"})

	params := demoParams()
	if *modelPath != "" {
		if p, _, err := modelfile.LoadGGUF(*modelPath); err == nil {
			params = p
		} else {
			logger.Warn("falling back to demo model", "err", err)
		}
	}
	be := reference.New(params.TokenCount, params.BlankID, params.JoinerDim)
	model := april.NewModelFromParams(params, be, logger)
	defer model.Free()

	srv := &server{model: model, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.handleWS)
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info("april-ws-server listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Error("server exited", "err", err)
		return 1
	}
	return 0
}

// handleWS upgrades the connection, attaches one asynchronous Session to
// the shared Model, and pumps binary PCM16 frames in while pushing
// recognition events out as JSON text frames.
func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	sessionID := uuid.NewString()
	sessionsTotal.Inc()
	activeSessions.Inc()
	defer activeSessions.Dec()

	sendEvent := newEventSender(conn, sessionID)

	sess, err := april.CreateSession(s.model, april.Config{
		SpeakerID: sessionID,
		Handler:   sendEvent,
		Flags:     april.FlagAsyncNoRT,
	})
	if err != nil {
		s.logger.Error("create session failed", "session_id", sessionID, "err", err)
		return
	}
	defer sess.Free()

	s.logger.Info("session opened", "session_id", sessionID)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if len(data)%2 != 0 {
			continue
		}
		shorts := make([]int16, len(data)/2)
		for i := range shorts {
			shorts[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
		}
		sess.FeedPCM16(shorts)
	}
	sess.Flush()
	s.logger.Info("session closed", "session_id", sessionID)
}

// newEventSender returns a Handler that serializes each callback as a
// JSON text frame. Writes are guarded by a mutex: in asynchronous mode a
// CantKeepUp callback runs on the goroutine feeding audio while the other
// callbacks run on the Model's processing goroutine, so two callbacks for
// one Session can overlap. Each Session has its own connection.
func newEventSender(conn *websocket.Conn, sessionID string) april.Handler {
	var writeMu sync.Mutex
	return func(kind april.ResultKind, tokens []engine.Token) {
		if kind == april.CantKeepUp {
			cantKeepUpTotal.Inc()
		}
		tokensEmittedTotal.WithLabelValues(kind.String()).Add(float64(len(tokens)))

		ev := tokenEvent{SessionID: sessionID, Kind: kind.String()}
		for _, t := range tokens {
			ev.Text += t.Text
			ev.TimeMS = t.TimeMS
			ev.Tokens = append(ev.Tokens, token{Text: t.Text, LogProb: t.LogProb, TimeMS: t.TimeMS, Flags: uint8(t.Flags)})
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			return
		}
		writeMu.Lock()
		_ = conn.WriteMessage(websocket.TextMessage, payload)
		writeMu.Unlock()
	}
}

func demoParams() *engine.Params {
	vocab := make([]string, 32)
	vocab[0] = "<blank>"
	vocab[1] = " the"
	vocab[2] = " quick"
	vocab[3] = "."
	for i := 4; i < len(vocab); i++ {
		vocab[i] = " w"
	}
	return &engine.Params{
		BatchSize: 8, SegmentSize: 9, SegmentStep: 4, MelFeatures: 40,
		SampleRate: 16000, FrameShiftMs: 10, FrameLengthMs: 25,
		RoundPow2: true, MelLow: 20, MelHigh: 0, SnipEdges: true,
		TokenCount: len(vocab), BlankID: 0, Vocabulary: vocab,
		LayerCount: 2, HiddenDim: 32, JoinerDim: 32,
		Name: "april-ws-server-demo",
	}
}
