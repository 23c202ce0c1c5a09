// Command april-listen captures live microphone audio with PortAudio and
// streams it through an asynchronous April session, printing recognition
// events to stdout as they arrive.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aprilasr/april"
	"github.com/aprilasr/april/internal/backend/reference"
	"github.com/aprilasr/april/internal/engine"
	"github.com/aprilasr/april/internal/modelfile"
	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"
	"github.com/spf13/pflag"
)

const micFrames = 1600 // 100ms at 16kHz, one feed_pcm16 call per buffer

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("april-listen", pflag.ContinueOnError)
	modelPath := flags.StringP("model", "m", "", "path to a GGUF model file (optional, uses a demo model otherwise)")
	realtime := flags.BoolP("realtime", "r", true, "use the asynchronous real-time session mode instead of async-no-rt")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "april-listen"})

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

	mode := april.FlagAsyncNoRT
	if *realtime {
		mode = april.FlagAsyncRT
	}

	sess, err := april.CreateSession(model, april.Config{
		Handler: func(kind april.ResultKind, tokens []engine.Token) {
			text := ""
			for _, t := range tokens {
				text += t.Text
			}
			fmt.Printf("[%s] %q\n", kind, text)
			if kind == april.CantKeepUp {
				logger.Warn("cant keep up: dropped an audio chunk")
			}
		},
		Flags: mode,
	})
	if err != nil {
		logger.Error("create session failed", "err", err)
		return 1
	}
	defer sess.Free()

	if err := portaudio.Initialize(); err != nil {
		logger.Error("portaudio init failed", "err", err)
		return 1
	}
	defer portaudio.Terminate()

	buf := make([]int16, micFrames)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(params.SampleRate), micFrames, buf)
	if err != nil {
		logger.Error("opening default input stream failed", "err", err)
		return 1
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		logger.Error("starting input stream failed", "err", err)
		return 1
	}
	defer stream.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	logger.Info("listening; press ctrl-c to stop and flush")
	for {
		select {
		case <-sigCh:
			sess.Flush()
			logger.Info("stopped")
			return 0
		default:
		}
		if err := stream.Read(); err != nil {
			logger.Error("stream read failed", "err", err)
			sess.Flush()
			return 2
		}
		sess.FeedPCM16(buf)
		fmt.Printf("speedup=%.2fx\r", sess.RealtimeGetSpeedup())
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
		Name: "april-listen-demo",
	}
}
