// Command april-stream feeds a PCM16 audio source (a raw file, a WAV
// file, stdin, or synthetic zero input) through a single April session
// and prints each recognition event to stdout.
//
// Usage: april-stream <pcm|wav|-|?> <model_path> [flags]
//
// Exit codes mirror the example-client contract: 0 success, 1 on a bad
// argument or model-load failure, 2 on an I/O error, 4 on malformed input.
package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aprilasr/april"
	"github.com/aprilasr/april/internal/backend/reference"
	"github.com/aprilasr/april/internal/engine"
	"github.com/aprilasr/april/internal/modelfile"
	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	exitOK           = 0
	exitArgsOrModel  = 1
	exitIO           = 2
	exitMalformed    = 4
	demoSampleRate   = 16000
	wavDataChunkTag  = "data"
	wavFmtChunkTag   = "fmt "
	wavRiffChunkTag  = "RIFF"
	wavReadChunkHead = 8
)

// sessionConfig is the optional YAML file accepted via --config. It
// overrides session-level knobs; everything else comes from the model
// file and command-line flags.
type sessionConfig struct {
	// SampleRateOverride is parsed but not applied.
	SampleRateOverride int    `yaml:"sample_rate_override"`
	Mode               string `yaml:"mode"` // "sync", "async-rt", "async-no-rt"
	DumpPattern        string `yaml:"dump_file_pattern"`
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("april-stream", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "optional YAML session config file")
	verbose := flags.BoolP("verbose", "v", false, "enable debug logging")
	dumpPattern := flags.String("dump-pattern", "", "strftime pattern for a result-dump filename, e.g. april-%Y%m%d-%H%M%S.txt")
	if err := flags.Parse(args); err != nil {
		return exitArgsOrModel
	}
	rest := flags.Args()
	if len(rest) != 2 {
		fmt.Fprintln(os.Stderr, "usage: april-stream <pcm|wav|-|?> <model_path> [flags]")
		return exitArgsOrModel
	}
	inputSpec, modelPath := rest[0], rest[1]

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "april-stream"})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	cfg := sessionConfig{Mode: "sync"}
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			logger.Error("reading config", "err", err)
			return exitArgsOrModel
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			logger.Error("parsing config", "err", err)
			return exitArgsOrModel
		}
	}
	if *dumpPattern != "" {
		cfg.DumpPattern = *dumpPattern
	}

	model, err := loadModel(modelPath, logger)
	if err != nil {
		logger.Error("model load failed", "err", err)
		return exitArgsOrModel
	}
	defer model.Free()

	var dump *os.File
	if cfg.DumpPattern != "" {
		name, err := strftime.Format(cfg.DumpPattern, time.Now())
		if err != nil {
			logger.Error("bad dump pattern", "err", err)
			return exitArgsOrModel
		}
		dump, err = os.Create(name)
		if err != nil {
			logger.Error("creating dump file", "err", err)
			return exitIO
		}
		defer dump.Close()
	}

	sess, err := april.CreateSession(model, april.Config{
		Handler: printHandler(logger, dump),
		Flags:   modeFromString(cfg.Mode),
	})
	if err != nil {
		logger.Error("create session failed", "err", err)
		return exitArgsOrModel
	}
	defer sess.Free()

	shorts, err := readInput(inputSpec)
	if err != nil {
		if err == errMalformed {
			return exitMalformed
		}
		logger.Error("reading input", "err", err)
		return exitIO
	}

	const chunk = 3200
	for off := 0; off < len(shorts); off += chunk {
		end := off + chunk
		if end > len(shorts) {
			end = len(shorts)
		}
		sess.FeedPCM16(shorts[off:end])
	}
	sess.Flush()

	return exitOK
}

func modeFromString(s string) april.Flag {
	switch s {
	case "async-rt":
		return april.FlagAsyncRT
	case "async-no-rt":
		return april.FlagAsyncNoRT
	default:
		return april.FlagZero
	}
}

func printHandler(logger *log.Logger, dump *os.File) april.Handler {
	return func(kind april.ResultKind, tokens []engine.Token) {
		text := ""
		for _, t := range tokens {
			text += t.Text
		}
		line := fmt.Sprintf("[%s] %q", kind, text)
		fmt.Println(line)
		if dump != nil {
			fmt.Fprintln(dump, line)
		}
		if kind == april.CantKeepUp {
			logger.Warn("cant keep up: audio ring overflow, chunk dropped")
		}
	}
}

// loadModel reads a GGUF file's Params (shapes and vocabulary) and returns
// the load error if that fails. A model path of "-" (or empty) selects a
// small synthetic Params instead, so this CLI remains runnable without a
// real trained model file. Either way it
// is paired with the deterministic reference backend: this repo ships no
// production tensor runtime (see SPEC_FULL.md's Non-goals), so a real
// GGUF model's weights are read but never evaluated by this example.
func loadModel(path string, logger *log.Logger) (*april.Model, error) {
	params := demoParams()
	if path != "" && path != "-" {
		p, _, err := modelfile.LoadGGUF(path)
		if err != nil {
			return nil, err
		}
		params = p
	}
	be := reference.New(params.TokenCount, params.BlankID, params.JoinerDim)
	return april.NewModelFromParams(params, be, logger), nil
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
		SampleRate: demoSampleRate, FrameShiftMs: 10, FrameLengthMs: 25,
		RoundPow2: true, MelLow: 20, MelHigh: 0, SnipEdges: true,
		TokenCount: len(vocab), BlankID: 0, Vocabulary: vocab,
		LayerCount: 2, HiddenDim: 32, JoinerDim: 32,
		Name: "april-stream-demo",
	}
}

var errMalformed = fmt.Errorf("malformed input")

// readInput dispatches on the pcm|wav|-|? spec described in the public
// interface's CLI contract.
func readInput(spec string) ([]int16, error) {
	switch spec {
	case "?":
		return make([]int16, demoSampleRate*2), nil
	case "-":
		return readPCM(os.Stdin)
	default:
		f, err := os.Open(spec)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if isWav(f) {
			return readWav(f)
		}
		return readPCM(f)
	}
}

func isWav(f *os.File) bool {
	head := make([]byte, 4)
	if _, err := f.ReadAt(head, 0); err != nil {
		return false
	}
	return string(head) == wavRiffChunkTag
}

func readPCM(r io.Reader) ([]int16, error) {
	br := bufio.NewReader(r)
	raw, err := io.ReadAll(br)
	if err != nil {
		return nil, err
	}
	if len(raw)%2 != 0 {
		return nil, errMalformed
	}
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return out, nil
}

// readWav skips the RIFF/fmt chunks and reads the data chunk as PCM16.
// It does not resample or transcode; the file must already match the
// model's declared sample rate, per the no-resampling non-goal.
func readWav(f *os.File) ([]int16, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	header := make([]byte, 12)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, errMalformed
	}
	if string(header[0:4]) != wavRiffChunkTag || string(header[8:12]) != "WAVE" {
		return nil, errMalformed
	}
	for {
		chunkHeader := make([]byte, wavReadChunkHead)
		if _, err := io.ReadFull(f, chunkHeader); err != nil {
			return nil, errMalformed
		}
		id := string(chunkHeader[0:4])
		size := binary.LittleEndian.Uint32(chunkHeader[4:8])
		if id == wavDataChunkTag {
			raw := make([]byte, size)
			if _, err := io.ReadFull(f, raw); err != nil {
				return nil, errMalformed
			}
			out := make([]int16, len(raw)/2)
			for i := range out {
				out[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
			}
			return out, nil
		}
		if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
			return nil, errMalformed
		}
	}
}
