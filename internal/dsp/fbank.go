// Package dsp implements the on-line log-mel filterbank front-end: Povey
// windowing, an FFT-based power spectrum, triangular mel projection, and
// the segment ring buffer (accumulator + pump) consumed by the encoder.
package dsp

import (
	"errors"
	"math"

	"github.com/aprilasr/april/internal/aprilerr"
)

var (
	errSnipEdgesUnsupported = errors.New("snip_edges=false is not supported")
	errBadSegmentSizing     = errors.New("pull_segment_step must be positive and no greater than pull_segment_count")
)

// Options configures a Filterbank. It mirrors the subset of
// ModelParameters the front-end needs.
type Options struct {
	SampleFreq       float64
	FrameShiftMs     float64
	FrameLengthMs    float64
	NumBins          int
	RoundPow2        bool
	MelLow           float64
	MelHigh          float64
	SnipEdges        bool
	RemoveDCOffset   bool
	PreemphCoeff     float64
	PullSegmentCount int
	PullSegmentStep  int

	// OnRowBufferOverflow, if set, is called whenever the row buffer is
	// full and an incoming frame is dropped. The engine package wires this
	// to its logger; left nil it is a no-op (used by tests that don't
	// care about the warning).
	OnRowBufferOverflow func()
}

// rowBufferMultiple is the row-buffer capacity expressed as a multiple of
// pull_segment_count.
const rowBufferMultiple = 32

// maxFlushOverrun bounds how many full segments of silence padding flush
// may inject beyond empty before giving up, to bound flush loops.
const maxFlushOverrun = 3

// Filterbank converts a streamed, [-1,1]-normalised float PCM waveform
// into log-mel rows, buffered in a circular segment accumulator that the
// encoder pulls fixed-size, overlapping segments from.
type Filterbank struct {
	opts Options

	windowShift      int
	windowSize       int
	paddedWindowSize int
	numFFTBins       int

	window  []float64
	melBank [][]float64

	rows       [][]float32
	rowCap     int
	head, tail int
	avail      int
	availF     int // signed bookkeeping for flush's overrun bound

	leftover []float64

	speed float64 // advisory real-time compression factor, 1.0 = disabled
}

// NewFilterbank builds a Filterbank from opts. It returns a ConfigError if
// opts requests an unsupported configuration (snip_edges=false has no
// implementation here, matching the source this was ported from, which
// asserts snip_edges).
func NewFilterbank(opts Options) (*Filterbank, error) {
	if !opts.SnipEdges {
		return nil, aprilerr.New(aprilerr.KindConfig, "NewFilterbank", errSnipEdgesUnsupported)
	}
	if opts.PullSegmentCount <= 0 || opts.PullSegmentStep <= 0 || opts.PullSegmentStep > opts.PullSegmentCount {
		return nil, aprilerr.New(aprilerr.KindConfig, "NewFilterbank", errBadSegmentSizing)
	}

	windowShift := int(opts.FrameShiftMs * opts.SampleFreq / 1000)
	windowSize := int(opts.FrameLengthMs * opts.SampleFreq / 1000)
	padded := windowSize
	if opts.RoundPow2 {
		padded = roundUpToNearestPowerOfTwo(windowSize)
	}
	numFFTBins := padded / 2

	fb := &Filterbank{
		opts:             opts,
		windowShift:      windowShift,
		windowSize:       windowSize,
		paddedWindowSize: padded,
		numFFTBins:       numFFTBins,
		window:           generatePoveyWindow(padded),
		melBank:          generateBanks(opts.NumBins, numFFTBins, opts.SampleFreq, opts.MelLow, opts.MelHigh, padded),
		rowCap:           rowBufferMultiple * opts.PullSegmentCount,
		speed:            1.0,
	}
	fb.rows = make([][]float32, fb.rowCap)
	for i := range fb.rows {
		fb.rows[i] = make([]float32, opts.NumBins)
	}
	return fb, nil
}

// LastStrideMS is the audio duration one successful PullSegments call
// advances session time by: pull_segment_step * frame_shift_ms.
func (fb *Filterbank) LastStrideMS() float64 {
	return float64(fb.opts.PullSegmentStep) * fb.opts.FrameShiftMs
}

// SetSpeed sets the advisory real-time compression factor (>1 means
// "process faster, less accurately"). It never changes the correctness of
// AcceptWaveform/PullSegments output, only whether a caller chooses to
// apply it upstream; see SPEC_FULL.md's note on this being advisory.
func (fb *Filterbank) SetSpeed(speed float64) {
	if speed < 1.0 {
		speed = 1.0
	}
	fb.speed = speed
}

// GetSpeed returns the current advisory speed factor.
func (fb *Filterbank) GetSpeed() float64 { return fb.speed }

// AcceptWaveform consumes normalised float samples, producing zero or more
// log-mel rows into the circular row buffer. Leftover samples that do not
// fill a full stride are stashed for the next call.
func (fb *Filterbank) AcceptWaveform(samples []float64) {
	combined := make([]float64, 0, len(fb.leftover)+len(samples))
	combined = append(combined, fb.leftover...)
	combined = append(combined, samples...)

	// Each frame spans padded_window_size real consecutive samples (not
	// window_size zero-padded up), matching fbank_accept_waveform: the
	// window multiplies real audio across its full length, not a mix of
	// audio and zero taps.
	offset := 0
	for offset+fb.paddedWindowSize <= len(combined) {
		frame := fb.extractFrame(combined[offset : offset+fb.paddedWindowSize])
		row := fb.processFrame(frame)
		fb.pushRow(row)
		offset += fb.windowShift
	}
	fb.leftover = append([]float64{}, combined[offset:]...)
}

func (fb *Filterbank) extractFrame(samples []float64) []float64 {
	frame := make([]float64, fb.paddedWindowSize)
	copy(frame, samples)

	if fb.opts.RemoveDCOffset {
		var mean float64
		for _, v := range frame {
			mean += v
		}
		mean /= float64(len(frame))
		for i := range frame {
			frame[i] -= mean
		}
	}
	if fb.opts.PreemphCoeff > 0 {
		for i := len(frame) - 1; i >= 1; i-- {
			frame[i] -= fb.opts.PreemphCoeff * frame[i-1]
		}
		frame[0] -= fb.opts.PreemphCoeff * frame[0]
	}
	for i := range frame {
		frame[i] *= fb.window[i]
	}
	return frame
}

func (fb *Filterbank) processFrame(frame []float64) []float32 {
	power := powerSpectrum(frame)
	row := make([]float32, fb.opts.NumBins)
	for m, bank := range fb.melBank {
		var energy float64
		for k, w := range bank {
			if w == 0 {
				continue
			}
			energy += w * power[k]
		}
		row[m] = float32(math.Log(math.Max(kEps, energy)))
	}
	return row
}

func (fb *Filterbank) pushRow(row []float32) {
	fb.availF++
	if fb.avail >= fb.rowCap {
		// Row buffer overflow: the consumer is not pulling often enough.
		// This drops incoming audio, matching the source engine's warning
		// behaviour. avail_f still advances so the flush overrun bound
		// stays meaningful.
		if fb.opts.OnRowBufferOverflow != nil {
			fb.opts.OnRowBufferOverflow()
		}
		return
	}
	copy(fb.rows[fb.head], row)
	fb.head = (fb.head + 1) % fb.rowCap
	fb.avail++
}

// PullSegments copies pull_segment_count consecutive rows starting at
// tail into out (which must have exactly that many rows, each num_bins
// wide), advances tail by pull_segment_step, and decrements avail by the
// same amount. It returns false (and does not mutate state) if fewer than
// pull_segment_count rows are available.
func (fb *Filterbank) PullSegments(out [][]float32) bool {
	if fb.avail < fb.opts.PullSegmentCount {
		return false
	}
	for i := 0; i < fb.opts.PullSegmentCount; i++ {
		copy(out[i], fb.rows[(fb.tail+i)%fb.rowCap])
	}
	fb.tail = (fb.tail + fb.opts.PullSegmentStep) % fb.rowCap
	fb.avail -= fb.opts.PullSegmentStep
	fb.availF -= fb.opts.PullSegmentStep
	return true
}

var silenceRow = math.Log(kEps)

// Flush pads the row buffer with log(eps) rows until avail reaches
// pull_segment_count. It returns false once padding would exceed three
// full segments beyond empty, bounding runaway flush loops.
func (fb *Filterbank) Flush() bool {
	if fb.availF < -(fb.opts.PullSegmentCount * maxFlushOverrun) {
		return false
	}
	for fb.avail < fb.opts.PullSegmentCount {
		row := make([]float32, fb.opts.NumBins)
		for i := range row {
			row[i] = float32(silenceRow)
		}
		fb.pushRow(row)
		// Padding is not audio: undo pushRow's availF increment so that
		// pulls past the real rows drive availF negative.
		fb.availF--
	}
	return true
}
