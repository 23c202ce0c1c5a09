package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{
		SampleFreq:       16000,
		FrameShiftMs:     10,
		FrameLengthMs:    25,
		NumBins:          40,
		RoundPow2:        true,
		MelLow:           20,
		MelHigh:          0,
		SnipEdges:        true,
		RemoveDCOffset:   true,
		PreemphCoeff:     0.97,
		PullSegmentCount: 9,
		PullSegmentStep:  4,
	}
}

func TestNewFilterbankRejectsSnipEdgesFalse(t *testing.T) {
	opts := testOptions()
	opts.SnipEdges = false
	_, err := NewFilterbank(opts)
	assert.Error(t, err)
}

func TestDeterminismAcrossChunking(t *testing.T) {
	opts := testOptions()
	samples := make([]float64, 16000*2)
	for i := range samples {
		samples[i] = 0.01 * float64(i%97-48)
	}

	fbA, err := NewFilterbank(opts)
	require.NoError(t, err)
	fbA.AcceptWaveform(samples)

	fbB, err := NewFilterbank(opts)
	require.NoError(t, err)
	const chunk = 137
	for i := 0; i < len(samples); i += chunk {
		end := i + chunk
		if end > len(samples) {
			end = len(samples)
		}
		fbB.AcceptWaveform(samples[i:end])
	}

	for {
		outA := makeSegmentBuf(opts)
		outB := makeSegmentBuf(opts)
		okA := fbA.PullSegments(outA)
		okB := fbB.PullSegments(outB)
		require.Equal(t, okA, okB)
		if !okA {
			break
		}
		assert.Equal(t, outA, outB, "identical samples in any chunking must produce identical segment rows")
	}
}

func TestPullSegmentsBoundary(t *testing.T) {
	opts := testOptions()
	fb, err := NewFilterbank(opts)
	require.NoError(t, err)

	samples := make([]float64, 0)
	for fb.avail < opts.PullSegmentCount-1 {
		samples = append(samples, make([]float64, fb.windowShift)...)
		fb.AcceptWaveform(samples)
		samples = samples[:0]
	}
	require.Equal(t, opts.PullSegmentCount-1, fb.avail)

	out := makeSegmentBuf(opts)
	tailBefore := fb.tail
	ok := fb.PullSegments(out)
	assert.False(t, ok, "avail == pull_segment_count-1 must return false")
	assert.Equal(t, tailBefore, fb.tail, "a failed pull must not mutate tail")
}

func TestFlushIdempotentWhenAlreadyFull(t *testing.T) {
	opts := testOptions()
	fb, err := NewFilterbank(opts)
	require.NoError(t, err)

	samples := make([]float64, 16000)
	fb.AcceptWaveform(samples)

	availBefore := fb.avail
	ok1 := fb.Flush()
	availAfterFirst := fb.avail
	ok2 := fb.Flush()

	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.GreaterOrEqual(t, availAfterFirst, availBefore)
	assert.Equal(t, availAfterFirst, fb.avail, "a second flush with no intervening feed adds no further rows once avail>=pull_segment_count")
}

func makeSegmentBuf(opts Options) [][]float32 {
	out := make([][]float32, opts.PullSegmentCount)
	for i := range out {
		out[i] = make([]float32, opts.NumBins)
	}
	return out
}
