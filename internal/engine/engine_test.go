package engine

import (
	"testing"

	"github.com/aprilasr/april/internal/backend/reference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() *Params {
	vocab := make([]string, 50)
	vocab[0] = "<blank>"
	vocab[1] = " the"
	vocab[2] = " hi"
	vocab[3] = "."
	vocab[4] = " 3"
	for i := 5; i < len(vocab); i++ {
		vocab[i] = " w"
	}
	return &Params{
		BatchSize:     8,
		SegmentSize:   9,
		SegmentStep:   4,
		MelFeatures:   40,
		SampleRate:    16000,
		FrameShiftMs:  10,
		FrameLengthMs: 25,
		RoundPow2:     true,
		MelLow:        20,
		MelHigh:       0,
		SnipEdges:     true,
		TokenCount:    len(vocab),
		BlankID:       0,
		Vocabulary:    vocab,
		LayerCount:    2,
		HiddenDim:     32,
		JoinerDim:     32,
		Name:          "test-model",
	}
}

func newTestModel() *Model {
	p := testParams()
	be := reference.New(p.TokenCount, p.BlankID, p.JoinerDim)
	return NewModel(p, be, nil)
}

func TestCurrentTimeMSAdvancesPerSegment(t *testing.T) {
	m := newTestModel()
	var lastTimes []uint64
	sess, err := NewSession(m, Config{
		Handler: func(kind ResultKind, tokens []Token) {},
	})
	require.NoError(t, err)
	defer sess.Free()

	expectedStride := uint64(m.params.SegmentStep) * uint64(m.params.FrameShiftMs)

	zeros := make([]int16, 16000*3)
	sess.FeedPCM16(zeros)

	// current_time_ms must always be a multiple of the per-segment stride.
	assert.Zero(t, sess.currentTimeMS%expectedStride)
	lastTimes = append(lastTimes, sess.currentTimeMS)
	assert.NotEmpty(t, lastTimes)
}

func TestActiveTokenHeadNeverExceedsBound(t *testing.T) {
	m := newTestModel()
	maxSeen := 0
	sess, err := NewSession(m, Config{
		Handler: func(kind ResultKind, tokens []Token) {
			if len(tokens) > maxSeen {
				maxSeen = len(tokens)
			}
		},
	})
	require.NoError(t, err)
	defer sess.Free()

	noise := make([]int16, 16000*5)
	for i := range noise {
		noise[i] = int16((i*2654435761)%4000 - 2000)
	}
	sess.FeedPCM16(noise)

	assert.LessOrEqual(t, sess.activeTokenHead, MaxActiveTokens-1)
	assert.LessOrEqual(t, maxSeen, MaxActiveTokens-1)
}

func TestSilenceNeverEmittedTwiceConsecutively(t *testing.T) {
	m := newTestModel()
	var kinds []ResultKind
	sess, err := NewSession(m, Config{
		Handler: func(kind ResultKind, tokens []Token) {
			kinds = append(kinds, kind)
		},
	})
	require.NoError(t, err)
	defer sess.Free()

	zeros := make([]int16, 16000*6)
	sess.FeedPCM16(zeros)

	for i := 1; i < len(kinds); i++ {
		if kinds[i] == KindSilence {
			assert.NotEqual(t, KindSilence, kinds[i-1], "two Silence callbacks must not be consecutive")
		}
	}
}

func TestFeedPCM16ZeroIsNoop(t *testing.T) {
	m := newTestModel()
	called := false
	sess, err := NewSession(m, Config{
		Handler: func(kind ResultKind, tokens []Token) { called = true },
	})
	require.NoError(t, err)
	defer sess.Free()

	sess.FeedPCM16(nil)
	assert.False(t, called)
}

func TestTokenCtxTracksLastNonBlank(t *testing.T) {
	m := newTestModel()
	sess, err := NewSession(m, Config{
		Handler: func(kind ResultKind, tokens []Token) {},
	})
	require.NoError(t, err)
	defer sess.Free()

	noise := make([]int16, 16000*2)
	for i := range noise {
		noise[i] = int16((i * 12345) % 8000)
	}
	sess.FeedPCM16(noise)

	if sess.activeTokenHead > 0 {
		assert.Equal(t, sess.activeTokens[sess.activeTokenHead-1].ID, sess.tensors.tokenCtx[1])
	} else {
		assert.Equal(t, m.params.BlankID, sess.tensors.tokenCtx[1])
	}
}

func TestFreeModelRequiresNoLiveSessions(t *testing.T) {
	m := newTestModel()
	sess, err := NewSession(m, Config{Handler: func(kind ResultKind, tokens []Token) {}})
	require.NoError(t, err)

	err = m.Free()
	assert.Error(t, err, "Free must refuse while a Session is still attached")

	sess.Free()
	assert.NoError(t, m.Free())
}

func TestCreateSessionRequiresHandler(t *testing.T) {
	m := newTestModel()
	_, err := NewSession(m, Config{})
	assert.Error(t, err)
}

func TestFlushIsIdempotent(t *testing.T) {
	m := newTestModel()
	var finals, silences int
	sess, err := NewSession(m, Config{
		Handler: func(kind ResultKind, tokens []Token) {
			switch kind {
			case KindFinalRecognition:
				finals++
			case KindSilence:
				silences++
			}
		},
	})
	require.NoError(t, err)
	defer sess.Free()

	noise := make([]int16, 16000)
	for i := range noise {
		noise[i] = int16((i * 7919) % 6000)
	}
	sess.FeedPCM16(noise)

	sess.Flush()
	firstFinals, firstSilences := finals, silences

	sess.Flush()
	assert.Equal(t, firstFinals, finals, "a second flush with no intervening feed must not add further finals")
	assert.Equal(t, firstSilences, silences, "a second flush with no intervening feed must not add further silences")
}
