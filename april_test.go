package april_test

import (
	"testing"

	"github.com/aprilasr/april"
	"github.com/aprilasr/april/internal/backend/reference"
	"github.com/aprilasr/april/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModel(t *testing.T) *april.Model {
	t.Helper()
	vocab := []string{"<blank>", " hi", "."}
	for len(vocab) < 16 {
		vocab = append(vocab, " w")
	}
	params := &engine.Params{
		BatchSize: 4, SegmentSize: 9, SegmentStep: 4, MelFeatures: 40,
		SampleRate: 16000, FrameShiftMs: 10, FrameLengthMs: 25, RoundPow2: true,
		MelLow: 20, SnipEdges: true, TokenCount: len(vocab), BlankID: 0,
		Vocabulary: vocab, LayerCount: 1, HiddenDim: 16, JoinerDim: 16,
		Name: "e2e-test",
	}
	be := reference.New(params.TokenCount, params.BlankID, params.JoinerDim)
	return april.NewModelFromParams(params, be, nil)
}

func TestInitRejectsWrongAPIVersion(t *testing.T) {
	assert.Error(t, april.Init(april.APIVersion+1))
	assert.NoError(t, april.Init(april.APIVersion))
}

func TestCreateSessionAndFeed(t *testing.T) {
	m := testModel(t)
	defer m.Free()

	var resultKinds []april.ResultKind
	sess, err := april.CreateSession(m, april.Config{
		Handler: func(kind april.ResultKind, tokens []april.Token) {
			resultKinds = append(resultKinds, kind)
		},
		Flags: april.FlagZero,
	})
	require.NoError(t, err)
	defer sess.Free()

	samples := make([]int16, 16000*2)
	for i := range samples {
		samples[i] = int16((i * 997) % 5000)
	}
	sess.FeedPCM16(samples)
	sess.Flush()

	assert.NotEmpty(t, resultKinds)
	assert.Equal(t, float32(1.0), sess.RealtimeGetSpeedup())
}

func TestCreateSessionRejectsMissingHandler(t *testing.T) {
	m := testModel(t)
	defer m.Free()
	_, err := april.CreateSession(m, april.Config{Flags: april.FlagZero})
	assert.Error(t, err)
}
