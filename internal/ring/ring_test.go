package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPushPullOrdering(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := New()

		a := rapid.SliceOfN(rapid.Int16(), 1, Capacity/2).Draw(t, "a")
		b := rapid.SliceOfN(rapid.Int16(), 1, Capacity/2).Draw(t, "b")

		require.True(t, r.Push(a))
		require.True(t, r.Push(b))

		var got []int16
		for len(got) < len(a)+len(b) {
			chunk := r.Pull(4096)
			if len(chunk) == 0 {
				break
			}
			got = append(got, chunk...)
			r.Finish(len(chunk))
		}

		want := append(append([]int16{}, a...), b...)
		assert.Equal(t, want, got, "pull(A) must precede pull(B)")
	})
}

func TestPushFailsWithoutPartialWrite(t *testing.T) {
	r := New()
	big := make([]int16, Capacity+1)
	assert.False(t, r.Push(big), "a push exceeding capacity must fail")
	assert.Equal(t, 0, r.Avail(), "a failed push must not mutate the ring")
}

func TestPushHalfCapacityOnEmptySucceeds(t *testing.T) {
	r := New()
	half := make([]int16, Capacity/2)
	assert.True(t, r.Push(half))
}

func TestPushExceedingFreeWindowFails(t *testing.T) {
	r := New()
	require.True(t, r.Push(make([]int16, Capacity-10)))
	assert.False(t, r.Push(make([]int16, 11)), "a push that would wrap past head must fail")
	assert.Equal(t, Capacity-10, r.Avail(), "a failed push must leave prior contents untouched")
}

func TestPushEmptyIsNoop(t *testing.T) {
	r := New()
	assert.True(t, r.Push(nil))
	assert.Equal(t, 0, r.Avail())
}
