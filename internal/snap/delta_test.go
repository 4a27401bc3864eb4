package snap

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffApplyRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		base []byte
		next []byte
	}{
		{"identical", []byte("snapshot-bytes"), []byte("snapshot-bytes")},
		{"small change", []byte("aaaaaaaaaa"), []byte("aaaabbaaaa")},
		{"grow", []byte("short"), []byte("short-and-then-some")},
		{"shrink", []byte("a long baseline buffer"), []byte("a long")},
		{"empty base", nil, []byte("fresh")},
		{"empty next", []byte("old"), nil},
		{"both empty", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch := Diff(tt.base, tt.next)
			out, err := Apply(tt.base, patch)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(tt.next, out), "got %q want %q", out, tt.next)
		})
	}
}

func TestDiffDeterministic(t *testing.T) {
	base := []byte("the quick brown fox jumps over the lazy dog")
	next := []byte("the quick brown cat jumps over the lazy dog")
	assert.Equal(t, Diff(base, next), Diff(base, next))
}

func TestDiffShrinksForSimilarBuffers(t *testing.T) {
	base := make([]byte, 4096)
	next := make([]byte, 4096)
	copy(next, base)
	next[1000] = 1
	next[3000] = 2

	patch := Diff(base, next)
	assert.Less(t, len(patch), len(next)/8, "patch should be far smaller than the snapshot")
}

func TestApplyRejectsMalformedPatch(t *testing.T) {
	_, err := Apply([]byte("base"), nil)
	assert.ErrorIs(t, err, ErrBadPatch)

	// Truncated literal run.
	patch := Diff([]byte("base"), []byte("next-value"))
	_, err = Apply([]byte("base"), patch[:len(patch)-3])
	assert.Error(t, err)
}

func TestApplyWrongBaseline(t *testing.T) {
	base := []byte("correct baseline")
	next := []byte("correct baseline v2")
	patch := Diff(base, next)

	// Applying onto a different baseline reconstructs different bytes; the
	// caller detects this via the rebuild, not the patcher.
	out, err := Apply([]byte("wrong----baseline"), patch)
	require.NoError(t, err)
	assert.False(t, bytes.Equal(next, out))
}

func TestRingEviction(t *testing.T) {
	r := NewRing()
	for i := 1; i <= RingCap+5; i++ {
		r.Store(uint64(i), []byte{byte(i)})
	}
	assert.Equal(t, RingCap, r.Len())
	_, ok := r.Get(1)
	assert.False(t, ok, "oldest entries should be evicted")
	latest, ok := r.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(RingCap+5), latest)
}

func TestRingPinProtectsBaseline(t *testing.T) {
	r := NewRing()
	r.Store(1, []byte{1})
	r.Pin(1)
	for i := 2; i <= RingCap+8; i++ {
		r.Store(uint64(i), []byte{byte(i)})
	}
	_, ok := r.Get(1)
	assert.True(t, ok, "pinned baseline must survive eviction")

	r.Unpin()
	r.Store(100, []byte{100})
	_, ok = r.Get(1)
	assert.False(t, ok, "unpinned baseline is evictable again")
}
