package index

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheepgate/sheepgate/internal/store/memstore"
	"github.com/sheepgate/sheepgate/internal/wire"
)

func newTestTree(t *testing.T) (*Tree, context.Context) {
	t.Helper()
	s := memstore.New()
	vid, err := s.NewVolume(context.Background(), "vol", wire.MaxVdiSize, 1, 0, 0)
	require.NoError(t, err)
	return &Tree{Store: s, Vid: vid}, context.Background()
}

func TestGetVidOnHoleIsZero(t *testing.T) {
	tr, ctx := newTestTree(t)
	v, err := tr.GetVid(ctx, 42)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestSetVidThenGetVidRoundTrip(t *testing.T) {
	tr, ctx := newTestTree(t)
	require.NoError(t, tr.SetVid(ctx, 7, 99))
	v, err := tr.GetVid(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, uint32(99), v)
}

func TestSetVidRangeCoversEveryIndex(t *testing.T) {
	tr, ctx := newTestTree(t)
	require.NoError(t, tr.SetVidRange(ctx, 10, 20, 5))
	for i := uint32(10); i <= 20; i++ {
		v, err := tr.GetVid(ctx, i)
		require.NoError(t, err)
		assert.Equal(t, uint32(5), v, "index %d", i)
	}
	v, err := tr.GetVid(ctx, 21)
	require.NoError(t, err)
	assert.Zero(t, v)
}

// TestPromotionBeyondDirectCapacity checks that inserting an index past
// NDirect promotes the tree to depth 2 and the new entry remains
// reachable.
func TestPromotionBeyondDirectCapacity(t *testing.T) {
	tr, ctx := newTestTree(t)

	idx := uint32(wire.NDirect + 1)
	require.NoError(t, tr.SetVid(ctx, idx, 42))

	s, err := tr.readState(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(wire.DepthInternal), s.Depth)

	v, err := tr.GetVid(ctx, idx)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), v)
}

// TestPromotionRoundTripAgainstReferenceMap checks the promotion
// round-trip property: a sequence of inserts that triggers promotion
// produces, after WalkIndex, the same set of (idx, vid) pairs as a
// reference sorted map.
func TestPromotionRoundTripAgainstReferenceMap(t *testing.T) {
	tr, ctx := newTestTree(t)

	ref := make(map[uint32]uint32)
	rng := rand.New(rand.NewSource(1))

	// A mix of direct-range and beyond-direct-range indices, to exercise
	// both legacy inline writes before promotion and indirect-node writes
	// after. 500 inserts stay far below IndirectNodeCapacity, so no node
	// split happens here.
	for i := 0; i < 500; i++ {
		var idx uint32
		if i%3 == 0 {
			idx = uint32(rng.Intn(1000))
		} else {
			idx = wire.NDirect + uint32(rng.Intn(50000))
		}
		vid := uint32(rng.Intn(1000) + 1)
		require.NoError(t, tr.SetVid(ctx, idx, vid))
		ref[idx] = vid
	}

	var got []struct{ idx, vid uint32 }
	require.NoError(t, tr.WalkIndex(ctx, func(idx, vid uint32) error {
		got = append(got, struct{ idx, vid uint32 }{idx, vid})
		return nil
	}))

	var want []struct{ idx, vid uint32 }
	for idx, vid := range ref {
		want = append(want, struct{ idx, vid uint32 }{idx, vid})
	}
	sort.Slice(want, func(i, j int) bool { return want[i].idx < want[j].idx })

	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.Equal(t, want[i], got[i])
	}

	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].idx, got[i].idx, "WalkIndex must be strictly ascending")
	}
}

func TestSetVidToSameValueIsNoOp(t *testing.T) {
	tr, ctx := newTestTree(t)
	require.NoError(t, tr.SetVid(ctx, 3, 11))
	require.NoError(t, tr.SetVid(ctx, 3, 11))
	v, err := tr.GetVid(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, uint32(11), v)
}

func TestWalkIndexSkipsHoles(t *testing.T) {
	tr, ctx := newTestTree(t)
	require.NoError(t, tr.SetVid(ctx, 1, 1))
	require.NoError(t, tr.SetVid(ctx, 2, 2))
	require.NoError(t, tr.SetVid(ctx, 2, 0)) // clear back to a hole

	var seen []uint32
	require.NoError(t, tr.WalkIndex(ctx, func(idx, vid uint32) error {
		seen = append(seen, idx)
		return nil
	}))
	assert.Equal(t, []uint32{1}, seen)
}

func TestWalkIndexConcurrentMatchesWalkIndex(t *testing.T) {
	tr, ctx := newTestTree(t)

	for i := 0; i < 200; i++ {
		idx := wire.NDirect + uint32(i*37)
		require.NoError(t, tr.SetVid(ctx, idx, uint32(i+1)))
	}

	var sequential []struct{ idx, vid uint32 }
	require.NoError(t, tr.WalkIndex(ctx, func(idx, vid uint32) error {
		sequential = append(sequential, struct{ idx, vid uint32 }{idx, vid})
		return nil
	}))

	var concurrent []struct{ idx, vid uint32 }
	var mu sync.Mutex
	require.NoError(t, tr.WalkIndexConcurrent(ctx, 4, func(idx, vid uint32) error {
		mu.Lock()
		defer mu.Unlock()
		concurrent = append(concurrent, struct{ idx, vid uint32 }{idx, vid})
		return nil
	}))

	sort.Slice(concurrent, func(i, j int) bool { return concurrent[i].idx < concurrent[j].idx })
	assert.Equal(t, sequential, concurrent)
}
