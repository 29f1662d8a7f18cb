package bucket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheepgate/sheepgate/internal/account"
	"github.com/sheepgate/sheepgate/internal/clock"
	"github.com/sheepgate/sheepgate/internal/gwerrors"
	"github.com/sheepgate/sheepgate/internal/index"
	"github.com/sheepgate/sheepgate/internal/store/memstore"
	"github.com/sheepgate/sheepgate/internal/wire"
)

func newTestManager(t *testing.T) (*Manager, *account.Manager, context.Context) {
	t.Helper()
	s := memstore.New()
	clk := clock.NewFake(time.Unix(1000, 0))
	am := &account.Manager{Store: s, Clock: clk}
	_, err := am.CreateAccount(context.Background(), "acct")
	require.NoError(t, err)
	return &Manager{Store: s, Clock: clk}, am, context.Background()
}

func TestCreateLookupDelete(t *testing.T) {
	m, _, ctx := newTestManager(t)

	rec, err := m.Create(ctx, "acct", "fruit")
	require.NoError(t, err)
	assert.NotZero(t, rec.OnodeVid)
	assert.NotZero(t, rec.DataVid)

	got, err := m.Lookup(ctx, "acct", "fruit")
	require.NoError(t, err)
	assert.Equal(t, rec.OnodeVid, got.OnodeVid)
	assert.Equal(t, rec.DataVid, got.DataVid)

	require.NoError(t, m.Delete(ctx, "acct", "fruit"))
	_, err = m.Lookup(ctx, "acct", "fruit")
	assert.True(t, gwerrors.Is(err, gwerrors.NotFound))
}

func TestCreateDuplicateNameFails(t *testing.T) {
	m, _, ctx := newTestManager(t)

	_, err := m.Create(ctx, "acct", "fruit")
	require.NoError(t, err)

	_, err = m.Create(ctx, "acct", "fruit")
	assert.True(t, gwerrors.Is(err, gwerrors.AlreadyExists))
}

func TestLookupMissingBucketIsNotFound(t *testing.T) {
	m, _, ctx := newTestManager(t)
	_, err := m.Lookup(ctx, "acct", "ghost")
	assert.True(t, gwerrors.Is(err, gwerrors.NotFound))
}

func TestDeleteDiscardsObjectWhenLastInhabitantAndSlotReusable(t *testing.T) {
	m, _, ctx := newTestManager(t)

	_, err := m.Create(ctx, "acct", "only")
	require.NoError(t, err)
	require.NoError(t, m.Delete(ctx, "acct", "only"))

	accountVid, err := m.Store.LookupVolumeByName(ctx, "acct")
	require.NoError(t, err)
	tr := &index.Tree{Store: m.Store, Vid: accountVid}

	var seen int
	require.NoError(t, tr.WalkIndex(ctx, func(idx, vid uint32) error {
		seen++
		return nil
	}))
	assert.Zero(t, seen, "the only inhabited block should have been discarded and its index slot cleared")

	// The name is usable again afterwards.
	_, err = m.Create(ctx, "acct", "only")
	assert.NoError(t, err)
}

// TestScanForFreeSlotAndMatch exercises the within-block probe helpers
// directly against a synthetic buffer simulating a collision: two
// distinct names placed back-to-back starting at the same probe slot,
// plus a fully-occupied block to exercise the "full" sentinel.
func TestScanForFreeSlotAndMatch(t *testing.T) {
	buf := make([]byte, wire.BlockSize)

	rec1 := wire.BucketInode{BucketName: "alpha", OnodeVid: 10, DataVid: 11}
	b1, _ := rec1.MarshalBinary()
	copy(buf[wire.BucketSlotOffset(0):], b1)

	rec2 := wire.BucketInode{BucketName: "beta", OnodeVid: 20, DataVid: 21}
	b2, _ := rec2.MarshalBinary()
	copy(buf[wire.BucketSlotOffset(1):], b2)

	slot, full := scanForFreeSlot(buf, 0)
	assert.False(t, full)
	assert.Equal(t, 2, slot)

	found, slotIdx, hole, full := scanForMatch(buf, 0, "alpha")
	assert.False(t, hole)
	assert.False(t, full)
	assert.Equal(t, 0, slotIdx)
	assert.Equal(t, "alpha", found.BucketName)

	found, slotIdx, hole, full = scanForMatch(buf, 0, "beta")
	assert.False(t, hole)
	assert.Equal(t, 1, slotIdx)
	assert.Equal(t, "beta", found.BucketName)

	_, _, hole, full = scanForMatch(buf, 0, "gamma")
	assert.True(t, hole)
	assert.False(t, full)

	fullBuf := make([]byte, wire.BlockSize)
	for s := 0; s < wire.BucketsPerObj; s++ {
		rec := wire.BucketInode{BucketName: "x", OnodeVid: uint32(s + 1), DataVid: uint32(s + 1)}
		b, _ := rec.MarshalBinary()
		copy(fullBuf[wire.BucketSlotOffset(uint32(s)):], b)
	}
	_, full = scanForFreeSlot(fullBuf, 0)
	assert.True(t, full)

	_, _, hole, full = scanForMatch(fullBuf, 0, "not-there")
	assert.False(t, hole)
	assert.True(t, full)
}
