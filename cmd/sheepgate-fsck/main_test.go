package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheepgate/sheepgate/internal/account"
	"github.com/sheepgate/sheepgate/internal/bucket"
	"github.com/sheepgate/sheepgate/internal/clock"
	"github.com/sheepgate/sheepgate/internal/extent"
	"github.com/sheepgate/sheepgate/internal/object"
	"github.com/sheepgate/sheepgate/internal/oid"
	"github.com/sheepgate/sheepgate/internal/sink/memsink"
	"github.com/sheepgate/sheepgate/internal/store/memstore"
	"github.com/sheepgate/sheepgate/internal/wire"
)

func TestAuditCleanStoreReportsNothing(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	clk := clock.NewFake(time.Unix(0, 0))
	am := &account.Manager{Store: s, Clock: clk}
	bm := &bucket.Manager{Store: s, Clock: clk}

	_, err := am.CreateAccount(ctx, "coly")
	require.NoError(t, err)
	_, err = bm.Create(ctx, "coly", "fruit")
	require.NoError(t, err)

	report, err := Audit(ctx, s)
	require.NoError(t, err)
	assert.Empty(t, report.DanglingChildVolumes)
	assert.Empty(t, report.LeakedExtents)
	assert.Empty(t, report.UnfreedOnodes)
}

func TestAuditFindsDanglingChildVolumeAfterBucketInodeRemovedOutOfBand(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	clk := clock.NewFake(time.Unix(0, 0))
	am := &account.Manager{Store: s, Clock: clk}
	bm := &bucket.Manager{Store: s, Clock: clk}

	_, err := am.CreateAccount(ctx, "coly")
	require.NoError(t, err)
	_, err = bm.Create(ctx, "coly", "fruit")
	require.NoError(t, err)

	// Simulate a bucket whose account-level record no longer refers to
	// it, by deleting only the account and leaving the bucket's own
	// volumes (and their names) behind.
	require.NoError(t, am.DeleteAccount(ctx, "coly"))

	report, err := Audit(ctx, s)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"coly/fruit", "coly/fruit/allocator"}, report.DanglingChildVolumes)
}

func TestAuditFindsLeakedReservedExtent(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	clk := clock.NewFake(time.Unix(0, 0))
	am := &account.Manager{Store: s, Clock: clk}
	bm := &bucket.Manager{Store: s, Clock: clk}

	_, err := am.CreateAccount(ctx, "coly")
	require.NoError(t, err)
	rec, err := bm.Create(ctx, "coly", "fruit")
	require.NoError(t, err)

	// bucket.Create already initialized this allocator's ledger.
	alloc := &extent.Allocator{Store: s, Vid: rec.DataVid}
	reserved, err := alloc.Reserved(ctx)
	require.NoError(t, err)
	require.Empty(t, reserved)
	_, err = alloc.Prepare(ctx, 4) // never Finish()ed: simulates a crashed writer
	require.NoError(t, err)

	report, err := Audit(ctx, s)
	require.NoError(t, err)
	require.Len(t, report.LeakedExtents, 1)
	assert.Equal(t, "coly/fruit/allocator", report.LeakedExtents[0].DataVolume)
	assert.EqualValues(t, 4, report.LeakedExtents[0].Count)
}

func TestAuditFindsUnfreedOnodeAfterCrashBetweenClearAndFree(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	clk := clock.NewFake(time.Unix(0, 0))
	am := &account.Manager{Store: s, Clock: clk}
	bm := &bucket.Manager{Store: s, Clock: clk}
	om := &object.Manager{Store: s, Clock: clk}

	_, err := am.CreateAccount(ctx, "coly")
	require.NoError(t, err)
	rec, err := bm.Create(ctx, "coly", "fruit")
	require.NoError(t, err)

	const size = 10 << 20 // extent-backed: too large to inline
	body := make([]byte, size)
	require.NoError(t, om.Create(ctx, rec.OnodeVid, rec.DataVid, "melon", size, memsink.NewWithBody(body)))

	var idx uint32
	var hdr wire.OnodeHeader
	require.NoError(t, om.ScanOnodes(ctx, rec.OnodeVid, func(i uint32, h wire.OnodeHeader) error {
		if h.Name == "melon" {
			idx, hdr = i, h
		}
		return nil
	}))
	require.NotZero(t, hdr.NrExtent, "melon should be extent-backed")

	// Simulate a crash between Delete's two writes: clear the name but
	// leave the extent table (and the allocator's committed run) alone.
	cleared := hdr
	cleared.Name = ""
	buf, _ := cleared.MarshalBinary()
	require.NoError(t, s.WriteObject(ctx, oid.PackData(rec.OnodeVid, idx), buf, 0, true, int64(wire.BlockSize)))

	report, err := Audit(ctx, s)
	require.NoError(t, err)
	require.Len(t, report.UnfreedOnodes, 1)
	assert.Equal(t, "coly/fruit", report.UnfreedOnodes[0].OnodeVolume)
	assert.Equal(t, idx, report.UnfreedOnodes[0].Index)
	assert.Equal(t, hdr.NrExtent, report.UnfreedOnodes[0].NrExtent)
}
