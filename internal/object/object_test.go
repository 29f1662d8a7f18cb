package object_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheepgate/sheepgate/internal/account"
	"github.com/sheepgate/sheepgate/internal/bucket"
	"github.com/sheepgate/sheepgate/internal/clock"
	"github.com/sheepgate/sheepgate/internal/extent"
	"github.com/sheepgate/sheepgate/internal/gwerrors"
	"github.com/sheepgate/sheepgate/internal/object"
	"github.com/sheepgate/sheepgate/internal/sink"
	"github.com/sheepgate/sheepgate/internal/sink/memsink"
	"github.com/sheepgate/sheepgate/internal/store/memstore"
	"github.com/sheepgate/sheepgate/internal/wire"
)

type fixture struct {
	om                *object.Manager
	onodeVid, dataVid uint32
	ctx               context.Context
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	s := memstore.New()
	clk := clock.NewFake(time.Unix(2000, 0))
	ctx := context.Background()

	am := &account.Manager{Store: s, Clock: clk}
	_, err := am.CreateAccount(ctx, "coly")
	require.NoError(t, err)

	bm := &bucket.Manager{Store: s, Clock: clk}
	rec, err := bm.Create(ctx, "coly", "fruit")
	require.NoError(t, err)

	return fixture{
		om:       &object.Manager{Store: s, Clock: clk},
		onodeVid: rec.OnodeVid,
		dataVid:  rec.DataVid,
		ctx:      ctx,
	}
}

// TestInlineObjectRoundTrip checks an inline body round-trips exactly.
func TestInlineObjectRoundTrip(t *testing.T) {
	f := newFixture(t)
	body := []byte("hello world!")

	require.NoError(t, f.om.Create(f.ctx, f.onodeVid, f.dataVid, "apple", int64(len(body)), memsink.NewWithBody(body)))

	out := memsink.NewWithBody(nil)
	require.NoError(t, f.om.Read(f.ctx, f.onodeVid, "apple", out))
	assert.Equal(t, body, out.Response.Bytes())
	assert.Equal(t, sink.OK, out.Status)
}

// TestExtentObjectRoundTrip checks a body too large to inline: a 10 MiB
// body needs 3 blocks (ceil(10 MiB / 4 MiB) == 3), and the final block
// read clamps to the residual.
func TestExtentObjectRoundTrip(t *testing.T) {
	f := newFixture(t)

	const size = 10 << 20
	body := make([]byte, size)
	for i := range body {
		body[i] = byte(i)
	}

	require.NoError(t, f.om.Create(f.ctx, f.onodeVid, f.dataVid, "pear", size, memsink.NewWithBody(body)))

	out := memsink.NewWithBody(nil)
	require.NoError(t, f.om.Read(f.ctx, f.onodeVid, "pear", out))
	assert.True(t, bytes.Equal(body, out.Response.Bytes()))
	assert.Equal(t, size, out.Response.Len())
}

// TestCreateThenDeleteRestoresFreeSet checks that deleting an
// extent-backed object returns its blocks to the allocator's free list.
func TestCreateThenDeleteRestoresFreeSet(t *testing.T) {
	f := newFixture(t)

	const size = 10 << 20
	body := make([]byte, size)

	require.NoError(t, f.om.Create(f.ctx, f.onodeVid, f.dataVid, "apple", size, memsink.NewWithBody(body)))
	require.NoError(t, f.om.Delete(f.ctx, f.onodeVid, f.dataVid, "apple"))

	out := memsink.NewWithBody(nil)
	err := f.om.Read(f.ctx, f.onodeVid, "apple", out)
	assert.True(t, gwerrors.Is(err, gwerrors.NotFound))

	// The freed run coalesced back into the single initial free run, so a
	// prepare of the allocator's whole initial range succeeds again.
	alloc := &extent.Allocator{Store: f.om.Store, Vid: f.dataVid}
	_, err = alloc.Prepare(f.ctx, wire.MaxBlocks-1)
	assert.NoError(t, err)
}

func TestUpdateIsDeleteThenCreate(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.om.Create(f.ctx, f.onodeVid, f.dataVid, "apple", 5, memsink.NewWithBody([]byte("first"))))
	require.NoError(t, f.om.Update(f.ctx, f.onodeVid, f.dataVid, "apple", 6, memsink.NewWithBody([]byte("second"))))

	out := memsink.NewWithBody(nil)
	require.NoError(t, f.om.Read(f.ctx, f.onodeVid, "apple", out))
	assert.Equal(t, "second", out.Response.String())
}

func TestListObjectsEnumeratesLiveNames(t *testing.T) {
	f := newFixture(t)

	for _, name := range []string{"apple", "pear", "plum"} {
		require.NoError(t, f.om.Create(f.ctx, f.onodeVid, f.dataVid, name, 4, memsink.NewWithBody([]byte("body"))))
	}

	var names []string
	require.NoError(t, f.om.ListObjects(f.ctx, f.onodeVid, func(name string) error {
		names = append(names, name)
		return nil
	}))
	assert.ElementsMatch(t, []string{"apple", "pear", "plum"}, names)
}

func TestListObjectsConcurrentMatchesListObjects(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"apple", "pear", "plum", "fig"} {
		require.NoError(t, f.om.Create(f.ctx, f.onodeVid, f.dataVid, name, 4, memsink.NewWithBody([]byte("body"))))
	}

	var names []string
	var mu sync.Mutex
	require.NoError(t, f.om.ListObjectsConcurrent(f.ctx, f.onodeVid, 2, func(name string) error {
		mu.Lock()
		defer mu.Unlock()
		names = append(names, name)
		return nil
	}))
	assert.ElementsMatch(t, []string{"apple", "pear", "plum", "fig"}, names)
}
