package account_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheepgate/sheepgate/internal/account"
	"github.com/sheepgate/sheepgate/internal/bucket"
	"github.com/sheepgate/sheepgate/internal/clock"
	"github.com/sheepgate/sheepgate/internal/store/memstore"
)

func TestCreateAccountThenReadAccountIsEmpty(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	m := &account.Manager{Store: s, Clock: clock.NewFake(time.Unix(0, 0))}

	vid, err := m.CreateAccount(ctx, "coly")
	require.NoError(t, err)
	assert.NotZero(t, vid)

	stats, err := m.ReadAccount(ctx, "coly")
	require.NoError(t, err)
	assert.Zero(t, stats.BucketCount)
	assert.Equal(t, vid, stats.HyperVolumeID)
}

func TestReadAccountCountsBucketsAndListBucketsNamesThem(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	clk := clock.NewFake(time.Unix(0, 0))
	am := &account.Manager{Store: s, Clock: clk}
	bm := &bucket.Manager{Store: s, Clock: clk}

	_, err := am.CreateAccount(ctx, "coly")
	require.NoError(t, err)

	for _, name := range []string{"fruit", "veg", "dairy"} {
		_, err := bm.Create(ctx, "coly", name)
		require.NoError(t, err)
	}

	stats, err := am.ReadAccount(ctx, "coly")
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.BucketCount)

	var names []string
	require.NoError(t, am.ListBuckets(ctx, "coly", func(name string) error {
		names = append(names, name)
		return nil
	}))
	assert.ElementsMatch(t, []string{"fruit", "veg", "dairy"}, names)
}

func TestDeleteAccountRemovesVolume(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	m := &account.Manager{Store: s, Clock: clock.NewFake(time.Unix(0, 0))}

	_, err := m.CreateAccount(ctx, "coly")
	require.NoError(t, err)
	require.NoError(t, m.DeleteAccount(ctx, "coly"))

	_, err = m.ReadAccount(ctx, "coly")
	assert.Error(t, err)
}

func TestListBucketsConcurrentMatchesListBuckets(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	clk := clock.NewFake(time.Unix(0, 0))
	am := &account.Manager{Store: s, Clock: clk}
	bm := &bucket.Manager{Store: s, Clock: clk}

	_, err := am.CreateAccount(ctx, "coly")
	require.NoError(t, err)
	for _, name := range []string{"fruit", "veg", "dairy", "grain"} {
		_, err := bm.Create(ctx, "coly", name)
		require.NoError(t, err)
	}

	var names []string
	var mu sync.Mutex
	require.NoError(t, am.ListBucketsConcurrent(ctx, "coly", 2, func(name string) error {
		mu.Lock()
		defer mu.Unlock()
		names = append(names, name)
		return nil
	}))
	assert.ElementsMatch(t, []string{"fruit", "veg", "dairy", "grain"}, names)
}
