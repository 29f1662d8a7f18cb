// Package account implements the account layer: an account is one
// hyper-volume whose sparse index (internal/index) tracks which blocks
// of bucket-record space have been formatted, and whose formatted blocks
// hold arrays of wire.BucketInode records.
package account

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sheepgate/sheepgate/internal/clock"
	"github.com/sheepgate/sheepgate/internal/gwerrors"
	"github.com/sheepgate/sheepgate/internal/index"
	"github.com/sheepgate/sheepgate/internal/oid"
	"github.com/sheepgate/sheepgate/internal/store"
	"github.com/sheepgate/sheepgate/internal/wire"
)

// Stats is the result of ReadAccount: the live bucket count plus the
// account's own hyper-volume ID, since a caller resolving stats almost
// always also needs the VID to address the account's other operations.
type Stats struct {
	BucketCount   uint64
	HyperVolumeID uint32
}

// Manager operates the account layer against a backing ObjectStore.
type Manager struct {
	Store store.ObjectStore
	Clock clock.Clock
}

// CreateAccount creates a 16 PiB hyper-volume named name with store-policy
// hyper and formats its inode metadata.
func (m *Manager) CreateAccount(ctx context.Context, name string) (uint32, error) {
	vid, err := m.Store.NewVolume(ctx, name, wire.MaxVdiSize, 1, store.CopyPolicy(0), store.StorePolicyHyper)
	if err != nil {
		return 0, gwerrors.Wrap(gwerrors.AlreadyExists, fmt.Sprintf("create account %q", name), err)
	}

	meta := wire.InodeMeta{
		Name:        name,
		CreateTime:  uint64(m.Clock.Now().UnixNano()),
		VdiSize:     wire.MaxVdiSize,
		StorePolicy: uint8(store.StorePolicyHyper),
		NrCopies:    1,
		BlockShift:  22,
		VdiID:       vid,
	}
	buf, _ := meta.MarshalBinary()
	if err := m.Store.WriteObject(ctx, oid.PackInode(vid), buf, 0, true, int64(wire.InodeSize)); err != nil {
		return 0, gwerrors.Wrap(gwerrors.BackendIO, "format account inode", err)
	}
	return vid, nil
}

// DeleteAccount deletes the account's volume. It does not cascade-delete
// buckets: they hold independent volumes named "account/bucket" and
// "account/bucket/allocator".
func (m *Manager) DeleteAccount(ctx context.Context, name string) error {
	if err := m.Store.DeleteVolume(ctx, name); err != nil {
		return gwerrors.Wrap(gwerrors.NotFound, fmt.Sprintf("delete account %q", name), err)
	}
	return nil
}

func (m *Manager) tree(ctx context.Context, name string) (*index.Tree, uint32, error) {
	vid, err := m.Store.LookupVolumeByName(ctx, name)
	if err != nil {
		return nil, 0, gwerrors.Wrap(gwerrors.NotFound, fmt.Sprintf("lookup account %q", name), err)
	}
	return &index.Tree{Store: m.Store, Vid: vid}, vid, nil
}

// ReadAccount returns the number of non-free BucketInode slots, found by
// walking the index and, for every visited data block, scanning all
// BucketsPerObj slots.
func (m *Manager) ReadAccount(ctx context.Context, name string) (Stats, error) {
	t, vid, err := m.tree(ctx, name)
	if err != nil {
		return Stats{}, err
	}

	var count uint64
	err = t.WalkIndex(ctx, func(blockIdx, blockVid uint32) error {
		_, walkErr := m.scanBlock(ctx, blockVid, blockIdx, func(wire.BucketInode) error {
			count++
			return nil
		})
		return walkErr
	})
	if err != nil {
		return Stats{}, err
	}
	return Stats{BucketCount: count, HyperVolumeID: vid}, nil
}

// ListBuckets walks the same index as ReadAccount, invoking cb for every
// live bucket name.
func (m *Manager) ListBuckets(ctx context.Context, name string, cb func(bucketName string) error) error {
	t, _, err := m.tree(ctx, name)
	if err != nil {
		return err
	}
	return t.WalkIndex(ctx, func(blockIdx, blockVid uint32) error {
		_, err := m.scanBlock(ctx, blockVid, blockIdx, func(b wire.BucketInode) error {
			return cb(b.BucketName)
		})
		return err
	})
}

// ListBucketsConcurrent behaves like ListBuckets but scans each visited
// data block concurrently, bounded by width: scanning one block is
// independent ObjectStore I/O from scanning any other, so an account
// with many formatted blocks names its buckets in parallel instead of
// one block at a time.
func (m *Manager) ListBucketsConcurrent(ctx context.Context, name string, width int64, cb func(bucketName string) error) error {
	t, _, err := m.tree(ctx, name)
	if err != nil {
		return err
	}

	type block struct{ idx, vid uint32 }
	var blocks []block
	if err := t.WalkIndexConcurrent(ctx, width, func(blockIdx, blockVid uint32) error {
		blocks = append(blocks, block{blockIdx, blockVid})
		return nil
	}); err != nil {
		return err
	}

	sem := semaphore.NewWeighted(width)
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for _, b := range blocks {
		b := b
		if err := sem.Acquire(gctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer sem.Release(1)
			var names []string
			if _, err := m.scanBlock(gctx, b.vid, b.idx, func(rec wire.BucketInode) error {
				names = append(names, rec.BucketName)
				return nil
			}); err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, n := range names {
				if err := cb(n); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// scanBlock reads every BucketInode slot of one account data block and
// invokes visit for each slot that is not free. It returns the number of
// live slots found.
func (m *Manager) scanBlock(ctx context.Context, vid, blockIdx uint32, visit func(wire.BucketInode) error) (int, error) {
	buf := make([]byte, wire.BlockSize)
	if _, err := m.Store.ReadObject(ctx, oid.PackData(vid, blockIdx), buf, 0); err != nil {
		return 0, gwerrors.Wrap(gwerrors.BackendIO, "read bucket block", err)
	}
	n := 0
	for slot := 0; slot < wire.BucketsPerObj; slot++ {
		off := wire.BucketSlotOffset(uint32(slot))
		var b wire.BucketInode
		if err := b.UnmarshalBinary(buf[off : off+wire.BucketInodeSize]); err != nil {
			return n, gwerrors.Wrap(gwerrors.Corrupt, "decode bucket inode", err)
		}
		if b.Free() {
			continue
		}
		n++
		if err := visit(b); err != nil {
			return n, err
		}
	}
	return n, nil
}
