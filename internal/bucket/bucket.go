// Package bucket implements open-addressed bucket placement inside an
// account's hyper-volume: insertion probe, lookup, and deletion of
// wire.BucketInode records, plus creation/teardown of each bucket's two
// child hyper-volumes (its onode volume and its data volume).
package bucket

import (
	"context"
	"fmt"

	"github.com/sheepgate/sheepgate/internal/clock"
	"github.com/sheepgate/sheepgate/internal/extent"
	"github.com/sheepgate/sheepgate/internal/gwerrors"
	"github.com/sheepgate/sheepgate/internal/hashutil"
	"github.com/sheepgate/sheepgate/internal/index"
	"github.com/sheepgate/sheepgate/internal/oid"
	"github.com/sheepgate/sheepgate/internal/store"
	"github.com/sheepgate/sheepgate/internal/wire"
)

// Manager operates bucket placement against a backing ObjectStore.
type Manager struct {
	Store store.ObjectStore
	Clock clock.Clock
}

// Record is a resolved bucket: its metadata plus the VIDs of its two
// child hyper-volumes.
type Record struct {
	wire.BucketInode
	Slot uint64
}

func childOnodeName(account, bucket string) string { return account + "/" + bucket }
func childDataName(account, bucket string) string  { return account + "/" + bucket + "/allocator" }

// Create runs the insertion probe for bucket name B inside account:
// h = sd_hash(B); for i in 0..MAX_BUCKETS: idx = (h+i) mod MAX_BUCKETS,
// scanning forward within the covering data object for a free slot. A
// data object with no free slot from the probe position onward makes the
// probe skip ahead to the first slot of the next data object, preserving
// the open-addressing invariant.
func (m *Manager) Create(ctx context.Context, account, bucketName string) (Record, error) {
	accountVid, err := m.Store.LookupVolumeByName(ctx, account)
	if err != nil {
		return Record{}, gwerrors.Wrap(gwerrors.NotFound, fmt.Sprintf("lookup account %q", account), err)
	}

	if _, _, err := m.lookup(ctx, accountVid, bucketName); err == nil {
		return Record{}, gwerrors.New(gwerrors.AlreadyExists, fmt.Sprintf("bucket %q already exists", bucketName))
	} else if gwerrors.CodeOf(err) != gwerrors.NotFound {
		return Record{}, err
	}

	t := &index.Tree{Store: m.Store, Vid: accountVid}
	h := uint64(hashutil.SdHash([]byte(bucketName)))

	for i := uint64(0); i < wire.MaxBuckets; {
		idx := (h + i) % wire.MaxBuckets
		blockIdx := uint32(idx / wire.BucketsPerObj)
		startSlot := int(idx % wire.BucketsPerObj)

		buf, err := m.readBlock(ctx, t, accountVid, blockIdx)
		if err != nil {
			return Record{}, err
		}

		slot, full := scanForFreeSlot(buf, startSlot)
		if full {
			i += wire.BucketsPerObj - uint64(startSlot)
			continue
		}

		onodeVid, dataVid, err := m.formatChildVolumes(ctx, account, bucketName)
		if err != nil {
			return Record{}, err
		}

		rec := wire.BucketInode{BucketName: bucketName, OnodeVid: onodeVid, DataVid: dataVid}
		recBuf, _ := rec.MarshalBinary()
		off := wire.BucketSlotOffset(uint32(slot))
		if err := m.Store.WriteObject(ctx, oid.PackData(accountVid, blockIdx), recBuf, off, true, int64(wire.BlockSize)); err != nil {
			return Record{}, gwerrors.Wrap(gwerrors.BackendIO, "write bucket record", err)
		}
		if err := t.SetVid(ctx, blockIdx, accountVid); err != nil {
			return Record{}, err
		}

		return Record{BucketInode: rec, Slot: uint64(blockIdx)*wire.BucketsPerObj + uint64(slot)}, nil
	}

	return Record{}, gwerrors.New(gwerrors.NoSpace, "bucket probe exhausted")
}

func (m *Manager) formatChildVolumes(ctx context.Context, account, bucketName string) (onodeVid, dataVid uint32, err error) {
	onodeVid, err = m.Store.NewVolume(ctx, childOnodeName(account, bucketName), wire.MaxVdiSize, 1, 0, store.StorePolicyHyper)
	if err != nil {
		return 0, 0, gwerrors.Wrap(gwerrors.BackendIO, "create bucket onode volume", err)
	}
	onodeMeta := wire.InodeMeta{Name: childOnodeName(account, bucketName), VdiSize: wire.MaxVdiSize, VdiID: onodeVid, BlockShift: 22, CreateTime: uint64(m.Clock.Now().UnixNano())}
	onodeBuf, _ := onodeMeta.MarshalBinary()
	if err := m.Store.WriteObject(ctx, oid.PackInode(onodeVid), onodeBuf, 0, true, int64(wire.InodeSize)); err != nil {
		return 0, 0, gwerrors.Wrap(gwerrors.BackendIO, "format bucket onode inode", err)
	}

	dataVid, err = m.Store.NewVolume(ctx, childDataName(account, bucketName), wire.MaxVdiSize, 1, 0, store.StorePolicyHyper)
	if err != nil {
		return 0, 0, gwerrors.Wrap(gwerrors.BackendIO, "create bucket data volume", err)
	}
	dataMeta := wire.InodeMeta{Name: childDataName(account, bucketName), VdiSize: wire.MaxVdiSize, VdiID: dataVid, BlockShift: 22, CreateTime: uint64(m.Clock.Now().UnixNano())}
	dataBuf, _ := dataMeta.MarshalBinary()
	if err := m.Store.WriteObject(ctx, oid.PackInode(dataVid), dataBuf, 0, true, int64(wire.InodeSize)); err != nil {
		return 0, 0, gwerrors.Wrap(gwerrors.BackendIO, "format bucket data inode", err)
	}

	alloc := &extent.Allocator{Store: m.Store, Vid: dataVid}
	if err := alloc.Init(ctx, wire.MaxBlocks-1); err != nil {
		return 0, 0, err
	}

	return onodeVid, dataVid, nil
}

// Lookup resolves bucket name via the same probe sequence used by Create.
func (m *Manager) Lookup(ctx context.Context, account, bucketName string) (Record, error) {
	accountVid, err := m.Store.LookupVolumeByName(ctx, account)
	if err != nil {
		return Record{}, gwerrors.Wrap(gwerrors.NotFound, fmt.Sprintf("lookup account %q", account), err)
	}
	rec, slot, err := m.lookup(ctx, accountVid, bucketName)
	if err != nil {
		return Record{}, err
	}
	return Record{BucketInode: rec, Slot: slot}, nil
}

func (m *Manager) lookup(ctx context.Context, accountVid uint32, bucketName string) (wire.BucketInode, uint64, error) {
	t := &index.Tree{Store: m.Store, Vid: accountVid}
	h := uint64(hashutil.SdHash([]byte(bucketName)))

	for i := uint64(0); i < wire.MaxBuckets; {
		idx := (h + i) % wire.MaxBuckets
		blockIdx := uint32(idx / wire.BucketsPerObj)
		startSlot := int(idx % wire.BucketsPerObj)

		buf, err := m.readBlock(ctx, t, accountVid, blockIdx)
		if err != nil {
			return wire.BucketInode{}, 0, err
		}

		rec, slot, hole, full := scanForMatch(buf, startSlot, bucketName)
		switch {
		case slot >= 0 && !hole:
			return rec, uint64(blockIdx)*wire.BucketsPerObj + uint64(slot), nil
		case hole:
			return wire.BucketInode{}, 0, gwerrors.New(gwerrors.NotFound, fmt.Sprintf("bucket %q not found", bucketName))
		case full:
			i += wire.BucketsPerObj - uint64(startSlot)
		default:
			i++
		}
	}
	return wire.BucketInode{}, 0, gwerrors.New(gwerrors.NotFound, fmt.Sprintf("bucket %q not found", bucketName))
}

// Delete probes for bucketName and, on a match, clears the slot and
// deletes both child volumes. If the covering data object
// becomes entirely free, the whole object is discarded and the account
// index slot is cleared.
func (m *Manager) Delete(ctx context.Context, account, bucketName string) error {
	accountVid, err := m.Store.LookupVolumeByName(ctx, account)
	if err != nil {
		return gwerrors.Wrap(gwerrors.NotFound, fmt.Sprintf("lookup account %q", account), err)
	}

	rec, slot, err := m.lookup(ctx, accountVid, bucketName)
	if err != nil {
		return err
	}

	blockIdx := uint32(slot / wire.BucketsPerObj)
	slotInBlock := uint32(slot % wire.BucketsPerObj)

	if err := m.Store.DeleteVolume(ctx, childOnodeName(account, bucketName)); err != nil {
		return gwerrors.Wrap(gwerrors.BackendIO, "delete bucket onode volume", err)
	}
	if err := m.Store.DeleteVolume(ctx, childDataName(account, bucketName)); err != nil {
		return gwerrors.Wrap(gwerrors.BackendIO, "delete bucket data volume", err)
	}

	buf, err := m.readBlock(ctx, &index.Tree{Store: m.Store, Vid: accountVid}, accountVid, blockIdx)
	if err != nil {
		return err
	}

	freeCount := 0
	for s := 0; s < wire.BucketsPerObj; s++ {
		if s == int(slotInBlock) {
			freeCount++
			continue
		}
		off := wire.BucketSlotOffset(uint32(s))
		var b wire.BucketInode
		if err := b.UnmarshalBinary(buf[off : off+wire.BucketInodeSize]); err != nil {
			return gwerrors.Wrap(gwerrors.Corrupt, "decode bucket inode", err)
		}
		if b.Free() {
			freeCount++
		}
	}

	if freeCount == wire.BucketsPerObj {
		// The bucket being deleted was the last inhabitant of this data
		// object: discard the whole object and clear the account index
		// slot, rather than leave a wholly-free object allocated.
		if err := m.Store.DiscardObject(ctx, oid.PackData(accountVid, blockIdx)); err != nil {
			return gwerrors.Wrap(gwerrors.BackendIO, "discard bucket data object", err)
		}
		t := &index.Tree{Store: m.Store, Vid: accountVid}
		return t.SetVid(ctx, blockIdx, 0)
	}

	// Otherwise write back only the cleared slot, at its own offset (NOT
	// any stray loop index — see the Open Question this resolves).
	zero := wire.BucketInode{}
	zeroBuf, _ := zero.MarshalBinary()
	off := wire.BucketSlotOffset(slotInBlock)
	if err := m.Store.WriteObject(ctx, oid.PackData(accountVid, blockIdx), zeroBuf, off, true, int64(wire.BlockSize)); err != nil {
		return gwerrors.Wrap(gwerrors.BackendIO, "clear bucket record", err)
	}
	_ = rec
	return nil
}

// readBlock returns the full data-object buffer backing blockIdx, treating
// an unformatted (hole) block as all-free rather than an error.
func (m *Manager) readBlock(ctx context.Context, t *index.Tree, accountVid, blockIdx uint32) ([]byte, error) {
	buf := make([]byte, wire.BlockSize)
	vid, err := t.GetVid(ctx, blockIdx)
	if err != nil {
		return nil, err
	}
	if vid == 0 {
		return buf, nil // never formatted: every slot reads as free
	}
	if _, err := m.Store.ReadObject(ctx, oid.PackData(accountVid, blockIdx), buf, 0); err != nil {
		return nil, gwerrors.Wrap(gwerrors.BackendIO, "read bucket block", err)
	}
	return buf, nil
}

// scanForFreeSlot scans buf's BucketInode slots forward from startSlot,
// returning the first free slot found. If every slot from startSlot to
// the end of the object is occupied, full is true and the caller's
// probe advances to the first slot of the next data object.
func scanForFreeSlot(buf []byte, startSlot int) (slot int, full bool) {
	for s := startSlot; s < wire.BucketsPerObj; s++ {
		off := wire.BucketSlotOffset(uint32(s))
		var b wire.BucketInode
		_ = b.UnmarshalBinary(buf[off : off+wire.BucketInodeSize])
		if b.Free() {
			return s, false
		}
	}
	return 0, true
}

// scanForMatch mirrors scanForFreeSlot's forward scan, looking for a name
// match instead of a free slot. Encountering a free slot before any match
// means the name was never inserted along this probe sequence (hole=true);
// scanning to the end of the object without a match or a hole means it is
// entirely occupied by other names (full=true), and the probe should skip
// ahead exactly as Create's insertion probe does.
func scanForMatch(buf []byte, startSlot int, name string) (rec wire.BucketInode, slot int, hole bool, full bool) {
	for s := startSlot; s < wire.BucketsPerObj; s++ {
		off := wire.BucketSlotOffset(uint32(s))
		var b wire.BucketInode
		_ = b.UnmarshalBinary(buf[off : off+wire.BucketInodeSize])
		if b.Free() {
			return wire.BucketInode{}, -1, true, false
		}
		if b.BucketName == name {
			return b, s, false, false
		}
	}
	return wire.BucketInode{}, -1, false, true
}
