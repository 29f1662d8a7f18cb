package wire

import (
	"encoding/binary"
	"fmt"
)

// BucketInode is the fixed-size record placed at slot i of an account
// hyper-volume's logical block space. OnodeVid == 0 means the slot is
// free.
type BucketInode struct {
	BucketName string
	ObjCount   uint64
	BytesUsed  uint64
	OnodeVid   uint32
	DataVid    uint32
}

// Free reports whether this slot is unoccupied.
func (b *BucketInode) Free() bool { return b.OnodeVid == 0 }

const (
	biOffName      = 0
	biOffObjCount  = MaxBucketNameLen
	biOffBytesUsed = biOffObjCount + 8
	biOffOnodeVid  = biOffBytesUsed + 8
	biOffDataVid   = biOffOnodeVid + 4
)

// MarshalBinary encodes b into a BucketInodeSize buffer, zero-padded.
func (b *BucketInode) MarshalBinary() ([]byte, error) {
	buf := make([]byte, BucketInodeSize)
	putFixedString(buf, biOffName, MaxBucketNameLen, b.BucketName)
	binary.LittleEndian.PutUint64(buf[biOffObjCount:], b.ObjCount)
	binary.LittleEndian.PutUint64(buf[biOffBytesUsed:], b.BytesUsed)
	binary.LittleEndian.PutUint32(buf[biOffOnodeVid:], b.OnodeVid)
	binary.LittleEndian.PutUint32(buf[biOffDataVid:], b.DataVid)
	return buf, nil
}

// UnmarshalBinary decodes b from a BucketInodeSize-or-larger buffer.
func (b *BucketInode) UnmarshalBinary(buf []byte) error {
	if len(buf) < BucketInodeSize {
		return fmt.Errorf("wire: bucket inode buffer too short: %d < %d", len(buf), BucketInodeSize)
	}
	b.BucketName = getFixedString(buf, biOffName, MaxBucketNameLen)
	b.ObjCount = binary.LittleEndian.Uint64(buf[biOffObjCount:])
	b.BytesUsed = binary.LittleEndian.Uint64(buf[biOffBytesUsed:])
	b.OnodeVid = binary.LittleEndian.Uint32(buf[biOffOnodeVid:])
	b.DataVid = binary.LittleEndian.Uint32(buf[biOffDataVid:])
	return nil
}

// BucketSlotOffset returns the byte offset of bucket slot idx within its
// owning data object (idx is the global slot index; callers divide by
// BucketsPerObj to find the object and mod to find the in-object slot).
func BucketSlotOffset(slotInObject uint32) int64 {
	return int64(slotInObject) * BucketInodeSize
}
