package wire

import (
	"encoding/binary"
	"fmt"
)

// IndexHeader is the header shared by the root (embedded in the inode)
// and by standalone indirect nodes.
type IndexHeader struct {
	Magic   uint16
	Depth   uint16
	Entries uint32
}

// MarshalBinary encodes h as {u16 magic, u16 depth, u32 entries}.
func (h *IndexHeader) MarshalBinary() ([]byte, error) {
	buf := make([]byte, IndexHeaderSize)
	binary.LittleEndian.PutUint16(buf[0:], h.Magic)
	binary.LittleEndian.PutUint16(buf[2:], h.Depth)
	binary.LittleEndian.PutUint32(buf[4:], h.Entries)
	return buf, nil
}

// UnmarshalBinary decodes h from buf.
func (h *IndexHeader) UnmarshalBinary(buf []byte) error {
	if len(buf) < IndexHeaderSize {
		return fmt.Errorf("wire: index header buffer too short: %d < %d", len(buf), IndexHeaderSize)
	}
	h.Magic = binary.LittleEndian.Uint16(buf[0:])
	h.Depth = binary.LittleEndian.Uint16(buf[2:])
	h.Entries = binary.LittleEndian.Uint32(buf[4:])
	return nil
}

// DirectEntry is {u32 idx, u32 vid}: one leaf pointer inside an indirect
// node's body.
type DirectEntry struct {
	Idx uint32
	Vid uint32
}

// MarshalBinary encodes e.
func (e DirectEntry) MarshalBinary() []byte {
	buf := make([]byte, DirectEntrySize)
	binary.LittleEndian.PutUint32(buf[0:], e.Idx)
	binary.LittleEndian.PutUint32(buf[4:], e.Vid)
	return buf
}

// UnmarshalDirectEntry decodes a DirectEntry from buf.
func UnmarshalDirectEntry(buf []byte) DirectEntry {
	return DirectEntry{
		Idx: binary.LittleEndian.Uint32(buf[0:]),
		Vid: binary.LittleEndian.Uint32(buf[4:]),
	}
}

// IndirectEntry is {u32 idx, u64 oid}: one root entry pointing at an
// indirect node that covers block indices up to and including MaxIdx.
type IndirectEntry struct {
	MaxIdx   uint32
	ChildOID uint64
}

// MarshalBinary encodes e.
func (e IndirectEntry) MarshalBinary() []byte {
	buf := make([]byte, IndirectEntrySize)
	binary.LittleEndian.PutUint32(buf[0:], e.MaxIdx)
	binary.LittleEndian.PutUint64(buf[4:], e.ChildOID)
	return buf
}

// UnmarshalIndirectEntry decodes an IndirectEntry from buf.
func UnmarshalIndirectEntry(buf []byte) IndirectEntry {
	return IndirectEntry{
		MaxIdx:   binary.LittleEndian.Uint32(buf[0:]),
		ChildOID: binary.LittleEndian.Uint64(buf[4:]),
	}
}
