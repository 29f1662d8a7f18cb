package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// InodeMeta holds the fixed-size metadata fields of a volume inode: every
// field except the sparse index region and the gref table, which are
// addressed directly against the store (see DirectSlotOffset,
// GrefSlotOffset, RootEntrySlotOffset).
type InodeMeta struct {
	Name         string
	Tag          string
	CreateTime   uint64
	SnapTime     uint64
	VMClockNs    uint64
	VdiSize      uint64
	VMStateSize  uint64
	CopyPolicy   uint8
	StorePolicy  uint8
	NrCopies     uint8
	BlockShift   uint8 // always 22 for data blocks
	SnapID       uint32
	VdiID        uint32
	ParentVdiID  uint32
	ChildVdiID   [nChildVdi]uint32
	BTreeCounter uint32

	// IndexMagic/IndexDepth/IndexEntries are the shared index header:
	// Depth 1 = direct, 2 = via indirect nodes; Entries is the number of
	// valid root entries when Depth == 2.
	IndexMagic   uint16
	IndexDepth   uint16
	IndexEntries uint32
}

func putFixedString(buf []byte, off int, n int, s string) {
	b := make([]byte, n)
	copy(b, s) // truncates s if it doesn't fit; NUL-pads the remainder
	copy(buf[off:off+n], b)
}

func getFixedString(buf []byte, off int, n int) string {
	raw := buf[off : off+n]
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return string(raw)
}

// MarshalBinary encodes the fixed metadata region only (IndexRegionOffset
// bytes), little-endian, at the layout fixed by the offXxx constants.
func (m *InodeMeta) MarshalBinary() ([]byte, error) {
	buf := make([]byte, IndexRegionOffset)

	putFixedString(buf, offName, MaxVdiNameLen, m.Name)
	putFixedString(buf, offTag, MaxVdiNameLen, m.Tag)
	binary.LittleEndian.PutUint64(buf[offCreateTime:], m.CreateTime)
	binary.LittleEndian.PutUint64(buf[offSnapTime:], m.SnapTime)
	binary.LittleEndian.PutUint64(buf[offVMClockNs:], m.VMClockNs)
	binary.LittleEndian.PutUint64(buf[offVdiSize:], m.VdiSize)
	binary.LittleEndian.PutUint64(buf[offVMStateSize:], m.VMStateSize)
	buf[offCopyPolicy] = m.CopyPolicy
	buf[offStorePolicy] = m.StorePolicy
	buf[offNrCopies] = m.NrCopies
	buf[offBlockShift] = m.BlockShift
	binary.LittleEndian.PutUint32(buf[offSnapID:], m.SnapID)
	binary.LittleEndian.PutUint32(buf[offVdiID:], m.VdiID)
	binary.LittleEndian.PutUint32(buf[offParentVdiID:], m.ParentVdiID)
	for i, v := range m.ChildVdiID {
		binary.LittleEndian.PutUint32(buf[offChildVdiID+4*i:], v)
	}
	binary.LittleEndian.PutUint32(buf[offBTreeCtr:], m.BTreeCounter)
	binary.LittleEndian.PutUint16(buf[offIndexMagic:], m.IndexMagic)
	binary.LittleEndian.PutUint16(buf[offIndexDepth:], m.IndexDepth)
	binary.LittleEndian.PutUint32(buf[offIndexEntries:], m.IndexEntries)

	return buf, nil
}

// IndexState is the mutable part of the inode's index header: the
// btree-node counter used to mint fresh indirect-node OIDs, plus the
// shared {magic, depth, entries} header. It is stored contiguously so a
// single partial write/read updates all of it.
type IndexState struct {
	BTreeCounter uint32
	Magic        uint16
	Depth        uint16
	Entries      uint32
}

// IndexStateOffset is the byte offset of IndexState within an inode
// object.
const IndexStateOffset = offBTreeCtr

// IndexStateSize is the encoded size of IndexState.
const IndexStateSize = 4 + 2 + 2 + 4

// MarshalBinary encodes s.
func (s *IndexState) MarshalBinary() ([]byte, error) {
	buf := make([]byte, IndexStateSize)
	binary.LittleEndian.PutUint32(buf[0:], s.BTreeCounter)
	binary.LittleEndian.PutUint16(buf[4:], s.Magic)
	binary.LittleEndian.PutUint16(buf[6:], s.Depth)
	binary.LittleEndian.PutUint32(buf[8:], s.Entries)
	return buf, nil
}

// UnmarshalBinary decodes s from buf.
func (s *IndexState) UnmarshalBinary(buf []byte) error {
	if len(buf) < IndexStateSize {
		return fmt.Errorf("wire: index state buffer too short: %d < %d", len(buf), IndexStateSize)
	}
	s.BTreeCounter = binary.LittleEndian.Uint32(buf[0:])
	s.Magic = binary.LittleEndian.Uint16(buf[4:])
	s.Depth = binary.LittleEndian.Uint16(buf[6:])
	s.Entries = binary.LittleEndian.Uint32(buf[8:])
	return nil
}

// UnmarshalBinary decodes the fixed metadata region produced by
// MarshalBinary. It returns an error if buf is shorter than
// IndexRegionOffset or the magic does not match once the index has been
// initialized (Depth != 0).
func (m *InodeMeta) UnmarshalBinary(buf []byte) error {
	if len(buf) < IndexRegionOffset {
		return fmt.Errorf("wire: inode meta buffer too short: %d < %d", len(buf), IndexRegionOffset)
	}

	m.Name = getFixedString(buf, offName, MaxVdiNameLen)
	m.Tag = getFixedString(buf, offTag, MaxVdiNameLen)
	m.CreateTime = binary.LittleEndian.Uint64(buf[offCreateTime:])
	m.SnapTime = binary.LittleEndian.Uint64(buf[offSnapTime:])
	m.VMClockNs = binary.LittleEndian.Uint64(buf[offVMClockNs:])
	m.VdiSize = binary.LittleEndian.Uint64(buf[offVdiSize:])
	m.VMStateSize = binary.LittleEndian.Uint64(buf[offVMStateSize:])
	m.CopyPolicy = buf[offCopyPolicy]
	m.StorePolicy = buf[offStorePolicy]
	m.NrCopies = buf[offNrCopies]
	m.BlockShift = buf[offBlockShift]
	m.SnapID = binary.LittleEndian.Uint32(buf[offSnapID:])
	m.VdiID = binary.LittleEndian.Uint32(buf[offVdiID:])
	m.ParentVdiID = binary.LittleEndian.Uint32(buf[offParentVdiID:])
	for i := range m.ChildVdiID {
		m.ChildVdiID[i] = binary.LittleEndian.Uint32(buf[offChildVdiID+4*i:])
	}
	m.BTreeCounter = binary.LittleEndian.Uint32(buf[offBTreeCtr:])
	m.IndexMagic = binary.LittleEndian.Uint16(buf[offIndexMagic:])
	m.IndexDepth = binary.LittleEndian.Uint16(buf[offIndexDepth:])
	m.IndexEntries = binary.LittleEndian.Uint32(buf[offIndexEntries:])

	if m.IndexDepth != 0 && m.IndexMagic != IndexMagic {
		return fmt.Errorf("wire: inode index magic %#x, want %#x", m.IndexMagic, IndexMagic)
	}
	return nil
}
