package wire

// Volume-inode field layout, little-endian, offsets fixed.
// The inode doubles as the root of its sparse index: once a block index at
// or beyond NDirect is set, the DirectRegion below is reinterpreted as a
// sequence of (max_idx, indirect_oid) root entries. Single-slot reads and
// writes address DirectRegion and GrefRegion by computed byte offset
// directly against the backing ObjectStore, since at full size they are
// multi-megabyte mostly-zero regions; only index.walkDirect reads the
// whole direct region into one buffer.
const (
	offName         = 0
	offTag          = offName + MaxVdiNameLen
	offCreateTime   = offTag + MaxVdiNameLen
	offSnapTime     = offCreateTime + 8
	offVMClockNs    = offSnapTime + 8
	offVdiSize      = offVMClockNs + 8
	offVMStateSize  = offVdiSize + 8
	offCopyPolicy   = offVMStateSize + 8
	offStorePolicy  = offCopyPolicy + 1
	offNrCopies     = offStorePolicy + 1
	offBlockShift   = offNrCopies + 1
	offSnapID       = offBlockShift + 1
	offVdiID        = offSnapID + 4
	offParentVdiID  = offVdiID + 4
	offChildVdiID   = offParentVdiID + 4
	nChildVdi       = 1024
	offBTreeCtr     = offChildVdiID + 4*nChildVdi
	offIndexMagic   = offBTreeCtr + 4
	offIndexDepth   = offIndexMagic + 2
	offIndexEntries = offIndexDepth + 2

	// IndexRegionOffset is where the direct array / root-entry list begins.
	IndexRegionOffset = offIndexEntries + 4

	// IndexRegionSize is NDirect u32 slots reinterpreted as (idx,oid)
	// pairs when the root is promoted to depth 2.
	IndexRegionSize = NDirect * 4

	// GrefRegionOffset is where the per-slot (generation, count) table
	// begins; only meaningful while the inode is in depth-1 form.
	GrefRegionOffset = IndexRegionOffset + IndexRegionSize
	grefEntrySize    = 8
	GrefRegionSize   = NDirect * grefEntrySize

	// InodeSize is the canonical on-store size of a volume inode object.
	InodeSize = GrefRegionOffset + GrefRegionSize

	// AttrRecordSize is the canonical size of a per-volume attribute
	// record: a single block-sized record keeps it independent of any
	// one attribute's shape.
	AttrRecordSize = BlockSize

	// IndirectNodeCapacity is how many (idx, vid) entries fit in one
	// indirect node's body.
	IndirectNodeCapacity = (BlockSize - IndexHeaderSize) / DirectEntrySize

	// IndirectNodeSize is the canonical size of an indirect index node
	// object: header plus a full complement of entries.
	IndirectNodeSize = BlockSize

	// RootEntryCapacity is how many (max_idx, indirect_oid) entries fit
	// in the inode's reinterpreted direct region once depth is 2.
	RootEntryCapacity = IndexRegionSize / IndirectEntrySize
)

// DirectSlotOffset returns the absolute byte offset of direct slot idx
// within a depth-1 inode's direct region: a plain u32 vid array, not the
// {idx,vid} pairs DirectEntrySize sizes for indirect nodes.
func DirectSlotOffset(idx uint32) int64 {
	return int64(IndexRegionOffset) + int64(idx)*4
}

// GrefSlotOffset returns the absolute byte offset of the (generation,
// count) pair for slot idx.
func GrefSlotOffset(idx uint32) int64 {
	return int64(GrefRegionOffset) + int64(idx)*grefEntrySize
}

// RootEntrySlotOffset returns the absolute byte offset of root entry i
// (0-based) within a depth-2 inode's reinterpreted direct region.
func RootEntrySlotOffset(i uint32) int64 {
	return int64(IndexRegionOffset) + int64(i)*IndirectEntrySize
}

// IndirectEntrySlotOffset returns the absolute byte offset of entry i
// (0-based) within an indirect node's body.
func IndirectEntrySlotOffset(i uint32) int64 {
	return int64(IndexHeaderSize) + int64(i)*DirectEntrySize
}
