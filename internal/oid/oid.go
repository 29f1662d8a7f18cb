// Package oid packs and unpacks the 64-bit object IDs that address every
// record the gateway core persists: data blocks, volume inodes, per-volume
// attributes, indirect index nodes, VM-state blobs, and ledger objects.
//
// Layout (MSB first):
//
//	bit 63       VDI      this OID names a volume's inode
//	bit 62       VMSTATE  VM-state blob
//	bit 61       ATTR     per-volume attribute record
//	bit 60       BTREE    indirect index node
//	bit 59       LEDGER   ledger-format object (overlays data)
//	bits 58..32  VID      24 low bits of 55..32 hold the volume ID
//	bits 31..0   index    block index, or attr/btree sub-id
package oid

import "github.com/sheepgate/sheepgate/internal/wire"

// OID is the flat 64-bit object identifier understood by the backing
// object store.
type OID = uint64

const (
	bitVDI     OID = 1 << 63
	bitVMSTATE OID = 1 << 62
	bitATTR    OID = 1 << 61
	bitBTREE   OID = 1 << 60
	bitLEDGER  OID = 1 << 59

	vidShift     = 32
	vidMask  OID = wire.MaxVolumes - 1 // 24 bits
	idxMask  OID = 0xFFFFFFFF
)

// PackData returns the OID of data block idx within volume vid. A zero
// OID is never returned for a valid (vid, idx) pair since no kind bit is
// set and idx/vid are encoded verbatim; callers must not pass vid == 0
// (reserved: "no volume").
func PackData(vid uint32, idx uint32) OID {
	return (OID(vid&uint32(vidMask)) << vidShift) | OID(idx)
}

// PackInode returns the OID naming vid's volume inode.
func PackInode(vid uint32) OID {
	return bitVDI | (OID(vid&uint32(vidMask)) << vidShift)
}

// PackAttr returns the OID of attribute attrID of volume vid.
func PackAttr(vid uint32, attrID uint32) OID {
	return bitATTR | (OID(vid&uint32(vidMask)) << vidShift) | OID(attrID)
}

// PackBtree returns the OID of indirect index node nodeID belonging to
// volume vid's sparse index tree.
func PackBtree(vid uint32, nodeID uint32) OID {
	return bitBTREE | (OID(vid&uint32(vidMask)) << vidShift) | OID(nodeID)
}

// PackVMState returns the OID of VM-state block idx of volume vid.
func PackVMState(vid uint32, idx uint32) OID {
	return bitVMSTATE | (OID(vid&uint32(vidMask)) << vidShift) | OID(idx)
}

// PackLedger returns the OID of the ledger-format object idx belonging to
// volume vid (used by the extent allocator to persist its free-run list).
func PackLedger(vid uint32, idx uint32) OID {
	return bitLEDGER | (OID(vid&uint32(vidMask)) << vidShift) | OID(idx)
}

// IsInode reports whether o names a volume inode.
func IsInode(o OID) bool { return o&bitVDI != 0 }

// IsVMState reports whether o names a VM-state block.
func IsVMState(o OID) bool { return o&bitVMSTATE != 0 }

// IsAttr reports whether o names a per-volume attribute record.
func IsAttr(o OID) bool { return o&bitATTR != 0 }

// IsBtree reports whether o names an indirect index node.
func IsBtree(o OID) bool { return o&bitBTREE != 0 }

// IsLedger reports whether the ledger bit is set. LEDGER overlays data:
// it never appears in combination with the other kind bits.
func IsLedger(o OID) bool { return o&bitLEDGER != 0 }

// IsData reports whether o names a plain data block of a volume: none of
// VDI, VMSTATE, ATTR, or BTREE is set (LEDGER overlays data and is ignored).
func IsData(o OID) bool {
	return o&(bitVDI|bitVMSTATE|bitATTR|bitBTREE) == 0
}

// ToVid extracts the 24-bit volume ID from bits 55..32.
func ToVid(o OID) uint32 {
	return uint32((o >> vidShift) & vidMask)
}

// DataOidToIdx extracts the low 32 bits: the block index for a data OID,
// or the attr/btree sub-id otherwise.
func DataOidToIdx(o OID) uint32 {
	return uint32(o & idxMask)
}

// ObjectSize returns the canonical on-store byte length for o's kind:
// inode-sized for VDI, attr-record sized for ATTR, indirect-node sized for
// BTREE, BlockSize for everything else (data, vmstate). Never returns 0.
func ObjectSize(o OID) uint64 {
	switch {
	case IsInode(o):
		return wire.InodeSize
	case IsAttr(o):
		return wire.AttrRecordSize
	case IsBtree(o):
		return wire.IndirectNodeSize
	default:
		return wire.BlockSize
	}
}
