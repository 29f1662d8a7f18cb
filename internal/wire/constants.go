// Package wire defines the bit-exact on-disk binary layout shared by the
// inode, sparse index, bucket-inode, and onode records.
package wire

const (
	// BlockSize is the size of a data block: 4 MiB.
	BlockSize = 4 << 20

	// NDirect is the number of direct data_vdi_id slots carried inline in an
	// inode: 2^20.
	NDirect = 1 << 20

	// MaxBlocks is the number of block indices a hyper-volume can address:
	// 2^32 (indices 0 through 2^32-1).
	MaxBlocks = 1 << 32

	// MaxVolumes is the size of the flat VID namespace: 2^24.
	MaxVolumes = 1 << 24

	// MaxVdiSize is the largest logical volume size: 16 PiB.
	MaxVdiSize = uint64(MaxBlocks) * BlockSize

	// MaxVdiNameLen is the maximum length of a volume name, NUL-terminated.
	MaxVdiNameLen = 256

	// MaxBucketNameLen bounds a bucket name; chosen to keep BucketInode a
	// clean power-of-two size.
	MaxBucketNameLen = 128

	// MaxObjectNameLen bounds an object name within a bucket.
	MaxObjectNameLen = 1024

	// BucketInodeSize is fixed at 2 * MaxBucketNameLen so that BLOCK_SIZE is
	// an exact multiple.
	BucketInodeSize = 2 * MaxBucketNameLen

	// BucketsPerObj is the number of BucketInode slots packed into one
	// 4 MiB data object.
	BucketsPerObj = BlockSize / BucketInodeSize

	// MaxBuckets is the number of open-addressed slots across an account's
	// entire hyper-volume.
	MaxBuckets = MaxVdiSize / BucketInodeSize

	// OnodeHeaderSize is the fixed, padded size of an Onode header.
	OnodeHeaderSize = 4096

	// InlineCap is the largest object body that can be stored inline in an
	// onode rather than as extents.
	InlineCap = BlockSize - OnodeHeaderSize

	// IndexMagic identifies a valid index header (root or indirect node).
	IndexMagic = 0x6274

	// DepthLeaf (1) marks a node whose entries point directly at data
	// blocks: the inode's own legacy inline form, or any indirect node.
	DepthLeaf = 1

	// DepthInternal (2) marks the inode once promoted: its entries point
	// at indirect nodes rather than at data directly.
	DepthInternal = 2

	// IndexHeaderSize is {u16 magic, u16 depth, u32 entries}.
	IndexHeaderSize = 2 + 2 + 4

	// DirectEntrySize is {u32 idx, u32 vid} as used inside indirect nodes
	// (a depth-1 inode's direct region is a plain u32 vid array instead).
	DirectEntrySize = 4 + 4

	// IndirectEntrySize is {u32 idx, u64 oid} as used inside a depth-2
	// root's entry list.
	IndirectEntrySize = 4 + 8
)
