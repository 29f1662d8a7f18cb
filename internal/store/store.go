// Package store declares the ObjectStore capability the gateway core
// consumes. The wire protocol to the backing distributed block-object
// store, cluster membership, replication, and epoch management are all
// out of scope for this repository; this interface is the seam.
package store

import (
	"context"
	"errors"
)

// ErrNoVolume is returned by LookupVolumeByName when no volume with that
// name exists.
var ErrNoVolume = errors.New("store: no such volume")

// CopyPolicy mirrors the backing store's replica placement policy. The
// core never interprets it; it is threaded through to NewVolume verbatim.
type CopyPolicy uint8

// StorePolicy selects how a volume's data is distributed across the
// cluster.
type StorePolicy uint8

const (
	// StorePolicyDefault is an ordinary replicated volume.
	StorePolicyDefault StorePolicy = iota
	// StorePolicyHyper marks a sparse hyper-volume backed by the
	// two-level index; account and bucket volumes use it.
	StorePolicyHyper
)

// ObjectStore is the abstract backing store capability consumed by the
// gateway core. Implementations must guarantee that a successful write
// is durable before the call returns, and that CreateObject is atomic —
// either the object ends up existing with exactly the written body, or
// it does not exist at all.
type ObjectStore interface {
	// LookupVolumeByName resolves a volume name to its VID. Returns
	// ErrNoVolume if no such volume exists.
	LookupVolumeByName(ctx context.Context, name string) (vid uint32, err error)

	// ListVolumeNames returns every live volume's name, for offline
	// tooling (cmd/sheepgate-fsck) that must enumerate accounts and
	// buckets rather than look them up by a name it already knows.
	ListVolumeNames(ctx context.Context) ([]string, error)

	// NewVolume creates a volume of the given logical size and
	// replication policy, returning its assigned VID.
	NewVolume(ctx context.Context, name string, size uint64, nrCopies int, copyPolicy CopyPolicy, storePolicy StorePolicy) (vid uint32, err error)

	// DeleteVolume deletes a volume and every object addressed under its
	// VID. It does not cascade to other volumes.
	DeleteVolume(ctx context.Context, name string) error

	// ReadObject reads into buf starting at offset, returning the number
	// of bytes read. Reading a region that was never written yields
	// zero bytes, not an error.
	ReadObject(ctx context.Context, oid uint64, buf []byte, offset int64) (n int, err error)

	// WriteObject writes buf at offset. If create is true and the
	// object does not yet exist, it is implicitly created (sized to
	// size, the rest left as holes).
	WriteObject(ctx context.Context, oid uint64, buf []byte, offset int64, create bool, size int64) error

	// CreateObject creates oid with exactly the given body. It fails
	// with an error satisfying errors.Is(err, ErrAlreadyExists) if oid
	// already exists.
	CreateObject(ctx context.Context, oid uint64, buf []byte) error

	// DiscardObject deletes a single object (not a whole volume).
	DiscardObject(ctx context.Context, oid uint64) error
}

// ErrAlreadyExists is returned by CreateObject when the OID is already
// live.
var ErrAlreadyExists = errors.New("store: object already exists")
