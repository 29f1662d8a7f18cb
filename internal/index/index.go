// Package index implements the volume inode's two-level sparse index:
// get/set of a block index's owning VID, structural growth from the
// inline direct form to an indirect-node-backed tree, and a leaf-ordered
// walk used by account and bucket listing.
package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sheepgate/sheepgate/internal/gwerrors"
	"github.com/sheepgate/sheepgate/internal/oid"
	"github.com/sheepgate/sheepgate/internal/store"
	"github.com/sheepgate/sheepgate/internal/wire"
)

// Tree operates the sparse index of the volume identified by Vid.
type Tree struct {
	Store store.ObjectStore
	Vid   uint32
}

func (t *Tree) inodeOID() uint64 { return oid.PackInode(t.Vid) }

func (t *Tree) readState(ctx context.Context) (wire.IndexState, error) {
	buf := make([]byte, wire.IndexStateSize)
	if _, err := t.Store.ReadObject(ctx, t.inodeOID(), buf, wire.IndexStateOffset); err != nil {
		return wire.IndexState{}, gwerrors.Wrap(gwerrors.BackendIO, "read index state", err)
	}
	var s wire.IndexState
	if err := s.UnmarshalBinary(buf); err != nil {
		return wire.IndexState{}, gwerrors.Wrap(gwerrors.Corrupt, "decode index state", err)
	}
	if s.Magic == 0 {
		// Never initialized: legacy inline form with no entries yet.
		s.Magic = wire.IndexMagic
		s.Depth = wire.DepthLeaf
	}
	if s.Magic != wire.IndexMagic {
		return wire.IndexState{}, gwerrors.New(gwerrors.Corrupt, fmt.Sprintf("bad index magic %#x", s.Magic))
	}
	return s, nil
}

func (t *Tree) writeState(ctx context.Context, s wire.IndexState) error {
	buf, _ := s.MarshalBinary()
	if err := t.Store.WriteObject(ctx, t.inodeOID(), buf, wire.IndexStateOffset, true, int64(wire.InodeSize)); err != nil {
		return gwerrors.Wrap(gwerrors.BackendIO, "write index state", err)
	}
	return nil
}

// GetVid returns the VID that owns block idx, or 0 if that block is a
// hole.
func (t *Tree) GetVid(ctx context.Context, idx uint32) (uint32, error) {
	s, err := t.readState(ctx)
	if err != nil {
		return 0, err
	}

	if s.Depth == wire.DepthLeaf {
		buf := make([]byte, 4)
		if _, err := t.Store.ReadObject(ctx, t.inodeOID(), buf, wire.DirectSlotOffset(idx)); err != nil {
			return 0, gwerrors.Wrap(gwerrors.BackendIO, "read direct slot", err)
		}
		return leU32(buf), nil
	}

	root, err := t.readRootEntries(ctx, s.Entries)
	if err != nil {
		return 0, err
	}
	i := sort.Search(len(root), func(i int) bool { return root[i].MaxIdx >= idx })
	if i == len(root) {
		return 0, nil // beyond every covered range: hole
	}

	entries, err := t.readNodeEntries(ctx, root[i].ChildOID)
	if err != nil {
		return 0, err
	}
	j := sort.Search(len(entries), func(j int) bool { return entries[j].Idx >= idx })
	if j == len(entries) || entries[j].Idx != idx {
		return 0, nil
	}
	return entries[j].Vid, nil
}

// SetVid assigns idx to vid, promoting the index from its legacy inline
// form to an indirect-node-backed tree if idx does not fit in the direct
// region, and splitting indirect nodes as they fill. Re-setting idx to
// its current value is a no-op that still bumps persistence.
func (t *Tree) SetVid(ctx context.Context, idx uint32, vid uint32) error {
	s, err := t.readState(ctx)
	if err != nil {
		return err
	}

	if s.Depth == wire.DepthLeaf && idx < wire.NDirect {
		buf := encodeLEU32(vid)
		if err := t.Store.WriteObject(ctx, t.inodeOID(), buf, wire.DirectSlotOffset(idx), true, int64(wire.InodeSize)); err != nil {
			return gwerrors.Wrap(gwerrors.BackendIO, "write direct slot", err)
		}
		return t.writeState(ctx, s) // bump persistence, per tie-break
	}

	if s.Depth == wire.DepthLeaf {
		if err := t.promote(ctx, &s); err != nil {
			return err
		}
	}

	return t.setVidInternal(ctx, &s, idx, vid)
}

// promote converts the inode from its legacy inline direct form to a
// depth-2 tree with a single indirect node holding every currently
// non-zero (idx, vid) pair.
func (t *Tree) promote(ctx context.Context, s *wire.IndexState) error {
	var entries []wire.DirectEntry
	if err := t.walkDirect(ctx, func(idx, vid uint32) error {
		entries = append(entries, wire.DirectEntry{Idx: idx, Vid: vid})
		return nil
	}); err != nil {
		return err
	}

	childOID := oid.PackBtree(t.Vid, s.BTreeCounter)
	s.BTreeCounter++

	if err := t.writeNode(ctx, childOID, entries, true); err != nil {
		return err
	}

	maxIdx := uint32(wire.NDirect - 1)
	if len(entries) > 0 {
		last := entries[len(entries)-1].Idx
		if last > maxIdx {
			maxIdx = last
		}
	}
	root := []wire.IndirectEntry{{MaxIdx: maxIdx, ChildOID: childOID}}
	s.Depth = wire.DepthInternal
	s.Entries = uint32(len(root))

	// Indirect node is persisted before the inode/root so a crash
	// between the two leaves, at worst, an unreferenced indirect node
	// rather than a root that claims depth 2 with no backing node.
	if err := t.writeRootEntries(ctx, root); err != nil {
		return err
	}
	return t.writeState(ctx, *s)
}

// setVidInternal inserts/updates (idx, vid) once the tree is at depth 2,
// splitting the covering indirect node if it is full and idx is new.
func (t *Tree) setVidInternal(ctx context.Context, s *wire.IndexState, idx uint32, vid uint32) error {
	root, err := t.readRootEntries(ctx, s.Entries)
	if err != nil {
		return err
	}

	i := sort.Search(len(root), func(i int) bool { return root[i].MaxIdx >= idx })
	if i == len(root) {
		// Beyond every existing range: allocate a fresh indirect node
		// dedicated to this entry.
		childOID := oid.PackBtree(t.Vid, s.BTreeCounter)
		s.BTreeCounter++
		if err := t.writeNode(ctx, childOID, []wire.DirectEntry{{Idx: idx, Vid: vid}}, true); err != nil {
			return err
		}
		root = append(root, wire.IndirectEntry{MaxIdx: idx, ChildOID: childOID})
		s.Entries = uint32(len(root))
		if err := t.writeRootEntries(ctx, root); err != nil {
			return err
		}
		return t.writeState(ctx, *s)
	}

	entries, err := t.readNodeEntries(ctx, root[i].ChildOID)
	if err != nil {
		return err
	}

	j := sort.Search(len(entries), func(j int) bool { return entries[j].Idx >= idx })
	switch {
	case j < len(entries) && entries[j].Idx == idx:
		entries[j].Vid = vid
		return t.writeNode(ctx, root[i].ChildOID, entries, false)

	case len(entries) < wire.IndirectNodeCapacity:
		entries = append(entries, wire.DirectEntry{})
		copy(entries[j+1:], entries[j:len(entries)-1])
		entries[j] = wire.DirectEntry{Idx: idx, Vid: vid}
		if idx > root[i].MaxIdx {
			root[i].MaxIdx = idx
			if err := t.writeRootEntries(ctx, root); err != nil {
				return err
			}
		}
		return t.writeNode(ctx, root[i].ChildOID, entries, false)

	default:
		// Node is full: split it in half and retry.
		if err := t.splitNode(ctx, s, i, root, entries); err != nil {
			return err
		}
		return t.setVidInternal(ctx, s, idx, vid)
	}
}

// splitNode divides a full indirect node at position i of root into two,
// inserting the new node's root entry next to the original.
func (t *Tree) splitNode(ctx context.Context, s *wire.IndexState, i int, root []wire.IndirectEntry, entries []wire.DirectEntry) error {
	mid := len(entries) / 2
	lower := entries[:mid]
	upper := entries[mid:]

	newOID := oid.PackBtree(t.Vid, s.BTreeCounter)
	s.BTreeCounter++

	if err := t.writeNode(ctx, newOID, upper, true); err != nil {
		return err
	}
	if err := t.writeNode(ctx, root[i].ChildOID, lower, false); err != nil {
		return err
	}

	newRoot := make([]wire.IndirectEntry, 0, len(root)+1)
	newRoot = append(newRoot, root[:i]...)
	newRoot = append(newRoot, wire.IndirectEntry{MaxIdx: lower[len(lower)-1].Idx, ChildOID: root[i].ChildOID})
	newRoot = append(newRoot, wire.IndirectEntry{MaxIdx: root[i].MaxIdx, ChildOID: newOID})
	newRoot = append(newRoot, root[i+1:]...)

	s.Entries = uint32(len(newRoot))
	if err := t.writeRootEntries(ctx, newRoot); err != nil {
		return err
	}
	return t.writeState(ctx, *s)
}

// SetVidRange assigns vid to every block index in [start, end] inclusive.
// Used to format a freshly created hyper-volume.
func (t *Tree) SetVidRange(ctx context.Context, start, end uint32, vid uint32) error {
	for i := start; ; i++ {
		if err := t.SetVid(ctx, i, vid); err != nil {
			return err
		}
		if i == end {
			return nil
		}
	}
}

// WalkIndex visits every (idx, vid) pair with vid != 0, in ascending idx,
// flattening through any indirect nodes so callers only ever see leaves.
func (t *Tree) WalkIndex(ctx context.Context, visit func(idx uint32, vid uint32) error) error {
	s, err := t.readState(ctx)
	if err != nil {
		return err
	}

	if s.Depth == wire.DepthLeaf {
		return t.walkDirect(ctx, visit)
	}

	root, err := t.readRootEntries(ctx, s.Entries)
	if err != nil {
		return err
	}
	for _, re := range root {
		entries, err := t.readNodeEntries(ctx, re.ChildOID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Vid == 0 {
				continue
			}
			if err := visit(e.Idx, e.Vid); err != nil {
				return err
			}
		}
	}
	return nil
}

// WalkIndexConcurrent behaves like WalkIndex but, for a depth-2 tree,
// fetches each indirect node's children concurrently (an indirect node's
// children live at independent OIDs, so their reads are independent
// store I/O), bounded by a semaphore of the given width. visit is always
// invoked from a single goroutine at a time and sees each node's entries
// in ascending order, but the nodes themselves in whatever order their
// reads complete, unlike WalkIndex's strictly ascending guarantee.
func (t *Tree) WalkIndexConcurrent(ctx context.Context, width int64, visit func(idx uint32, vid uint32) error) error {
	s, err := t.readState(ctx)
	if err != nil {
		return err
	}
	if s.Depth == wire.DepthLeaf {
		return t.walkDirect(ctx, visit)
	}

	root, err := t.readRootEntries(ctx, s.Entries)
	if err != nil {
		return err
	}

	sem := semaphore.NewWeighted(width)
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	for _, re := range root {
		re := re
		if err := sem.Acquire(gctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer sem.Release(1)
			entries, err := t.readNodeEntries(gctx, re.ChildOID)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, e := range entries {
				if e.Vid == 0 {
					continue
				}
				if err := visit(e.Idx, e.Vid); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// walkDirect scans the full direct region of a depth-1 inode for non-zero
// slots. This is the one place the core reads the multi-megabyte direct
// region in bulk, since enumerating a direct-form inode's entries has no
// cheaper path than scanning the whole array.
func (t *Tree) walkDirect(ctx context.Context, visit func(idx uint32, vid uint32) error) error {
	buf := make([]byte, wire.IndexRegionSize)
	if _, err := t.Store.ReadObject(ctx, t.inodeOID(), buf, int64(wire.IndexRegionOffset)); err != nil {
		return gwerrors.Wrap(gwerrors.BackendIO, "read direct region", err)
	}
	for idx := uint32(0); idx < wire.NDirect; idx++ {
		v := leU32(buf[idx*4:])
		if v == 0 {
			continue
		}
		if err := visit(idx, v); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) readRootEntries(ctx context.Context, count uint32) ([]wire.IndirectEntry, error) {
	if count == 0 {
		return nil, nil
	}
	buf := make([]byte, int(count)*wire.IndirectEntrySize)
	if _, err := t.Store.ReadObject(ctx, t.inodeOID(), buf, int64(wire.IndexRegionOffset)); err != nil {
		return nil, gwerrors.Wrap(gwerrors.BackendIO, "read root entries", err)
	}
	out := make([]wire.IndirectEntry, count)
	for i := range out {
		out[i] = wire.UnmarshalIndirectEntry(buf[i*wire.IndirectEntrySize:])
	}
	return out, nil
}

func (t *Tree) writeRootEntries(ctx context.Context, entries []wire.IndirectEntry) error {
	buf := make([]byte, len(entries)*wire.IndirectEntrySize)
	for i, e := range entries {
		copy(buf[i*wire.IndirectEntrySize:], e.MarshalBinary())
	}
	if err := t.Store.WriteObject(ctx, t.inodeOID(), buf, int64(wire.IndexRegionOffset), true, int64(wire.InodeSize)); err != nil {
		return gwerrors.Wrap(gwerrors.BackendIO, "write root entries", err)
	}
	return nil
}

func (t *Tree) readNodeEntries(ctx context.Context, nodeOID uint64) ([]wire.DirectEntry, error) {
	hbuf := make([]byte, wire.IndexHeaderSize)
	if _, err := t.Store.ReadObject(ctx, nodeOID, hbuf, 0); err != nil {
		return nil, gwerrors.Wrap(gwerrors.BackendIO, "read indirect node header", err)
	}
	var h wire.IndexHeader
	if err := h.UnmarshalBinary(hbuf); err != nil {
		return nil, gwerrors.Wrap(gwerrors.Corrupt, "decode indirect node header", err)
	}
	if h.Magic != wire.IndexMagic {
		return nil, gwerrors.New(gwerrors.Corrupt, fmt.Sprintf("bad indirect node magic %#x", h.Magic))
	}
	if h.Depth != wire.DepthLeaf {
		return nil, gwerrors.New(gwerrors.Corrupt, fmt.Sprintf("impossible indirect node depth %d", h.Depth))
	}

	if h.Entries == 0 {
		return nil, nil
	}
	buf := make([]byte, int(h.Entries)*wire.DirectEntrySize)
	if _, err := t.Store.ReadObject(ctx, nodeOID, buf, int64(wire.IndexHeaderSize)); err != nil {
		return nil, gwerrors.Wrap(gwerrors.BackendIO, "read indirect node entries", err)
	}
	out := make([]wire.DirectEntry, h.Entries)
	for i := range out {
		out[i] = wire.UnmarshalDirectEntry(buf[i*wire.DirectEntrySize:])
	}
	return out, nil
}

func (t *Tree) writeNode(ctx context.Context, nodeOID uint64, entries []wire.DirectEntry, create bool) error {
	h := wire.IndexHeader{Magic: wire.IndexMagic, Depth: wire.DepthLeaf, Entries: uint32(len(entries))}
	hbuf, _ := h.MarshalBinary()

	ebuf := make([]byte, len(entries)*wire.DirectEntrySize)
	for i, e := range entries {
		copy(ebuf[i*wire.DirectEntrySize:], e.MarshalBinary())
	}

	if create {
		full := make([]byte, 0, len(hbuf)+len(ebuf))
		full = append(full, hbuf...)
		full = append(full, ebuf...)
		if err := t.Store.CreateObject(ctx, nodeOID, full); err != nil {
			return gwerrors.Wrap(gwerrors.BackendIO, "create indirect node", err)
		}
		return nil
	}

	if err := t.Store.WriteObject(ctx, nodeOID, hbuf, 0, true, int64(wire.IndirectNodeSize)); err != nil {
		return gwerrors.Wrap(gwerrors.BackendIO, "write indirect node header", err)
	}
	if len(ebuf) > 0 {
		if err := t.Store.WriteObject(ctx, nodeOID, ebuf, int64(wire.IndexHeaderSize), true, int64(wire.IndirectNodeSize)); err != nil {
			return gwerrors.Wrap(gwerrors.BackendIO, "write indirect node entries", err)
		}
	}
	return nil
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func encodeLEU32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
