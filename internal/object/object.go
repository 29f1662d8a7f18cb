// Package object implements open-addressed object placement inside a
// bucket's onode volume: insertion probe, lookup, update, and deletion of
// wire.Onode records; the inline-vs-extent storage decision; and
// extent-backed streaming read/write via internal/sink.RequestSink.
package object

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sheepgate/sheepgate/internal/clock"
	"github.com/sheepgate/sheepgate/internal/extent"
	"github.com/sheepgate/sheepgate/internal/gwerrors"
	"github.com/sheepgate/sheepgate/internal/hashutil"
	"github.com/sheepgate/sheepgate/internal/index"
	"github.com/sheepgate/sheepgate/internal/oid"
	"github.com/sheepgate/sheepgate/internal/sink"
	"github.com/sheepgate/sheepgate/internal/store"
	"github.com/sheepgate/sheepgate/internal/wire"
)

// Manager operates object placement against a backing ObjectStore.
type Manager struct {
	Store store.ObjectStore
	Clock clock.Clock
}

// ceilDivBlocks returns the number of BlockSize-sized blocks needed to
// hold n bytes: ceil(n / BlockSize).
func ceilDivBlocks(n int64) uint32 {
	return uint32((n + wire.BlockSize - 1) / wire.BlockSize)
}

// drainSink reads exactly n bytes from rs (or until EOF), for the inline
// storage path.
func drainSink(rs sink.RequestSink, n int64) []byte {
	buf := make([]byte, n)
	got := int64(0)
	for got < n {
		chunk := make([]byte, wire.BlockSize)
		r := rs.ReadBodyChunk(chunk)
		if r <= 0 {
			break
		}
		copy(buf[got:], chunk[:r])
		got += int64(r)
	}
	return buf[:got]
}

// buildOnodeBody lays out one onode data block: header, then either the
// inline body or the marshaled extent table.
func buildOnodeBody(hdr wire.OnodeHeader, inlineBody []byte, extents []wire.Extent) []byte {
	hb, _ := hdr.MarshalBinary()
	body := make([]byte, 0, wire.BlockSize)
	body = append(body, hb...)
	if hdr.Inlined == 1 {
		body = append(body, inlineBody...)
	} else {
		body = append(body, wire.MarshalExtents(extents)...)
	}
	return body
}

func (m *Manager) readHeader(ctx context.Context, vid uint32, idx uint32) (wire.OnodeHeader, error) {
	buf := make([]byte, wire.OnodeHeaderSize)
	if _, err := m.Store.ReadObject(ctx, oid.PackData(vid, idx), buf, 0); err != nil {
		return wire.OnodeHeader{}, gwerrors.Wrap(gwerrors.BackendIO, "read onode header", err)
	}
	var h wire.OnodeHeader
	if err := h.UnmarshalBinary(buf); err != nil {
		return wire.OnodeHeader{}, gwerrors.Wrap(gwerrors.Corrupt, "decode onode header", err)
	}
	return h, nil
}

// Create streams body from rs into a new object named name inside the
// bucket identified by (onodeVid, dataVid): decide inline vs. extent,
// reserve and stream extents if needed, fill the onode header, then
// probe onodeVid's index for a home (an empty slot, or an existing
// onode with a matching name, overwritten in place).
func (m *Manager) Create(ctx context.Context, onodeVid, dataVid uint32, name string, bodyLen int64, rs sink.RequestSink) error {
	inline := bodyLen <= wire.InlineCap

	now := uint64(m.Clock.Now().UnixNano())
	hdr := wire.OnodeHeader{
		Name:    name,
		Size:    uint64(bodyLen),
		Ctime:   now,
		Mtime:   now,
		DataVid: dataVid,
	}

	var inlineBody []byte
	var extents []wire.Extent

	if inline {
		inlineBody = drainSink(rs, bodyLen)
		hdr.Inlined = 1
	} else {
		count := ceilDivBlocks(bodyLen)
		alloc := &extent.Allocator{Store: m.Store, Vid: dataVid}
		start, err := alloc.Prepare(ctx, count)
		if err != nil {
			return err
		}

		remaining := bodyLen
		buf := make([]byte, wire.BlockSize)
		for k := uint32(0); k < count; k++ {
			n := rs.ReadBodyChunk(buf)
			if n < 0 {
				n = 0
			}
			if int64(n) > remaining {
				n = int(remaining)
			}
			if err := m.Store.WriteObject(ctx, oid.PackData(dataVid, start+k), buf[:n], 0, true, int64(wire.BlockSize)); err != nil {
				return gwerrors.Wrap(gwerrors.BackendIO, "write data block", err)
			}
			remaining -= int64(n)
		}

		if err := alloc.Finish(ctx, start, count); err != nil {
			return err
		}

		extents = []wire.Extent{{Start: start, Count: count}}
		hdr.NrExtent = 1
		hdr.Inlined = 0
	}

	body := buildOnodeBody(hdr, inlineBody, extents)

	t := &index.Tree{Store: m.Store, Vid: onodeVid}
	h := hashutil.SdHash([]byte(name))

	for i := uint64(0); i < uint64(wire.MaxBlocks); i++ {
		idx := uint32((h + i) % uint64(wire.MaxBlocks))

		vid, err := t.GetVid(ctx, idx)
		if err != nil {
			return err
		}
		if vid == 0 {
			if err := m.Store.WriteObject(ctx, oid.PackData(onodeVid, idx), body, 0, true, int64(wire.BlockSize)); err != nil {
				return gwerrors.Wrap(gwerrors.BackendIO, "write onode", err)
			}
			return t.SetVid(ctx, idx, onodeVid)
		}

		existing, err := m.readHeader(ctx, onodeVid, idx)
		if err != nil {
			return err
		}
		if existing.Name == name {
			if err := m.Store.WriteObject(ctx, oid.PackData(onodeVid, idx), body, 0, true, int64(wire.BlockSize)); err != nil {
				return gwerrors.Wrap(gwerrors.BackendIO, "overwrite onode", err)
			}
			return nil
		}
		// Slot taken by a different name: continue probing.
	}

	return gwerrors.New(gwerrors.NoSpace, "object probe exhausted")
}

// Read probes for name and streams its body to rs: inline bytes directly,
// or the extents' blocks in order, clamping the final block read to the
// residual of size.
func (m *Manager) Read(ctx context.Context, onodeVid uint32, name string, rs sink.RequestSink) error {
	t := &index.Tree{Store: m.Store, Vid: onodeVid}
	h := hashutil.SdHash([]byte(name))

	for i := uint64(0); i < uint64(wire.MaxBlocks); i++ {
		idx := uint32((h + i) % uint64(wire.MaxBlocks))

		vid, err := t.GetVid(ctx, idx)
		if err != nil {
			return err
		}
		if vid == 0 {
			rs.SetStatus(sink.NotFound)
			return gwerrors.New(gwerrors.NotFound, fmt.Sprintf("object %q not found", name))
		}

		hdr, err := m.readHeader(ctx, onodeVid, idx)
		if err != nil {
			return err
		}
		if hdr.Name != name {
			continue
		}

		if err := m.streamBody(ctx, hdr, idx, onodeVid, rs); err != nil {
			return err
		}
		rs.SetStatus(sink.OK)
		return nil
	}

	rs.SetStatus(sink.NotFound)
	return gwerrors.New(gwerrors.NotFound, fmt.Sprintf("object %q not found", name))
}

func (m *Manager) streamBody(ctx context.Context, hdr wire.OnodeHeader, idx uint32, onodeVid uint32, rs sink.RequestSink) error {
	if hdr.Inlined == 1 {
		buf := make([]byte, hdr.Size)
		if _, err := m.Store.ReadObject(ctx, oid.PackData(onodeVid, idx), buf, int64(wire.OnodeHeaderSize)); err != nil {
			return gwerrors.Wrap(gwerrors.BackendIO, "read inline body", err)
		}
		rs.WriteBodyChunk(buf, len(buf))
		return nil
	}

	extents, err := m.readExtentTable(ctx, onodeVid, idx, hdr.NrExtent)
	if err != nil {
		return err
	}

	remaining := int64(hdr.Size)
	buf := make([]byte, wire.BlockSize)
	for _, e := range extents {
		for k := uint32(0); k < e.Count; k++ {
			want := int64(wire.BlockSize)
			if remaining < want {
				want = remaining
			}
			if want <= 0 {
				return nil
			}
			n, err := m.Store.ReadObject(ctx, oid.PackData(hdr.DataVid, e.Start+k), buf[:want], 0)
			if err != nil {
				return gwerrors.Wrap(gwerrors.BackendIO, "read data block", err)
			}
			rs.WriteBodyChunk(buf, n)
			remaining -= int64(n)
		}
	}
	return nil
}

func (m *Manager) readExtentTable(ctx context.Context, onodeVid uint32, idx uint32, nrExtent uint32) ([]wire.Extent, error) {
	if nrExtent == 0 {
		return nil, nil
	}
	buf := make([]byte, int(nrExtent)*8)
	if _, err := m.Store.ReadObject(ctx, oid.PackData(onodeVid, idx), buf, int64(wire.OnodeHeaderSize)); err != nil {
		return nil, gwerrors.Wrap(gwerrors.BackendIO, "read extent table", err)
	}
	extents, err := wire.UnmarshalExtents(buf, nrExtent)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.Corrupt, "decode extent table", err)
	}
	return extents, nil
}

// Update probes for name and rewrites its body, as a delete followed by
// a create: an in-place rewrite would have to special-case growing past
// or shrinking below the inline threshold, and reusing Create's
// placement logic keeps that one place.
func (m *Manager) Update(ctx context.Context, onodeVid, dataVid uint32, name string, bodyLen int64, rs sink.RequestSink) error {
	if err := m.Delete(ctx, onodeVid, dataVid, name); err != nil && gwerrors.CodeOf(err) != gwerrors.NotFound {
		return err
	}
	return m.Create(ctx, onodeVid, dataVid, name, bodyLen, rs)
}

// Delete probes for name and, on a match, first overwrites the onode's
// name field (making the slot lookup-dead immediately), then frees its
// extents. The name-clear is persisted before extents are freed so a
// concurrent reader never observes a live name pointing at recycled
// extents.
func (m *Manager) Delete(ctx context.Context, onodeVid, dataVid uint32, name string) error {
	t := &index.Tree{Store: m.Store, Vid: onodeVid}
	h := hashutil.SdHash([]byte(name))

	for i := uint64(0); i < uint64(wire.MaxBlocks); i++ {
		idx := uint32((h + i) % uint64(wire.MaxBlocks))

		vid, err := t.GetVid(ctx, idx)
		if err != nil {
			return err
		}
		if vid == 0 {
			return gwerrors.New(gwerrors.NotFound, fmt.Sprintf("object %q not found", name))
		}

		hdr, err := m.readHeader(ctx, onodeVid, idx)
		if err != nil {
			return err
		}
		if hdr.Name != name {
			continue
		}

		cleared := hdr
		cleared.Name = ""
		clearedBuf, _ := cleared.MarshalBinary()
		if err := m.Store.WriteObject(ctx, oid.PackData(onodeVid, idx), clearedBuf, 0, true, int64(wire.BlockSize)); err != nil {
			return gwerrors.Wrap(gwerrors.BackendIO, "clear onode", err)
		}

		if hdr.Inlined == 0 && hdr.NrExtent > 0 {
			extents, err := m.readExtentTable(ctx, onodeVid, idx, hdr.NrExtent)
			if err != nil {
				return err
			}
			alloc := &extent.Allocator{Store: m.Store, Vid: dataVid}
			for _, e := range extents {
				if err := alloc.Free(ctx, e.Start, e.Count); err != nil {
					return err
				}
			}
		}
		return nil
	}

	return gwerrors.New(gwerrors.NotFound, fmt.Sprintf("object %q not found", name))
}

// ScanOnodes walks the onode volume's index and invokes visit with every
// formatted slot's header, live or cleared. cmd/sheepgate-fsck uses this
// to find onodes whose name was cleared but whose extents were never
// freed — a window Delete's name-before-extents ordering makes possible
// if the process crashes between the two writes.
func (m *Manager) ScanOnodes(ctx context.Context, onodeVid uint32, visit func(idx uint32, hdr wire.OnodeHeader) error) error {
	t := &index.Tree{Store: m.Store, Vid: onodeVid}
	return t.WalkIndex(ctx, func(idx uint32, vid uint32) error {
		hdr, err := m.readHeader(ctx, onodeVid, idx)
		if err != nil {
			return err
		}
		return visit(idx, hdr)
	})
}

// ListObjects walks the onode volume's index (internal/index.WalkIndex)
// and invokes cb for every live object name: a single full traversal,
// with no pagination or prefix filtering.
func (m *Manager) ListObjects(ctx context.Context, onodeVid uint32, cb func(name string) error) error {
	t := &index.Tree{Store: m.Store, Vid: onodeVid}
	return t.WalkIndex(ctx, func(idx uint32, vid uint32) error {
		hdr, err := m.readHeader(ctx, onodeVid, idx)
		if err != nil {
			return err
		}
		if hdr.Free() {
			return nil
		}
		return cb(hdr.Name)
	})
}

// ListObjectsConcurrent behaves like ListObjects but reads each onode's
// header concurrently, bounded by width — the per-index readHeader call
// is independent store I/O, so up to width header reads are in flight at
// once instead of one at a time.
func (m *Manager) ListObjectsConcurrent(ctx context.Context, onodeVid uint32, width int64, cb func(name string) error) error {
	t := &index.Tree{Store: m.Store, Vid: onodeVid}

	var idxs []uint32
	if err := t.WalkIndexConcurrent(ctx, width, func(idx uint32, vid uint32) error {
		idxs = append(idxs, idx)
		return nil
	}); err != nil {
		return err
	}

	sem := semaphore.NewWeighted(width)
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for _, idx := range idxs {
		idx := idx
		if err := sem.Acquire(gctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer sem.Release(1)
			hdr, err := m.readHeader(gctx, onodeVid, idx)
			if err != nil {
				return err
			}
			if hdr.Free() {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			return cb(hdr.Name)
		})
	}
	return g.Wait()
}
