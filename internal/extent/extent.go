// Package extent implements the allocator that reserves and releases
// contiguous runs of blocks inside a bucket's data volume. The allocator
// is the sole authority on which block ranges in a volume are live.
// State is persisted as a ledger-format object so every Prepare/Finish/
// Free call is durable before it returns.
package extent

import (
	"context"
	"sort"

	"github.com/sheepgate/sheepgate/internal/gwerrors"
	"github.com/sheepgate/sheepgate/internal/oid"
	"github.com/sheepgate/sheepgate/internal/store"
	"github.com/sheepgate/sheepgate/internal/wire"
)

// run is a contiguous span of block indices, [Start, Start+Count).
type run struct {
	Start uint32
	Count uint32
}

// ledger is the on-disk free-run bookkeeping for one volume. Free holds
// runs available to Prepare. Reserved holds runs a Prepare call has
// carved out but whose Finish has not yet been observed — a crash in
// that window leaks the range until an offline audit reconciles it.
type ledger struct {
	Free     []run `yaml:"free"`
	Reserved []run `yaml:"reserved"`
}

// Allocator is the extent allocator for one data volume.
type Allocator struct {
	Store store.ObjectStore
	Vid   uint32
}

func (a *Allocator) ledgerOID() uint64 { return oid.PackLedger(a.Vid, 0) }

// Init formats a fresh allocator state for a volume of the given logical
// block count, with the entire range free. Called when a bucket's data
// volume is created.
func (a *Allocator) Init(ctx context.Context, totalBlocks uint32) error {
	l := ledger{}
	if totalBlocks > 0 {
		l.Free = []run{{Start: 0, Count: totalBlocks}}
	}
	return a.save(ctx, l, true)
}

// Prepare reserves, but does not commit, a run of count contiguous
// blocks, chosen first-fit over the free-run list. The
// caller must follow a successful Prepare with either Finish (to commit)
// or nothing (in which case the range is leaked until an offline audit).
func (a *Allocator) Prepare(ctx context.Context, count uint32) (start uint32, err error) {
	l, err := a.load(ctx)
	if err != nil {
		return 0, err
	}

	for i, f := range l.Free {
		if f.Count < count {
			continue
		}
		start = f.Start
		if f.Count == count {
			l.Free = append(l.Free[:i], l.Free[i+1:]...)
		} else {
			l.Free[i] = run{Start: f.Start + count, Count: f.Count - count}
		}
		l.Reserved = append(l.Reserved, run{Start: start, Count: count})
		if err := a.save(ctx, l, false); err != nil {
			return 0, err
		}
		return start, nil
	}

	return 0, gwerrors.New(gwerrors.NoSpace, "extent allocator: no free run large enough")
}

// Finish commits a previously prepared run: the caller now owns it
// (recorded in the onode's extent table), and the allocator stops
// tracking it as reserved.
func (a *Allocator) Finish(ctx context.Context, start, count uint32) error {
	l, err := a.load(ctx)
	if err != nil {
		return err
	}
	for i, r := range l.Reserved {
		if r.Start == start && r.Count == count {
			l.Reserved = append(l.Reserved[:i], l.Reserved[i+1:]...)
			return a.save(ctx, l, false)
		}
	}
	return gwerrors.New(gwerrors.Invalid, "extent allocator: finish of unreserved run")
}

// Free releases a previously committed run back to the free list,
// coalescing with adjacent free runs.
func (a *Allocator) Free(ctx context.Context, start, count uint32) error {
	l, err := a.load(ctx)
	if err != nil {
		return err
	}
	l.Free = append(l.Free, run{Start: start, Count: count})
	l.Free = coalesce(l.Free)
	return a.save(ctx, l, false)
}

// Reserved returns every currently reserved-but-unfinished run, for the
// offline audit tool to report as a candidate leak.
func (a *Allocator) Reserved(ctx context.Context) ([]struct{ Start, Count uint32 }, error) {
	l, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]struct{ Start, Count uint32 }, len(l.Reserved))
	for i, r := range l.Reserved {
		out[i] = struct{ Start, Count uint32 }{r.Start, r.Count}
	}
	return out, nil
}

// Reconcile moves a leaked reserved run back to the free list. Intended
// for the offline reconciliation tool only.
func (a *Allocator) Reconcile(ctx context.Context, start, count uint32) error {
	l, err := a.load(ctx)
	if err != nil {
		return err
	}
	for i, r := range l.Reserved {
		if r.Start == start && r.Count == count {
			l.Reserved = append(l.Reserved[:i], l.Reserved[i+1:]...)
			l.Free = coalesce(append(l.Free, run{Start: start, Count: count}))
			return a.save(ctx, l, false)
		}
	}
	return gwerrors.New(gwerrors.NotFound, "extent allocator: no such reserved run")
}

func coalesce(runs []run) []run {
	if len(runs) == 0 {
		return runs
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Start < runs[j].Start })
	out := runs[:1]
	for _, r := range runs[1:] {
		last := &out[len(out)-1]
		if last.Start+last.Count == r.Start {
			last.Count += r.Count
			continue
		}
		out = append(out, r)
	}
	return out
}

func (a *Allocator) load(ctx context.Context) (ledger, error) {
	hdr := make([]byte, 4)
	if _, err := a.Store.ReadObject(ctx, a.ledgerOID(), hdr, 0); err != nil {
		return ledger{}, gwerrors.Wrap(gwerrors.BackendIO, "read ledger header", err)
	}
	n := leU32(hdr)
	if n == 0 {
		return ledger{}, nil
	}
	buf := make([]byte, n)
	if _, err := a.Store.ReadObject(ctx, a.ledgerOID(), buf, 4); err != nil {
		return ledger{}, gwerrors.Wrap(gwerrors.BackendIO, "read ledger body", err)
	}
	var l ledger
	if err := decodeLedger(buf, &l); err != nil {
		return ledger{}, gwerrors.Wrap(gwerrors.Corrupt, "decode ledger", err)
	}
	return l, nil
}

func (a *Allocator) save(ctx context.Context, l ledger, create bool) error {
	body := encodeLedger(l)
	hdr := encodeLEU32(uint32(len(body)))

	buf := make([]byte, 0, 4+len(body))
	buf = append(buf, hdr...)
	buf = append(buf, body...)

	if create {
		return wrapIO(a.Store.CreateObject(ctx, a.ledgerOID(), buf))
	}
	return wrapIO(a.Store.WriteObject(ctx, a.ledgerOID(), buf, 0, true, int64(wire.BlockSize)))
}

func wrapIO(err error) error {
	if err == nil {
		return nil
	}
	return gwerrors.Wrap(gwerrors.BackendIO, "write ledger", err)
}

// encodeLedger/decodeLedger use a flat {u32 nFree, (u32,u32)*, u32
// nReserved, (u32,u32)*} layout: simple and sufficient, since the ledger
// is private allocator state rather than a cross-implementation wire
// format.
func encodeLedger(l ledger) []byte {
	buf := make([]byte, 0, 4+8*len(l.Free)+4+8*len(l.Reserved))
	buf = append(buf, encodeLEU32(uint32(len(l.Free)))...)
	for _, r := range l.Free {
		buf = append(buf, encodeLEU32(r.Start)...)
		buf = append(buf, encodeLEU32(r.Count)...)
	}
	buf = append(buf, encodeLEU32(uint32(len(l.Reserved)))...)
	for _, r := range l.Reserved {
		buf = append(buf, encodeLEU32(r.Start)...)
		buf = append(buf, encodeLEU32(r.Count)...)
	}
	return buf
}

func decodeLedger(buf []byte, l *ledger) error {
	if len(buf) < 4 {
		return errShort
	}
	nFree := leU32(buf)
	buf = buf[4:]
	l.Free = make([]run, nFree)
	for i := range l.Free {
		l.Free[i] = run{Start: leU32(buf), Count: leU32(buf[4:])}
		buf = buf[8:]
	}
	if len(buf) < 4 {
		return errShort
	}
	nReserved := leU32(buf)
	buf = buf[4:]
	l.Reserved = make([]run, nReserved)
	for i := range l.Reserved {
		l.Reserved[i] = run{Start: leU32(buf), Count: leU32(buf[4:])}
		buf = buf[8:]
	}
	return nil
}

var errShort = gwerrors.New(gwerrors.Corrupt, "extent allocator: ledger buffer too short")

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func encodeLEU32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
