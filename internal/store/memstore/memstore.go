// Package memstore is an in-memory ObjectStore fake, good enough to drive
// every higher-layer test in this repository without a network.
//
// Objects are stored as a sparse map of fixed-size pages rather than a
// single dense byte slice: a volume inode is tens of megabytes of mostly
// holes (its direct-slot and gref regions), and materializing that
// densely for every test account would be wasteful. A page that was never
// written reads back as zero, matching ObjectStore's never-written-reads-
// as-zero invariant.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/sheepgate/sheepgate/internal/store"
)

const pageSize = 4096

type object struct {
	exists bool
	pages  map[int64][]byte // pageIndex -> pageSize bytes
}

func (o *object) readAt(buf []byte, offset int64) int {
	n := 0
	for n < len(buf) {
		pageIdx := (offset + int64(n)) / pageSize
		pageOff := (offset + int64(n)) % pageSize
		want := pageSize - int(pageOff)
		if remain := len(buf) - n; want > remain {
			want = remain
		}
		if page, ok := o.pages[pageIdx]; ok {
			copy(buf[n:n+want], page[pageOff:pageOff+int64(want)])
		}
		// else: hole reads as zero; buf is already zeroed by callers.
		n += want
	}
	return n
}

func (o *object) writeAt(buf []byte, offset int64) {
	if o.pages == nil {
		o.pages = make(map[int64][]byte)
	}
	n := 0
	for n < len(buf) {
		pageIdx := (offset + int64(n)) / pageSize
		pageOff := (offset + int64(n)) % pageSize
		want := pageSize - int(pageOff)
		if remain := len(buf) - n; want > remain {
			want = remain
		}
		page, ok := o.pages[pageIdx]
		if !ok {
			page = make([]byte, pageSize)
			o.pages[pageIdx] = page
		}
		copy(page[pageOff:pageOff+int64(want)], buf[n:n+want])
		n += want
	}
}

type volume struct {
	name        string
	size        uint64
	nrCopies    int
	copyPolicy  store.CopyPolicy
	storePolicy store.StorePolicy
}

// Store is an in-memory ObjectStore.
type Store struct {
	mu sync.Mutex

	nextVid       uint32
	volumesByID   map[uint32]*volume
	volumesByName map[string]uint32
	objects       map[uint64]*object
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		nextVid:       1, // VID 0 is reserved ("no volume")
		volumesByID:   make(map[uint32]*volume),
		volumesByName: make(map[string]uint32),
		objects:       make(map[uint64]*object),
	}
}

func (s *Store) LookupVolumeByName(ctx context.Context, name string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vid, ok := s.volumesByName[name]
	if !ok {
		return 0, store.ErrNoVolume
	}
	return vid, nil
}

func (s *Store) ListVolumeNames(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.volumesByName))
	for name := range s.volumesByName {
		names = append(names, name)
	}
	return names, nil
}

func (s *Store) NewVolume(ctx context.Context, name string, size uint64, nrCopies int, copyPolicy store.CopyPolicy, storePolicy store.StorePolicy) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.volumesByName[name]; ok {
		return 0, fmt.Errorf("memstore: volume %q: %w", name, store.ErrAlreadyExists)
	}

	vid := s.nextVid
	s.nextVid++

	s.volumesByID[vid] = &volume{
		name:        name,
		size:        size,
		nrCopies:    nrCopies,
		copyPolicy:  copyPolicy,
		storePolicy: storePolicy,
	}
	s.volumesByName[name] = vid

	return vid, nil
}

func (s *Store) DeleteVolume(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vid, ok := s.volumesByName[name]
	if !ok {
		return store.ErrNoVolume
	}

	delete(s.volumesByName, name)
	delete(s.volumesByID, vid)

	for oidVal := range s.objects {
		if oidToVid(oidVal) == vid {
			delete(s.objects, oidVal)
		}
	}

	return nil
}

func (s *Store) ReadObject(ctx context.Context, oid uint64, buf []byte, offset int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[oid]
	if !ok {
		return len(buf), nil // holes read as zero even for a never-created object
	}
	return obj.readAt(buf, offset), nil
}

func (s *Store) WriteObject(ctx context.Context, oid uint64, buf []byte, offset int64, create bool, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[oid]
	if !ok {
		if !create {
			return fmt.Errorf("memstore: write to %d: %w", oid, store.ErrNoVolume)
		}
		obj = &object{exists: true, pages: make(map[int64][]byte)}
		s.objects[oid] = obj
	}
	obj.writeAt(buf, offset)
	return nil
}

func (s *Store) CreateObject(ctx context.Context, oid uint64, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[oid]; ok {
		return fmt.Errorf("memstore: create %d: %w", oid, store.ErrAlreadyExists)
	}

	obj := &object{exists: true, pages: make(map[int64][]byte)}
	obj.writeAt(buf, 0)
	s.objects[oid] = obj
	return nil
}

func (s *Store) DiscardObject(ctx context.Context, oid uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, oid)
	return nil
}

func oidToVid(o uint64) uint32 {
	const vidShift = 32
	const vidMask = 1<<24 - 1
	return uint32((o >> vidShift) & vidMask)
}
