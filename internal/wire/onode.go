package wire

import (
	"encoding/binary"
	"fmt"
)

// OnodeHeader occupies the first OnodeHeaderSize bytes of one data block
// of a bucket's onode volume. Body bytes follow immediately:
// Size inline bytes when Inlined, otherwise NrExtent (start,count) pairs.
type OnodeHeader struct {
	Name     string
	Sha1     [sha1RoundedLen]byte
	Size     uint64
	Ctime    uint64
	Mtime    uint64
	DataVid  uint32
	NrExtent uint32
	Inlined  uint8
}

const sha1RoundedLen = 24 // rounded up from the 20-byte SHA-1 digest

const (
	onOffName     = 0
	onOffSha1     = MaxObjectNameLen
	onOffSize     = onOffSha1 + sha1RoundedLen
	onOffCtime    = onOffSize + 8
	onOffMtime    = onOffCtime + 8
	onOffDataVid  = onOffMtime + 8
	onOffNrExtent = onOffDataVid + 4
	onOffInlined  = onOffNrExtent + 4
)

// Free reports whether this onode slot is unoccupied: name[0] == '\0'.
func (h *OnodeHeader) Free() bool { return h.Name == "" }

// MarshalBinary encodes h into an OnodeHeaderSize buffer, zero-padded.
func (h *OnodeHeader) MarshalBinary() ([]byte, error) {
	buf := make([]byte, OnodeHeaderSize)
	putFixedString(buf, onOffName, MaxObjectNameLen, h.Name)
	copy(buf[onOffSha1:onOffSha1+sha1RoundedLen], h.Sha1[:])
	binary.LittleEndian.PutUint64(buf[onOffSize:], h.Size)
	binary.LittleEndian.PutUint64(buf[onOffCtime:], h.Ctime)
	binary.LittleEndian.PutUint64(buf[onOffMtime:], h.Mtime)
	binary.LittleEndian.PutUint32(buf[onOffDataVid:], h.DataVid)
	binary.LittleEndian.PutUint32(buf[onOffNrExtent:], h.NrExtent)
	buf[onOffInlined] = h.Inlined
	return buf, nil
}

// UnmarshalBinary decodes h from an OnodeHeaderSize-or-larger buffer.
func (h *OnodeHeader) UnmarshalBinary(buf []byte) error {
	if len(buf) < OnodeHeaderSize {
		return fmt.Errorf("wire: onode header buffer too short: %d < %d", len(buf), OnodeHeaderSize)
	}
	h.Name = getFixedString(buf, onOffName, MaxObjectNameLen)
	copy(h.Sha1[:], buf[onOffSha1:onOffSha1+sha1RoundedLen])
	h.Size = binary.LittleEndian.Uint64(buf[onOffSize:])
	h.Ctime = binary.LittleEndian.Uint64(buf[onOffCtime:])
	h.Mtime = binary.LittleEndian.Uint64(buf[onOffMtime:])
	h.DataVid = binary.LittleEndian.Uint32(buf[onOffDataVid:])
	h.NrExtent = binary.LittleEndian.Uint32(buf[onOffNrExtent:])
	h.Inlined = buf[onOffInlined]
	return nil
}

// Extent is one contiguous run of blocks inside a bucket's data volume.
type Extent struct {
	Start uint32
	Count uint32
}

const extentSize = 8

// MarshalExtents encodes a slice of extents for storage immediately after
// the onode header.
func MarshalExtents(extents []Extent) []byte {
	buf := make([]byte, len(extents)*extentSize)
	for i, e := range extents {
		binary.LittleEndian.PutUint32(buf[i*extentSize:], e.Start)
		binary.LittleEndian.PutUint32(buf[i*extentSize+4:], e.Count)
	}
	return buf
}

// UnmarshalExtents decodes n extents from buf.
func UnmarshalExtents(buf []byte, n uint32) ([]Extent, error) {
	if len(buf) < int(n)*extentSize {
		return nil, fmt.Errorf("wire: extent buffer too short: %d < %d", len(buf), int(n)*extentSize)
	}
	out := make([]Extent, n)
	for i := range out {
		out[i].Start = binary.LittleEndian.Uint32(buf[i*extentSize:])
		out[i].Count = binary.LittleEndian.Uint32(buf[i*extentSize+4:])
	}
	return out, nil
}
