package svf

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// TypeSet describes the class, type and version of pack file entries.
type TypeSet struct {
	Class   string
	Type    string
	Version uint64
}

// Pack is a decoded pack file: a typed header, an entry table and the type
// sets those entries refer to.
type Pack struct {
	Type    string
	Version int32
	buf     []byte
	entries []uint32
	types   []TypeSet
}

// ParsePack decodes a pack file, gunzipping it first when needed.
func ParsePack(data []byte) (*Pack, error) {
	data, err := maybeGunzip(data)
	if err != nil {
		return nil, err
	}
	if len(data) < 8 {
		return nil, errors.New("pack file too short")
	}
	p := &Pack{buf: data}

	r := &cursor{buf: data}
	p.Type = r.str()
	p.Version = r.int32()
	if r.err != nil {
		return nil, errors.Wrap(r.err, "pack header")
	}

	r.seek(len(data) - 8)
	entriesOff := r.uint32()
	typesOff := r.uint32()

	r.seek(int(entriesOff))
	n := r.varint()
	if r.err == nil && n > uint64(len(data)/4) {
		return nil, errors.Errorf("pack entry count %d exceeds file size", n)
	}
	p.entries = make([]uint32, 0, n)
	for i := uint64(0); i < n && r.err == nil; i++ {
		p.entries = append(p.entries, r.uint32())
	}

	r.seek(int(typesOff))
	n = r.varint()
	if r.err == nil && n > uint64(len(data)) {
		return nil, errors.Errorf("pack type set count %d exceeds file size", n)
	}
	for i := uint64(0); i < n && r.err == nil; i++ {
		p.types = append(p.types, TypeSet{Class: r.str(), Type: r.str(), Version: r.varint()})
	}
	if r.err != nil {
		return nil, errors.Wrap(r.err, "pack tables")
	}
	return p, nil
}

// Len returns the number of entries.
func (p *Pack) Len() int { return len(p.entries) }

// entry positions a cursor at the payload of entry i and returns the entry's
// type set.
func (p *Pack) entry(i int) (*cursor, TypeSet, error) {
	if i < 0 || i >= len(p.entries) {
		return nil, TypeSet{}, errors.Errorf("pack entry %d out of range", i)
	}
	c := &cursor{buf: p.buf}
	c.seek(int(p.entries[i]))
	ti := c.uint32()
	if c.err != nil {
		return nil, TypeSet{}, errors.Wrapf(c.err, "pack entry %d", i)
	}
	if int(ti) >= len(p.types) {
		return nil, TypeSet{}, errors.Errorf("pack entry %d: type set %d out of range", i, ti)
	}
	return c, p.types[ti], nil
}

func maybeGunzip(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "gunzip")
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(err, "gunzip")
	}
	return out, nil
}

// cursor reads little-endian values from a byte slice. The first error
// sticks; later reads return zero values.
type cursor struct {
	buf []byte
	off int
	err error
}

var errShort = errors.New("unexpected end of pack data")

func (c *cursor) seek(off int) {
	if c.err == nil && (off < 0 || off > len(c.buf)) {
		c.err = errors.Errorf("offset %d outside pack data", off)
	}
	c.off = off
}

func (c *cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n < 0 || c.off+n > len(c.buf) {
		c.err = errShort
		return nil
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b
}

func (c *cursor) uint8() uint8 {
	if b := c.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (c *cursor) uint16() uint16 {
	if b := c.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (c *cursor) uint32() uint32 {
	if b := c.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (c *cursor) int32() int32 { return int32(c.uint32()) }

func (c *cursor) float32() float32 { return math.Float32frombits(c.uint32()) }

func (c *cursor) float64() float64 {
	if b := c.take(8); b != nil {
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return 0
}

func (c *cursor) varint() uint64 {
	if c.err != nil {
		return 0
	}
	if c.off > len(c.buf) {
		c.err = errShort
		return 0
	}
	v, n := binary.Uvarint(c.buf[c.off:])
	if n <= 0 {
		c.err = errors.New("malformed varint in pack data")
		return 0
	}
	c.off += n
	return v
}

func (c *cursor) str() string {
	n := c.varint()
	if c.err == nil && n > uint64(len(c.buf)) {
		c.err = errShort
		return ""
	}
	return string(c.take(int(n)))
}
