// Package fragment packs a subset of a shard's rows for migration to a
// peer rank. A fragment carries the provenance identities and attribute
// data of the selected rows; the wire form is a small binary header
// followed by an lz4-compressed body.
package fragment

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/disttree/model"
	"github.com/hupe1980/disttree/table"
)

const (
	magic         = 0x44465247 // "DFRG"
	headerSize    = 4 + 4 + 4 + 4 + 4
	formatVersion = 1

	flagRaw = 1 // body stored uncompressed
)

// Fragment is a migration unit: rows extracted from one shard, bound
// for one destination rank.
type Fragment struct {
	IDs  []model.PointID
	Data []float32
	Dim  int
}

// Count returns the number of rows in the fragment.
func (f *Fragment) Count() int { return len(f.IDs) }

// Extract copies the rows named by the bitmap out of the table. Row
// indices in rows must be valid for the table.
func Extract(tbl *table.Table, rows *roaring.Bitmap) (*Fragment, error) {
	dim := tbl.AttributeCount()
	n := int(rows.GetCardinality())

	f := &Fragment{
		IDs:  make([]model.PointID, 0, n),
		Data: make([]float32, 0, n*dim),
		Dim:  dim,
	}

	it := rows.Iterator()
	for it.HasNext() {
		row := int(it.Next())
		if row >= tbl.EntryCount() {
			return nil, fmt.Errorf("fragment: row %d out of range (shard has %d)", row, tbl.EntryCount())
		}
		f.IDs = append(f.IDs, tbl.ID(row))
		f.Data = append(f.Data, tbl.Row(row)...)
	}
	return f, nil
}

// Encode serializes the fragment. The header is uncompressed: magic,
// version, flags, row count, and dimensionality, each uint32
// little-endian. The body (identities then attributes) is lz4
// block-compressed, or stored raw when compression does not shrink it.
func (f *Fragment) Encode() ([]byte, error) {
	if len(f.Data) != len(f.IDs)*f.Dim {
		return nil, fmt.Errorf("fragment: %d ids with dim %d but %d attribute values", len(f.IDs), f.Dim, len(f.Data))
	}

	body := make([]byte, len(f.IDs)*8+len(f.Data)*4)
	off := 0
	for _, id := range f.IDs {
		binary.LittleEndian.PutUint32(body[off:], uint32(id.Rank))
		binary.LittleEndian.PutUint32(body[off+4:], uint32(id.Index))
		off += 8
	}
	for _, v := range f.Data {
		binary.LittleEndian.PutUint32(body[off:], math.Float32bits(v))
		off += 4
	}

	compressed := make([]byte, lz4.CompressBlockBound(len(body)))
	var c lz4.Compressor
	n, err := c.CompressBlock(body, compressed)
	if err != nil {
		return nil, fmt.Errorf("fragment: compress: %w", err)
	}

	flags := uint32(0)
	encoded := compressed[:n]
	if n == 0 || n >= len(body) {
		flags |= flagRaw
		encoded = body
	}

	out := make([]byte, headerSize+4+len(encoded))
	binary.LittleEndian.PutUint32(out[0:], magic)
	binary.LittleEndian.PutUint32(out[4:], formatVersion)
	binary.LittleEndian.PutUint32(out[8:], flags)
	binary.LittleEndian.PutUint32(out[12:], uint32(len(f.IDs)))
	binary.LittleEndian.PutUint32(out[16:], uint32(f.Dim))
	binary.LittleEndian.PutUint32(out[20:], uint32(len(body)))
	copy(out[24:], encoded)
	return out, nil
}

// Decode parses a payload produced by Encode.
func Decode(p []byte) (*Fragment, error) {
	if len(p) < headerSize+4 {
		return nil, fmt.Errorf("fragment: payload too short (%d bytes)", len(p))
	}
	if got := binary.LittleEndian.Uint32(p[0:]); got != magic {
		return nil, fmt.Errorf("fragment: bad magic %#x", got)
	}
	if v := binary.LittleEndian.Uint32(p[4:]); v != formatVersion {
		return nil, fmt.Errorf("fragment: unsupported version %d", v)
	}
	flags := binary.LittleEndian.Uint32(p[8:])
	count := int(binary.LittleEndian.Uint32(p[12:]))
	dim := int(binary.LittleEndian.Uint32(p[16:]))
	rawLen := int(binary.LittleEndian.Uint32(p[20:]))

	want := count*8 + count*dim*4
	if rawLen != want {
		return nil, fmt.Errorf("fragment: header says %d body bytes, expected %d", rawLen, want)
	}

	var body []byte
	if flags&flagRaw != 0 {
		if len(p)-24 != rawLen {
			return nil, fmt.Errorf("fragment: raw body has %d bytes, expected %d", len(p)-24, rawLen)
		}
		body = p[24:]
	} else {
		body = make([]byte, rawLen)
		n, err := lz4.UncompressBlock(p[24:], body)
		if err != nil {
			return nil, fmt.Errorf("fragment: decompress: %w", err)
		}
		if n != rawLen {
			return nil, fmt.Errorf("fragment: decompressed %d bytes, expected %d", n, rawLen)
		}
	}

	f := &Fragment{
		IDs:  make([]model.PointID, count),
		Data: make([]float32, count*dim),
		Dim:  dim,
	}
	off := 0
	for i := range f.IDs {
		f.IDs[i].Rank = int32(binary.LittleEndian.Uint32(body[off:]))
		f.IDs[i].Index = int32(binary.LittleEndian.Uint32(body[off+4:]))
		off += 8
	}
	for i := range f.Data {
		f.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[off:]))
		off += 4
	}
	return f, nil
}
