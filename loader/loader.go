// Package loader reads and writes shard files. A shard file holds one
// rank's points in the DTSH format: a fixed header naming the shape,
// then the row-major float32 payload, s2-compressed by default. Loading
// stamps each point with its provenance, the (rank, row) pair it was
// born under.
package loader

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/s2"

	"github.com/hupe1980/disttree/blobstore"
	"github.com/hupe1980/disttree/model"
	"github.com/hupe1980/disttree/table"
)

const (
	headerSize     = 4 + 2 + 2 + 4 + 4
	formatVersion  = 1
	flagCompressed = 1 // payload is s2-encoded
)

var magic = [4]byte{'D', 'T', 'S', 'H'}

// Loader reads shard files out of a blob store.
type Loader struct {
	store blobstore.BlobStore
}

// New creates a loader over the given store.
func New(store blobstore.BlobStore) *Loader {
	return &Loader{store: store}
}

// ShardName returns the blob name of a rank's shard under base.
func ShardName(base string, rank int) string {
	return fmt.Sprintf("%s-%05d.dtsh", base, rank)
}

// Load reads rank's shard under base into a new table backed by alloc.
// Every row is stamped with provenance (rank, row).
func (l *Loader) Load(ctx context.Context, alloc table.Allocator, base string, rank int) (*table.Table, error) {
	name := ShardName(base, rank)
	blob, err := l.store.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("loader: open %s: %w", name, err)
	}
	defer blob.Close()

	raw, err := blobstore.ReadAll(ctx, blob)
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", name, err)
	}

	dim, count, payload, err := parse(raw)
	if err != nil {
		return nil, fmt.Errorf("loader: %s: %w", name, err)
	}

	tbl, err := table.New(alloc, dim, count)
	if err != nil {
		return nil, err
	}

	data := tbl.Data()
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
	}
	for i := 0; i < count; i++ {
		tbl.SetID(i, model.PointID{Rank: int32(rank), Index: int32(i)})
	}
	return tbl, nil
}

// Write stores data as rank's shard under base. data holds count*dim
// row-major values.
func (l *Loader) Write(ctx context.Context, base string, rank, dim int, data []float32) error {
	if dim <= 0 {
		return fmt.Errorf("loader: invalid attribute count %d", dim)
	}
	if len(data)%dim != 0 {
		return fmt.Errorf("loader: %d values do not shape into rows of %d", len(data), dim)
	}
	count := len(data) / dim

	payload := make([]byte, len(data)*4)
	for i, v := range data {
		binary.LittleEndian.PutUint32(payload[i*4:], math.Float32bits(v))
	}
	compressed := s2.Encode(nil, payload)

	flags := uint16(flagCompressed)
	body := compressed
	if len(compressed) >= len(payload) {
		flags = 0
		body = payload
	}

	out := make([]byte, headerSize+len(body))
	copy(out[0:4], magic[:])
	binary.LittleEndian.PutUint16(out[4:], formatVersion)
	binary.LittleEndian.PutUint16(out[6:], flags)
	binary.LittleEndian.PutUint32(out[8:], uint32(dim))
	binary.LittleEndian.PutUint32(out[12:], uint32(count))
	copy(out[headerSize:], body)

	return l.store.Put(ctx, ShardName(base, rank), out)
}

func parse(raw []byte) (dim, count int, payload []byte, err error) {
	if len(raw) < headerSize {
		return 0, 0, nil, fmt.Errorf("truncated header (%d bytes)", len(raw))
	}
	if [4]byte(raw[0:4]) != magic {
		return 0, 0, nil, fmt.Errorf("bad magic %q", raw[0:4])
	}
	if v := binary.LittleEndian.Uint16(raw[4:]); v != formatVersion {
		return 0, 0, nil, fmt.Errorf("unsupported version %d", v)
	}
	flags := binary.LittleEndian.Uint16(raw[6:])
	dim = int(binary.LittleEndian.Uint32(raw[8:]))
	count = int(binary.LittleEndian.Uint32(raw[12:]))
	if dim <= 0 {
		return 0, 0, nil, fmt.Errorf("invalid attribute count %d", dim)
	}

	body := raw[headerSize:]
	if flags&flagCompressed != 0 {
		payload, err = s2.Decode(nil, body)
		if err != nil {
			return 0, 0, nil, fmt.Errorf("decompress: %w", err)
		}
	} else {
		payload = body
	}

	if want := count * dim * 4; len(payload) != want {
		return 0, 0, nil, fmt.Errorf("payload has %d bytes, header promises %d", len(payload), want)
	}
	return dim, count, payload, nil
}
