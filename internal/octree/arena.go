package octree

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/agentic-research/strata/api"
)

const (
	arenaMagic   = 0x4F435431 // 'OCT1'
	arenaVersion = 1

	nodeRecordSize = 48 + 8*4 + 4 + 4 // box + children + leafStart + leafCount
	footerSize     = 8 + 8 + 4        // totalEntities + totalNodes + magic
)

// ErrCorrupted is returned when an arena buffer fails validation. Callers
// classify it as fatal for the model load, not for the process.
var ErrCorrupted = errors.New("corrupted octree buffer")

// Serialize writes the tree to a single little-endian binary buffer:
// header, node records, leaf entity-ID runs, entity table, and a metadata
// footer carrying total entity and node counts.
func (t *Octree) Serialize() []byte {
	size := 8 + // magic + version/pad + nodeCount
		len(t.nodes)*nodeRecordSize +
		4 + len(t.leafIDs)*4 +
		4 + len(t.entIDs)*(4+48) +
		footerSize
	buf := make([]byte, 0, size)

	buf = binary.LittleEndian.AppendUint32(buf, arenaMagic)
	buf = append(buf, arenaVersion, 0, 0, 0)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.nodes)))

	for i := range t.nodes {
		n := &t.nodes[i]
		buf = appendBox(buf, n.box)
		for _, c := range n.children {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(c))
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(n.leafStart))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(n.leafCount))
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.leafIDs)))
	for _, id := range t.leafIDs {
		buf = binary.LittleEndian.AppendUint32(buf, id)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.entIDs)))
	for i, id := range t.entIDs {
		buf = binary.LittleEndian.AppendUint32(buf, id)
		buf = appendBox(buf, t.entBoxes[i])
	}

	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(t.entIDs)))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(t.nodes)))
	buf = binary.LittleEndian.AppendUint32(buf, arenaMagic)
	return buf
}

// Deserialize reconstructs a read-only query object from an arena buffer.
// The footer metadata must agree with the decoded counts; any structural
// mismatch returns ErrCorrupted.
func Deserialize(buf []byte) (*Octree, error) {
	r := &arenaReader{buf: buf}

	magic, err := r.u32()
	if err != nil || magic != arenaMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupted)
	}
	ver, err := r.bytes(4)
	if err != nil {
		return nil, fmt.Errorf("%w: truncated header", ErrCorrupted)
	}
	if ver[0] != arenaVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupted, ver[0])
	}

	nodeCount, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("%w: truncated node count", ErrCorrupted)
	}

	t := &Octree{nodes: make([]node, nodeCount)}
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.box, err = r.box(); err != nil {
			return nil, fmt.Errorf("%w: truncated node %d", ErrCorrupted, i)
		}
		for j := 0; j < 8; j++ {
			v, err := r.u32()
			if err != nil {
				return nil, fmt.Errorf("%w: truncated node %d", ErrCorrupted, i)
			}
			c := int32(v)
			if c >= int32(nodeCount) {
				return nil, fmt.Errorf("%w: child offset out of range", ErrCorrupted)
			}
			n.children[j] = c
		}
		ls, err1 := r.u32()
		lc, err2 := r.u32()
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("%w: truncated node %d", ErrCorrupted, i)
		}
		n.leafStart, n.leafCount = int32(ls), int32(lc)
	}

	leafLen, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("%w: truncated leaf runs", ErrCorrupted)
	}
	t.leafIDs = make([]uint32, leafLen)
	for i := range t.leafIDs {
		if t.leafIDs[i], err = r.u32(); err != nil {
			return nil, fmt.Errorf("%w: truncated leaf runs", ErrCorrupted)
		}
	}

	entCount, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("%w: truncated entity table", ErrCorrupted)
	}
	t.entIDs = make([]uint32, entCount)
	t.entBoxes = make([]api.Box, entCount)
	t.entIdx = make(map[uint32]int, entCount)
	for i := range t.entIDs {
		if t.entIDs[i], err = r.u32(); err != nil {
			return nil, fmt.Errorf("%w: truncated entity table", ErrCorrupted)
		}
		if t.entBoxes[i], err = r.box(); err != nil {
			return nil, fmt.Errorf("%w: truncated entity table", ErrCorrupted)
		}
		t.entIdx[t.entIDs[i]] = i
	}

	totalEnts, err1 := r.u64()
	totalNodes, err2 := r.u64()
	tail, err3 := r.u32()
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, fmt.Errorf("%w: truncated footer", ErrCorrupted)
	}
	if tail != arenaMagic {
		return nil, fmt.Errorf("%w: bad footer magic", ErrCorrupted)
	}
	if totalEnts != uint64(entCount) || totalNodes != uint64(nodeCount) {
		return nil, fmt.Errorf("%w: footer metadata mismatch", ErrCorrupted)
	}

	// Validate leaf runs so queries cannot index out of range.
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.leafStart < 0 {
			continue
		}
		if int(n.leafStart)+int(n.leafCount) > len(t.leafIDs) {
			return nil, fmt.Errorf("%w: leaf run out of range in node %d", ErrCorrupted, i)
		}
	}
	return t, nil
}

func appendBox(buf []byte, b api.Box) []byte {
	for _, f := range [6]float64{b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z} {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(f))
	}
	return buf
}

type arenaReader struct {
	buf []byte
	off int
}

func (r *arenaReader) bytes(n int) ([]byte, error) {
	if r.off+n > len(r.buf) {
		return nil, ErrCorrupted
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *arenaReader) u32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *arenaReader) u64() (uint64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *arenaReader) box() (api.Box, error) {
	b, err := r.bytes(48)
	if err != nil {
		return api.Box{}, err
	}
	var f [6]float64
	for i := range f {
		f[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return api.Box{
		Min: api.Vec3{X: f[0], Y: f[1], Z: f[2]},
		Max: api.Vec3{X: f[3], Y: f[4], Z: f[5]},
	}, nil
}
