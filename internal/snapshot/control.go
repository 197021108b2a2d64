package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	controlSize  = 4096       // 1 page
	controlMagic = 0x53545243 // 'STRC'
)

// controlBlock is the memory-mapped layout of the control file. It
// points external readers at the active serialized octree without
// them having to coordinate with this process.
type controlBlock struct {
	Magic      uint32
	Version    uint32
	Generation uint64 // atomic
	IndexPath  [256]byte
	IndexSize  uint64
	Padding    [controlSize - 272]byte
}

// Controller manages the memory-mapped control file. Readers observe
// the generation counter; a new index file is fully written and
// fsynced before the generation advances.
type Controller struct {
	path string
	file *os.File
	data []byte
	ptr  *controlBlock
}

// OpenControl opens or creates the control file at path.
func OpenControl(path string) (*Controller, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open control file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}
	if info.Size() < controlSize {
		if err := f.Truncate(controlSize); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("truncate: %w", err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, controlSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap: %w", err)
	}
	ptr := (*controlBlock)(unsafe.Pointer(&data[0]))

	if ptr.Magic == 0 {
		ptr.Magic = controlMagic
		ptr.Version = 1
	} else if ptr.Magic != controlMagic {
		_ = unix.Munmap(data)
		_ = f.Close()
		return nil, fmt.Errorf("invalid control magic: %x", ptr.Magic)
	}

	return &Controller{path: path, file: f, data: data, ptr: ptr}, nil
}

// Generation returns the current generation counter.
func (c *Controller) Generation() uint64 {
	return atomic.LoadUint64(&c.ptr.Generation)
}

// IndexPath returns the path of the active serialized octree.
func (c *Controller) IndexPath() string {
	b := c.ptr.IndexPath[:]
	for i, v := range b {
		if v == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// SetIndex points the control block at a new octree file. The path and
// size land before the generation store, so a reader that sees the new
// generation also sees the new path.
func (c *Controller) SetIndex(path string, size, generation uint64) error {
	if len(path) >= len(c.ptr.IndexPath) {
		return fmt.Errorf("path too long (max %d)", len(c.ptr.IndexPath)-1)
	}
	copy(c.ptr.IndexPath[:], path)
	c.ptr.IndexPath[len(path)] = 0
	c.ptr.IndexSize = size
	atomic.StoreUint64(&c.ptr.Generation, generation)
	return nil
}

// Close unmaps and closes the control file.
func (c *Controller) Close() error {
	if err := unix.Munmap(c.data); err != nil {
		return err
	}
	return c.file.Close()
}
