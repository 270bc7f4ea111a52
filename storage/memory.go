package storage

import (
	"fmt"
	"sync"

	"segloader/volume"
)

// MemoryFile is a File backed by in-memory volumes.
type MemoryFile struct {
	path string

	mu     sync.Mutex
	arrays map[string]*volume.Volume
	closed bool
}

func NewMemoryFile(path string) *MemoryFile {
	return &MemoryFile{path: path, arrays: make(map[string]*volume.Volume)}
}

// Put stores v under internalPath, replacing any previous array.
func (f *MemoryFile) Put(internalPath string, v *volume.Volume) *MemoryFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.arrays[normalizeInternalPath(internalPath)] = v
	return f
}

func (f *MemoryFile) Path() string {
	return f.path
}

func (f *MemoryFile) Array(internalPath string) (Array, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrClosed
	}
	key := normalizeInternalPath(internalPath)
	v, ok := f.arrays[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrArrayNotFound, key, f.path)
	}
	if v.Rank() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrScalarArray, key)
	}
	return &memArray{file: f, name: key, v: v}, nil
}

func (f *MemoryFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (f *MemoryFile) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type memArray struct {
	file *MemoryFile
	name string
	v    *volume.Volume
}

func (a *memArray) Shape() []int {
	return append([]int(nil), a.v.Shape...)
}

func (a *memArray) Len() int {
	return a.v.Shape[0]
}

func (a *memArray) ReadAt(i int) (*volume.Volume, error) {
	if a.file.Closed() {
		return nil, ErrClosed
	}
	n := a.v.Shape[0]
	if i < 0 || i >= n {
		return nil, fmt.Errorf("record %d out of range [0, %d) in %s", i, n, a.name)
	}
	size := 0
	if n > 0 {
		size = len(a.v.Data) / n
	}
	data := append([]float64(nil), a.v.Data[i*size:(i+1)*size]...)
	return volume.FromData(a.v.Shape[1:], data)
}

func (a *memArray) ReadAll() (*volume.Volume, error) {
	if a.file.Closed() {
		return nil, ErrClosed
	}
	return a.v.Clone(), nil
}

// MemoryOpener serves files from a fixed set, keyed by path. Unknown paths fail
// like a missing file would.
type MemoryOpener struct {
	mu      sync.Mutex
	files   map[string]*MemoryFile
	handles map[string][]*MemoryFile
}

func NewMemoryOpener(files ...*MemoryFile) *MemoryOpener {
	o := &MemoryOpener{
		files:   make(map[string]*MemoryFile),
		handles: make(map[string][]*MemoryFile),
	}
	for _, f := range files {
		o.files[f.Path()] = f
	}
	return o
}

// Open satisfies Opener. Each call hands out a fresh handle over the same arrays.
func (o *MemoryOpener) Open(path string) (File, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	src, ok := o.files[path]
	if !ok {
		return nil, fmt.Errorf("open %s: no such file", path)
	}

	src.mu.Lock()
	defer src.mu.Unlock()
	f := NewMemoryFile(path)
	for k, v := range src.arrays {
		f.arrays[k] = v
	}
	o.handles[path] = append(o.handles[path], f)
	return f, nil
}

// Opens returns how many times path was opened.
func (o *MemoryOpener) Opens(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.handles[path])
}

// OpenHandles returns how many handles on path have not been closed.
func (o *MemoryOpener) OpenHandles(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, f := range o.handles[path] {
		if !f.Closed() {
			n++
		}
	}
	return n
}
