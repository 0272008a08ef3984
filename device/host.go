package device

import (
	"fmt"
	"runtime"
	"sync"
)

var _ Device = (*Host)(nil)

// Host is a Device backed by host memory. Kernels run on a pool of
// goroutines, one work item at a time per goroutine.
type Host struct {
	mu      sync.RWMutex
	allocs  map[uint32][]byte
	symbols map[string][]byte
	nextID  uint32
	used    int

	memoryLimit int
	workers     int
}

// HostOption configures a Host device.
type HostOption func(*Host)

// WithMemoryLimit caps the total bytes that may be allocated at once.
// Zero means unlimited.
func WithMemoryLimit(limit int) HostOption {
	return func(h *Host) {
		h.memoryLimit = limit
	}
}

// WithWorkers sets the number of goroutines used by Launch.
func WithWorkers(n int) HostOption {
	return func(h *Host) {
		if n > 0 {
			h.workers = n
		}
	}
}

// NewHost creates a host-memory device.
func NewHost(opts ...HostOption) *Host {
	h := &Host{
		allocs:  make(map[uint32][]byte),
		symbols: make(map[string][]byte),
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Malloc allocates size bytes of device memory.
func (h *Host) Malloc(size int) (Ptr, error) {
	if size <= 0 {
		return Nil, fmt.Errorf("malloc %d bytes: %w", size, ErrInvalidSize)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.memoryLimit > 0 && h.used+size > h.memoryLimit {
		return Nil, fmt.Errorf("malloc %d bytes (%d of %d in use): %w", size, h.used, h.memoryLimit, ErrOutOfMemory)
	}

	h.nextID++
	h.allocs[h.nextID] = make([]byte, size)
	h.used += size
	return makePtr(h.nextID, 0), nil
}

// Free releases an allocation.
func (h *Host) Free(p Ptr) error {
	if p.IsNil() || p.Offset() != 0 {
		return fmt.Errorf("free %v: %w", p, ErrInvalidPointer)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	mem, ok := h.allocs[p.id()]
	if !ok {
		return fmt.Errorf("free %v: %w", p, ErrInvalidPointer)
	}
	h.used -= len(mem)
	delete(h.allocs, p.id())
	return nil
}

// CopyToDevice copies src into device memory starting at dst.
func (h *Host) CopyToDevice(dst Ptr, src []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	mem, err := h.resolve(dst, len(src))
	if err != nil {
		return fmt.Errorf("copy %d bytes to device: %w", len(src), err)
	}
	copy(mem, src)
	return nil
}

// CopyToHost copies len(dst) bytes of device memory starting at src.
func (h *Host) CopyToHost(dst []byte, src Ptr) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	mem, err := h.resolve(src, len(dst))
	if err != nil {
		return fmt.Errorf("copy %d bytes to host: %w", len(dst), err)
	}
	copy(dst, mem)
	return nil
}

// CopyToSymbol copies src into the named constant region, growing it as needed.
func (h *Host) CopyToSymbol(symbol string, offset int, src []byte) error {
	if offset < 0 {
		return fmt.Errorf("copy to symbol %q at %d: %w", symbol, offset, ErrOutOfRange)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	region := h.symbols[symbol]
	if end := offset + len(src); end > len(region) {
		grown := make([]byte, end)
		copy(grown, region)
		region = grown
	}
	copy(region[offset:], src)
	h.symbols[symbol] = region
	return nil
}

// Symbol returns the named constant region.
func (h *Host) Symbol(symbol string) ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	region, ok := h.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("symbol %q: %w", symbol, ErrUnknownSymbol)
	}
	return region, nil
}

// View returns device memory from p to the end of its allocation.
func (h *Host) View(p Ptr) ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.resolve(p, 0)
}

// Launch runs kernel for every index in [0, n) on the worker pool.
func (h *Host) Launch(n int, kernel Kernel) error {
	if n <= 0 {
		return nil
	}

	numWorkers := h.workers
	if numWorkers > n {
		numWorkers = n
	}

	// Pre-fill the job channel so workers never wait on the producer
	jobs := make(chan int, n)
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				if err := kernel(index); err != nil {
					errOnce.Do(func() {
						firstErr = fmt.Errorf("work item %d: %w", index, err)
					})
				}
			}
		}()
	}
	wg.Wait()

	return firstErr
}

// Allocations returns the number of live allocations.
func (h *Host) Allocations() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allocs)
}

// MemoryUsed returns the number of allocated bytes.
func (h *Host) MemoryUsed() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.used
}

// resolve must be called with h.mu held.
func (h *Host) resolve(p Ptr, size int) ([]byte, error) {
	if p.IsNil() {
		return nil, ErrInvalidPointer
	}
	mem, ok := h.allocs[p.id()]
	if !ok {
		return nil, fmt.Errorf("%v: %w", p, ErrInvalidPointer)
	}
	off := p.Offset()
	if off > len(mem) || size > len(mem)-off {
		return nil, fmt.Errorf("%v size %d (allocation %d bytes): %w", p, size, len(mem), ErrOutOfRange)
	}
	return mem[off:], nil
}
