package device

import (
	"fmt"
	"sync"
)

// Op identifies a device operation for call counting and fault injection.
type Op int

const (
	OpMalloc Op = iota
	OpFree
	OpCopyToDevice
	OpCopyToHost
	OpCopyToSymbol
	OpLaunch
	opCount
)

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpMalloc:
		return "malloc"
	case OpFree:
		return "free"
	case OpCopyToDevice:
		return "copy-to-device"
	case OpCopyToHost:
		return "copy-to-host"
	case OpCopyToSymbol:
		return "copy-to-symbol"
	case OpLaunch:
		return "launch"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

var _ Device = (*Tracker)(nil)

// Tracker wraps a Device, records every live allocation and can fail
// selected calls. It is used to check that resources are released on every
// path.
type Tracker struct {
	Device

	mu       sync.Mutex
	live     map[Ptr]int
	calls    [opCount]int
	failures map[Op]map[int]bool
	freeErrs int
}

// NewTracker wraps dev.
func NewTracker(dev Device) *Tracker {
	return &Tracker{
		Device:   dev,
		live:     make(map[Ptr]int),
		failures: make(map[Op]map[int]bool),
	}
}

// FailOn makes the call-th invocation (1-based) of op fail with ErrInjected.
func (t *Tracker) FailOn(op Op, call int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failures[op] == nil {
		t.failures[op] = make(map[int]bool)
	}
	t.failures[op][call] = true
}

// Reset clears call counters and injected failures. Live allocations are kept.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls = [opCount]int{}
	t.failures = make(map[Op]map[int]bool)
	t.freeErrs = 0
}

// Calls returns how many times op was invoked.
func (t *Tracker) Calls(op Op) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[op]
}

// Live returns the number of allocations not yet freed.
func (t *Tracker) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

// LiveBytes returns the size of allocations not yet freed.
func (t *Tracker) LiveBytes() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := 0
	for _, size := range t.live {
		total += size
	}
	return total
}

// InvalidFrees returns how many Free calls targeted an unknown handle.
func (t *Tracker) InvalidFrees() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.freeErrs
}

func (t *Tracker) enter(op Op) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls[op]++
	if t.failures[op][t.calls[op]] {
		return fmt.Errorf("%v call %d: %w", op, t.calls[op], ErrInjected)
	}
	return nil
}

// Malloc records the allocation on success.
func (t *Tracker) Malloc(size int) (Ptr, error) {
	if err := t.enter(OpMalloc); err != nil {
		return Nil, err
	}
	p, err := t.Device.Malloc(size)
	if err != nil {
		return Nil, err
	}

	t.mu.Lock()
	t.live[p] = size
	t.mu.Unlock()
	return p, nil
}

// Free forgets the allocation and counts frees of unknown handles.
func (t *Tracker) Free(p Ptr) error {
	if err := t.enter(OpFree); err != nil {
		return err
	}

	t.mu.Lock()
	if _, ok := t.live[p]; !ok {
		t.freeErrs++
	}
	delete(t.live, p)
	t.mu.Unlock()

	return t.Device.Free(p)
}

// CopyToDevice forwards unless an injected failure is due.
func (t *Tracker) CopyToDevice(dst Ptr, src []byte) error {
	if err := t.enter(OpCopyToDevice); err != nil {
		return err
	}
	return t.Device.CopyToDevice(dst, src)
}

// CopyToHost forwards unless an injected failure is due.
func (t *Tracker) CopyToHost(dst []byte, src Ptr) error {
	if err := t.enter(OpCopyToHost); err != nil {
		return err
	}
	return t.Device.CopyToHost(dst, src)
}

// CopyToSymbol forwards unless an injected failure is due.
func (t *Tracker) CopyToSymbol(symbol string, offset int, src []byte) error {
	if err := t.enter(OpCopyToSymbol); err != nil {
		return err
	}
	return t.Device.CopyToSymbol(symbol, offset, src)
}

// Launch forwards unless an injected failure is due.
func (t *Tracker) Launch(n int, kernel Kernel) error {
	if err := t.enter(OpLaunch); err != nil {
		return err
	}
	return t.Device.Launch(n, kernel)
}
