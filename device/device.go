// Package device models the accelerator the encoder offloads its arithmetic
// to. Memory on the device is addressed through opaque Ptr handles, transfers
// between host and device are synchronous, and kernels run as a set of
// independent work items through Launch.
package device

import "fmt"

// Ptr is a handle to device memory. The upper 32 bits identify the
// allocation and the lower 32 bits hold a byte offset into it, so a Ptr can
// address the middle of an allocation the same way pointer arithmetic would.
// The zero value is the nil handle.
type Ptr uint64

// Nil is the nil device handle.
const Nil Ptr = 0

func makePtr(id uint32, offset int) Ptr {
	return Ptr(uint64(id)<<32 | uint64(uint32(offset)))
}

// Add returns p advanced by n bytes.
func (p Ptr) Add(n int) Ptr {
	if p == Nil {
		return Nil
	}
	return makePtr(p.id(), p.Offset()+n)
}

// IsNil reports whether p is the nil handle.
func (p Ptr) IsNil() bool {
	return p == Nil
}

// Offset returns the byte offset of p inside its allocation.
func (p Ptr) Offset() int {
	return int(uint32(p))
}

// Base returns the handle of the allocation start.
func (p Ptr) Base() Ptr {
	return makePtr(p.id(), 0)
}

func (p Ptr) id() uint32 {
	return uint32(p >> 32)
}

// String formats the handle as allocation+offset.
func (p Ptr) String() string {
	if p == Nil {
		return "nil"
	}
	return fmt.Sprintf("dev#%d+%d", p.id(), p.Offset())
}

// Kernel is one work item of a launched kernel. It receives the work item
// index in [0, n).
type Kernel func(index int) error

// Device is an accelerator with its own memory.
//
// All transfers block until complete and act as synchronization barriers.
// Launch blocks until every work item finished.
type Device interface {
	// Malloc allocates size bytes of device memory.
	Malloc(size int) (Ptr, error)

	// Free releases an allocation. p must be the allocation start.
	Free(p Ptr) error

	// CopyToDevice copies src into device memory starting at dst.
	CopyToDevice(dst Ptr, src []byte) error

	// CopyToHost copies len(dst) bytes of device memory starting at src.
	CopyToHost(dst []byte, src Ptr) error

	// CopyToSymbol copies src into the constant memory region named symbol
	// at the given byte offset.
	CopyToSymbol(symbol string, offset int, src []byte) error

	// Symbol returns the constant memory region named symbol. Only kernels
	// may read it.
	Symbol(symbol string) ([]byte, error)

	// View returns device memory from p to the end of its allocation. Only
	// kernels may access it.
	View(p Ptr) ([]byte, error)

	// Launch runs kernel for every index in [0, n) and returns the first
	// error reported by any work item.
	Launch(n int, kernel Kernel) error
}
