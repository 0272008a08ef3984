package device

import "encoding/binary"

// Device memory holds multi-byte values in little-endian order.

// CopyInt16sToHost copies len(dst) int16 values from device memory at src.
func CopyInt16sToHost(dev Device, dst []int16, src Ptr) error {
	raw := make([]byte, 2*len(dst))
	if err := dev.CopyToHost(raw, src); err != nil {
		return err
	}
	for i := range dst {
		dst[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return nil
}

// CopyUint16sToDevice copies src to device memory at dst.
func CopyUint16sToDevice(dev Device, dst Ptr, src []uint16) error {
	raw := make([]byte, 2*len(src))
	for i, v := range src {
		binary.LittleEndian.PutUint16(raw[2*i:], v)
	}
	return dev.CopyToDevice(dst, raw)
}
