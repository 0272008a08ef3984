package gpujpeg

import (
	"errors"
	"fmt"
)

// Encoder errors
var (
	// ErrCreate is returned when any step of session creation failed
	ErrCreate = errors.New("gpujpeg: encoder creation failed")

	// ErrClosed is returned when a closed encoder is used
	ErrClosed = errors.New("gpujpeg: encoder is closed")

	// ErrNoDevice is returned when no device is given
	ErrNoDevice = errors.New("gpujpeg: no device")

	// ErrNoDeviceTable is returned when a table has no device storage to mirror into
	ErrNoDeviceTable = errors.New("gpujpeg: table has no device storage")

	// ErrInvalidImage is returned when the raw image does not match the image parameters
	ErrInvalidImage = errors.New("gpujpeg: raw image does not match image parameters")

	// ErrTransfer is returned when a host/device copy fails
	ErrTransfer = errors.New("gpujpeg: device transfer failed")

	// ErrPreprocess is returned when the color transform stage fails
	ErrPreprocess = errors.New("gpujpeg: preprocessor failed")

	// ErrTransform is returned when the forward DCT and quantization fails
	ErrTransform = errors.New("gpujpeg: forward DCT failed")

	// ErrEntropy is returned when either Huffman coder fails
	ErrEntropy = errors.New("gpujpeg: huffman encoder failed")

	// ErrUnsupported is returned for operations outside the encoder's scope
	ErrUnsupported = errors.New("gpujpeg: unsupported operation")
)

// TransformError reports the component whose forward DCT failed
type TransformError struct {
	Component int
	Err       error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("gpujpeg: forward DCT failed for component at index %d: %v", e.Component, e.Err)
}

// Unwrap returns ErrTransform and the kernel error
func (e *TransformError) Unwrap() []error {
	return []error{ErrTransform, e.Err}
}
