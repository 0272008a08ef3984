package gpujpeg

import (
	"fmt"

	"github.com/cocosip/go-gpujpeg/codec"
	"github.com/cocosip/go-gpujpeg/device"
)

// Codec implements the codec.Codec interface on top of a one-shot Encoder
// session. Every call creates and closes its own session.
type Codec struct {
	dev device.Device
}

// NewCodec creates a codec that encodes on dev. A nil dev uses a Host device.
func NewCodec(dev device.Device) *Codec {
	if dev == nil {
		dev = device.NewHost()
	}
	return &Codec{dev: dev}
}

// Encode encodes 8-bit RGB pixel data
func (c *Codec) Encode(params codec.EncodeParams) ([]byte, error) {
	param := DefaultParameters()
	if params.Options != nil {
		opts, ok := params.Options.(*Options)
		if !ok {
			return nil, fmt.Errorf("%w: options of type %T", codec.ErrInvalidParameter, params.Options)
		}
		if err := opts.Validate(); err != nil {
			return nil, err
		}
		param = opts.Parameters()
	}
	if params.BitDepth != 0 && params.BitDepth != 8 {
		return nil, fmt.Errorf("%w: %d-bit samples", codec.ErrUnsupportedFormat, params.BitDepth)
	}

	enc, err := NewEncoder(c.dev, param, ImageParameters{
		Width:     params.Width,
		Height:    params.Height,
		CompCount: params.Components,
	})
	if err != nil {
		return nil, err
	}
	defer enc.Close()

	out, err := enc.Encode(params.PixelData)
	if err != nil {
		return nil, err
	}
	// out aliases the session buffer released by Close
	return append([]byte(nil), out...), nil
}

// UID returns the DICOM Transfer Syntax UID for JPEG Baseline
func (c *Codec) UID() string {
	return "1.2.840.10008.1.2.4.50"
}

// Name returns the human-readable name
func (c *Codec) Name() string {
	return "jpeg-gpujpeg"
}

// Options contains encoding options for the accelerated encoder
type Options struct {
	codec.BaseOptions

	// RestartInterval is the number of MCUs per restart segment, 0 for none
	RestartInterval int

	// Interleaved writes a single scan for all components
	Interleaved bool
}

// Validate validates the options
func (o *Options) Validate() error {
	if err := o.BaseOptions.Validate(); err != nil {
		return err
	}
	if o.RestartInterval < 0 || o.RestartInterval > MaxRestartInterval {
		return codec.ErrInvalidParameter
	}
	return nil
}

// Parameters converts the options to session parameters
func (o *Options) Parameters() Parameters {
	return Parameters{
		Quality:         o.Quality,
		RestartInterval: o.RestartInterval,
		Interleaved:     o.Interleaved,
	}
}

// Register registers this codec with the global registry
func init() {
	codec.Register(NewCodec(nil))
}
