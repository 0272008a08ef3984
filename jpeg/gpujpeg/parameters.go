package gpujpeg

import (
	"fmt"

	"github.com/cocosip/go-dicom/pkg/imaging/codec"

	"github.com/cocosip/go-gpujpeg/jpeg/common"
)

const (
	// MaxComponentCount is the largest component count a coder can hold
	MaxComponentCount = 4

	// ComponentCount is the only supported component count (Y, Cb, Cr)
	ComponentCount = 3

	// MaxRestartInterval is the largest interval the DRI segment can carry
	MaxRestartInterval = 0xFFFF

	// DefaultQuality is the quality used when none is given
	DefaultQuality = 75

	// DefaultRestartInterval is the restart interval used when none is given
	DefaultRestartInterval = 8
)

// Parameters fix the shape of every encoded image of a session
type Parameters struct {
	// Quality controls the quantization tables (0-100, higher is better)
	Quality int

	// RestartInterval is the number of MCUs between restart markers.
	// 0 disables restart markers and selects the sequential entropy coder;
	// any other value selects the parallel segment coder.
	RestartInterval int

	// Interleaved writes all components into a single scan instead of one
	// scan per component
	Interleaved bool
}

// DefaultParameters returns quality 75, restart interval 8, one scan per component
func DefaultParameters() Parameters {
	return Parameters{
		Quality:         DefaultQuality,
		RestartInterval: DefaultRestartInterval,
		Interleaved:     false,
	}
}

// Validate checks the encoding parameters
func (p Parameters) Validate() error {
	if p.Quality < 0 || p.Quality > 100 {
		return fmt.Errorf("%w: %d (must be 0-100)", common.ErrInvalidQuality, p.Quality)
	}
	if p.RestartInterval < 0 || p.RestartInterval > MaxRestartInterval {
		return fmt.Errorf("%w: %d", common.ErrInvalidRestartInterval, p.RestartInterval)
	}
	return nil
}

// ImageParameters describe the raw images a session accepts
type ImageParameters struct {
	Width     int
	Height    int
	CompCount int
}

// NewImageParameters returns parameters for an interleaved 8-bit RGB image
func NewImageParameters(width, height int) ImageParameters {
	return ImageParameters{
		Width:     width,
		Height:    height,
		CompCount: ComponentCount,
	}
}

// Validate checks the image parameters
func (p ImageParameters) Validate() error {
	if p.Width <= 0 || p.Height <= 0 || p.Width > 0xFFFF || p.Height > 0xFFFF {
		return fmt.Errorf("%w: %dx%d", common.ErrInvalidDimensions, p.Width, p.Height)
	}
	if p.CompCount != ComponentCount || p.CompCount > MaxComponentCount {
		return fmt.Errorf("%w: %d (must be %d)", common.ErrInvalidComponents, p.CompCount, ComponentCount)
	}
	return nil
}

// RawSize returns the byte size of one raw image
func (p ImageParameters) RawSize() int {
	return p.Width * p.Height * p.CompCount
}

// Ensure GPUJPEGParameters implements codec.Parameters
var _ codec.Parameters = (*GPUJPEGParameters)(nil)

// GPUJPEGParameters contains parameters for accelerated JPEG Baseline compression
type GPUJPEGParameters struct {
	// Quality controls the JPEG compression quality (0-100)
	// - 100: Best quality, minimal compression
	// - 75:  Medium quality, good balance (default)
	// - 50:  Lower quality, higher compression
	Quality int

	// RestartInterval is the number of MCUs per restart interval.
	// - 0: no restart markers, entropy coding runs on the host
	// - 8: default, entropy coding runs per segment on the device
	RestartInterval int

	// Interleaved selects a single scan for all components
	Interleaved bool

	// internal storage for compatibility with generic parameter interface
	params map[string]interface{}
}

// NewGPUJPEGParameters creates a new GPUJPEGParameters with default values
func NewGPUJPEGParameters() *GPUJPEGParameters {
	return &GPUJPEGParameters{
		Quality:         DefaultQuality,
		RestartInterval: DefaultRestartInterval,
		Interleaved:     false,
		params:          make(map[string]interface{}),
	}
}

// GetParameter retrieves a parameter by name (implements codec.Parameters)
func (p *GPUJPEGParameters) GetParameter(name string) interface{} {
	switch name {
	case "quality":
		return p.Quality
	case "restartInterval":
		return p.RestartInterval
	case "interleaved":
		return p.Interleaved
	default:
		// Check custom parameters
		return p.params[name]
	}
}

// SetParameter sets a parameter value (implements codec.Parameters)
func (p *GPUJPEGParameters) SetParameter(name string, value interface{}) {
	switch name {
	case "quality":
		if v, ok := value.(int); ok {
			p.Quality = v
		}
	case "restartInterval":
		if v, ok := value.(int); ok {
			p.RestartInterval = v
		}
	case "interleaved":
		if v, ok := value.(bool); ok {
			p.Interleaved = v
		}
	default:
		if p.params == nil {
			p.params = make(map[string]interface{})
		}
		// Store as custom parameter
		p.params[name] = value
	}
}

// Validate checks if the parameters are valid and resets invalid values to defaults
func (p *GPUJPEGParameters) Validate() error {
	if p.Quality < 0 || p.Quality > 100 {
		p.Quality = DefaultQuality
	}
	if p.RestartInterval < 0 || p.RestartInterval > MaxRestartInterval {
		p.RestartInterval = DefaultRestartInterval
	}
	return nil
}

// WithQuality sets the quality and returns the parameters for chaining
func (p *GPUJPEGParameters) WithQuality(quality int) *GPUJPEGParameters {
	p.Quality = quality
	return p
}

// WithRestartInterval sets the restart interval and returns the parameters for chaining
func (p *GPUJPEGParameters) WithRestartInterval(interval int) *GPUJPEGParameters {
	p.RestartInterval = interval
	return p
}

// WithInterleaved sets scan interleaving and returns the parameters for chaining
func (p *GPUJPEGParameters) WithInterleaved(interleaved bool) *GPUJPEGParameters {
	p.Interleaved = interleaved
	return p
}

// Encoding returns the session parameters
func (p *GPUJPEGParameters) Encoding() Parameters {
	return Parameters{
		Quality:         p.Quality,
		RestartInterval: p.RestartInterval,
		Interleaved:     p.Interleaved,
	}
}
