package gpujpeg

import (
	"fmt"

	"github.com/cocosip/go-dicom/pkg/dicom/transfer"
	"github.com/cocosip/go-dicom/pkg/imaging/codec"
	"github.com/cocosip/go-dicom/pkg/imaging/imagetypes"

	"github.com/cocosip/go-gpujpeg/device"
)

var _ codec.Codec = (*DICOMCodec)(nil)

// DICOMCodec implements the go-dicom codec interface for JPEG Baseline
// (Process 1) with the accelerated encoder.
// Transfer Syntax UID: 1.2.840.10008.1.2.4.50
type DICOMCodec struct {
	transferSyntax *transfer.Syntax
	dev            device.Device
	quality        int
}

// NewDICOMCodec creates a codec with the given default quality that encodes
// on dev. A nil dev uses a Host device.
func NewDICOMCodec(dev device.Device, quality int) *DICOMCodec {
	if dev == nil {
		dev = device.NewHost()
	}
	if quality < 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &DICOMCodec{
		transferSyntax: transfer.JPEGBaseline8Bit,
		dev:            dev,
		quality:        quality,
	}
}

// Name returns the codec name
func (c *DICOMCodec) Name() string {
	return fmt.Sprintf("JPEG Baseline GPUJPEG (Quality %d)", c.quality)
}

// TransferSyntax returns the transfer syntax this codec handles
func (c *DICOMCodec) TransferSyntax() *transfer.Syntax {
	return c.transferSyntax
}

// GetDefaultParameters returns the default codec parameters
func (c *DICOMCodec) GetDefaultParameters() codec.Parameters {
	return NewGPUJPEGParameters().WithQuality(c.quality)
}

// Encode encodes every frame of 8-bit interleaved RGB pixel data. All
// frames share one encoder session.
func (c *DICOMCodec) Encode(oldPixelData imagetypes.PixelData, newPixelData imagetypes.PixelData, parameters codec.Parameters) error {
	if oldPixelData == nil || newPixelData == nil {
		return fmt.Errorf("source and destination PixelData cannot be nil")
	}

	frameInfo := oldPixelData.GetFrameInfo()
	if frameInfo == nil {
		return fmt.Errorf("failed to get frame info from source pixel data")
	}
	if frameInfo.BitsAllocated != 8 {
		return fmt.Errorf("%w: BitsAllocated %d (must be 8)", ErrUnsupported, frameInfo.BitsAllocated)
	}
	if frameInfo.SamplesPerPixel != ComponentCount {
		return fmt.Errorf("%w: SamplesPerPixel %d (must be %d)", ErrUnsupported, frameInfo.SamplesPerPixel, ComponentCount)
	}

	param := c.parameters(parameters)
	enc, err := NewEncoder(c.dev, param, NewImageParameters(int(frameInfo.Width), int(frameInfo.Height)))
	if err != nil {
		return err
	}
	defer enc.Close()

	frameCount := oldPixelData.FrameCount()
	for frameIndex := 0; frameIndex < frameCount; frameIndex++ {
		frameData, err := oldPixelData.GetFrame(frameIndex)
		if err != nil {
			return fmt.Errorf("failed to get frame %d: %w", frameIndex, err)
		}
		if len(frameData) == 0 {
			return fmt.Errorf("frame %d pixel data is empty", frameIndex)
		}
		if frameInfo.PlanarConfiguration == 1 {
			frameData = interleavePlanes(frameData, int(frameInfo.Width)*int(frameInfo.Height))
		}

		encoded, err := enc.Encode(frameData)
		if err != nil {
			return fmt.Errorf("GPUJPEG encode failed for frame %d: %w", frameIndex, err)
		}

		// encoded aliases the session buffer, which the next frame overwrites
		if err := newPixelData.AddFrame(append([]byte(nil), encoded...)); err != nil {
			return fmt.Errorf("failed to add encoded frame %d: %w", frameIndex, err)
		}
	}

	return nil
}

// Decode is not supported
func (c *DICOMCodec) Decode(oldPixelData imagetypes.PixelData, newPixelData imagetypes.PixelData, parameters codec.Parameters) error {
	return fmt.Errorf("%w: %s decode", ErrUnsupported, c.Name())
}

// parameters resolves typed or generic codec parameters
func (c *DICOMCodec) parameters(parameters codec.Parameters) Parameters {
	var p *GPUJPEGParameters
	if parameters == nil {
		p = NewGPUJPEGParameters().WithQuality(c.quality)
	} else if gp, ok := parameters.(*GPUJPEGParameters); ok {
		p = gp
	} else {
		// Fallback: create from generic parameters
		p = NewGPUJPEGParameters().WithQuality(c.quality)
		if q := parameters.GetParameter("quality"); q != nil {
			if qInt, ok := q.(int); ok {
				p.Quality = qInt
			}
		}
		if ri := parameters.GetParameter("restartInterval"); ri != nil {
			if riInt, ok := ri.(int); ok {
				p.RestartInterval = riInt
			}
		}
		if il := parameters.GetParameter("interleaved"); il != nil {
			if ilBool, ok := il.(bool); ok {
				p.Interleaved = ilBool
			}
		}
	}
	p.Validate()
	return p.Encoding()
}

// interleavePlanes converts RRR...GGG...BBB... to RGBRGB...
func interleavePlanes(planar []byte, pixels int) []byte {
	if len(planar) < 3*pixels {
		return planar
	}
	out := make([]byte, 3*pixels)
	for i := 0; i < pixels; i++ {
		out[3*i] = planar[i]
		out[3*i+1] = planar[pixels+i]
		out[3*i+2] = planar[2*pixels+i]
	}
	return out
}

// RegisterGPUJPEGCodec registers the codec with the go-dicom global registry
func RegisterGPUJPEGCodec(quality int) {
	registry := codec.GetGlobalRegistry()
	registry.RegisterCodec(transfer.JPEGBaseline8Bit, NewDICOMCodec(nil, quality))
}

func init() {
	RegisterGPUJPEGCodec(DefaultQuality)
}
