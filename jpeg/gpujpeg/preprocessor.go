package gpujpeg

import (
	"fmt"

	"github.com/cocosip/go-gpujpeg/device"
	"github.com/cocosip/go-gpujpeg/jpeg/common"
)

// Preprocessor converts the raw image in DRaw into the padded planes of DData
type Preprocessor interface {
	Encode(c *Coder, dev device.Device) error
}

// rgbPreprocessor converts interleaved RGB to planar YCbCr, replicating the
// last row and column into the block padding
type rgbPreprocessor struct{}

func (rgbPreprocessor) Encode(c *Coder, dev device.Device) error {
	raw, err := dev.View(c.DRaw)
	if err != nil {
		return err
	}
	data, err := dev.View(c.DData)
	if err != nil {
		return err
	}
	if len(raw) < c.RawSize || len(data) < c.DataSize {
		return fmt.Errorf("preprocess %d -> %d bytes: %w", c.RawSize, c.DataSize, common.ErrBufferTooSmall)
	}
	if len(c.Components) != ComponentCount {
		return fmt.Errorf("%w: %d", common.ErrInvalidComponents, len(c.Components))
	}

	width, height := c.ParamImage.Width, c.ParamImage.Height
	y, cb, cr := c.Components[0], c.Components[1], c.Components[2]

	// One work item per padded row
	return dev.Launch(y.DataHeight, func(row int) error {
		srcRow := min(row, height-1) * width * 3
		for x := 0; x < y.DataWidth; x++ {
			src := srcRow + min(x, width-1)*3
			r, g, b := int32(raw[src]), int32(raw[src+1]), int32(raw[src+2])

			// ITU-R BT.601 full range, 16-bit fixed point
			yy := (19595*r + 38470*g + 7471*b + 32768) >> 16
			u := (-11056*r - 21712*g + 32768*b + 8421376) >> 16
			v := (32768*r - 27440*g - 5328*b + 8421376) >> 16

			data[y.DataOffset+row*y.DataWidth+x] = byte(common.Clamp(int(yy), 0, 255))
			data[cb.DataOffset+row*cb.DataWidth+x] = byte(common.Clamp(int(u), 0, 255))
			data[cr.DataOffset+row*cr.DataWidth+x] = byte(common.Clamp(int(v), 0, 255))
		}
		return nil
	})
}
