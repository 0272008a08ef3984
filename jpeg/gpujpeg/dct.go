package gpujpeg

import (
	"encoding/binary"
	"fmt"

	"github.com/cocosip/go-gpujpeg/device"
	"github.com/cocosip/go-gpujpeg/jpeg/common"
)

// Transformer runs the forward DCT and quantization of one plane.
// in holds width*height samples, width and height being multiples of 8.
// out receives the quantized blocks in raster order, each 64 little-endian
// int16 in natural order. table is a device quantization table.
type Transformer interface {
	ForwardTransformQuantize(dev device.Device, in, out, table device.Ptr, width, height int) error
}

type dctQuantizer struct{}

func (dctQuantizer) ForwardTransformQuantize(dev device.Device, in, out, table device.Ptr, width, height int) error {
	if width <= 0 || height <= 0 || width%8 != 0 || height%8 != 0 {
		return fmt.Errorf("%w: plane %dx%d", common.ErrInvalidDimensions, width, height)
	}

	src, err := dev.View(in)
	if err != nil {
		return err
	}
	dst, err := dev.View(out)
	if err != nil {
		return err
	}
	qraw, err := dev.View(table)
	if err != nil {
		return err
	}
	if len(src) < width*height || len(dst) < 2*width*height {
		return fmt.Errorf("plane %dx%d: %w", width, height, common.ErrBufferTooSmall)
	}

	var quant [common.BlockSize]uint16
	if err := unmarshalQuantizationTable(qraw, &quant); err != nil {
		return err
	}
	for i, q := range quant {
		if q == 0 {
			return fmt.Errorf("quantization table entry %d is zero: %w", i, common.ErrInvalidQuality)
		}
	}

	blocksPerRow := width / 8
	blocks := blocksPerRow * (height / 8)

	// One work item per block
	return dev.Launch(blocks, func(i int) error {
		bx, by := i%blocksPerRow, i/blocksPerRow

		var coef [common.BlockSize]float64
		common.DCT(src[by*8*width+bx*8:], width, &coef)

		var q [common.BlockSize]int16
		common.Quantize(&coef, quant[:], q[:])

		o := dst[i*common.BlockSize*2:]
		for k, v := range q {
			binary.LittleEndian.PutUint16(o[k*2:], uint16(v))
		}
		return nil
	})
}
