package gpujpeg

import (
	"fmt"

	"github.com/cocosip/go-gpujpeg/jpeg/common"
)

// SequentialCoder entropy codes the host copy of the quantized data
// (Coder.DataQuantized) straight into the encoder's writer, scan headers
// included. It is used when restart markers are disabled.
type SequentialCoder interface {
	Encode(e *Encoder) error
}

type cpuHuffmanCoder struct{}

func (cpuHuffmanCoder) Encode(e *Encoder) error {
	c := &e.coder
	w := e.writer

	if c.Param.Interleaved {
		if err := writeScanHeader(e, AllComponents); err != nil {
			return err
		}
		enc := common.NewHuffmanEncoder(w)
		preds := make([]int, len(c.Components))
		for mcu := 0; mcu < c.MCUCount; mcu++ {
			for i := range c.Components {
				comp := &c.Components[i]
				if err := encodeHostBlock(e, enc, comp, mcu, &preds[i]); err != nil {
					return fmt.Errorf("mcu %d component %d: %w", mcu, i, err)
				}
			}
		}
		return enc.Flush()
	}

	for i := range c.Components {
		comp := &c.Components[i]
		if err := writeScanHeader(e, i); err != nil {
			return err
		}
		enc := common.NewHuffmanEncoder(w)
		pred := 0
		for b := 0; b < comp.BlockCount; b++ {
			if err := encodeHostBlock(e, enc, comp, b, &pred); err != nil {
				return fmt.Errorf("component %d block %d: %w", i, b, err)
			}
		}
		if err := enc.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func encodeHostBlock(e *Encoder, enc *common.HuffmanEncoder, comp *Component, block int, pred *int) error {
	start := comp.QuantizedOffset + block*common.BlockSize
	data := e.coder.DataQuantized
	if start+common.BlockSize > len(data) {
		return fmt.Errorf("block at %d: %w", start, common.ErrBufferTooSmall)
	}

	tables := &e.tableHuffman[comp.Type]
	dc, err := common.EncodeBlock(enc, data[start:start+common.BlockSize], *pred, &tables[HuffmanDC].Codes, &tables[HuffmanAC].Codes)
	*pred = dc
	return err
}
