package gpujpeg

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cocosip/go-gpujpeg/jpeg/common"
)

// ParallelCoder entropy codes every segment independently on the device.
// Each segment is written to its slot in Coder.DDataCompressed, terminated
// by its RST marker, and its size is stored in its record in
// Coder.DSegments.
type ParallelCoder interface {
	// Init performs process-wide one-time setup
	Init() error
	Encode(e *Encoder) error
}

// valueRange bounds the coefficient differences looked up in valueTable
const valueRange = 2048

var (
	valueTableOnce sync.Once

	// valueTable holds category<<16 | bits for every value in
	// [-valueRange, valueRange)
	valueTable [2 * valueRange]uint32
)

type gpuHuffmanCoder struct{}

func (gpuHuffmanCoder) Init() error {
	valueTableOnce.Do(func() {
		for v := -valueRange; v < valueRange; v++ {
			cat, bits := common.EncodeCategory(v)
			valueTable[v+valueRange] = uint32(cat)<<16 | bits
		}
	})
	return nil
}

func lookupValue(v int) (int, uint32) {
	if v < -valueRange || v >= valueRange {
		return common.EncodeCategory(v)
	}
	e := valueTable[v+valueRange]
	return int(e >> 16), e & 0xFFFF
}

// segmentTables are the codes a segment kernel reads, per component type
type segmentTables [ComponentTypeCount][HuffmanTypeCount][256]common.HuffmanCode

func (gpuHuffmanCoder) Encode(e *Encoder) error {
	c := &e.coder
	dev := e.dev

	var tables segmentTables
	if err := loadSegmentTables(e, &tables); err != nil {
		return err
	}

	quantized, err := dev.View(c.DDataQuantized)
	if err != nil {
		return err
	}
	compressed, err := dev.View(c.DDataCompressed)
	if err != nil {
		return err
	}
	records, err := dev.View(c.DSegments)
	if err != nil {
		return err
	}
	if len(records) < segmentRecordSize*len(c.Segments) || len(compressed) < c.DataCompressedSize {
		return fmt.Errorf("segment storage: %w", common.ErrBufferTooSmall)
	}

	// One work item per segment
	return dev.Launch(len(c.Segments), func(i int) error {
		record := records[i*segmentRecordSize:]
		seg := getSegment(record)

		capacity := segmentCapacity(c.blockCount(&seg))
		if seg.DataCompressedIndex < 0 || seg.DataCompressedIndex+capacity > len(compressed) {
			return fmt.Errorf("segment %d slot: %w", i, common.ErrBufferTooSmall)
		}
		w := &slotWriter{buf: compressed[seg.DataCompressedIndex : seg.DataCompressedIndex+capacity]}
		enc := common.NewHuffmanEncoder(w)

		if seg.Component == AllComponents {
			var preds [MaxComponentCount]int
			for mcu := seg.MCUIndex; mcu < seg.MCUIndex+seg.MCUCount; mcu++ {
				for ci := range c.Components {
					if err := encodeDeviceBlock(enc, quantized, &c.Components[ci], mcu, &preds[ci], &tables); err != nil {
						return fmt.Errorf("segment %d: %w", i, err)
					}
				}
			}
		} else {
			if seg.Component < 0 || seg.Component >= len(c.Components) {
				return fmt.Errorf("segment %d component %d: %w", i, seg.Component, common.ErrInvalidComponents)
			}
			comp := &c.Components[seg.Component]
			pred := 0
			for b := seg.MCUIndex; b < seg.MCUIndex+seg.MCUCount; b++ {
				if err := encodeDeviceBlock(enc, quantized, comp, b, &pred, &tables); err != nil {
					return fmt.Errorf("segment %d: %w", i, err)
				}
			}
		}

		if err := enc.Flush(); err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
		rst := common.RST(seg.RestartIndex)
		if err := w.WriteByte(byte(rst >> 8)); err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
		if err := w.WriteByte(byte(rst)); err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}

		binary.LittleEndian.PutUint32(record[segmentSizeField:], uint32(w.n))
		return nil
	})
}

// loadSegmentTables reads the Huffman tables from constant memory when it is
// enabled, otherwise from the per-table device copies
func loadSegmentTables(e *Encoder, tables *segmentTables) error {
	var constant []byte
	if e.cfg.constantTables {
		var err error
		if constant, err = e.dev.Symbol(huffmanTableSymbol); err != nil {
			return err
		}
	}

	for t := ComponentType(0); t < ComponentTypeCount; t++ {
		for h := HuffmanType(0); h < HuffmanTypeCount; h++ {
			var buf []byte
			if constant != nil {
				off := huffmanTableIndex(t, h) * huffmanTableSize
				if off > len(constant) {
					return fmt.Errorf("%v %v huffman table: %w", t, h, common.ErrBufferTooSmall)
				}
				buf = constant[off:]
			} else {
				var err error
				if buf, err = e.dev.View(e.dTableHuffman[t][h]); err != nil {
					return fmt.Errorf("%v %v huffman table: %w", t, h, err)
				}
			}
			if err := unmarshalHuffmanCodes(buf, &tables[t][h]); err != nil {
				return fmt.Errorf("%v %v huffman table: %w", t, h, err)
			}
		}
	}
	return nil
}

func encodeDeviceBlock(enc *common.HuffmanEncoder, quantized []byte, comp *Component, block int, pred *int, tables *segmentTables) error {
	start := 2 * (comp.QuantizedOffset + block*common.BlockSize)
	if block < 0 || block >= comp.BlockCount || start+2*common.BlockSize > len(quantized) {
		return fmt.Errorf("block %d: %w", block, common.ErrBufferTooSmall)
	}

	var coef [common.BlockSize]int16
	for k := range coef {
		coef[k] = int16(binary.LittleEndian.Uint16(quantized[start+2*k:]))
	}

	dcCodes := &tables[comp.Type][HuffmanDC]
	acCodes := &tables[comp.Type][HuffmanAC]

	dc := int(coef[0])
	cat, bits := lookupValue(dc - *pred)
	*pred = dc
	if err := enc.WriteCode(dcCodes[cat]); err != nil {
		return err
	}
	if err := enc.WriteBits(bits, cat); err != nil {
		return err
	}

	run := 0
	for k := 1; k < common.BlockSize; k++ {
		v := int(coef[common.ZigZag[k]])
		if v == 0 {
			run++
			continue
		}
		for ; run >= 16; run -= 16 {
			if err := enc.WriteCode(acCodes[0xF0]); err != nil {
				return err
			}
		}
		cat, bits := lookupValue(v)
		if err := enc.WriteCode(acCodes[run<<4|cat]); err != nil {
			return err
		}
		if err := enc.WriteBits(bits, cat); err != nil {
			return err
		}
		run = 0
	}
	if run > 0 {
		return enc.WriteCode(acCodes[0x00])
	}
	return nil
}

// slotWriter writes into a fixed segment slot
type slotWriter struct {
	buf []byte
	n   int
}

func (w *slotWriter) WriteByte(b byte) error {
	if w.n >= len(w.buf) {
		return fmt.Errorf("segment slot of %d bytes: %w", len(w.buf), common.ErrBufferTooSmall)
	}
	w.buf[w.n] = b
	w.n++
	return nil
}

var _ ParallelCoder = gpuHuffmanCoder{}
