package gpujpeg

import (
	"encoding/binary"
	"fmt"

	"github.com/cocosip/go-gpujpeg/device"
	"github.com/cocosip/go-gpujpeg/jpeg/common"
)

// ComponentType selects the table set of a component
type ComponentType int

const (
	ComponentLuminance ComponentType = iota
	ComponentChrominance
	ComponentTypeCount = 2
)

func (t ComponentType) String() string {
	switch t {
	case ComponentLuminance:
		return "luminance"
	case ComponentChrominance:
		return "chrominance"
	default:
		return fmt.Sprintf("component-type(%d)", int(t))
	}
}

// HuffmanType selects the DC or AC table
type HuffmanType int

const (
	HuffmanDC HuffmanType = iota
	HuffmanAC
	HuffmanTypeCount = 2
)

func (t HuffmanType) String() string {
	switch t {
	case HuffmanDC:
		return "DC"
	case HuffmanAC:
		return "AC"
	default:
		return fmt.Sprintf("huffman-type(%d)", int(t))
	}
}

const (
	// quantizationTableSize is the device size of one quantization table
	// (64 little-endian uint16 in natural order)
	quantizationTableSize = common.BlockSize * 2

	// huffmanTableSize is the device size of one Huffman table: for each of
	// the 256 symbols a little-endian uint16 code, a uint8 length and a pad byte
	huffmanTableSize = 256 * 4

	// huffmanTableSymbol names the constant memory holding all four Huffman
	// tables, at index compType*HuffmanTypeCount + huffType
	huffmanTableSymbol = "gpujpeg_huffman_encoder_table"
)

// QuantizationTable is a quantization table with its device copy
type QuantizationTable struct {
	// Table holds the divisors in natural order
	Table [common.BlockSize]uint16

	// DTable is the device copy read by the forward DCT
	DTable device.Ptr
}

// init scales the default table of compType by quality and uploads it
func (t *QuantizationTable) init(dev device.Device, compType ComponentType, quality int) error {
	base := common.DefaultLuminanceQuantTable
	if compType == ComponentChrominance {
		base = common.DefaultChrominanceQuantTable
	}
	scaled := common.ScaleQuantTable(base, quality)
	for i, v := range scaled {
		t.Table[i] = uint16(v)
	}

	if t.DTable.IsNil() {
		return fmt.Errorf("%v quantization table: %w", compType, ErrNoDeviceTable)
	}
	if err := device.CopyUint16sToDevice(dev, t.DTable, t.Table[:]); err != nil {
		return fmt.Errorf("%v quantization table: %w: %w", compType, ErrTransfer, err)
	}
	return nil
}

// HuffmanEncoderTable is a standard Huffman table and its symbol lookup
type HuffmanEncoderTable struct {
	// Spec is the table as written to the DHT segment
	Spec *common.HuffmanTable

	// Codes is the lookup indexed by symbol
	Codes [256]common.HuffmanCode
}

// standardHuffmanSpec returns the Annex K table bits and values
func standardHuffmanSpec(compType ComponentType, huffType HuffmanType) ([16]int, []byte) {
	switch {
	case compType == ComponentLuminance && huffType == HuffmanDC:
		return common.StandardDCLuminanceBits, common.StandardDCLuminanceValues
	case compType == ComponentLuminance && huffType == HuffmanAC:
		return common.StandardACLuminanceBits, common.StandardACLuminanceValues
	case huffType == HuffmanDC:
		return common.StandardDCChrominanceBits, common.StandardDCChrominanceValues
	default:
		return common.StandardACChrominanceBits, common.StandardACChrominanceValues
	}
}

// init builds the standard table and uploads its lookup to dTable
func (t *HuffmanEncoderTable) init(dev device.Device, dTable device.Ptr, compType ComponentType, huffType HuffmanType) error {
	bits, values := standardHuffmanSpec(compType, huffType)
	t.Spec = &common.HuffmanTable{Bits: bits, Values: values}
	if err := t.Spec.Build(); err != nil {
		return fmt.Errorf("%v %v huffman table: %w", compType, huffType, err)
	}
	t.Codes = t.Spec.Codes()

	if dTable.IsNil() {
		return fmt.Errorf("%v %v huffman table: %w", compType, huffType, ErrNoDeviceTable)
	}
	if err := dev.CopyToDevice(dTable, t.marshal()); err != nil {
		return fmt.Errorf("%v %v huffman table: %w: %w", compType, huffType, ErrTransfer, err)
	}
	return nil
}

// marshal returns the device layout of the symbol lookup
func (t *HuffmanEncoderTable) marshal() []byte {
	buf := make([]byte, huffmanTableSize)
	for i, c := range t.Codes {
		binary.LittleEndian.PutUint16(buf[i*4:], c.Code)
		buf[i*4+2] = byte(c.Len)
	}
	return buf
}

// unmarshalHuffmanCodes reads a symbol lookup from its device layout
func unmarshalHuffmanCodes(buf []byte, codes *[256]common.HuffmanCode) error {
	if len(buf) < huffmanTableSize {
		return fmt.Errorf("huffman table of %d bytes: %w", len(buf), common.ErrBufferTooSmall)
	}
	for i := range codes {
		codes[i] = common.HuffmanCode{
			Code: binary.LittleEndian.Uint16(buf[i*4:]),
			Len:  int(buf[i*4+2]),
		}
	}
	return nil
}

// unmarshalQuantizationTable reads a table from its device layout
func unmarshalQuantizationTable(buf []byte, table *[common.BlockSize]uint16) error {
	if len(buf) < quantizationTableSize {
		return fmt.Errorf("quantization table of %d bytes: %w", len(buf), common.ErrBufferTooSmall)
	}
	for i := range table {
		table[i] = binary.LittleEndian.Uint16(buf[i*2:])
	}
	return nil
}

func huffmanTableIndex(compType ComponentType, huffType HuffmanType) int {
	return int(compType)*HuffmanTypeCount + int(huffType)
}
