package common

import "io"

// HuffmanTable represents a Huffman coding table
type HuffmanTable struct {
	// Number of codes of each length (1-16 bits)
	Bits [16]int
	// Values for each code, in order of code length
	Values []byte
	// Codes indexed by symbol value
	codes [256]HuffmanCode
}

// HuffmanCode represents a Huffman code
type HuffmanCode struct {
	Code uint16 // The Huffman code
	Len  int    // Code length in bits, 0 if the symbol has no code
}

// Build assigns canonical codes to the table values
func (h *HuffmanTable) Build() error {
	total := 0
	for _, count := range h.Bits {
		total += count
	}
	if total != len(h.Values) || total > 256 {
		return ErrInvalidHuffmanTable
	}

	h.codes = [256]HuffmanCode{}
	code := uint32(0)
	p := 0
	for l := 0; l < 16; l++ {
		for i := 0; i < h.Bits[l]; i++ {
			// A code that no longer fits in l+1 bits means the counts overflow the tree
			if code >= 1<<uint(l+1) {
				return ErrInvalidHuffmanTable
			}
			h.codes[h.Values[p]] = HuffmanCode{Code: uint16(code), Len: l + 1}
			code++
			p++
		}
		code <<= 1
	}

	return nil
}

// Code returns the code of a symbol
func (h *HuffmanTable) Code(symbol byte) HuffmanCode {
	return h.codes[symbol]
}

// Codes returns the code lookup indexed by symbol value
func (h *HuffmanTable) Codes() [256]HuffmanCode {
	return h.codes
}

// HuffmanEncoder packs variable length codes into bytes
type HuffmanEncoder struct {
	w     io.ByteWriter
	bits  uint32 // Bit buffer
	nBits int    // Number of bits in buffer
}

// NewHuffmanEncoder creates a new Huffman encoder
func NewHuffmanEncoder(w io.ByteWriter) *HuffmanEncoder {
	return &HuffmanEncoder{w: w}
}

// WriteBits writes the n least significant bits of bits (n <= 16)
func (e *HuffmanEncoder) WriteBits(bits uint32, n int) error {
	if n == 0 {
		return nil
	}

	e.bits = (e.bits << uint(n)) | (bits & ((1 << uint(n)) - 1))
	e.nBits += n

	for e.nBits >= 8 {
		b := byte(e.bits >> uint(e.nBits-8))
		if err := e.writeByte(b); err != nil {
			return err
		}
		e.nBits -= 8
	}

	return nil
}

// WriteCode writes a Huffman code
func (e *HuffmanEncoder) WriteCode(c HuffmanCode) error {
	if c.Len == 0 {
		return ErrInvalidSymbol
	}
	return e.WriteBits(uint32(c.Code), c.Len)
}

// writeByte writes a byte with byte stuffing
func (e *HuffmanEncoder) writeByte(b byte) error {
	if err := e.w.WriteByte(b); err != nil {
		return err
	}

	// Byte stuffing: if we write 0xFF, follow with 0x00
	if b == 0xFF {
		return e.w.WriteByte(0x00)
	}

	return nil
}

// Flush writes any remaining bits, padding the last byte with 1s
func (e *HuffmanEncoder) Flush() error {
	if e.nBits > 0 {
		b := byte((e.bits << uint(8-e.nBits)) | ((1 << uint(8-e.nBits)) - 1))
		if err := e.writeByte(b); err != nil {
			return err
		}
	}
	e.nBits = 0
	e.bits = 0
	return nil
}

// EncodeCategory returns the magnitude category of val and the bits that
// follow its code
func EncodeCategory(val int) (cat int, bits uint32) {
	if val == 0 {
		return 0, 0
	}

	absVal := val
	if absVal < 0 {
		absVal = -absVal
	}

	// Find category (number of bits needed)
	cat = 1
	for (1 << uint(cat)) <= absVal {
		cat++
	}

	// Negative values are stored as one's complement
	if val > 0 {
		bits = uint32(val)
	} else {
		bits = uint32((1 << uint(cat)) + val - 1)
	}

	return cat, bits
}

// EncodeBlock writes one quantized block (natural order) as a DC difference
// followed by run-length coded AC coefficients. It returns the block's DC
// value for the next prediction.
func EncodeBlock(e *HuffmanEncoder, block []int16, dcPred int, dcCodes, acCodes *[256]HuffmanCode) (int, error) {
	dc := int(block[0])
	cat, bits := EncodeCategory(dc - dcPred)
	if err := e.WriteCode(dcCodes[cat]); err != nil {
		return dc, err
	}
	if err := e.WriteBits(bits, cat); err != nil {
		return dc, err
	}

	zeroRun := 0
	for k := 1; k < BlockSize; k++ {
		val := int(block[ZigZag[k]])
		if val == 0 {
			zeroRun++
			continue
		}

		// ZRL: 16 zeros
		for zeroRun >= 16 {
			if err := e.WriteCode(acCodes[0xF0]); err != nil {
				return dc, err
			}
			zeroRun -= 16
		}

		cat, bits := EncodeCategory(val)
		if err := e.WriteCode(acCodes[byte(zeroRun<<4|cat)]); err != nil {
			return dc, err
		}
		if err := e.WriteBits(bits, cat); err != nil {
			return dc, err
		}
		zeroRun = 0
	}

	// EOB if there are trailing zeros
	if zeroRun > 0 {
		if err := e.WriteCode(acCodes[0x00]); err != nil {
			return dc, err
		}
	}

	return dc, nil
}
