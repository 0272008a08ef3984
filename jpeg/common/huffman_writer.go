package common

// SegmentWriter writes marker segments whose length field is computed from
// the payload
type SegmentWriter interface {
	WriteSegment(marker uint16, data []byte) error
}

// WriteHuffmanTable writes a Huffman table to the JPEG stream
// class: 0 for DC, 1 for AC
// id: table ID (0 or 1)
func WriteHuffmanTable(writer SegmentWriter, class byte, id byte, table *HuffmanTable) error {
	// Calculate total number of values
	totalValues := 0
	for _, count := range table.Bits {
		totalValues += count
	}

	// Create DHT segment data
	data := make([]byte, 1+16+totalValues)
	data[0] = (class << 4) | id // Table class and ID

	// Write bit counts (16 bytes)
	for i := 0; i < 16; i++ {
		data[1+i] = byte(table.Bits[i])
	}

	// Write symbol values
	copy(data[17:], table.Values)

	// Write DHT segment
	return writer.WriteSegment(MarkerDHT, data)
}

// WriteQuantizationTable writes an 8-bit precision DQT segment. table is in
// natural order and is written in zig-zag order.
func WriteQuantizationTable(writer SegmentWriter, id byte, table *[BlockSize]uint16) error {
	data := make([]byte, 1+BlockSize)
	data[0] = id // Precision=0 (8-bit), Table ID=id

	for j := 0; j < BlockSize; j++ {
		data[1+j] = byte(table[ZigZag[j]])
	}

	return writer.WriteSegment(MarkerDQT, data)
}
