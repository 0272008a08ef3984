package gpujpeg

import (
	"fmt"

	"github.com/cocosip/go-gpujpeg/jpeg/common"
)

// Writer is the output buffer of a session. It grows as needed and is
// reused for every image.
type Writer struct {
	buf []byte
}

// NewWriter creates a writer with the given initial capacity
func NewWriter(capacity int) (*Writer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("writer capacity %d: %w", capacity, common.ErrBufferTooSmall)
	}
	return &Writer{buf: make([]byte, 0, capacity)}, nil
}

// Reset moves the cursor back to the start of the buffer
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}

// Len returns the number of bytes written
func (w *Writer) Len() int {
	return len(w.buf)
}

// Bytes returns the written bytes. The slice is valid until the next Reset.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// WriteByte writes a single byte
func (w *Writer) WriteByte(b byte) error {
	w.buf = append(w.buf, b)
	return nil
}

// Write appends p
func (w *Writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// Append copies already entropy coded data to the cursor
func (w *Writer) Append(data []byte) {
	w.buf = append(w.buf, data...)
}

// WriteUint16 writes a big-endian 16-bit value
func (w *Writer) WriteUint16(v uint16) {
	w.buf = append(w.buf, byte(v>>8), byte(v))
}

// EmitMarker writes a bare marker
func (w *Writer) EmitMarker(marker uint16) {
	w.WriteUint16(marker)
}

// WriteSegment writes a marker followed by its length and payload
func (w *Writer) WriteSegment(marker uint16, data []byte) error {
	if len(data)+2 > 0xFFFF {
		return fmt.Errorf("segment %#04x of %d bytes: %w", marker, len(data), common.ErrBufferTooSmall)
	}
	w.WriteUint16(marker)
	w.WriteUint16(uint16(len(data) + 2))
	w.buf = append(w.buf, data...)
	return nil
}

// Retract moves the cursor back by n bytes
func (w *Writer) Retract(n int) error {
	if n < 0 || n > len(w.buf) {
		return fmt.Errorf("retract %d of %d bytes: %w", n, len(w.buf), common.ErrBufferTooSmall)
	}
	w.buf = w.buf[:len(w.buf)-n]
	return nil
}

// jfifHeader is the APP0 payload: identifier, version 1.01, no units,
// 1x1 density, no thumbnail
var jfifHeader = []byte{'J', 'F', 'I', 'F', 0, 1, 1, 0, 0, 1, 0, 1, 0, 0}

// componentID returns the frame component identifier of component i
func componentID(i int) byte {
	return byte(i + 1)
}

// tableID returns the quantization and Huffman table id of a component type
func tableID(t ComponentType) byte {
	return byte(t)
}

// writeHeader writes everything up to the first scan: SOI, APP0, DQT, SOF0,
// DHT and, when restart markers are enabled, DRI
func writeHeader(e *Encoder) error {
	w := e.writer
	c := &e.coder

	w.EmitMarker(common.MarkerSOI)
	if err := w.WriteSegment(common.MarkerAPP0, jfifHeader); err != nil {
		return err
	}

	for t := ComponentType(0); t < ComponentTypeCount; t++ {
		if err := common.WriteQuantizationTable(w, tableID(t), &e.tableQuantization[t].Table); err != nil {
			return err
		}
	}

	// SOF0: precision, height, width, component count, then per component
	// id, sampling factors and quantization table
	sof := make([]byte, 0, 6+3*len(c.Components))
	sof = append(sof, 8,
		byte(c.ParamImage.Height>>8), byte(c.ParamImage.Height),
		byte(c.ParamImage.Width>>8), byte(c.ParamImage.Width),
		byte(len(c.Components)))
	for i, comp := range c.Components {
		sof = append(sof, componentID(i), byte(comp.SamplingFactorH<<4|comp.SamplingFactorV), tableID(comp.Type))
	}
	if err := w.WriteSegment(common.MarkerSOF0, sof); err != nil {
		return err
	}

	for t := ComponentType(0); t < ComponentTypeCount; t++ {
		for h := HuffmanType(0); h < HuffmanTypeCount; h++ {
			if err := common.WriteHuffmanTable(w, byte(h), tableID(t), e.tableHuffman[t][h].Spec); err != nil {
				return err
			}
		}
	}

	if ri := c.Param.RestartInterval; ri > 0 {
		if err := w.WriteSegment(common.MarkerDRI, []byte{byte(ri >> 8), byte(ri)}); err != nil {
			return err
		}
	}
	return nil
}

// writeScanHeader writes an SOS segment for one component, or for all of
// them when comp is AllComponents
func writeScanHeader(e *Encoder, comp int) error {
	c := &e.coder

	var indexes []int
	if comp == AllComponents {
		for i := range c.Components {
			indexes = append(indexes, i)
		}
	} else {
		if comp < 0 || comp >= len(c.Components) {
			return fmt.Errorf("scan component %d: %w", comp, common.ErrInvalidComponents)
		}
		indexes = []int{comp}
	}

	sos := make([]byte, 0, 4+2*len(indexes))
	sos = append(sos, byte(len(indexes)))
	for _, i := range indexes {
		id := tableID(c.Components[i].Type)
		sos = append(sos, componentID(i), id<<4|id)
	}
	// Spectral selection 0-63, no successive approximation
	sos = append(sos, 0, 63, 0)

	return e.writer.WriteSegment(common.MarkerSOS, sos)
}
