package gpujpeg

import (
	"fmt"

	"github.com/cocosip/go-gpujpeg/device"
	"github.com/cocosip/go-gpujpeg/jpeg/common"
)

// entropyStrategy writes the scans of one image after the header
type entropyStrategy interface {
	encode(e *Encoder) error
}

// sequentialStrategy copies the coefficients to the host and codes them
// there in a single pass without restart markers
type sequentialStrategy struct {
	coder SequentialCoder
}

func (s sequentialStrategy) encode(e *Encoder) error {
	c := &e.coder
	if err := device.CopyInt16sToHost(e.dev, c.DataQuantized, c.DDataQuantized); err != nil {
		return fmt.Errorf("%w: copy quantized data to host: %w", ErrTransfer, err)
	}
	e.tracef("download %d coefficients", len(c.DataQuantized))

	if err := s.coder.Encode(e); err != nil {
		return fmt.Errorf("%w: %w", ErrEntropy, err)
	}
	e.tracef("huffman encoder (host)")
	return nil
}

// parallelStrategy codes every restart segment on the device and joins the
// segments into scans
type parallelStrategy struct {
	coder ParallelCoder
}

func (s parallelStrategy) encode(e *Encoder) error {
	c := &e.coder
	if err := s.coder.Encode(e); err != nil {
		return fmt.Errorf("%w: %w", ErrEntropy, err)
	}
	e.tracef("huffman encoder (device) %d segments", len(c.Segments))

	if err := e.dev.CopyToHost(c.DataCompressed, c.DDataCompressed); err != nil {
		return fmt.Errorf("%w: copy compressed data to host: %w", ErrTransfer, err)
	}
	records := make([]byte, segmentRecordSize*len(c.Segments))
	if err := e.dev.CopyToHost(records, c.DSegments); err != nil {
		return fmt.Errorf("%w: copy segments to host: %w", ErrTransfer, err)
	}
	if err := unmarshalSegments(records, c.Segments); err != nil {
		return fmt.Errorf("%w: %w", ErrTransfer, err)
	}

	if c.Param.Interleaved {
		return assembleInterleaved(e)
	}
	return assemblePerComponent(e)
}

// assembleInterleaved writes one scan with every segment. The last
// segment's RST marker is dropped.
func assembleInterleaved(e *Encoder) error {
	c := &e.coder
	if err := writeScanHeader(e, AllComponents); err != nil {
		return err
	}
	for i := range c.Segments {
		if err := appendSegment(e, i); err != nil {
			return err
		}
	}
	return e.writer.Retract(common.MarkerSize)
}

// assemblePerComponent writes one scan per component with that
// component's segments. The last RST marker of each scan is dropped.
func assemblePerComponent(e *Encoder) error {
	c := &e.coder
	index := 0
	for i := range c.Components {
		if err := writeScanHeader(e, i); err != nil {
			return err
		}
		for k := 0; k < c.Components[i].SegmentCount; k++ {
			if err := appendSegment(e, index); err != nil {
				return err
			}
			index++
		}
		if err := e.writer.Retract(common.MarkerSize); err != nil {
			return err
		}
	}
	return nil
}

func appendSegment(e *Encoder, index int) error {
	c := &e.coder
	if index >= len(c.Segments) {
		return fmt.Errorf("%w: segment %d of %d", ErrEntropy, index, len(c.Segments))
	}
	seg := &c.Segments[index]
	start, end := seg.DataCompressedIndex, seg.DataCompressedIndex+seg.DataCompressedSize
	if seg.DataCompressedSize < common.MarkerSize || start < 0 || end > len(c.DataCompressed) {
		return fmt.Errorf("%w: segment %d has %d bytes at %d", ErrEntropy, index, seg.DataCompressedSize, start)
	}
	e.writer.Append(c.DataCompressed[start:end])
	return nil
}
