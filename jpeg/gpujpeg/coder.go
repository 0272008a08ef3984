package gpujpeg

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cocosip/go-gpujpeg/device"
	"github.com/cocosip/go-gpujpeg/jpeg/common"
)

// AllComponents marks a segment or scan that covers every component
const AllComponents = -1

const (
	// maxCompressedBlockSize bounds the entropy coded size of one block
	// including byte stuffing
	maxCompressedBlockSize = 512

	// segmentTrailerSize bounds the flush byte, its stuffing and the RST marker
	segmentTrailerSize = 4

	// segmentRecordSize is the device size of a Segment: seven
	// little-endian int32 fields
	segmentRecordSize = 7 * 4

	// offset of DataCompressedSize inside a segment record
	segmentSizeField = 6 * 4
)

// Component describes one color plane of the working image
type Component struct {
	Type ComponentType

	SamplingFactorH int
	SamplingFactorV int

	// Width and Height of the plane in pixels
	Width  int
	Height int

	// DataWidth and DataHeight are padded to whole blocks
	DataWidth  int
	DataHeight int

	BlocksPerRow int
	BlockRows    int
	BlockCount   int

	// DataOffset is the byte offset of the plane in the working data
	DataOffset int

	// QuantizedOffset is the coefficient offset of the plane's blocks in
	// the quantized data. Block b starts at QuantizedOffset + 64*b.
	QuantizedOffset int

	// SegmentIndex and SegmentCount locate the component's segments. In an
	// interleaved stream every component spans all segments.
	SegmentIndex int
	SegmentCount int
}

// Segment is one restart interval of a scan
type Segment struct {
	// Scan is the scan the segment belongs to
	Scan int

	// Component is the component index, or AllComponents when interleaved
	Component int

	// MCUIndex is the first MCU of the segment, counted within its scan
	MCUIndex int

	// MCUCount is the number of MCUs in the segment
	MCUCount int

	// RestartIndex numbers the segment within its scan; its marker is
	// RST(RestartIndex mod 8)
	RestartIndex int

	// DataCompressedIndex is the byte offset of the segment's slot in the
	// compressed data
	DataCompressedIndex int

	// DataCompressedSize is the number of bytes produced for the segment,
	// including its trailing RST marker
	DataCompressedSize int
}

// Coder holds the per-session working state shared by all stages
type Coder struct {
	Param      Parameters
	ParamImage ImageParameters

	Components []Component
	Segments   []Segment

	// MCUsPerRow and MCUCount describe the interleaved MCU grid
	MCUsPerRow int
	MCUCount   int

	// RawSize is the byte size of DRaw, the interleaved input image
	RawSize int
	DRaw    device.Ptr

	// DataSize is the byte size of DData, the padded planar image. It is
	// also the number of quantized coefficients.
	DataSize int
	DData    device.Ptr

	// DataQuantized and DDataQuantized hold the quantized coefficients
	DataQuantized  []int16
	DDataQuantized device.Ptr

	// DataCompressedSize is the byte size of the segment slots
	DataCompressedSize int
	DataCompressed     []byte
	DDataCompressed    device.Ptr

	// DSegments holds a record per segment
	DSegments device.Ptr
}

// init lays out components and segments and allocates the working memory.
// Every allocation is attempted and all failures are returned; handles that
// were obtained stay set so deinit can release them.
func (c *Coder) init(dev device.Device) error {
	c.layoutComponents()
	if c.Param.RestartInterval > 0 {
		c.layoutSegments()
	}

	var errs []error
	malloc := func(name string, size int) device.Ptr {
		p, err := dev.Malloc(size)
		if err != nil {
			errs = append(errs, fmt.Errorf("allocate %s: %w", name, err))
			return device.Nil
		}
		return p
	}

	c.DRaw = malloc("raw image", c.RawSize)
	c.DData = malloc("working image", c.DataSize)
	c.DataQuantized = make([]int16, c.DataSize)
	c.DDataQuantized = malloc("quantized data", 2*c.DataSize)

	if len(c.Segments) > 0 {
		c.DataCompressed = make([]byte, c.DataCompressedSize)
		c.DDataCompressed = malloc("compressed data", c.DataCompressedSize)
		c.DSegments = malloc("segments", segmentRecordSize*len(c.Segments))
		if !c.DSegments.IsNil() {
			if err := dev.CopyToDevice(c.DSegments, marshalSegments(c.Segments)); err != nil {
				errs = append(errs, fmt.Errorf("upload segments: %w: %w", ErrTransfer, err))
			}
		}
	}

	return errors.Join(errs...)
}

// deinit frees every allocated handle and clears it
func (c *Coder) deinit(dev device.Device) error {
	var errs []error
	for _, p := range []*device.Ptr{&c.DRaw, &c.DData, &c.DDataQuantized, &c.DDataCompressed, &c.DSegments} {
		if p.IsNil() {
			continue
		}
		if err := dev.Free(*p); err != nil {
			errs = append(errs, err)
		}
		*p = device.Nil
	}
	c.DataQuantized = nil
	c.DataCompressed = nil
	return errors.Join(errs...)
}

func (c *Coder) layoutComponents() {
	img := c.ParamImage
	c.RawSize = img.RawSize()
	c.Components = make([]Component, img.CompCount)
	c.DataSize = 0

	for i := range c.Components {
		comp := &c.Components[i]
		comp.Type = ComponentChrominance
		if i == 0 {
			comp.Type = ComponentLuminance
		}
		comp.SamplingFactorH, comp.SamplingFactorV = 1, 1
		comp.Width, comp.Height = img.Width, img.Height
		comp.BlocksPerRow = common.DivCeil(comp.Width, 8)
		comp.BlockRows = common.DivCeil(comp.Height, 8)
		comp.BlockCount = comp.BlocksPerRow * comp.BlockRows
		comp.DataWidth = comp.BlocksPerRow * 8
		comp.DataHeight = comp.BlockRows * 8
		comp.DataOffset = c.DataSize
		comp.QuantizedOffset = c.DataSize
		c.DataSize += comp.DataWidth * comp.DataHeight
	}

	// All components use 1x1 sampling, so an MCU is one block of each
	c.MCUsPerRow = c.Components[0].BlocksPerRow
	c.MCUCount = c.Components[0].BlockCount
}

func (c *Coder) layoutSegments() {
	ri := c.Param.RestartInterval
	c.Segments = c.Segments[:0]
	offset := 0

	add := func(scan, comp, units, blocksPerUnit int) {
		for k, first := 0, 0; first < units; k, first = k+1, first+ri {
			count := min(ri, units-first)
			c.Segments = append(c.Segments, Segment{
				Scan:                scan,
				Component:           comp,
				MCUIndex:            first,
				MCUCount:            count,
				RestartIndex:        k,
				DataCompressedIndex: offset,
			})
			offset += segmentCapacity(count * blocksPerUnit)
		}
	}

	if c.Param.Interleaved {
		add(0, AllComponents, c.MCUCount, len(c.Components))
		for i := range c.Components {
			c.Components[i].SegmentIndex = 0
			c.Components[i].SegmentCount = len(c.Segments)
		}
	} else {
		for i := range c.Components {
			comp := &c.Components[i]
			comp.SegmentIndex = len(c.Segments)
			add(i, i, comp.BlockCount, 1)
			comp.SegmentCount = len(c.Segments) - comp.SegmentIndex
		}
	}
	c.DataCompressedSize = offset
}

// blockCount returns the number of blocks a segment encodes
func (c *Coder) blockCount(seg *Segment) int {
	if seg.Component == AllComponents {
		return seg.MCUCount * len(c.Components)
	}
	return seg.MCUCount
}

// segmentCapacity returns the slot size for a segment of the given blocks
func segmentCapacity(blocks int) int {
	return blocks*maxCompressedBlockSize + segmentTrailerSize
}

func marshalSegments(segs []Segment) []byte {
	buf := make([]byte, segmentRecordSize*len(segs))
	for i := range segs {
		putSegment(buf[i*segmentRecordSize:], &segs[i])
	}
	return buf
}

func putSegment(buf []byte, s *Segment) {
	for i, v := range [...]int{s.Scan, s.Component, s.MCUIndex, s.MCUCount, s.RestartIndex, s.DataCompressedIndex, s.DataCompressedSize} {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(int32(v)))
	}
}

func getSegment(buf []byte) Segment {
	field := func(i int) int {
		return int(int32(binary.LittleEndian.Uint32(buf[i*4:])))
	}
	return Segment{
		Scan:                field(0),
		Component:           field(1),
		MCUIndex:            field(2),
		MCUCount:            field(3),
		RestartIndex:        field(4),
		DataCompressedIndex: field(5),
		DataCompressedSize:  field(6),
	}
}

// unmarshalSegments reads segment records into segs
func unmarshalSegments(buf []byte, segs []Segment) error {
	if len(buf) < segmentRecordSize*len(segs) {
		return fmt.Errorf("%d segment records in %d bytes: %w", len(segs), len(buf), common.ErrBufferTooSmall)
	}
	for i := range segs {
		segs[i] = getSegment(buf[i*segmentRecordSize:])
	}
	return nil
}
