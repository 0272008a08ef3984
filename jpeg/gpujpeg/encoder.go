// Package gpujpeg encodes raw RGB images into baseline JPEG streams with the
// heavy lifting offloaded to a device.
//
// An Encoder is a session: it allocates every device buffer and table once
// in NewEncoder and reuses them for each Encode call. Images must match the
// ImageParameters the session was created with.
//
// With a restart interval of 0 the entropy coding runs sequentially on the
// host. With any other interval the image is cut into restart segments that
// are Huffman coded concurrently on the device and then joined, each
// terminated by its RSTn marker.
package gpujpeg

import (
	"errors"
	"fmt"

	"github.com/cocosip/go-gpujpeg/device"
	"github.com/cocosip/go-gpujpeg/jpeg/common"
)

// headerReserve is the initial writer space for the header segments
const headerReserve = 1024

// Encoder is an encoding session. It is not safe for concurrent use.
type Encoder struct {
	dev device.Device
	cfg config

	coder  Coder
	writer *Writer

	tableQuantization [ComponentTypeCount]QuantizationTable
	tableHuffman      [ComponentTypeCount][HuffmanTypeCount]HuffmanEncoderTable
	dTableHuffman     [ComponentTypeCount][HuffmanTypeCount]device.Ptr

	strategy entropyStrategy
	closed   bool
}

// NewEncoder creates an encoding session on dev.
//
// Invalid parameters are rejected before anything is allocated. After that
// every creation step is attempted even when an earlier one failed; if any
// failed, everything acquired so far is released and the returned error
// wraps ErrCreate together with each step's failure.
func NewEncoder(dev device.Device, param Parameters, paramImage ImageParameters, opts ...Option) (*Encoder, error) {
	if dev == nil {
		return nil, ErrNoDevice
	}
	if err := param.Validate(); err != nil {
		return nil, err
	}
	if err := paramImage.Validate(); err != nil {
		return nil, err
	}

	e := &Encoder{
		dev: dev,
		cfg: defaultConfig(),
	}
	for _, opt := range opts {
		opt(&e.cfg)
	}
	e.coder.Param = param
	e.coder.ParamImage = paramImage

	var errs []error

	writer, err := NewWriter(headerReserve + paramImage.RawSize())
	if err != nil {
		errs = append(errs, fmt.Errorf("create writer: %w", err))
	}
	e.writer = writer

	if err := e.coder.init(dev); err != nil {
		errs = append(errs, fmt.Errorf("init coder: %w", err))
	}

	// Device storage for the tables
	for t := ComponentType(0); t < ComponentTypeCount; t++ {
		p, err := dev.Malloc(quantizationTableSize)
		if err != nil {
			errs = append(errs, fmt.Errorf("allocate %v quantization table: %w", t, err))
			continue
		}
		e.tableQuantization[t].DTable = p
	}
	for t := ComponentType(0); t < ComponentTypeCount; t++ {
		for h := HuffmanType(0); h < HuffmanTypeCount; h++ {
			p, err := dev.Malloc(huffmanTableSize)
			if err != nil {
				errs = append(errs, fmt.Errorf("allocate %v %v huffman table: %w", t, h, err))
				continue
			}
			e.dTableHuffman[t][h] = p
		}
	}

	// Table content
	for t := ComponentType(0); t < ComponentTypeCount; t++ {
		if err := e.tableQuantization[t].init(dev, t, param.Quality); err != nil {
			errs = append(errs, err)
		}
	}
	for t := ComponentType(0); t < ComponentTypeCount; t++ {
		for h := HuffmanType(0); h < HuffmanTypeCount; h++ {
			if err := e.tableHuffman[t][h].init(dev, e.dTableHuffman[t][h], t, h); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if e.cfg.constantTables {
		if err := e.refreshConstantTables(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := e.cfg.parallel.Init(); err != nil {
		errs = append(errs, fmt.Errorf("init huffman encoder: %w", err))
	}

	if param.RestartInterval > 0 {
		e.strategy = parallelStrategy{coder: e.cfg.parallel}
	} else {
		e.strategy = sequentialStrategy{coder: e.cfg.sequential}
	}

	if len(errs) > 0 {
		if err := e.release(); err != nil {
			errs = append(errs, fmt.Errorf("release: %w", err))
		}
		return nil, fmt.Errorf("%w: %w", ErrCreate, errors.Join(errs...))
	}

	e.tracef("create %dx%d quality=%d restart=%d interleaved=%t segments=%d",
		paramImage.Width, paramImage.Height, param.Quality, param.RestartInterval, param.Interleaved, len(e.coder.Segments))
	return e, nil
}

// refreshConstantTables copies every Huffman lookup into constant memory
func (e *Encoder) refreshConstantTables() error {
	var errs []error
	for t := ComponentType(0); t < ComponentTypeCount; t++ {
		for h := HuffmanType(0); h < HuffmanTypeCount; h++ {
			table := &e.tableHuffman[t][h]
			if table.Spec == nil {
				errs = append(errs, fmt.Errorf("constant %v %v huffman table: %w", t, h, common.ErrInvalidHuffmanTable))
				continue
			}
			off := huffmanTableIndex(t, h) * huffmanTableSize
			if err := e.dev.CopyToSymbol(huffmanTableSymbol, off, table.marshal()); err != nil {
				errs = append(errs, fmt.Errorf("constant %v %v huffman table: %w: %w", t, h, ErrTransfer, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Encode compresses one raw image. image holds Width*Height*CompCount bytes
// of interleaved 8-bit samples.
//
// The returned slice aliases the session's output buffer and is valid until
// the next Encode or Close. On failure the session stays usable.
func (e *Encoder) Encode(image []byte) ([]byte, error) {
	if e.closed {
		return nil, ErrClosed
	}
	c := &e.coder

	if len(image) != c.RawSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidImage, len(image), c.RawSize)
	}

	if err := e.dev.CopyToDevice(c.DRaw, image); err != nil {
		return nil, fmt.Errorf("%w: copy image to device: %w", ErrTransfer, err)
	}
	e.tracef("upload %d bytes", len(image))

	if err := e.cfg.preprocessor.Encode(c, e.dev); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPreprocess, err)
	}
	e.tracef("preprocess")

	for i := range c.Components {
		comp := &c.Components[i]
		in := c.DData.Add(comp.DataOffset)
		out := c.DDataQuantized.Add(2 * comp.QuantizedOffset)
		table := e.tableQuantization[comp.Type].DTable
		if err := e.cfg.transformer.ForwardTransformQuantize(e.dev, in, out, table, comp.DataWidth, comp.DataHeight); err != nil {
			return nil, &TransformError{Component: i, Err: err}
		}
	}
	e.tracef("forward dct %d components", len(c.Components))

	e.writer.Reset()
	if err := writeHeader(e); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	if err := e.strategy.encode(e); err != nil {
		return nil, err
	}

	e.writer.EmitMarker(common.MarkerEOI)
	e.tracef("done %d bytes", e.writer.Len())

	return e.writer.Bytes(), nil
}

// Close releases every resource of the session. Calling it again is a no-op.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return e.release()
}

// release frees whatever is held. Handles are cleared as they are freed so
// the routine can run more than once.
func (e *Encoder) release() error {
	var errs []error
	if err := e.coder.deinit(e.dev); err != nil {
		errs = append(errs, fmt.Errorf("deinit coder: %w", err))
	}

	for t := ComponentType(0); t < ComponentTypeCount; t++ {
		if p := e.tableQuantization[t].DTable; !p.IsNil() {
			if err := e.dev.Free(p); err != nil {
				errs = append(errs, fmt.Errorf("free %v quantization table: %w", t, err))
			}
			e.tableQuantization[t].DTable = device.Nil
		}
		for h := HuffmanType(0); h < HuffmanTypeCount; h++ {
			if p := e.dTableHuffman[t][h]; !p.IsNil() {
				if err := e.dev.Free(p); err != nil {
					errs = append(errs, fmt.Errorf("free %v %v huffman table: %w", t, h, err))
				}
				e.dTableHuffman[t][h] = device.Nil
			}
		}
	}

	e.writer = nil
	return errors.Join(errs...)
}

// Parameters returns the session's encoding parameters
func (e *Encoder) Parameters() Parameters {
	return e.coder.Param
}

// ImageParameters returns the session's image parameters
func (e *Encoder) ImageParameters() ImageParameters {
	return e.coder.ParamImage
}

// Components returns a copy of the component layout
func (e *Encoder) Components() []Component {
	return append([]Component(nil), e.coder.Components...)
}

// Segments returns a copy of the segments as of the last Encode. It is
// empty when restart markers are disabled.
func (e *Encoder) Segments() []Segment {
	return append([]Segment(nil), e.coder.Segments...)
}

func (e *Encoder) tracef(format string, args ...interface{}) {
	if e.cfg.trace != nil {
		fmt.Fprintf(e.cfg.trace, "[gpujpeg] "+format+"\n", args...)
	}
}
