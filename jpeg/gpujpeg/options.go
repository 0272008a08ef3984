package gpujpeg

import "io"

type config struct {
	preprocessor   Preprocessor
	transformer    Transformer
	sequential     SequentialCoder
	parallel       ParallelCoder
	constantTables bool
	trace          io.Writer
}

func defaultConfig() config {
	return config{
		preprocessor:   rgbPreprocessor{},
		transformer:    dctQuantizer{},
		sequential:     cpuHuffmanCoder{},
		parallel:       gpuHuffmanCoder{},
		constantTables: true,
	}
}

// Option configures an Encoder
type Option func(*config)

// WithPreprocessor replaces the color transform stage
func WithPreprocessor(p Preprocessor) Option {
	return func(c *config) {
		if p != nil {
			c.preprocessor = p
		}
	}
}

// WithTransformer replaces the forward DCT and quantization stage
func WithTransformer(t Transformer) Option {
	return func(c *config) {
		if t != nil {
			c.transformer = t
		}
	}
}

// WithSequentialCoder replaces the host Huffman coder used without restart markers
func WithSequentialCoder(s SequentialCoder) Option {
	return func(c *config) {
		if s != nil {
			c.sequential = s
		}
	}
}

// WithParallelCoder replaces the segment Huffman coder used with restart markers
func WithParallelCoder(p ParallelCoder) Option {
	return func(c *config) {
		if p != nil {
			c.parallel = p
		}
	}
}

// WithConstantTables selects whether the segment coder reads its Huffman
// tables from device constant memory (the default) or from the per-table
// device copies
func WithConstantTables(enabled bool) Option {
	return func(c *config) {
		c.constantTables = enabled
	}
}

// WithTrace writes one line per pipeline stage to w
func WithTrace(w io.Writer) Option {
	return func(c *config) {
		c.trace = w
	}
}
