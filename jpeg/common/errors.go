package common

import "errors"

// Common errors
var (
	ErrInvalidDimensions      = errors.New("invalid image dimensions")
	ErrInvalidComponents      = errors.New("invalid number of components")
	ErrInvalidQuality         = errors.New("invalid quality factor")
	ErrInvalidRestartInterval = errors.New("invalid restart interval")
	ErrInvalidHuffmanTable    = errors.New("invalid Huffman table")
	ErrInvalidSymbol          = errors.New("symbol not in Huffman table")
	ErrBufferTooSmall         = errors.New("buffer too small")
)
