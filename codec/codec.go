// Package codec holds the encode interface shared by the compressors linked
// into a program and a registry to look them up by name or transfer syntax.
package codec

// Codec compresses raw pixel buffers into a single encoded stream
type Codec interface {
	Encode(params EncodeParams) ([]byte, error)

	// UID is the DICOM Transfer Syntax UID of the produced stream
	UID() string

	Name() string
}

// EncodeParams describe one raw image handed to Codec.Encode
type EncodeParams struct {
	PixelData  []byte // samples interleaved, row major
	Width      int
	Height     int
	Components int     // samples per pixel
	BitDepth   int     // bits per sample, 0 means 8
	Options    Options // nil selects the codec defaults
}

// Options are codec specific settings checked before encoding
type Options interface {
	Validate() error
}

// BaseOptions carry the settings every lossy codec understands
type BaseOptions struct {
	// Quality in 0-100, higher keeps more detail
	Quality int
}

// Validate rejects a quality outside 0-100
func (o *BaseOptions) Validate() error {
	if o.Quality < 0 || o.Quality > 100 {
		return ErrInvalidQuality
	}
	return nil
}
