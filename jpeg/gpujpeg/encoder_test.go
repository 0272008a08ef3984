package gpujpeg

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
	"strings"
	"testing"

	"github.com/cocosip/go-gpujpeg/device"
	"github.com/cocosip/go-gpujpeg/jpeg/common"
)

// gradientImage returns a smooth interleaved RGB test image
func gradientImage(width, height int) []byte {
	img := make([]byte, width*height*3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 3
			img[i] = byte(x * 255 / max(width-1, 1))
			img[i+1] = byte(y * 255 / max(height-1, 1))
			img[i+2] = byte(128 + (x-y)/4)
		}
	}
	return img
}

type scanInfo struct {
	components int
	restarts   []int
}

type streamInfo struct {
	headerLen       int
	restartInterval int
	scans           []scanInfo
}

// parseStream walks the marker structure of a JPEG stream and records every
// scan with the restart markers found in its entropy coded data
func parseStream(t *testing.T, data []byte) streamInfo {
	t.Helper()

	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Fatalf("stream does not start with SOI: % x", data[:min(len(data), 4)])
	}
	if data[len(data)-2] != 0xFF || data[len(data)-1] != 0xD9 {
		t.Fatalf("stream does not end with EOI: % x", data[len(data)-2:])
	}

	var info streamInfo
	pos := 2
	for pos+1 < len(data) {
		if data[pos] != 0xFF {
			t.Fatalf("expected marker at %d, got %#02x", pos, data[pos])
		}
		marker := uint16(data[pos])<<8 | uint16(data[pos+1])
		pos += 2
		if marker == common.MarkerEOI {
			if pos != len(data) {
				t.Fatalf("EOI at %d, stream has %d bytes", pos-2, len(data))
			}
			return info
		}
		if !common.HasLength(marker) {
			t.Fatalf("unexpected standalone marker %#04x at %d", marker, pos-2)
		}

		length := int(data[pos])<<8 | int(data[pos+1])
		payload := data[pos+2 : pos+length]
		pos += length

		switch marker {
		case common.MarkerDRI:
			info.restartInterval = int(payload[0])<<8 | int(payload[1])
		case common.MarkerSOS:
			if len(info.scans) == 0 {
				info.headerLen = pos - length - 2
			}
			scan := scanInfo{components: int(payload[0])}
			for pos+1 < len(data) {
				if data[pos] != 0xFF {
					pos++
					continue
				}
				next := data[pos+1]
				if next == 0x00 {
					pos += 2
					continue
				}
				if common.IsRST(0xFF00 | uint16(next)) {
					scan.restarts = append(scan.restarts, int(next-0xD0))
					pos += 2
					continue
				}
				break
			}
			info.scans = append(info.scans, scan)
		}
	}
	t.Fatal("stream ended without EOI")
	return info
}

// expectedRestarts returns the RST numbers of a scan with n segments
func expectedRestarts(n int) []int {
	var rst []int
	for i := 0; i < n-1; i++ {
		rst = append(rst, i%8)
	}
	return rst
}

// decodeAndCompare decodes data with image/jpeg and returns the mean
// absolute difference to the raw RGB image
func decodeAndCompare(t *testing.T, data, raw []byte, width, height int) float64 {
	t.Helper()

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("image/jpeg decode failed: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		t.Fatalf("decoded size %dx%d, want %dx%d", b.Dx(), b.Dy(), width, height)
	}

	totalDiff := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := (y*width + x) * 3
			for k, v := range []uint32{r >> 8, g >> 8, bl >> 8} {
				diff := int(v) - int(raw[i+k])
				if diff < 0 {
					diff = -diff
				}
				totalDiff += diff
			}
		}
	}
	return float64(totalDiff) / float64(len(raw))
}

func TestEncodeScanStructure(t *testing.T) {
	tests := []struct {
		name        string
		width       int
		height      int
		restart     int
		interleaved bool
		// segments per scan, nil when restart markers are disabled
		segments []int
		scans    int
	}{
		{"16x16 sequential", 16, 16, 0, false, nil, 3},
		{"16x16 sequential interleaved", 16, 16, 0, true, nil, 1},
		{"16x16 restart 8 interleaved", 16, 16, 8, true, []int{1}, 1},
		{"16x16 restart 8", 16, 16, 8, false, []int{1, 1, 1}, 3},
		{"96x96 restart 8 interleaved", 96, 96, 8, true, []int{18}, 1},
		{"96x96 restart 8", 96, 96, 8, false, []int{18, 18, 18}, 3},
		{"20x13 restart 2", 20, 13, 2, false, []int{3, 3, 3}, 3},
		{"20x13 restart 4 interleaved", 20, 13, 4, true, []int{2}, 1},
		{"100x75 restart 5 interleaved", 100, 75, 5, true, []int{26}, 1},
		{"100x75 restart 1", 100, 75, 1, false, []int{130, 130, 130}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			param := Parameters{Quality: 90, RestartInterval: tt.restart, Interleaved: tt.interleaved}
			enc, err := NewEncoder(device.NewHost(), param, NewImageParameters(tt.width, tt.height))
			if err != nil {
				t.Fatalf("NewEncoder failed: %v", err)
			}
			defer enc.Close()

			raw := gradientImage(tt.width, tt.height)
			out, err := enc.Encode(raw)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			t.Logf("Encoded %dx%d into %d bytes (%.2fx)", tt.width, tt.height, len(out), float64(len(raw))/float64(len(out)))

			info := parseStream(t, out)
			if len(info.scans) != tt.scans {
				t.Fatalf("got %d scans, want %d", len(info.scans), tt.scans)
			}
			if info.restartInterval != tt.restart {
				t.Errorf("DRI = %d, want %d", info.restartInterval, tt.restart)
			}

			wantComponents := 1
			if tt.interleaved {
				wantComponents = 3
			}
			for i, scan := range info.scans {
				if scan.components != wantComponents {
					t.Errorf("scan %d has %d components, want %d", i, scan.components, wantComponents)
				}
				var want []int
				if tt.segments != nil {
					want = expectedRestarts(tt.segments[i])
				}
				if !equalInts(scan.restarts, want) {
					t.Errorf("scan %d restarts = %v, want %v", i, scan.restarts, want)
				}
			}

			segments := enc.Segments()
			total := 0
			for _, n := range tt.segments {
				total += n
			}
			if len(segments) != total {
				t.Fatalf("got %d segments, want %d", len(segments), total)
			}

			if diff := decodeAndCompare(t, out, raw, tt.width, tt.height); diff > 8 {
				t.Errorf("mean absolute difference %.2f is too large", diff)
			}
		})
	}
}

func TestEncodeLength(t *testing.T) {
	for _, interleaved := range []bool{false, true} {
		param := Parameters{Quality: 75, RestartInterval: 3, Interleaved: interleaved}
		enc, err := NewEncoder(device.NewHost(), param, NewImageParameters(40, 24))
		if err != nil {
			t.Fatalf("NewEncoder failed: %v", err)
		}

		out, err := enc.Encode(gradientImage(40, 24))
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		info := parseStream(t, out)

		// header + per scan (SOS segment - retracted RST) + segments + EOI
		want := info.headerLen + 2
		for _, scan := range info.scans {
			want += 2 + 2 + 1 + 2*scan.components + 3 - common.MarkerSize
		}
		for _, seg := range enc.Segments() {
			if seg.DataCompressedSize < common.MarkerSize {
				t.Errorf("segment %+v is shorter than its RST marker", seg)
			}
			want += seg.DataCompressedSize
		}
		if len(out) != want {
			t.Errorf("interleaved=%t: length %d, want %d", interleaved, len(out), want)
		}
		enc.Close()
	}
}

func TestEncodeDeterministic(t *testing.T) {
	for _, restart := range []int{0, 8} {
		param := Parameters{Quality: 80, RestartInterval: restart}
		raw := gradientImage(48, 40)

		enc, err := NewEncoder(device.NewHost(device.WithWorkers(8)), param, NewImageParameters(48, 40))
		if err != nil {
			t.Fatalf("NewEncoder failed: %v", err)
		}
		first, err := enc.Encode(raw)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		first = append([]byte(nil), first...)

		second, err := enc.Encode(raw)
		if err != nil {
			t.Fatalf("second Encode failed: %v", err)
		}
		if !bytes.Equal(first, second) {
			t.Errorf("restart %d: repeated encode differs", restart)
		}
		enc.Close()

		// A single worker must produce the same bytes
		single, err := NewEncoder(device.NewHost(device.WithWorkers(1)), param, NewImageParameters(48, 40))
		if err != nil {
			t.Fatalf("NewEncoder failed: %v", err)
		}
		third, err := single.Encode(raw)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		if !bytes.Equal(first, third) {
			t.Errorf("restart %d: output depends on worker count", restart)
		}
		single.Close()
	}
}

// noiseImage returns pseudo-random RGB samples, stable across runs
func noiseImage(width, height int, seed uint32) []byte {
	img := make([]byte, width*height*3)
	for i := range img {
		seed = seed*1664525 + 1013904223
		img[i] = byte(seed >> 24)
	}
	return img
}

func TestEncodeReuseDifferentImages(t *testing.T) {
	params := []Parameters{
		{Quality: 75, RestartInterval: 0},
		{Quality: 75, RestartInterval: 0, Interleaved: true},
		{Quality: 75, RestartInterval: 8},
		{Quality: 75, RestartInterval: 8, Interleaved: true},
		{Quality: 95, RestartInterval: 1},
		{Quality: 30, RestartInterval: 3, Interleaved: true},
	}
	sizes := [][2]int{{1, 1}, {7, 9}, {17, 33}, {64, 8}}

	for _, param := range params {
		for _, size := range sizes {
			width, height := size[0], size[1]
			t.Run(fmt.Sprintf("q%d_ri%d_il%v_%dx%d", param.Quality, param.RestartInterval, param.Interleaved, width, height), func(t *testing.T) {
				image := NewImageParameters(width, height)
				gradient := gradientImage(width, height)

				reused, err := NewEncoder(device.NewHost(), param, image)
				if err != nil {
					t.Fatalf("NewEncoder failed: %v", err)
				}
				defer reused.Close()

				// Noise fills every slot, coefficient and segment record first
				if _, err := reused.Encode(noiseImage(width, height, 7)); err != nil {
					t.Fatalf("noise Encode failed: %v", err)
				}
				got, err := reused.Encode(gradient)
				if err != nil {
					t.Fatalf("gradient Encode failed: %v", err)
				}

				fresh, err := NewEncoder(device.NewHost(), param, image)
				if err != nil {
					t.Fatalf("NewEncoder failed: %v", err)
				}
				defer fresh.Close()
				want, err := fresh.Encode(gradient)
				if err != nil {
					t.Fatalf("fresh Encode failed: %v", err)
				}

				if !bytes.Equal(got, want) {
					t.Fatalf("reused session wrote %d bytes, fresh session %d bytes", len(got), len(want))
				}
				if _, err := jpeg.Decode(bytes.NewReader(got)); err != nil {
					t.Errorf("image/jpeg decode failed: %v", err)
				}
			})
		}
	}
}

func TestEncodeConstantTables(t *testing.T) {
	raw := gradientImage(64, 32)
	param := Parameters{Quality: 60, RestartInterval: 4, Interleaved: true}

	var outputs [][]byte
	for _, constant := range []bool{true, false} {
		enc, err := NewEncoder(device.NewHost(), param, NewImageParameters(64, 32), WithConstantTables(constant))
		if err != nil {
			t.Fatalf("NewEncoder failed: %v", err)
		}
		out, err := enc.Encode(raw)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		outputs = append(outputs, append([]byte(nil), out...))
		enc.Close()
	}
	if !bytes.Equal(outputs[0], outputs[1]) {
		t.Error("constant memory tables and device tables produce different streams")
	}
}

func TestEncodeHeader(t *testing.T) {
	enc, err := NewEncoder(device.NewHost(), Parameters{Quality: 50}, NewImageParameters(8, 8))
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	defer enc.Close()

	out, err := enc.Encode(gradientImage(8, 8))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// SOI, then APP0 with the JFIF identifier
	if !bytes.HasPrefix(out, []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0}) {
		t.Errorf("unexpected stream start % x", out[:16])
	}
	if bytes.Contains(out, []byte{0xFF, 0xDD}) {
		t.Error("DRI written without restart markers")
	}

	// Quality 50 keeps the default tables: first luminance entry is 16
	dqt := bytes.Index(out, []byte{0xFF, 0xDB})
	if dqt < 0 || out[dqt+4] != 0 || out[dqt+5] != 16 {
		t.Errorf("unexpected DQT segment at %d", dqt)
	}
}

func TestEncodeInvalidImage(t *testing.T) {
	enc, err := NewEncoder(device.NewHost(), DefaultParameters(), NewImageParameters(16, 16))
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	defer enc.Close()

	if _, err := enc.Encode(make([]byte, 16*16*3-1)); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("got %v, want ErrInvalidImage", err)
	}
}

func TestNewEncoderInvalidParameters(t *testing.T) {
	tests := []struct {
		name  string
		param Parameters
		image ImageParameters
		want  error
	}{
		{"quality too high", Parameters{Quality: 101}, NewImageParameters(8, 8), common.ErrInvalidQuality},
		{"negative quality", Parameters{Quality: -1}, NewImageParameters(8, 8), common.ErrInvalidQuality},
		{"negative restart", Parameters{Quality: 75, RestartInterval: -1}, NewImageParameters(8, 8), common.ErrInvalidRestartInterval},
		{"zero width", DefaultParameters(), NewImageParameters(0, 8), common.ErrInvalidDimensions},
		{"negative height", DefaultParameters(), NewImageParameters(8, -8), common.ErrInvalidDimensions},
		{"restart too long", Parameters{Quality: 75, RestartInterval: MaxRestartInterval + 1}, NewImageParameters(8, 8), common.ErrInvalidRestartInterval},
		{"width too large", DefaultParameters(), NewImageParameters(0x10000, 8), common.ErrInvalidDimensions},
		{"height too large", DefaultParameters(), NewImageParameters(8, 0x10000), common.ErrInvalidDimensions},
		{"one component", DefaultParameters(), ImageParameters{Width: 8, Height: 8, CompCount: 1}, common.ErrInvalidComponents},
		{"five components", DefaultParameters(), ImageParameters{Width: 8, Height: 8, CompCount: 5}, common.ErrInvalidComponents},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := device.NewTracker(device.NewHost())
			enc, err := NewEncoder(tr, tt.param, tt.image)
			if enc != nil {
				t.Fatal("expected nil encoder")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
			if n := tr.Calls(device.OpMalloc); n != 0 {
				t.Errorf("%d allocations before validation failed", n)
			}
		})
	}

	if _, err := NewEncoder(nil, DefaultParameters(), NewImageParameters(8, 8)); !errors.Is(err, ErrNoDevice) {
		t.Errorf("nil device: got %v, want ErrNoDevice", err)
	}
}

// creationCalls returns how often op is called by a successful NewEncoder
func creationCalls(t *testing.T, op device.Op, param Parameters) int {
	t.Helper()

	tr := device.NewTracker(device.NewHost())
	enc, err := NewEncoder(tr, param, NewImageParameters(24, 16))
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	n := tr.Calls(op)
	if err := enc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return n
}

func TestNewEncoderFailureReleasesEverything(t *testing.T) {
	for _, param := range []Parameters{
		{Quality: 75, RestartInterval: 0},
		{Quality: 75, RestartInterval: 8},
		{Quality: 75, RestartInterval: 8, Interleaved: true},
	} {
		for _, op := range []device.Op{device.OpMalloc, device.OpCopyToDevice, device.OpCopyToSymbol} {
			calls := creationCalls(t, op, param)
			if calls == 0 {
				t.Fatalf("%v never called during creation", op)
			}
			for call := 1; call <= calls; call++ {
				tr := device.NewTracker(device.NewHost())
				tr.FailOn(op, call)

				enc, err := NewEncoder(tr, param, NewImageParameters(24, 16))
				if enc != nil {
					t.Fatalf("restart %d: %v call %d: expected nil encoder", param.RestartInterval, op, call)
				}
				if !errors.Is(err, ErrCreate) || !errors.Is(err, device.ErrInjected) {
					t.Errorf("restart %d: %v call %d: got %v", param.RestartInterval, op, call, err)
				}
				if tr.Live() != 0 {
					t.Errorf("restart %d: %v call %d: %d allocations leaked", param.RestartInterval, op, call, tr.Live())
				}
				if tr.InvalidFrees() != 0 {
					t.Errorf("restart %d: %v call %d: %d invalid frees", param.RestartInterval, op, call, tr.InvalidFrees())
				}
			}
		}
	}
}

func TestNewEncoderOutOfMemory(t *testing.T) {
	host := device.NewHost(device.WithMemoryLimit(4096))
	enc, err := NewEncoder(host, DefaultParameters(), NewImageParameters(64, 64))
	if enc != nil {
		t.Fatal("expected nil encoder")
	}
	if !errors.Is(err, ErrCreate) || !errors.Is(err, device.ErrOutOfMemory) {
		t.Errorf("got %v, want ErrCreate and ErrOutOfMemory", err)
	}
	if host.Allocations() != 0 || host.MemoryUsed() != 0 {
		t.Errorf("%d allocations (%d bytes) leaked", host.Allocations(), host.MemoryUsed())
	}
}

func TestEncodeDeviceFailures(t *testing.T) {
	tests := []struct {
		name    string
		restart int
		op      device.Op
		call    int
		want    error
		comp    int // expected TransformError component, -1 if none
	}{
		{"upload", 0, device.OpCopyToDevice, 1, ErrTransfer, -1},
		{"preprocess launch", 0, device.OpLaunch, 1, ErrPreprocess, -1},
		{"luminance dct", 0, device.OpLaunch, 2, ErrTransform, 0},
		{"second chrominance dct", 0, device.OpLaunch, 4, ErrTransform, 2},
		{"coefficient download", 0, device.OpCopyToHost, 1, ErrTransfer, -1},
		{"segment coder launch", 8, device.OpLaunch, 5, ErrEntropy, -1},
		{"compressed download", 8, device.OpCopyToHost, 1, ErrTransfer, -1},
		{"segment download", 8, device.OpCopyToHost, 2, ErrTransfer, -1},
	}

	raw := gradientImage(32, 24)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := device.NewTracker(device.NewHost())
			enc, err := NewEncoder(tr, Parameters{Quality: 75, RestartInterval: tt.restart}, NewImageParameters(32, 24))
			if err != nil {
				t.Fatalf("NewEncoder failed: %v", err)
			}
			defer enc.Close()

			reference, err := enc.Encode(raw)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			reference = append([]byte(nil), reference...)

			tr.Reset()
			tr.FailOn(tt.op, tt.call)
			out, err := enc.Encode(raw)
			if out != nil {
				t.Error("expected nil output on failure")
			}
			if !errors.Is(err, tt.want) || !errors.Is(err, device.ErrInjected) {
				t.Fatalf("got %v, want %v wrapping ErrInjected", err, tt.want)
			}
			var te *TransformError
			if errors.As(err, &te) != (tt.comp >= 0) {
				t.Fatalf("TransformError presence mismatch: %v", err)
			}
			if te != nil && te.Component != tt.comp {
				t.Errorf("failed component %d, want %d", te.Component, tt.comp)
			}

			// The session stays usable
			out, err = enc.Encode(raw)
			if err != nil {
				t.Fatalf("Encode after failure: %v", err)
			}
			if !bytes.Equal(out, reference) {
				t.Error("output after a failed encode differs")
			}
		})
	}
}

type failingStage struct {
	err error
}

func (f failingStage) Encode(*Coder, device.Device) error { return f.err }

type failingCoder struct {
	initErr   error
	encodeErr error
}

func (f failingCoder) Init() error {
	return f.initErr
}

func (f failingCoder) Encode(*Encoder) error {
	return f.encodeErr
}

func TestCollaboratorFailures(t *testing.T) {
	errStage := errors.New("stage failed")
	raw := gradientImage(16, 16)

	t.Run("preprocessor", func(t *testing.T) {
		enc, err := NewEncoder(device.NewHost(), DefaultParameters(), NewImageParameters(16, 16),
			WithPreprocessor(failingStage{err: errStage}))
		if err != nil {
			t.Fatalf("NewEncoder failed: %v", err)
		}
		defer enc.Close()
		if _, err := enc.Encode(raw); !errors.Is(err, ErrPreprocess) || !errors.Is(err, errStage) {
			t.Errorf("got %v, want ErrPreprocess", err)
		}
	})

	t.Run("sequential coder", func(t *testing.T) {
		enc, err := NewEncoder(device.NewHost(), Parameters{Quality: 75}, NewImageParameters(16, 16),
			WithSequentialCoder(failingCoder{encodeErr: errStage}))
		if err != nil {
			t.Fatalf("NewEncoder failed: %v", err)
		}
		defer enc.Close()
		if _, err := enc.Encode(raw); !errors.Is(err, ErrEntropy) || !errors.Is(err, errStage) {
			t.Errorf("got %v, want ErrEntropy", err)
		}
	})

	t.Run("parallel coder", func(t *testing.T) {
		enc, err := NewEncoder(device.NewHost(), Parameters{Quality: 75, RestartInterval: 4}, NewImageParameters(16, 16),
			WithParallelCoder(failingCoder{encodeErr: errStage}))
		if err != nil {
			t.Fatalf("NewEncoder failed: %v", err)
		}
		defer enc.Close()
		if _, err := enc.Encode(raw); !errors.Is(err, ErrEntropy) || !errors.Is(err, errStage) {
			t.Errorf("got %v, want ErrEntropy", err)
		}
	})

	t.Run("parallel coder init", func(t *testing.T) {
		tr := device.NewTracker(device.NewHost())
		enc, err := NewEncoder(tr, DefaultParameters(), NewImageParameters(16, 16),
			WithParallelCoder(failingCoder{initErr: errStage}))
		if enc != nil || !errors.Is(err, ErrCreate) || !errors.Is(err, errStage) {
			t.Errorf("got %v, want ErrCreate", err)
		}
		if tr.Live() != 0 {
			t.Errorf("%d allocations leaked", tr.Live())
		}
	})
}

func TestCloseIdempotent(t *testing.T) {
	tr := device.NewTracker(device.NewHost())
	enc, err := NewEncoder(tr, DefaultParameters(), NewImageParameters(16, 16))
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	if tr.Live() == 0 {
		t.Fatal("encoder holds no allocations")
	}

	if err := enc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if tr.Live() != 0 {
		t.Errorf("%d allocations live after Close", tr.Live())
	}

	frees := tr.Calls(device.OpFree)
	if err := enc.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if tr.Calls(device.OpFree) != frees {
		t.Error("second Close freed again")
	}
	if tr.InvalidFrees() != 0 {
		t.Errorf("%d invalid frees", tr.InvalidFrees())
	}

	if _, err := enc.Encode(gradientImage(16, 16)); !errors.Is(err, ErrClosed) {
		t.Errorf("Encode after Close: got %v, want ErrClosed", err)
	}
}

func TestCloseCoderFreeFailure(t *testing.T) {
	tr := device.NewTracker(device.NewHost())
	enc, err := NewEncoder(tr, Parameters{Quality: 75, RestartInterval: 8}, NewImageParameters(16, 16))
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	live := tr.Live()

	tr.FailOn(device.OpFree, 1)
	err = enc.Close()
	if !errors.Is(err, device.ErrInjected) {
		t.Fatalf("Close: got %v, want ErrInjected", err)
	}
	if !strings.Contains(err.Error(), "deinit coder") {
		t.Errorf("Close error %q does not name the coder", err)
	}

	// Only the handle whose free failed survives
	if tr.Live() != 1 {
		t.Errorf("%d allocations live after Close, want 1", tr.Live())
	}
	if n := tr.Calls(device.OpFree); n != live {
		t.Errorf("%d frees attempted, want %d", n, live)
	}

	if err := enc.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestEncodeTrace(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewEncoder(device.NewHost(), DefaultParameters(), NewImageParameters(16, 8), WithTrace(&buf))
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	defer enc.Close()

	if _, err := enc.Encode(gradientImage(16, 8)); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	for _, stage := range []string{"create", "upload", "preprocess", "forward dct", "huffman encoder (device)", "done"} {
		if !strings.Contains(buf.String(), "[gpujpeg] "+stage) {
			t.Errorf("trace is missing %q:\n%s", stage, buf.String())
		}
	}
}

func BenchmarkEncode(b *testing.B) {
	for _, restart := range []int{0, 8} {
		name := "sequential"
		if restart > 0 {
			name = "segments"
		}
		b.Run(name, func(b *testing.B) {
			raw := gradientImage(512, 512)
			enc, err := NewEncoder(device.NewHost(), Parameters{Quality: 75, RestartInterval: restart}, NewImageParameters(512, 512))
			if err != nil {
				b.Fatalf("NewEncoder failed: %v", err)
			}
			defer enc.Close()

			b.SetBytes(int64(len(raw)))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := enc.Encode(raw); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
