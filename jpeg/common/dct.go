package common

import "math"

// dctCos[u][x] = C(u)/2 * cos((2x+1)*u*pi/16), with C(0) = 1/sqrt(2)
var dctCos [8][8]float64

func init() {
	for u := 0; u < 8; u++ {
		cu := 1.0
		if u == 0 {
			cu = 1 / math.Sqrt2
		}
		for x := 0; x < 8; x++ {
			dctCos[u][x] = cu / 2 * math.Cos(float64(2*x+1)*float64(u)*math.Pi/16)
		}
	}
}

// DCT performs the forward Discrete Cosine Transform on an 8x8 block
// Input: 64 spatial domain values (range 0-255) read with the given stride
// Output: 64 DCT coefficients in natural order, DC in the range [-1024, 1016]
func DCT(input []byte, stride int, coef *[BlockSize]float64) {
	var tmp [BlockSize]float64

	// 1D DCT on rows, with level shift
	for y := 0; y < 8; y++ {
		row := input[y*stride : y*stride+8]
		for u := 0; u < 8; u++ {
			sum := 0.0
			for x := 0; x < 8; x++ {
				sum += (float64(row[x]) - 128) * dctCos[u][x]
			}
			tmp[y*8+u] = sum
		}
	}

	// 1D DCT on columns
	for u := 0; u < 8; u++ {
		for v := 0; v < 8; v++ {
			sum := 0.0
			for y := 0; y < 8; y++ {
				sum += tmp[y*8+u] * dctCos[v][y]
			}
			coef[v*8+u] = sum
		}
	}
}

// Quantize divides DCT coefficients by a natural order quantization table,
// rounding to nearest and clamping to the baseline coefficient range.
func Quantize(coef *[BlockSize]float64, table []uint16, out []int16) {
	for i := 0; i < BlockSize; i++ {
		q := math.Round(coef[i] / float64(table[i]))
		if q > 1023 {
			q = 1023
		} else if q < -1023 {
			q = -1023
		}
		out[i] = int16(q)
	}
}
