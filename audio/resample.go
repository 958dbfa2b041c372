package audio

import (
	"encoding/binary"
	"math"
)

// DownmixStereo averages each interleaved (L, R) pair into one sample.
func DownmixStereo(samples []int16) []int16 {
	mono := make([]int16, len(samples)/2)
	for i := range mono {
		sum := int32(samples[2*i]) + int32(samples[2*i+1])
		// arithmetic shift keeps floor semantics for negative sums
		mono[i] = int16(sum >> 1)
	}
	return mono
}

// Resample converts samples from fromRate to toRate by linear interpolation,
// clamping to the last sample past the final valid index. Same-rate input is
// returned unchanged.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	n := int(math.Round(float64(len(samples)) * float64(toRate) / float64(fromRate)))
	out := make([]int16, n)
	for i := range out {
		pos := float64(i) * float64(fromRate) / float64(toRate)
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		a := float64(samples[idx])
		b := float64(samples[idx+1])
		out[i] = int16(a + frac*(b-a))
	}
	return out
}

// PackLE packs samples as little-endian 16-bit bytes.
func PackLE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}
