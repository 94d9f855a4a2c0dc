// Package codec converts 8-bit mu-law telephony audio (ITU-T G.711)
// into linear PCM16 at the sample rate the STT backends expect.
package codec

import "sync"

const (
	mulawBias = 33

	// InputRate is the sample rate of mu-law audio on the wire.
	InputRate = 8000
	// OutputRate is the sample rate every backend consumes.
	OutputRate = 16000
)

var (
	decodeOnce  sync.Once
	decodeTable [256]int16
)

// DecodeTable returns the shared mu-law to PCM16 lookup table. The
// table is built once and never mutated, so concurrent readers need no
// locking.
func DecodeTable() *[256]int16 {
	decodeOnce.Do(buildDecodeTable)
	return &decodeTable
}

func buildDecodeTable() {
	for i := 0; i < 256; i++ {
		val := ^i & 0xFF
		sign := val & 0x80
		exponent := (val >> 4) & 0x07
		mantissa := val & 0x0F
		sample := ((mantissa << 3) + mulawBias) << exponent
		sample -= mulawBias
		if sign != 0 {
			sample = -sample
		}
		if sample > 32767 {
			sample = 32767
		}
		if sample < -32768 {
			sample = -32768
		}
		decodeTable[i] = int16(sample)
	}
}

// Decode maps mu-law bytes to PCM16 samples at 8 kHz.
func Decode(data []byte) []int16 {
	table := DecodeTable()
	out := make([]int16, len(data))
	for i, b := range data {
		out[i] = table[b]
	}
	return out
}

// Upsample doubles an 8 kHz sample sequence to 16 kHz by inserting the
// truncated midpoint between each adjacent pair. The last sample has no
// successor and is emitted twice. This is linear interpolation, not a
// band-limited resampler; the STT models tolerate the mild aliasing.
func Upsample(samples []int16) []int16 {
	if len(samples) == 0 {
		return nil
	}
	out := make([]int16, 0, 2*len(samples))
	for i := 0; i < len(samples)-1; i++ {
		out = append(out, samples[i])
		mid := (int32(samples[i]) + int32(samples[i+1])) / 2
		out = append(out, int16(mid))
	}
	last := samples[len(samples)-1]
	out = append(out, last, last)
	return out
}

// Transcode converts one mu-law 8 kHz chunk into PCM16 16 kHz mono,
// little-endian. Output length is always 4*len(data): two bytes per
// sample, twice the sample count. There is no error path; every byte
// value is a valid mu-law code.
func Transcode(data []byte) []byte {
	samples := Upsample(Decode(data))
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		u := uint16(s)
		out[2*i] = byte(u)
		out[2*i+1] = byte(u >> 8)
	}
	return out
}
