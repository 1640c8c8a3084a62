// Package normalize implements stateless conversion between device-native
// PCM sample formats and the engine's internal float32 representation, plus
// integer-ratio decimation. These are pure functions: no state, no
// allocation beyond what a caller explicitly requests, safe to call from
// either audio callback.
package normalize

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrNonIntegerRatio indicates the capture device's native sample rate does
// not divide evenly by the internal sample rate, so Decimate cannot be
// applied. The engine refuses to start rather than silently accept drift
// beyond the Drift Compensator's range (spec.md §4.2, Open Question a).
var ErrNonIntegerRatio = errors.New("normalize: sample rate ratio is not an integer")

// DecimationRatio returns the integer decimation ratio for converting from
// nativeRate to internalRate, or an error if the ratio is not a whole
// number or nativeRate is lower than internalRate. Equal rates give 1.
func DecimationRatio(nativeRate, internalRate uint32) (int, error) {
	if internalRate == 0 || nativeRate < internalRate {
		return 0, ErrNonIntegerRatio
	}
	if nativeRate%internalRate != 0 {
		return 0, ErrNonIntegerRatio
	}
	return int(nativeRate / internalRate), nil
}

// Decimate downsamples interleaved float32 frames by an integer ratio K
// using the arithmetic mean over each K-frame window. len(in) must be a
// multiple of channels*ratio; the caller (the Capture Worker) only ever
// calls this with a whole number of windows.
func Decimate(in []float32, channels, ratio int) []float32 {
	if ratio <= 1 {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}

	frameStride := channels * ratio
	frames := len(in) / frameStride
	out := make([]float32, frames*channels)

	for f := 0; f < frames; f++ {
		base := f * frameStride
		for c := 0; c < channels; c++ {
			var sum float32
			for k := 0; k < ratio; k++ {
				sum += in[base+k*channels+c]
			}
			out[f*channels+c] = sum / float32(ratio)
		}
	}
	return out
}

// U8ToF32 converts an unsigned 8-bit sample to internal float32.
func U8ToF32(x uint8) float32 {
	return (float32(x) - 128) / 128
}

// F32ToU8 converts an internal float32 sample back to unsigned 8-bit,
// rounding toward zero and truncating at the numeric range without
// saturation, per spec.md §4.2.
func F32ToU8(x float32) uint8 {
	v := x*128 + 128
	return uint8(int32(v))
}

// S16ToF32 converts a little-endian signed 16-bit sample to float32.
func S16ToF32(x int16) float32 {
	return float32(x) / 32768
}

// F32ToS16 converts an internal float32 sample back to signed 16-bit.
func F32ToS16(x float32) int16 {
	return int16(int32(x * 32768))
}

// S24ToF32 decodes a packed little-endian signed 24-bit sample (3 bytes,
// sign-extended from the top byte) to float32.
func S24ToF32(b []byte) float32 {
	raw := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	if raw&0x800000 != 0 {
		raw |= -1 << 24 // sign-extend
	}
	return float32(raw) / 8388608 // 2^23
}

// F32ToS24 encodes an internal float32 sample as packed little-endian
// signed 24-bit (3 bytes), writing into dst[0:3].
func F32ToS24(x float32, dst []byte) {
	v := int32(x * 8388608)
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
}

// S32ToF32 converts a signed 32-bit sample to float32.
func S32ToF32(x int32) float32 {
	return float32(x) / 2147483648 // 2^31
}

// F32ToS32 converts an internal float32 sample back to signed 32-bit.
func F32ToS32(x float32) int32 {
	return int32(float64(x) * 2147483647) // 2^31-1
}

// F32ToF32 is the identity conversion, present for symmetry with the other
// format pairs so callers can dispatch on a format enum uniformly.
func F32ToF32(x float32) float32 { return x }

// DecimateInto downsamples interleaved float32 frames by an integer ratio
// K using the arithmetic mean over each K-frame window, writing into the
// caller-supplied out slice (which must have capacity for at least
// len(in)/(channels*ratio)*channels samples) instead of allocating. Returns
// the number of frames written. Used on the Capture Worker's hot path,
// where Decimate's allocation would violate the no-allocation invariant.
func DecimateInto(in []float32, channels, ratio int, out []float32) int {
	if ratio <= 1 {
		n := copy(out, in)
		return n / channels
	}

	frameStride := channels * ratio
	frames := len(in) / frameStride
	need := frames * channels
	if need > len(out) {
		frames = len(out) / channels
	}

	for f := 0; f < frames; f++ {
		base := f * frameStride
		for c := 0; c < channels; c++ {
			var sum float32
			for k := 0; k < ratio; k++ {
				sum += in[base+k*channels+c]
			}
			out[f*channels+c] = sum / float32(ratio)
		}
	}
	return frames
}

// DecodeBlockInto decodes a little-endian raw byte block of the given
// format into out, the non-allocating counterpart to BytesToFloat32LE used
// on the Capture Worker's hot path. out must have capacity for at least as
// many samples as data contains; returns the number of samples written.
func DecodeBlockInto(data []byte, bitDepth int, isFloat bool, out []float32) int {
	if isFloat {
		n := len(data) / 4
		if n > len(out) {
			n = len(out)
		}
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint32(data[i*4:])
			out[i] = math.Float32frombits(bits)
		}
		return n
	}

	switch bitDepth {
	case 8:
		n := len(data)
		if n > len(out) {
			n = len(out)
		}
		for i := 0; i < n; i++ {
			out[i] = U8ToF32(data[i])
		}
		return n
	case 16:
		n := len(data) / 2
		if n > len(out) {
			n = len(out)
		}
		for i := 0; i < n; i++ {
			v := int16(binary.LittleEndian.Uint16(data[i*2:]))
			out[i] = S16ToF32(v)
		}
		return n
	case 24:
		n := len(data) / 3
		if n > len(out) {
			n = len(out)
		}
		for i := 0; i < n; i++ {
			out[i] = S24ToF32(data[i*3 : i*3+3])
		}
		return n
	case 32:
		n := len(data) / 4
		if n > len(out) {
			n = len(out)
		}
		for i := 0; i < n; i++ {
			v := int32(binary.LittleEndian.Uint32(data[i*4:]))
			out[i] = S32ToF32(v)
		}
		return n
	default:
		return 0
	}
}

// BytesToFloat32LE decodes a little-endian raw byte block of the given
// format into internal float32 frames. bitDepth is one of 8, 16, 24, 32
// (signed, except bitDepth==8 which is unsigned); isFloat selects the
// float32 passthrough path regardless of bitDepth.
func BytesToFloat32LE(data []byte, bitDepth int, isFloat bool) []float32 {
	if isFloat {
		out := make([]float32, len(data)/4)
		for i := range out {
			bits := binary.LittleEndian.Uint32(data[i*4:])
			out[i] = math.Float32frombits(bits)
		}
		return out
	}

	switch bitDepth {
	case 8:
		out := make([]float32, len(data))
		for i, b := range data {
			out[i] = U8ToF32(b)
		}
		return out
	case 16:
		out := make([]float32, len(data)/2)
		for i := range out {
			v := int16(binary.LittleEndian.Uint16(data[i*2:]))
			out[i] = S16ToF32(v)
		}
		return out
	case 24:
		out := make([]float32, len(data)/3)
		for i := range out {
			out[i] = S24ToF32(data[i*3 : i*3+3])
		}
		return out
	case 32:
		out := make([]float32, len(data)/4)
		for i := range out {
			v := int32(binary.LittleEndian.Uint32(data[i*4:]))
			out[i] = S32ToF32(v)
		}
		return out
	default:
		return nil
	}
}
