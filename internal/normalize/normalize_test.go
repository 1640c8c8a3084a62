package normalize

import (
	"math"
	"testing"

	"pgregory.net/rapid"
)

func TestDecimationRatio(t *testing.T) {
	cases := []struct {
		native, internal uint32
		want             int
		wantErr          bool
	}{
		{96000, 48000, 2, false},
		{48000, 48000, 1, false},
		{44100, 48000, 0, true},
		{48000, 44100, 0, true}, // not integer ratio
	}
	for _, c := range cases {
		got, err := DecimationRatio(c.native, c.internal)
		if c.wantErr {
			if err == nil {
				t.Errorf("DecimationRatio(%d,%d) expected error, got nil", c.native, c.internal)
			}
			continue
		}
		if err != nil {
			t.Fatalf("DecimationRatio(%d,%d) unexpected error: %v", c.native, c.internal, err)
		}
		if got != c.want {
			t.Errorf("DecimationRatio(%d,%d) = %d, want %d", c.native, c.internal, got, c.want)
		}
	}
}

func TestDecimate_ArithmeticMean(t *testing.T) {
	in := []float32{0, 2, 4, 6} // mono, ratio 2 -> two windows of 2
	out := Decimate(in, 1, 2)
	want := []float32{1, 5}
	if len(out) != len(want) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestDecimate_RatioOneIsIdentity(t *testing.T) {
	in := []float32{1, 2, 3, 4}
	out := Decimate(in, 2, 1)
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

// TestRoundTrip_S16 checks spec.md §8 property 6: normalizing to float32
// and back agrees with the input to within the format's quantization step.
func TestRoundTrip_S16(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		x := int16(rapid.IntRange(-32768, 32767).Draw(rt, "x"))
		f := S16ToF32(x)
		back := F32ToS16(f)
		diff := int(x) - int(back)
		if diff < 0 {
			diff = -diff
		}
		if diff > 1 {
			rt.Fatalf("S16 round trip: x=%d back=%d diff=%d > 1", x, back, diff)
		}
	})
}

func TestRoundTrip_U8(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		x := uint8(rapid.IntRange(0, 255).Draw(rt, "x"))
		f := U8ToF32(x)
		back := F32ToU8(f)
		diff := int(x) - int(back)
		if diff < 0 {
			diff = -diff
		}
		if diff > 1 {
			rt.Fatalf("U8 round trip: x=%d back=%d diff=%d > 1", x, back, diff)
		}
	})
}

func TestRoundTrip_S24(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		x := int32(rapid.IntRange(-8388608, 8388607).Draw(rt, "x"))
		buf := []byte{byte(x), byte(x >> 8), byte(x >> 16)}
		f := S24ToF32(buf)
		out := make([]byte, 3)
		F32ToS24(f, out)
		back := int32(out[0]) | int32(out[1])<<8 | int32(out[2])<<16
		if back&0x800000 != 0 {
			back |= -1 << 24
		}
		diff := x - back
		if diff < 0 {
			diff = -diff
		}
		if diff > 1 {
			rt.Fatalf("S24 round trip: x=%d back=%d diff=%d > 1", x, back, diff)
		}
	})
}

func TestRoundTrip_S32(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		x := rapid.Int32().Draw(rt, "x")
		f := S32ToF32(x)
		back := F32ToS32(f)
		diff := int64(x) - int64(back)
		if diff < 0 {
			diff = -diff
		}
		// 32-bit quantization step is tiny relative to the int32 range;
		// allow a small tolerance for the float32 mantissa's precision loss.
		if diff > 1<<8 {
			rt.Fatalf("S32 round trip: x=%d back=%d diff=%d too large", x, back, diff)
		}
	})
}

func TestF32ToF32Identity(t *testing.T) {
	for _, v := range []float32{0, 1, -1, 0.5, -0.5, float32(math.Pi) / 4} {
		if F32ToF32(v) != v {
			t.Errorf("F32ToF32(%v) = %v, want %v", v, F32ToF32(v), v)
		}
	}
}

func TestBytesToFloat32LE_Float(t *testing.T) {
	bits := math.Float32bits(0.5)
	data := []byte{byte(bits), byte(bits >> 8), byte(bits >> 16), byte(bits >> 24)}
	out := BytesToFloat32LE(data, 32, true)
	if len(out) != 1 || out[0] != 0.5 {
		t.Errorf("BytesToFloat32LE float = %v, want [0.5]", out)
	}
}
