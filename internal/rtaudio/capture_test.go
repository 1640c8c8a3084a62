package rtaudio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopwire/transparency/internal/drift"
	"github.com/loopwire/transparency/internal/ring"
)

func s16Bytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

func TestCaptureWorker_NotRunningIsNoop(t *testing.T) {
	buf, err := ring.New(64, 1)
	require.NoError(t, err)
	comp := drift.New(1)
	w := NewCaptureWorker(buf, comp, 1, 16, false, 1, 32)

	w.OnData(nil, s16Bytes([]int16{1000, 2000}), 2)
	assert.Equal(t, 0, buf.AvailableRead())
}

func TestCaptureWorker_WritesNormalizedSamples(t *testing.T) {
	buf, err := ring.New(64, 1)
	require.NoError(t, err)
	comp := drift.New(1)
	w := NewCaptureWorker(buf, comp, 1, 16, false, 1, 32)
	require.NoError(t, w.Start())

	in := s16Bytes([]int16{16384, -16384})
	w.OnData(nil, in, 2)

	require.Equal(t, 2, buf.AvailableRead())
	slice, n := buf.AcquireRead(2)
	require.Equal(t, 2, n)
	assert.InDelta(t, 0.5, slice[0], 1e-4)
	assert.InDelta(t, -0.5, slice[1], 1e-4)
	buf.CommitRead(n)
}

func TestCaptureWorker_AppliesVolume(t *testing.T) {
	buf, err := ring.New(64, 1)
	require.NoError(t, err)
	comp := drift.New(1)
	w := NewCaptureWorker(buf, comp, 1, 16, false, 1, 32)
	require.NoError(t, w.Start())
	w.SetVolume(0.5)

	w.OnData(nil, s16Bytes([]int16{16384}), 1)

	slice, n := buf.AcquireRead(1)
	require.Equal(t, 1, n)
	assert.InDelta(t, 0.25, slice[0], 1e-4)
}

func TestCaptureWorker_OverrunWhenRingFull(t *testing.T) {
	buf, err := ring.New(2, 1)
	require.NoError(t, err)
	comp := drift.New(1)
	w := NewCaptureWorker(buf, comp, 1, 16, false, 1, 32)
	require.NoError(t, w.Start())

	in := s16Bytes([]int16{1, 2, 3, 4})
	w.OnData(nil, in, 4)

	assert.Equal(t, 2, buf.AvailableRead())
	assert.Equal(t, uint64(2), w.Overruns())
}

func TestCaptureWorker_StartStopLifecycle(t *testing.T) {
	buf, err := ring.New(64, 1)
	require.NoError(t, err)
	comp := drift.New(1)
	w := NewCaptureWorker(buf, comp, 1, 16, false, 1, 32)

	require.NoError(t, w.Start())
	assert.ErrorIs(t, w.Start(), ErrAlreadyRunning)
	require.NoError(t, w.Stop())
	assert.ErrorIs(t, w.Stop(), ErrNotRunning)
}

func TestCaptureWorker_NoAllocationsOnHotPath(t *testing.T) {
	buf, err := ring.New(8192, 2)
	require.NoError(t, err)
	comp := drift.New(2)
	w := NewCaptureWorker(buf, comp, 2, 16, false, 1, 1024)
	require.NoError(t, w.Start())

	in := s16Bytes(make([]int16, 256))

	allocs := testing.AllocsPerRun(50, func() {
		buf.Reset()
		w.OnData(nil, in, 128)
	})
	assert.Equal(t, float64(0), allocs)
}
