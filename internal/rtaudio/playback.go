package rtaudio

import (
	"math"
	"sync/atomic"

	"github.com/loopwire/transparency/internal/drift"
	"github.com/loopwire/transparency/internal/normalize"
	"github.com/loopwire/transparency/internal/ring"
)

// PlaybackWorker is the hot-path callback target for the playback device
// (spec.md §4.5). Like CaptureWorker, every buffer it touches is
// preallocated; the frame count passed to OnData may vary between calls
// and is handled without growing anything.
type PlaybackWorker struct {
	buf         *ring.Buffer
	compensator *drift.Compensator
	channels    int
	bitDepth    int
	isFloat     bool
	running     atomic.Bool

	encodeScratch []float32
}

// NewPlaybackWorker constructs a Playback Worker. scratchFrames bounds the
// largest single frameCount OnData will be asked to fill in one pass; a
// request larger than that is serviced in successive chunks.
func NewPlaybackWorker(buf *ring.Buffer, comp *drift.Compensator, channels, bitDepth int, isFloat bool, scratchFrames int) *PlaybackWorker {
	return &PlaybackWorker{
		buf:           buf,
		compensator:   comp,
		channels:      channels,
		bitDepth:      bitDepth,
		isFloat:       isFloat,
		encodeScratch: make([]float32, scratchFrames*channels),
	}
}

// Start arms the callback. Returns ErrAlreadyRunning if already armed.
func (w *PlaybackWorker) Start() error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	return nil
}

// Stop disarms the callback. Returns ErrNotRunning if not armed.
func (w *PlaybackWorker) Stop() error {
	if !w.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}
	return nil
}

// OnData is the host's per-period data callback for the playback device.
// out must be filled with frames*channels native-format samples; in is
// unused (nil) for a playback-only device.
func (w *PlaybackWorker) OnData(out, in []byte, frames uint32) {
	sampleBytes := bytesForBitDepth(w.bitDepth, w.isFloat)
	frameBytes := sampleBytes * w.channels
	totalFrames := int(frames)
	if frameBytes == 0 || totalFrames == 0 {
		return
	}

	if !w.running.Load() {
		zeroBytes(out)
		return
	}

	chunkFrames := len(w.encodeScratch) / w.channels
	if chunkFrames == 0 {
		zeroBytes(out)
		return
	}

	capacity := w.buf.Capacity()
	offset := 0
	for offset < totalFrames {
		requested := totalFrames - offset
		if requested > chunkFrames {
			requested = chunkFrames
		}

		available := w.buf.AvailableRead()
		fillRatio := float64(available) / float64(capacity)
		action := w.compensator.Decide(fillRatio, available, requested)

		n := w.fillChunk(requested, action)

		chunkBytes := out[offset*frameBytes : (offset+requested)*frameBytes]
		encodeBlock(w.encodeScratch[:n*w.channels], w.bitDepth, w.isFloat, chunkBytes)
		offset += requested
	}
}

// fillChunk writes exactly requested frames of interleaved samples into
// w.encodeScratch, honoring the Drift Compensator's chosen action for
// this chunk, and returns the number of frames written (always equal to
// requested; stretch pads with the replication register, compress drops
// one source frame before reading).
func (w *PlaybackWorker) fillChunk(requested int, action drift.Action) int {
	written := 0

	if action == drift.ActionCompress {
		if _, n := w.buf.AcquireRead(1); n > 0 {
			w.buf.CommitRead(n)
		}
	}

	for written < requested {
		want := requested - written
		src, n := w.buf.AcquireRead(want)
		if n == 0 {
			break
		}
		copy(w.encodeScratch[written*w.channels:(written+n)*w.channels], src)
		w.buf.CommitRead(n)
		written += n
	}

	if written < requested {
		w.compensator.RecordUnderrun()
	}

	if written > 0 {
		last := w.encodeScratch[(written-1)*w.channels : written*w.channels]
		w.compensator.RecordLastFrame(last)
	}

	for written < requested {
		copy(w.encodeScratch[written*w.channels:(written+1)*w.channels], w.compensator.LastFrame())
		written++
	}

	return written
}

func encodeBlock(samples []float32, bitDepth int, isFloat bool, dst []byte) {
	if isFloat {
		for i, s := range samples {
			putFloat32LE(dst[i*4:], s)
		}
		return
	}

	switch bitDepth {
	case 8:
		for i, s := range samples {
			dst[i] = normalize.F32ToU8(s)
		}
	case 16:
		for i, s := range samples {
			v := normalize.F32ToS16(s)
			putInt16LE(dst[i*2:], v)
		}
	case 24:
		for i, s := range samples {
			normalize.F32ToS24(s, dst[i*3:i*3+3])
		}
	case 32:
		for i, s := range samples {
			v := normalize.F32ToS32(s)
			putInt32LE(dst[i*4:], v)
		}
	}
}

func putFloat32LE(dst []byte, v float32) {
	bits := math.Float32bits(v)
	dst[0] = byte(bits)
	dst[1] = byte(bits >> 8)
	dst[2] = byte(bits >> 16)
	dst[3] = byte(bits >> 24)
}

func putInt16LE(dst []byte, v int16) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
}

func putInt32LE(dst []byte, v int32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
