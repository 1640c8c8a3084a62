package rtaudio

import (
	"math"
	"sync/atomic"

	"github.com/loopwire/transparency/internal/drift"
	"github.com/loopwire/transparency/internal/normalize"
	"github.com/loopwire/transparency/internal/ring"
)

// CaptureWorker is the hot-path callback target for the capture device
// (spec.md §4.4). It never allocates, locks, or performs I/O: every buffer
// it touches is preallocated at construction time and sized generously
// against the configured period, with the decode/write loop chunking any
// larger-than-expected block instead of growing a buffer.
type CaptureWorker struct {
	buf         *ring.Buffer
	compensator *drift.Compensator
	channels    int
	bitDepth    int
	isFloat     bool
	decimation  int
	volumeBits  atomic.Uint32
	running     atomic.Bool
	overruns    atomic.Uint64

	decodeScratch   []float32
	decimateScratch []float32
}

// NewCaptureWorker constructs a Capture Worker. scratchFrames bounds how
// many native-rate frames are decoded per inner chunk; it should be set to
// a generous multiple of the configured period size so a normal callback
// never needs more than one chunk.
func NewCaptureWorker(buf *ring.Buffer, comp *drift.Compensator, channels, bitDepth int, isFloat bool, decimationRatio, scratchFrames int) *CaptureWorker {
	if decimationRatio < 1 {
		decimationRatio = 1
	}
	w := &CaptureWorker{
		buf:             buf,
		compensator:     comp,
		channels:        channels,
		bitDepth:        bitDepth,
		isFloat:         isFloat,
		decimation:      decimationRatio,
		decodeScratch:   make([]float32, scratchFrames*channels),
		decimateScratch: make([]float32, scratchFrames*channels),
	}
	w.volumeBits.Store(math.Float32bits(1.0))
	return w
}

// SetVolume stores the gain applied to every captured sample. Legal from
// any goroutine at any engine state, per spec.md §4.6.
func (w *CaptureWorker) SetVolume(v float32) {
	w.volumeBits.Store(math.Float32bits(v))
}

// Start arms the callback. Returns ErrAlreadyRunning if already armed.
func (w *CaptureWorker) Start() error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	return nil
}

// Stop disarms the callback. Returns ErrNotRunning if not armed.
func (w *CaptureWorker) Stop() error {
	if !w.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}
	return nil
}

// Overruns returns the cumulative count of input frames dropped because
// the ring buffer had no room for them.
func (w *CaptureWorker) Overruns() uint64 { return w.overruns.Load() }

// OnData is the host's per-period data callback for the capture device.
// in holds frames*channels native-format samples; out is unused (nil) for
// a capture-only device.
func (w *CaptureWorker) OnData(out, in []byte, frames uint32) {
	if !w.running.Load() {
		return
	}

	sampleBytes := bytesForBitDepth(w.bitDepth, w.isFloat)
	frameBytes := sampleBytes * w.channels
	totalFrames := int(frames)
	if frameBytes == 0 || totalFrames == 0 {
		return
	}

	vol := math.Float32frombits(w.volumeBits.Load())
	chunkFrames := len(w.decodeScratch) / w.channels
	if chunkFrames == 0 {
		return
	}

	var lastFrame []float32
	offset := 0
	for offset < totalFrames {
		n := totalFrames - offset
		if n > chunkFrames {
			n = chunkFrames
		}

		chunkBytes := in[offset*frameBytes : (offset+n)*frameBytes]
		decoded := normalize.DecodeBlockInto(chunkBytes, w.bitDepth, w.isFloat, w.decodeScratch)
		decodedFrames := decoded / w.channels

		for i := 0; i < decoded; i++ {
			w.decodeScratch[i] *= vol
		}

		srcFrames := w.decodeScratch[:decoded]
		decFrames := decodedFrames
		if w.decimation > 1 {
			decFrames = normalize.DecimateInto(srcFrames, w.channels, w.decimation, w.decimateScratch)
			srcFrames = w.decimateScratch[:decFrames*w.channels]
		}

		w.writeToRing(srcFrames, decFrames)
		if decFrames > 0 {
			lastFrame = srcFrames[(decFrames-1)*w.channels : decFrames*w.channels]
		}

		offset += n
	}

	if lastFrame != nil {
		w.compensator.RecordLastFrame(lastFrame)
	}
}

// writeToRing commits framesAvailable frames of samples (channels per
// frame) to the ring buffer, counting any remainder that does not fit as
// overrun rather than blocking or growing the buffer.
func (w *CaptureWorker) writeToRing(samples []float32, framesAvailable int) {
	remaining := framesAvailable
	srcOffset := 0
	for remaining > 0 {
		avail := w.buf.AvailableWrite()
		if avail <= 0 {
			w.overruns.Add(uint64(remaining))
			return
		}
		want := remaining
		if want > avail {
			want = avail
		}

		dst, n := w.buf.AcquireWrite(want)
		if n == 0 {
			w.overruns.Add(uint64(remaining))
			return
		}
		copy(dst, samples[srcOffset*w.channels:(srcOffset+n)*w.channels])
		w.buf.CommitWrite(n)

		remaining -= n
		srcOffset += n
	}
}

func bytesForBitDepth(bitDepth int, isFloat bool) int {
	if isFloat {
		return 4
	}
	switch bitDepth {
	case 8:
		return 1
	case 16:
		return 2
	case 24:
		return 3
	case 32:
		return 4
	default:
		return 0
	}
}
