package audio

import "math"

// Wire format: 16-bit little-endian mono at 16 kHz, 20ms frames.
const (
	WireSampleRate = 16000
	FrameMillis    = 20
	FrameSamples   = WireSampleRate * FrameMillis / 1000
	FrameBytes     = FrameSamples * 2
)

// Downsample reduces srcRate float samples to dstRate. Each output sample
// averages its decimation block (exact blocks for integer ratios like
// 48k -> 16k, fractional block boundaries otherwise), which low-passes the
// signal instead of naively picking every Nth sample.
func Downsample(src []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || len(src) == 0 {
		out := make([]float32, len(src))
		copy(out, src)
		return out
	}
	if srcRate <= 0 || dstRate <= 0 || dstRate > srcRate {
		return nil
	}
	if srcRate%dstRate == 0 {
		ratio := srcRate / dstRate
		n := len(src) / ratio
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			var sum float32
			for j := 0; j < ratio; j++ {
				sum += src[i*ratio+j]
			}
			out[i] = sum / float32(ratio)
		}
		return out
	}
	step := float64(srcRate) / float64(dstRate)
	n := int(float64(len(src)) / step)
	out := make([]float32, 0, n)
	for i := 0; i < n; i++ {
		start := int(float64(i) * step)
		end := int(float64(i+1) * step)
		if end > len(src) {
			end = len(src)
		}
		if end <= start {
			end = start + 1
		}
		var sum float32
		for j := start; j < end; j++ {
			sum += src[j]
		}
		out = append(out, sum/float32(end-start))
	}
	return out
}

// Float32ToInt16LE clips samples to [-1, 1] and converts them to 16-bit
// little-endian PCM without overflow.
func Float32ToInt16LE(src []float32) []byte {
	out := make([]byte, len(src)*2)
	for i, s := range src {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(math.Round(float64(s) * 32767))
		out[2*i] = byte(uint16(v))
		out[2*i+1] = byte(uint16(v) >> 8)
	}
	return out
}

// Pipeline converts the native-rate float stream from the hardware callback
// into fixed-size wire frames. Frames produced while the gate is closed are
// dropped, not buffered: there is no backpressure from the remote side and
// memory must stay bounded.
type Pipeline struct {
	srcRate int
	gate    func() bool
	emit    func(frame []byte)

	buf []byte
}

// NewPipeline constructs a pipeline. gate is consulted once per emitted
// frame; emit receives complete FrameBytes-sized frames.
func NewPipeline(srcRate int, gate func() bool, emit func(frame []byte)) *Pipeline {
	return &Pipeline{srcRate: srcRate, gate: gate, emit: emit}
}

// Process consumes one hardware callback's worth of native-rate samples.
// Pure and synchronous; all I/O happens in emit.
func (p *Pipeline) Process(samples []float32) {
	pcm := Float32ToInt16LE(Downsample(samples, p.srcRate, WireSampleRate))
	p.buf = append(p.buf, pcm...)
	for len(p.buf) >= FrameBytes {
		frame := make([]byte, FrameBytes)
		copy(frame, p.buf[:FrameBytes])
		p.buf = p.buf[:copy(p.buf, p.buf[FrameBytes:])]
		if p.gate != nil && !p.gate() {
			// Sending is disallowed right now; drop the frame.
			continue
		}
		if p.emit != nil {
			p.emit(frame)
		}
	}
}

// Flush discards any buffered partial frame.
func (p *Pipeline) Flush() { p.buf = p.buf[:0] }
