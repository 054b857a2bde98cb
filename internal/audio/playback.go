package audio

import (
	"fmt"
	"log"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PlaybackSampleRate is the agent's synthesis output rate.
const PlaybackSampleRate = 24000

// Player buffers agent speech PCM and feeds the default output device.
// The device callback pulls from the buffer and pads with silence when it
// runs dry, so playback never blocks the transport's read loop.
type Player struct {
	sampleRate int

	mu      sync.Mutex
	buf     []int16
	stream  *portaudio.Stream
	running bool
}

// NewPlayer constructs a player for 16-bit little-endian mono PCM.
func NewPlayer(sampleRate int) *Player {
	return &Player{sampleRate: sampleRate}
}

// Start opens the output device.
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("audio: initialize: %w", err)
	}
	frames := p.sampleRate * FrameMillis / 1000
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(p.sampleRate), frames, p.fill)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("audio: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("audio: start output stream: %w", err)
	}
	p.stream = stream
	p.running = true
	return nil
}

func (p *Player) fill(out []int16) {
	p.mu.Lock()
	n := copy(out, p.buf)
	p.buf = p.buf[:copy(p.buf, p.buf[n:])]
	p.mu.Unlock()
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
}

// WritePCM queues 16-bit little-endian mono PCM for playback.
func (p *Player) WritePCM(pcm []byte) {
	if len(pcm) < 2 {
		return
	}
	need := len(pcm) / 2
	p.mu.Lock()
	defer p.mu.Unlock()
	startLen := len(p.buf)
	if cap(p.buf)-startLen < need {
		tmp := make([]int16, startLen, startLen+need+2048)
		copy(tmp, p.buf)
		p.buf = tmp
	}
	p.buf = p.buf[:startLen+need]
	for i := 0; i < need; i++ {
		p.buf[startLen+i] = int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
	}
}

// Reset drops any queued audio immediately (used when the user interrupts).
func (p *Player) Reset() {
	p.mu.Lock()
	p.buf = p.buf[:0]
	p.mu.Unlock()
}

// Stop closes the output device.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return nil
	}
	p.running = false
	if err := p.stream.Stop(); err != nil {
		log.Printf("audio: stop output stream: %v", err)
	}
	if err := p.stream.Close(); err != nil {
		log.Printf("audio: close output stream: %v", err)
	}
	p.stream = nil
	return portaudio.Terminate()
}
