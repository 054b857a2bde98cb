package audio

import (
	"fmt"
	"log"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// CaptureSource pulls raw microphone samples from the default input device
// and hands each hardware buffer to the pipeline callback.
type CaptureSource struct {
	sampleRate      int
	framesPerBuffer int
	onSamples       func([]float32)

	mu      sync.Mutex
	stream  *portaudio.Stream
	running bool
}

// NewCaptureSource constructs a mono capture source at the native rate
// (typically 48000). framesPerBuffer controls the callback cadence; 960
// frames at 48 kHz is a 20ms tick.
func NewCaptureSource(sampleRate, framesPerBuffer int, onSamples func([]float32)) *CaptureSource {
	return &CaptureSource{
		sampleRate:      sampleRate,
		framesPerBuffer: framesPerBuffer,
		onSamples:       onSamples,
	}
}

// Start initializes the audio host and begins the capture callback.
func (c *CaptureSource) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("audio: initialize: %w", err)
	}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(c.sampleRate), c.framesPerBuffer, func(in []float32) {
		if c.onSamples != nil {
			c.onSamples(in)
		}
	})
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("audio: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("audio: start input stream: %w", err)
	}
	c.stream = stream
	c.running = true
	log.Printf("audio: capture started at %d Hz, %d frames/buffer", c.sampleRate, c.framesPerBuffer)
	return nil
}

// Stop ends capture and releases the device.
func (c *CaptureSource) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false
	if err := c.stream.Stop(); err != nil {
		log.Printf("audio: stop input stream: %v", err)
	}
	if err := c.stream.Close(); err != nil {
		log.Printf("audio: close input stream: %v", err)
	}
	c.stream = nil
	return portaudio.Terminate()
}
