// Package sound gates notification audio behind a user-interaction unlock
// and a rate limit.
package sound

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
)

// Player is the audio capability boundary. Implementations must tolerate
// Play before Unlock by doing nothing.
type Player interface {
	// Unlock prepares the audio path. Called once, from the first user
	// interaction.
	Unlock() error

	// Play emits the notification sound.
	Play() error

	// IsUnlocked reports whether Unlock succeeded.
	IsUnlocked() bool
}

// TonePlayer synthesizes a short PCM tone into a sink. Unlock primes the
// path with a near-silent buffer, the same trick the dashboard uses to
// satisfy gesture-gated audio. It is the fallback when no pre-recorded
// sample is configured.
type TonePlayer struct {
	sink io.Writer

	mu       sync.Mutex
	unlocked bool
}

const (
	sampleRate   = 44100
	toneHz       = 880.0
	toneDuration = 0.12 // seconds
)

// NewTonePlayer creates a tone player writing PCM16LE frames to sink.
func NewTonePlayer(sink io.Writer) *TonePlayer {
	return &TonePlayer{sink: sink}
}

func (p *TonePlayer) Unlock() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unlocked {
		return nil
	}
	// Prime with a near-silent buffer, then real plays are allowed.
	if err := p.write(0.001); err != nil {
		return err
	}
	p.unlocked = true
	return nil
}

func (p *TonePlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.unlocked {
		return nil
	}
	return p.write(0.4)
}

func (p *TonePlayer) IsUnlocked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unlocked
}

func (p *TonePlayer) write(amplitude float64) error {
	samples := int(sampleRate * toneDuration)
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := amplitude * math.Sin(2*math.Pi*toneHz*float64(i)/sampleRate)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(v*math.MaxInt16)))
	}
	_, err := p.sink.Write(buf)
	return err
}

// NopPlayer is the headless default: unlockable, silent.
type NopPlayer struct {
	mu       sync.Mutex
	unlocked bool
	plays    int
}

func NewNopPlayer() *NopPlayer {
	return &NopPlayer{}
}

func (p *NopPlayer) Unlock() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unlocked = true
	return nil
}

func (p *NopPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unlocked {
		p.plays++
	}
	return nil
}

func (p *NopPlayer) IsUnlocked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unlocked
}

// Plays reports how many sounds actually fired, for the status surface.
func (p *NopPlayer) Plays() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plays
}
