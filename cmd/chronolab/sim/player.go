// Package sim provides the simulated video player and text chart the
// chronolab binary runs with.
package sim

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/CorMazz/chronolab/pkg/clock"
	"github.com/CorMazz/chronolab/pkg/playhead"
	"github.com/CorMazz/chronolab/pkg/window"
)

// ErrUnsupportedVideo is returned by Open for files that are not videos.
var ErrUnsupportedVideo = errors.New("unsupported video file")

// Player is a video player without video: elapsed time advances with
// its clock while playing.
type Player struct {
	clock clock.Clock

	mu        sync.Mutex
	path      string
	playing   bool
	position  float64
	startedAt time.Time
}

// NewPlayer returns a player driven by clk.
func NewPlayer(clk clock.Clock) *Player {
	if clk == nil {
		clk = clock.Real()
	}
	return &Player{clock: clk}
}

// Open loads path, paused at the start. It implements window.MediaOpener.
func (p *Player) Open(path string) (playhead.MediaSource, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if !slices.Contains(window.FileVideo.Extensions(), ext) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVideo, path)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.path = path
	p.playing = false
	p.position = 0
	return p, nil
}

// Path returns the loaded file, or "".
func (p *Player) Path() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path
}

// CurrentTime returns elapsed seconds. It implements playhead.MediaSource.
func (p *Player) CurrentTime() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.path == "" {
		return 0, playhead.ErrMediaUnavailable
	}
	return p.positionLocked(), nil
}

// Play starts or resumes playback.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.path == "" {
		return playhead.ErrMediaUnavailable
	}
	if !p.playing {
		p.playing = true
		p.startedAt = p.clock.Now()
	}
	return nil
}

// Pause stops playback at the current position.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = p.positionLocked()
	p.playing = false
}

// Seek jumps to seconds, keeping the play state.
func (p *Player) Seek(seconds float64) error {
	if seconds < 0 {
		return fmt.Errorf("seek: negative position %v", seconds)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.path == "" {
		return playhead.ErrMediaUnavailable
	}
	p.position = seconds
	p.startedAt = p.clock.Now()
	return nil
}

// Playing reports whether playback is running.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Close unloads the video.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.path = ""
	p.playing = false
	p.position = 0
}

// positionLocked must be called with p.mu held.
func (p *Player) positionLocked() float64 {
	if !p.playing {
		return p.position
	}
	return p.position + p.clock.Now().Sub(p.startedAt).Seconds()
}
