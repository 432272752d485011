package speech

import (
	"context"
	"sync"
	"time"

	"github.com/spaghettifunk/marionette/engine/core"
)

// Player starts audio playback. Play returns once playback is set up;
// Started and Done report its progress.
type Player interface {
	Play(ctx context.Context, audio []byte) (Playback, error)
}

type Playback interface {
	// Closed when sound starts.
	Started() <-chan struct{}
	// Closed when playback ended, was stopped or its context was cancelled.
	Done() <-chan struct{}
	Stop()
	Err() error
}

// TimedPlayer plays nothing: it holds a playback open for the length of the
// WAV it is given. Headless runs and tests use it in place of an audio device.
type TimedPlayer struct {
	// Delay before Started, simulating device latency.
	Latency time.Duration
	// Used when the audio is not a readable WAV. Zero rejects such audio.
	Fallback time.Duration
}

func (p *TimedPlayer) Play(ctx context.Context, audio []byte) (Playback, error) {
	d, err := WAVDuration(audio)
	if err != nil {
		if p.Fallback <= 0 {
			return nil, err
		}
		d = p.Fallback
	}
	pb := newTimedPlayback()
	go pb.run(ctx, p.Latency, d)
	return pb, nil
}

type timedPlayback struct {
	started  chan struct{}
	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once

	mutex sync.Mutex
	err   error
}

func newTimedPlayback() *timedPlayback {
	return &timedPlayback{
		started: make(chan struct{}),
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
	}
}

func (p *timedPlayback) run(ctx context.Context, latency, d time.Duration) {
	defer close(p.done)

	if latency > 0 {
		t := time.NewTimer(latency)
		select {
		case <-t.C:
		case <-p.stop:
			t.Stop()
			return
		case <-ctx.Done():
			t.Stop()
			p.setErr(ctx.Err())
			return
		}
	}
	close(p.started)

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-p.stop:
	case <-ctx.Done():
		p.setErr(ctx.Err())
	}
}

func (p *timedPlayback) setErr(err error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.err = err
}

func (p *timedPlayback) Started() <-chan struct{} {
	return p.started
}

func (p *timedPlayback) Done() <-chan struct{} {
	return p.done
}

func (p *timedPlayback) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *timedPlayback) Err() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.err
}

// Wait blocks until pb started, or returns the reason it never will.
func Wait(ctx context.Context, pb Playback) error {
	select {
	case <-pb.Started():
		return nil
	case <-pb.Done():
		if err := pb.Err(); err != nil {
			return err
		}
		return core.ErrAudioPlayback
	case <-ctx.Done():
		return ctx.Err()
	}
}
