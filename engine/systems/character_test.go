package systems

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/marionette/engine/animation"
	"github.com/spaghettifunk/marionette/engine/camera"
	"github.com/spaghettifunk/marionette/engine/character"
	"github.com/spaghettifunk/marionette/engine/character/chartest"
	"github.com/spaghettifunk/marionette/engine/core"
	"github.com/spaghettifunk/marionette/engine/math"
	"github.com/spaghettifunk/marionette/engine/speech"
)

const frame = time.Second / 60

type fakeLoader struct {
	calls atomic.Int32
	fail  error
}

func (l *fakeLoader) LoadCharacter(ctx context.Context, profile *character.Profile) (*character.Runtime, error) {
	l.calls.Add(1)
	if l.fail != nil {
		return nil, l.fail
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return chartest.Runtime(), nil
}

type fakeClips struct {
	mutex     sync.Mutex
	requested []string
	missing   map[string]bool
}

func (f *fakeClips) LoadClip(ctx context.Context, id string) (*animation.SourceClip, error) {
	f.mutex.Lock()
	f.requested = append(f.requested, id)
	f.mutex.Unlock()
	if f.missing[id] {
		return nil, errors.New("404 not found")
	}
	return &animation.SourceClip{
		ID:       id,
		Skeleton: chartest.Skeleton("src:"),
		Clip:     chartest.SwayClip(id, "src:Spine", 0.3, 1, character.LoopOnce),
	}, nil
}

func (f *fakeClips) Requested() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]string(nil), f.requested...)
}

type fakeAudio struct {
	length time.Duration
}

func (a fakeAudio) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, core.ErrAudioSource
	}
	return speech.NewWAV(8000, a.length), nil
}

type harness struct {
	t       *testing.T
	bus     *core.EventBus
	jobs    *JobSystem
	cs      *CharacterSystem
	loader  *fakeLoader
	clips   *fakeClips
	now     time.Duration
	frame   uint64
	started map[string]int
	talks   []core.EventCode
}

func newHarness(t *testing.T, cfg CharacterSystemConfig) *harness {
	h := &harness{
		t:       t,
		bus:     core.NewEventBus(),
		loader:  &fakeLoader{},
		clips:   &fakeClips{missing: map[string]bool{}},
		started: map[string]int{},
	}
	var err error
	h.jobs, err = NewJobSystem(2, 8)
	require.NoError(t, err)
	cams, err := NewCameraSystem(&CameraSystemConfig{
		MaxCameraCount: 4,
		Position:       math.NewVec3(0, 1.5, 3),
		Target:         math.NewVec3(0, 1.2, 0),
		Modes:          camera.DefaultConfig(),
	}, h.bus)
	require.NoError(t, err)

	cfg.Seed = 42
	h.cs, err = NewCharacterSystem(cfg, h.bus, h.jobs, cams, CharacterSources{
		Loader: h.loader,
		Clips:  h.clips,
		Audio:  fakeAudio{length: 300 * time.Millisecond},
		Player: &speech.TimedPlayer{},
	})
	require.NoError(t, err)

	h.bus.Register(core.EventClipStarted, func(e core.Event) bool {
		h.started[e.Data.(animation.ActionEvent).Clip]++
		return false
	})
	record := func(e core.Event) bool {
		h.talks = append(h.talks, e.Code)
		return false
	}
	h.bus.Register(core.EventTalkStarted, record)
	h.bus.Register(core.EventTalkEnded, record)

	t.Cleanup(func() {
		h.cs.Shutdown()
		h.jobs.Shutdown()
	})
	return h
}

func (h *harness) step() {
	h.now += frame
	h.frame++
	h.cs.Update(core.Tick{Now: h.now, Delta: frame.Seconds(), Frame: h.frame})
}

func (h *harness) run(d time.Duration) {
	end := h.now + d
	for h.now < end {
		h.step()
	}
}

// await calls fn on another goroutine and ticks until it returns.
func (h *harness) await(fn func(ctx context.Context) error) error {
	h.t.Helper()
	done := make(chan error, 1)
	go func() { done <- fn(context.Background()) }()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case err := <-done:
			return err
		default:
		}
		h.step()
		time.Sleep(time.Millisecond)
	}
	h.t.Fatal("request never completed")
	return nil
}

// until ticks in real time until cond holds.
func (h *harness) until(cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			h.t.Fatal("condition never met")
		}
		h.step()
		time.Sleep(time.Millisecond)
	}
}

func (h *harness) selectTester() {
	h.t.Helper()
	require.NoError(h.t, h.await(func(ctx context.Context) error {
		return h.cs.SelectCharacter(ctx, chartest.Profile())
	}))
}

func TestNewCharacterSystemNeedsLoader(t *testing.T) {
	bus := core.NewEventBus()
	cams, err := NewCameraSystem(&CameraSystemConfig{MaxCameraCount: 1}, bus)
	require.NoError(t, err)
	_, err = NewCharacterSystem(DefaultCharacterSystemConfig(), bus, nil, cams, CharacterSources{})
	assert.Error(t, err)
}

func TestSelectCharacterInstalls(t *testing.T) {
	h := newHarness(t, DefaultCharacterSystemConfig())
	assert.Nil(t, h.cs.Runtime())

	h.selectTester()
	require.NotNil(t, h.cs.Runtime())
	h.step()

	st := h.cs.Snapshot()
	assert.Equal(t, "Tester", st.Character)
	assert.Equal(t, "idle", st.Phase)
	assert.Equal(t, "orbit", st.Camera)
	assert.Equal(t, "neutral", st.Emotion)
	assert.Equal(t, -1, st.SequenceIndex)
	assert.EqualValues(t, 1, h.loader.calls.Load())
}

func TestSelectCharacterLoadFailure(t *testing.T) {
	h := newHarness(t, DefaultCharacterSystemConfig())
	h.loader.fail = core.ErrCharacterLoad

	err := h.await(func(ctx context.Context) error {
		return h.cs.SelectCharacter(ctx, chartest.Profile())
	})
	assert.ErrorIs(t, err, core.ErrCharacterLoad)
	assert.Nil(t, h.cs.Runtime())
}

func TestRequestsNeedACharacter(t *testing.T) {
	h := newHarness(t, DefaultCharacterSystemConfig())

	err := h.await(func(ctx context.Context) error { return h.cs.ApplyEmotion(ctx, "happy") })
	assert.ErrorIs(t, err, core.ErrNoCharacter)
	err = h.await(func(ctx context.Context) error { return h.cs.PlayGeneratedSequence(ctx, []string{"a"}) })
	assert.ErrorIs(t, err, core.ErrNoCharacter)
	err = h.await(func(ctx context.Context) error { return h.cs.Say(ctx, "hello") })
	assert.ErrorIs(t, err, core.ErrNoCharacter)
}

func TestApplyEmotion(t *testing.T) {
	h := newHarness(t, DefaultCharacterSystemConfig())
	h.selectTester()

	require.NoError(t, h.await(func(ctx context.Context) error { return h.cs.ApplyEmotion(ctx, "sad") }))
	h.step()
	assert.Equal(t, "sad", h.cs.Snapshot().Emotion)

	err := h.await(func(ctx context.Context) error { return h.cs.ApplyEmotion(ctx, "furious") })
	assert.ErrorIs(t, err, core.ErrUnknownEmotion)
	h.step()
	assert.Equal(t, "sad", h.cs.Snapshot().Emotion)
}

func TestEmptySequenceIsRejected(t *testing.T) {
	h := newHarness(t, DefaultCharacterSystemConfig())
	assert.ErrorIs(t, h.cs.PlayGeneratedSequence(context.Background(), nil), core.ErrEmptySequence)
}

func TestGeneratedSequencePlaysWithCameraFollow(t *testing.T) {
	h := newHarness(t, DefaultCharacterSystemConfig())
	h.selectTester()

	require.NoError(t, h.await(func(ctx context.Context) error {
		return h.cs.PlayGeneratedSequence(ctx, []string{"wave", "bow", "nod"})
	}))
	h.step()
	st := h.cs.Snapshot()
	assert.Equal(t, "playing_generated", st.Phase)
	assert.Equal(t, "follow", st.Camera)
	assert.Equal(t, 3, st.SequenceLength)
	assert.Nil(t, st.GazeTarget, "no gaze target without pointer or talk")

	h.run(7 * time.Second)
	st = h.cs.Snapshot()
	assert.Equal(t, "idle", st.Phase)
	assert.NotEqual(t, "follow", st.Camera)
	for _, id := range []string{"wave", "bow", "nod"} {
		assert.Equal(t, 1, h.started[id], id)
	}
}

func TestFailedClipAbortsWholeSequence(t *testing.T) {
	h := newHarness(t, DefaultCharacterSystemConfig())
	h.selectTester()
	h.clips.missing["bow"] = true

	err := h.await(func(ctx context.Context) error {
		return h.cs.PlayGeneratedSequence(ctx, []string{"wave", "bow", "nod"})
	})
	require.ErrorIs(t, err, core.ErrClipLoad)
	assert.Contains(t, err.Error(), "clip 2 of 3")

	h.run(time.Second)
	assert.Equal(t, "standing", h.cs.Snapshot().Phase)
	assert.Equal(t, []string{"wave", "bow"}, h.clips.Requested(), "clip 3 is never loaded")
	assert.Zero(t, h.started["wave"])
	assert.Zero(t, h.started["nod"])
	assert.Equal(t, "orbit", h.cs.Snapshot().Camera)
}

func TestSayTalksThenHoldsHappy(t *testing.T) {
	cfg := DefaultCharacterSystemConfig()
	cfg.AfterTalkHold = time.Second
	h := newHarness(t, cfg)
	h.selectTester()

	require.NoError(t, h.await(func(ctx context.Context) error { return h.cs.Say(ctx, "hello there") }))
	h.step()
	st := h.cs.Snapshot()
	assert.True(t, st.Talking)
	assert.Equal(t, "talking", st.Phase)
	require.NotNil(t, st.GazeTarget, "looks at the camera while talking")

	h.until(func() bool { return !h.cs.Snapshot().Talking })
	st = h.cs.Snapshot()
	assert.Equal(t, "idle", st.Phase)
	assert.Equal(t, "happy", st.Emotion)
	assert.Equal(t, []core.EventCode{core.EventTalkStarted, core.EventTalkEnded}, h.talks)

	h.run(1500 * time.Millisecond)
	assert.Equal(t, "neutral", h.cs.Snapshot().Emotion)
}

func TestStopTalkingEndsSession(t *testing.T) {
	h := newHarness(t, DefaultCharacterSystemConfig())
	h.selectTester()

	audio := speech.NewWAV(8000, 10*time.Second)
	require.NoError(t, h.await(func(ctx context.Context) error { return h.cs.StartTalking(ctx, audio) }))
	h.step()
	require.True(t, h.cs.Snapshot().Talking)

	require.NoError(t, h.await(func(ctx context.Context) error { return h.cs.StopTalking(ctx) }))
	h.step()
	st := h.cs.Snapshot()
	assert.False(t, st.Talking)
	assert.Equal(t, "neutral", st.Emotion, "no after-talk emotion for raw audio")
}

func TestTalkingDuringSequenceKeepsClips(t *testing.T) {
	h := newHarness(t, DefaultCharacterSystemConfig())
	h.selectTester()
	require.NoError(t, h.await(func(ctx context.Context) error {
		return h.cs.PlayGeneratedSequence(ctx, []string{"wave", "bow"})
	}))

	audio := speech.NewWAV(8000, 5*time.Second)
	require.NoError(t, h.await(func(ctx context.Context) error { return h.cs.StartTalking(ctx, audio) }))
	h.step()
	st := h.cs.Snapshot()
	assert.True(t, st.Talking)
	assert.Equal(t, "playing_generated", st.Phase)
	assert.Zero(t, h.started["Talk"])
}

func TestHardResetReloadsCharacter(t *testing.T) {
	cfg := DefaultCharacterSystemConfig()
	cfg.Sequencer.HardReset = true
	h := newHarness(t, cfg)
	h.selectTester()
	first := h.cs.Runtime()

	require.NoError(t, h.await(func(ctx context.Context) error {
		return h.cs.PlayGeneratedSequence(ctx, []string{"wave"})
	}))
	h.until(func() bool { return h.cs.Snapshot().Phase == "idle" })

	assert.EqualValues(t, 2, h.loader.calls.Load())
	assert.NotSame(t, first, h.cs.Runtime())
}

func TestCancelledRequest(t *testing.T) {
	h := newHarness(t, DefaultCharacterSystemConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// nobody ticks, the context wins
	assert.ErrorIs(t, h.cs.ApplyEmotion(ctx, "happy"), context.Canceled)
}

func TestRequestsAfterShutdown(t *testing.T) {
	h := newHarness(t, DefaultCharacterSystemConfig())
	require.NoError(t, h.cs.Shutdown())
	assert.ErrorIs(t, h.cs.ApplyEmotion(context.Background(), "happy"), core.ErrShuttingDown)
	assert.ErrorIs(t, h.cs.OrbitCamera(0.1, 0), core.ErrShuttingDown)
}

func TestPointerDrivesGaze(t *testing.T) {
	h := newHarness(t, DefaultCharacterSystemConfig())
	h.selectTester()

	h.cs.PointerMoved(0.5, 0.2)
	h.run(200 * time.Millisecond)
	st := h.cs.Snapshot()
	assert.Equal(t, "pointer", st.GazeSource)
	require.NotNil(t, st.GazeTarget)
	assert.Greater(t, st.GazeTarget.X, float32(0))
}

func TestDefaultRetargeterWithoutInstall(t *testing.T) {
	h := newHarness(t, DefaultCharacterSystemConfig())
	require.NoError(t, h.cs.seq.Bind(chartest.Runtime()))
	src, err := h.clips.LoadClip(context.Background(), "wave")
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		assert.NoError(t, h.cs.seq.PlayGenerated([]animation.SourceClip{*src}))
	})
	assert.Equal(t, animation.PhasePlayingGenerated, h.cs.seq.Phase())
}

func TestHardResetKeepsTalkAndEmotion(t *testing.T) {
	cfg := DefaultCharacterSystemConfig()
	cfg.Sequencer.HardReset = true
	h := newHarness(t, cfg)
	h.selectTester()
	first := h.cs.Runtime()

	require.NoError(t, h.await(func(ctx context.Context) error { return h.cs.ApplyEmotion(ctx, "sad") }))
	require.NoError(t, h.await(func(ctx context.Context) error {
		return h.cs.PlayGeneratedSequence(ctx, []string{"wave"})
	}))
	audio := speech.NewWAV(8000, 20*time.Second)
	require.NoError(t, h.await(func(ctx context.Context) error { return h.cs.StartTalking(ctx, audio) }))

	h.until(func() bool { return h.cs.Runtime() != first && h.cs.Snapshot().Phase == "talking" })
	st := h.cs.Snapshot()
	assert.True(t, st.Talking)
	assert.Equal(t, "sad", st.Emotion)
	assert.EqualValues(t, 2, h.loader.calls.Load())
	assert.InDelta(t, 0.6, chartest.Face(h.cs.Runtime()).Weight("mouthFrown"), 1e-6)
	assert.Equal(t, []core.EventCode{core.EventTalkStarted}, h.talks, "the talk is not cut off")
}
