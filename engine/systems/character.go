package systems

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/spaghettifunk/marionette/engine/animation"
	"github.com/spaghettifunk/marionette/engine/assets"
	"github.com/spaghettifunk/marionette/engine/character"
	"github.com/spaghettifunk/marionette/engine/containers"
	"github.com/spaghettifunk/marionette/engine/core"
	"github.com/spaghettifunk/marionette/engine/expression"
	"github.com/spaghettifunk/marionette/engine/gaze"
	"github.com/spaghettifunk/marionette/engine/math"
	"github.com/spaghettifunk/marionette/engine/speech"
)

type CharacterSystemConfig struct {
	Sequencer animation.SequencerConfig
	Blink     expression.BlinkConfig
	LipSync   expression.LipSyncConfig
	Gaze      gaze.Config
	// Emotion held after a spoken reply ends. Empty disables it.
	AfterTalkEmotion string
	AfterTalkHold    time.Duration
	// Pending commands between two ticks.
	QueueSize int
	// Zero seeds from the clock.
	Seed uint64
}

func DefaultCharacterSystemConfig() CharacterSystemConfig {
	return CharacterSystemConfig{
		Sequencer:        animation.DefaultSequencerConfig(),
		Blink:            expression.DefaultBlinkConfig(),
		LipSync:          expression.DefaultLipSyncConfig(),
		Gaze:             gaze.DefaultConfig(),
		AfterTalkEmotion: "happy",
		AfterTalkHold:    2 * time.Second,
		QueueSize:        256,
	}
}

// CharacterSources are the external collaborators. Only Loader is required.
type CharacterSources struct {
	Loader assets.CharacterLoader
	Clips  assets.ClipSource
	Audio  speech.AudioSource
	Player speech.Player
	// Defaults to a NameMapRetargeter on the character's hips bone.
	Retargeter animation.Retargeter
}

// State is a point-in-time view of the character, safe to read from any goroutine.
type State struct {
	Character      string     `json:"character"`
	Phase          string     `json:"phase"`
	Camera         string     `json:"camera"`
	Emotion        string     `json:"emotion"`
	Talking        bool       `json:"talking"`
	GazeSource     string     `json:"gaze_source"`
	GazeTarget     *math.Vec3 `json:"gaze_target,omitempty"`
	SequenceIndex  int        `json:"sequence_index"`
	SequenceLength int        `json:"sequence_length"`
	FPS            float64    `json:"fps"`
	FrameMS        float64    `json:"frame_ms"`
	Frame          uint64     `json:"frame"`
	Time           float64    `json:"time"`
}

type command func(cs *CharacterSystem, now time.Duration)

type talkSession struct {
	playback speech.Playback
	cancel   context.CancelFunc
	afterSay bool
}

// CharacterSystem owns the character runtime and every controller driving
// it. Controllers are only touched from Update; the exported request methods
// queue commands and wait for the tick that carries them out.
type CharacterSystem struct {
	cfg     CharacterSystemConfig
	log     *log.Logger
	bus     *core.EventBus
	sched   *core.Scheduler
	jobs    *JobSystem
	cameras *CameraSystem
	sources CharacterSources
	pointer *core.PointerState

	queueMutex sync.Mutex
	queue      *containers.RingQueue[command]
	closed     chan struct{}
	closeOnce  sync.Once

	rt       *character.Runtime
	seq      *animation.Sequencer
	blink    *expression.Blink
	lips     *expression.LipSync
	emotion  *expression.Emotion
	gaze     *gaze.Controller
	resolver *gaze.TargetResolver
	metrics  *core.Metrics
	target   *math.Vec3
	talk     *talkSession

	// bumped by every character selection; stale loads are dropped
	loadGen     uint64
	sequenceGen uint64

	listeners []core.ListenerHandle

	stateMutex sync.RWMutex
	state      State
}

func NewCharacterSystem(cfg CharacterSystemConfig, bus *core.EventBus, jobs *JobSystem, cameras *CameraSystem, sources CharacterSources) (*CharacterSystem, error) {
	if sources.Loader == nil {
		return nil, fmt.Errorf("character system needs a character loader")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultCharacterSystemConfig().QueueSize
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	var retargeter animation.Retargeter = animation.NameMapRetargeter{}
	if sources.Retargeter != nil {
		retargeter = sources.Retargeter
	}
	sched := core.NewScheduler()
	cs := &CharacterSystem{
		cfg:     cfg,
		log:     core.Logger("character"),
		bus:     bus,
		sched:   sched,
		jobs:    jobs,
		cameras: cameras,
		sources: sources,
		pointer: core.NewPointerState(),
		queue:   containers.NewRingQueue[command](cfg.QueueSize),
		closed:  make(chan struct{}),
		seq:     animation.NewSequencer(cfg.Sequencer, bus, sched, retargeter, math.NewRand(seed)),
		blink:   expression.NewBlink(cfg.Blink, math.NewRand(seed+1)),
		lips:    expression.NewLipSync(cfg.LipSync, math.NewRand(seed+2), sched),
		emotion: expression.NewEmotion(sched),
		gaze:    gaze.NewController(cfg.Gaze, math.NewRand(seed+3)),
		metrics: core.NewMetrics(),
		resolver: gaze.NewTargetResolver(
			gaze.NewPointerDebouncer(cfg.Gaze.PointerDebounce),
			gaze.NewGlanceScheduler(cfg.Gaze.GlanceMin, cfg.Gaze.GlanceMax, cfg.Gaze.GlanceHold, math.NewRand(seed+4)),
		),
	}
	cs.lips.OnStop(cs.emotion.Reapply)
	cs.resolver.Glance().Reset(0)
	cs.listeners = append(cs.listeners,
		bus.Register(core.EventHardResetRequested, cs.onHardReset),
		bus.Register(core.EventSequenceCompleted, cs.onSequenceCompleted),
	)
	cs.publish(core.Tick{})
	return cs, nil
}

// Update runs one frame: queued commands and timers, gaze target, clips,
// face and gaze, then the camera.
func (cs *CharacterSystem) Update(tick core.Tick) {
	for _, cmd := range cs.drain() {
		cmd(cs, tick.Now)
	}
	cs.sched.Advance(tick.Now)

	if x, y, moved := cs.pointer.Take(); moved {
		cs.resolver.Pointer().Move(x, y, tick.Now)
	}
	talking := cs.lips.IsTalking()
	cs.target = nil
	if cs.rt != nil {
		cs.target = cs.resolver.Resolve(tick.Now, talking, cs.cameras.DefaultCamera, cs.gaze.HeadPosition())
	}

	cs.seq.Update(tick)
	cs.bus.Dispatch()

	if cs.rt != nil {
		cs.blink.Update(tick, talking)
		cs.gaze.Update(tick, cs.target, cs.seq.GazeSuspended())
	}
	cs.cameras.Modes.Update(tick, cs.seq.Busy())
	cs.bus.Dispatch()

	cs.metrics.Update(tick.Delta)
	cs.publish(tick)
}

// Runtime is the installed character. Engine goroutine only.
func (cs *CharacterSystem) Runtime() *character.Runtime {
	return cs.rt
}

func (cs *CharacterSystem) Sequencer() *animation.Sequencer {
	return cs.seq
}

func (cs *CharacterSystem) Snapshot() State {
	cs.stateMutex.RLock()
	defer cs.stateMutex.RUnlock()
	st := cs.state
	if st.GazeTarget != nil {
		t := *st.GazeTarget
		st.GazeTarget = &t
	}
	return st
}

// SelectCharacter loads profile in the background and installs it. It
// returns once the character is bound and idling.
func (cs *CharacterSystem) SelectCharacter(ctx context.Context, profile *character.Profile) error {
	if profile == nil {
		return core.ErrNoCharacter
	}
	return cs.call(ctx, func(now time.Duration, reply func(error)) {
		cs.loadGen++
		gen := cs.loadGen
		cs.jobs.AddWorkNonBlocking(JobTask{
			Name: "load character " + profile.Name,
			Run: func(jctx context.Context) (interface{}, error) {
				lctx, cancel := joinContext(ctx, jctx)
				defer cancel()
				return cs.sources.Loader.LoadCharacter(lctx, profile)
			},
			OnComplete: func(result interface{}) {
				cs.enqueueOr(reply, func(cs *CharacterSystem, now time.Duration) {
					if gen != cs.loadGen {
						reply(fmt.Errorf("%w: %s superseded by a newer selection", core.ErrCharacterLoad, profile.Name))
						return
					}
					cs.install(result.(*character.Runtime), now)
					reply(nil)
				})
			},
			OnFailure: reply,
		})
	})
}

// StartTalking plays audio and animates speech while it plays. It returns
// once sound has started.
func (cs *CharacterSystem) StartTalking(ctx context.Context, audio []byte) error {
	return cs.call(ctx, func(now time.Duration, reply func(error)) {
		cs.beginTalk(audio, false, reply)
	})
}

// Say synthesizes text and speaks it. After the reply the character holds
// the after-talk emotion for a while.
func (cs *CharacterSystem) Say(ctx context.Context, text string) error {
	if cs.sources.Audio == nil {
		return fmt.Errorf("%w: no speech source configured", core.ErrAudioSource)
	}
	return cs.call(ctx, func(now time.Duration, reply func(error)) {
		if cs.rt == nil {
			reply(core.ErrNoCharacter)
			return
		}
		cs.jobs.AddWorkNonBlocking(JobTask{
			Name: "synthesize",
			Run: func(jctx context.Context) (interface{}, error) {
				sctx, cancel := joinContext(ctx, jctx)
				defer cancel()
				return cs.sources.Audio.Synthesize(sctx, text)
			},
			OnComplete: func(result interface{}) {
				cs.enqueueOr(reply, func(cs *CharacterSystem, now time.Duration) {
					cs.beginTalk(result.([]byte), true, reply)
				})
			},
			OnFailure: reply,
		})
	})
}

// StopTalking ends the current speech, if any.
func (cs *CharacterSystem) StopTalking(ctx context.Context) error {
	return cs.call(ctx, func(now time.Duration, reply func(error)) {
		if s := cs.talk; s != nil {
			cs.endTalk(s)
		}
		reply(nil)
	})
}

// PlayGeneratedSequence loads every clip, then plays them as one chained
// sequence. A clip that fails to load aborts to Standing and nothing of the
// sequence plays. It returns once the sequence is playing.
func (cs *CharacterSystem) PlayGeneratedSequence(ctx context.Context, clipIDs []string) error {
	if len(clipIDs) == 0 {
		return core.ErrEmptySequence
	}
	if cs.sources.Clips == nil {
		return fmt.Errorf("%w: no clip source configured", core.ErrClipLoad)
	}
	ids := append([]string(nil), clipIDs...)
	return cs.call(ctx, func(now time.Duration, reply func(error)) {
		if cs.rt == nil {
			reply(core.ErrNoCharacter)
			return
		}
		cs.sequenceGen++
		gen := cs.sequenceGen
		cs.jobs.AddWorkNonBlocking(JobTask{
			Name: "load sequence",
			Run: func(jctx context.Context) (interface{}, error) {
				lctx, cancel := joinContext(ctx, jctx)
				defer cancel()
				return cs.loadClips(lctx, ids)
			},
			OnComplete: func(result interface{}) {
				cs.enqueueOr(reply, func(cs *CharacterSystem, now time.Duration) {
					if gen != cs.sequenceGen {
						reply(fmt.Errorf("%w: superseded by a newer sequence", core.ErrClipLoad))
						return
					}
					reply(cs.seq.PlayGenerated(result.([]animation.SourceClip)))
				})
			},
			OnFailure: func(err error) {
				cs.enqueueOr(reply, func(cs *CharacterSystem, now time.Duration) {
					if gen == cs.sequenceGen && !errors.Is(err, context.Canceled) {
						cs.seq.AbortGenerated(err)
					}
					reply(err)
				})
			},
		})
	})
}

// ApplyEmotion switches the facial expression preset.
func (cs *CharacterSystem) ApplyEmotion(ctx context.Context, name string) error {
	return cs.call(ctx, func(now time.Duration, reply func(error)) {
		if cs.rt == nil {
			reply(core.ErrNoCharacter)
			return
		}
		if !cs.emotion.Apply(name) {
			reply(fmt.Errorf("%w: %s", core.ErrUnknownEmotion, name))
			return
		}
		reply(nil)
	})
}

// PointerMoved records a pointer sample in normalized device coordinates.
// Safe from any goroutine.
func (cs *CharacterSystem) PointerMoved(x, y float32) {
	cs.pointer.ProcessMove(x, y)
}

// OrbitCamera forwards user orbit input; it is dropped while the camera follows.
func (cs *CharacterSystem) OrbitCamera(deltaYaw, deltaPitch float32) error {
	return cs.enqueue(func(cs *CharacterSystem, now time.Duration) {
		cs.cameras.Modes.Orbit(deltaYaw, deltaPitch)
	})
}

func (cs *CharacterSystem) ZoomCamera(delta float32) error {
	return cs.enqueue(func(cs *CharacterSystem, now time.Duration) {
		cs.cameras.Modes.Zoom(delta)
	})
}

func (cs *CharacterSystem) OnResize(width, height uint32) error {
	return cs.enqueue(func(cs *CharacterSystem, now time.Duration) {
		cs.cameras.OnResize(width, height)
	})
}

func (cs *CharacterSystem) Shutdown() error {
	cs.closeOnce.Do(func() {
		close(cs.closed)
		for _, h := range cs.listeners {
			cs.bus.Unregister(h)
		}
	})
	return nil
}

func (cs *CharacterSystem) loadClips(ctx context.Context, ids []string) ([]animation.SourceClip, error) {
	out := make([]animation.SourceClip, 0, len(ids))
	for i, id := range ids {
		src, err := cs.sources.Clips.LoadClip(ctx, id)
		if err != nil {
			if errors.Is(err, core.ErrClipLoad) || errors.Is(err, context.Canceled) {
				return nil, fmt.Errorf("clip %d of %d: %w", i+1, len(ids), err)
			}
			return nil, fmt.Errorf("%w: clip %d of %d (%s): %w", core.ErrClipLoad, i+1, len(ids), id, err)
		}
		out = append(out, *src)
	}
	return out, nil
}

func (cs *CharacterSystem) install(rt *character.Runtime, now time.Duration) {
	if s := cs.talk; s != nil {
		cs.endTalk(s)
	}
	cs.bind(rt, now, false)
}

// reload swaps in a fresh copy of the current character after a hard reset.
// A running talk and the current emotion carry over.
func (cs *CharacterSystem) reload(rt *character.Runtime, now time.Duration) {
	cs.bind(rt, now, true)
	if cs.lips.IsTalking() {
		if err := cs.seq.StartTalking(); err != nil {
			cs.log.Warn("talk clip", "err", err)
		}
	}
}

func (cs *CharacterSystem) bind(rt *character.Runtime, now time.Duration, carry bool) {
	p := rt.Profile
	blinkW := rt.Registry.Claim(character.OwnerBlink, p.Morphs.Blink...)
	lipsW := rt.Registry.Claim(character.OwnerLipSync, p.VowelMorphs()...)
	emotionW := rt.Registry.Claim(character.OwnerEmotion, p.EmotionMorphs()...)

	cs.rt = rt
	if cs.sources.Retargeter == nil {
		cs.seq.SetRetargeter(animation.NameMapRetargeter{Hips: p.Bones.Hips})
	}
	if err := cs.seq.Bind(rt); err != nil {
		cs.log.Warn("motion disabled", "character", p.Name, "err", err)
	}
	cs.blink.Bind(p, blinkW, now)
	if carry {
		cs.lips.Rebind(p, lipsW)
		cs.emotion.Rebind(p, emotionW)
	} else {
		cs.lips.Bind(p, lipsW)
		cs.emotion.Bind(p, emotionW)
	}
	cs.gaze.Bind(rt, now)
	cs.resolver.Glance().Reset(now)

	hips, _ := rt.Bone(character.RoleHips)
	cs.cameras.Modes.Bind(hips, p.FollowOffsetVec())
	cs.log.Info("character installed", "name", p.Name, "id", core.ShortID(rt.ID), "reload", carry)
}

func (cs *CharacterSystem) beginTalk(audio []byte, afterSay bool, reply func(error)) {
	if cs.rt == nil {
		reply(core.ErrNoCharacter)
		return
	}
	if cs.sources.Player == nil {
		reply(fmt.Errorf("%w: no audio player configured", core.ErrAudioPlayback))
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	pb, err := cs.sources.Player.Play(ctx, audio)
	if err != nil {
		cancel()
		reply(fmt.Errorf("%w: %w", core.ErrAudioPlayback, err))
		return
	}
	if old := cs.talk; old != nil {
		// the new reply takes over, lip-sync keeps running
		old.playback.Stop()
		old.cancel()
	}
	s := &talkSession{playback: pb, cancel: cancel, afterSay: afterSay}
	cs.talk = s
	go cs.watch(s, reply)
}

// watch brackets lip-sync with the playback's Started and Done signals.
func (cs *CharacterSystem) watch(s *talkSession, reply func(error)) {
	select {
	case <-s.playback.Started():
		cs.enqueueOr(reply, func(cs *CharacterSystem, now time.Duration) {
			if cs.talk != s {
				reply(fmt.Errorf("%w: superseded", core.ErrAudioPlayback))
				return
			}
			if !cs.lips.IsTalking() {
				cs.lips.Start()
				cs.bus.Post(core.Event{Code: core.EventTalkStarted, Sender: cs})
			}
			if err := cs.seq.StartTalking(); err != nil {
				cs.log.Warn("talk clip", "err", err)
			}
			reply(nil)
		})
	case <-s.playback.Done():
		err := s.playback.Err()
		if err == nil {
			err = core.ErrAudioPlayback
		}
		reply(fmt.Errorf("playback ended before it started: %w", err))
	}

	<-s.playback.Done()
	_ = cs.enqueue(func(cs *CharacterSystem, now time.Duration) {
		if cs.talk == s {
			cs.endTalk(s)
		}
	})
}

func (cs *CharacterSystem) endTalk(s *talkSession) {
	cs.talk = nil
	s.playback.Stop()
	s.cancel()
	if !cs.lips.IsTalking() {
		return
	}
	cs.lips.Stop()
	cs.seq.StopTalking()
	cs.bus.Post(core.Event{Code: core.EventTalkEnded, Sender: cs})
	if s.afterSay && cs.cfg.AfterTalkEmotion != "" && cs.rt != nil {
		cs.emotion.Transient(cs.cfg.AfterTalkEmotion, cs.cfg.AfterTalkHold, cs.rt.Profile.DefaultEmotion)
	}
}

func (cs *CharacterSystem) onHardReset(e core.Event) bool {
	profile, ok := e.Data.(*character.Profile)
	if !ok || cs.rt == nil {
		return false
	}
	gen := cs.loadGen
	cs.log.Info("hard reset, reloading character", "name", profile.Name)
	cs.jobs.AddWorkNonBlocking(JobTask{
		Name: "reload character " + profile.Name,
		Run: func(ctx context.Context) (interface{}, error) {
			return cs.sources.Loader.LoadCharacter(ctx, profile)
		},
		OnComplete: func(result interface{}) {
			_ = cs.enqueue(func(cs *CharacterSystem, now time.Duration) {
				// a selection or a new sequence since the request wins
				if gen != cs.loadGen || cs.seq.Phase() != animation.PhaseReturningToIdle {
					cs.log.Debug("discarding stale reload", "name", profile.Name)
					return
				}
				cs.reload(result.(*character.Runtime), now)
			})
		},
		OnFailure: func(err error) {
			_ = cs.enqueue(func(cs *CharacterSystem, now time.Duration) {
				if gen != cs.loadGen || cs.seq.Phase() != animation.PhaseReturningToIdle {
					return
				}
				cs.log.Warn("reload failed, keeping the current character", "err", err)
				_ = cs.seq.Bind(cs.rt)
				if cs.lips.IsTalking() {
					_ = cs.seq.StartTalking()
				}
			})
		},
	})
	return false
}

func (cs *CharacterSystem) onSequenceCompleted(e core.Event) bool {
	if r, ok := e.Data.(animation.SequenceResult); ok {
		cs.log.Info("sequence completed", "clips", r.Clips, "played", r.Played, "aborted", r.Aborted)
	}
	return false
}

func (cs *CharacterSystem) publish(tick core.Tick) {
	st := State{
		Phase:      cs.seq.Phase().String(),
		Camera:     cs.cameras.Modes.Mode().String(),
		Talking:    cs.lips.IsTalking(),
		GazeSource: cs.resolver.Source().String(),
		Frame:      tick.Frame,
		Time:       tick.Seconds(),
	}
	st.FPS, st.FrameMS = cs.metrics.Frame()
	st.SequenceIndex, st.SequenceLength = cs.seq.ChainProgress()
	if cs.rt != nil {
		st.Character = cs.rt.Profile.Name
		st.Emotion = cs.emotion.Current()
	}
	if cs.target != nil {
		t := *cs.target
		st.GazeTarget = &t
	}

	cs.stateMutex.Lock()
	cs.state = st
	cs.stateMutex.Unlock()
}

// call queues fn for the next tick and waits for its reply.
func (cs *CharacterSystem) call(ctx context.Context, fn func(now time.Duration, reply func(error))) error {
	replies := make(chan error, 1)
	var once sync.Once
	reply := func(err error) {
		once.Do(func() { replies <- err })
	}
	if err := cs.enqueue(func(cs *CharacterSystem, now time.Duration) { fn(now, reply) }); err != nil {
		return err
	}
	select {
	case err := <-replies:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-cs.closed:
		return core.ErrShuttingDown
	}
}

func (cs *CharacterSystem) enqueue(cmd command) error {
	select {
	case <-cs.closed:
		return core.ErrShuttingDown
	default:
	}
	cs.queueMutex.Lock()
	defer cs.queueMutex.Unlock()
	if err := cs.queue.Enqueue(cmd); err != nil {
		return fmt.Errorf("%w: character commands: %w", core.ErrQueueFull, err)
	}
	return nil
}

// enqueueOr queues cmd, or hands the failure to reply.
func (cs *CharacterSystem) enqueueOr(reply func(error), cmd command) {
	if err := cs.enqueue(cmd); err != nil {
		reply(err)
	}
}

func (cs *CharacterSystem) drain() []command {
	cs.queueMutex.Lock()
	defer cs.queueMutex.Unlock()
	return cs.queue.Drain()
}

// joinContext is cancelled when either parent is.
func joinContext(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
