package animation

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/spaghettifunk/marionette/engine/character"
	"github.com/spaghettifunk/marionette/engine/core"
	"github.com/spaghettifunk/marionette/engine/math"
)

type SequencerConfig struct {
	// Randomized time spent in Idle or Standing before alternating.
	DwellMin time.Duration
	DwellMax time.Duration
	// Idle <-> Standing and talk clip cross-fade.
	BaseFade time.Duration
	// Between two clips of a generated sequence.
	ChainFade time.Duration
	// From the last generated clip into Standing.
	SettleFade time.Duration
	// Delay before the secondary cross-fade from Standing into Idle.
	IdleReturnDelay time.Duration
	// Rebuild the character from scratch after each generated sequence.
	HardReset bool
}

func DefaultSequencerConfig() SequencerConfig {
	return SequencerConfig{
		DwellMin:        4 * time.Second,
		DwellMax:        10 * time.Second,
		BaseFade:        500 * time.Millisecond,
		ChainFade:       300 * time.Millisecond,
		SettleFade:      800 * time.Millisecond,
		IdleReturnDelay: 2500 * time.Millisecond,
	}
}

// SequenceResult is the payload of EventSequenceCompleted.
type SequenceResult struct {
	Clips   int
	Played  int
	Aborted bool
	Err     error
}

type chain struct {
	gen      uint64
	clips    []*character.Clip
	index    int
	action   *Action
	listener core.ListenerHandle
}

// Sequencer decides which clips drive the skeleton. All methods must be called
// from the engine goroutine.
type Sequencer struct {
	cfg        SequencerConfig
	bus        *core.EventBus
	sched      *core.Scheduler
	retargeter Retargeter
	rand       *math.Rand
	log        *log.Logger

	rt      *character.Runtime
	mixer   *Mixer
	phase   Phase
	base    Phase
	current *Action
	talking bool

	// the single pending transition: dwell alternation or delayed idle return
	pending    core.TimerID
	chain      *chain
	generation uint64
}

func NewSequencer(cfg SequencerConfig, bus *core.EventBus, sched *core.Scheduler, retargeter Retargeter, rand *math.Rand) *Sequencer {
	return &Sequencer{
		cfg:        cfg,
		bus:        bus,
		sched:      sched,
		retargeter: retargeter,
		rand:       rand,
		log:        core.Logger("sequencer"),
		phase:      PhaseIdle,
		base:       PhaseIdle,
	}
}

func (s *Sequencer) Phase() Phase {
	return s.phase
}

// Busy reports whether scripted generated motion owns the skeleton.
func (s *Sequencer) Busy() bool {
	return s.phase == PhasePlayingGenerated
}

// GazeSuspended reports whether procedural bone writes must pause.
func (s *Sequencer) GazeSuspended() bool {
	return s.phase == PhasePlayingGenerated || s.phase == PhaseReturningToIdle
}

func (s *Sequencer) Mixer() *Mixer {
	return s.mixer
}

// SetRetargeter replaces the retargeter used by later generated sequences.
func (s *Sequencer) SetRetargeter(r Retargeter) {
	if r != nil {
		s.retargeter = r
	}
}

// Current is the action that most recently took over the skeleton.
func (s *Sequencer) Current() *Action {
	return s.current
}

// ChainProgress returns the index of the playing generated clip and the
// chain length, or (-1, 0) when no sequence is installed.
func (s *Sequencer) ChainProgress() (int, int) {
	if s.chain == nil {
		return -1, 0
	}
	return s.chain.index, len(s.chain.clips)
}

// HasPending reports whether a timed transition is scheduled.
func (s *Sequencer) HasPending() bool {
	return s.pending != 0 && s.sched.Pending(s.pending)
}

// Bind installs a character and restarts from Idle with a fresh mixer.
func (s *Sequencer) Bind(rt *character.Runtime) error {
	s.cancelChain()
	s.cancelPending()
	if s.mixer != nil {
		s.mixer.StopAll()
	}
	s.rt = rt
	s.current = nil
	s.talking = false
	s.mixer = nil
	s.base = PhaseIdle
	s.force(PhaseIdle)

	if rt == nil {
		return core.ErrNoCharacter
	}
	if rt.Skeleton == nil {
		core.LogOnce("sequencer.noskeleton."+rt.Profile.Name,
			"character %s has no skeleton, clip playback disabled", rt.Profile.Name)
		return fmt.Errorf("%s: %w", rt.Profile.Name, core.ErrNoSkeleton)
	}

	rt.Skeleton.ResetToBindPose()
	s.mixer = NewMixer(rt.Skeleton, s.bus)
	if a := s.baseAction(PhaseIdle); a != nil {
		s.current = a.Play()
	}
	s.scheduleDwell()
	s.log.Info("character bound", "name", rt.Profile.Name)
	return nil
}

// Update advances the mixer. Finished events are posted to the bus and reach
// the sequencer on the next Dispatch.
func (s *Sequencer) Update(tick core.Tick) {
	if s.mixer != nil {
		s.mixer.Update(tick.Delta)
	}
}

// StartTalking enters Talking from an ambient phase. While scripted motion
// plays the request is face-only and the phase does not change.
func (s *Sequencer) StartTalking() error {
	if s.rt == nil {
		return core.ErrNoCharacter
	}
	switch s.phase {
	case PhaseTalking:
		return nil
	case PhasePlayingGenerated, PhaseReturningToIdle:
		s.log.Debug("talking during scripted motion, face only", "phase", s.phase)
		return nil
	}
	s.cancelPending()
	s.base = s.phase
	s.talking = false
	if a := s.clipAction(s.rt.Profile.Clips.Talk); a != nil {
		s.crossFadeTo(a, s.cfg.BaseFade)
		s.talking = true
	}
	return s.transition(PhaseTalking)
}

// StopTalking returns from Talking to the phase it interrupted.
func (s *Sequencer) StopTalking() {
	if s.phase != PhaseTalking {
		return
	}
	if s.talking {
		s.crossFadeTo(s.baseAction(s.base), s.cfg.BaseFade)
		s.talking = false
	}
	_ = s.transition(s.base)
	s.scheduleDwell()
}

// PlayGenerated installs a new generated sequence. The previous chain's
// listener is removed first, every action is stopped, the skeleton returns to
// bind pose and a fresh mixer is created. Clips that retarget to nothing
// abort the whole sequence to Standing before anything plays.
func (s *Sequencer) PlayGenerated(sources []SourceClip) error {
	if s.rt == nil {
		return core.ErrNoCharacter
	}
	if len(sources) == 0 {
		return core.ErrEmptySequence
	}
	if s.rt.Skeleton == nil {
		err := fmt.Errorf("%s: %w", s.rt.Profile.Name, core.ErrNoSkeleton)
		s.AbortGenerated(err)
		return err
	}

	s.cancelChain()
	s.cancelPending()
	s.talking = false
	s.mixer.StopAll()
	s.rt.Skeleton.ResetToBindPose()
	s.mixer = NewMixer(s.rt.Skeleton, s.bus)
	s.current = nil

	clips := make([]*character.Clip, 0, len(sources))
	for i, src := range sources {
		c := s.retargeter.Retarget(s.rt.Skeleton, src.Skeleton, src.Clip, s.rt.Profile.Retarget)
		if c.Empty() {
			err := fmt.Errorf("%w: clip %d (%s)", core.ErrEmptyClip, i, src.ID)
			s.AbortGenerated(err)
			return err
		}
		clips = append(clips, c.WithLoop(character.LoopOnce))
	}

	s.generation++
	ch := &chain{gen: s.generation, clips: clips}
	gen := ch.gen
	ch.listener = s.bus.Register(core.EventClipFinished, func(e core.Event) bool {
		return s.onFinished(gen, e)
	})
	s.chain = ch
	ch.action = s.mixer.ClipAction(clips[0]).Play()
	s.current = ch.action

	if err := s.transition(PhasePlayingGenerated); err != nil {
		return err
	}
	s.bus.Post(core.Event{Code: core.EventSequenceStarted, Sender: s, Data: len(clips)})
	s.log.Info("generated sequence started", "clips", len(clips), "generation", gen)
	return nil
}

// AbortGenerated recovers from a failed sequence by falling back to Standing.
func (s *Sequencer) AbortGenerated(err error) {
	s.log.Warn("generated sequence aborted, falling back to standing", "err", err)
	played := 0
	total := 0
	if s.chain != nil {
		played, total = s.chain.index, len(s.chain.clips)
	}
	s.cancelChain()
	s.cancelPending()
	s.talking = false

	if s.mixer != nil {
		s.crossFadeTo(s.baseAction(PhaseStanding), s.cfg.SettleFade)
	}
	_ = s.transition(PhaseStanding)
	s.base = PhaseStanding
	s.scheduleDwell()
	s.bus.Post(core.Event{
		Code:   core.EventSequenceCompleted,
		Sender: s,
		Data:   SequenceResult{Clips: total, Played: played, Aborted: true, Err: err},
	})
}

func (s *Sequencer) onFinished(gen uint64, e core.Event) bool {
	ev, ok := e.Data.(ActionEvent)
	if !ok {
		return false
	}
	ch := s.chain
	if ch == nil || ch.gen != gen || ev.Action != ch.action {
		s.log.Debug("ignoring stale finished event", "clip", ev.Clip, "generation", gen)
		return false
	}

	ch.index++
	if ch.index < len(ch.clips) {
		ch.action = s.crossFadeTo(s.mixer.ClipAction(ch.clips[ch.index]), s.cfg.ChainFade)
		return false
	}
	s.completeChain(len(ch.clips))
	return false
}

func (s *Sequencer) completeChain(n int) {
	s.cancelChain()
	result := core.Event{Code: core.EventSequenceCompleted, Sender: s, Data: SequenceResult{Clips: n, Played: n}}

	if s.cfg.HardReset {
		s.enterReturningToIdle()
		s.bus.Post(result)
		return
	}

	s.crossFadeTo(s.baseAction(PhaseStanding), s.cfg.SettleFade)
	_ = s.transition(PhaseStanding)
	s.base = PhaseStanding
	s.pending = s.sched.After(s.cfg.IdleReturnDelay, func(time.Duration) {
		s.pending = 0
		if s.phase != PhaseStanding {
			return
		}
		s.crossFadeTo(s.baseAction(PhaseIdle), s.cfg.BaseFade)
		_ = s.transition(PhaseIdle)
		s.base = PhaseIdle
		s.scheduleDwell()
	})
	s.bus.Post(result)
	s.log.Info("generated sequence completed", "clips", n)
}

// enterReturningToIdle throws the mixer away, poses the idle clip on a bind
// pose skeleton and asks for the character to be rebuilt. Bind completes it.
func (s *Sequencer) enterReturningToIdle() {
	s.mixer.StopAll()
	s.rt.Skeleton.ResetToBindPose()
	s.mixer = NewMixer(s.rt.Skeleton, s.bus)
	s.current = nil
	if a := s.baseAction(PhaseIdle); a != nil {
		s.current = a.Play()
	}
	_ = s.transition(PhaseReturningToIdle)
	s.bus.Post(core.Event{Code: core.EventHardResetRequested, Sender: s, Data: s.rt.Profile})
}

func (s *Sequencer) scheduleDwell() {
	s.cancelPending()
	if !s.phase.Ambient() {
		return
	}
	delay := s.rand.Duration(s.cfg.DwellMin, s.cfg.DwellMax)
	s.pending = s.sched.After(delay, func(time.Duration) {
		s.pending = 0
		s.alternate()
	})
}

func (s *Sequencer) alternate() {
	next := PhaseStanding
	switch s.phase {
	case PhaseIdle:
	case PhaseStanding:
		next = PhaseIdle
	default:
		return
	}
	s.crossFadeTo(s.baseAction(next), s.cfg.BaseFade)
	_ = s.transition(next)
	s.base = next
	s.scheduleDwell()
}

// crossFadeTo makes next the current action, fading the previous one out.
func (s *Sequencer) crossFadeTo(next *Action, d time.Duration) *Action {
	if next == nil {
		return nil
	}
	switch {
	case s.current == next:
		if !next.IsActive() {
			next.FadeIn(d)
		}
	case s.current == nil || !s.current.IsActive():
		next.Reset().FadeIn(d)
	default:
		s.current.CrossFadeTo(next, d)
	}
	s.current = next
	return next
}

func (s *Sequencer) baseAction(p Phase) *Action {
	if s.rt == nil {
		return nil
	}
	name := s.rt.Profile.Clips.Idle
	if p == PhaseStanding {
		name = s.rt.Profile.Clips.Standing
	}
	a := s.clipAction(name)
	if a == nil {
		core.LogOnce("sequencer.noclip."+s.rt.Profile.Name+"."+name,
			"character %s has no %s clip %q, keeping the current pose", s.rt.Profile.Name, p, name)
	}
	return a
}

func (s *Sequencer) clipAction(name string) *Action {
	if s.mixer == nil {
		return nil
	}
	clip, ok := s.rt.Clip(name)
	if !ok || clip.Empty() {
		return nil
	}
	return s.mixer.ClipAction(clip)
}

func (s *Sequencer) transition(to Phase) error {
	from := s.phase
	if from == to && to != PhasePlayingGenerated {
		return nil
	}
	if !from.CanTransition(to) {
		s.log.Error("rejected phase transition", "from", from, "to", to)
		return fmt.Errorf("%w: %s -> %s", core.ErrInvalidTransition, from, to)
	}
	s.setPhase(from, to)
	return nil
}

// force changes phase without consulting the table; used when a character is (re)bound.
func (s *Sequencer) force(to Phase) {
	if s.phase != to {
		s.setPhase(s.phase, to)
	}
}

func (s *Sequencer) setPhase(from, to Phase) {
	s.phase = to
	s.log.Debug("phase", "from", from, "to", to)
	s.bus.Post(core.Event{
		Code:   core.EventPhaseChanged,
		Sender: s,
		Data:   core.PhaseChange{From: from.String(), To: to.String()},
	})
}

func (s *Sequencer) cancelChain() {
	if s.chain == nil {
		return
	}
	s.bus.Unregister(s.chain.listener)
	s.chain = nil
}

func (s *Sequencer) cancelPending() {
	if s.pending != 0 {
		s.sched.Cancel(s.pending)
		s.pending = 0
	}
}
