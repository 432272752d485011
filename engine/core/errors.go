package core

import (
	"errors"
)

var (
	ErrUnknown = errors.New("unknown")

	// missing capabilities
	ErrMissingBone  = errors.New("bone not found in skeleton")
	ErrMissingMorph = errors.New("morph target not found")
	ErrNoSkeleton   = errors.New("character has no skinned skeleton")
	ErrNoCharacter  = errors.New("no character selected")

	// load and transform failures
	ErrEmptyClip         = errors.New("clip has no tracks after retargeting")
	ErrClipLoad          = errors.New("failed to load clip")
	ErrCharacterLoad     = errors.New("failed to load character")
	ErrInvalidProfile    = errors.New("invalid character profile")
	ErrAudioSource       = errors.New("failed to obtain speech audio")
	ErrAudioPlayback     = errors.New("audio playback failed")
	ErrUnknownEmotion    = errors.New("unknown emotion")
	ErrEmptySequence     = errors.New("generated sequence has no clips")
	ErrInvalidTransition = errors.New("phase transition not allowed")

	// plumbing
	ErrQueueFull    = errors.New("queue is full")
	ErrQueueEmpty   = errors.New("queue is empty")
	ErrNotRunning   = errors.New("engine is not running")
	ErrShuttingDown = errors.New("engine is shutting down")
)
