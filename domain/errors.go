package domain

import (
	"errors"
	"fmt"
)

// Stage identifies one step of the voice pipeline
type Stage string

const (
	StageSTT Stage = "stt"
	StageLLM Stage = "llm"
	StageTTS Stage = "tts"
)

// ErrCacheCorruption is reported when a stored cache entry cannot be decoded.
// Callers treat it as a miss.
var ErrCacheCorruption = errors.New("cache entry corrupted")

// ErrEmptyAudio is returned when a request or a committed turn carries no audio
var ErrEmptyAudio = &AudioProcessingError{Reason: "No audio data to process"}

// PipelineError wraps a failure of a single pipeline stage
type PipelineError struct {
	Stage Stage
	Err   error
}

// NewPipelineError wraps err as a failure of the given stage
func NewPipelineError(stage Stage, err error) *PipelineError {
	return &PipelineError{Stage: stage, Err: err}
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Kind returns the error-kind tag reported to API clients
func (e *PipelineError) Kind() string {
	switch e.Stage {
	case StageSTT:
		return "STTFailure"
	case StageLLM:
		return "LLMFailure"
	case StageTTS:
		return "TTSFailure"
	default:
		return "PipelineFailure"
	}
}

// AudioProcessingError reports malformed or empty input audio
type AudioProcessingError struct {
	Reason string
}

func (e *AudioProcessingError) Error() string {
	return e.Reason
}

// Kind returns the error-kind tag reported to API clients
func (e *AudioProcessingError) Kind() string {
	return "AudioProcessingError"
}

// IsClientError reports whether err is a voice-processing error that should be
// surfaced to the client as unprocessable input rather than a server fault.
func IsClientError(err error) bool {
	var pipelineErr *PipelineError
	var audioErr *AudioProcessingError
	return errors.As(err, &pipelineErr) || errors.As(err, &audioErr)
}

// ErrorKind returns the kind tag for a voice-processing error, or an empty
// string for anything else.
func ErrorKind(err error) string {
	var pipelineErr *PipelineError
	if errors.As(err, &pipelineErr) {
		return pipelineErr.Kind()
	}
	var audioErr *AudioProcessingError
	if errors.As(err, &audioErr) {
		return audioErr.Kind()
	}
	return ""
}
