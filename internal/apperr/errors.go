// Package apperr defines the error kinds shared by the credential store,
// the upstream AI clients and the pipeline orchestrator.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrAuth                = errors.New("invalid username or password")
	ErrDuplicateUser       = errors.New("username already exists")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnsupportedLanguage = fmt.Errorf("%w: unsupported target language", ErrInvalidInput)
	ErrPrecondition        = errors.New("stage prerequisite not met")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionBusy         = errors.New("session has a stage in progress")

	ErrTranscription   = errors.New("transcription failed")
	ErrTranslation     = errors.New("translation failed")
	ErrSynthesis       = errors.New("speech synthesis failed")
	ErrUpstreamTimeout = errors.New("upstream service timed out")
)

// Stage names the pipeline step an upstream call belongs to.
type Stage string

const (
	StageTranscription Stage = "transcription"
	StageTranslation   Stage = "translation"
	StageSynthesis     Stage = "synthesis"
)

func (s Stage) sentinel() error {
	switch s {
	case StageTranscription:
		return ErrTranscription
	case StageTranslation:
		return ErrTranslation
	case StageSynthesis:
		return ErrSynthesis
	}
	return nil
}

// Cause separates transport failures from semantic ones such as an empty
// response body.
type Cause string

const (
	CauseTransport Cause = "transport"
	CauseStatus    Cause = "status"
	CauseMalformed Cause = "malformed"
	CauseEmpty     Cause = "empty"
	CauseTimeout   Cause = "timeout"
)

// UpstreamError is returned by every client that talks to an external AI
// service. It matches its stage sentinel (ErrTranscription, ErrTranslation,
// ErrSynthesis) and, for CauseTimeout, ErrUpstreamTimeout.
type UpstreamError struct {
	Stage      Stage
	Cause      Cause
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%s %s error", e.Stage, e.Cause)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool {
	if target == ErrUpstreamTimeout {
		return e.Cause == CauseTimeout
	}
	return target != nil && target == e.Stage.sentinel()
}

// Upstream converts err into an *UpstreamError for stage. Deadline and
// network timeouts are classified as CauseTimeout regardless of the cause
// passed in. An err that already is an *UpstreamError is returned as is.
func Upstream(stage Stage, cause Cause, err error) error {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue
	}
	if IsTimeout(err) {
		cause = CauseTimeout
	}
	return &UpstreamError{Stage: stage, Cause: cause, Err: err}
}

// Status builds a non-2xx response error.
func Status(stage Stage, code int, body string) error {
	return &UpstreamError{
		Stage:      stage,
		Cause:      CauseStatus,
		StatusCode: code,
		Err:        errors.New(body),
	}
}

// Empty builds the error for a successful call that returned no content.
func Empty(stage Stage, what string) error {
	return &UpstreamError{Stage: stage, Cause: CauseEmpty, Err: fmt.Errorf("no %s returned", what)}
}

func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// CauseOf reports the cause of an upstream error, or "" for other errors.
func CauseOf(err error) Cause {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Cause
	}
	return ""
}
