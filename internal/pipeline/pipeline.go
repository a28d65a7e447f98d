// Package pipeline drives a session through transcription, translation and
// speech synthesis. Each stage only runs once its input exists, and a failed
// stage leaves the session as it was.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/medtranslate/internal/apperr"
	"github.com/nikhilbhutani/medtranslate/internal/multimodal/stt"
	"github.com/nikhilbhutani/medtranslate/internal/multimodal/tts"
	"github.com/nikhilbhutani/medtranslate/internal/session"
	"github.com/nikhilbhutani/medtranslate/internal/translate"
)

type Translator interface {
	Translate(ctx context.Context, req translate.Request) (*translate.Result, error)
}

// Audio is one uploaded recording.
type Audio struct {
	Data     []byte
	Filename string
	MimeType string
}

// Controls reports which follow-up actions a session allows.
type Controls struct {
	Translate bool `json:"translate"`
	Speak     bool `json:"speak"`
}

type RunResult struct {
	Transcript     string
	Translation    string
	TargetLanguage string
	Audio          []byte
	ContentType    string
}

type Config struct {
	StageTimeout time.Duration
	// Prompt is the domain hint passed to every transcription.
	Prompt string
	Logger *slog.Logger
}

type Orchestrator struct {
	stt          stt.STTProvider
	translator   Translator
	tts          tts.TTSProvider
	stageTimeout time.Duration
	prompt       string
	log          *slog.Logger
}

func New(transcriber stt.STTProvider, translator Translator, synthesizer tts.TTSProvider, cfg Config) *Orchestrator {
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		stt:          transcriber,
		translator:   translator,
		tts:          synthesizer,
		stageTimeout: cfg.StageTimeout,
		prompt:       cfg.Prompt,
		log:          cfg.Logger,
	}
}

// SubmitAudio transcribes audio and stores the transcript on s. A new
// transcript discards any earlier translation.
func (o *Orchestrator) SubmitAudio(ctx context.Context, s *session.Session, audio Audio) (string, error) {
	var resp *stt.TranscriptionResponse
	err := o.stage(ctx, s, apperr.StageTranscription, func(ctx context.Context) ([]any, error) {
		var err error
		resp, err = o.stt.Transcribe(ctx, stt.TranscriptionRequest{
			Audio:    audio.Data,
			Filename: audio.Filename,
			MimeType: audio.MimeType,
			Prompt:   o.prompt,
		})
		return []any{"backend", o.stt.Name()}, err
	})
	if err != nil {
		return "", err
	}

	text := resp.Text
	s.Transcript = &text
	s.Translation = nil
	s.TargetLanguage = ""
	s.State = session.StateTranscribed
	return text, nil
}

// SubmitTranslation translates the stored transcript into targetLang.
func (o *Orchestrator) SubmitTranslation(ctx context.Context, s *session.Session, targetLang string) (string, error) {
	if s.Transcript == nil {
		return "", fmt.Errorf("%w: no transcript to translate", apperr.ErrPrecondition)
	}

	var res *translate.Result
	err := o.stage(ctx, s, apperr.StageTranslation, func(ctx context.Context) ([]any, error) {
		var err error
		res, err = o.translator.Translate(ctx, translate.Request{
			Text:           *s.Transcript,
			TargetLanguage: targetLang,
		})
		if err != nil {
			return nil, err
		}
		return []any{"provider", res.Provider, "model", res.Model}, nil
	})
	if err != nil {
		return "", err
	}

	text := res.Text
	s.Translation = &text
	s.TargetLanguage = res.TargetLanguage
	s.State = session.StateTranslated
	return text, nil
}

// SubmitSpeak synthesizes the stored translation. The audio is returned to
// the caller and not kept on the session.
func (o *Orchestrator) SubmitSpeak(ctx context.Context, s *session.Session) (*tts.SynthesisResult, error) {
	if s.Translation == nil {
		return nil, fmt.Errorf("%w: no translation to speak", apperr.ErrPrecondition)
	}

	var res *tts.SynthesisResult
	err := o.stage(ctx, s, apperr.StageSynthesis, func(ctx context.Context) ([]any, error) {
		var err error
		res, err = o.tts.Synthesize(ctx, tts.SynthesisRequest{Input: *s.Translation})
		return []any{"backend", o.tts.Name()}, err
	})
	if err != nil {
		return nil, err
	}

	s.State = session.StateSpoken
	return res, nil
}

// Run executes all three stages in order and stops at the first failure,
// leaving s at the last stage that succeeded.
func (o *Orchestrator) Run(ctx context.Context, s *session.Session, audio Audio, targetLang string) (*RunResult, error) {
	transcript, err := o.SubmitAudio(ctx, s, audio)
	if err != nil {
		return nil, err
	}
	translation, err := o.SubmitTranslation(ctx, s, targetLang)
	if err != nil {
		return nil, err
	}
	speech, err := o.SubmitSpeak(ctx, s)
	if err != nil {
		return nil, err
	}
	return &RunResult{
		Transcript:     transcript,
		Translation:    translation,
		TargetLanguage: s.TargetLanguage,
		Audio:          speech.Audio,
		ContentType:    speech.ContentType,
	}, nil
}

// ControlsFor reports the enabled actions for s.
func ControlsFor(s *session.Session) Controls {
	return Controls{
		Translate: s.Transcript != nil,
		Speak:     s.Translation != nil,
	}
}

// stage runs fn under the stage timeout and logs the outcome together with
// the attributes fn reports.
func (o *Orchestrator) stage(ctx context.Context, s *session.Session, stage apperr.Stage, fn func(context.Context) ([]any, error)) error {
	ctx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()

	start := time.Now()
	attrs, err := fn(ctx)
	latency := time.Since(start).Milliseconds()

	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, apperr.ErrUpstreamTimeout) {
		err = &apperr.UpstreamError{Stage: stage, Cause: apperr.CauseTimeout, Err: err}
	}

	attrs = append([]any{"stage", stage, "session_id", s.ID, "latency_ms", latency}, attrs...)
	if err != nil {
		o.log.Warn("pipeline stage failed", append(attrs, "error", err)...)
		return err
	}
	o.log.Info("pipeline stage completed", attrs...)
	return nil
}
