package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/nikhilbhutani/medtranslate/internal/apperr"
	"github.com/nikhilbhutani/medtranslate/internal/multimodal/stt"
	"github.com/nikhilbhutani/medtranslate/internal/multimodal/tts"
	"github.com/nikhilbhutani/medtranslate/internal/session"
	"github.com/nikhilbhutani/medtranslate/internal/translate"
)

var fakeMP3 = []byte{0xff, 0xfb, 0x90, 0x64}

type fakeSTT struct {
	text  string
	err   error
	calls int
	last  stt.TranscriptionRequest
	block bool
}

func (f *fakeSTT) Name() string { return "fake-whisper" }

func (f *fakeSTT) Transcribe(ctx context.Context, req stt.TranscriptionRequest) (*stt.TranscriptionResponse, error) {
	f.calls++
	f.last = req
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &stt.TranscriptionResponse{Text: f.text}, nil
}

type fakeTranslator struct {
	text  string
	err   error
	calls int
	last  translate.Request
}

func (f *fakeTranslator) Translate(_ context.Context, req translate.Request) (*translate.Result, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &translate.Result{Text: f.text, TargetLanguage: req.TargetLanguage, Provider: "openai", Model: "gpt-3.5-turbo"}, nil
}

type fakeTTS struct {
	err   error
	calls int
	last  tts.SynthesisRequest
}

func (f *fakeTTS) Name() string { return "fake-tts" }

func (f *fakeTTS) Synthesize(_ context.Context, req tts.SynthesisRequest) (*tts.SynthesisResult, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &tts.SynthesisResult{Audio: fakeMP3, ContentType: "audio/mpeg"}, nil
}

type fixture struct {
	stt   *fakeSTT
	tr    *fakeTranslator
	tts   *fakeTTS
	orch  *Orchestrator
	sess  *session.Session
	audio Audio
}

func newFixture() *fixture {
	f := &fixture{
		stt:   &fakeSTT{text: "patient reports mild fever"},
		tr:    &fakeTranslator{text: "el paciente reporta fiebre leve"},
		tts:   &fakeTTS{},
		sess:  session.New("alice"),
		audio: Audio{Data: []byte("RIFF"), Filename: "visit.wav", MimeType: "audio/wav"},
	}
	f.orch = New(f.stt, f.tr, f.tts, Config{StageTimeout: time.Second, Prompt: "medical"})
	return f
}

func TestOrchestrator_StagesInOrder(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()

	transcript, err := f.orch.SubmitAudio(ctx, f.sess, f.audio)
	if err != nil {
		t.Fatalf("SubmitAudio: %v", err)
	}
	if transcript != "patient reports mild fever" || f.sess.State != session.StateTranscribed {
		t.Errorf("unexpected transcript %q state %s", transcript, f.sess.State)
	}
	if f.stt.last.Prompt != "medical" || f.stt.last.Filename != "visit.wav" {
		t.Errorf("unexpected stt request %+v", f.stt.last)
	}
	if c := ControlsFor(f.sess); !c.Translate || c.Speak {
		t.Errorf("unexpected controls after transcription %+v", c)
	}

	translation, err := f.orch.SubmitTranslation(ctx, f.sess, "es")
	if err != nil {
		t.Fatalf("SubmitTranslation: %v", err)
	}
	if translation != "el paciente reporta fiebre leve" || f.sess.State != session.StateTranslated || f.sess.TargetLanguage != "es" {
		t.Errorf("unexpected translation %q session %+v", translation, f.sess)
	}
	if f.tr.last.Text != transcript {
		t.Errorf("translator got %q, want cached transcript", f.tr.last.Text)
	}
	if c := ControlsFor(f.sess); !c.Translate || !c.Speak {
		t.Errorf("unexpected controls after translation %+v", c)
	}

	speech, err := f.orch.SubmitSpeak(ctx, f.sess)
	if err != nil {
		t.Fatalf("SubmitSpeak: %v", err)
	}
	if len(speech.Audio) == 0 || f.sess.State != session.StateSpoken {
		t.Errorf("unexpected speech result %d bytes, state %s", len(speech.Audio), f.sess.State)
	}
	if f.tts.last.Input != translation {
		t.Errorf("tts got %q, want cached translation", f.tts.last.Input)
	}
}

func TestOrchestrator_Preconditions(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()

	if _, err := f.orch.SubmitTranslation(ctx, f.sess, "fr"); !errors.Is(err, apperr.ErrPrecondition) {
		t.Errorf("expected ErrPrecondition, got %v", err)
	}
	if _, err := f.orch.SubmitSpeak(ctx, f.sess); !errors.Is(err, apperr.ErrPrecondition) {
		t.Errorf("expected ErrPrecondition, got %v", err)
	}
	if f.stt.calls+f.tr.calls+f.tts.calls != 0 {
		t.Errorf("upstream called before prerequisites were met")
	}
	if f.sess.State != session.StateIdle {
		t.Errorf("session state changed to %s", f.sess.State)
	}
}

func TestOrchestrator_SpeakReusesCachedTranslation(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()

	f.orch.SubmitAudio(ctx, f.sess, f.audio)
	f.orch.SubmitTranslation(ctx, f.sess, "es")

	for i := 0; i < 2; i++ {
		if _, err := f.orch.SubmitSpeak(ctx, f.sess); err != nil {
			t.Fatalf("SubmitSpeak: %v", err)
		}
	}
	if f.stt.calls != 1 || f.tr.calls != 1 || f.tts.calls != 2 {
		t.Errorf("expected cached stages to be reused, calls stt=%d tr=%d tts=%d", f.stt.calls, f.tr.calls, f.tts.calls)
	}
}

func TestOrchestrator_NewTranscriptClearsTranslation(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()

	f.orch.SubmitAudio(ctx, f.sess, f.audio)
	f.orch.SubmitTranslation(ctx, f.sess, "es")

	f.stt.text = "patient denies chest pain"
	if _, err := f.orch.SubmitAudio(ctx, f.sess, f.audio); err != nil {
		t.Fatalf("SubmitAudio: %v", err)
	}
	if f.sess.Translation != nil || f.sess.State != session.StateTranscribed {
		t.Errorf("stale translation kept: %+v", f.sess)
	}
	if _, err := f.orch.SubmitSpeak(ctx, f.sess); !errors.Is(err, apperr.ErrPrecondition) {
		t.Errorf("expected ErrPrecondition, got %v", err)
	}
}

func TestOrchestrator_FailureLeavesSessionUntouched(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx := context.Background()

	f.orch.SubmitAudio(ctx, f.sess, f.audio)
	before := f.sess.Clone()

	f.tr.err = apperr.Status(apperr.StageTranslation, 500, "boom")
	if _, err := f.orch.SubmitTranslation(ctx, f.sess, "es"); !errors.Is(err, apperr.ErrTranslation) {
		t.Fatalf("expected ErrTranslation, got %v", err)
	}
	if f.sess.State != session.StateTranscribed || f.sess.Translation != nil || *f.sess.Transcript != *before.Transcript {
		t.Errorf("session mutated by failed stage: %+v", f.sess)
	}

	f.stt.err = apperr.Empty(apperr.StageTranscription, "transcript")
	if _, err := f.orch.SubmitAudio(ctx, f.sess, f.audio); apperr.CauseOf(err) != apperr.CauseEmpty {
		t.Fatalf("expected empty cause, got %v", err)
	}
	if *f.sess.Transcript != *before.Transcript {
		t.Errorf("transcript replaced by failed stage")
	}
}

func TestOrchestrator_StageTimeout(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.stt.block = true
	f.orch = New(f.stt, f.tr, f.tts, Config{StageTimeout: 20 * time.Millisecond})

	_, err := f.orch.SubmitAudio(context.Background(), f.sess, f.audio)
	if !errors.Is(err, apperr.ErrUpstreamTimeout) {
		t.Fatalf("expected ErrUpstreamTimeout, got %v", err)
	}
	if !errors.Is(err, apperr.ErrTranscription) {
		t.Errorf("expected ErrTranscription, got %v", err)
	}
	if f.sess.State != session.StateIdle {
		t.Errorf("session state changed to %s", f.sess.State)
	}
}

func TestOrchestrator_Run(t *testing.T) {
	t.Parallel()
	f := newFixture()

	res, err := f.orch.Run(context.Background(), f.sess, f.audio, "es")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Transcript == "" || res.Translation == "" || len(res.Audio) == 0 || res.TargetLanguage != "es" {
		t.Errorf("incomplete result %+v", res)
	}
	if res.ContentType != "audio/mpeg" {
		t.Errorf("unexpected content type %q", res.ContentType)
	}
	if f.sess.State != session.StateSpoken {
		t.Errorf("expected spoken, got %s", f.sess.State)
	}
}

func TestOrchestrator_RunStopsAtFirstFailure(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.tts.err = apperr.Empty(apperr.StageSynthesis, "audio")

	_, err := f.orch.Run(context.Background(), f.sess, f.audio, "es")
	if !errors.Is(err, apperr.ErrSynthesis) {
		t.Fatalf("expected ErrSynthesis, got %v", err)
	}
	if f.sess.State != session.StateTranslated || f.sess.Translation == nil {
		t.Errorf("expected session left at translated, got %+v", f.sess)
	}
}

func TestOrchestrator_StageLogNamesBackend(t *testing.T) {
	t.Parallel()
	f := newFixture()
	var buf bytes.Buffer
	f.orch = New(f.stt, f.tr, f.tts, Config{
		StageTimeout: time.Second,
		Logger:       slog.New(slog.NewJSONHandler(&buf, nil)),
	})
	f.tts.err = apperr.Empty(apperr.StageSynthesis, "audio")

	f.orch.Run(context.Background(), f.sess, f.audio, "es")

	var records []map[string]any
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			t.Fatalf("decode log: %v", err)
		}
		records = append(records, rec)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 stage records, got %d", len(records))
	}

	if records[0]["stage"] != "transcription" || records[0]["backend"] != "fake-whisper" {
		t.Errorf("unexpected transcription record %v", records[0])
	}
	if records[1]["provider"] != "openai" || records[1]["model"] != "gpt-3.5-turbo" {
		t.Errorf("unexpected translation record %v", records[1])
	}
	if records[2]["level"] != "WARN" || records[2]["backend"] != "fake-tts" || records[2]["error"] == nil {
		t.Errorf("unexpected synthesis record %v", records[2])
	}
	for _, rec := range records {
		if rec["session_id"] != f.sess.ID {
			t.Errorf("record missing session id: %v", rec)
		}
	}
}
