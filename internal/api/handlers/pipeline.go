package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nikhilbhutani/medtranslate/internal/apperr"
	"github.com/nikhilbhutani/medtranslate/internal/auth"
	"github.com/nikhilbhutani/medtranslate/internal/pipeline"
	"github.com/nikhilbhutani/medtranslate/internal/session"
	"github.com/nikhilbhutani/medtranslate/internal/translate"
)

// multipartMemory is how much of an upload is held in memory before the
// form spills to temp files.
const multipartMemory = 8 << 20

// Languages validates and lists target languages.
type Languages interface {
	Languages() []translate.Language
	NormalizeLanguage(raw string) (string, error)
}

type PipelineHandler struct {
	orch      *pipeline.Orchestrator
	sessions  session.Store
	languages Languages
	maxUpload int64
}

func NewPipelineHandler(orch *pipeline.Orchestrator, sessions session.Store, languages Languages, maxUpload int64) *PipelineHandler {
	return &PipelineHandler{orch: orch, sessions: sessions, languages: languages, maxUpload: maxUpload}
}

type sessionResponse struct {
	Session  *session.Session  `json:"session"`
	Controls pipeline.Controls `json:"controls"`
}

// Session returns the caller's current session and the enabled actions.
func (h *PipelineHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, apperr.ErrAuth)
		return
	}
	sess, err := h.sessions.Get(r.Context(), claims.SessionID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess, Controls: pipeline.ControlsFor(sess)})
}

func (h *PipelineHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	audio, err := readAudio(w, r, h.maxUpload)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var transcript string
	err = h.withSession(r, func(ctx context.Context, s *session.Session) error {
		var err error
		transcript, err = h.orch.SubmitAudio(ctx, s, audio)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"transcript": transcript})
}

type translateRequest struct {
	Text       string `json:"text,omitempty"`
	TargetLang string `json:"target_lang"`
}

func (h *PipelineHandler) Translate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	lang, err := h.languages.NormalizeLanguage(req.TargetLang)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var translation string
	err = h.withSession(r, func(ctx context.Context, s *session.Session) error {
		var err error
		translation, err = h.orch.SubmitTranslation(ctx, s, lang)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"translation": translation, "target_lang": lang})
}

func (h *PipelineHandler) Speak(w http.ResponseWriter, r *http.Request) {
	var audio []byte
	err := h.withSession(r, func(ctx context.Context, s *session.Session) error {
		res, err := h.orch.SubmitSpeak(ctx, s)
		if err != nil {
			return err
		}
		audio = res.Audio
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeAudio(w, audio, "speech.mp3")
}

type runResponse struct {
	Transcript     string `json:"transcript"`
	Translation    string `json:"translation"`
	TargetLanguage string `json:"target_lang"`
	AudioBase64    string `json:"audio_base64"`
	AudioType      string `json:"audio_content_type"`
}

// Run transcribes, translates and speaks one upload in a single request.
func (h *PipelineHandler) Run(w http.ResponseWriter, r *http.Request) {
	audio, err := readAudio(w, r, h.maxUpload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	lang, err := h.languages.NormalizeLanguage(r.FormValue("target_lang"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var res *pipeline.RunResult
	err = h.withSession(r, func(ctx context.Context, s *session.Session) error {
		var err error
		res, err = h.orch.Run(ctx, s, audio, lang)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, runResponse{
		Transcript:     res.Transcript,
		Translation:    res.Translation,
		TargetLanguage: res.TargetLanguage,
		AudioBase64:    base64.StdEncoding.EncodeToString(res.Audio),
		AudioType:      res.ContentType,
	})
}

// withSession runs fn on the caller's session under the per-session lock
// and stores whatever state fn left behind. Failed stages do not mutate the
// session, so saving after an error keeps the last good state.
func (h *PipelineHandler) withSession(r *http.Request, fn func(ctx context.Context, s *session.Session) error) error {
	ctx := r.Context()
	claims := auth.ClaimsFromContext(ctx)
	if claims == nil {
		return apperr.ErrAuth
	}

	unlock, err := h.sessions.Lock(ctx, claims.SessionID())
	if err != nil {
		return err
	}
	defer unlock()

	sess, err := h.sessions.Get(ctx, claims.SessionID())
	if err != nil {
		return err
	}

	runErr := fn(ctx, sess)
	if err := h.sessions.Save(ctx, sess); err != nil {
		if runErr != nil {
			return runErr
		}
		return fmt.Errorf("save session: %w", err)
	}
	return runErr
}

// readAudio reads the "file" part of a multipart upload. Spilled form
// files are removed before it returns.
func readAudio(w http.ResponseWriter, r *http.Request, maxUpload int64) (pipeline.Audio, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isMaxBytes(err) {
			return pipeline.Audio{}, &http.MaxBytesError{Limit: maxUpload}
		}
		return pipeline.Audio{}, fmt.Errorf("%w: expected multipart form with an audio file", apperr.ErrInvalidInput)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return pipeline.Audio{}, fmt.Errorf("%w: missing file field", apperr.ErrInvalidInput)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return pipeline.Audio{}, fmt.Errorf("read upload: %w", err)
	}

	return pipeline.Audio{
		Data:     data,
		Filename: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
	}, nil
}

func isMaxBytes(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

func writeAudio(w http.ResponseWriter, audio []byte, filename string) {
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprint(len(audio)))
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}
