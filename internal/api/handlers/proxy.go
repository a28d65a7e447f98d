package handlers

import (
	"context"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/nikhilbhutani/medtranslate/internal/apperr"
	"github.com/nikhilbhutani/medtranslate/internal/multimodal/stt"
	"github.com/nikhilbhutani/medtranslate/internal/multimodal/tts"
	"github.com/nikhilbhutani/medtranslate/internal/pipeline"
	"github.com/nikhilbhutani/medtranslate/internal/translate"
)

// ProxyHandler exposes each upstream stage on its own, without touching
// any session. Callers carry intermediate results themselves.
type ProxyHandler struct {
	stt       stt.STTProvider
	translate pipeline.Translator
	tts       tts.TTSProvider
	languages Languages
	prompt    string
	maxUpload int64
	timeout   time.Duration
}

func NewProxyHandler(transcriber stt.STTProvider, translator pipeline.Translator, synthesizer tts.TTSProvider, languages Languages, prompt string, maxUpload int64, timeout time.Duration) *ProxyHandler {
	return &ProxyHandler{
		stt:       transcriber,
		translate: translator,
		tts:       synthesizer,
		languages: languages,
		prompt:    prompt,
		maxUpload: maxUpload,
		timeout:   timeout,
	}
}

// stageContext bounds one upstream call like a pipeline stage.
func (h *ProxyHandler) stageContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.timeout)
}

func (h *ProxyHandler) Languages(w http.ResponseWriter, r *http.Request) {
	langs := h.languages.Languages()
	out := make([]map[string]string, len(langs))
	for i, l := range langs {
		out[i] = map[string]string{"code": l.Code, "name": l.Name, "label": l.Label()}
	}
	writeJSON(w, http.StatusOK, map[string]any{"languages": out})
}

func (h *ProxyHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	audio, err := readAudio(w, r, h.maxUpload)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := h.stageContext(r)
	defer cancel()

	resp, err := h.stt.Transcribe(ctx, stt.TranscriptionRequest{
		Audio:    audio.Data,
		Filename: audio.Filename,
		MimeType: audio.MimeType,
		Prompt:   h.prompt,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"transcript": resp.Text})
}

func (h *ProxyHandler) Translate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := h.stageContext(r)
	defer cancel()

	res, err := h.translate.Translate(ctx, translate.Request{
		Text:           req.Text,
		TargetLanguage: req.TargetLang,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"translation": res.Text, "target_lang": res.TargetLanguage})
}

func (h *ProxyHandler) Speak(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	if strings.TrimSpace(text) == "" {
		writeError(w, r, apperr.ErrInvalidInput)
		return
	}

	ctx, cancel := h.stageContext(r)
	defer cancel()

	res, err := h.tts.Synthesize(ctx, tts.SynthesisRequest{Input: text})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeAudio(w, res.Audio, speechFilename(r.URL.Query().Get("filename")))
}

// speechFilename keeps only the base name of a requested download name.
func speechFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return "speech.mp3"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".mp3") {
		name += ".mp3"
	}
	return name
}
