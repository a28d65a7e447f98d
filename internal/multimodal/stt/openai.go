package stt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/nikhilbhutani/medtranslate/internal/apperr"
)

// OpenAISTTConfig holds configuration for the OpenAI STT backend.
type OpenAISTTConfig struct {
	APIKey  string
	BaseURL string // default: "https://api.openai.com/v1"
	Model   string // default: "whisper-1"
	TempDir string // default: os.TempDir()
}

// OpenAISTT transcribes audio using OpenAI's Whisper API (or a compatible endpoint).
type OpenAISTT struct {
	cfg        OpenAISTTConfig
	httpClient *http.Client
}

// NewOpenAISTT creates an OpenAISTT with sensible defaults applied. Request
// deadlines come from the caller's context.
func NewOpenAISTT(cfg OpenAISTTConfig) *OpenAISTT {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &OpenAISTT{
		cfg:        cfg,
		httpClient: &http.Client{},
	}
}

var _ STTProvider = (*OpenAISTT)(nil)

func (o *OpenAISTT) Name() string { return "openai-whisper" }

// Transcribe stages the upload in a request-scoped temp file and sends it to
// the Whisper API as a multipart upload. The temp file is removed on every
// return path.
func (o *OpenAISTT) Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResponse, error) {
	if len(req.Audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio payload", apperr.ErrInvalidInput)
	}
	mimeType, ext, ok := ResolveMimeType(req.MimeType, req.Filename)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported audio type %q", apperr.ErrInvalidInput, req.MimeType)
	}

	// failures before the request leaves are still transcription failures
	path, err := o.stage(req.Audio, ext)
	if err != nil {
		return nil, apperr.Upstream(apperr.StageTranscription, apperr.CauseTransport, err)
	}
	defer os.Remove(path)

	body, contentType, err := o.encode(path, uploadName(req.Filename, ext), mimeType, req)
	if err != nil {
		return nil, apperr.Upstream(apperr.StageTranscription, apperr.CauseTransport, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/audio/transcriptions", body)
	if err != nil {
		return nil, apperr.Upstream(apperr.StageTranscription, apperr.CauseTransport, fmt.Errorf("build transcription request: %w", err))
	}
	httpReq.Header.Set("Content-Type", contentType)
	if o.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	}

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperr.Upstream(apperr.StageTranscription, apperr.CauseTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Upstream(apperr.StageTranscription, apperr.CauseTransport, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Status(apperr.StageTranscription, resp.StatusCode, string(respBody))
	}

	// response_format=text returns the transcript followed by a newline
	text := strings.TrimRight(string(respBody), "\r\n")
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Empty(apperr.StageTranscription, "transcript")
	}

	return &TranscriptionResponse{Text: text}, nil
}

func (o *OpenAISTT) stage(audio []byte, ext string) (string, error) {
	f, err := os.CreateTemp(o.cfg.TempDir, "upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp audio file: %w", err)
	}
	path := f.Name()

	if _, err := f.Write(audio); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write temp audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close temp audio file: %w", err)
	}
	return path, nil
}

func (o *OpenAISTT) encode(path, filename, mimeType string, req TranscriptionRequest) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	// Audio file part, with the real container type instead of octet-stream
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", mimeType)
	fw, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err = io.Copy(fw, f); err != nil {
		return nil, "", fmt.Errorf("copy audio data: %w", err)
	}

	// Required fields
	_ = mw.WriteField("model", o.cfg.Model)
	_ = mw.WriteField("response_format", "text")

	// Optional fields
	if req.Prompt != "" {
		_ = mw.WriteField("prompt", req.Prompt)
	}

	if err = mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}

func uploadName(filename, ext string) string {
	base := filepath.Base(filename)
	if base == "." || base == "/" || base == "" {
		return "audio" + ext
	}
	return base
}
