package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nikhilbhutani/medtranslate/internal/apperr"
)

// OpenAITTSConfig holds configuration for the OpenAI TTS backend.
type OpenAITTSConfig struct {
	APIKey  string
	BaseURL string // default: "https://api.openai.com/v1"
	Model   string // default: "tts-1"
	Voice   string // default: "alloy"
}

// OpenAITTS synthesizes speech using OpenAI's TTS API.
type OpenAITTS struct {
	cfg        OpenAITTSConfig
	httpClient *http.Client
}

// NewOpenAITTS creates an OpenAITTS with sensible defaults applied. Request
// deadlines come from the caller's context.
func NewOpenAITTS(cfg OpenAITTSConfig) *OpenAITTS {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "tts-1"
	}
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}
	return &OpenAITTS{
		cfg:        cfg,
		httpClient: &http.Client{},
	}
}

var _ TTSProvider = (*OpenAITTS)(nil)

func (o *OpenAITTS) Name() string { return "openai-tts" }

// Synthesize converts text to MP3 audio. The whole body is read before
// returning so callers never see a partial payload.
func (o *OpenAITTS) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	if strings.TrimSpace(req.Input) == "" {
		return nil, fmt.Errorf("%w: input text required", apperr.ErrInvalidInput)
	}

	data, err := json.Marshal(map[string]any{
		"model":           o.cfg.Model,
		"input":           req.Input,
		"voice":           o.cfg.Voice,
		"response_format": "mp3",
	})
	if err != nil {
		return nil, apperr.Upstream(apperr.StageSynthesis, apperr.CauseTransport, fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/audio/speech", bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Upstream(apperr.StageSynthesis, apperr.CauseTransport, fmt.Errorf("build tts request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperr.Upstream(apperr.StageSynthesis, apperr.CauseTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, apperr.Status(apperr.StageSynthesis, resp.StatusCode, string(respBody))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Upstream(apperr.StageSynthesis, apperr.CauseTransport, fmt.Errorf("read audio: %w", err))
	}
	if len(audio) == 0 {
		return nil, apperr.Empty(apperr.StageSynthesis, "audio")
	}

	return &SynthesisResult{Audio: audio, ContentType: "audio/mpeg"}, nil
}
