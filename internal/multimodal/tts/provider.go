package tts

import "context"

// SynthesisRequest holds the text to speak. The voice comes from the
// backend's configuration.
type SynthesisRequest struct {
	Input string `json:"input"`
}

// SynthesisResult holds the complete generated audio.
type SynthesisResult struct {
	Audio       []byte
	ContentType string // always "audio/mpeg"
}

// TTSProvider is the interface for text-to-speech backends.
type TTSProvider interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)
	Name() string
}
