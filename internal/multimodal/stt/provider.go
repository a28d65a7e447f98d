package stt

import (
	"context"
	"path/filepath"
	"strings"
)

// TranscriptionRequest holds one uploaded recording.
type TranscriptionRequest struct {
	Audio    []byte `json:"-"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Prompt   string `json:"prompt,omitempty"`
}

// TranscriptionResponse holds the transcription result.
type TranscriptionResponse struct {
	Text string `json:"text"`
}

// STTProvider is the interface for speech-to-text backends.
type STTProvider interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResponse, error)
	Name() string
}

// audio containers the Whisper API accepts, keyed by MIME type
var mimeExtensions = map[string]string{
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/wave":  ".wav",
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/mp4":   ".m4a",
	"audio/x-m4a": ".m4a",
	"audio/webm":  ".webm",
	"audio/ogg":   ".ogg",
	"audio/flac":  ".flac",
	"video/webm":  ".webm",
}

var extensionMimes = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".mpeg": "audio/mpeg",
	".mpga": "audio/mpeg",
	".m4a":  "audio/mp4",
	".mp4":  "audio/mp4",
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
}

// ResolveMimeType returns the canonical MIME type and file extension for an
// upload, falling back to the filename extension when the declared type is
// missing or generic. ok is false for unsupported containers.
func ResolveMimeType(mimeType, filename string) (mt, ext string, ok bool) {
	mt = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if ext, ok := mimeExtensions[mt]; ok {
		return mt, ext, true
	}
	if mt == "" || mt == "application/octet-stream" {
		ext = strings.ToLower(filepath.Ext(filename))
		if byExt, ok := extensionMimes[ext]; ok {
			return byExt, mimeExtensions[byExt], true
		}
	}
	return mt, "", false
}
