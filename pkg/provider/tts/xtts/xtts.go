// Package xtts provides a TTS provider backed by a Coqui XTTS v2 API server.
//
// XTTS performs zero-shot voice cloning: every synthesis request names a
// short speaker reference WAV known to the server, and the returned audio
// mimics that voice. Synthesis is performed via POST /tts_to_audio/ with a
// JSON body; the response body is a complete WAV file.
//
// Typical usage:
//
//	p := xtts.New("http://localhost:8002", xtts.WithTimeout(30*time.Second))
//	audio, err := p.Synthesize(ctx, "Hello!", tts.VoiceRef{SpeakerSample: "bruce.wav"}, "en")
package xtts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mirrorcast/mirrorcast/pkg/provider/tts"
)

const (
	ttsEndpoint = "/tts_to_audio/"

	defaultTimeout = 30 * time.Second

	// maxErrorBodyBytes caps how much of an error response body is read for
	// inclusion in the returned error message.
	maxErrorBodyBytes = 2048
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client. Intended for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements tts.Provider against an XTTS v2 API server.
type Provider struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Provider targeting the XTTS server at baseURL
// (e.g., "http://localhost:8002").
func New(baseURL string, opts ...Option) *Provider {
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ttsRequest is the JSON body for POST /tts_to_audio/.
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWAV string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceRef, language string) (*tts.Audio, error) {
	if text == "" {
		return nil, fmt.Errorf("xtts: text must not be empty")
	}

	payload, err := json.Marshal(ttsRequest{
		Text:       text,
		SpeakerWAV: voice.SpeakerSample,
		Language:   language,
	})
	if err != nil {
		return nil, fmt.Errorf("xtts: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+ttsEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("xtts: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("xtts: synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("xtts: server returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("xtts: read audio body: %w", err)
	}

	info, err := parseWAV(data)
	if err != nil {
		return nil, fmt.Errorf("xtts: malformed audio from server: %w", err)
	}

	return &tts.Audio{
		Data:       data,
		SampleRate: info.sampleRate,
		DurationS:  info.duration.Seconds(),
	}, nil
}
