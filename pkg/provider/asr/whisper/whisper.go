// Package whisper provides an ASR provider backed by a whisper-server
// instance (whisper.cpp's REST frontend, or any compatible faster-whisper
// HTTP wrapper).
//
// The server exposes POST /inference accepting a multipart file upload and
// returning a JSON transcription result. Because whisper-server is a batch
// engine, one HTTP round trip corresponds to one Transcribe call.
//
// Usage:
//
//	p := whisper.New("http://localhost:8081",
//	    whisper.WithModel("base.en"),
//	    whisper.WithTimeout(30*time.Second),
//	)
//	res, err := p.Transcribe(ctx, clip, "en")
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/mirrorcast/mirrorcast/pkg/provider/asr"
)

const (
	inferenceEndpoint = "/inference"

	defaultTimeout = 30 * time.Second

	// maxErrorBodyBytes caps how much of an error response body is read for
	// inclusion in the returned error message.
	maxErrorBodyBytes = 2048
)

// Compile-time assertion that Provider implements asr.Provider.
var _ asr.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the server (e.g.,
// "base.en", "small"). When empty the server uses whichever model it was
// started with — this is the default.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s. The
// pipeline additionally bounds each call with a context deadline; the
// tighter of the two wins.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client. Intended for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements asr.Provider against a whisper-server REST API.
type Provider struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// New creates a Provider targeting the whisper-server at baseURL
// (e.g., "http://localhost:8081").
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

// inferenceResponse mirrors the JSON body returned by whisper-server's
// /inference endpoint with response_format=json.
type inferenceResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	// Probability of the detected language; absent on older servers.
	LanguageProbability float64 `json:"language_probability"`
	Error               string  `json:"error"`
}

// Transcribe implements asr.Provider. The audio slice must hold a complete
// container file; whisper-server decodes webm, wav, and ogg via its bundled
// ffmpeg demuxer.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, langHint string) (*asr.Result, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("whisper: empty audio: %w", asr.ErrUnsupportedFormat)
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	fw, err := mw.CreateFormFile("file", "clip"+containerExt(audio))
	if err != nil {
		return nil, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return nil, fmt.Errorf("whisper: write form file: %w", err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return nil, fmt.Errorf("whisper: write field: %w", err)
	}
	if langHint != "" {
		if err := mw.WriteField("language", langHint); err != nil {
			return nil, fmt.Errorf("whisper: write field: %w", err)
		}
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return nil, fmt.Errorf("whisper: write field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whisper: finalise multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+inferenceEndpoint, body)
	if err != nil {
		return nil, fmt.Errorf("whisper: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper: inference request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnsupportedMediaType,
		resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("whisper: server rejected clip (%s): %w", resp.Status, asr.ErrUnsupportedFormat)
	case resp.StatusCode != http.StatusOK:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("whisper: server returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var ir inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return nil, fmt.Errorf("whisper: decode response: %w", err)
	}
	if ir.Error != "" {
		return nil, fmt.Errorf("whisper: inference failed: %s", ir.Error)
	}

	lang := ir.Language
	if lang == "" {
		lang = langHint
	}
	return &asr.Result{
		Text:       strings.TrimSpace(ir.Text),
		Language:   lang,
		Confidence: ir.LanguageProbability,
	}, nil
}

// containerExt guesses a filename extension from the container's magic bytes.
// whisper-server sniffs content anyway; the extension only helps its logs.
func containerExt(audio []byte) string {
	switch {
	case len(audio) >= 4 && string(audio[0:4]) == "RIFF":
		return ".wav"
	case len(audio) >= 4 && string(audio[0:4]) == "OggS":
		return ".ogg"
	case len(audio) >= 4 && bytes.Equal(audio[0:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return ".webm"
	default:
		return ".bin"
	}
}
