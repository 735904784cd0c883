// Package ditto provides a lip-sync provider backed by a Ditto TalkingHead
// GPU service.
//
// The service exposes POST /video/generate accepting a multipart upload of
// the driving audio plus rendering parameters, and returns the rendered MP4
// in the response body with clip metadata in X-Video-Duration and
// X-Frame-Count headers. The service runs a single uvicorn worker and
// processes requests serially — a single accelerator cannot host concurrent
// Ditto instances — so this client additionally serialises Animate calls
// with a mutex to keep queueing visible on the client side rather than
// hidden in TCP backlog.
package ditto

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mirrorcast/mirrorcast/pkg/provider/lipsync"
)

const (
	generateEndpoint = "/video/generate"

	defaultTimeout = 60 * time.Second

	// maxErrorBodyBytes caps how much of an error response body is read for
	// inclusion in the returned error message.
	maxErrorBodyBytes = 2048
)

// Compile-time interface assertion.
var _ lipsync.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Defaults to 60 s — video
// synthesis is the slowest stage of the pipeline.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client. Intended for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements lipsync.Provider against a Ditto GPU service.
type Provider struct {
	baseURL    string
	httpClient *http.Client

	// gpu serialises Animate calls; see the package comment.
	gpu sync.Mutex
}

// New creates a Provider targeting the GPU service at baseURL
// (e.g., "http://localhost:8001").
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

// Animate implements lipsync.Provider.
func (p *Provider) Animate(ctx context.Context, audio []byte, portrait string, opts lipsync.Options) (*lipsync.Video, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("ditto: empty driving audio")
	}
	if portrait == "" {
		return nil, fmt.Errorf("ditto: portrait must not be empty")
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	fw, err := mw.CreateFormFile("audio", "speech.wav")
	if err != nil {
		return nil, fmt.Errorf("ditto: create form file: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return nil, fmt.Errorf("ditto: write form file: %w", err)
	}

	fields := map[string]string{
		"reference_image": portrait,
	}
	if opts.FPS > 0 {
		fields["fps"] = strconv.Itoa(opts.FPS)
	}
	if opts.Resolution > 0 {
		fields["resolution"] = strconv.Itoa(opts.Resolution)
	}
	if opts.DiffusionSteps > 0 {
		fields["diffusion_steps"] = strconv.Itoa(opts.DiffusionSteps)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("ditto: write field %q: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("ditto: finalise multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+generateEndpoint, body)
	if err != nil {
		return nil, fmt.Errorf("ditto: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	// One render at a time; see the package comment.
	p.gpu.Lock()
	resp, err := p.httpClient.Do(req)
	p.gpu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("ditto: generate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("ditto: server returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ditto: read video body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("ditto: server returned an empty clip")
	}

	video := &lipsync.Video{Data: data}
	if v := resp.Header.Get("X-Video-Duration"); v != "" {
		if d, err := strconv.ParseFloat(v, 64); err == nil {
			video.DurationS = d
		}
	}
	if v := resp.Header.Get("X-Frame-Count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			video.FrameCount = n
		}
	}
	return video, nil
}
