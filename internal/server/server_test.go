package server_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/mirrorcast/mirrorcast/internal/assetstore"
	"github.com/mirrorcast/mirrorcast/internal/chunker"
	"github.com/mirrorcast/mirrorcast/internal/config"
	"github.com/mirrorcast/mirrorcast/internal/health"
	"github.com/mirrorcast/mirrorcast/internal/pipeline"
	"github.com/mirrorcast/mirrorcast/internal/server"
	"github.com/mirrorcast/mirrorcast/pkg/provider/asr"
	asrmock "github.com/mirrorcast/mirrorcast/pkg/provider/asr/mock"
	lipsyncmock "github.com/mirrorcast/mirrorcast/pkg/provider/lipsync/mock"
	"github.com/mirrorcast/mirrorcast/pkg/provider/llm"
	llmmock "github.com/mirrorcast/mirrorcast/pkg/provider/llm/mock"
	ttsmock "github.com/mirrorcast/mirrorcast/pkg/provider/tts/mock"
)

// newTestServer assembles a handler over mock providers and a temp-dir
// store. The store is returned so tests can seed artifacts directly.
func newTestServer(t *testing.T) (http.Handler, *assetstore.Store) {
	t.Helper()
	store, err := assetstore.New(assetstore.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("assetstore.New: %v", err)
	}

	pipe := pipeline.New(
		&asrmock.Provider{Result: &asr.Result{Text: "Hello.", Language: "en"}},
		&llmmock.Provider{Response: &llm.ChatResponse{Text: "Hi there."}},
		&ttsmock.Provider{},
		&lipsyncmock.Provider{},
		chunker.New(chunker.Config{}),
		store,
		pipeline.Config{Portrait: "default.png"},
	)

	h := health.New()
	h.SetReady()

	srv := server.New(config.ServerConfig{ListenAddr: ":0"}, pipe, store, h)
	return srv.Handler(), store
}

// multipartClip builds a multipart body with an audio file part.
func multipartClip(t *testing.T, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("audio", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write(data)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestStream_HappyPath(t *testing.T) {
	t.Parallel()
	h, _ := newTestServer(t)

	body, ct := multipartClip(t, "clip.webm", []byte("fake audio"))
	req := httptest.NewRequest("POST", "/conversation/stream", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	out := rec.Body.String()
	for _, want := range []string{"event: transcription", "event: llm_response", "event: video_chunk", "event: complete"} {
		if !strings.Contains(out, want) {
			t.Errorf("stream missing %q:\n%s", want, out)
		}
	}
}

func TestStream_RejectsBeforeStreaming(t *testing.T) {
	t.Parallel()
	h, _ := newTestServer(t)

	cases := []struct {
		name       string
		makeReq    func(t *testing.T) *http.Request
		wantStatus int
	}{
		{
			name: "not multipart",
			makeReq: func(t *testing.T) *http.Request {
				req := httptest.NewRequest("POST", "/conversation/stream", strings.NewReader("{}"))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "missing audio field",
			makeReq: func(t *testing.T) *http.Request {
				var buf bytes.Buffer
				mw := multipart.NewWriter(&buf)
				mw.WriteField("language", "en")
				mw.Close()
				req := httptest.NewRequest("POST", "/conversation/stream", &buf)
				req.Header.Set("Content-Type", mw.FormDataContentType())
				return req
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "wrong extension",
			makeReq: func(t *testing.T) *http.Request {
				body, ct := multipartClip(t, "clip.mp3", []byte("audio"))
				req := httptest.NewRequest("POST", "/conversation/stream", body)
				req.Header.Set("Content-Type", ct)
				return req
			},
			wantStatus: http.StatusUnsupportedMediaType,
		},
		{
			name: "empty file",
			makeReq: func(t *testing.T) *http.Request {
				body, ct := multipartClip(t, "clip.wav", nil)
				req := httptest.NewRequest("POST", "/conversation/stream", body)
				req.Header.Set("Content-Type", ct)
				return req
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tc.makeReq(t))
			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tc.wantStatus, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); strings.HasPrefix(ct, "text/event-stream") {
				t.Error("rejection delivered as an SSE stream")
			}
		})
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	t.Parallel()
	h, _ := newTestServer(t)

	for _, path := range []string{"/health", "/metrics"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestVideo_RangeRequests(t *testing.T) {
	t.Parallel()
	h, store := newTestServer(t)

	content := []byte("0123456789abcdef")
	art, err := store.Put(context.Background(), content, assetstore.KindVideo)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	cases := []struct {
		name       string
		rangeHdr   string
		wantStatus int
		wantBody   string
		wantCR     string
	}{
		{"full file", "", http.StatusOK, "0123456789abcdef", ""},
		{"middle", "bytes=4-7", http.StatusPartialContent, "4567", "bytes 4-7/16"},
		{"open ended", "bytes=10-", http.StatusPartialContent, "abcdef", "bytes 10-15/16"},
		{"suffix", "bytes=-4", http.StatusPartialContent, "cdef", "bytes 12-15/16"},
		{"end clamped", "bytes=12-99", http.StatusPartialContent, "cdef", "bytes 12-15/16"},
		{"start past eof", "bytes=99-", http.StatusRequestedRangeNotSatisfiable, "", ""},
		{"inverted", "bytes=8-3", http.StatusRequestedRangeNotSatisfiable, "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/videos/"+art.ID, nil)
			if tc.rangeHdr != "" {
				req.Header.Set("Range", tc.rangeHdr)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if tc.wantStatus == http.StatusRequestedRangeNotSatisfiable {
				if cr := rec.Header().Get("Content-Range"); cr != "bytes */16" {
					t.Errorf("Content-Range = %q, want bytes */16", cr)
				}
				return
			}
			if got := rec.Body.String(); got != tc.wantBody {
				t.Errorf("body = %q, want %q", got, tc.wantBody)
			}
			if got := rec.Header().Get("Content-Range"); got != tc.wantCR {
				t.Errorf("Content-Range = %q, want %q", got, tc.wantCR)
			}
			if got := rec.Header().Get("Accept-Ranges"); got != "bytes" {
				t.Errorf("Accept-Ranges = %q", got)
			}
			if got := rec.Header().Get("Cache-Control"); got != "no-store" {
				t.Errorf("Cache-Control = %q", got)
			}
		})
	}
}

func TestVideo_DoubleServeIdentical(t *testing.T) {
	t.Parallel()
	h, store := newTestServer(t)

	content := bytes.Repeat([]byte("moov mdat "), 100)
	art, err := store.Put(context.Background(), content, assetstore.KindVideo)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	fetch := func() []byte {
		req := httptest.NewRequest("GET", "/videos/"+art.ID, nil)
		req.Header.Set("Range", "bytes=100-499")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusPartialContent {
			t.Fatalf("status = %d", rec.Code)
		}
		return rec.Body.Bytes()
	}

	if first, second := fetch(), fetch(); !bytes.Equal(first, second) {
		t.Error("same range served different bytes")
	}
}

func TestVideo_UnknownArtifact(t *testing.T) {
	t.Parallel()
	h, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/videos/no-such-artifact", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestVideo_NotReadyGetsRetryAfter(t *testing.T) {
	t.Parallel()
	h, store := newTestServer(t)

	art, err := store.Put(context.Background(), []byte("partial"), assetstore.KindVideo)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Keep the backing file growing so the stability probe never sees two
	// equal size samples.
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		f, err := os.OpenFile(art.Path, os.O_APPEND|os.O_WRONLY, 0)
		if err != nil {
			return
		}
		defer f.Close()
		for {
			select {
			case <-stop:
				return
			default:
				f.Write([]byte("x"))
			}
		}
	}()
	t.Cleanup(func() { close(stop); <-done })

	req := httptest.NewRequest("GET", "/videos/"+art.ID, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "0" {
		t.Errorf("Retry-After = %q, want 0", got)
	}
}
