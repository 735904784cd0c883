// Package pipeline executes one conversation turn: recognise the user's
// clip, generate a reply, split it into utterance chunks and render each
// chunk into a lip-synced video artifact, streaming progress events as it
// goes.
//
// Chunk generation is deliberately serial. The lip-sync backend owns a
// single GPU, so running chunks concurrently would only queue inside the
// backend while destroying the chunk-index ordering guarantees the playback
// client depends on. A turn stops at the first failed chunk; chunks already
// announced stay valid and playable.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mirrorcast/mirrorcast/internal/assetstore"
	"github.com/mirrorcast/mirrorcast/internal/chunker"
	"github.com/mirrorcast/mirrorcast/internal/history"
	"github.com/mirrorcast/mirrorcast/internal/observe"
	"github.com/mirrorcast/mirrorcast/internal/sse"
	"github.com/mirrorcast/mirrorcast/pkg/provider/asr"
	"github.com/mirrorcast/mirrorcast/pkg/provider/lipsync"
	"github.com/mirrorcast/mirrorcast/pkg/provider/llm"
	"github.com/mirrorcast/mirrorcast/pkg/provider/tts"
)

// Timeouts bounds each inference stage. Zero fields take the defaults.
type Timeouts struct {
	ASR     time.Duration
	LLM     time.Duration
	TTS     time.Duration
	LipSync time.Duration
}

// Defaults sized for local GPU inference: recognition and synthesis finish
// in seconds, diffusion-based lip-sync can take tens of seconds per chunk.
var defaultTimeouts = Timeouts{
	ASR:     30 * time.Second,
	LLM:     60 * time.Second,
	TTS:     30 * time.Second,
	LipSync: 120 * time.Second,
}

// Config carries the per-deployment persona and rendering parameters.
type Config struct {
	// SystemPrompt shapes the avatar's persona.
	SystemPrompt string

	// Portrait is the server-side reference image animated by the lip-sync
	// backend.
	Portrait string

	// Voice is the cloned voice used for synthesis.
	Voice tts.VoiceRef

	// Render carries lip-sync output parameters.
	Render lipsync.Options

	// Timeouts bounds each stage.
	Timeouts Timeouts

	// StableBudget is the per-artifact stability confirmation budget. Zero
	// uses the store default.
	StableBudget time.Duration
}

// TurnRequest is one user turn.
type TurnRequest struct {
	// Audio is a complete recorded clip (webm, wav or ogg container).
	Audio []byte

	// LanguageHint is a BCP-47 hint for recognition and synthesis. Empty
	// defaults to "en".
	LanguageHint string

	// UserID keys the conversation history. Empty means a shared anonymous
	// transcript.
	UserID string
}

// Pipeline runs conversation turns. Safe for concurrent use; concurrent
// turns serialise naturally on the lip-sync backend's GPU lock.
type Pipeline struct {
	asr      asr.Provider
	llm      llm.Provider
	tts      tts.Provider
	lipsync  lipsync.Provider
	splitter *chunker.Splitter
	store    *assetstore.Store
	history  *history.Store
	metrics  *observe.Metrics
	log      *slog.Logger
	cfg      Config
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithLogger sets the pipeline's logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) {
		p.log = log
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithHistory sets the conversation history store. Without one, turns run
// stateless.
func WithHistory(h *history.Store) Option {
	return func(p *Pipeline) {
		p.history = h
	}
}

// New assembles a pipeline from its stages.
func New(asrP asr.Provider, llmP llm.Provider, ttsP tts.Provider, lipsyncP lipsync.Provider,
	splitter *chunker.Splitter, store *assetstore.Store, cfg Config, opts ...Option) *Pipeline {

	if cfg.Timeouts.ASR <= 0 {
		cfg.Timeouts.ASR = defaultTimeouts.ASR
	}
	if cfg.Timeouts.LLM <= 0 {
		cfg.Timeouts.LLM = defaultTimeouts.LLM
	}
	if cfg.Timeouts.TTS <= 0 {
		cfg.Timeouts.TTS = defaultTimeouts.TTS
	}
	if cfg.Timeouts.LipSync <= 0 {
		cfg.Timeouts.LipSync = defaultTimeouts.LipSync
	}

	p := &Pipeline{
		asr:      asrP,
		llm:      llmP,
		tts:      ttsP,
		lipsync:  lipsyncP,
		splitter: splitter,
		store:    store,
		metrics:  observe.DefaultMetrics(),
		log:      slog.Default(),
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunTurn executes one turn, emitting events on emit as stages complete.
// The returned error is always a [*Error] (or nil). Every failure except a
// client disconnect is also reported to the client as a terminal error
// event before RunTurn returns.
func (p *Pipeline) RunTurn(ctx context.Context, emit sse.Emitter, req TurnRequest) error {
	turnID := uuid.NewString()
	start := time.Now()
	lang := req.LanguageHint
	if lang == "" {
		lang = "en"
	}

	log := p.log.With("turn_id", turnID)
	log.Info("turn started", "audio_bytes", len(req.Audio), "language", lang)

	p.metrics.ActiveTurns.Add(ctx, 1)
	defer p.metrics.ActiveTurns.Add(ctx, -1)
	defer func() {
		p.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
	}()

	// ─── Recognition ───

	if len(req.Audio) == 0 {
		perr := &Error{Kind: KindInvalidInput, Stage: "asr", Err: fmt.Errorf("empty audio upload")}
		p.fail(ctx, emit, log, perr)
		return perr
	}

	asrStart := time.Now()
	result, err := withTimeout(ctx, p.cfg.Timeouts.ASR, func(ctx context.Context) (*asr.Result, error) {
		return p.asr.Transcribe(ctx, req.Audio, lang)
	})
	asrDur := time.Since(asrStart)
	p.metrics.ASRDuration.Record(ctx, asrDur.Seconds())
	if err != nil {
		perr := classify("asr", err)
		p.metrics.RecordAdapterError(ctx, "asr", string(perr.Kind))
		p.fail(ctx, emit, log, perr)
		return perr
	}
	if result.Language != "" {
		lang = result.Language
	}

	if err := emit.Emit(sse.KindTranscription, &sse.TranscriptionEvent{
		Text:     result.Text,
		Language: lang,
		Time:     asrDur.Seconds(),
	}); err != nil {
		return classify("emit", err)
	}
	p.metrics.RecordSSEEvent(ctx, string(sse.KindTranscription))

	userText := strings.TrimSpace(result.Text)
	if userText == "" {
		log.Info("turn produced no speech", "asr_duration", asrDur)
		return p.complete(ctx, emit, log, start, 0)
	}

	// ─── Dialogue ───

	var hist []llm.Message
	if p.history != nil {
		hist = p.history.Snapshot(req.UserID)
	}

	llmStart := time.Now()
	resp, err := withTimeout(ctx, p.cfg.Timeouts.LLM, func(ctx context.Context) (*llm.ChatResponse, error) {
		return p.llm.Respond(ctx, llm.ChatRequest{
			SystemPrompt: p.cfg.SystemPrompt,
			History:      hist,
			UserText:     userText,
		})
	})
	p.metrics.LLMDuration.Record(ctx, time.Since(llmStart).Seconds())
	if err != nil {
		perr := classify("llm", err)
		p.metrics.RecordAdapterError(ctx, "llm", string(perr.Kind))
		p.fail(ctx, emit, log, perr)
		return perr
	}

	if err := emit.Emit(sse.KindLLMResponse, &sse.LLMResponseEvent{
		Text:     resp.Text,
		Fallback: resp.Fallback,
	}); err != nil {
		return classify("emit", err)
	}
	p.metrics.RecordSSEEvent(ctx, string(sse.KindLLMResponse))

	if p.history != nil {
		p.history.Append(req.UserID, userText, resp.Text)
	}

	// ─── Chunked generation ───

	chunks := p.splitter.Split(resp.Text)
	log.Info("response chunked", "chunks", len(chunks), "fallback", resp.Fallback)

	for i, text := range chunks {
		if perr := p.generateChunk(ctx, emit, log, turnID, i, text, lang, start); perr != nil {
			p.metrics.RecordAdapterError(ctx, perr.Stage, string(perr.Kind))
			p.fail(ctx, emit, log, perr)
			return perr
		}
	}

	return p.complete(ctx, emit, log, start, len(chunks))
}

// generateChunk renders one utterance chunk into a stable video artifact
// and announces it.
func (p *Pipeline) generateChunk(ctx context.Context, emit sse.Emitter, log *slog.Logger,
	turnID string, index int, text, lang string, turnStart time.Time) *Error {

	chunkStart := time.Now()

	ttsStart := time.Now()
	audio, err := withTimeout(ctx, p.cfg.Timeouts.TTS, func(ctx context.Context) (*tts.Audio, error) {
		return p.tts.Synthesize(ctx, text, p.cfg.Voice, lang)
	})
	p.metrics.TTSDuration.Record(ctx, time.Since(ttsStart).Seconds())
	if err != nil {
		return classify("tts", err)
	}

	if _, err := p.store.Put(ctx, audio.Data, assetstore.KindAudio); err != nil {
		return classify("store", err)
	}

	syncStart := time.Now()
	video, err := withTimeout(ctx, p.cfg.Timeouts.LipSync, func(ctx context.Context) (*lipsync.Video, error) {
		return p.lipsync.Animate(ctx, audio.Data, p.cfg.Portrait, p.cfg.Render)
	})
	p.metrics.LipSyncDuration.Record(ctx, time.Since(syncStart).Seconds())
	if err != nil {
		return classify("lipsync", err)
	}

	art, err := p.store.Put(ctx, video.Data, assetstore.KindVideo)
	if err != nil {
		return classify("store", err)
	}
	if err := p.store.ConfirmStable(ctx, art, p.cfg.StableBudget); err != nil {
		return classify("store", err)
	}

	chunkDur := time.Since(chunkStart)
	p.metrics.ChunkDuration.Record(ctx, chunkDur.Seconds())
	if index == 0 {
		p.metrics.TimeToFirstFrame.Record(ctx, time.Since(turnStart).Seconds())
	}

	if err := emit.Emit(sse.KindVideoChunk, &sse.VideoChunkEvent{
		ChunkIndex:     index,
		VideoURL:       "/videos/" + art.ID,
		TextChunk:      text,
		ChunkTime:      chunkDur.Seconds(),
		AudioDurationS: audio.DurationS,
		VideoDurationS: video.DurationS,
	}); err != nil {
		return classify("emit", err)
	}
	p.metrics.RecordSSEEvent(ctx, string(sse.KindVideoChunk))

	log.Info("chunk generated",
		"turn_id", turnID,
		"chunk_index", index,
		"chunk_chars", len(text),
		"artifact_id", art.ID,
		"chunk_duration", chunkDur,
		"audio_duration_s", audio.DurationS,
		"video_duration_s", video.DurationS)
	return nil
}

// complete emits the terminal complete event.
func (p *Pipeline) complete(ctx context.Context, emit sse.Emitter, log *slog.Logger,
	start time.Time, chunkCount int) error {

	total := time.Since(start)
	if err := emit.Emit(sse.KindComplete, &sse.CompleteEvent{
		TotalTime:  total.Seconds(),
		ChunkCount: chunkCount,
	}); err != nil {
		return classify("emit", err)
	}
	p.metrics.RecordSSEEvent(ctx, string(sse.KindComplete))
	log.Info("turn completed", "chunk_count", chunkCount, "total_time", total)
	return nil
}

// fail reports a classified failure to the client, except when the client
// is the one that went away.
func (p *Pipeline) fail(ctx context.Context, emit sse.Emitter, log *slog.Logger, perr *Error) {
	log.Error("turn failed",
		"stage", perr.Stage,
		"kind", string(perr.Kind),
		"error", perr.Err)
	if perr.Kind == KindClientDisconnect {
		return
	}
	if err := emit.Emit(sse.KindError, &sse.ErrorEvent{
		Error: perr.Err.Error(),
		Kind:  string(perr.Kind),
	}); err != nil {
		log.Warn("error event undeliverable", "error", err)
		return
	}
	p.metrics.RecordSSEEvent(ctx, string(sse.KindError))
}

// withTimeout runs fn under a child context bounded by d.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}
