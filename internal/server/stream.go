package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/mirrorcast/mirrorcast/internal/observe"
	"github.com/mirrorcast/mirrorcast/internal/pipeline"
	"github.com/mirrorcast/mirrorcast/internal/sse"
)

// acceptedAudioExts are the upload container formats the recognition
// backend understands. Matching is by filename extension; the backend
// itself sniffs the actual bytes.
var acceptedAudioExts = []string{".webm", ".wav", ".ogg"}

// handleStream runs one conversation turn. The request is a multipart form
// with an "audio" file part and optional "language" and "user_id" fields;
// the response body is an SSE stream.
//
// All input validation happens before the first SSE byte so that malformed
// requests get a plain 4xx instead of a 200 stream that immediately errors.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observe.Logger(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "audio upload too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "expected multipart form data")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "missing audio file field")
		return
	}
	defer file.Close()

	if !acceptableAudioName(header) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "audio must be webm, wav or ogg")
		return
	}

	audio, err := io.ReadAll(file)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "unreadable audio upload")
		return
	}
	if len(audio) == 0 {
		writeJSONError(w, http.StatusBadRequest, "empty audio upload")
		return
	}

	lang := r.FormValue("language")
	if lang == "" {
		lang = "en"
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	d := sse.NewDispatcher(w, observe.CorrelationID(ctx), sse.WithLogger(log))
	defer d.Close()

	err = s.pipe.RunTurn(ctx, d, pipeline.TurnRequest{
		Audio:        audio,
		LanguageHint: lang,
		UserID:       r.FormValue("user_id"),
	})
	if err != nil {
		var perr *pipeline.Error
		if errors.As(err, &perr) && perr.Kind == pipeline.KindClientDisconnect {
			log.Info("client disconnected mid-turn", "stage", perr.Stage)
			return
		}
		// The pipeline already delivered the terminal error event.
		log.Warn("turn ended with error", "error", err)
	}
}

// acceptableAudioName reports whether the uploaded file's name carries one
// of the accepted container extensions. Uploads without a usable name are
// let through for the backend to sniff.
func acceptableAudioName(header *multipart.FileHeader) bool {
	name := strings.ToLower(header.Filename)
	if name == "" {
		return true
	}
	for _, ext := range acceptedAudioExts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
