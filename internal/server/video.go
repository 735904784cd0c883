package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mirrorcast/mirrorcast/internal/assetstore"
	"github.com/mirrorcast/mirrorcast/internal/observe"
)

// readinessBudget is how long the range server will wait for an announced
// artifact to reach a stable size before telling the client to retry. Kept
// short: the artifact was confirmed stable before announcement, so an
// unstable read here means a race with an eviction or an unfinished write,
// both of which resolve quickly or not at all.
const readinessBudget = 100 * time.Millisecond

// handleVideo serves one video artifact with byte-range support. HTML5
// <video> elements fetch metadata and media data in separate overlapping
// range requests; every response must be byte-identical over the shared
// underlying file.
func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observe.Logger(ctx)
	start := time.Now()

	id := r.PathValue("id")
	art, err := s.store.Get(id)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if err := s.store.ConfirmStable(ctx, art, readinessBudget); err != nil {
		// Tell the player to retry immediately rather than abort; the
		// artifact is usually ready within one round trip.
		w.Header().Set("Retry-After", "0")
		writeJSONError(w, http.StatusServiceUnavailable, "artifact not ready")
		log.Warn("artifact not ready for serving", "artifact_id", id, "error", err)
		return
	}

	rangeStart, rangeEnd, partial, err := parseRange(r.Header.Get("Range"), art.ByteSize)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", art.ByteSize))
		writeJSONError(w, http.StatusRequestedRangeNotSatisfiable, "unsatisfiable range")
		return
	}

	rc, err := s.store.OpenRange(art, rangeStart, rangeEnd)
	if err != nil {
		if errors.Is(err, assetstore.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "artifact unreadable")
		log.Error("artifact open failed", "artifact_id", id, "error", err)
		return
	}
	defer rc.Close()

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", "video/mp4")
	h.Set("Cache-Control", "no-store")
	h.Set("Content-Length", strconv.FormatInt(rangeEnd-rangeStart+1, 10))
	if partial {
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rangeStart, rangeEnd, art.ByteSize))
		w.WriteHeader(http.StatusPartialContent)
	}

	ttfb := time.Since(start)
	sent, copyErr := io.Copy(w, rc)
	total := time.Since(start)

	s.metrics.RecordVideoServe(ctx, ttfb.Seconds(), total.Seconds(), sent)
	log.Info("artifact served",
		"artifact_id", id,
		"range_start", rangeStart,
		"range_end", rangeEnd,
		"bytes_sent", sent,
		"partial", partial,
		"ttfb", ttfb,
		"duration", total,
		"file_age", start.Sub(art.MTime))
	if copyErr != nil {
		// Mid-transfer disconnects are routine for <video> elements that
		// abort speculative range reads.
		log.Debug("artifact transfer interrupted", "artifact_id", id, "error", copyErr)
	}
}

// parseRange interprets a single-range "bytes=" header against the given
// size. A missing or syntactically foreign header selects the whole file
// with partial=false; an unsatisfiable one returns an error.
func parseRange(header string, size int64) (start, end int64, partial bool, err error) {
	if header == "" {
		return 0, size - 1, false, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, size - 1, false, nil
	}
	// Multi-range requests are not worth the multipart/byteranges
	// machinery; serve the first range only.
	spec, _, _ = strings.Cut(spec, ",")
	spec = strings.TrimSpace(spec)

	first, last, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, size - 1, false, nil
	}

	if first == "" {
		// Suffix form: bytes=-N means the final N bytes.
		n, perr := strconv.ParseInt(last, 10, 64)
		if perr != nil || n <= 0 {
			return 0, 0, false, fmt.Errorf("server: bad suffix range %q", spec)
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, true, nil
	}

	start, perr := strconv.ParseInt(first, 10, 64)
	if perr != nil || start < 0 || start >= size {
		return 0, 0, false, fmt.Errorf("server: bad range start %q", spec)
	}
	end = size - 1
	if last != "" {
		end, perr = strconv.ParseInt(last, 10, 64)
		if perr != nil || end < start {
			return 0, 0, false, fmt.Errorf("server: bad range end %q", spec)
		}
		if end >= size {
			end = size - 1
		}
	}
	return start, end, true, nil
}
