package server

import (
	"encoding/json"
	"net/http"
	"os"
	"slices"
	"strings"
)

// listAssets returns a handler that lists the files with the given
// extensions in dir, as a JSON array of bare filenames. Playback clients
// use it to populate portrait and voice pickers.
func (s *Server) listAssets(dir string, exts ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "asset directory unreadable")
			s.log.Error("asset listing failed", "dir", dir, "error", err)
			return
		}

		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			name := e.Name()
			dot := strings.LastIndex(name, ".")
			if dot < 0 || !slices.Contains(exts, strings.ToLower(name[dot:])) {
				continue
			}
			names = append(names, name)
		}
		slices.Sort(names)

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if err := json.NewEncoder(w).Encode(names); err != nil {
			s.log.Warn("asset listing write failed", "dir", dir, "error", err)
		}
	}
}
