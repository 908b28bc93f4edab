package httpserver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
)

// VoiceNotes serves synthesized voice notes out of the temp directory so
// providers can fetch them by link. Files are one-shot: a successful
// fetch removes the file.
type VoiceNotes struct {
	Dir string
	Log *slog.Logger
}

func (v *VoiceNotes) Register(m *mux.Router) {
	m.HandleFunc("/voice-note/{name}", v.handleGet).Methods(http.MethodGet)
}

func (v *VoiceNotes) handleGet(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		http.Error(w, ErrNotFound, http.StatusNotFound)
		return
	}

	path := filepath.Join(v.Dir, name)
	f, err := os.Open(path)
	if err != nil {
		http.Error(w, ErrNotFound, http.StatusNotFound)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "audio/ogg")
	if _, err := io.Copy(w, f); err != nil {
		v.Log.Warn("voice note serve interrupted", "name", name, "err", err)
		return
	}
	if err := os.Remove(path); err != nil {
		v.Log.Warn("voice note cleanup failed", "name", name, "err", err)
	}
}

// fetchMedia downloads provider-hosted media into destDir under name.
// Basic auth credentials are optional.
func fetchMedia(ctx context.Context, client *http.Client, mediaURL, destDir, name, user, pass string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return "", err
	}
	if user != "" {
		req.SetBasicAuth(user, pass)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("media fetch %d", resp.StatusCode)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(destDir, name)
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(path)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
