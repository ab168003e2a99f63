package devserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/vxrn/vxrn/internal/assets"
	"github.com/vxrn/vxrn/internal/bundler"
	"github.com/vxrn/vxrn/internal/platform"
)

const javascript = "text/javascript; charset=utf-8"

// StatusBody is what packager health checks expect.
const StatusBody = "packager-status:running"

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, StatusBody)
}

// handleFile serves the latest hot update for a module id. Unknown ids get
// an empty body, which clients treat as nothing to apply.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("file")
	w.Header().Set("Content-Type", javascript)

	envs := platform.Native
	if p := r.URL.Query().Get("platform"); p != "" {
		env, err := platform.Parse(p)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		envs = []platform.Environment{env}
	}

	for _, env := range envs {
		if entry, ok := s.hot.Get(env, id); ok {
			io.WriteString(w, entry.Code)
			return
		}
	}
	s.logger.Debug("no hot update cached", "file", id)
}

func (s *Server) handleBundle(w http.ResponseWriter, r *http.Request) {
	env, err := platform.Parse(r.URL.Query().Get("platform"))
	if err != nil || !env.IsNative() {
		http.Error(w, "platform must be 'ios' or 'android'", http.StatusBadRequest)
		return
	}

	bundle, err := s.bundle(r.Context(), env)
	if err != nil {
		var buildErr *bundler.BuildError
		if errors.As(err, &buildErr) {
			s.logger.Error("bundle failed", "platform", env, "error", buildErr.Err)
		} else {
			s.logger.Error("bundle failed", "platform", env, "error", err)
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", javascript)
	io.WriteString(w, bundle.Code)
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	path, err := s.assets.Lookup(chi.URLParam(r, "*"))
	if err != nil {
		s.logger.Debug("asset not found", "path", r.URL.Path, "error", err)
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", assets.ContentType(path))
	if _, err := io.Copy(w, f); err != nil {
		s.logger.Debug("writing asset", "path", path, "error", err)
	}
}

type symbolicateRequest struct {
	Stack []json.RawMessage `json:"stack"`
}

type symbolicateResponse struct {
	Stack     []json.RawMessage `json:"stack"`
	CodeFrame any               `json:"codeFrame"`
}

// handleSymbolicate returns the stack unchanged; bundles carry no source
// maps yet.
func (s *Server) handleSymbolicate(w http.ResponseWriter, r *http.Request) {
	var req symbolicateRequest
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid symbolicate request", http.StatusBadRequest)
			return
		}
	}
	if req.Stack == nil {
		req.Stack = []json.RawMessage{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(symbolicateResponse{Stack: req.Stack})
}
