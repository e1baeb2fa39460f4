package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/lplens/auth"
	"github.com/hazyhaar/lplens/lplens"
	"github.com/hazyhaar/lplens/shield"
)

// api holds what the HTTP handlers need.
type api struct {
	svc     *lplens.Service
	secret  []byte
	limiter *shield.RateLimiter // optional
	mcp     http.Handler        // optional, mounted behind auth
}

func (a *api) routes() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultAPIStack() {
		r.Use(mw)
	}
	r.Use(auth.Middleware(a.secret)) // Soft: parses the session, RequireAuth enforces.

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Public: share view and the screenshots it references.
	r.Get("/api/lp/{id}/share", a.share)
	r.Handle("/screenshots/*", http.StripPrefix("/screenshots/", noListing(http.FileServer(http.Dir(a.svc.ScreenshotDir())))))

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Get("/api/lp", a.list)
		r.Post("/api/lp", a.create)
		r.Get("/api/lp/{id}", a.get)
		r.Delete("/api/lp/{id}", a.remove)
		if a.limiter != nil {
			r.With(a.limiter.Limit("analyze")).Post("/api/lp/{id}/analyze", a.analyze)
		} else {
			r.Post("/api/lp/{id}/analyze", a.analyze)
		}
		if a.mcp != nil {
			r.Handle("/mcp", a.mcp)
		}
	})
	return r
}

func account(r *http.Request) string {
	return auth.GetClaims(r.Context()).UserID
}

func (a *api) list(w http.ResponseWriter, r *http.Request) {
	lps, err := a.svc.ListLandingPages(r.Context(), account(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lps": lps})
}

func (a *api) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL  string `json:"url"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	lp, err := a.svc.CreateLandingPage(r.Context(), account(r), req.URL, req.Name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"lp": lp})
}

func (a *api) get(w http.ResponseWriter, r *http.Request) {
	lp, err := a.svc.GetLandingPage(r.Context(), account(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lp": lp})
}

func (a *api) remove(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteLandingPage(r.Context(), account(r), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (a *api) analyze(w http.ResponseWriter, r *http.Request) {
	out, err := a.svc.Analyze(r.Context(), account(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "analysisResult": out.AnalysisResult})
}

func (a *api) share(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.Share(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// fail maps service errors to status codes. Causes of analysis and
// internal failures are logged, never returned.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	log := shield.GetLogger(r.Context())
	switch {
	case errors.Is(err, lplens.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, lplens.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	case errors.Is(err, lplens.ErrQuotaExceeded):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, lplens.ErrAnalysisFailed):
		log.Error("api: analysis failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": a.svc.FailureMessage()})
	default:
		log.Error("api: request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
}

// noListing hides directory indexes of the screenshot store.
func noListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
