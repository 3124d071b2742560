package http

import (
	"bytes"
	"net/http"

	"fengshui/internal/core"
	"fengshui/internal/log"
)

// render executes a page template into a buffer so a failure can still be
// answered with a clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data *pageData) {
	if s.templates == nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded",
			log.FieldPath, r.URL.Path,
			"error_type", log.ErrorTypeConfiguration)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	current, version := s.store.Current()
	data.Version = version
	data.Total = current.Count()

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			log.FieldError, err,
			"template", name,
			log.FieldOperation, log.OpRender)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// handleLookup renders the read-only search view. An unknown category
// filter is ignored.
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	query := sanitizeInput(r.URL.Query().Get("q"))
	var only core.Category
	if v := r.URL.Query().Get(formCategory); v != "" {
		if c, err := core.ParseCategory(v); err == nil {
			only = c
		} else {
			log.FromContext(r.Context()).DebugContext(r.Context(), "Ignoring unknown category filter", log.FieldCategory, v)
		}
	}

	s.render(w, r, http.StatusOK, "lookup.html", &pageData{
		Title:      "Tra cứu",
		Active:     "lookup",
		Notice:     noticeFromRequest(r),
		Categories: categoryOptions(only),
		Query:      query,
		Searched:   query != "" || only != "",
		Results:    hitViews(s.search(r, query, only)),
	})
}

// search answers from the lookup cache. Keys carry the store version so a
// mutation never serves stale hits.
func (s *Server) search(r *http.Request, query string, only core.Category) []core.Hit {
	current, version := s.store.Current()
	key := lookupCacheKey(version, only, query)
	if hits, ok := s.lookupCache.Get(key); ok {
		log.FromContext(r.Context()).DebugContext(r.Context(), "Lookup cache hit", "key", key, "count", len(hits))
		return hits
	}

	var hits []core.Hit
	if only != "" {
		hits = current.Search(query, only)
	} else {
		hits = current.Search(query)
	}
	s.lookupCache.Set(key, hits)
	return hits
}
