package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"fengshui/internal/log"
	"fengshui/internal/services"
	"fengshui/internal/snapshot"
)

const importFormField = "file"

// handleExport offers the whole store as a download.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	s.writeSnapshot(w, r, true)
}

// handleSnapshot returns the same document inline.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.writeSnapshot(w, r, false)
}

func (s *Server) writeSnapshot(w http.ResponseWriter, r *http.Request, attachment bool) {
	current, version := s.store.Current()
	data, err := snapshot.Encode(current)
	if err != nil {
		s.events.LogError(r.Context(), "Encoding snapshot failed", err, log.OpExport, nil)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Content-Length", strconv.Itoa(len(data)))
	h.Set("X-Store-Version", strconv.FormatUint(version, 10))
	h.Set("Cache-Control", "no-store")
	if attachment {
		h.Set("Content-Disposition", `attachment; filename="`+snapshot.ExportFileName+`"`)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleImport replaces the store with an uploaded snapshot. Any failure
// to read or parse the file leaves the store as it was.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		logger.WarnContext(ctx, "Import upload rejected", log.FieldError, err, "error_type", log.ErrorTypeImport)
		s.renderManage(w, r, http.StatusUnprocessableEntity, &noticeImportFailed)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(importFormField)
	if err != nil {
		logger.WarnContext(ctx, "Import without file", log.FieldError, err, "error_type", log.ErrorTypeImport)
		s.renderManage(w, r, http.StatusUnprocessableEntity, &noticeImportFailed)
		return
	}
	defer file.Close()

	text, err := io.ReadAll(file)
	if err != nil {
		logger.WarnContext(ctx, "Reading import file failed", log.FieldError, err, "error_type", log.ErrorTypeImport)
		s.renderManage(w, r, http.StatusUnprocessableEntity, &noticeImportFailed)
		return
	}

	summary, err := s.store.ImportSnapshot(ctx, text)
	switch {
	case errors.Is(err, services.ErrImport):
		logger.WarnContext(ctx, "Import file is not a valid snapshot",
			log.FieldError, err,
			"filename", header.Filename,
			"size_bytes", len(text),
			"error_type", log.ErrorTypeImport)
		s.renderManage(w, r, http.StatusUnprocessableEntity, &noticeImportFailed)
		return
	case err != nil:
		s.mutationFailed(w, r, "Import failed", err, log.OpImport)
		return
	}

	if len(summary.Ignored) > 0 {
		logger.WarnContext(ctx, "Import ignored unknown categories", "ignored", strings.Join(summary.Ignored, ","))
	}
	s.events.LogStoreChange(ctx, services.OpImport, "", "", summary.Records)
	redirectWithNotice(w, r, pathManage, "imported")
}

// handleReset restores the bundled dataset and confirms it with a notice.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.store.Reset(ctx); err != nil {
		s.mutationFailed(w, r, "Reset failed", err, log.OpReset)
		return
	}
	s.events.LogStoreChange(ctx, services.OpReset, "", "", s.store.Snapshot().Count())
	redirectWithNotice(w, r, pathManage, "reset")
}
