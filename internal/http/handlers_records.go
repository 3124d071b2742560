package http

import (
	"errors"
	"net/http"

	"fengshui/internal/core"
	"fengshui/internal/log"
	"fengshui/internal/services"
)

const (
	entryRows    = 6
	maxFormBytes = 1 << 20
	pathEntry    = "/entry"
	pathManage   = "/manage"
)

func (s *Server) handleEntryForm(w http.ResponseWriter, r *http.Request) {
	selected, _ := core.ParseCategory(r.URL.Query().Get(formCategory))
	s.renderEntry(w, r, http.StatusOK, selected, noticeFromRequest(r), nil)
}

func (s *Server) renderEntry(w http.ResponseWriter, r *http.Request, status int, selected core.Category, notice *Notice, form *entryForm) {
	rows := entryRows
	if form != nil && len(form.Fields) > rows {
		rows = len(form.Fields)
	}
	data := &pageData{
		Title:      "Nhập dữ liệu",
		Active:     "entry",
		Notice:     notice,
		Categories: categoryOptions(selected),
		EntryRows:  make([]int, rows),
		Form:       form,
	}
	if form != nil {
		data.EntryRows = data.EntryRows[len(form.Fields):]
	}
	s.render(w, r, status, "entry.html", data)
}

// handleCreateRecord appends a record built from the entry form.
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Parse form error", log.FieldError, err)
		s.renderEntry(w, r, http.StatusBadRequest, "", &Notice{NoticeError, "Yêu cầu không hợp lệ"}, nil)
		return
	}

	c, rec, err := parseNewRecord(r.PostForm)
	if err != nil {
		var fe formError
		if !errors.As(err, &fe) {
			fe = formError(err.Error())
		}
		selected, _ := core.ParseCategory(r.PostForm.Get(formCategory))
		s.renderEntry(w, r, http.StatusUnprocessableEntity, selected, &Notice{NoticeError, string(fe)}, echoEntry(r))
		return
	}

	added, err := s.store.Add(ctx, c, rec)
	if err != nil {
		s.mutationFailed(w, r, "Add record failed", err, log.OpCreate)
		return
	}
	s.events.LogStoreChange(ctx, services.OpAdd, string(c), added.ID, s.store.Snapshot().Count())
	redirectWithNotice(w, r, pathEntry, "added")
}

// echoEntry returns the submitted rows so the user does not retype them.
func echoEntry(r *http.Request) *entryForm {
	form := &entryForm{ID: sanitizeInput(r.PostForm.Get(formID))}
	names, values := r.PostForm[formFieldName], r.PostForm[formFieldValue]
	for i := 0; i < len(names) && i < len(values) && i < maxFields; i++ {
		if name := sanitizeInput(names[i]); name != "" {
			form.Fields = append(form.Fields, fieldView{Name: name, Value: sanitizeInput(values[i])})
		}
	}
	return form
}

func (s *Server) handleManage(w http.ResponseWriter, r *http.Request) {
	s.renderManage(w, r, http.StatusOK, noticeFromRequest(r))
}

func (s *Server) renderManage(w http.ResponseWriter, r *http.Request, status int, notice *Notice) {
	s.render(w, r, status, "manage.html", &pageData{
		Title:      "Quản lý dữ liệu",
		Active:     "manage",
		Notice:     notice,
		Categories: categoryOptions(""),
		Groups:     categoryGroups(s.store.Snapshot()),
	})
}

// recordTarget resolves the category and id path values. An unknown
// category is answered like a missing record.
func (s *Server) recordTarget(w http.ResponseWriter, r *http.Request) (core.Category, string, bool) {
	c, err := parseCategory(r.PathValue("category"))
	if err != nil {
		s.renderManage(w, r, http.StatusNotFound, &noticeNotFound)
		return "", "", false
	}
	return c, r.PathValue("id"), true
}

// handleEditRecord applies the set and clear lists of an edit form to the
// first record matching the path.
func (s *Server) handleEditRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, id, ok := s.recordTarget(w, r)
	if !ok {
		return
	}
	current, found := s.store.Snapshot().Find(c, id)
	if !found {
		s.renderManage(w, r, http.StatusNotFound, &noticeNotFound)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		s.renderManage(w, r, http.StatusBadRequest, &Notice{NoticeError, "Yêu cầu không hợp lệ"})
		return
	}
	patch, err := parsePatch(current, r.PostForm)
	if err != nil {
		s.renderManage(w, r, http.StatusUnprocessableEntity, &Notice{NoticeError, err.Error()})
		return
	}
	if patch.IsEmpty() {
		redirectWithNotice(w, r, pathManage, "unchanged")
		return
	}

	edited, err := s.store.Edit(ctx, c, id, patch)
	if err != nil {
		s.mutationFailed(w, r, "Edit record failed", err, log.OpUpdate)
		return
	}
	if !edited {
		s.renderManage(w, r, http.StatusNotFound, &noticeNotFound)
		return
	}
	s.events.LogStoreChange(ctx, services.OpEdit, string(c), id, s.store.Snapshot().Count())
	redirectWithNotice(w, r, pathManage, "updated")
}

// handleDeleteRecord removes every record of the category with the id.
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, id, ok := s.recordTarget(w, r)
	if !ok {
		return
	}

	n, err := s.store.Delete(ctx, c, id)
	if err != nil {
		s.mutationFailed(w, r, "Delete record failed", err, log.OpDelete)
		return
	}
	if n == 0 {
		s.renderManage(w, r, http.StatusNotFound, &noticeNotFound)
		return
	}
	s.events.LogStoreChange(ctx, services.OpDelete, string(c), id, s.store.Snapshot().Count())
	redirectWithNotice(w, r, pathManage, "deleted")
}

// mutationFailed answers a failed store write. The in-memory change has
// already been applied, so the page shows it alongside the warning.
func (s *Server) mutationFailed(w http.ResponseWriter, r *http.Request, msg string, err error, op string) {
	errorType := log.ErrorTypeInternal
	if errors.Is(err, services.ErrPersist) {
		errorType = log.ErrorTypeStorage
	}
	fields := log.NewFields()
	fields["error_type"] = errorType
	s.events.LogError(r.Context(), msg, err, op, fields)
	s.renderManage(w, r, http.StatusInternalServerError, &noticeSaveFailed)
}
