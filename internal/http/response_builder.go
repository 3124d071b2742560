// Package http provides HTTP server and handler implementations.
//
// This file builds the view models handed to templates and the notices
// shown after a redirect.

package http

import (
	"net/http"
	"net/url"

	"fengshui/internal/core"
)

// NoticeKind selects how a notice is styled.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
	NoticeInfo    NoticeKind = "info"
)

type Notice struct {
	Kind    NoticeKind
	Message string
}

// Notices that survive a redirect, addressed by the notice query parameter.
var redirectNotices = map[string]Notice{
	"added":     {NoticeSuccess, "Đã thêm bản ghi."},
	"updated":   {NoticeSuccess, "Đã cập nhật bản ghi."},
	"unchanged": {NoticeInfo, "Không có thay đổi."},
	"deleted":   {NoticeSuccess, "Đã xóa bản ghi."},
	"imported":  {NoticeSuccess, "Dữ liệu đã được nhập thành công!"},
	"reset":     {NoticeSuccess, "Dữ liệu đã được đặt lại về mặc định!"},
}

var (
	noticeImportFailed = Notice{NoticeError, "Có lỗi xảy ra khi nhập dữ liệu. Vui lòng kiểm tra file và thử lại."}
	noticeSaveFailed   = Notice{NoticeError, "Không thể lưu dữ liệu. Thay đổi chỉ có hiệu lực đến khi khởi động lại."}
	noticeNotFound     = Notice{NoticeError, "Không tìm thấy bản ghi."}
)

// redirectWithNotice answers a form post with 303 See Other so a reload
// does not resubmit it.
func redirectWithNotice(w http.ResponseWriter, r *http.Request, path, notice string) {
	target := path
	if notice != "" {
		target += "?notice=" + url.QueryEscape(notice)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func noticeFromRequest(r *http.Request) *Notice {
	n, ok := redirectNotices[r.URL.Query().Get("notice")]
	if !ok {
		return nil
	}
	return &n
}

type categoryOption struct {
	Value    string
	Label    string
	Selected bool
}

type fieldView struct {
	Name  string
	Value string
}

type recordView struct {
	Category      string
	CategoryLabel string
	ID            string
	Fields        []fieldView
	EditURL       string
	DeleteURL     string
}

type categoryGroup struct {
	Value   string
	Label   string
	Records []recordView
}

type pageData struct {
	Title      string
	Active     string
	Notice     *Notice
	Categories []categoryOption
	Version    uint64
	Total      int

	// lookup
	Query    string
	Searched bool
	Results  []recordView

	// entry
	EntryRows []int
	Form      *entryForm

	// manage
	Groups []categoryGroup
}

// entryForm echoes a rejected submission back into the form.
type entryForm struct {
	ID     string
	Fields []fieldView
}

func categoryOptions(selected core.Category) []categoryOption {
	cats := core.Categories()
	out := make([]categoryOption, len(cats))
	for i, c := range cats {
		out[i] = categoryOption{Value: string(c), Label: c.Label(), Selected: c == selected}
	}
	return out
}

func newRecordView(c core.Category, r core.Record) recordView {
	keys := r.Keys()
	fields := make([]fieldView, len(keys))
	for i, k := range keys {
		fields[i] = fieldView{Name: k, Value: r.FieldString(k)}
	}
	path := recordPath(c, r.ID)
	return recordView{
		Category:      string(c),
		CategoryLabel: c.Label(),
		ID:            r.ID,
		Fields:        fields,
		EditURL:       path,
		DeleteURL:     path + "/delete",
	}
}

func hitViews(hits []core.Hit) []recordView {
	out := make([]recordView, len(hits))
	for i, h := range hits {
		out[i] = newRecordView(h.Category, h.Record)
	}
	return out
}

func categoryGroups(s core.Store) []categoryGroup {
	cats := core.Categories()
	out := make([]categoryGroup, len(cats))
	for i, c := range cats {
		records := s.Records(c)
		views := make([]recordView, len(records))
		for j, r := range records {
			views[j] = newRecordView(c, r)
		}
		out[i] = categoryGroup{Value: string(c), Label: c.Label(), Records: views}
	}
	return out
}
