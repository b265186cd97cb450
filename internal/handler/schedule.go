package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hissa/hissa/pkg/model"
)

// ListSchedules 课表列表，approved=true 时只返回已批准课表
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	approvedOnly := r.URL.Query().Get("approved") == "true"
	list, err := h.svc.ListSchedules(r.Context(), h.scope(r), approvedOnly)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, list)
}

// GetSchedule 课表详情
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, err := h.svc.GetSchedule(r.Context(), h.scope(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, schedule)
}

// SaveSchedule 导入或覆盖课表
func (h *Handler) SaveSchedule(w http.ResponseWriter, r *http.Request) {
	var schedule model.Schedule
	if err := h.decode(r, &schedule); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.SaveSchedule(r.Context(), h.scope(r), &schedule); err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, r, &schedule)
}

// ApproveSchedule 批准课表
func (h *Handler) ApproveSchedule(w http.ResponseWriter, r *http.Request) {
	h.setApproved(w, r, true)
}

// UnapproveSchedule 撤销批准
func (h *Handler) UnapproveSchedule(w http.ResponseWriter, r *http.Request) {
	h.setApproved(w, r, false)
}

func (h *Handler) setApproved(w http.ResponseWriter, r *http.Request, approved bool) {
	schedule, err := h.svc.SetApproved(r.Context(), h.scope(r), chi.URLParam(r, "id"), approved)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, schedule)
}
