package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hissa/hissa/internal/repository"
	"github.com/hissa/hissa/internal/service"
)

// IncidentRequest 缺勤事件
type IncidentRequest struct {
	TeacherID   string         `json:"teacher_id" validate:"required"`
	Date        string         `json:"date" validate:"required,datetime=2006-01-02"`
	Periods     []int          `json:"periods" validate:"required,min=1,dive,min=1"`
	Substitutes map[int]string `json:"substitutes,omitempty"` // 节次 -> 代课教师
	SchoolID    string         `json:"school_id,omitempty"`
}

// UpdateSubstituteRequest 更换代课教师，为空表示撤销
type UpdateSubstituteRequest struct {
	SubstituteID string `json:"substitute_id"`
}

// ListAbsences 缺勤记录列表
func (h *Handler) ListAbsences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.svc.ListAbsences(r.Context(), h.scope(r), repository.AbsenceFilter{
		Date:      q.Get("date"),
		TeacherID: q.Get("teacher_id"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, list)
}

// RecordIncident 记录缺勤事件
func (h *Handler) RecordIncident(w http.ResponseWriter, r *http.Request) {
	var req IncidentRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.svc.RecordIncident(r.Context(), h.scope(r), service.IncidentInput{
		TeacherID:   req.TeacherID,
		Date:        req.Date,
		Periods:     req.Periods,
		Substitutes: req.Substitutes,
		SchoolID:    req.SchoolID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, r, result)
}

// UpdateSubstitute 更换代课教师
func (h *Handler) UpdateSubstitute(w http.ResponseWriter, r *http.Request) {
	var req UpdateSubstituteRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	absence, err := h.svc.UpdateSubstitute(r.Context(), h.scope(r), chi.URLParam(r, "id"), req.SubstituteID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, absence)
}

// DeleteAbsence 删除缺勤记录
func (h *Handler) DeleteAbsence(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.DeleteAbsence(r.Context(), h.scope(r), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, map[string]string{"id": id})
}

// PurgeOrphans 清理引用已不存在教师的记录
func (h *Handler) PurgeOrphans(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.PurgeOrphans(r.Context(), h.scope(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, map[string]int{"deleted": n})
}
