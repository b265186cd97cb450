package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hissa/hissa/internal/service"
	apperrors "github.com/hissa/hissa/pkg/errors"
	"github.com/hissa/hissa/pkg/model"
	"github.com/hissa/hissa/pkg/substitute"
)

// RankRequest 代课推荐请求
type RankRequest struct {
	TeacherID  string   `json:"teacher_id" validate:"required"`
	Day        string   `json:"day" validate:"required"`
	Period     int      `json:"period" validate:"required,min=1"`
	PeriodTo   int      `json:"period_to,omitempty" validate:"omitempty,gtefield=Period"` // 连续多节时的结束节次
	Subject    string   `json:"subject,omitempty"`
	ExcludeIDs []string `json:"exclude_ids,omitempty"`
	Strategy   string   `json:"strategy,omitempty"`
	Filter     string   `json:"filter,omitempty" validate:"omitempty,oneof=all subject grade"`
}

// SmartAssignRequest 一键安排请求
type SmartAssignRequest struct {
	TeacherID  string   `json:"teacher_id" validate:"required"`
	Day        string   `json:"day" validate:"required"`
	Periods    []int    `json:"periods,omitempty" validate:"omitempty,dive,min=1"`
	ExcludeIDs []string `json:"exclude_ids,omitempty"`
	Strategy   string   `json:"strategy,omitempty"`
}

// BusyTeachers 查询某教学日节次区间内有课的教师
func (h *Handler) BusyTeachers(w http.ResponseWriter, r *http.Request) {
	day, err := model.ParseDay(r.URL.Query().Get("day"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	from, err := queryInt(r, "from", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	to, err := queryInt(r, "to", from)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rng, err := model.NewPeriodRange(from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.svc.BusyTeachers(r.Context(), h.scope(r), day, rng)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, result)
}

// RankSubstitutes 计算代课候选人
func (h *Handler) RankSubstitutes(w http.ResponseWriter, r *http.Request) {
	var req RankRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	day, err := model.ParseDay(req.Day)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	to := req.PeriodTo
	if to == 0 {
		to = req.Period
	}
	rng, err := model.NewPeriodRange(req.Period, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.svc.Rank(r.Context(), h.scope(r), service.RankInput{
		TeacherID:  req.TeacherID,
		Day:        day,
		Periods:    rng,
		Subject:    req.Subject,
		ExcludeIDs: req.ExcludeIDs,
		Strategy:   req.Strategy,
		Filter:     substitute.Filter(req.Filter),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, result)
}

// SmartAssign 一键为缺勤事件挑选代课教师
func (h *Handler) SmartAssign(w http.ResponseWriter, r *http.Request) {
	var req SmartAssignRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	day, err := model.ParseDay(req.Day)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	plan, err := h.svc.SmartAssign(r.Context(), h.scope(r), service.AssignInput{
		TeacherID:  req.TeacherID,
		Day:        day,
		Periods:    req.Periods,
		ExcludeIDs: req.ExcludeIDs,
		Strategy:   req.Strategy,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, plan)
}

// DetectConflicts 检查教师在某节次前后的课务冲突
func (h *Handler) DetectConflicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	teacherID := q.Get("teacher_id")
	if teacherID == "" {
		h.fail(w, r, apperrors.InvalidInput("teacher_id", "不能为空"))
		return
	}
	day, err := model.ParseDay(q.Get("day"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	period, err := queryInt(r, "period", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if period < 1 {
		h.fail(w, r, apperrors.InvalidPeriod(period, period))
		return
	}

	report, err := h.svc.Conflicts(r.Context(), h.scope(r), teacherID, day, period)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, report)
}

// ListTeachers 已批准课表中的教师
func (h *Handler) ListTeachers(w http.ResponseWriter, r *http.Request) {
	teachers, err := h.svc.Teachers(r.Context(), h.scope(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, teachers)
}

// AbsentPeriods 教师某教学日的全部节次
func (h *Handler) AbsentPeriods(w http.ResponseWriter, r *http.Request) {
	day, err := model.ParseDay(r.URL.Query().Get("day"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	periods, err := h.svc.AbsentPeriods(r.Context(), h.scope(r), chi.URLParam(r, "id"), day)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, periods)
}
