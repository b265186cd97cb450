package handler

import "net/http"

// Fairness 代课分配公平性
func (h *Handler) Fairness(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.svc.Fairness(r.Context(), h.scope(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, metrics)
}

// Workload 课时负荷统计
func (h *Handler) Workload(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Workload(r.Context(), h.scope(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, report)
}

// Overview 总览
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.svc.Overview(r.Context(), h.scope(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, ov)
}
