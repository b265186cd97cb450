package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hissa/hissa/internal/metrics"
	"github.com/hissa/hissa/internal/middleware"
	"github.com/hissa/hissa/internal/repository"
	"github.com/hissa/hissa/internal/security"
	"github.com/hissa/hissa/internal/service"
	"github.com/hissa/hissa/pkg/model"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code   string                 `json:"code"`
		Fields map[string]interface{} `json:"fields"`
	} `json:"error"`
}

func testSchedule() *model.Schedule {
	teacher := func(key, name, subject string) model.Teacher {
		return model.Teacher{
			TeacherRef: model.TeacherRef{ID: "s_" + key, OriginalID: key},
			Name:       name,
			Subject:    subject,
			SchoolID:   "sch-1",
		}
	}
	slot := func(day model.Day, period int, teacher, subject, class string) model.ScheduleSlot {
		return model.ScheduleSlot{Day: day, Period: period, TeacherID: teacher, SubjectGradeID: subject, ClassID: class}
	}
	return &model.Schedule{
		BaseModel: model.BaseModel{ID: "sc-1"},
		Name:      "الفصل الأول",
		SchoolID:  "sch-1",
		Approved:  true,
		Teachers: []model.Teacher{
			teacher("a", "أحمد", "Math"),
			teacher("b", "بلال", "Math"),
			teacher("c", "خالد", "Science"),
			teacher("d", "داود", "Arabic"),
		},
		Subjects: []model.Subject{
			{ID: "s_m", OriginalID: "m", Name: "Math"},
			{ID: "s_s", OriginalID: "s", Name: "Science"},
			{ID: "s_ar", OriginalID: "ar", Name: "Arabic"},
		},
		Classes: []model.Class{
			{ID: "s_7a", OriginalID: "7a", Name: "7/A"},
			{ID: "s_7b", OriginalID: "7b", Name: "7/B"},
			{ID: "s_8a", OriginalID: "8a", Name: "8/A"},
		},
		Days: model.Days,
		Slots: []model.ScheduleSlot{
			slot(model.Monday, 3, "a", "m", "7a"),
			slot(model.Sunday, 1, "b", "m", "7b"),
			slot(model.Monday, 2, "c", "s", "8a"),
			slot(model.Monday, 4, "c", "s", "8a"),
			slot(model.Monday, 3, "d", "ar", "8a"),
		},
	}
}

func newTestHandler(t *testing.T, auth *middleware.Authenticator) *Handler {
	t.Helper()
	schedules := repository.NewMemoryScheduleRepository()
	require.NoError(t, schedules.Save(context.Background(), testSchedule()))

	reg := metrics.NewRegistry()
	svc := service.NewSubstituteService(service.Deps{
		Schedules: schedules,
		Absences:  repository.NewMemoryAbsenceRepository(),
		Metrics:   reg,
	})
	h, err := NewHandler(Options{
		Service:       svc,
		Authenticator: auth,
		Recorder:      reg.RecordRequest,
		Metrics:       reg.Handler(),
		Build:         BuildInfo{Version: "test"},
	})
	require.NoError(t, err)
	return h
}

func call(t *testing.T, h http.Handler, method, path string, body interface{}, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestSystemEndpoints(t *testing.T) {
	h := newTestHandler(t, nil)

	rec, _ := call(t, h, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = call(t, h, http.MethodGet, "/version", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"test"`)

	rec, _ = call(t, h, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	rec, env := call(t, h, http.MethodGet, "/api/v1/nothing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/substitutes/rank", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestBusyTeachers(t *testing.T) {
	h := newTestHandler(t, nil)

	rec, env := call(t, h, http.MethodGet, "/api/v1/availability/busy?day=2&from=2&to=3", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var busy struct {
		Teachers []string `json:"teachers"`
		Count    int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &busy))
	assert.Equal(t, []string{"a", "c", "d"}, busy.Teachers)
	assert.Equal(t, 3, busy.Count)

	rec, env = call(t, h, http.MethodGet, "/api/v1/availability/busy?day=9&from=1", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_DAY", env.Error.Code)

	rec, env = call(t, h, http.MethodGet, "/api/v1/availability/busy?day=2&from=3&to=1", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PERIOD", env.Error.Code)

	rec, env = call(t, h, http.MethodGet, "/api/v1/availability/busy?day=2&from=x", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", env.Error.Code)
}

func TestRankSubstitutes(t *testing.T) {
	h := newTestHandler(t, nil)

	rec, env := call(t, h, http.MethodPost, "/api/v1/substitutes/rank", map[string]interface{}{
		"teacher_id": "s_a",
		"day":        "2",
		"period":     3,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Status     string `json:"status"`
		BusyCount  int    `json:"busy_count"`
		Candidates []struct {
			TeacherID string `json:"teacher_id"`
			Rank      int    `json:"rank"`
		} `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, 1, result.BusyCount)
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "s_b", result.Candidates[0].TeacherID)
	assert.Equal(t, 1, result.Candidates[0].Rank)

	// 仅同科
	_, env = call(t, h, http.MethodPost, "/api/v1/substitutes/rank", map[string]interface{}{
		"teacher_id": "s_a",
		"day":        "2",
		"period":     3,
		"filter":     "subject",
	}, "")
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "s_b", result.Candidates[0].TeacherID)

	_, env = call(t, h, http.MethodPost, "/api/v1/substitutes/rank", map[string]interface{}{
		"teacher_id": "ghost",
		"day":        "2",
		"period":     3,
	}, "")
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "teacher_not_found", result.Status)
}

func TestRankSubstitutes_Invalid(t *testing.T) {
	h := newTestHandler(t, nil)

	tests := []struct {
		name     string
		body     interface{}
		expected string
		field    string
	}{
		{"缺少教师", map[string]interface{}{"day": "2", "period": 3}, "VALIDATION_FAILED", "teacher_id"},
		{"节次为零", map[string]interface{}{"teacher_id": "s_a", "day": "2", "period": 0}, "VALIDATION_FAILED", "period"},
		{"结束节次过小", map[string]interface{}{"teacher_id": "s_a", "day": "2", "period": 3, "period_to": 2}, "VALIDATION_FAILED", "period_to"},
		{"未知过滤", map[string]interface{}{"teacher_id": "s_a", "day": "2", "period": 3, "filter": "x"}, "VALIDATION_FAILED", "filter"},
		{"未知教学日", map[string]interface{}{"teacher_id": "s_a", "day": "7", "period": 3}, "INVALID_DAY", ""},
		{"未知策略", map[string]interface{}{"teacher_id": "s_a", "day": "2", "period": 3, "strategy": "x"}, "INVALID_INPUT", ""},
		{"格式错误", "not-an-object", "INVALID_INPUT", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := call(t, h, http.MethodPost, "/api/v1/substitutes/rank", tt.body, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.expected, env.Error.Code)
			if tt.field != "" {
				assert.Contains(t, env.Error.Fields, tt.field)
			}
		})
	}
}

func TestSmartAssign(t *testing.T) {
	h := newTestHandler(t, nil)

	rec, env := call(t, h, http.MethodPost, "/api/v1/substitutes/smart-assign", map[string]interface{}{
		"teacher_id": "s_c",
		"day":        "2",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var plan struct {
		Picks []struct {
			Period int `json:"period"`
		} `json:"picks"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &plan))
	require.Len(t, plan.Picks, 2)
	assert.Equal(t, 2, plan.Picks[0].Period)
	assert.Equal(t, 4, plan.Picks[1].Period)
}

func TestConflictsAndPeriods(t *testing.T) {
	h := newTestHandler(t, nil)

	rec, env := call(t, h, http.MethodGet, "/api/v1/conflicts?teacher_id=s_c&day=2&period=3", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var report struct {
		Warnings []string `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Len(t, report.Warnings, 3)

	rec, env = call(t, h, http.MethodGet, "/api/v1/conflicts?teacher_id=ghost&day=2&period=3", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "TEACHER_NOT_FOUND", env.Error.Code)

	rec, env = call(t, h, http.MethodGet, "/api/v1/conflicts?teacher_id=s_c&day=2", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PERIOD", env.Error.Code)

	rec, env = call(t, h, http.MethodGet, "/api/v1/teachers/s_c/periods?day=2", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var periods []struct {
		Period int `json:"period"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &periods))
	assert.Len(t, periods, 2)
}

func TestAbsenceLifecycle(t *testing.T) {
	h := newTestHandler(t, nil)

	rec, env := call(t, h, http.MethodPost, "/api/v1/absences", map[string]interface{}{
		"teacher_id":  "s_a",
		"date":        "2024-09-02",
		"periods":     []int{3, 4},
		"substitutes": map[string]string{"3": "s_b"},
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Absences  []model.Absence `json:"absences"`
		Uncovered []int           `json:"uncovered"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Len(t, created.Absences, 2)
	assert.Equal(t, []int{4}, created.Uncovered)

	rec, env = call(t, h, http.MethodGet, "/api/v1/absences?date=2024-09-02", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Absence
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 2)

	id := created.Absences[1].ID
	rec, env = call(t, h, http.MethodPatch, "/api/v1/absences/"+id+"/substitute", map[string]string{"substitute_id": "s_c"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var updated model.Absence
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, "s_c", updated.SubstituteID)

	rec, _ = call(t, h, http.MethodDelete, "/api/v1/absences/"+id, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = call(t, h, http.MethodDelete, "/api/v1/absences/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ABSENCE_NOT_FOUND", env.Error.Code)

	rec, env = call(t, h, http.MethodPost, "/api/v1/absences", map[string]interface{}{
		"teacher_id": "s_a",
		"date":       "02/09/2024",
		"periods":    []int{1},
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Contains(t, env.Error.Fields, "date")
}

func TestPurgeOrphans(t *testing.T) {
	h := newTestHandler(t, nil)

	_, _ = call(t, h, http.MethodPost, "/api/v1/absences", map[string]interface{}{
		"teacher_id": "ghost",
		"date":       "2024-09-02",
		"periods":    []int{1, 2},
	}, "")

	rec, env := call(t, h, http.MethodDelete, "/api/v1/absences/orphans", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":2}`, string(env.Data))
}

func TestSchedulesAndStats(t *testing.T) {
	h := newTestHandler(t, nil)

	rec, env := call(t, h, http.MethodGet, "/api/v1/stats/fairness", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var fair struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &fair))
	assert.Equal(t, 4, fair.Count)

	rec, _ = call(t, h, http.MethodGet, "/api/v1/stats/workload", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = call(t, h, http.MethodGet, "/api/v1/stats/overview", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = call(t, h, http.MethodPost, "/api/v1/schedules/sc-1/unapprove", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var s model.Schedule
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.False(t, s.Approved)

	// 撤销批准后不再有可用数据
	_, env = call(t, h, http.MethodGet, "/api/v1/availability/busy?day=2&from=3", nil, "")
	assert.Contains(t, string(env.Data), `"no_approved_schedule":true`)

	rec, env = call(t, h, http.MethodPost, "/api/v1/schedules/missing/approve", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SCHEDULE_NOT_FOUND", env.Error.Code)

	rec, env = call(t, h, http.MethodPost, "/api/v1/schedules", map[string]interface{}{
		"name":      "مسودة",
		"school_id": "sch-1",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.NotEmpty(t, s.ID)

	rec, env = call(t, h, http.MethodGet, "/api/v1/schedules", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Schedule
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 2)

	rec, _ = call(t, h, http.MethodGet, "/api/v1/schedules/"+s.ID, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthAndScope(t *testing.T) {
	tokens := security.NewTokenManager("secret", "hissa")
	h := newTestHandler(t, middleware.NewAuthenticator(tokens, true))

	issue := func(role security.Role, school string) string {
		tok, err := tokens.Issue(security.Principal{Subject: "u-" + string(role) + school, Role: role, SchoolID: school}, time.Hour)
		require.NoError(t, err)
		return tok
	}
	teacher := issue(security.RoleTeacher, "sch-1")
	otherDirector := issue(security.RoleDirector, "sch-2")
	admin := issue(security.RoleAdmin, "")

	rec, _ := call(t, h, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := call(t, h, http.MethodGet, "/api/v1/teachers", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	countTeachers := func(token, query string) int {
		rec, env := call(t, h, http.MethodGet, "/api/v1/teachers"+query, nil, token)
		require.Equal(t, http.StatusOK, rec.Code)
		var teachers []model.Teacher
		require.NoError(t, json.Unmarshal(env.Data, &teachers))
		return len(teachers)
	}
	assert.Equal(t, 4, countTeachers(teacher, ""))
	assert.Equal(t, 0, countTeachers(otherDirector, ""))
	// 非管理员无法通过参数切换学校
	assert.Equal(t, 0, countTeachers(otherDirector, "?school_id=sch-1"))
	assert.Equal(t, 4, countTeachers(admin, ""))
	assert.Equal(t, 0, countTeachers(admin, "?school_id=sch-2"))

	rec, env = call(t, h, http.MethodPost, "/api/v1/absences", map[string]interface{}{
		"teacher_id": "s_a",
		"date":       "2024-09-02",
		"periods":    []int{3},
	}, teacher)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	rec, _ = call(t, h, http.MethodPost, "/api/v1/substitutes/rank", map[string]interface{}{
		"teacher_id": "s_a",
		"day":        "2",
		"period":     3,
	}, teacher)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = call(t, h, http.MethodPost, "/api/v1/schedules/sc-1/unapprove", nil, otherDirector)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
