package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hissa/hissa/internal/repository"
	apperrors "github.com/hissa/hissa/pkg/errors"
	"github.com/hissa/hissa/pkg/model"
	"github.com/hissa/hissa/pkg/stats"
)

func TestRecordIncident(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	res, err := f.svc.RecordIncident(ctx, Scope{SchoolID: "sch-1"}, IncidentInput{
		TeacherID:   "s_a",
		Date:        "2024-09-02",
		Periods:     []int{3, 3, 4},
		Substitutes: map[int]string{3: "s_b"},
		SchoolID:    "sch-9",
	})
	require.NoError(t, err)
	require.Len(t, res.Absences, 2)
	assert.Equal(t, []int{4}, res.Uncovered)
	assert.Equal(t, "sch-1", res.Absences[0].SchoolID)
	assert.Equal(t, []int{3}, res.Absences[0].Periods)
	assert.Equal(t, "s_b", res.Absences[0].SubstituteID)

	list, err := f.svc.ListAbsences(ctx, Scope{SchoolID: "sch-1"}, repository.AbsenceFilter{Date: "2024-09-02"})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestRecordIncident_Invalid(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.RecordIncident(ctx, all, IncidentInput{TeacherID: "s_a", Date: "2024-09-02"})
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidInput))

	_, err = f.svc.RecordIncident(ctx, all, IncidentInput{TeacherID: "s_a", Date: "02/09/2024", Periods: []int{1}})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidationFail))

	_, err = f.svc.RecordIncident(ctx, all, IncidentInput{
		TeacherID:   "s_a",
		Date:        "2024-09-02",
		Periods:     []int{1},
		Substitutes: map[int]string{1: "s_a"},
	})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidationFail))

	list, err := f.svc.ListAbsences(ctx, all, repository.AbsenceFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpdateSubstitute(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	a := model.NewAbsence("s_a", "2024-09-02", []int{3}, "", "sch-1")
	require.NoError(t, f.absences.Create(ctx, a))

	updated, err := f.svc.UpdateSubstitute(ctx, all, a.ID, "s_c")
	require.NoError(t, err)
	assert.Equal(t, "s_c", updated.SubstituteID)

	updated, err = f.svc.UpdateSubstitute(ctx, all, a.ID, "")
	require.NoError(t, err)
	assert.Empty(t, updated.SubstituteID)

	_, err = f.svc.UpdateSubstitute(ctx, all, a.ID, "s_a")
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidInput))

	_, err = f.svc.UpdateSubstitute(ctx, Scope{SchoolID: "sch-2"}, a.ID, "s_c")
	assert.True(t, apperrors.Is(err, apperrors.CodeAbsenceNotFound))

	_, err = f.svc.UpdateSubstitute(ctx, all, "missing", "s_c")
	assert.True(t, apperrors.Is(err, apperrors.CodeAbsenceNotFound))
}

func TestDeleteAbsence(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	a := model.NewAbsence("s_a", "2024-09-02", []int{3}, "", "sch-1")
	require.NoError(t, f.absences.Create(ctx, a))

	err := f.svc.DeleteAbsence(ctx, Scope{SchoolID: "sch-2"}, a.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeAbsenceNotFound))

	require.NoError(t, f.svc.DeleteAbsence(ctx, Scope{SchoolID: "sch-1"}, a.ID))
	_, err = f.absences.GetByID(ctx, a.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeAbsenceNotFound))
}

func TestPurgeOrphans(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	valid := model.NewAbsence("s_a", "2024-09-02", []int{3}, "s_b", "sch-1")
	byOriginal := model.NewAbsence("a", "2024-09-02", []int{4}, "", "sch-1")
	ghostTeacher := model.NewAbsence("ghost", "2024-09-02", []int{1}, "", "sch-1")
	ghostSub := model.NewAbsence("s_c", "2024-09-02", []int{2}, "ghost", "sch-1")
	require.NoError(t, f.absences.Create(ctx, valid, byOriginal, ghostTeacher, ghostSub))

	n, err := f.svc.PurgeOrphans(ctx, all)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := f.absences.List(ctx, repository.AbsenceFilter{})
	require.NoError(t, err)
	ids := []string{list[0].ID, list[1].ID}
	assert.ElementsMatch(t, []string{valid.ID, byOriginal.ID}, ids)
}

func TestPurgeOrphans_NoSchedule(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	require.NoError(t, f.absences.Create(ctx, model.NewAbsence("ghost", "2024-09-02", []int{1}, "", "sch-1")))

	n, err := f.svc.PurgeOrphans(ctx, all)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFairnessAndWorkload(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	fair, err := f.svc.Fairness(ctx, Scope{SchoolID: "sch-1"})
	require.NoError(t, err)
	assert.Equal(t, 4, fair.Count)
	assert.InDelta(t, 1.25, fair.Mean, 1e-9)
	assert.GreaterOrEqual(t, fair.Index, 0.0)
	assert.LessOrEqual(t, fair.Index, 100.0)
	assert.Equal(t, fair.Index, f.rec.fairness["sch-1"])

	report, err := f.svc.Workload(ctx, all)
	require.NoError(t, err)
	assert.Equal(t, 5, report.TotalPeriods)
	assert.Equal(t, 4, report.Daily[model.Monday])
	assert.Equal(t, 1, report.Daily[model.Sunday])
}

func TestFairness_Empty(t *testing.T) {
	f := newFixture(t, false)

	fair, err := f.svc.Fairness(context.Background(), all)
	require.NoError(t, err)
	assert.Zero(t, fair.Index)
	assert.Equal(t, stats.BandUnknown, fair.Band)
}

func TestOverview(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.schedules.Save(ctx, &model.Schedule{Name: "مسودة", SchoolID: "sch-1"}))
	require.NoError(t, f.absences.Create(ctx,
		model.NewAbsence("s_a", "2024-09-02", []int{3}, "s_b", "sch-1"),
		model.NewAbsence("s_a", "2024-09-02", []int{4}, "", "sch-1"),
	))

	ov, err := f.svc.Overview(ctx, Scope{SchoolID: "sch-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, ov.TotalSchedules)
	assert.Equal(t, 1, ov.ApprovedSchedules)
	assert.Equal(t, 1, ov.UnapprovedSchedules)
	assert.Equal(t, 4, ov.Teachers)
	assert.Equal(t, 2, ov.Absences)
	assert.InDelta(t, 50.0, ov.Coverage.OverallCoverage, 1e-9)
	assert.InDelta(t, 50.0, f.rec.coverage["sch-1"], 1e-9)
}

func TestSaveSchedule(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	s := &model.Schedule{
		Name:     "جديد",
		SchoolID: "sch-9",
		Slots:    []model.ScheduleSlot{slot(model.Tuesday, 1, "a", "m", "7a")},
	}
	require.NoError(t, f.svc.SaveSchedule(ctx, Scope{SchoolID: "sch-1"}, s))
	assert.Equal(t, "sch-1", s.SchoolID)
	assert.NotEmpty(t, s.ID)

	err := f.svc.SaveSchedule(ctx, all, &model.Schedule{Name: " "})
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidInput))

	err = f.svc.SaveSchedule(ctx, all, &model.Schedule{Name: "x", Slots: []model.ScheduleSlot{slot("6", 1, "a", "m", "7a")}})
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidDay))

	err = f.svc.SaveSchedule(ctx, all, &model.Schedule{Name: "x", Slots: []model.ScheduleSlot{slot(model.Sunday, 0, "a", "m", "7a")}})
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidPeriod))

	// 其他学校的课表不可覆盖
	err = f.svc.SaveSchedule(ctx, Scope{SchoolID: "sch-2"}, &model.Schedule{BaseModel: model.BaseModel{ID: "sc-1"}, Name: "x"})
	assert.True(t, apperrors.Is(err, apperrors.CodeScheduleNotFound))
}

func TestSetApproved_Scope(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.SetApproved(ctx, Scope{SchoolID: "sch-2"}, "sc-1", false)
	assert.True(t, apperrors.Is(err, apperrors.CodeScheduleNotFound))

	s, err := f.svc.SetApproved(ctx, Scope{SchoolID: "sch-1"}, "sc-1", false)
	require.NoError(t, err)
	assert.False(t, s.Approved)

	s, err = f.svc.SetApproved(ctx, all, "sc-1", true)
	require.NoError(t, err)
	assert.True(t, s.Approved)
	assert.NotNil(t, s.ApprovedAt)

	list, err := f.svc.ListSchedules(ctx, all, true)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
