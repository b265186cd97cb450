package service

import (
	"context"
	"strings"

	"github.com/hissa/hissa/internal/repository"
	apperrors "github.com/hissa/hissa/pkg/errors"
	"github.com/hissa/hissa/pkg/logger"
	"github.com/hissa/hissa/pkg/model"
	"github.com/hissa/hissa/pkg/stats"
)

// Fairness 课时分布公平性
func (s *SubstituteService) Fairness(ctx context.Context, scope Scope) (*stats.FairnessMetrics, error) {
	set, err := s.approved(ctx, scope)
	if err != nil {
		return nil, err
	}
	metrics := stats.ComputeFairness(stats.BuildTeacherStats(set))
	s.metrics.SetFairnessIndex(scope.SchoolID, metrics.Index)
	return &metrics, nil
}

// Workload 教师课时、科目分布与每日课时
func (s *SubstituteService) Workload(ctx context.Context, scope Scope) (*stats.WorkloadReport, error) {
	set, err := s.approved(ctx, scope)
	if err != nil {
		return nil, err
	}
	report := stats.NewWorkloadAnalyzer().Analyze(set)
	s.metrics.SetFairnessIndex(scope.SchoolID, report.Fairness.Index)
	return report, nil
}

// OverviewReport 总览
type OverviewReport struct {
	stats.Overview
	Coverage *stats.CoverageMetrics `json:"coverage"`
}

// Overview 课表与缺勤总览
func (s *SubstituteService) Overview(ctx context.Context, scope Scope) (*OverviewReport, error) {
	all, err := s.schedules.List(ctx, repository.ScheduleFilter{SchoolID: scope.SchoolID})
	if err != nil {
		return nil, err
	}
	absences, err := s.absences.List(ctx, repository.AbsenceFilter{SchoolID: scope.SchoolID})
	if err != nil {
		return nil, err
	}

	coverage := stats.NewCoverageAnalyzer().Analyze(absences, all.Approved())
	s.metrics.SetCoverageRate(scope.SchoolID, coverage.OverallCoverage)
	return &OverviewReport{
		Overview: stats.BuildOverview(all, absences),
		Coverage: coverage,
	}, nil
}

// ListAbsences 查询范围内缺勤记录
func (s *SubstituteService) ListAbsences(ctx context.Context, scope Scope, filter repository.AbsenceFilter) ([]*model.Absence, error) {
	if scope.SchoolID != "" {
		filter.SchoolID = scope.SchoolID
	}
	return s.absences.List(ctx, filter)
}

// IncidentInput 一次缺勤事件
type IncidentInput struct {
	TeacherID   string
	Date        string
	Periods     []int
	Substitutes map[int]string // 节次 -> 代课教师，可缺省
	SchoolID    string         // 仅全校范围调用方可指定
}

// IncidentResult 记录结果
type IncidentResult struct {
	Absences  []*model.Absence `json:"absences"`
	Uncovered []int            `json:"uncovered"`
}

// RecordIncident 为缺勤事件的每一节写入一条记录
func (s *SubstituteService) RecordIncident(ctx context.Context, scope Scope, in IncidentInput) (*IncidentResult, error) {
	schoolID := in.SchoolID
	if scope.SchoolID != "" {
		schoolID = scope.SchoolID
	}
	if schoolID == "" {
		// 未指定学校时取教师所在课表的学校
		set, err := s.approved(ctx, scope)
		if err != nil {
			return nil, err
		}
		if _, home := set.Locate(in.TeacherID); home != nil {
			schoolID = home.SchoolID
		}
	}

	periods := uniquePeriods(in.Periods)
	if len(periods) == 0 {
		return nil, apperrors.InvalidInput("periods", "至少需要一个节次")
	}

	result := &IncidentResult{
		Absences:  make([]*model.Absence, 0, len(periods)),
		Uncovered: []int{},
	}
	for _, p := range periods {
		sub := strings.TrimSpace(in.Substitutes[p])
		a := model.NewAbsence(in.TeacherID, in.Date, []int{p}, sub, schoolID)
		if err := a.Validate(); err != nil {
			return nil, err
		}
		if !a.HasSubstitute() {
			result.Uncovered = append(result.Uncovered, p)
		}
		result.Absences = append(result.Absences, a)
	}

	if err := s.absences.Create(ctx, result.Absences...); err != nil {
		return nil, err
	}

	logger.WithContext(ctx).Info().
		Str("teacher_id", in.TeacherID).
		Str("date", in.Date).
		Ints("periods", periods).
		Int("uncovered", len(result.Uncovered)).
		Msg("记录缺勤")
	return result, nil
}

func uniquePeriods(periods []int) []int {
	seen := make(map[int]bool, len(periods))
	result := make([]int, 0, len(periods))
	for _, p := range periods {
		if seen[p] {
			continue
		}
		seen[p] = true
		result = append(result, p)
	}
	return result
}

// absenceInScope 读取记录并校验范围，范围外按不存在处理
func (s *SubstituteService) absenceInScope(ctx context.Context, scope Scope, id string) (*model.Absence, error) {
	a, err := s.absences.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !scope.Allows(a.SchoolID) {
		return nil, apperrors.AbsenceNotFound(id)
	}
	return a, nil
}

// UpdateSubstitute 设置或清除代课教师
func (s *SubstituteService) UpdateSubstitute(ctx context.Context, scope Scope, id, substituteID string) (*model.Absence, error) {
	a, err := s.absenceInScope(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	substituteID = strings.TrimSpace(substituteID)
	if substituteID != "" && substituteID == a.TeacherID {
		return nil, apperrors.InvalidInput("substitute_id", "代课教师不能是缺勤教师本人")
	}
	if err := s.absences.UpdateSubstitute(ctx, id, substituteID); err != nil {
		return nil, err
	}
	a.SubstituteID = substituteID
	return a, nil
}

// DeleteAbsence 删除缺勤记录
func (s *SubstituteService) DeleteAbsence(ctx context.Context, scope Scope, id string) error {
	if _, err := s.absenceInScope(ctx, scope, id); err != nil {
		return err
	}
	return s.absences.Delete(ctx, id)
}

// PurgeOrphans 删除缺勤教师或代课教师不在已批准课表中的记录
// 没有任何已批准课表时不删除
func (s *SubstituteService) PurgeOrphans(ctx context.Context, scope Scope) (int, error) {
	set, err := s.approved(ctx, scope)
	if err != nil {
		return 0, err
	}
	if len(set) == 0 {
		return 0, nil
	}
	absences, err := s.absences.List(ctx, repository.AbsenceFilter{SchoolID: scope.SchoolID})
	if err != nil {
		return 0, err
	}

	var ids []string
	for _, a := range absences {
		if set.FindTeacher(a.TeacherID) == nil ||
			(a.HasSubstitute() && set.FindTeacher(a.SubstituteID) == nil) {
			ids = append(ids, a.ID)
		}
	}
	n, err := s.absences.DeleteMany(ctx, ids)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.WithContext(ctx).Info().Int("deleted", n).Msg("清理未知教师的缺勤记录")
	}
	return n, nil
}

// SaveSchedule 保存课表，变更后清除快照缓存
func (s *SubstituteService) SaveSchedule(ctx context.Context, scope Scope, schedule *model.Schedule) error {
	if scope.SchoolID != "" {
		if schedule.ID != "" {
			existing, err := s.schedules.GetByID(ctx, schedule.ID)
			if err != nil && !apperrors.Is(err, apperrors.CodeScheduleNotFound) {
				return err
			}
			if existing != nil && existing.SchoolID != scope.SchoolID {
				return apperrors.ScheduleNotFound(schedule.ID)
			}
		}
		schedule.SchoolID = scope.SchoolID
	}
	if strings.TrimSpace(schedule.Name) == "" {
		return apperrors.InvalidInput("name", "不能为空")
	}
	for _, slot := range schedule.Slots {
		if !slot.Day.Valid() {
			return apperrors.InvalidDay(string(slot.Day))
		}
		if slot.Period < 1 {
			return apperrors.InvalidPeriod(slot.Period, slot.Period)
		}
	}

	if err := s.schedules.Save(ctx, schedule); err != nil {
		return err
	}
	s.cache.Invalidate(schedule.SchoolID)
	return nil
}

// ListSchedules 查询范围内课表
func (s *SubstituteService) ListSchedules(ctx context.Context, scope Scope, approvedOnly bool) (model.ScheduleSet, error) {
	return s.schedules.List(ctx, repository.ScheduleFilter{SchoolID: scope.SchoolID, ApprovedOnly: approvedOnly})
}

// GetSchedule 读取课表
func (s *SubstituteService) GetSchedule(ctx context.Context, scope Scope, id string) (*model.Schedule, error) {
	schedule, err := s.schedules.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !scope.Allows(schedule.SchoolID) {
		return nil, apperrors.ScheduleNotFound(id)
	}
	return schedule, nil
}

// SetApproved 批准或撤销批准课表
func (s *SubstituteService) SetApproved(ctx context.Context, scope Scope, id string, approved bool) (*model.Schedule, error) {
	schedule, err := s.GetSchedule(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	at := s.now().UTC()
	if err := s.schedules.SetApproved(ctx, id, approved, at); err != nil {
		return nil, err
	}
	if approved {
		schedule.Approve(at)
	} else {
		schedule.Unapprove()
	}
	s.cache.Invalidate(schedule.SchoolID)

	logger.WithContext(ctx).Info().
		Str("schedule_id", id).
		Bool("approved", approved).
		Msg("课表批准状态变更")
	return schedule, nil
}
