// Package service 组合仓储与推荐引擎，对外提供代课业务操作
package service

import (
	"context"
	"time"

	"github.com/hissa/hissa/internal/cache"
	"github.com/hissa/hissa/internal/repository"
	"github.com/hissa/hissa/pkg/availability"
	apperrors "github.com/hissa/hissa/pkg/errors"
	"github.com/hissa/hissa/pkg/logger"
	"github.com/hissa/hissa/pkg/model"
	"github.com/hissa/hissa/pkg/substitute"
	"github.com/hissa/hissa/pkg/validator"
)

// Scope 调用方可见的数据范围，SchoolID 为空表示全部学校
type Scope struct {
	SchoolID string
}

// Allows 记录是否在范围内
func (s Scope) Allows(schoolID string) bool {
	return s.SchoolID == "" || s.SchoolID == schoolID
}

// Recorder 业务指标记录
type Recorder interface {
	ObserveRanking(strategy, status string, candidates int, duration time.Duration)
	RecordCacheLookup(hit bool)
	SetFairnessIndex(schoolID string, index float64)
	SetCoverageRate(schoolID string, rate float64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRanking(string, string, int, time.Duration) {}
func (nopRecorder) RecordCacheLookup(bool)                            {}
func (nopRecorder) SetFairnessIndex(string, float64)                  {}
func (nopRecorder) SetCoverageRate(string, float64)                   {}

// Deps 服务依赖
type Deps struct {
	Schedules repository.ScheduleRepository
	Absences  repository.AbsenceRepository
	Cache     *cache.SnapshotCache
	Ranker    *substitute.Ranker
	Metrics   Recorder
}

// SubstituteService 代课业务服务
type SubstituteService struct {
	schedules repository.ScheduleRepository
	absences  repository.AbsenceRepository
	cache     *cache.SnapshotCache
	ranker    *substitute.Ranker
	detector  *validator.ConflictDetector
	metrics   Recorder
	now       func() time.Time
}

// NewSubstituteService 创建服务
func NewSubstituteService(d Deps) *SubstituteService {
	if d.Ranker == nil {
		d.Ranker = substitute.NewRanker(nil, substitute.DefaultOptions())
	}
	if d.Metrics == nil {
		d.Metrics = nopRecorder{}
	}
	return &SubstituteService{
		schedules: d.Schedules,
		absences:  d.Absences,
		cache:     d.Cache,
		ranker:    d.Ranker,
		detector:  validator.NewConflictDetector(validator.DefaultDetectorConfig()),
		metrics:   d.Metrics,
		now:       time.Now,
	}
}

// approved 读取范围内已批准课表，优先走缓存
func (s *SubstituteService) approved(ctx context.Context, scope Scope) (model.ScheduleSet, error) {
	if set, ok := s.cache.Get(scope.SchoolID); ok {
		s.metrics.RecordCacheLookup(true)
		return set, nil
	}
	s.metrics.RecordCacheLookup(false)

	set, err := s.schedules.List(ctx, repository.ScheduleFilter{SchoolID: scope.SchoolID, ApprovedOnly: true})
	if err != nil {
		return nil, err
	}
	s.cache.Set(scope.SchoolID, set)
	return set, nil
}

// snapshot 读取一次调用所需的一致数据
func (s *SubstituteService) snapshot(ctx context.Context, scope Scope) (*substitute.Snapshot, error) {
	set, err := s.approved(ctx, scope)
	if err != nil {
		return nil, err
	}
	absences, err := s.absences.List(ctx, repository.AbsenceFilter{SchoolID: scope.SchoolID})
	if err != nil {
		return nil, err
	}
	return substitute.NewSnapshot(set, absences), nil
}

// BusyResult 占用教师查询结果
type BusyResult struct {
	Day      model.Day               `json:"day"`
	DayName  string                  `json:"day_name"`
	From     int                     `json:"from"`
	To       int                     `json:"to"`
	Teachers availability.TeacherSet `json:"teachers"`
	Count    int                     `json:"count"`
	NoData   bool                    `json:"no_approved_schedule"`

	// 范围跨多所学校时按学校列出，Count 为各校之和
	BySchool map[string]availability.TeacherSet `json:"by_school,omitempty"`
}

// BusyTeachers 某教学日节次区间内有课的教师
func (s *SubstituteService) BusyTeachers(ctx context.Context, scope Scope, day model.Day, rng model.PeriodRange) (*BusyResult, error) {
	set, err := s.approved(ctx, scope)
	if err != nil {
		return nil, err
	}
	idx := availability.NewIndex(set)
	busy := idx.Busy(day, rng)
	result := &BusyResult{
		Day:      day,
		DayName:  day.Name(),
		From:     rng.From,
		To:       rng.To,
		Teachers: busy,
		Count:    busy.Len(),
		NoData:   idx.Empty(),
	}

	schools := idx.Schedules().Schools()
	if len(schools) > 1 {
		result.BySchool = make(map[string]availability.TeacherSet, len(schools))
		result.Count = 0
		for _, id := range schools {
			local := availability.BusyTeachers(idx.Schedules().ForSchool(id), day, rng)
			result.BySchool[id] = local
			result.Count += local.Len()
		}
	}
	return result, nil
}

// RankInput 推荐参数
type RankInput struct {
	TeacherID  string
	Day        model.Day
	Periods    model.PeriodRange
	Subject    string
	ExcludeIDs []string
	Strategy   string // 为空时使用默认策略
	Filter     substitute.Filter
}

// rankerFor 按名称切换策略
func (s *SubstituteService) rankerFor(name string) (*substitute.Ranker, error) {
	if name == "" || name == s.ranker.Strategy().Name() {
		return s.ranker, nil
	}
	strategy, err := substitute.StrategyByName(name)
	if err != nil {
		return nil, err
	}
	return s.ranker.WithStrategy(strategy), nil
}

// Rank 计算代课候选人
func (s *SubstituteService) Rank(ctx context.Context, scope Scope, in RankInput) (*substitute.Result, error) {
	ranker, err := s.rankerFor(in.Strategy)
	if err != nil {
		return nil, err
	}
	snap, err := s.snapshot(ctx, scope)
	if err != nil {
		return nil, err
	}

	start := s.now()
	result := ranker.Rank(snap, substitute.Request{
		AbsentTeacherID: in.TeacherID,
		Day:             in.Day,
		Periods:         in.Periods,
		Subject:         in.Subject,
		ExcludeIDs:      in.ExcludeIDs,
		Filter:          in.Filter,
	})
	s.metrics.ObserveRanking(result.Strategy, string(result.Status), len(result.Candidates), s.now().Sub(start))

	logger.WithContext(ctx).Debug().
		Str("teacher_id", in.TeacherID).
		Str("status", string(result.Status)).
		Int("candidates", len(result.Candidates)).
		Int("busy", result.BusyCount).
		Msg("代课推荐完成")
	return &result, nil
}

// AssignInput 一键安排参数
type AssignInput struct {
	TeacherID  string
	Day        model.Day
	Periods    []int // 为空时覆盖教师当天全部节次
	ExcludeIDs []string
	Strategy   string
}

// SmartAssign 一键为缺勤事件挑选代课教师
func (s *SubstituteService) SmartAssign(ctx context.Context, scope Scope, in AssignInput) (*substitute.Plan, error) {
	for _, p := range in.Periods {
		if p < 1 {
			return nil, apperrors.InvalidPeriod(p, p)
		}
	}
	ranker, err := s.rankerFor(in.Strategy)
	if err != nil {
		return nil, err
	}
	snap, err := s.snapshot(ctx, scope)
	if err != nil {
		return nil, err
	}

	plan := ranker.SmartAssign(snap, in.TeacherID, in.Day, in.Periods, in.ExcludeIDs)
	logger.WithContext(ctx).Info().
		Str("teacher_id", in.TeacherID).
		Str("day", string(in.Day)).
		Int("picks", len(plan.Picks)).
		Int("uncovered", len(plan.Uncovered)).
		Msg("一键安排代课")
	return &plan, nil
}

// ConflictReport 冲突检测结果
type ConflictReport struct {
	TeacherID string               `json:"teacher_id"`
	Day       model.Day            `json:"day"`
	Period    int                  `json:"period"`
	Warnings  []string             `json:"warnings"`
	Conflicts []validator.Conflict `json:"conflicts"`
}

// Conflicts 检测把教师安排到某节时的相邻节次负担
func (s *SubstituteService) Conflicts(ctx context.Context, scope Scope, teacherID string, day model.Day, period int) (*ConflictReport, error) {
	set, err := s.approved(ctx, scope)
	if err != nil {
		return nil, err
	}
	teacher, home := set.Locate(teacherID)
	if teacher == nil {
		return nil, apperrors.TeacherNotFound(teacherID)
	}

	idx := availability.NewIndex(set.ForSchool(home.SchoolID))
	conflicts := s.detector.Detect(idx, teacher.Key(), day, model.SinglePeriod(period))
	if conflicts == nil {
		conflicts = []validator.Conflict{}
	}
	return &ConflictReport{
		TeacherID: teacher.ID,
		Day:       day,
		Period:    period,
		Warnings:  validator.DetectConflicts(idx, teacher.Key(), day, period),
		Conflicts: conflicts,
	}, nil
}

// AbsentPeriods 教师某教学日的课程节次
func (s *SubstituteService) AbsentPeriods(ctx context.Context, scope Scope, teacherID string, day model.Day) ([]substitute.AbsentPeriod, error) {
	snap, err := s.snapshot(ctx, scope)
	if err != nil {
		return nil, err
	}
	periods, ok := substitute.AbsentPeriods(snap, teacherID, day)
	if !ok {
		return nil, apperrors.TeacherNotFound(teacherID)
	}
	return periods, nil
}

// Teachers 已批准课表中的教师池
func (s *SubstituteService) Teachers(ctx context.Context, scope Scope) ([]*model.Teacher, error) {
	set, err := s.approved(ctx, scope)
	if err != nil {
		return nil, err
	}
	return set.Teachers(), nil
}
