package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/hissa/hissa/pkg/errors"
	"github.com/hissa/hissa/pkg/model"
)

// MemoryScheduleRepository 内存课表仓储，用于无数据库运行和测试
type MemoryScheduleRepository struct {
	mu    sync.RWMutex
	items map[string]*model.Schedule
	order []string
}

// NewMemoryScheduleRepository 创建内存课表仓储
func NewMemoryScheduleRepository() *MemoryScheduleRepository {
	return &MemoryScheduleRepository{items: make(map[string]*model.Schedule)}
}

// Save 保存课表
func (r *MemoryScheduleRepository) Save(_ context.Context, schedule *model.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if schedule.ID == "" {
		schedule.BaseModel = model.NewBaseModel()
	}
	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	if _, ok := r.items[schedule.ID]; !ok {
		r.order = append(r.order, schedule.ID)
	}
	cp := *schedule
	r.items[schedule.ID] = &cp
	return nil
}

// GetByID 根据ID获取课表
func (r *MemoryScheduleRepository) GetByID(_ context.Context, id string) (*model.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.items[id]
	if !ok {
		return nil, apperrors.ScheduleNotFound(id)
	}
	cp := *s
	return &cp, nil
}

// List 查询课表，按保存顺序返回
func (r *MemoryScheduleRepository) List(_ context.Context, filter ScheduleFilter) (model.ScheduleSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(model.ScheduleSet, 0, len(r.order))
	for _, id := range r.order {
		s := r.items[id]
		if filter.SchoolID != "" && s.SchoolID != filter.SchoolID {
			continue
		}
		if filter.ApprovedOnly && !s.Approved {
			continue
		}
		cp := *s
		result = append(result, &cp)
	}
	return result, nil
}

// SetApproved 批准或撤销批准
func (r *MemoryScheduleRepository) SetApproved(_ context.Context, id string, approved bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.items[id]
	if !ok {
		return apperrors.ScheduleNotFound(id)
	}
	cp := *s
	if approved {
		cp.Approve(at)
	} else {
		cp.Unapprove()
	}
	cp.UpdatedAt = time.Now().UTC()
	r.items[id] = &cp
	return nil
}

// MemoryAbsenceRepository 内存缺勤记录仓储
type MemoryAbsenceRepository struct {
	mu    sync.RWMutex
	items map[string]*model.Absence
}

// NewMemoryAbsenceRepository 创建内存缺勤记录仓储
func NewMemoryAbsenceRepository() *MemoryAbsenceRepository {
	return &MemoryAbsenceRepository{items: make(map[string]*model.Absence)}
}

func cloneAbsence(a *model.Absence) *model.Absence {
	cp := *a
	cp.Periods = append([]int(nil), a.Periods...)
	return &cp
}

// Create 写入缺勤记录
func (r *MemoryAbsenceRepository) Create(_ context.Context, absences ...*model.Absence) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for _, a := range absences {
		if a.ID == "" {
			a.BaseModel = model.NewBaseModel()
		}
		if _, exists := r.items[a.ID]; exists {
			return apperrors.New(apperrors.CodeAlreadyExists, "缺勤记录已存在").WithField("absence_id", a.ID)
		}
	}
	for _, a := range absences {
		a.CreatedAt = now
		a.UpdatedAt = now
		r.items[a.ID] = cloneAbsence(a)
	}
	return nil
}

// GetByID 根据ID获取缺勤记录
func (r *MemoryAbsenceRepository) GetByID(_ context.Context, id string) (*model.Absence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.items[id]
	if !ok {
		return nil, apperrors.AbsenceNotFound(id)
	}
	return cloneAbsence(a), nil
}

// List 查询缺勤记录，日期倒序
func (r *MemoryAbsenceRepository) List(_ context.Context, filter AbsenceFilter) ([]*model.Absence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Absence, 0, len(r.items))
	for _, a := range r.items {
		if filter.Matches(a) {
			result = append(result, cloneAbsence(a))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date > result[j].Date
		}
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// UpdateSubstitute 设置或清除代课教师
func (r *MemoryAbsenceRepository) UpdateSubstitute(_ context.Context, id, substituteID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.items[id]
	if !ok {
		return apperrors.AbsenceNotFound(id)
	}
	cp := cloneAbsence(a)
	cp.SubstituteID = substituteID
	cp.UpdatedAt = time.Now().UTC()
	r.items[id] = cp
	return nil
}

// Delete 删除缺勤记录
func (r *MemoryAbsenceRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return apperrors.AbsenceNotFound(id)
	}
	delete(r.items, id)
	return nil
}

// DeleteMany 批量删除
func (r *MemoryAbsenceRepository) DeleteMany(_ context.Context, ids []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, id := range ids {
		if _, ok := r.items[id]; ok {
			delete(r.items, id)
			n++
		}
	}
	return n, nil
}

var (
	_ ScheduleRepository = (*MemoryScheduleRepository)(nil)
	_ ScheduleRepository = (*PostgresScheduleRepository)(nil)
	_ AbsenceRepository  = (*MemoryAbsenceRepository)(nil)
	_ AbsenceRepository  = (*PostgresAbsenceRepository)(nil)
)
