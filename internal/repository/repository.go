// Package repository 提供课表与缺勤记录的数据访问层
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hissa/hissa/pkg/model"
)

// ScheduleRepository 课表仓储接口
type ScheduleRepository interface {
	Save(ctx context.Context, schedule *model.Schedule) error
	GetByID(ctx context.Context, id string) (*model.Schedule, error)
	List(ctx context.Context, filter ScheduleFilter) (model.ScheduleSet, error)
	SetApproved(ctx context.Context, id string, approved bool, at time.Time) error
}

// AbsenceRepository 缺勤记录仓储接口
type AbsenceRepository interface {
	Create(ctx context.Context, absences ...*model.Absence) error
	GetByID(ctx context.Context, id string) (*model.Absence, error)
	List(ctx context.Context, filter AbsenceFilter) ([]*model.Absence, error)
	UpdateSubstitute(ctx context.Context, id, substituteID string) error
	Delete(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, ids []string) (int, error)
}

// ScheduleFilter 课表查询过滤器
type ScheduleFilter struct {
	SchoolID     string `json:"school_id,omitempty"` // 为空表示所有学校
	ApprovedOnly bool   `json:"approved_only"`
}

// AbsenceFilter 缺勤记录查询过滤器
type AbsenceFilter struct {
	SchoolID  string `json:"school_id,omitempty"`
	Date      string `json:"date,omitempty"`
	TeacherID string `json:"teacher_id,omitempty"`
}

// Matches 内存过滤
func (f AbsenceFilter) Matches(a *model.Absence) bool {
	if f.SchoolID != "" && a.SchoolID != f.SchoolID {
		return false
	}
	if f.Date != "" && a.Date != f.Date {
		return false
	}
	if f.TeacherID != "" && a.TeacherID != f.TeacherID {
		return false
	}
	return true
}

// whereBuilder 拼接带占位符的 WHERE 子句
type whereBuilder struct {
	conds []string
	args  []interface{}
}

func (w *whereBuilder) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *whereBuilder) addRaw(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *whereBuilder) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}
