package model

import (
	"time"

	apperrors "github.com/hissa/hissa/pkg/errors"
)

// DateLayout 缺勤日期格式
const DateLayout = "2006-01-02"

// Absence 缺勤记录
type Absence struct {
	BaseModel
	TeacherID    string `json:"teacher_id" db:"teacher_id"`
	Date         string `json:"date" db:"date"` // YYYY-MM-DD
	Periods      []int  `json:"periods" db:"periods"`
	SubstituteID string `json:"substitute_id,omitempty" db:"substitute_id"`
	SchoolID     string `json:"school_id,omitempty" db:"school_id"`
}

// NewAbsence 创建缺勤记录
func NewAbsence(teacherID, date string, periods []int, substituteID, schoolID string) *Absence {
	return &Absence{
		BaseModel:    NewBaseModel(),
		TeacherID:    teacherID,
		Date:         date,
		Periods:      periods,
		SubstituteID: substituteID,
		SchoolID:     schoolID,
	}
}

// HasSubstitute 是否已安排代课教师
func (a *Absence) HasSubstitute() bool {
	return a.SubstituteID != ""
}

// Day 返回缺勤日期对应的教学日
func (a *Absence) Day() (Day, bool) {
	t, err := time.Parse(DateLayout, a.Date)
	if err != nil {
		return "", false
	}
	return DayOf(t)
}

// Validate 校验缺勤记录
// 不强制要求节次对应真实课表节次
func (a *Absence) Validate() error {
	var ve apperrors.ValidationErrors
	if a.TeacherID == "" {
		ve.Add("teacher_id", "不能为空")
	}
	if _, err := time.Parse(DateLayout, a.Date); err != nil {
		ve.Add("date", "格式应为 YYYY-MM-DD")
	}
	if len(a.Periods) == 0 {
		ve.Add("periods", "至少需要一个节次")
	}
	for _, p := range a.Periods {
		if p < 1 {
			ve.Add("periods", "节次必须为正整数")
			break
		}
	}
	if a.SubstituteID != "" && a.SubstituteID == a.TeacherID {
		ve.Add("substitute_id", "代课教师不能是缺勤教师本人")
	}
	if ve.HasErrors() {
		return ve.ToAppError()
	}
	return nil
}
