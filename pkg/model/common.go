// Package model 定义代课推荐引擎的核心数据模型
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/hissa/hissa/pkg/errors"
)

// BaseModel 基础模型（包含通用字段）
type BaseModel struct {
	ID        string    `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewBaseModel 创建新的基础模型
func NewBaseModel() BaseModel {
	now := time.Now()
	return BaseModel{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Day 教学日，取值 "1".."5"，从周日开始
// 该编码与导入课表中的 dayID 一致，是连接课表数据的键
type Day string

const (
	Sunday    Day = "1"
	Monday    Day = "2"
	Tuesday   Day = "3"
	Wednesday Day = "4"
	Thursday  Day = "5"
)

// Days 一周五个教学日
var Days = []Day{Sunday, Monday, Tuesday, Wednesday, Thursday}

var dayNames = map[Day]string{
	Sunday:    "الأحد",
	Monday:    "الاثنين",
	Tuesday:   "الثلاثاء",
	Wednesday: "الأربعاء",
	Thursday:  "الخميس",
}

// ParseDay 解析教学日，接受序号 "1".."5" 或阿拉伯语星期名
func ParseDay(s string) (Day, error) {
	s = strings.TrimSpace(s)
	d := Day(s)
	if d.Valid() {
		return d, nil
	}
	for day, name := range dayNames {
		if name == s {
			return day, nil
		}
	}
	return "", apperrors.InvalidDay(s)
}

// Valid 检查教学日是否有效
func (d Day) Valid() bool {
	_, ok := dayNames[d]
	return ok
}

// Name 返回阿拉伯语星期名
func (d Day) Name() string {
	return dayNames[d]
}

// DayOf 返回日期对应的教学日，周五、周六返回 false
func DayOf(t time.Time) (Day, bool) {
	switch t.Weekday() {
	case time.Sunday:
		return Sunday, true
	case time.Monday:
		return Monday, true
	case time.Tuesday:
		return Tuesday, true
	case time.Wednesday:
		return Wednesday, true
	case time.Thursday:
		return Thursday, true
	}
	return "", false
}

// PeriodRange 节次闭区间
type PeriodRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// NewPeriodRange 创建节次区间，节次从 1 开始
func NewPeriodRange(from, to int) (PeriodRange, error) {
	if from < 1 || to < from {
		return PeriodRange{}, apperrors.InvalidPeriod(from, to)
	}
	return PeriodRange{From: from, To: to}, nil
}

// SinglePeriod 单节次区间
func SinglePeriod(period int) PeriodRange {
	return PeriodRange{From: period, To: period}
}

// RangeOf 覆盖给定节次的最小区间
func RangeOf(periods []int) (PeriodRange, error) {
	if len(periods) == 0 {
		return PeriodRange{}, apperrors.InvalidPeriod(0, 0)
	}
	from, to := periods[0], periods[0]
	for _, p := range periods[1:] {
		if p < from {
			from = p
		}
		if p > to {
			to = p
		}
	}
	return NewPeriodRange(from, to)
}

// Contains 检查节次是否在区间内
func (r PeriodRange) Contains(period int) bool {
	return period >= r.From && period <= r.To
}

// Len 区间包含的节次数
func (r PeriodRange) Len() int {
	return r.To - r.From + 1
}

// Widen 向前后各扩展 n 节
func (r PeriodRange) Widen(n int) PeriodRange {
	return PeriodRange{From: r.From - n, To: r.To + n}
}
