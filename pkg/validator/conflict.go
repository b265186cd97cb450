// Package validator 提供代课冲突检测功能
package validator

import (
	"fmt"

	"github.com/hissa/hissa/pkg/availability"
	"github.com/hissa/hissa/pkg/model"
)

// ConflictType 冲突类型
type ConflictType string

const (
	ConflictAdjacentBefore ConflictType = "adjacent_before" // 前一节有课
	ConflictAdjacentAfter  ConflictType = "adjacent_after"  // 后一节有课
	ConflictConsecutive    ConflictType = "consecutive"     // 形成连堂
	ConflictOverlap        ConflictType = "overlap"         // 同一节已有课
)

const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Conflict 冲突信息
type Conflict struct {
	Type      ConflictType `json:"type"`
	Severity  string       `json:"severity"` // error/warning
	TeacherID string       `json:"teacher_id"`
	Day       model.Day    `json:"day"`
	Period    int          `json:"period"`
	Message   string       `json:"message"`
}

// SlotLookup 节次查询
type SlotLookup interface {
	HasSlot(teacherKey string, day model.Day, period int) bool
}

// ConflictDetector 冲突检测器
type ConflictDetector struct {
	config *DetectorConfig
}

// DetectorConfig 检测器配置
type DetectorConfig struct {
	CheckAdjacent bool // 检查相邻节次
	CheckOverlap  bool // 检查目标节次本身是否有课
}

// DefaultDetectorConfig 返回默认配置
func DefaultDetectorConfig() *DetectorConfig {
	return &DetectorConfig{
		CheckAdjacent: true,
		CheckOverlap:  true,
	}
}

// NewConflictDetector 创建冲突检测器
func NewConflictDetector(config *DetectorConfig) *ConflictDetector {
	if config == nil {
		config = DefaultDetectorConfig()
	}
	return &ConflictDetector{config: config}
}

// Detect 检测将教师安排到某教学日节次区间时产生的冲突
// 仅作提示，不阻止安排
func (d *ConflictDetector) Detect(lookup SlotLookup, teacherKey string, day model.Day, rng model.PeriodRange) []Conflict {
	var conflicts []Conflict
	if lookup == nil || teacherKey == "" {
		return conflicts
	}

	if d.config.CheckOverlap {
		for p := rng.From; p <= rng.To; p++ {
			if lookup.HasSlot(teacherKey, day, p) {
				conflicts = append(conflicts, Conflict{
					Type:      ConflictOverlap,
					Severity:  SeverityError,
					TeacherID: teacherKey,
					Day:       day,
					Period:    p,
					Message:   fmt.Sprintf("لديه حصة %d في نفس الوقت", p),
				})
			}
		}
	}

	if !d.config.CheckAdjacent {
		return conflicts
	}

	before := rng.From - 1
	after := rng.To + 1
	hasBefore := before >= 1 && lookup.HasSlot(teacherKey, day, before)
	hasAfter := lookup.HasSlot(teacherKey, day, after)

	if hasBefore {
		conflicts = append(conflicts, Conflict{
			Type:      ConflictAdjacentBefore,
			Severity:  SeverityWarning,
			TeacherID: teacherKey,
			Day:       day,
			Period:    before,
			Message:   fmt.Sprintf("لديه حصة %d قبل هذه الحصة", before),
		})
	}
	if hasAfter {
		conflicts = append(conflicts, Conflict{
			Type:      ConflictAdjacentAfter,
			Severity:  SeverityWarning,
			TeacherID: teacherKey,
			Day:       day,
			Period:    after,
			Message:   fmt.Sprintf("لديه حصة %d بعد هذه الحصة", after),
		})
	}
	if hasBefore && hasAfter {
		conflicts = append(conflicts, Conflict{
			Type:      ConflictConsecutive,
			Severity:  SeverityWarning,
			TeacherID: teacherKey,
			Day:       day,
			Period:    rng.From,
			Message:   fmt.Sprintf("سيصبح لديه %d حصص متتالية - تأكد من جاهزيته", rng.Len()+2),
		})
	}

	return conflicts
}

// Warnings 提取提示文本
func Warnings(conflicts []Conflict) []string {
	result := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		result = append(result, c.Message)
	}
	return result
}

// DetectConflicts 检测单节代课的相邻节次提示
func DetectConflicts(lookup SlotLookup, teacherKey string, day model.Day, period int) []string {
	detector := NewConflictDetector(&DetectorConfig{CheckAdjacent: true})
	return Warnings(detector.Detect(lookup, teacherKey, day, model.SinglePeriod(period)))
}

// DetectAll 检测课表中同一教师同一节重复排课
func (d *ConflictDetector) DetectAll(schedules model.ScheduleSet) []Conflict {
	idx := availability.NewIndex(schedules)

	var conflicts []Conflict
	for _, o := range idx.Overlaps() {
		conflicts = append(conflicts, Conflict{
			Type:      ConflictOverlap,
			Severity:  SeverityError,
			TeacherID: o.TeacherID,
			Day:       o.Day,
			Period:    o.Period,
			Message:   fmt.Sprintf("教师 %s 在 %s 第 %d 节有 %d 节课", o.TeacherID, o.Day.Name(), o.Period, o.Count),
		})
	}
	return conflicts
}
