package validator

import (
	"strings"
	"testing"

	"github.com/hissa/hissa/pkg/availability"
	"github.com/hissa/hissa/pkg/model"
)

func buildIndex(slots ...model.ScheduleSlot) *availability.Index {
	return availability.NewIndex(model.ScheduleSet{
		{Approved: true, Slots: slots},
	})
}

func at(day model.Day, period int, teacher string) model.ScheduleSlot {
	return model.ScheduleSlot{Day: day, Period: period, TeacherID: teacher}
}

func TestDetectConflicts_BeforeAndAfter(t *testing.T) {
	idx := buildIndex(
		at(model.Tuesday, 2, "t"),
		at(model.Tuesday, 4, "t"),
	)

	warnings := DetectConflicts(idx, "t", model.Tuesday, 3)

	if len(warnings) != 3 {
		t.Fatalf("expected 3 warnings, got %d: %v", len(warnings), warnings)
	}
	if warnings[0] != "لديه حصة 2 قبل هذه الحصة" {
		t.Errorf("before warning = %q", warnings[0])
	}
	if warnings[1] != "لديه حصة 4 بعد هذه الحصة" {
		t.Errorf("after warning = %q", warnings[1])
	}
	if warnings[2] != "سيصبح لديه 3 حصص متتالية - تأكد من جاهزيته" {
		t.Errorf("combined warning = %q", warnings[2])
	}
}

func TestDetectConflicts_SingleSide(t *testing.T) {
	idx := buildIndex(at(model.Sunday, 5, "t"))

	tests := []struct {
		name   string
		period int
		want   ConflictType
	}{
		{"仅后一节", 4, ConflictAdjacentAfter},
		{"仅前一节", 6, ConflictAdjacentBefore},
	}

	detector := NewConflictDetector(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conflicts := detector.Detect(idx, "t", model.Sunday, model.SinglePeriod(tt.period))
			if len(conflicts) != 1 {
				t.Fatalf("expected 1 conflict, got %d", len(conflicts))
			}
			if conflicts[0].Type != tt.want || conflicts[0].Severity != SeverityWarning {
				t.Errorf("got %+v", conflicts[0])
			}
		})
	}
}

func TestDetectConflicts_None(t *testing.T) {
	idx := buildIndex(
		at(model.Sunday, 1, "t"),
		at(model.Monday, 3, "t"),
		at(model.Sunday, 4, "other"),
	)

	if w := DetectConflicts(idx, "t", model.Sunday, 3); len(w) != 0 {
		t.Errorf("expected no warnings, got %v", w)
	}
	// 第一节之前没有节次
	if w := DetectConflicts(idx, "x", model.Sunday, 1); len(w) != 0 {
		t.Errorf("expected no warnings, got %v", w)
	}
	if w := DetectConflicts(nil, "t", model.Sunday, 2); len(w) != 0 {
		t.Errorf("nil lookup should yield no warnings, got %v", w)
	}
}

func TestConflictDetector_Range(t *testing.T) {
	idx := buildIndex(
		at(model.Wednesday, 1, "t"),
		at(model.Wednesday, 3, "t"),
		at(model.Wednesday, 5, "t"),
	)
	detector := NewConflictDetector(DefaultDetectorConfig())

	conflicts := detector.Detect(idx, "t", model.Wednesday, model.PeriodRange{From: 2, To: 4})

	var overlap, consecutive int
	for _, c := range conflicts {
		switch c.Type {
		case ConflictOverlap:
			overlap++
			if c.Period != 3 || c.Severity != SeverityError {
				t.Errorf("unexpected overlap %+v", c)
			}
		case ConflictConsecutive:
			consecutive++
			if !strings.Contains(c.Message, "5") {
				t.Errorf("range of 3 plus neighbours should be 5 periods: %q", c.Message)
			}
		}
	}
	if overlap != 1 || consecutive != 1 {
		t.Errorf("overlap=%d consecutive=%d, conflicts=%+v", overlap, consecutive, conflicts)
	}
}

func TestConflictDetector_DetectAll(t *testing.T) {
	set := model.ScheduleSet{
		{Approved: true, Slots: []model.ScheduleSlot{
			at(model.Sunday, 2, "t"),
			at(model.Sunday, 2, "t"),
			at(model.Sunday, 3, "u"),
		}},
	}

	conflicts := NewConflictDetector(nil).DetectAll(set)
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 double booking, got %d", len(conflicts))
	}
	if conflicts[0].TeacherID != "t" || conflicts[0].Type != ConflictOverlap {
		t.Errorf("unexpected conflict %+v", conflicts[0])
	}
}
