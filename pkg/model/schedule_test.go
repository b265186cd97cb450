package model

import (
	"testing"
	"time"

	apperrors "github.com/hissa/hissa/pkg/errors"
)

func sampleSchedule(id string, approved bool) *Schedule {
	return &Schedule{
		BaseModel: BaseModel{ID: id},
		Name:      "课表 " + id,
		SchoolID:  "s1",
		Teachers: []Teacher{
			{TeacherRef: TeacherRef{ID: "s1_a", OriginalID: "a"}, Name: "أحمد", Subject: "رياضيات"},
			{TeacherRef: TeacherRef{ID: "s1_b", OriginalID: "b"}, Name: "بلال", Subject: "علوم"},
		},
		Subjects: []Subject{{ID: "s1_m", OriginalID: "m", Name: "رياضيات"}},
		Classes:  []Class{{ID: "s1_c", OriginalID: "c", Name: "7/أ"}},
		Days:     Days,
		Slots: []ScheduleSlot{
			{ID: "1", Day: Monday, Period: 4, TeacherID: "a", SubjectGradeID: "m", ClassID: "c"},
			{ID: "2", Day: Monday, Period: 2, TeacherID: "a", SubjectGradeID: "m", ClassID: "c"},
			{ID: "3", Day: Tuesday, Period: 1, TeacherID: "b", SubjectGradeID: "x", ClassID: "c"},
		},
		Approved: approved,
	}
}

func TestScheduleSet_Approved(t *testing.T) {
	set := ScheduleSet{sampleSchedule("1", true), nil, sampleSchedule("2", false)}

	approved := set.Approved()
	if len(approved) != 1 || approved[0].ID != "1" {
		t.Errorf("Approved() = %d schedules, want only schedule 1", len(approved))
	}
}

func TestSchedule_ApproveUnapprove(t *testing.T) {
	s := sampleSchedule("1", false)
	now := time.Now()

	s.Approve(now)
	if !s.Approved || s.ApprovedAt == nil || !s.ApprovedAt.Equal(now) {
		t.Error("Approve should set flag and timestamp")
	}

	s.Unapprove()
	if s.Approved || s.ApprovedAt != nil {
		t.Error("Unapprove should clear flag and timestamp")
	}
}

func TestScheduleSet_Teachers(t *testing.T) {
	first := sampleSchedule("1", true)
	second := sampleSchedule("2", true)
	second.Teachers[0].Name = "重复"

	teachers := ScheduleSet{first, second}.Teachers()
	if len(teachers) != 2 {
		t.Fatalf("expected 2 unique teachers, got %d", len(teachers))
	}
	if teachers[0].ID != "s1_a" || teachers[0].Name != "أحمد" {
		t.Errorf("first occurrence should win, got %+v", teachers[0])
	}
}

func TestScheduleSet_FindTeacher(t *testing.T) {
	set := ScheduleSet{sampleSchedule("1", true)}

	if tch := set.FindTeacher("s1_b"); tch == nil || tch.Name != "بلال" {
		t.Error("lookup by system id failed")
	}
	if tch := set.FindTeacher("a"); tch == nil || tch.ID != "s1_a" {
		t.Error("lookup by original id failed")
	}
	if set.FindTeacher("zzz") != nil || set.FindTeacher("") != nil {
		t.Error("unknown id should resolve to nil")
	}
	if set.TeacherName("zzz") != UnknownTeacherName {
		t.Errorf("TeacherName for unknown = %q", set.TeacherName("zzz"))
	}
}

func TestScheduleSet_LocateAndForSchool(t *testing.T) {
	home := sampleSchedule("1", true)
	other := sampleSchedule("2", true)
	other.SchoolID = "s2"
	other.Teachers = []Teacher{{TeacherRef: TeacherRef{ID: "s2_a", OriginalID: "a"}, Name: "عادل"}}
	set := ScheduleSet{home, other}

	tch, s := set.Locate("s2_a")
	if tch == nil || tch.Name != "عادل" || s != other {
		t.Errorf("Locate by system id = %+v in %v", tch, s)
	}
	// 原始标识重复时取先出现者
	if tch, s := set.Locate("a"); tch == nil || tch.ID != "s1_a" || s != home {
		t.Errorf("Locate by original id = %+v", tch)
	}
	if tch, s := set.Locate("zzz"); tch != nil || s != nil {
		t.Error("unknown id should resolve to nil")
	}

	if got := set.ForSchool("s2"); len(got) != 1 || got[0] != other {
		t.Errorf("ForSchool(s2) = %d schedules", len(got))
	}
	if got := set.ForSchool("s9"); len(got) != 0 {
		t.Errorf("ForSchool(s9) = %d schedules", len(got))
	}
	if got := set.Schools(); len(got) != 2 || got[0] != "s1" || got[1] != "s2" {
		t.Errorf("Schools() = %v", got)
	}
}

func TestScheduleSet_TeacherSlots(t *testing.T) {
	set := ScheduleSet{sampleSchedule("1", true)}

	slots := set.TeacherSlots("a", Monday)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if slots[0].Slot.Period != 2 || slots[1].Slot.Period != 4 {
		t.Error("slots should be sorted by period")
	}
	if slots[0].SubjectName() != "رياضيات" || slots[0].ClassName() != "7/أ" {
		t.Errorf("unexpected names %q %q", slots[0].SubjectName(), slots[0].ClassName())
	}

	other := set.TeacherSlots("b", Tuesday)
	if len(other) != 1 || other[0].SubjectName() != "" {
		t.Error("unknown subject should resolve to empty name")
	}
}

func TestAbsence_Validate(t *testing.T) {
	tests := []struct {
		name    string
		absence *Absence
		wantErr bool
	}{
		{"有效", NewAbsence("s1_a", "2024-09-02", []int{3}, "s1_b", "s1"), false},
		{"未安排代课", NewAbsence("s1_a", "2024-09-02", []int{3, 4}, "", "s1"), false},
		{"缺少教师", NewAbsence("", "2024-09-02", []int{3}, "", "s1"), true},
		{"日期格式错误", NewAbsence("s1_a", "02/09/2024", []int{3}, "", "s1"), true},
		{"无节次", NewAbsence("s1_a", "2024-09-02", nil, "", "s1"), true},
		{"节次非法", NewAbsence("s1_a", "2024-09-02", []int{0}, "", "s1"), true},
		{"自己代自己", NewAbsence("s1_a", "2024-09-02", []int{3}, "s1_a", "s1"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.absence.Validate()
			if tt.wantErr && !apperrors.Is(err, apperrors.CodeValidationFail) {
				t.Errorf("expected validation error, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestAbsence_Day(t *testing.T) {
	a := NewAbsence("s1_a", "2024-09-02", []int{1}, "", "")
	d, ok := a.Day()
	if !ok || d != Monday {
		t.Errorf("Day() = (%q, %v), want (2, true)", d, ok)
	}
	if a.HasSubstitute() {
		t.Error("absence without substitute reported HasSubstitute")
	}
}
