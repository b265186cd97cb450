package model

import (
	"sort"
	"time"
)

// ScheduleSlot 课表节次：某教师在某教学日某节给某班上某科
type ScheduleSlot struct {
	ID             string `json:"id"`
	Day            Day    `json:"day_id"`
	Period         int    `json:"period"`
	TeacherID      string `json:"teacher_id"` // 教师原始标识
	SubjectGradeID string `json:"subject_grade_id"`
	ClassID        string `json:"class_id"`
}

// Schedule 课表
type Schedule struct {
	BaseModel
	Name       string         `json:"name" db:"name"`
	SchoolID   string         `json:"school_id" db:"school_id"`
	Teachers   []Teacher      `json:"teachers"`
	Subjects   []Subject      `json:"subjects"`
	Classes    []Class        `json:"classes"`
	Days       []Day          `json:"days"`
	Slots      []ScheduleSlot `json:"slots"`
	Approved   bool           `json:"approved" db:"approved"`
	ApprovedAt *time.Time     `json:"approved_at,omitempty" db:"approved_at"`
}

// Approve 批准课表
func (s *Schedule) Approve(at time.Time) {
	s.Approved = true
	s.ApprovedAt = &at
}

// Unapprove 撤销批准
func (s *Schedule) Unapprove() {
	s.Approved = false
	s.ApprovedAt = nil
}

// TeacherByKey 按原始标识查找教师
func (s *Schedule) TeacherByKey(key string) *Teacher {
	for i := range s.Teachers {
		if s.Teachers[i].Key() == key || s.Teachers[i].ID == key {
			return &s.Teachers[i]
		}
	}
	return nil
}

// SubjectName 返回节次科目名称，未知时返回空串
func (s *Schedule) SubjectName(subjectGradeID string) string {
	for _, sub := range s.Subjects {
		if sub.Key() == subjectGradeID {
			return sub.Name
		}
	}
	return ""
}

// ClassName 返回班级名称，未知时返回空串
func (s *Schedule) ClassName(classID string) string {
	for _, c := range s.Classes {
		if c.Key() == classID {
			return c.Name
		}
	}
	return ""
}

// ScheduleSet 一组课表
type ScheduleSet []*Schedule

// Approved 返回已批准的课表
func (ss ScheduleSet) Approved() ScheduleSet {
	result := make(ScheduleSet, 0, len(ss))
	for _, s := range ss {
		if s != nil && s.Approved {
			result = append(result, s)
		}
	}
	return result
}

// Teachers 返回教师池，按系统标识去重（先出现者优先），按系统标识排序
func (ss ScheduleSet) Teachers() []*Teacher {
	seen := make(map[string]*Teacher)
	for _, s := range ss {
		if s == nil {
			continue
		}
		for i := range s.Teachers {
			t := &s.Teachers[i]
			if _, ok := seen[t.ID]; !ok {
				seen[t.ID] = t
			}
		}
	}

	result := make([]*Teacher, 0, len(seen))
	for _, t := range seen {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

// FindTeacher 按系统标识或原始标识查找教师
// 系统标识优先匹配
func (ss ScheduleSet) FindTeacher(id string) *Teacher {
	t, _ := ss.Locate(id)
	return t
}

// Locate 查找教师及其所在课表，匹配规则同 FindTeacher
func (ss ScheduleSet) Locate(id string) (*Teacher, *Schedule) {
	if id == "" {
		return nil, nil
	}
	var byOriginal *Teacher
	var home *Schedule
	for _, s := range ss {
		if s == nil {
			continue
		}
		for i := range s.Teachers {
			t := &s.Teachers[i]
			if t.ID == id {
				return t, s
			}
			if byOriginal == nil && t.Key() == id {
				byOriginal, home = t, s
			}
		}
	}
	return byOriginal, home
}

// ForSchool 返回属于该学校的课表
// 原始标识只在同一学校的导出中唯一，跨校查询前须先按学校切分
func (ss ScheduleSet) ForSchool(schoolID string) ScheduleSet {
	result := make(ScheduleSet, 0, len(ss))
	for _, s := range ss {
		if s != nil && s.SchoolID == schoolID {
			result = append(result, s)
		}
	}
	return result
}

// Schools 返回出现的学校标识（去重、排序）
func (ss ScheduleSet) Schools() []string {
	seen := make(map[string]struct{})
	for _, s := range ss {
		if s != nil {
			seen[s.SchoolID] = struct{}{}
		}
	}
	result := make([]string, 0, len(seen))
	for id := range seen {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// TeacherName 返回教师显示名，未知教师返回 UnknownTeacherName
func (ss ScheduleSet) TeacherName(id string) string {
	if t := ss.FindTeacher(id); t != nil {
		return t.Name
	}
	return UnknownTeacherName
}

// SlotRef 节次及其所属课表
type SlotRef struct {
	Schedule *Schedule
	Slot     ScheduleSlot
}

// SubjectName 节次科目名称
func (r SlotRef) SubjectName() string {
	return r.Schedule.SubjectName(r.Slot.SubjectGradeID)
}

// ClassName 节次班级名称
func (r SlotRef) ClassName() string {
	return r.Schedule.ClassName(r.Slot.ClassID)
}

// Each 遍历所有节次
func (ss ScheduleSet) Each(fn func(ref SlotRef)) {
	for _, s := range ss {
		if s == nil {
			continue
		}
		for _, slot := range s.Slots {
			fn(SlotRef{Schedule: s, Slot: slot})
		}
	}
}

// TeacherSlots 返回教师在某教学日的节次，按节次排序
func (ss ScheduleSet) TeacherSlots(teacherKey string, day Day) []SlotRef {
	var result []SlotRef
	ss.Each(func(ref SlotRef) {
		if ref.Slot.TeacherID == teacherKey && ref.Slot.Day == day {
			result = append(result, ref)
		}
	})
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Slot.Period < result[j].Slot.Period
	})
	return result
}
