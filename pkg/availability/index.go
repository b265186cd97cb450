// Package availability 提供教师空闲/占用查询
package availability

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/hissa/hissa/pkg/model"
)

// TeacherSet 教师标识集合
type TeacherSet map[string]struct{}

// Add 添加教师
func (s TeacherSet) Add(ids ...string) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

// Has 检查教师是否在集合中
func (s TeacherSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Len 集合大小
func (s TeacherSet) Len() int {
	return len(s)
}

// Sorted 返回排序后的标识列表
func (s TeacherSet) Sorted() []string {
	result := make([]string, 0, len(s))
	for id := range s {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// MarshalJSON 序列化为有序数组
func (s TeacherSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

type memoKey struct {
	day  model.Day
	from int
	to   int
}

// Index 可用性索引
// 只收录已批准课表，建成后只读；Busy 结果按 (教学日, 节次区间) 记忆
type Index struct {
	schedules model.ScheduleSet
	byDay     map[model.Day]map[int][]string
	byTeacher map[string][]model.SlotRef
	classes   map[string]map[string]struct{}

	mu   sync.Mutex
	memo map[memoKey]TeacherSet
}

// NewIndex 从课表构建索引，未批准课表被忽略
func NewIndex(schedules model.ScheduleSet) *Index {
	idx := &Index{
		schedules: schedules.Approved(),
		byDay:     make(map[model.Day]map[int][]string),
		byTeacher: make(map[string][]model.SlotRef),
		classes:   make(map[string]map[string]struct{}),
		memo:      make(map[memoKey]TeacherSet),
	}

	idx.schedules.Each(func(ref model.SlotRef) {
		slot := ref.Slot
		periods, ok := idx.byDay[slot.Day]
		if !ok {
			periods = make(map[int][]string)
			idx.byDay[slot.Day] = periods
		}
		periods[slot.Period] = append(periods[slot.Period], slot.TeacherID)
		idx.byTeacher[slot.TeacherID] = append(idx.byTeacher[slot.TeacherID], ref)

		if slot.ClassID != "" {
			cls, ok := idx.classes[slot.TeacherID]
			if !ok {
				cls = make(map[string]struct{})
				idx.classes[slot.TeacherID] = cls
			}
			cls[slot.ClassID] = struct{}{}
		}
	})

	for key := range idx.byTeacher {
		refs := idx.byTeacher[key]
		sort.SliceStable(refs, func(i, j int) bool {
			if refs[i].Slot.Day != refs[j].Slot.Day {
				return refs[i].Slot.Day < refs[j].Slot.Day
			}
			return refs[i].Slot.Period < refs[j].Slot.Period
		})
	}

	return idx
}

// Schedules 索引所用的已批准课表
func (idx *Index) Schedules() model.ScheduleSet {
	return idx.schedules
}

// Empty 没有任何已批准课表
func (idx *Index) Empty() bool {
	return len(idx.schedules) == 0
}

// Busy 返回在该教学日节次区间内有课的教师原始标识
// 返回的集合为共享结果，调用方不得修改
func (idx *Index) Busy(day model.Day, rng model.PeriodRange) TeacherSet {
	key := memoKey{day: day, from: rng.From, to: rng.To}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if set, ok := idx.memo[key]; ok {
		return set
	}

	set := make(TeacherSet)
	for period, teachers := range idx.byDay[day] {
		if rng.Contains(period) {
			set.Add(teachers...)
		}
	}
	idx.memo[key] = set
	return set
}

// HasSlot 检查教师在某节是否有课
func (idx *Index) HasSlot(teacherKey string, day model.Day, period int) bool {
	for _, id := range idx.byDay[day][period] {
		if id == teacherKey {
			return true
		}
	}
	return false
}

// SlotsOf 返回教师某教学日的节次，按节次排序
func (idx *Index) SlotsOf(teacherKey string, day model.Day) []model.SlotRef {
	var result []model.SlotRef
	for _, ref := range idx.byTeacher[teacherKey] {
		if ref.Slot.Day == day {
			result = append(result, ref)
		}
	}
	return result
}

// Workload 教师每周总节数
func (idx *Index) Workload(teacherKey string) int {
	return len(idx.byTeacher[teacherKey])
}

// TeachesClass 教师本周是否在该班上课
func (idx *Index) TeachesClass(teacherKey, classKey string) bool {
	_, ok := idx.classes[teacherKey][classKey]
	return ok
}

// Subjects 教师本周所授科目名称（去重、排序）
func (idx *Index) Subjects(teacherKey string) []string {
	seen := make(map[string]struct{})
	for _, ref := range idx.byTeacher[teacherKey] {
		if name := ref.SubjectName(); name != "" {
			seen[name] = struct{}{}
		}
	}
	result := make([]string, 0, len(seen))
	for name := range seen {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Teachers 返回有课教师的原始标识
func (idx *Index) Teachers() []string {
	result := make([]string, 0, len(idx.byTeacher))
	for key := range idx.byTeacher {
		result = append(result, key)
	}
	sort.Strings(result)
	return result
}

// Overlap 同一教师在同一节出现多次
type Overlap struct {
	TeacherID string    `json:"teacher_id"`
	Day       model.Day `json:"day"`
	Period    int       `json:"period"`
	Count     int       `json:"count"`
}

// Overlaps 返回所有重复占用的节次
func (idx *Index) Overlaps() []Overlap {
	var result []Overlap
	for _, day := range model.Days {
		periods := idx.byDay[day]
		keys := make([]int, 0, len(periods))
		for p := range periods {
			keys = append(keys, p)
		}
		sort.Ints(keys)

		for _, p := range keys {
			counts := make(map[string]int)
			for _, id := range periods[p] {
				counts[id]++
			}
			ids := make([]string, 0, len(counts))
			for id, n := range counts {
				if n > 1 {
					ids = append(ids, id)
				}
			}
			sort.Strings(ids)
			for _, id := range ids {
				result = append(result, Overlap{TeacherID: id, Day: day, Period: p, Count: counts[id]})
			}
		}
	}
	return result
}

// BusyTeachers 一次性计算占用教师集合
func BusyTeachers(schedules model.ScheduleSet, day model.Day, rng model.PeriodRange) TeacherSet {
	return NewIndex(schedules).Busy(day, rng)
}
