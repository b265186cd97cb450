package substitute

import (
	"sort"

	"github.com/hissa/hissa/pkg/model"
)

// AbsentPeriod 缺勤教师当天的一节课
type AbsentPeriod struct {
	Period    int    `json:"period"`
	Subject   string `json:"subject"`
	ClassID   string `json:"class_id"`
	ClassName string `json:"class_name"`
}

// AbsentPeriods 返回教师某教学日的所有节次，教师不存在时 ok 为 false
func AbsentPeriods(snap *Snapshot, teacherID string, day model.Day) ([]AbsentPeriod, bool) {
	teacher, snap := snap.locate(teacherID)
	if teacher == nil {
		return nil, false
	}

	result := make([]AbsentPeriod, 0)
	for _, ref := range snap.Index.SlotsOf(teacher.Key(), day) {
		result = append(result, AbsentPeriod{
			Period:    ref.Slot.Period,
			Subject:   ref.SubjectName(),
			ClassID:   ref.Slot.ClassID,
			ClassName: ref.ClassName(),
		})
	}
	return result, true
}

// Pick 某一节的代课安排
type Pick struct {
	Period    int        `json:"period"`
	Subject   string     `json:"subject,omitempty"`
	Candidate *Candidate `json:"candidate,omitempty"`
	BusyCount int        `json:"busy_count"`
}

// Plan 一键安排结果
type Plan struct {
	Status        Status         `json:"status"`
	AbsentTeacher *model.Teacher `json:"absent_teacher,omitempty"`
	Day           model.Day      `json:"day"`
	Picks         []Pick         `json:"picks"`
	Uncovered     []int          `json:"uncovered"`
}

// SmartAssign 为缺勤事件的每一节挑选代课教师
// 每节优先取第一个推荐候选人，否则取第一个候选人；已选中者不再用于其他节次
// periods 为空时覆盖该教师当天全部节次
func (r *Ranker) SmartAssign(snap *Snapshot, teacherID string, day model.Day, periods []int, exclude []string) Plan {
	plan := Plan{
		Status:    StatusOK,
		Day:       day,
		Picks:     []Pick{},
		Uncovered: []int{},
	}

	if len(periods) == 0 {
		slots, ok := AbsentPeriods(snap, teacherID, day)
		if !ok {
			plan.Status = StatusTeacherNotFound
			return plan
		}
		for _, s := range slots {
			periods = append(periods, s.Period)
		}
	}
	periods = uniqueSorted(periods)

	chosen := append([]string(nil), exclude...)
	for _, p := range periods {
		res := r.Rank(snap, Request{
			AbsentTeacherID: teacherID,
			Day:             day,
			Periods:         model.SinglePeriod(p),
			ExcludeIDs:      chosen,
		})
		if res.Status != StatusOK {
			plan.Status = res.Status
			plan.Picks = []Pick{}
			plan.Uncovered = []int{}
			return plan
		}
		plan.AbsentTeacher = res.AbsentTeacher

		pick := Pick{Period: p, Subject: res.Subject, BusyCount: res.BusyCount}
		if c := choose(res.Candidates); c != nil {
			pick.Candidate = c
			chosen = append(chosen, c.TeacherID)
		} else {
			plan.Uncovered = append(plan.Uncovered, p)
		}
		plan.Picks = append(plan.Picks, pick)
	}

	return plan
}

func choose(candidates []Candidate) *Candidate {
	for i := range candidates {
		if candidates[i].Recommended {
			return &candidates[i]
		}
	}
	if len(candidates) > 0 {
		return &candidates[0]
	}
	return nil
}

func uniqueSorted(periods []int) []int {
	seen := make(map[int]struct{}, len(periods))
	result := make([]int, 0, len(periods))
	for _, p := range periods {
		if p < 1 {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		result = append(result, p)
	}
	sort.Ints(result)
	return result
}
