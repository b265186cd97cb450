package stats

import (
	"sort"

	"github.com/hissa/hissa/pkg/model"
)

// CoverageMetrics 代课覆盖率指标
type CoverageMetrics struct {
	TotalPeriods    int     `json:"total_periods"`    // 缺勤节次总数
	CoveredPeriods  int     `json:"covered_periods"`  // 已安排代课的节次
	OverallCoverage float64 `json:"overall_coverage"` // 覆盖率 (%)

	DailyCoverage map[string]DayCoverage `json:"daily_coverage"` // 按日期
	Substitutes   []SubstituteLoad       `json:"substitutes"`    // 按代课教师
	Uncovered     []UncoveredPeriod      `json:"uncovered"`      // 未安排代课
}

// DayCoverage 每日覆盖情况
type DayCoverage struct {
	Date         string  `json:"date"`
	Total        int     `json:"total"`
	Covered      int     `json:"covered"`
	CoverageRate float64 `json:"coverage_rate"`
	Absent       int     `json:"absent"` // 缺勤教师数
}

// SubstituteLoad 代课教师承担的代课记录数
type SubstituteLoad struct {
	TeacherID string `json:"teacher_id"`
	Name      string `json:"name"`
	Count     int    `json:"count"`
}

// UncoveredPeriod 未安排代课的缺勤节次
type UncoveredPeriod struct {
	AbsenceID   string `json:"absence_id"`
	TeacherID   string `json:"teacher_id"`
	TeacherName string `json:"teacher_name"`
	Date        string `json:"date"`
	Period      int    `json:"period"`
}

// CoverageAnalyzer 代课覆盖率分析器
type CoverageAnalyzer struct{}

// NewCoverageAnalyzer 创建覆盖率分析器
func NewCoverageAnalyzer() *CoverageAnalyzer {
	return &CoverageAnalyzer{}
}

// Analyze 分析缺勤记录的代课覆盖情况
// schedules 仅用于解析教师姓名
func (c *CoverageAnalyzer) Analyze(absences []*model.Absence, schedules model.ScheduleSet) *CoverageMetrics {
	metrics := &CoverageMetrics{
		DailyCoverage: make(map[string]DayCoverage),
		Substitutes:   []SubstituteLoad{},
		Uncovered:     []UncoveredPeriod{},
	}
	if len(absences) == 0 {
		metrics.OverallCoverage = 100
		return metrics
	}

	dailyStats := make(map[string]*DayCoverage)
	dailyTeachers := make(map[string]map[string]struct{})
	subCounts := make(map[string]int)

	for _, a := range absences {
		if a == nil {
			continue
		}
		day, ok := dailyStats[a.Date]
		if !ok {
			day = &DayCoverage{Date: a.Date}
			dailyStats[a.Date] = day
			dailyTeachers[a.Date] = make(map[string]struct{})
		}
		dailyTeachers[a.Date][a.TeacherID] = struct{}{}

		n := len(a.Periods)
		metrics.TotalPeriods += n
		day.Total += n

		if a.HasSubstitute() {
			metrics.CoveredPeriods += n
			day.Covered += n
			subCounts[a.SubstituteID]++
			continue
		}

		for _, p := range a.Periods {
			metrics.Uncovered = append(metrics.Uncovered, UncoveredPeriod{
				AbsenceID:   a.ID,
				TeacherID:   a.TeacherID,
				TeacherName: schedules.TeacherName(a.TeacherID),
				Date:        a.Date,
				Period:      p,
			})
		}
	}

	for date, day := range dailyStats {
		day.Absent = len(dailyTeachers[date])
		if day.Total > 0 {
			day.CoverageRate = float64(day.Covered) / float64(day.Total) * 100
		}
		metrics.DailyCoverage[date] = *day
	}

	if metrics.TotalPeriods > 0 {
		metrics.OverallCoverage = float64(metrics.CoveredPeriods) / float64(metrics.TotalPeriods) * 100
	} else {
		metrics.OverallCoverage = 100
	}

	for id, n := range subCounts {
		metrics.Substitutes = append(metrics.Substitutes, SubstituteLoad{
			TeacherID: id,
			Name:      schedules.TeacherName(id),
			Count:     n,
		})
	}
	sort.Slice(metrics.Substitutes, func(i, j int) bool {
		if metrics.Substitutes[i].Count != metrics.Substitutes[j].Count {
			return metrics.Substitutes[i].Count > metrics.Substitutes[j].Count
		}
		return metrics.Substitutes[i].TeacherID < metrics.Substitutes[j].TeacherID
	})

	sort.SliceStable(metrics.Uncovered, func(i, j int) bool {
		a, b := metrics.Uncovered[i], metrics.Uncovered[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.TeacherID != b.TeacherID {
			return a.TeacherID < b.TeacherID
		}
		return a.Period < b.Period
	})

	return metrics
}

// Overview 总览计数
type Overview struct {
	TotalSchedules      int `json:"total_schedules"`
	ApprovedSchedules   int `json:"approved_schedules"`
	UnapprovedSchedules int `json:"unapproved_schedules"`
	Teachers            int `json:"teachers"`
	Absences            int `json:"absences"`
}

// BuildOverview 统计课表与缺勤记录总览
// 教师数按已批准课表去重
func BuildOverview(schedules model.ScheduleSet, absences []*model.Absence) Overview {
	approved := schedules.Approved()
	return Overview{
		TotalSchedules:      len(schedules),
		ApprovedSchedules:   len(approved),
		UnapprovedSchedules: len(schedules) - len(approved),
		Teachers:            len(approved.Teachers()),
		Absences:            len(absences),
	}
}
