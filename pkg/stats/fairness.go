// Package stats 提供课时统计与公平性分析功能
package stats

import (
	"math"
	"sort"

	"github.com/hissa/hissa/pkg/model"
)

// Band 公平性等级
type Band string

const (
	BandExcellent Band = "excellent"
	BandGood      Band = "good"
	BandFair      Band = "fair"
	BandPoor      Band = "poor"
	BandUnknown   Band = "unknown"
)

// BandOf 按指数划分等级
func BandOf(index float64) Band {
	switch {
	case index >= 85:
		return BandExcellent
	case index >= 70:
		return BandGood
	case index >= 50:
		return BandFair
	default:
		return BandPoor
	}
}

// TeacherStat 教师课时统计
type TeacherStat struct {
	TeacherID     string   `json:"teacher_id"`
	OriginalID    string   `json:"original_id,omitempty"`
	Name          string   `json:"name"`
	Subject       string   `json:"subject"`
	TotalPeriods  int      `json:"total_periods"`
	Subjects      []string `json:"subjects"`
	Deviation     float64  `json:"deviation"`      // 与平均值的偏差百分比
	FairnessScore float64  `json:"fairness_score"` // 100-|偏差|，不低于 0
}

// FairnessMetrics 公平性指标
type FairnessMetrics struct {
	Index  float64 `json:"index"` // 0-100
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    int     `json:"min"`
	Max    int     `json:"max"`
	Band   Band    `json:"band"`
	Gini   float64 `json:"gini"` // 0=完全均衡
	Count  int     `json:"count"`
}

// ComputeFairness 计算课时分布公平性
// 只统计至少有一节课的教师
func ComputeFairness(teachers []TeacherStat) FairnessMetrics {
	values := make([]float64, 0, len(teachers))
	for _, t := range teachers {
		if t.TotalPeriods > 0 {
			values = append(values, float64(t.TotalPeriods))
		}
	}

	metrics := FairnessMetrics{Band: BandUnknown, Count: len(values)}
	if len(values) == 0 {
		return metrics
	}

	mean := calculateMean(values)
	stdDev := math.Sqrt(calculateVariance(values, mean))
	maxV, minV := calculateRange(values)

	metrics.Mean = mean
	metrics.StdDev = stdDev
	metrics.Min = int(minV)
	metrics.Max = int(maxV)
	metrics.Gini = calculateGini(values)

	if mean <= 0 {
		return metrics
	}
	metrics.Index = math.Max(0, math.Min(100, 100-(stdDev/mean)*100))
	metrics.Band = BandOf(metrics.Index)
	return metrics
}

// WorkloadAnalyzer 课时分析器
type WorkloadAnalyzer struct{}

// NewWorkloadAnalyzer 创建课时分析器
func NewWorkloadAnalyzer() *WorkloadAnalyzer {
	return &WorkloadAnalyzer{}
}

// WorkloadReport 课时报告
type WorkloadReport struct {
	Teachers     []TeacherStat     `json:"teachers"`
	Fairness     FairnessMetrics   `json:"fairness"`
	Subjects     []SubjectShare    `json:"subjects"`
	Daily        map[model.Day]int `json:"daily"`
	TotalPeriods int               `json:"total_periods"`
}

// SubjectShare 科目课时占比
type SubjectShare struct {
	Subject  string  `json:"subject"`
	Periods  int     `json:"periods"`
	Teachers int     `json:"teachers"`
	Share    float64 `json:"share"` // 百分比
}

// Analyze 分析已批准课表的课时分布
func (a *WorkloadAnalyzer) Analyze(schedules model.ScheduleSet) *WorkloadReport {
	approved := schedules.Approved()
	teachers := BuildTeacherStats(approved)
	report := &WorkloadReport{
		Teachers: teachers,
		Fairness: ComputeFairness(teachers),
		Subjects: SubjectDistribution(approved),
		Daily:    DailyLoad(approved),
	}
	for _, t := range teachers {
		report.TotalPeriods += t.TotalPeriods
	}
	return report
}

// teacherKey 节次关联的教师，原始标识只在同一学校内唯一
type teacherKey struct {
	school string
	id     string
}

// BuildTeacherStats 统计每位教师的周课时
// 引用未知教师的节次被跳过
func BuildTeacherStats(schedules model.ScheduleSet) []TeacherStat {
	statMap := make(map[teacherKey]*TeacherStat)
	subjectSets := make(map[teacherKey]map[string]struct{})
	order := make([]teacherKey, 0)
	seen := make(map[string]struct{})

	for _, s := range schedules {
		if s == nil {
			continue
		}
		for i := range s.Teachers {
			t := &s.Teachers[i]
			key := teacherKey{school: s.SchoolID, id: t.Key()}
			if _, ok := seen[t.ID]; ok {
				continue
			}
			if _, ok := statMap[key]; ok {
				continue
			}
			seen[t.ID] = struct{}{}
			statMap[key] = &TeacherStat{
				TeacherID:  t.ID,
				OriginalID: t.OriginalID,
				Name:       t.Name,
				Subject:    t.Subject,
			}
			subjectSets[key] = make(map[string]struct{})
			order = append(order, key)
		}
	}

	schedules.Each(func(ref model.SlotRef) {
		key := teacherKey{school: ref.Schedule.SchoolID, id: ref.Slot.TeacherID}
		stat, ok := statMap[key]
		if !ok {
			return
		}
		stat.TotalPeriods++
		if name := ref.SubjectName(); name != "" {
			subjectSets[key][name] = struct{}{}
		}
	})

	result := make([]TeacherStat, 0, len(order))
	for _, key := range order {
		stat := statMap[key]
		for name := range subjectSets[key] {
			stat.Subjects = append(stat.Subjects, name)
		}
		sort.Strings(stat.Subjects)
		if stat.Subjects == nil {
			stat.Subjects = []string{}
		}
		result = append(result, *stat)
	}

	applyDeviation(result)

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].TotalPeriods != result[j].TotalPeriods {
			return result[i].TotalPeriods > result[j].TotalPeriods
		}
		return result[i].TeacherID < result[j].TeacherID
	})
	return result
}

// applyDeviation 更新教师偏差与个人公平分
func applyDeviation(teachers []TeacherStat) {
	values := make([]float64, 0, len(teachers))
	for _, t := range teachers {
		if t.TotalPeriods > 0 {
			values = append(values, float64(t.TotalPeriods))
		}
	}
	mean := calculateMean(values)
	if mean <= 0 {
		return
	}
	for i := range teachers {
		dev := (float64(teachers[i].TotalPeriods) - mean) / mean * 100
		teachers[i].Deviation = dev
		teachers[i].FairnessScore = math.Max(0, 100-math.Abs(dev))
	}
}

// SubjectDistribution 各科目课时分布，按课时降序
func SubjectDistribution(schedules model.ScheduleSet) []SubjectShare {
	periods := make(map[string]int)
	teachers := make(map[string]map[teacherKey]struct{})
	total := 0

	schedules.Each(func(ref model.SlotRef) {
		name := ref.SubjectName()
		if name == "" {
			return
		}
		periods[name]++
		if teachers[name] == nil {
			teachers[name] = make(map[teacherKey]struct{})
		}
		teachers[name][teacherKey{school: ref.Schedule.SchoolID, id: ref.Slot.TeacherID}] = struct{}{}
		total++
	})

	result := make([]SubjectShare, 0, len(periods))
	for name, n := range periods {
		result = append(result, SubjectShare{
			Subject:  name,
			Periods:  n,
			Teachers: len(teachers[name]),
			Share:    float64(n) / float64(total) * 100,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Periods != result[j].Periods {
			return result[i].Periods > result[j].Periods
		}
		return result[i].Subject < result[j].Subject
	})
	return result
}

// DailyLoad 每个教学日的总节数
func DailyLoad(schedules model.ScheduleSet) map[model.Day]int {
	result := make(map[model.Day]int, len(model.Days))
	for _, d := range model.Days {
		result[d] = 0
	}
	schedules.Each(func(ref model.SlotRef) {
		if ref.Slot.Day.Valid() {
			result[ref.Slot.Day]++
		}
	})
	return result
}

// calculateMean 计算平均值
func calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// calculateVariance 计算总体方差
func calculateVariance(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sumSquares := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return sumSquares / float64(len(values))
}

// calculateRange 计算极值
func calculateRange(values []float64) (max, min float64) {
	if len(values) == 0 {
		return 0, 0
	}
	max, min = values[0], values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
		if v < min {
			min = v
		}
	}
	return
}

// calculateGini 计算基尼系数
func calculateGini(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	if sum == 0 {
		return 0
	}

	gini := 0.0
	for i, v := range sorted {
		gini += (2*float64(i+1) - float64(n) - 1) * v
	}

	gini = gini / (float64(n) * sum)
	return math.Max(0, math.Min(1, gini))
}
