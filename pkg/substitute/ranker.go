// Package substitute 提供代课教师推荐
package substitute

import (
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/hissa/hissa/pkg/availability"
	"github.com/hissa/hissa/pkg/logger"
	"github.com/hissa/hissa/pkg/model"
	"github.com/hissa/hissa/pkg/validator"
)

// Status 推荐结果状态
type Status string

const (
	StatusOK              Status = "ok"
	StatusTeacherNotFound Status = "teacher_not_found"
)

// Filter 候选人过滤模式
type Filter string

const (
	FilterAll     Filter = "all"
	FilterSubject Filter = "subject" // 仅同科
	FilterGrade   Filter = "grade"   // 仅本周也教该班者
)

// Options 推荐选项
type Options struct {
	ExcludeAdjacent    bool   // 前后相邻节次有课者也视为占用
	RecommendMaxCount  int    // 推荐标记允许的最大历史代课次数
	LightLoadThreshold int    // 轻负荷周课时阈值
	Locale             string // 姓名排序语言
}

// DefaultOptions 返回默认选项
func DefaultOptions() Options {
	return Options{
		RecommendMaxCount:  DefaultRecommendMax,
		LightLoadThreshold: DefaultLightLoad,
		Locale:             "ar",
	}
}

// Candidate 代课候选人
type Candidate struct {
	TeacherID         string   `json:"teacher_id"`
	OriginalID        string   `json:"original_id,omitempty"`
	Name              string   `json:"name"`
	Subject           string   `json:"subject"`
	Workload          int      `json:"workload"`
	SubstitutionCount int      `json:"substitution_count"`
	SameSubject       bool     `json:"same_subject"`
	SameGrade         bool     `json:"same_grade"`
	Score             int      `json:"score"`
	Category          Category `json:"category"`
	CategoryLabel     string   `json:"category_label"`
	Recommended       bool     `json:"recommended"`
	Warnings          []string `json:"warnings"`
	Rank              int      `json:"rank"`

	key          string
	teachesClass bool
}

// Key 课表节次关联标识
func (c *Candidate) Key() string {
	return c.key
}

// Request 推荐请求
type Request struct {
	AbsentTeacherID string
	Day             model.Day
	Periods         model.PeriodRange
	Subject         string   // 为空时从缺勤节次推断
	ExcludeIDs      []string // 同一缺勤事件中已选中的代课教师
	Filter          Filter
}

// Result 推荐结果
type Result struct {
	Status        Status         `json:"status"`
	Strategy      string         `json:"strategy"`
	AbsentTeacher *model.Teacher `json:"absent_teacher,omitempty"`
	Subject       string         `json:"subject,omitempty"`
	Candidates    []Candidate    `json:"candidates"`
	BusyCount     int            `json:"busy_count"`
}

// Snapshot 一次推荐调用所见的一致数据
type Snapshot struct {
	Index    *availability.Index
	Absences []*model.Absence

	counts map[string]int

	mu      sync.Mutex
	schools map[string]*Snapshot
}

// NewSnapshot 创建数据快照
func NewSnapshot(schedules model.ScheduleSet, absences []*model.Absence) *Snapshot {
	return &Snapshot{
		Index:    availability.NewIndex(schedules),
		Absences: absences,
		counts:   SubstitutionCounts(absences),
	}
}

// School 返回仅含该学校课表与缺勤记录的快照
// 未标注学校的缺勤记录计入任一学校；快照本身只含一所学校时直接返回自身
func (s *Snapshot) School(schoolID string) *Snapshot {
	if s.Index == nil {
		return s
	}
	schedules := s.Index.Schedules()
	if schools := schedules.Schools(); len(schools) <= 1 && (len(schools) == 0 || schools[0] == schoolID) {
		return s
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if local, ok := s.schools[schoolID]; ok {
		return local
	}

	absences := make([]*model.Absence, 0, len(s.Absences))
	for _, a := range s.Absences {
		if a != nil && (a.SchoolID == schoolID || a.SchoolID == "") {
			absences = append(absences, a)
		}
	}
	local := NewSnapshot(schedules.ForSchool(schoolID), absences)
	if s.schools == nil {
		s.schools = make(map[string]*Snapshot)
	}
	s.schools[schoolID] = local
	return local
}

// locate 查找缺勤教师，并把快照收窄到其所在学校
func (s *Snapshot) locate(teacherID string) (*model.Teacher, *Snapshot) {
	if s == nil || s.Index == nil {
		return nil, s
	}
	t, home := s.Index.Schedules().Locate(teacherID)
	if t == nil {
		return nil, s
	}
	return t, s.School(home.SchoolID)
}

// CountFor 教师的历史代课次数
func (s *Snapshot) CountFor(t *model.Teacher) int {
	counts := s.counts
	if counts == nil {
		counts = SubstitutionCounts(s.Absences)
	}
	n := counts[t.ID]
	if t.OriginalID != "" && t.OriginalID != t.ID {
		n += counts[t.OriginalID]
	}
	return n
}

// SubstitutionCounts 按代课教师统计缺勤记录数，每条记录计一次
func SubstitutionCounts(absences []*model.Absence) map[string]int {
	counts := make(map[string]int)
	for _, a := range absences {
		if a != nil && a.HasSubstitute() {
			counts[a.SubstituteID]++
		}
	}
	return counts
}

// Ranker 代课候选人排序器
type Ranker struct {
	strategy Strategy
	opts     Options
	detector *validator.ConflictDetector
	log      *logger.EngineLogger
}

// NewRanker 创建排序器，strategy 为空时使用 simple
func NewRanker(strategy Strategy, opts Options) *Ranker {
	if strategy == nil {
		strategy = SimpleStrategy{}
	}
	if opts.RecommendMaxCount <= 0 {
		opts.RecommendMaxCount = DefaultRecommendMax
	}
	if opts.Locale == "" {
		opts.Locale = "ar"
	}
	return &Ranker{
		strategy: strategy,
		opts:     opts,
		detector: validator.NewConflictDetector(&validator.DetectorConfig{CheckAdjacent: true}),
		log:      logger.NewEngineLogger(),
	}
}

// Strategy 当前策略
func (r *Ranker) Strategy() Strategy {
	return r.strategy
}

// WithStrategy 返回使用另一策略的排序器
func (r *Ranker) WithStrategy(s Strategy) *Ranker {
	cp := *r
	cp.strategy = s
	return &cp
}

// Rank 计算代课候选人
func (r *Ranker) Rank(snap *Snapshot, req Request) Result {
	start := time.Now()
	result := Result{
		Status:     StatusOK,
		Strategy:   r.strategy.Name(),
		Candidates: []Candidate{},
	}

	r.log.RankStart(req.AbsentTeacherID, string(req.Day), req.Periods.From, req.Periods.To, r.strategy.Name())

	if snap == nil || snap.Index == nil || snap.Index.Empty() {
		r.log.NoApprovedSchedule()
		result.Status = StatusTeacherNotFound
		return result
	}

	// 只在缺勤教师所在学校内计算
	absent, snap := snap.locate(req.AbsentTeacherID)
	if absent == nil {
		r.log.TeacherNotFound(req.AbsentTeacherID)
		result.Status = StatusTeacherNotFound
		return result
	}
	result.AbsentTeacher = absent
	idx := snap.Index

	ctx := r.absentContext(idx, absent, req)
	result.Subject = ctx.subject

	window := req.Periods
	if r.opts.ExcludeAdjacent {
		window = window.Widen(1)
	}
	busy := idx.Busy(req.Day, window)

	for _, t := range idx.Schedules().Teachers() {
		if t.Matches(absent.ID) || t.Matches(absent.Key()) {
			continue
		}
		if busy.Has(t.Key()) {
			result.BusyCount++
			continue
		}
		if excluded(t, req.ExcludeIDs) {
			continue
		}

		c := r.candidate(idx, snap, t, ctx)
		if !passes(c, req.Filter) {
			continue
		}

		conflicts := r.detector.Detect(idx, c.key, req.Day, req.Periods)
		c.Warnings = validator.Warnings(conflicts)
		result.Candidates = append(result.Candidates, c)
	}

	r.sort(result.Candidates)
	for i := range result.Candidates {
		result.Candidates[i].Rank = i + 1
	}

	r.log.RankComplete(req.AbsentTeacherID, time.Since(start), len(result.Candidates), result.BusyCount)
	return result
}

// absentSlotContext 缺勤节次信息
type absentSlotContext struct {
	subject    string
	classKeys  []string
	classNames []string
}

func (r *Ranker) absentContext(idx *availability.Index, absent *model.Teacher, req Request) absentSlotContext {
	ctx := absentSlotContext{subject: strings.TrimSpace(req.Subject)}

	for _, ref := range idx.SlotsOf(absent.Key(), req.Day) {
		if !req.Periods.Contains(ref.Slot.Period) {
			continue
		}
		if ctx.subject == "" {
			ctx.subject = ref.SubjectName()
		}
		if ref.Slot.ClassID != "" {
			ctx.classKeys = append(ctx.classKeys, ref.Slot.ClassID)
		}
		if name := ref.ClassName(); name != "" {
			ctx.classNames = append(ctx.classNames, name)
		}
	}

	if ctx.subject == "" {
		ctx.subject = absent.Subject
	}
	return ctx
}

func (r *Ranker) candidate(idx *availability.Index, snap *Snapshot, t *model.Teacher, ctx absentSlotContext) Candidate {
	key := t.Key()
	c := Candidate{
		TeacherID:         t.ID,
		OriginalID:        t.OriginalID,
		Name:              t.Name,
		Subject:           t.Subject,
		Workload:          idx.Workload(key),
		SubstitutionCount: snap.CountFor(t),
		key:               key,
	}
	if c.Name == "" {
		c.Name = model.UnknownTeacherName
	}

	c.SameSubject = sameSubject(ctx.subject, t.Subject, idx.Subjects(key))
	c.teachesClass = teachesAny(idx, key, ctx.classKeys)
	c.SameGrade = c.teachesClass || sharesGrade(t.Subject, ctx.classNames)

	r.strategy.Evaluate(&c, r.opts)
	c.CategoryLabel = c.Category.Label()
	c.Recommended = c.SameSubject && c.SubstitutionCount <= r.opts.RecommendMaxCount
	return c
}

// sort 策略比较，其次按语言排序规则比较姓名，最后按标识
func (r *Ranker) sort(candidates []Candidate) {
	col := collate.New(language.Make(r.opts.Locale))
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := &candidates[i], &candidates[j]
		if cmp := r.strategy.Compare(a, b); cmp != 0 {
			return cmp < 0
		}
		if cmp := col.CompareString(a.Name, b.Name); cmp != 0 {
			return cmp < 0
		}
		return a.TeacherID < b.TeacherID
	})
}

func excluded(t *model.Teacher, ids []string) bool {
	for _, id := range ids {
		if t.Matches(id) {
			return true
		}
	}
	return false
}

func passes(c Candidate, filter Filter) bool {
	switch filter {
	case FilterSubject:
		return c.SameSubject
	case FilterGrade:
		return c.teachesClass
	default:
		return true
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func sameSubject(subject, primary string, taught []string) bool {
	want := normalize(subject)
	if want == "" {
		return false
	}
	if normalize(primary) == want {
		return true
	}
	for _, s := range taught {
		if normalize(s) == want {
			return true
		}
	}
	return false
}

func teachesAny(idx *availability.Index, key string, classKeys []string) bool {
	for _, ck := range classKeys {
		if idx.TeachesClass(key, ck) {
			return true
		}
	}
	return false
}

// sharesGrade 科目名称包含班级名的年级部分（"7/أ" 取 "7"）
func sharesGrade(subject string, classNames []string) bool {
	subject = normalize(subject)
	if subject == "" {
		return false
	}
	for _, name := range classNames {
		grade := normalize(strings.SplitN(name, "/", 2)[0])
		if grade != "" && strings.Contains(subject, grade) {
			return true
		}
	}
	return false
}
