package substitute

import (
	"strings"

	apperrors "github.com/hissa/hissa/pkg/errors"
)

// Category 候选人分类，仅用于展示
type Category string

const (
	CategorySameSubject Category = "same_subject"
	CategoryAvailable   Category = "available"
	CategorySameGrade   Category = "same_grade"
	CategoryLightLoad   Category = "light_load"
)

var categoryLabels = map[Category]string{
	CategorySameSubject: "نفس المادة",
	CategoryAvailable:   "متاح حسب الجدول",
	CategorySameGrade:   "خبرة في الصف",
	CategoryLightLoad:   "حمل خفيف",
}

// Label 阿拉伯语分类标签
func (c Category) Label() string {
	return categoryLabels[c]
}

// 加权评分参数
const (
	BaseScore           = 100
	SameSubjectBonus    = 100
	SameGradeBonus      = 50
	LightLoadBonus      = 30
	DefaultLightLoad    = 15
	DefaultRecommendMax = 2
)

// Strategy 排序策略
// Evaluate 填充评分与分类；Compare 返回负数表示 a 排在 b 前，0 表示交由名称排序决定
type Strategy interface {
	Name() string
	Evaluate(c *Candidate, opts Options)
	Compare(a, b *Candidate) int
}

// SimpleStrategy 字典序排序：同科优先，其次代课次数少者优先
type SimpleStrategy struct{}

// Name 策略名
func (SimpleStrategy) Name() string { return "simple" }

// Evaluate 同科为 same_subject，其余为 available
func (SimpleStrategy) Evaluate(c *Candidate, _ Options) {
	if c.SameSubject {
		c.Category = CategorySameSubject
	} else {
		c.Category = CategoryAvailable
	}
	c.Score = 0
}

// Compare 比较两个候选人
func (SimpleStrategy) Compare(a, b *Candidate) int {
	if a.SameSubject != b.SameSubject {
		if a.SameSubject {
			return -1
		}
		return 1
	}
	return a.SubstitutionCount - b.SubstitutionCount
}

// WeightedStrategy 加权评分排序
type WeightedStrategy struct{}

// Name 策略名
func (WeightedStrategy) Name() string { return "weighted" }

// Evaluate 基础分 100-周课时，同科 +100，同年级经验 +50，轻负荷 +30
// 分类取命中的最高优先级
func (WeightedStrategy) Evaluate(c *Candidate, opts Options) {
	threshold := opts.LightLoadThreshold
	if threshold <= 0 {
		threshold = DefaultLightLoad
	}
	lightLoad := c.Workload < threshold

	score := BaseScore - c.Workload
	if c.SameSubject {
		score += SameSubjectBonus
	}
	if c.SameGrade {
		score += SameGradeBonus
	}
	if lightLoad {
		score += LightLoadBonus
	}
	c.Score = score

	switch {
	case c.SameSubject:
		c.Category = CategorySameSubject
	case c.SameGrade:
		c.Category = CategorySameGrade
	case lightLoad:
		c.Category = CategoryLightLoad
	default:
		c.Category = CategoryAvailable
	}
}

// Compare 分数高者优先
func (WeightedStrategy) Compare(a, b *Candidate) int {
	return b.Score - a.Score
}

// StrategyByName 按名称获取策略，空名称返回 simple
func StrategyByName(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "simple":
		return SimpleStrategy{}, nil
	case "weighted":
		return WeightedStrategy{}, nil
	default:
		return nil, apperrors.InvalidInput("strategy", "应为 simple 或 weighted")
	}
}
