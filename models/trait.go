package models

import "time"

// TraitScore 单个用户在单个性格特征上的分数，取值范围 [0,100]
type TraitScore struct {
	UserID    string  `db:"user_id" json:"user_id"`
	TraitName string  `db:"trait_name" json:"trait_name"`
	Value     float64 `db:"value" json:"value"`
}

// TraitSchema 用户性格特征表的有序特征名列表（不含标识列），每轮更新获取一次
type TraitSchema struct {
	Traits []string `json:"traits"`
}

// Contains 判断特征名是否在schema中
func (s TraitSchema) Contains(name string) bool {
	for _, t := range s.Traits {
		if t == name {
			return true
		}
	}
	return false
}

// ScoreChange 单个特征的更新前后分数
type ScoreChange struct {
	Original float64 `json:"original"`
	Updated  float64 `json:"updated"`
}

// PersonalityChange 持久化的分数变化记录，供变化查询接口使用
type PersonalityChange struct {
	UserID     string    `db:"user_id" json:"user_id"`
	TraitName  string    `db:"trait_name" json:"trait_name"`
	OldValue   float64   `db:"old_value" json:"old_value"`
	NewValue   float64   `db:"new_value" json:"new_value"`
	ChangeTime time.Time `db:"change_time" json:"change_time"`
}

// 行为强度枚举
const (
	StrengthLow       = "低"
	StrengthLowMedium = "较低"
	StrengthMedium    = "中"
	StrengthHighAbove = "较高"
	StrengthHigh      = "高"
)

// 影响程度枚举
const (
	ImpactLow    = "低"
	ImpactMedium = "中"
	ImpactHigh   = "高"
)

// impactWeights 影响程度对特征分数增量的缩放系数
var impactWeights = map[string]float64{
	ImpactHigh:   1.5,
	ImpactMedium: 1.0,
	ImpactLow:    0.5,
}

// ImpactWeight 返回影响程度对应的缩放系数，未知取1.0
func ImpactWeight(level string) float64 {
	if w, ok := impactWeights[level]; ok {
		return w
	}
	return 1.0
}

// TraitAnalysis 行为分析器对单个特征的结构化分析结果
type TraitAnalysis struct {
	RelatedBehaviors []string `json:"related_behaviors"` // 相关行为
	BehaviorStrength string   `json:"behavior_strength"` // 行为强度：低/较低/中/较高/高
	ImpactLevel      string   `json:"impact_level"`      // 影响程度：低/中/高
}

// TraitAnalysisSummary 行为分析器输出，按特征名索引，仅在单轮更新内使用，不持久化
type TraitAnalysisSummary map[string]TraitAnalysis
