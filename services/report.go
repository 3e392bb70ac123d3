package services

import "personality_engine/models"

// BuildChangeReport 构建前后分数对比报告，仅包含实际变化（严格不等）的特征，
// 未变化的特征省略，保持报告对下游解释文本的最小有效性
func BuildChangeReport(before, after map[string]float64) map[string]models.ScoreChange {
	changes := make(map[string]models.ScoreChange)
	for trait, updated := range after {
		original := before[trait]
		if updated != original {
			changes[trait] = models.ScoreChange{Original: original, Updated: updated}
		}
	}
	return changes
}
