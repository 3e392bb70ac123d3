package services

import (
	"math"
	"time"

	"personality_engine/logger"
	"personality_engine/models"
)

// AggregateBucket 计算单个(特征,交互类型)桶的频率强化贡献
//
//	weighted_i = baseWeight * decay(t_i)
//	contribution = sum(weighted_i) * ln(1+n)
//
// ln(1+n)乘子让窗口内重复同类行为超线性计分（增量递减但始终递增）：
// 单次冲动行为对特征的影响有限，持续行为才会被显著强化。
// 无法解析时间戳的事件按零权重跳过，不计入n。
func AggregateBucket(baseWeight float64, timestamps []string, decay DecayCalculator, now time.Time) float64 {
	total := 0.0
	n := 0
	for _, ts := range timestamps {
		t, err := models.ParseEventTime(ts)
		if err != nil {
			logger.Warn("事件时间戳无法解析，跳过该事件", "timestamp", ts)
			continue
		}
		total += baseWeight * decay.WeightAt(t, now)
		n++
	}
	if n == 0 {
		return 0.0
	}
	return total * math.Log(1+float64(n))
}

// ClampScore 将分数限制在[min,max]区间
func ClampScore(score, min, max float64) float64 {
	if score < min {
		return min
	}
	if score > max {
		return max
	}
	return score
}
