package services

import (
	"math"
	"time"

	"personality_engine/logger"
	"personality_engine/models"
)

// DecayCalculator 时间衰减计算器
// 权重 = exp(-factor * 事件年龄天数 / 窗口天数)，单调不增且有界，
// 让近期行为占主导而不完全丢弃较早的信号
type DecayCalculator struct {
	Factor     float64 // 衰减因子
	WindowDays int     // 基础时间窗口（天）
}

// NewDecayCalculator 创建衰减计算器，非法参数回退到默认值
func NewDecayCalculator(factor float64, windowDays int) DecayCalculator {
	if factor <= 0 {
		factor = 0.1
	}
	if windowDays <= 0 {
		windowDays = 30
	}
	return DecayCalculator{Factor: factor, WindowDays: windowDays}
}

// Weight 计算事件时间戳对应的衰减权重，范围(0,1]
// 时间戳无法解析时返回0.0并记录日志，调用方按零权重处理而非中断
func (d DecayCalculator) Weight(eventTime string, now time.Time) float64 {
	t, err := models.ParseEventTime(eventTime)
	if err != nil {
		logger.Warn("计算时间权重失败，按零权重处理", "timestamp", eventTime, "error", err)
		return 0.0
	}
	return d.WeightAt(t, now)
}

// WeightAt 按已解析的事件时间计算衰减权重
func (d DecayCalculator) WeightAt(t time.Time, now time.Time) float64 {
	ageDays := math.Floor(now.Sub(t).Hours() / 24)
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-d.Factor * ageDays / float64(d.WindowDays))
}
