package models

import (
	"fmt"
	"time"
)

// 交互类型枚举（闭集），基础权重由配置注入
const (
	InteractionView          = "view"
	InteractionLike          = "like"
	InteractionComment       = "comment"
	InteractionAddToCart     = "add_to_cart"
	InteractionPurchase      = "purchase"
	InteractionCollect       = "collect"
	InteractionNoInteraction = "no_interaction" // 仅作为惩罚权重使用，不允许写入事件
)

// ValidInteractionTypes 可记录的交互类型集合
var ValidInteractionTypes = map[string]bool{
	InteractionView:      true,
	InteractionLike:      true,
	InteractionComment:   true,
	InteractionAddToCart: true,
	InteractionPurchase:  true,
	InteractionCollect:   true,
}

// BehaviorEvent 用户行为事件，追加写入，仅由保留清理删除
type BehaviorEvent struct {
	ID               int64    `db:"id" json:"id"`
	UserID           string   `db:"user_id" json:"user_id"`
	ContentID        string   `db:"content_id" json:"content_id"`
	InteractionType  string   `db:"interaction_type" json:"interaction_type"`
	ContentType      string   `db:"content_type" json:"content_type"`
	AssociatedTraits []string `db:"associated_traits" json:"associated_traits"` // 事件关联的特征名列表
	Timestamp        string   `db:"timestamp" json:"timestamp"`                 // ISO-8601 字符串
	Folded           bool     `db:"folded" json:"folded"`                       // 是否已计入分数更新
}

// 事件时间戳允许的格式
var eventTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseEventTime 解析事件时间戳，逐个尝试允许的格式
func ParseEventTime(ts string) (time.Time, error) {
	for _, layout := range eventTimeLayouts {
		if t, err := time.ParseInLocation(layout, ts, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析事件时间戳: %q", ts)
}

// FormatEventTime 将时间格式化为事件存储格式
func FormatEventTime(t time.Time) string {
	return t.Format("2006-01-02T15:04:05")
}
