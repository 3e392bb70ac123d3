package services

import (
	"context"
	"time"

	"personality_engine/models"
)

// EventStore 行为事件存储接口
type EventStore interface {
	// 追加一条行为事件
	Insert(ev *models.BehaviorEvent) error

	// 返回用户尚未计入分数更新的事件
	ListUnfolded(userID string) ([]models.BehaviorEvent, error)

	// 将事件标记为已计入分数更新
	MarkFolded(ids []int64) error

	// 删除早于截止时间且已计入更新的事件
	DeleteFoldedBefore(userID string, cutoff time.Time) (int64, error)
}

// ScoreStore 性格分数存储接口
type ScoreStore interface {
	// 返回有序特征列表（特征schema），每轮更新获取一次
	Schema() (models.TraitSchema, error)

	// 返回所有有分数行的用户ID
	ListUserIDs() ([]string, error)

	// 读取用户当前分数，NULL列不出现在返回值中
	GetScores(userID string, schema models.TraitSchema) (map[string]float64, error)

	// 在单个事务内写入用户全部更新分数并记录变化
	UpdateScores(userID string, scores map[string]float64, changes map[string]models.ScoreChange) error

	// 返回用户最近的分数变化记录
	RecentChanges(userID string, limit int) ([]models.PersonalityChange, error)
}

// BehaviorAnalyzer 行为分析器接口，返回结构化的特征分析结果
// 文本解析属于实现方的边界职责，引擎只消费类型化的结果
type BehaviorAnalyzer interface {
	AnalyzeUserBehavior(ctx context.Context, userID string, events []models.BehaviorEvent) (models.TraitAnalysisSummary, error)
}
