package models

import "time"

// 用户更新周期的状态机状态
type UpdateState int

const (
	StateLoad UpdateState = iota
	StateCompute
	StatePersist
	StateDone
	StateFailed
)

// String 返回状态名
func (s UpdateState) String() string {
	switch s {
	case StateLoad:
		return "LOAD"
	case StateCompute:
		return "COMPUTE"
	case StatePersist:
		return "PERSIST"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// UserUpdateResult 单个用户更新周期的结果
type UserUpdateResult struct {
	UserID  string                 `json:"user_id"`
	State   UpdateState            `json:"-"`
	Changes map[string]ScoreChange `json:"changes,omitempty"` // 仅包含实际变化的特征
	Err     error                  `json:"-"`
}

// UpdateReport 一次批量更新的汇总报告，上游只会看到部分成功的结果，不会看到裸异常
type UpdateReport struct {
	RunID     string                            `json:"run_id"`
	StartedAt time.Time                         `json:"started_at"`
	Duration  time.Duration                     `json:"duration"`
	Succeeded []string                          `json:"succeeded"`
	Failed    map[string]string                 `json:"failed,omitempty"` // user_id -> 失败原因
	Changes   map[string]map[string]ScoreChange `json:"changes"`          // user_id -> trait -> 前后分数
}
