package models

// APIResponse 通用API响应结构
// @Description 通用API响应格式
type APIResponse struct {
	Code    int         `json:"code" example:"0"`           // 响应码，0表示成功
	Message string      `json:"message" example:"success"`  // 响应消息
	Data    interface{} `json:"data" swaggertype:"object"`  // 响应数据
}

// FeedbackRequest 行为反馈请求
// @Description 记录用户交互行为的请求体
type FeedbackRequest struct {
	UserID           string   `json:"user_id" example:"1001"`                  // 用户ID
	ContentID        string   `json:"item_id" example:"c-2083"`                // 内容ID
	InteractionType  string   `json:"interaction_type" example:"like"`         // 交互类型
	ContentType      string   `json:"content_type" example:"content"`          // 内容类型
	AssociatedTraits []string `json:"associated_traits" example:"开放性,外向性"` // 关联的性格特征
	Timestamp        string   `json:"timestamp,omitempty"`                     // 可选，缺省取当前时间
}

// UpdateRequest 分数更新请求
// @Description 触发分数更新的可选参数
type UpdateRequest struct {
	WindowDays     int `json:"window_days,omitempty" example:"30"`    // 聚合窗口（天）
	InactivityDays int `json:"inactivity_days,omitempty" example:"7"` // 不活跃子窗口（天）
}
