package handlers

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"

	"personality_engine/config"
	_ "personality_engine/docs" // 导入 swagger 文档
	"personality_engine/models"
	"personality_engine/services"
	"personality_engine/utils"
)

// ScoreHandler 分数引擎的HTTP触发面
type ScoreHandler struct {
	cfg    *config.Config
	svc    *services.ScoreService
	scores services.ScoreStore
}

// NewScoreHandler 创建处理器
func NewScoreHandler(cfg *config.Config, svc *services.ScoreService, scores services.ScoreStore) *ScoreHandler {
	return &ScoreHandler{cfg: cfg, svc: svc, scores: scores}
}

// FeedbackHandler godoc
// @Summary 记录用户交互行为
// @Description 追加一条行为事件到事件日志，等待下一轮分数更新折算
// @Tags 行为反馈
// @Accept json
// @Produce json
// @Param request body models.FeedbackRequest true "行为反馈"
// @Success 200 {object} models.APIResponse "成功"
// @Failure 400 {object} models.APIResponse "参数错误"
// @Failure 500 {object} models.APIResponse "服务器错误"
// @Router /api/feedback [post]
func (h *ScoreHandler) FeedbackHandler(w http.ResponseWriter, r *http.Request) {
	var req models.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteErrorResponse(w, models.CodeInvalidParams, map[string]interface{}{})
		return
	}

	ev := &models.BehaviorEvent{
		UserID:           req.UserID,
		ContentID:        req.ContentID,
		InteractionType:  req.InteractionType,
		ContentType:      req.ContentType,
		AssociatedTraits: req.AssociatedTraits,
		Timestamp:        req.Timestamp,
	}

	if err := h.svc.RecordInteraction(ev); err != nil {
		if !models.ValidInteractionTypes[req.InteractionType] {
			utils.WriteCustomErrorResponse(w, models.CodeInvalidInteraction, err.Error(), map[string]interface{}{})
			return
		}
		utils.WriteCustomErrorResponse(w, models.CodeServerError, err.Error(), map[string]interface{}{})
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"event_id": ev.ID,
	})
}

// UpdateScoresHandler godoc
// @Summary 触发一轮分数更新
// @Description 对所有用户执行分数更新周期，返回部分成功报告（成功/失败用户及前后分数）
// @Tags 分数更新
// @Accept json
// @Produce json
// @Param request body models.UpdateRequest false "可选窗口参数"
// @Success 200 {object} models.APIResponse "成功"
// @Failure 500 {object} models.APIResponse "服务器错误"
// @Router /api/score/update [post]
func (h *ScoreHandler) UpdateScoresHandler(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateRequest
	if r.Body != nil {
		// 请求体可选，解析失败按默认参数处理
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	opts := services.UpdateOptions{
		WindowDays:     req.WindowDays,
		InactivityDays: req.InactivityDays,
	}

	report, err := h.svc.UpdateAll(r.Context(), opts)
	if err != nil {
		utils.WriteCustomErrorResponse(w, models.CodeScoreUpdateError, err.Error(), map[string]interface{}{})
		return
	}

	utils.WriteSuccessResponse(w, report)
}

// GetPersonalityHandler godoc
// @Summary 查询用户性格分数
// @Description 返回用户分数最高的前10个性格特征
// @Tags 性格画像
// @Produce json
// @Param uid path string true "用户ID"
// @Success 200 {object} models.APIResponse "成功"
// @Failure 400 {object} models.APIResponse "参数错误"
// @Failure 404 {object} models.APIResponse "用户不存在"
// @Router /api/personality/{uid} [get]
func (h *ScoreHandler) GetPersonalityHandler(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	if !utils.ValidateUserID(w, uid) {
		return
	}

	schema, err := h.scores.Schema()
	if err != nil {
		utils.WriteCustomErrorResponse(w, models.CodeDatabaseError, err.Error(), map[string]interface{}{})
		return
	}

	scores, err := h.scores.GetScores(uid, schema)
	if err != nil {
		utils.HandleServiceError(w, err, models.CodeUserNotFound)
		return
	}

	// 按分数降序取前10个特征
	type traitScore struct {
		name  string
		value float64
	}
	sorted := make([]traitScore, 0, len(scores))
	for name, value := range scores {
		sorted = append(sorted, traitScore{name, value})
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].value > sorted[j].value
	})
	if len(sorted) > 10 {
		sorted = sorted[:10]
	}

	traits := make([]string, 0, len(sorted))
	values := make([]float64, 0, len(sorted))
	for _, ts := range sorted {
		traits = append(traits, ts.name)
		values = append(values, ts.value)
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"uid":    uid,
		"traits": traits,
		"scores": values,
	})
}

// GetRecentChangesHandler godoc
// @Summary 查询用户最近的分数变化
// @Description 返回用户最近10条分数变化记录
// @Tags 性格画像
// @Produce json
// @Param uid path string true "用户ID"
// @Success 200 {object} models.APIResponse "成功"
// @Failure 400 {object} models.APIResponse "参数错误"
// @Router /api/personality/changes/{uid} [get]
func (h *ScoreHandler) GetRecentChangesHandler(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	if !utils.ValidateUserID(w, uid) {
		return
	}

	changes, err := h.scores.RecentChanges(uid, 10)
	if err != nil {
		utils.HandleServiceError(w, err, models.CodeNoChangeData)
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"uid":      uid,
		"changes":  changes,
		"has_data": len(changes) > 0,
	})
}

// RegisterRoutes 注册全部路由
func RegisterRoutes(r *chi.Mux, cfg *config.Config, svc *services.ScoreService, scores services.ScoreStore) {
	h := NewScoreHandler(cfg, svc, scores)

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Post("/api/feedback", h.FeedbackHandler)
	r.Post("/api/score/update", h.UpdateScoresHandler)
	r.Get("/api/personality/{uid}", h.GetPersonalityHandler)
	r.Get("/api/personality/changes/{uid}", h.GetRecentChangesHandler)
}
