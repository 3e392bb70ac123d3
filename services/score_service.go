package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"personality_engine/config"
	"personality_engine/logger"
	"personality_engine/models"
	"personality_engine/utils"
)

// ErrUnknownUser 用户在特征schema中没有分数行
var ErrUnknownUser = errors.New("用户不存在于特征表中")

// UpdateOptions 单轮更新的可选参数，零值回退到配置默认
type UpdateOptions struct {
	WindowDays     int                         // 聚合窗口（天）
	InactivityDays int                         // 不活跃判定子窗口（天）
	Analysis       models.TraitAnalysisSummary // 可选的行为分析结果，仅本轮使用
}

// ScoreService 分数更新编排器
// 每个用户的更新周期按 LOAD → COMPUTE → PERSIST → DONE 推进，
// LOAD/PERSIST 失败只影响当前用户，不会中断批量任务
type ScoreService struct {
	cfg      *config.Config
	events   EventStore
	scores   ScoreStore
	analyzer BehaviorAnalyzer // 可为nil，nil时跳过行为分析
	decay    DecayCalculator

	// 便于测试注入固定时钟
	Now func() time.Time
}

// NewScoreService 创建分数更新服务
func NewScoreService(cfg *config.Config, events EventStore, scores ScoreStore, analyzer BehaviorAnalyzer) *ScoreService {
	return &ScoreService{
		cfg:      cfg,
		events:   events,
		scores:   scores,
		analyzer: analyzer,
		decay:    NewDecayCalculator(cfg.Scoring.DecayFactor, cfg.Scoring.WindowDays),
		Now:      time.Now,
	}
}

// RecordInteraction 记录一条用户交互行为（事件边界的追加侧）
func (s *ScoreService) RecordInteraction(ev *models.BehaviorEvent) error {
	if ev.UserID == "" || ev.ContentID == "" || ev.InteractionType == "" || ev.ContentType == "" {
		return fmt.Errorf("缺少必要参数")
	}
	if !models.ValidInteractionTypes[ev.InteractionType] {
		return fmt.Errorf("无效的交互类型: %s", ev.InteractionType)
	}
	ev.AssociatedTraits = utils.NormalizeTraitNames(ev.AssociatedTraits)
	if ev.Timestamp == "" {
		ev.Timestamp = models.FormatEventTime(s.Now())
	}
	return s.events.Insert(ev)
}

// cycleEvent 本轮周期内加载的事件及其解析结果
type cycleEvent struct {
	ev       models.BehaviorEvent
	at       time.Time
	parsed   bool
	inWindow bool
}

// traitAgg 单个特征在本轮周期内的事件聚合
type traitAgg struct {
	buckets map[string][]string // 交互类型 -> 时间戳列表
	recent  bool                // 子窗口内是否有任意关联行为
}

// UpdateUser 执行单个用户的分数更新周期
func (s *ScoreService) UpdateUser(ctx context.Context, userID string, schema models.TraitSchema, opts UpdateOptions) *models.UserUpdateResult {
	result := &models.UserUpdateResult{UserID: userID, State: models.StateLoad}

	windowDays := opts.WindowDays
	if windowDays <= 0 {
		windowDays = s.cfg.Scoring.WindowDays
	}
	inactivityDays := opts.InactivityDays
	if inactivityDays <= 0 {
		inactivityDays = s.cfg.Scoring.InactivityDays
	}

	now := s.Now()
	windowStart := now.AddDate(0, 0, -windowDays)
	inactivityStart := now.AddDate(0, 0, -inactivityDays)

	// ---------- LOAD ----------
	current, err := s.scores.GetScores(userID, schema)
	if err != nil {
		if utils.IsSQLNoRowsError(err) {
			result.State = models.StateFailed
			result.Err = ErrUnknownUser
		} else {
			result.State = models.StateFailed
			result.Err = fmt.Errorf("读取当前分数失败: %w", err)
		}
		return result
	}

	raw, err := s.events.ListUnfolded(userID)
	if err != nil {
		result.State = models.StateFailed
		result.Err = fmt.Errorf("读取行为事件失败: %w", err)
		return result
	}

	cycle := make([]cycleEvent, 0, len(raw))
	for _, ev := range raw {
		ce := cycleEvent{ev: ev}
		if t, perr := models.ParseEventTime(ev.Timestamp); perr == nil {
			ce.at = t
			ce.parsed = true
			ce.inWindow = !t.Before(windowStart)
		} else {
			// 时间戳损坏的事件按零权重处理，仍会在本轮结束时被折算标记
			logger.Warn("事件时间戳损坏，按零权重处理", "user_id", userID, "event_id", ev.ID, "timestamp", ev.Timestamp)
		}
		cycle = append(cycle, ce)
	}

	// ---------- COMPUTE ----------
	result.State = models.StateCompute

	analysis := opts.Analysis
	if analysis == nil && s.analyzer != nil && len(raw) > 0 {
		if summary, aerr := s.analyzer.AnalyzeUserBehavior(ctx, userID, raw); aerr != nil {
			// 分析失败不致命，退化为不加权的纯事件计分
			logger.Warn("行为分析失败，使用默认影响权重", "user_id", userID, "error", aerr)
		} else {
			analysis = summary
		}
	}

	aggs := make(map[string]*traitAgg)
	for _, ce := range cycle {
		if !ce.inWindow {
			continue
		}
		for _, trait := range utils.NormalizeTraitNames(ce.ev.AssociatedTraits) {
			if !schema.Contains(trait) {
				// 未识别的特征名丢弃，绝不计入分数
				logger.Debug("丢弃schema之外的特征名", "user_id", userID, "trait", trait)
				continue
			}
			agg, ok := aggs[trait]
			if !ok {
				agg = &traitAgg{buckets: make(map[string][]string)}
				aggs[trait] = agg
			}
			agg.buckets[ce.ev.InteractionType] = append(agg.buckets[ce.ev.InteractionType], ce.ev.Timestamp)
			if !ce.at.Before(inactivityStart) {
				agg.recent = true
			}
		}
	}

	weights := s.cfg.Scoring.Weights
	newScores := make(map[string]float64)
	for _, trait := range schema.Traits {
		agg, ok := aggs[trait]
		if !ok {
			// 本轮没有任何事件关联到该特征：保持原值不动，也不做不活跃惩罚
			continue
		}

		delta := 0.0
		for itype, timestamps := range agg.buckets {
			base, known := weights[itype]
			if !known {
				logger.Warn("权重表中不存在的交互类型，跳过", "user_id", userID, "interaction_type", itype)
				continue
			}
			delta += AggregateBucket(base, timestamps, s.decay, now)
		}

		if analysis != nil {
			if ta, ok := analysis[trait]; ok {
				delta *= models.ImpactWeight(ta.ImpactLevel)
			}
		}

		// 不活跃惩罚：本轮有关联事件但子窗口内无任何行为时扣一次，与桶数量无关
		if !agg.recent {
			delta += weights[models.InteractionNoInteraction]
		}

		old := current[trait] // NULL列读作0
		newScores[trait] = ClampScore(old+delta, 0, 100)
	}

	changes := BuildChangeReport(current, newScores)

	// ---------- PERSIST ----------
	if len(newScores) > 0 {
		result.State = models.StatePersist

		maxRetries := s.cfg.Scoring.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 3
		}

		var werr error
		for attempt := 1; attempt <= maxRetries; attempt++ {
			werr = s.scores.UpdateScores(userID, newScores, changes)
			if werr == nil {
				break
			}
			logger.Warn("写入分数失败", "user_id", userID, "attempt", attempt, "max_retries", maxRetries, "error", werr)
			// PERSIST整行覆盖写，重试是幂等的
			time.Sleep(time.Duration(attempt) * 200 * time.Millisecond)
		}
		if werr != nil {
			result.State = models.StateFailed
			result.Err = fmt.Errorf("分数写入重试耗尽: %w", werr)
			return result
		}
	}

	// ---------- DONE ----------
	result.State = models.StateDone
	result.Changes = changes

	foldIDs := make([]int64, 0, len(cycle))
	for _, ce := range cycle {
		foldIDs = append(foldIDs, ce.ev.ID)
	}
	if err := s.events.MarkFolded(foldIDs); err != nil {
		// 折算标记失败会导致下一轮重复计分，记录错误并跳过本轮清理
		logger.Error("标记事件折算失败，跳过本轮清理", "user_id", userID, "error", err)
		return result
	}

	// 清理只在成功周期之后执行，失败/重试时保留全部信号
	if deleted, err := s.events.DeleteFoldedBefore(userID, windowStart); err != nil {
		logger.Warn("清理过期事件失败", "user_id", userID, "error", err)
	} else if deleted > 0 {
		logger.Debug("清理过期事件完成", "user_id", userID, "deleted", deleted)
	}

	return result
}

// UpdateAll 对所有用户执行分数更新，按用户并发，单用户失败不会中断批量任务
// 只有存储整体不可用时才返回错误，由调度方重试
func (s *ScoreService) UpdateAll(ctx context.Context, opts UpdateOptions) (*models.UpdateReport, error) {
	startedAt := s.Now()

	schema, err := s.scores.Schema()
	if err != nil {
		return nil, fmt.Errorf("读取特征schema失败: %w", err)
	}
	userIDs, err := s.scores.ListUserIDs()
	if err != nil {
		return nil, fmt.Errorf("读取用户列表失败: %w", err)
	}

	concurrency := s.cfg.Scoring.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}

	report := &models.UpdateReport{
		RunID:     uuid.NewString(),
		StartedAt: startedAt,
		Succeeded: make([]string, 0, len(userIDs)),
		Failed:    make(map[string]string),
		Changes:   make(map[string]map[string]models.ScoreChange),
	}

	logger.Info("开始批量分数更新",
		"run_id", report.RunID,
		"users", len(userIDs),
		"traits", len(schema.Traits),
		"concurrency", concurrency)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		semaphore = make(chan struct{}, concurrency)
		cancelled = 0
	)

	for _, uid := range userIDs {
		// 批量任务允许在用户之间优雅取消，单个用户的周期不会被打断
		if ctx.Err() != nil {
			cancelled++
			continue
		}

		wg.Add(1)
		semaphore <- struct{}{} // acquire semaphore

		go func(userID string) {
			defer wg.Done()
			defer func() { <-semaphore }() // release semaphore

			res := s.UpdateUser(ctx, userID, schema, opts)

			mu.Lock()
			defer mu.Unlock()
			if res.State == models.StateDone {
				report.Succeeded = append(report.Succeeded, userID)
				if len(res.Changes) > 0 {
					report.Changes[userID] = res.Changes
				}
			} else {
				report.Failed[userID] = res.Err.Error()
				logger.Error("用户分数更新失败", "user_id", userID, "state", res.State.String(), "error", res.Err)
			}
		}(uid)
	}

	wg.Wait()
	report.Duration = s.Now().Sub(startedAt)

	logger.Info("批量分数更新完成",
		"run_id", report.RunID,
		"succeeded", len(report.Succeeded),
		"failed", len(report.Failed),
		"cancelled", cancelled,
		"changed_users", len(report.Changes),
		"duration_ms", report.Duration.Milliseconds())

	return report, nil
}
