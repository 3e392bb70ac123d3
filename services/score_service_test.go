package services

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personality_engine/config"
	"personality_engine/models"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.Local)

// ---------- 内存版事件存储 ----------

type fakeEventStore struct {
	mu     sync.Mutex
	nextID int64
	events map[int64]*models.BehaviorEvent
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{events: make(map[int64]*models.BehaviorEvent)}
}

func (f *fakeEventStore) Insert(ev *models.BehaviorEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	ev.ID = f.nextID
	cp := *ev
	f.events[ev.ID] = &cp
	return nil
}

func (f *fakeEventStore) ListUnfolded(userID string) ([]models.BehaviorEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.BehaviorEvent, 0)
	for _, ev := range f.events {
		if ev.UserID == userID && !ev.Folded {
			out = append(out, *ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeEventStore) MarkFolded(ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if ev, ok := f.events[id]; ok {
			ev.Folded = true
		}
	}
	return nil
}

func (f *fakeEventStore) DeleteFoldedBefore(userID string, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deleted := int64(0)
	for id, ev := range f.events {
		if ev.UserID != userID || !ev.Folded {
			continue
		}
		t, err := models.ParseEventTime(ev.Timestamp)
		if err != nil || t.Before(cutoff) {
			delete(f.events, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeEventStore) countForUser(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.events {
		if ev.UserID == userID {
			n++
		}
	}
	return n
}

// ---------- 内存版分数存储 ----------

type fakeScoreStore struct {
	mu         sync.Mutex
	schema     models.TraitSchema
	rows       map[string]map[string]float64 // user -> trait -> 分数，缺失键视为NULL
	changeLog  []models.PersonalityChange
	failWrites int // 前N次写入返回错误
	writeCalls int
}

func newFakeScoreStore(traits ...string) *fakeScoreStore {
	return &fakeScoreStore{
		schema: models.TraitSchema{Traits: traits},
		rows:   make(map[string]map[string]float64),
	}
}

func (f *fakeScoreStore) Schema() (models.TraitSchema, error) {
	return f.schema, nil
}

func (f *fakeScoreStore) ListUserIDs() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.rows))
	for id := range f.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeScoreStore) GetScores(userID string, schema models.TraitSchema) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := make(map[string]float64, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out, nil
}

func (f *fakeScoreStore) UpdateScores(userID string, scores map[string]float64, changes map[string]models.ScoreChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeCalls++
	if f.failWrites > 0 {
		f.failWrites--
		return errors.New("write conflict")
	}
	row, ok := f.rows[userID]
	if !ok {
		return sql.ErrNoRows
	}
	for trait, value := range scores {
		row[trait] = value
	}
	for trait, change := range changes {
		f.changeLog = append(f.changeLog, models.PersonalityChange{
			UserID:    userID,
			TraitName: trait,
			OldValue:  change.Original,
			NewValue:  change.Updated,
		})
	}
	return nil
}

func (f *fakeScoreStore) RecentChanges(userID string, limit int) ([]models.PersonalityChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.PersonalityChange, 0)
	for i := len(f.changeLog) - 1; i >= 0 && len(out) < limit; i-- {
		if f.changeLog[i].UserID == userID {
			out = append(out, f.changeLog[i])
		}
	}
	return out, nil
}

// ---------- 辅助 ----------

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Scoring.DecayFactor = 0.1
	cfg.Scoring.WindowDays = 30
	cfg.Scoring.InactivityDays = 7
	cfg.Scoring.MaxRetries = 3
	cfg.Scoring.Concurrency = 4
	cfg.Scoring.Weights = config.DefaultWeights
	return cfg
}

func newTestService(events EventStore, scores ScoreStore) *ScoreService {
	svc := NewScoreService(testConfig(), events, scores, nil)
	svc.Now = func() time.Time { return testNow }
	return svc
}

func addEvent(t *testing.T, es *fakeEventStore, userID, itype string, traits []string, daysAgo int) {
	t.Helper()
	err := es.Insert(&models.BehaviorEvent{
		UserID:           userID,
		ContentID:        "c-1",
		InteractionType:  itype,
		ContentType:      "content",
		AssociatedTraits: traits,
		Timestamp:        models.FormatEventTime(testNow.AddDate(0, 0, -daysAgo)),
	})
	require.NoError(t, err)
}

// ---------- 单用户周期 ----------

func TestUpdateUserSingleLike(t *testing.T) {
	es := newFakeEventStore()
	ss := newFakeScoreStore("开放性", "外向性")
	ss.rows["1001"] = map[string]float64{"开放性": 50, "外向性": 60}
	addEvent(t, es, "1001", models.InteractionLike, []string{"开放性"}, 0)

	svc := newTestService(es, ss)
	res := svc.UpdateUser(context.Background(), "1001", ss.schema, UpdateOptions{})

	require.Equal(t, models.StateDone, res.State)
	require.NoError(t, res.Err)

	// 1.5 * 1.0 * ln(2) ≈ 1.04
	assert.InDelta(t, 50+1.5*math.Log(2), ss.rows["1001"]["开放性"], 1e-9)
	// 未被任何事件关联的特征保持不动
	assert.Equal(t, 60.0, ss.rows["1001"]["外向性"])

	require.Contains(t, res.Changes, "开放性")
	assert.Equal(t, 50.0, res.Changes["开放性"].Original)
	assert.NotContains(t, res.Changes, "外向性")
}

func TestUpdateUserTenLikesSuperLinear(t *testing.T) {
	es := newFakeEventStore()
	ss := newFakeScoreStore("开放性")
	ss.rows["1001"] = map[string]float64{"开放性": 50}
	for i := 0; i < 10; i++ {
		addEvent(t, es, "1001", models.InteractionLike, []string{"开放性"}, 0)
	}

	svc := newTestService(es, ss)
	res := svc.UpdateUser(context.Background(), "1001", ss.schema, UpdateOptions{})

	require.Equal(t, models.StateDone, res.State)
	// 1.5*10*1.0*ln(11) ≈ 35.97，远高于单次的1.04
	assert.InDelta(t, 50+15*math.Log(11), ss.rows["1001"]["开放性"], 1e-9)
}

func TestUpdateUserClampAtHundred(t *testing.T) {
	es := newFakeEventStore()
	ss := newFakeScoreStore("开放性")
	ss.rows["1001"] = map[string]float64{"开放性": 50}
	for i := 0; i < 1000; i++ {
		addEvent(t, es, "1001", models.InteractionPurchase, []string{"开放性"}, 0)
	}

	svc := newTestService(es, ss)
	res := svc.UpdateUser(context.Background(), "1001", ss.schema, UpdateOptions{})

	require.Equal(t, models.StateDone, res.State)
	assert.Equal(t, 100.0, ss.rows["1001"]["开放性"])
}

func TestUpdateUserClampAtZero(t *testing.T) {
	es := newFakeEventStore()
	ss := newFakeScoreStore("开放性")
	ss.rows["1001"] = map[string]float64{"开放性": 2}
	// 只有10天前的一次view，贡献小于5分的不活跃惩罚
	addEvent(t, es, "1001", models.InteractionView, []string{"开放性"}, 10)

	svc := newTestService(es, ss)
	res := svc.UpdateUser(context.Background(), "1001", ss.schema, UpdateOptions{})

	require.Equal(t, models.StateDone, res.State)
	assert.Equal(t, 0.0, ss.rows["1001"]["开放性"])
}

func TestUpdateUserInactivityPenaltyAppliedOnce(t *testing.T) {
	es := newFakeEventStore()
	ss := newFakeScoreStore("开放性")
	ss.rows["1001"] = map[string]float64{"开放性": 50}
	// 两个不同交互类型的桶，都只有10天前的陈旧事件
	addEvent(t, es, "1001", models.InteractionLike, []string{"开放性"}, 10)
	addEvent(t, es, "1001", models.InteractionView, []string{"开放性"}, 10)

	svc := newTestService(es, ss)
	res := svc.UpdateUser(context.Background(), "1001", ss.schema, UpdateOptions{})
	require.Equal(t, models.StateDone, res.State)

	decay := NewDecayCalculator(0.1, 30)
	w := decay.WeightAt(testNow.AddDate(0, 0, -10), testNow)
	expected := 50 + 1.5*w*math.Log(2) + 1.0*w*math.Log(2) - 5 // 惩罚只扣一次，与桶数量无关

	assert.InDelta(t, expected, ss.rows["1001"]["开放性"], 1e-9)
}

func TestUpdateUserRecentEventSuppressesPenalty(t *testing.T) {
	es := newFakeEventStore()
	ss := newFakeScoreStore("开放性")
	ss.rows["1001"] = map[string]float64{"开放性": 50}
	// 陈旧的like加上子窗口内的view：任意近期行为都抑制惩罚
	addEvent(t, es, "1001", models.InteractionLike, []string{"开放性"}, 10)
	addEvent(t, es, "1001", models.InteractionView, []string{"开放性"}, 3)

	svc := newTestService(es, ss)
	res := svc.UpdateUser(context.Background(), "1001", ss.schema, UpdateOptions{})
	require.Equal(t, models.StateDone, res.State)

	assert.Greater(t, ss.rows["1001"]["开放性"], 50.0)
}

func TestUpdateUserMalformedTimestampDoesNotBlockBucket(t *testing.T) {
	es := newFakeEventStore()
	ss := newFakeScoreStore("开放性")
	ss.rows["1001"] = map[string]float64{"开放性": 50}
	addEvent(t, es, "1001", models.InteractionLike, []string{"开放性"}, 0)
	require.NoError(t, es.Insert(&models.BehaviorEvent{
		UserID:           "1001",
		ContentID:        "c-2",
		InteractionType:  models.InteractionLike,
		ContentType:      "content",
		AssociatedTraits: []string{"开放性"},
		Timestamp:        "not-a-timestamp",
	}))

	svc := newTestService(es, ss)
	res := svc.UpdateUser(context.Background(), "1001", ss.schema, UpdateOptions{})
	require.Equal(t, models.StateDone, res.State)

	// 损坏事件贡献为0，好事件照常计分
	assert.InDelta(t, 50+1.5*math.Log(2), ss.rows["1001"]["开放性"], 1e-9)
}

func TestUpdateUserNullScoreTreatedAsZero(t *testing.T) {
	es := newFakeEventStore()
	ss := newFakeScoreStore("开放性")
	ss.rows["1001"] = map[string]float64{} // 分数列为NULL
	addEvent(t, es, "1001", models.InteractionLike, []string{"开放性"}, 0)

	svc := newTestService(es, ss)
	res := svc.UpdateUser(context.Background(), "1001", ss.schema, UpdateOptions{})
	require.Equal(t, models.StateDone, res.State)

	assert.InDelta(t, 1.5*math.Log(2), ss.rows["1001"]["开放性"], 1e-9)
	assert.Equal(t, 0.0, res.Changes["开放性"].Original)
}

func TestUpdateUserDropsUnknownTraitNames(t *testing.T) {
	es := newFakeEventStore()
	ss := newFakeScoreStore("开放性")
	ss.rows["1001"] = map[string]float64{"开放性": 50}
	// "神秘特征"不在schema中，必须丢弃而不是计分；"开放性（新）"规范化后有效
	addEvent(t, es, "1001", models.InteractionLike, []string{"神秘特征", "开放性（新）"}, 0)

	svc := newTestService(es, ss)
	res := svc.UpdateUser(context.Background(), "1001", ss.schema, UpdateOptions{})
	require.Equal(t, models.StateDone, res.State)

	assert.InDelta(t, 50+1.5*math.Log(2), ss.rows["1001"]["开放性"], 1e-9)
	assert.Len(t, res.Changes, 1)
}

func TestUpdateUserUnknownUser(t *testing.T) {
	es := newFakeEventStore()
	ss := newFakeScoreStore("开放性")

	svc := newTestService(es, ss)
	res := svc.UpdateUser(context.Background(), "nobody", ss.schema, UpdateOptions{})

	assert.Equal(t, models.StateFailed, res.State)
	assert.ErrorIs(t, res.Err, ErrUnknownUser)
}

func TestUpdateUserEmptyWindowIsValid(t *testing.T) {
	es := newFakeEventStore()
	ss := newFakeScoreStore("开放性")
	ss.rows["1001"] = map[string]float64{"开放性": 50}

	svc := newTestService(es, ss)
	res := svc.UpdateUser(context.Background(), "1001", ss.schema, UpdateOptions{})

	// 完全没有事件是有效结果而非错误，分数不变
	require.Equal(t, models.StateDone, res.State)
	assert.Empty(t, res.Changes)
	assert.Equal(t, 50.0, ss.rows["1001"]["开放性"])
	assert.Zero(t, ss.writeCalls)
}

func TestUpdateUserAnalysisImpactScalesDelta(t *testing.T) {
	es := newFakeEventStore()
	ss := newFakeScoreStore("开放性")
	ss.rows["1001"] = map[string]float64{"开放性": 50}
	addEvent(t, es, "1001", models.InteractionLike, []string{"开放性"}, 0)

	svc := newTestService(es, ss)
	opts := UpdateOptions{Analysis: models.TraitAnalysisSummary{
		"开放性": {BehaviorStrength: models.StrengthHigh, ImpactLevel: models.ImpactHigh},
	}}
	res := svc.UpdateUser(context.Background(), "1001", ss.schema, opts)
	require.Equal(t, models.StateDone, res.State)

	assert.InDelta(t, 50+1.5*1.5*math.Log(2), ss.rows["1001"]["开放性"], 1e-9)
}

// ---------- 持久化与重试 ----------

func TestUpdateUserRetriesTransientWriteFailure(t *testing.T) {
	es := newFakeEventStore()
	ss := newFakeScoreStore("开放性")
	ss.rows["1001"] = map[string]float64{"开放性": 50}
	ss.failWrites = 1
	addEvent(t, es, "1001", models.InteractionLike, []string{"开放性"}, 0)

	svc := newTestService(es, ss)
	res := svc.UpdateUser(context.Background(), "1001", ss.schema, UpdateOptions{})

	require.Equal(t, models.StateDone, res.State)
	assert.Equal(t, 2, ss.writeCalls)
	assert.InDelta(t, 50+1.5*math.Log(2), ss.rows["1001"]["开放性"], 1e-9)
}

func TestUpdateUserFailsAfterRetriesExhausted(t *testing.T) {
	es := newFakeEventStore()
	ss := newFakeScoreStore("开放性")
	ss.rows["1001"] = map[string]float64{"开放性": 50}
	ss.failWrites = 10
	addEvent(t, es, "1001", models.InteractionLike, []string{"开放性"}, 40)
	addEvent(t, es, "1001", models.InteractionLike, []string{"开放性"}, 0)

	svc := newTestService(es, ss)
	res := svc.UpdateUser(context.Background(), "1001", ss.schema, UpdateOptions{})

	assert.Equal(t, models.StateFailed, res.State)
	assert.Error(t, res.Err)
	// 失败的周期必须保留全部事件，包括窗口外的
	assert.Equal(t, 2, es.countForUser("1001"))
	assert.Equal(t, 50.0, ss.rows["1001"]["开放性"])
}

// ---------- 折算与清理 ----------

func TestUpdateUserPrunesExpiredEventsAfterSuccess(t *testing.T) {
	es := newFakeEventStore()
	ss := newFakeScoreStore("开放性")
	ss.rows["1001"] = map[string]float64{"开放性": 50}
	addEvent(t, es, "1001", models.InteractionLike, []string{"开放性"}, 40) // 窗口外
	addEvent(t, es, "1001", models.InteractionLike, []string{"开放性"}, 0)

	svc := newTestService(es, ss)
	res := svc.UpdateUser(context.Background(), "1001", ss.schema, UpdateOptions{})
	require.Equal(t, models.StateDone, res.State)

	// 40天前的事件已过期且折算完成，被清理；窗口内事件保留
	assert.Equal(t, 1, es.countForUser("1001"))
}

func TestUpdateCycleIdempotentWithoutNewEvents(t *testing.T) {
	es := newFakeEventStore()
	ss := newFakeScoreStore("开放性", "外向性")
	ss.rows["1001"] = map[string]float64{"开放性": 50, "外向性": 60}
	addEvent(t, es, "1001", models.InteractionLike, []string{"开放性"}, 0)

	svc := newTestService(es, ss)

	res1 := svc.UpdateUser(context.Background(), "1001", ss.schema, UpdateOptions{})
	require.Equal(t, models.StateDone, res1.State)
	afterFirst := map[string]float64{}
	for k, v := range ss.rows["1001"] {
		afterFirst[k] = v
	}

	// 没有新事件时第二轮不改变任何分数
	res2 := svc.UpdateUser(context.Background(), "1001", ss.schema, UpdateOptions{})
	require.Equal(t, models.StateDone, res2.State)
	assert.Empty(t, res2.Changes)
	assert.Equal(t, afterFirst, ss.rows["1001"])
}

// ---------- 批量更新 ----------

func TestUpdateAllPartialSuccess(t *testing.T) {
	es := newFakeEventStore()
	ss := newFakeScoreStore("开放性")
	ss.rows["1001"] = map[string]float64{"开放性": 50}
	ss.rows["1002"] = map[string]float64{"开放性": 30}
	addEvent(t, es, "1001", models.InteractionLike, []string{"开放性"}, 0)
	addEvent(t, es, "1002", models.InteractionLike, []string{"开放性"}, 0)

	svc := newTestService(es, ss)
	svc.cfg.Scoring.Concurrency = 1
	ss.failWrites = 3 // 第一个处理的用户重试耗尽后失败，后续用户不受影响

	report, err := svc.UpdateAll(context.Background(), UpdateOptions{})
	require.NoError(t, err)

	assert.Len(t, report.Succeeded, 1)
	assert.Len(t, report.Failed, 1)
	assert.NotEmpty(t, report.RunID)
}

func TestUpdateAllRecordsChanges(t *testing.T) {
	es := newFakeEventStore()
	ss := newFakeScoreStore("开放性")
	ss.rows["1001"] = map[string]float64{"开放性": 50}
	ss.rows["1002"] = map[string]float64{"开放性": 30}
	addEvent(t, es, "1001", models.InteractionLike, []string{"开放性"}, 0)

	svc := newTestService(es, ss)
	report, err := svc.UpdateAll(context.Background(), UpdateOptions{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"1001", "1002"}, report.Succeeded)
	assert.Contains(t, report.Changes, "1001")
	// 没有任何事件的用户不产生变化条目
	assert.NotContains(t, report.Changes, "1002")
}

func TestUpdateAllCancelledBetweenUsers(t *testing.T) {
	es := newFakeEventStore()
	ss := newFakeScoreStore("开放性")
	ss.rows["1001"] = map[string]float64{"开放性": 50}
	ss.rows["1002"] = map[string]float64{"开放性": 30}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := newTestService(es, ss)
	report, err := svc.UpdateAll(ctx, UpdateOptions{})
	require.NoError(t, err)

	assert.Empty(t, report.Succeeded)
	assert.Empty(t, report.Failed)
}

// ---------- 事件记录 ----------

func TestRecordInteractionValidation(t *testing.T) {
	es := newFakeEventStore()
	ss := newFakeScoreStore("开放性")
	svc := newTestService(es, ss)

	err := svc.RecordInteraction(&models.BehaviorEvent{
		UserID:          "1001",
		ContentID:       "c-1",
		InteractionType: "teleport",
		ContentType:     "content",
	})
	assert.Error(t, err)

	err = svc.RecordInteraction(&models.BehaviorEvent{
		UserID:          "1001",
		InteractionType: models.InteractionLike,
		ContentType:     "content",
	})
	assert.Error(t, err, "缺少content_id时应拒绝")
}

func TestRecordInteractionNormalizesAndDefaults(t *testing.T) {
	es := newFakeEventStore()
	ss := newFakeScoreStore("开放性")
	svc := newTestService(es, ss)

	ev := &models.BehaviorEvent{
		UserID:           "1001",
		ContentID:        "c-1",
		InteractionType:  models.InteractionLike,
		ContentType:      "content",
		AssociatedTraits: []string{" 开放性（新） ", "开放性"},
	}
	require.NoError(t, svc.RecordInteraction(ev))

	assert.Equal(t, []string{"开放性"}, ev.AssociatedTraits)
	assert.Equal(t, models.FormatEventTime(testNow), ev.Timestamp)
	assert.NotZero(t, ev.ID)
}
