package repository

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"personality_engine/db"
	"personality_engine/logger"
	"personality_engine/models"
)

// EventRepository 用户行为事件的数据库操作
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository 创建事件仓库
func NewEventRepository() *EventRepository {
	return &EventRepository{db: db.DB}
}

// Insert 追加一条行为事件
func (r *EventRepository) Insert(ev *models.BehaviorEvent) error {
	traitsJSON, err := json.Marshal(ev.AssociatedTraits)
	if err != nil {
		return err
	}

	ts := ev.Timestamp
	if ts == "" {
		ts = models.FormatEventTime(time.Now())
	}

	result, err := r.db.Exec(`
        INSERT INTO user_behavior (user_id, content_id, interaction_type, content_type, associated_traits, timestamp, folded)
        VALUES (?, ?, ?, ?, ?, ?, 0)
    `, ev.UserID, ev.ContentID, ev.InteractionType, ev.ContentType, string(traitsJSON), ts)
	if err != nil {
		return err
	}

	if id, err := result.LastInsertId(); err == nil {
		ev.ID = id
	}
	ev.Timestamp = ts
	return nil
}

// ListUnfolded 返回指定用户尚未计入分数更新的全部事件
// 时间窗口过滤由调用方完成，因为时间戳是多格式的ISO字符串
func (r *EventRepository) ListUnfolded(userID string) ([]models.BehaviorEvent, error) {
	rows, err := r.db.Query(`
        SELECT id, user_id, content_id, interaction_type, content_type, associated_traits, timestamp
        FROM user_behavior
        WHERE user_id = ? AND folded = 0
        ORDER BY id ASC
    `, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]models.BehaviorEvent, 0)
	for rows.Next() {
		var ev models.BehaviorEvent
		var traitsRaw sql.NullString
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.ContentID, &ev.InteractionType, &ev.ContentType, &traitsRaw, &ev.Timestamp); err != nil {
			logger.Warn("跳过无法读取的事件行", "user_id", userID, "error", err)
			continue
		}
		ev.AssociatedTraits = parseTraitList(traitsRaw)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// MarkFolded 将事件标记为已计入分数更新
func (r *EventRepository) MarkFolded(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	_, err := r.db.Exec(
		`UPDATE user_behavior SET folded = 1 WHERE id IN (`+strings.Join(placeholders, ",")+`)`,
		args...)
	return err
}

// DeleteFoldedBefore 删除指定用户早于截止时间且已计入更新的事件，幂等
// 返回删除的行数
func (r *EventRepository) DeleteFoldedBefore(userID string, cutoff time.Time) (int64, error) {
	rows, err := r.db.Query(`
        SELECT id, timestamp FROM user_behavior WHERE user_id = ? AND folded = 1
    `, userID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	expired := make([]int64, 0)
	for rows.Next() {
		var id int64
		var ts string
		if err := rows.Scan(&id, &ts); err != nil {
			continue
		}
		t, err := models.ParseEventTime(ts)
		if err != nil {
			// 时间戳无法解析的事件已经无法参与计算，过期处理一并清掉
			expired = append(expired, id)
			continue
		}
		if t.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(expired))
	args := make([]interface{}, len(expired))
	for i, id := range expired {
		placeholders[i] = "?"
		args[i] = id
	}

	result, err := r.db.Exec(
		`DELETE FROM user_behavior WHERE id IN (`+strings.Join(placeholders, ",")+`)`,
		args...)
	if err != nil {
		return 0, err
	}
	deleted, _ := result.RowsAffected()
	return deleted, nil
}

// parseTraitList 解析事件行中序列化的特征名列表
func parseTraitList(raw sql.NullString) []string {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil
	}
	var traits []string
	if err := json.Unmarshal([]byte(raw.String), &traits); err != nil {
		// 兼容逗号分隔的旧格式
		for _, t := range strings.Split(raw.String, ",") {
			if t = strings.TrimSpace(t); t != "" {
				traits = append(traits, t)
			}
		}
	}
	return traits
}
