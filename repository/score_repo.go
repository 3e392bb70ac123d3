package repository

import (
	"database/sql"
	"strings"
	"time"

	"personality_engine/db"
	"personality_engine/logger"
	"personality_engine/models"
)

// ScoreRepository 性格特征分数表的数据库操作
// personality 表结构：id 为标识列，其余每列对应一个特征，列集合由外部准入流程维护
type ScoreRepository struct {
	db *sql.DB
}

// NewScoreRepository 创建分数仓库
func NewScoreRepository() *ScoreRepository {
	return &ScoreRepository{db: db.DB}
}

// Schema 返回personality表的有序特征列名，不含id列
// 每轮批量更新只查询一次，结果作为值对象传递
func (r *ScoreRepository) Schema() (models.TraitSchema, error) {
	rows, err := r.db.Query(`
        SELECT column_name FROM information_schema.columns
        WHERE table_schema = DATABASE() AND table_name = 'personality'
        ORDER BY ordinal_position
    `)
	if err != nil {
		return models.TraitSchema{}, err
	}
	defer rows.Close()

	traits := make([]string, 0)
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			continue
		}
		if col == "id" {
			continue // 标识列不属于特征集合
		}
		traits = append(traits, col)
	}
	return models.TraitSchema{Traits: traits}, rows.Err()
}

// ListUserIDs 返回所有有分数行的用户ID
func (r *ScoreRepository) ListUserIDs() ([]string, error) {
	rows, err := r.db.Query(`SELECT id FROM personality`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetScores 读取用户当前分数，NULL列按显式缺失处理（不出现在返回的map中）
// 用户没有分数行时返回 sql.ErrNoRows
func (r *ScoreRepository) GetScores(userID string, schema models.TraitSchema) (map[string]float64, error) {
	if len(schema.Traits) == 0 {
		return map[string]float64{}, nil
	}

	cols := make([]string, len(schema.Traits))
	for i, t := range schema.Traits {
		cols[i] = quoteColumn(t)
	}

	row := r.db.QueryRow(
		`SELECT `+strings.Join(cols, ", ")+` FROM personality WHERE id = ?`, userID)

	values := make([]sql.NullFloat64, len(schema.Traits))
	dest := make([]interface{}, len(values))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	scores := make(map[string]float64, len(schema.Traits))
	for i, t := range schema.Traits {
		if values[i].Valid {
			scores[t] = values[i].Float64
		}
	}
	return scores, nil
}

// UpdateScores 在单个事务内写入用户全部特征的新分数并记录变化日志
// 要么全部成功要么全部回滚，避免画像出现部分一致的状态
func (r *ScoreRepository) UpdateScores(userID string, scores map[string]float64, changes map[string]models.ScoreChange) error {
	if len(scores) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	setClauses := make([]string, 0, len(scores))
	args := make([]interface{}, 0, len(scores)+1)
	for trait, value := range scores {
		setClauses = append(setClauses, quoteColumn(trait)+" = ?")
		args = append(args, value)
	}
	args = append(args, userID)

	result, err := tx.Exec(
		`UPDATE personality SET `+strings.Join(setClauses, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		// 分数未变时MySQL也返回0，但用户行缺失同样如此，此处单独确认
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(1) FROM personality WHERE id = ?`, userID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return sql.ErrNoRows
		}
	}

	now := time.Now()
	for trait, change := range changes {
		if _, err := tx.Exec(`
            INSERT INTO personality_changes (user_id, trait_name, old_value, new_value, change_time)
            VALUES (?, ?, ?, ?, ?)
        `, userID, trait, change.Original, change.Updated, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logger.Debug("分数事务提交成功", "user_id", userID, "traits", len(scores), "changed", len(changes))
	return nil
}

// RecentChanges 返回用户最近的分数变化记录，按时间倒序
func (r *ScoreRepository) RecentChanges(userID string, limit int) ([]models.PersonalityChange, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Query(`
        SELECT user_id, trait_name, old_value, new_value, change_time
        FROM personality_changes
        WHERE user_id = ?
        ORDER BY change_time DESC, id DESC
        LIMIT ?
    `, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := make([]models.PersonalityChange, 0)
	for rows.Next() {
		var c models.PersonalityChange
		if err := rows.Scan(&c.UserID, &c.TraitName, &c.OldValue, &c.NewValue, &c.ChangeTime); err != nil {
			continue
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// quoteColumn 反引号包裹列名，列名来自information_schema而非请求参数
func quoteColumn(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
