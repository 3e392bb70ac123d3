package repository

import (
	"personality_engine/db"
	"personality_engine/logger"
)

// InitTables 初始化引擎自有的数据表
// personality 表由外部的用户准入流程创建和扩列，引擎只读其结构
func InitTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS user_behavior (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			content_id VARCHAR(64) NOT NULL,
			interaction_type VARCHAR(32) NOT NULL,
			content_type VARCHAR(32) NOT NULL,
			associated_traits TEXT,
			timestamp VARCHAR(40) NOT NULL,
			folded TINYINT NOT NULL DEFAULT 0,
			INDEX idx_user_folded (user_id, folded)
		) DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS personality_changes (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			trait_name VARCHAR(64) NOT NULL,
			old_value DOUBLE NOT NULL,
			new_value DOUBLE NOT NULL,
			change_time DATETIME NOT NULL,
			INDEX idx_user_time (user_id, change_time)
		) DEFAULT CHARSET=utf8mb4`,
	}

	for _, stmt := range stmts {
		if _, err := db.DB.Exec(stmt); err != nil {
			logger.Error("初始化数据表失败", "error", err)
			return err
		}
	}
	return nil
}
