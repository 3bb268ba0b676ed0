package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"pai-docqa-go/pkg/log"

	_ "modernc.org/sqlite" // SQLite driver
)

// NewSQLite 打开嵌入式 SQLite 数据库（WAL 模式）。写入由单连接串行化。
func NewSQLite(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("打开 SQLite 失败: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("连接 SQLite 失败: %w", err)
	}
	log.Infof("SQLite database opened at %s", path)
	return db, nil
}
