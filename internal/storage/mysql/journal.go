package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	driver "github.com/go-sql-driver/mysql"

	"LLM-Oracle-Chain/internal/storage"
)

// erDupEntry 是 MySQL 唯一键冲突的错误号。
const erDupEntry = 1062

const insertFinalizationSQL = `INSERT INTO finalizations
    (id, request, user, chat_context, callback_program, prompt, response, signature, model_attempts, submit_attempts, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectRecentSQL = `SELECT id, request, user, chat_context, callback_program, prompt, response, signature, model_attempts, submit_attempts, created_at
    FROM finalizations ORDER BY created_at DESC, id DESC LIMIT ?`

// SQLJournal 使用 MySQL 保存回写记录。
type SQLJournal struct {
	db *sql.DB
}

var _ storage.Journal = (*SQLJournal)(nil)

// NewSQLJournal 创建连接池并执行内嵌迁移。
func NewSQLJournal(ctx context.Context, cfg Config) (*SQLJournal, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	j := &SQLJournal{db: db}
	if err := j.runMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// Record 写入一条回写记录，签名重复时返回 storage.ErrDuplicate。
func (s *SQLJournal) Record(ctx context.Context, entry storage.Finalization) error {
	_, err := s.db.ExecContext(ctx, insertFinalizationSQL,
		entry.ID,
		entry.Request,
		entry.User,
		entry.ChatContext,
		entry.CallbackProgram,
		entry.Prompt,
		entry.Response,
		entry.Signature,
		entry.ModelAttempts,
		entry.SubmitAttempts,
		entry.CreatedAt,
	)
	if err != nil {
		var mysqlErr *driver.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == erDupEntry {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("写入回写记录失败: %w", err)
	}
	return nil
}

// Recent 返回最近的回写记录。
func (s *SQLJournal) Recent(ctx context.Context, limit int) ([]storage.Finalization, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectRecentSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("查询回写记录失败: %w", err)
	}
	defer rows.Close()

	var out []storage.Finalization
	for rows.Next() {
		var entry storage.Finalization
		if err := rows.Scan(
			&entry.ID,
			&entry.Request,
			&entry.User,
			&entry.ChatContext,
			&entry.CallbackProgram,
			&entry.Prompt,
			&entry.Response,
			&entry.Signature,
			&entry.ModelAttempts,
			&entry.SubmitAttempts,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("解析回写记录失败: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历回写记录失败: %w", err)
	}
	return out, nil
}

// Close 关闭连接池。
func (s *SQLJournal) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
