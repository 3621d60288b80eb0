package mysql

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"LLM-Oracle-Chain/deploy/migrations"
)

// ErrSchemaDrift 表示数据库中已执行的回写记录迁移与当前二进制内嵌的文件不一致。
var ErrSchemaDrift = errors.New("journal schema drift")

const createJournalMigrationsSQL = `CREATE TABLE IF NOT EXISTS journal_migrations (
        version INT NOT NULL PRIMARY KEY,
        name VARCHAR(128) NOT NULL,
        checksum CHAR(64) NOT NULL,
        applied_at BIGINT NOT NULL
)`

const selectJournalMigrationsSQL = `SELECT version, name, checksum FROM journal_migrations`

const insertJournalMigrationSQL = `INSERT INTO journal_migrations (version, name, checksum, applied_at) VALUES (?, ?, ?, ?)`

// journalMigration 是一个按版本号执行的迁移文件。
type journalMigration struct {
	version    int
	name       string
	checksum   string
	statements []string
}

type appliedMigration struct {
	name     string
	checksum string
}

func (s *SQLJournal) runMigrations(ctx context.Context) error {
	return s.migrate(ctx, migrations.Files)
}

// migrate 校验已执行迁移的摘要，并按版本顺序补齐缺失的迁移。
func (s *SQLJournal) migrate(ctx context.Context, fsys fs.FS) error {
	pending, err := loadJournalMigrations(fsys)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, createJournalMigrationsSQL); err != nil {
		return fmt.Errorf("创建 journal_migrations 表失败: %w", err)
	}
	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	known := make(map[int]struct{}, len(pending))
	for _, m := range pending {
		known[m.version] = struct{}{}
		prev, ok := applied[m.version]
		if !ok {
			if err := s.apply(ctx, m); err != nil {
				return err
			}
			continue
		}
		if prev.checksum != m.checksum {
			return fmt.Errorf("%w: %s 已执行内容与 %s 不一致", ErrSchemaDrift, prev.name, m.name)
		}
	}
	for version, prev := range applied {
		if _, ok := known[version]; !ok {
			return fmt.Errorf("%w: 数据库包含未知迁移 %s", ErrSchemaDrift, prev.name)
		}
	}
	return nil
}

func (s *SQLJournal) appliedMigrations(ctx context.Context) (map[int]appliedMigration, error) {
	rows, err := s.db.QueryContext(ctx, selectJournalMigrationsSQL)
	if err != nil {
		return nil, fmt.Errorf("查询 journal_migrations 失败: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]appliedMigration)
	for rows.Next() {
		var (
			version int
			entry   appliedMigration
		)
		if err := rows.Scan(&version, &entry.name, &entry.checksum); err != nil {
			return nil, fmt.Errorf("解析 journal_migrations 失败: %w", err)
		}
		applied[version] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历 journal_migrations 失败: %w", err)
	}
	return applied, nil
}

func (s *SQLJournal) apply(ctx context.Context, m journalMigration) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启迁移事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range m.statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("执行迁移 %s 失败: %w", m.name, err)
		}
	}
	if _, err = tx.ExecContext(ctx, insertJournalMigrationSQL, m.version, m.name, m.checksum, time.Now().Unix()); err != nil {
		return fmt.Errorf("记录迁移 %s 失败: %w", m.name, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("提交迁移 %s 失败: %w", m.name, err)
	}
	return nil
}

// loadJournalMigrations 读取 NNNN_name.sql 形式的迁移文件，版本号重复或缺失时报错。
func loadJournalMigrations(fsys fs.FS) ([]journalMigration, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("读取迁移目录失败: %w", err)
	}

	out := make([]journalMigration, 0, len(names))
	seen := make(map[int]string, len(names))
	for _, name := range names {
		prefix, _, ok := strings.Cut(strings.TrimSuffix(path.Base(name), ".sql"), "_")
		if !ok {
			return nil, fmt.Errorf("迁移文件 %s 缺少版本前缀", name)
		}
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("迁移文件 %s 版本号无效", name)
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("迁移 %s 与 %s 版本号重复", name, other)
		}
		seen[version] = name

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("读取迁移文件 %s 失败: %w", name, err)
		}
		statements := splitStatements(string(content))
		if len(statements) == 0 {
			continue
		}
		sum := sha256.Sum256(content)
		out = append(out, journalMigration{
			version:    version,
			name:       name,
			checksum:   hex.EncodeToString(sum[:]),
			statements: statements,
		})
	}

	slices.SortFunc(out, func(a, b journalMigration) int { return a.version - b.version })
	return out, nil
}

func splitStatements(content string) []string {
	var statements []string
	for _, stmt := range strings.Split(content, ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}
