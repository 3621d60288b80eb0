package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const recentLimit = 512

// FileJournal 以 JSON Lines 形式把回写记录追加到本地文件，并在内存中保留最近的记录。
type FileJournal struct {
	mu         sync.RWMutex
	dataFile   string
	records    []Finalization
	signatures map[string]struct{}
}

// NewFileJournal 在 dataDir 下打开 finalizations.log。
func NewFileJournal(dataDir string) (*FileJournal, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	j := &FileJournal{
		dataFile:   filepath.Join(dataDir, "finalizations.log"),
		signatures: make(map[string]struct{}),
	}
	if err := j.loadFromDisk(); err != nil {
		return nil, err
	}
	return j, nil
}

// Path 返回记录文件路径。
func (j *FileJournal) Path() string { return j.dataFile }

// Record 以追加写的方式记录一次回写。
func (j *FileJournal) Record(_ context.Context, entry Finalization) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.signatures[entry.Signature]; ok && entry.Signature != "" {
		return ErrDuplicate
	}

	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("序列化回写记录失败: %w", err)
	}

	file, err := os.OpenFile(j.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开回写日志失败: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入回写日志失败: %w", err)
	}

	j.remember(entry)
	return nil
}

// Recent 返回最近的回写记录，按写入时间倒序排列。
func (j *FileJournal) Recent(_ context.Context, limit int) ([]Finalization, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if limit <= 0 || limit > len(j.records) {
		limit = len(j.records)
	}
	out := make([]Finalization, limit)
	copy(out, j.records[:limit])
	return out, nil
}

// Close 文件记录无需释放资源。
func (j *FileJournal) Close() error { return nil }

func (j *FileJournal) remember(entry Finalization) {
	if entry.Signature != "" {
		j.signatures[entry.Signature] = struct{}{}
	}
	j.records = append([]Finalization{entry}, j.records...)
	if len(j.records) > recentLimit {
		j.records = j.records[:recentLimit]
	}
}

func (j *FileJournal) loadFromDisk() error {
	file, err := os.OpenFile(j.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取回写日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var entry Finalization
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		j.remember(entry)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析回写日志失败: %w", err)
	}
	return nil
}
