package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const maxCachedRecords = 512

// FileRepository 以 JSON Lines 追加写本地文件。内存中保留最近的记录，
// 哈希与 slug 索引覆盖整个日志。
type FileRepository struct {
	mu       sync.RWMutex
	dataFile string
	// recent 按写入顺序保存最近的记录，最新的在末尾。
	recent []Record
	total  int
	byHash map[string]Record
	bySlug map[string]Record
}

var _ Repository = (*FileRepository)(nil)

// NewFileRepository 在 dataDir 下打开或创建 transactions.jsonl。
func NewFileRepository(dataDir string) (*FileRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	repo := &FileRepository{
		dataFile: filepath.Join(dataDir, "transactions.jsonl"),
		byHash:   map[string]Record{},
		bySlug:   map[string]Record{},
	}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 以追加写的方式记录交易。
func (r *FileRepository) Save(_ context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("交易记录不能为空")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.OpenFile(r.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开交易日志失败: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化交易记录失败: %w", err)
	}
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入交易日志失败: %w", err)
	}
	r.index(*record)
	return nil
}

// ListLatest 返回最近的交易，按时间倒序排列。缓存中不足时回读日志文件。
func (r *FileRepository) ListLatest(_ context.Context, limit int, opts ...ListOption) ([]Record, error) {
	o := applyListOptions(opts)
	limit = normalizeLimit(limit)

	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]Record, 0, min(limit, len(r.recent)))
	for i := len(r.recent) - 1; i >= 0 && len(results) < limit; i-- {
		if o.matches(r.recent[i]) {
			results = append(results, r.recent[i])
		}
	}
	if len(results) >= limit || r.total <= len(r.recent) {
		return results, nil
	}

	var matched []Record
	if err := r.scan(func(rec Record) {
		if o.matches(rec) {
			matched = append(matched, rec)
		}
	}); err != nil {
		return nil, err
	}
	slices.Reverse(matched)
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// FindByHash 按交易哈希查找，大小写不敏感。
func (r *FileRepository) FindByHash(_ context.Context, hash string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.byHash[strings.ToLower(hash)]; ok {
		return &rec, nil
	}
	return nil, ErrNotFound
}

// FindMarketBySlug 实现 Repository。
func (r *FileRepository) FindMarketBySlug(_ context.Context, slug string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.bySlug[slug]; ok {
		return &rec, nil
	}
	return nil, ErrNotFound
}

// Close 实现 Repository。
func (r *FileRepository) Close() error { return nil }

// index 必须在持有写锁时调用。
func (r *FileRepository) index(rec Record) {
	r.total++
	r.byHash[strings.ToLower(rec.Hash)] = rec
	if rec.Success && rec.MarketSlug != "" {
		r.bySlug[rec.MarketSlug] = rec
	}
	r.recent = append(r.recent, rec)
	if len(r.recent) > 2*maxCachedRecords {
		r.recent = slices.Clone(r.recent[len(r.recent)-maxCachedRecords:])
	}
}

func (r *FileRepository) loadFromDisk() error {
	file, err := os.OpenFile(r.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取交易日志失败: %w", err)
	}
	file.Close()
	return r.scan(r.index)
}

// scan 按写入顺序遍历日志，跳过无法解析的行。
func (r *FileRepository) scan(fn func(Record)) error {
	file, err := os.Open(r.dataFile)
	if err != nil {
		return fmt.Errorf("读取交易日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var record Record
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		fn(record)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析交易日志失败: %w", err)
	}
	return nil
}

func (o ListOptions) matches(rec Record) bool {
	return o.Action == "" || rec.Action == o.Action
}
