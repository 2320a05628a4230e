package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "ForesightX/internal/errors"
	"ForesightX/internal/storage/sqldb"
)

const recordColumns = `id, action, hash, function_id, arguments, sender, network, explorer_url,
        market_question, market_slug, creator, success, vm_status, created_at`

// SQLRepository 将交易账本写入 ledger_transactions 表。
type SQLRepository struct {
	db *sqldb.DB
}

var _ Repository = (*SQLRepository)(nil)

// NewSQLRepository 基于已迁移的连接创建仓库。
func NewSQLRepository(db *sqldb.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// Save 插入一条交易记录，哈希统一存为小写。
func (s *SQLRepository) Save(ctx context.Context, record *Record) error {
	if record == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "交易记录不能为空")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	args, err := json.Marshal(nonNilArguments(record.Arguments))
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码交易参数失败")
	}

	const stmt = `INSERT INTO ledger_transactions (` + recordColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, stmt,
		record.ID,
		record.Action,
		strings.ToLower(record.Hash),
		record.Function,
		string(args),
		record.Sender,
		record.Network,
		record.ExplorerURL,
		record.MarketQuestion,
		record.MarketSlug,
		record.Creator,
		boolToInt(record.Success),
		record.VMStatus,
		record.CreatedAt.UnixMilli(),
	); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入交易记录失败")
	}
	return nil
}

// ListLatest 按时间倒序返回最近的交易。
func (s *SQLRepository) ListLatest(ctx context.Context, limit int, opts ...ListOption) ([]Record, error) {
	o := applyListOptions(opts)
	query := `SELECT ` + recordColumns + ` FROM ledger_transactions`
	var args []any
	if o.Action != "" {
		query += ` WHERE action = ?`
		args = append(args, o.Action)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, normalizeLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询交易记录失败")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历交易记录失败")
	}
	return records, nil
}

// FindByHash 实现 Repository。
func (s *SQLRepository) FindByHash(ctx context.Context, hash string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+`
        FROM ledger_transactions WHERE hash = ? ORDER BY created_at DESC LIMIT 1`, strings.ToLower(hash))
	return scanOne(row)
}

// FindMarketBySlug 实现 Repository。
func (s *SQLRepository) FindMarketBySlug(ctx context.Context, slug string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+`
        FROM ledger_transactions WHERE market_slug = ? AND success = 1 ORDER BY created_at DESC LIMIT 1`, slug)
	return scanOne(row)
}

// Close 不关闭共享连接，连接由创建者释放。
func (s *SQLRepository) Close() error { return nil }

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row scanner) (*Record, error) {
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec       Record
		args      string
		success   bool
		createdAt int64
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Action,
		&rec.Hash,
		&rec.Function,
		&args,
		&rec.Sender,
		&rec.Network,
		&rec.ExplorerURL,
		&rec.MarketQuestion,
		&rec.MarketSlug,
		&rec.Creator,
		&success,
		&rec.VMStatus,
		&createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析交易记录失败")
	}
	if args != "" {
		if err := json.Unmarshal([]byte(args), &rec.Arguments); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("解析交易 %s 的参数失败", rec.ID))
		}
	}
	rec.Success = success
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &rec, nil
}

func nonNilArguments(args []any) []any {
	if args == nil {
		return []any{}
	}
	return args
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
