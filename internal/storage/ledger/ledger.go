package ledger

import (
	"context"
	"time"

	xerrors "ForesightX/internal/errors"
)

// Record 是一笔由动作提交的链上交易。
type Record struct {
	ID             string    `json:"id"`
	Action         string    `json:"action"`
	Hash           string    `json:"hash"`
	Function       string    `json:"function"`
	Arguments      []any     `json:"arguments"`
	Sender         string    `json:"sender"`
	Network        string    `json:"network"`
	ExplorerURL    string    `json:"explorer_url"`
	MarketQuestion string    `json:"market_question,omitempty"`
	MarketSlug     string    `json:"market_slug,omitempty"`
	Creator        string    `json:"creator,omitempty"`
	Success        bool      `json:"success"`
	VMStatus       string    `json:"vm_status,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Repository 抽象交易账本的持久化接口。
type Repository interface {
	Save(ctx context.Context, record *Record) error
	// ListLatest 按时间倒序返回最近的交易，过滤条件在截断之前生效。
	ListLatest(ctx context.Context, limit int, opts ...ListOption) ([]Record, error)
	FindByHash(ctx context.Context, hash string) (*Record, error)
	// FindMarketBySlug 返回该 slug 最近一次成功创建的市场。
	FindMarketBySlug(ctx context.Context, slug string) (*Record, error)
	Close() error
}

// ListOptions 描述列表查询的过滤条件。
type ListOptions struct {
	Action string
}

// ListOption 修改列表查询条件。
type ListOption func(*ListOptions)

// WithAction 只返回指定动作提交的交易。
func WithAction(action string) ListOption {
	return func(o *ListOptions) { o.Action = action }
}

func applyListOptions(opts []ListOption) ListOptions {
	var o ListOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// ErrNotFound 表示账本中没有对应记录。
var ErrNotFound = xerrors.New(xerrors.CodeNotFound, "ledger record not found")

const defaultListLimit = 50

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > 500 {
		return 500
	}
	return limit
}
