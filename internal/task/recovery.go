package task

import (
	"context"

	xerrors "ForesightX/internal/errors"
)

// RecoveryHandler 定义了在任务执行失败时的补偿策略。
type RecoveryHandler interface {
	// Recover 尝试根据失败原因进行降级。返回的 ExecutionResult 作为降级结果写入任务；
	// 返回 nil 则继续按照失败流程处理。
	Recover(ctx context.Context, task *Task, cause error) (*ExecutionResult, error)
}

// RecoveryFunc 允许以函数形式实现 RecoveryHandler。
type RecoveryFunc func(ctx context.Context, task *Task, cause error) (*ExecutionResult, error)

// Recover 实现 RecoveryHandler。
func (f RecoveryFunc) Recover(ctx context.Context, task *Task, cause error) (*ExecutionResult, error) {
	return f(ctx, task, cause)
}

// FallbackReply 在不可重试的失败后给用户一条固定回复，而不是让消息石沉大海。
type FallbackReply struct {
	Text string
}

// Recover 实现 RecoveryHandler。参数错误不降级，原样标记失败。
func (f FallbackReply) Recover(_ context.Context, _ *Task, cause error) (*ExecutionResult, error) {
	if f.Text == "" || xerrors.CodeOf(cause) == xerrors.CodeInvalidArgument {
		return nil, nil
	}
	return &ExecutionResult{
		Reply:   f.Text,
		Replies: []string{f.Text},
		Action:  "NONE",
		Content: map[string]any{"error": xerrors.UserMessage(cause)},
	}, nil
}
