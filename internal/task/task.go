package task

import (
	stdErrors "errors"
	"strings"
	"time"

	"ForesightX/internal/agent"
	xerrors "ForesightX/internal/errors"
)

// Status 表示任务在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// SourceTwitter 标识来自推特的消息。
const SourceTwitter = "twitter"

// Request 描述一条待处理的入站消息。
type Request struct {
	ID              string         `json:"id,omitempty"`
	UserID          string         `json:"user_id"`
	UserName        string         `json:"user_name,omitempty"`
	RoomID          string         `json:"room_id,omitempty"`
	Text            string         `json:"text"`
	Action          string         `json:"action,omitempty"`
	Source          string         `json:"source,omitempty"`
	TwitterUsername string         `json:"twitter_username,omitempty"`
	TweetID         string         `json:"tweet_id,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// ExecutionResult 保存一次消息处理的结果。动作返回 false 也是最终结果，
// 此时 Success 为 false，Reply 为动作给出的错误说明。
type ExecutionResult struct {
	Reply   string         `json:"reply"`
	Replies []string       `json:"replies,omitempty"`
	Action  string         `json:"action"`
	Handled bool           `json:"handled"`
	Success bool           `json:"success"`
	Content map[string]any `json:"content,omitempty"`
}

// Task 描述了排队处理的消息。
type Task struct {
	ID              string           `json:"id"`
	UserID          string           `json:"user_id"`
	UserName        string           `json:"user_name,omitempty"`
	RoomID          string           `json:"room_id"`
	Text            string           `json:"text"`
	Action          string           `json:"action,omitempty"`
	Source          string           `json:"source,omitempty"`
	TwitterUsername string           `json:"twitter_username,omitempty"`
	TweetID         string           `json:"tweet_id,omitempty"`
	Metadata        map[string]any   `json:"metadata,omitempty"`
	Status          Status           `json:"status"`
	Attempts        int              `json:"attempts"`
	MaxRetries      int              `json:"max_retries"`
	LastError       string           `json:"last_error,omitempty"`
	ErrorCode       string           `json:"error_code,omitempty"`
	Result          *ExecutionResult `json:"result,omitempty"`
	CreatedAt       int64            `json:"created_at"`
	UpdatedAt       int64            `json:"updated_at"`
}

// Memory 将任务转换为运行时消息，消息 ID 与任务 ID 相同。
func (t *Task) Memory() *agent.Memory {
	msg := &agent.Memory{
		ID:       t.ID,
		UserID:   t.UserID,
		UserName: t.UserName,
		RoomID:   t.RoomID,
		Content: agent.Content{
			Text:   t.Text,
			Action: t.Action,
			Source: t.Source,
		},
	}
	if t.CreatedAt > 0 {
		msg.CreatedAt = time.Unix(t.CreatedAt, 0)
	}
	if strings.EqualFold(t.Source, SourceTwitter) || t.TweetID != "" {
		msg.Context.Twitter = &agent.TwitterContext{Username: t.TwitterUsername, TweetID: t.TweetID}
	}
	return msg
}

// resultFrom 汇总运行时返回的回复。
func resultFrom(res *agent.Result) ExecutionResult {
	if res == nil {
		return ExecutionResult{}
	}
	out := ExecutionResult{Action: res.Action, Handled: res.Handled, Success: res.Success}
	for _, reply := range res.Replies {
		out.Replies = append(out.Replies, reply.Text)
	}
	if n := len(res.Replies); n > 0 {
		last := res.Replies[n-1]
		out.Reply = last.Text
		out.Content = cloneMetadata(last.Fields)
	}
	return out
}

var (
	// ErrTaskNotFound 表示指定的任务不存在。
	ErrTaskNotFound = xerrors.New(CodeTaskNotFound, "task not found")
	// ErrTaskConflict 表示任务在当前状态下无法进行所请求的操作。
	ErrTaskConflict = xerrors.New(CodeTaskConflict, "task conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrTaskCompleted 表示任务已经处理完成。
	ErrTaskCompleted = xerrors.New(CodeTaskCompleted, "task already completed", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrTaskExhausted 表示任务的重试次数已经耗尽。
	ErrTaskExhausted = xerrors.New(CodeTaskExhausted, "task retries exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
)

const (
	CodeTaskNotFound   xerrors.Code = "TASK_NOT_FOUND"
	CodeTaskConflict   xerrors.Code = "TASK_CONFLICT"
	CodeTaskCompleted  xerrors.Code = "TASK_COMPLETED"
	CodeTaskExhausted  xerrors.Code = "TASK_RETRIES_EXHAUSTED"
	CodeTaskValidation xerrors.Code = "TASK_VALIDATION_FAILED"
	CodeTaskPublish    xerrors.Code = "TASK_PUBLISH_FAILED"
	CodeTaskProcessing xerrors.Code = "TASK_PROCESSING_FAILED"
	CodeTaskCompensate xerrors.Code = "TASK_COMPENSATION_FAILED"
)

func init() {
	xerrors.Register(CodeTaskNotFound, xerrors.Attributes{
		Message:  "task not found",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskConflict, xerrors.Attributes{
		Message:  "task conflict",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeTaskCompleted, xerrors.Attributes{
		Message:  "task already completed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskExhausted, xerrors.Attributes{
		Message:  "task retries exhausted",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
	xerrors.Register(CodeTaskValidation, xerrors.Attributes{
		Message:  "task validation failed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskPublish, xerrors.Attributes{
		Message:   "failed to publish task",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeTaskProcessing, xerrors.Attributes{
		Message:   "message processing failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeTaskCompensate, xerrors.Attributes{
		Message:  "task compensation failed",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
}

// IsTaskError 判断错误是否为指定的任务错误。
func IsTaskError(err error, target xerrors.Code) bool {
	if err == nil {
		return false
	}
	for _, known := range []error{ErrTaskNotFound, ErrTaskConflict, ErrTaskCompleted, ErrTaskExhausted} {
		if stdErrors.Is(err, known) {
			return xerrors.CodeOf(known) == target
		}
	}
	return false
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	cloned := make(map[string]any, len(metadata))
	for key, value := range metadata {
		cloned[key] = value
	}
	return cloned
}

func cloneResult(result *ExecutionResult) *ExecutionResult {
	if result == nil {
		return nil
	}
	cp := *result
	cp.Replies = append([]string(nil), result.Replies...)
	cp.Content = cloneMetadata(result.Content)
	return &cp
}

// IsValidStatus 检查给定的任务状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

// IsFinal 判断任务是否不会再被处理。
func (t *Task) IsFinal() bool {
	if t.Status == StatusSucceeded {
		return true
	}
	return t.Status == StatusFailed && t.Attempts >= t.MaxRetries
}
