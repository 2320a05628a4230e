package task

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "ForesightX/internal/errors"
	"ForesightX/pkg/logger"
)

const (
	maxMessageLength  = 4096
	defaultMaxRetries = 3
)

// Service 负责消息任务的创建与查询。
type Service struct {
	store      Store
	producer   Producer
	maxRetries int
}

// NewService 构造任务服务。
func NewService(store Store, producer Producer, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Service{store: store, producer: producer, maxRetries: maxRetries}
}

// Submit 创建一个消息任务并推送到队列。指定 ID 的重复提交返回已有任务。
func (s *Service) Submit(ctx context.Context, req Request) (*Task, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, xerrors.New(CodeTaskValidation, "消息内容不能为空")
	}
	if len(text) > maxMessageLength {
		return nil, xerrors.New(CodeTaskValidation, "消息内容过长")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, xerrors.New(CodeTaskValidation, "用户 ID 不能为空")
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化")
	}

	taskID := strings.TrimSpace(req.ID)
	if taskID != "" {
		existing, err := s.store.Get(ctx, taskID)
		if err == nil {
			return existing, nil
		}
		if !stdErrors.Is(err, ErrTaskNotFound) {
			return nil, err
		}
	} else {
		taskID = uuid.NewString()
	}

	task := newTask(taskID, req, s.maxRetries)
	if err := s.store.Create(ctx, task); err != nil {
		if stdErrors.Is(err, ErrTaskConflict) {
			existing, getErr := s.store.Get(ctx, taskID)
			if getErr == nil {
				return existing, nil
			}
			if !stdErrors.Is(getErr, ErrTaskNotFound) {
				return nil, getErr
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, taskID); err != nil {
		logger.L().Error("任务入队失败", slog.Any("error", err), slog.String("task_id", taskID))
		wrapped := xerrors.Wrap(CodeTaskPublish, err, "发布任务到队列失败")
		_ = s.store.MarkFailed(ctx, taskID, CodeTaskPublish, wrapped.Error(), true)
		return nil, wrapped
	}
	logger.Audit().Info("消息入队成功",
		slog.String("task_id", taskID),
		slog.String("room_id", task.RoomID),
		slog.String("user_id", task.UserID),
		slog.String("source", task.Source),
		slog.String("requested_action", task.Action),
	)
	return task, nil
}

func newTask(id string, req Request, maxRetries int) *Task {
	roomID := strings.TrimSpace(req.RoomID)
	if roomID == "" {
		roomID = strings.TrimSpace(req.UserID)
	}
	source := strings.ToLower(strings.TrimSpace(req.Source))
	if source == "" {
		source = "direct"
	}
	return &Task{
		ID:              id,
		UserID:          strings.TrimSpace(req.UserID),
		UserName:        strings.TrimSpace(req.UserName),
		RoomID:          roomID,
		Text:            strings.TrimSpace(req.Text),
		Action:          strings.ToUpper(strings.TrimSpace(req.Action)),
		Source:          source,
		TwitterUsername: strings.TrimPrefix(strings.TrimSpace(req.TwitterUsername), "@"),
		TweetID:         strings.TrimSpace(req.TweetID),
		Metadata:        cloneMetadata(req.Metadata),
		Status:          StatusPending,
		MaxRetries:      maxRetries,
	}
}

// Get 返回指定任务的状态。
func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的任务列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Task, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.List(ctx, buildListOptions(opts))
}

// Stats 返回符合过滤条件的任务统计信息。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (TaskStats, error) {
	if s.store == nil {
		return TaskStats{}, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Stats(ctx, buildListOptions(opts))
}

// Close 释放资源。
func (s *Service) Close() error {
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.producer != nil {
		errs = append(errs, s.producer.Close())
	}
	return stdErrors.Join(errs...)
}

// WaitUntilCompleted 轮询任务状态直到成功、最终失败或 ctx 结束。
// 仍会重试的失败状态继续等待。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Task, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		task, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if task.IsFinal() {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return task, xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "等待消息处理超时")
		case <-ticker.C:
		}
	}
}
