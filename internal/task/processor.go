package task

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	"ForesightX/internal/agent"
	xerrors "ForesightX/internal/errors"
	"ForesightX/internal/observability/alerting"
	"ForesightX/pkg/logger"
)

// Executor 定义了处理器所需的运行时能力，由 *agent.Agent 实现。
type Executor interface {
	Process(ctx context.Context, msg *agent.Memory, cb agent.HandlerCallback) (*agent.Result, error)
}

// CallbackFactory 为每个任务创建回复回调，例如推送到 WebSocket 房间。
type CallbackFactory func(task *Task) agent.HandlerCallback

// Processor 负责从队列消费消息任务并交给运行时处理。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	recovery    RecoveryHandler
	alerter     alerting.Dispatcher
	callbacks   CallbackFactory
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = logger }
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithRecoveryHandler 配置失败补偿策略。
func WithRecoveryHandler(handler RecoveryHandler) ProcessorOption {
	return func(p *Processor) { p.recovery = handler }
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) { p.alerter = dispatcher }
}

// WithCallbackFactory 配置回复回调。
func WithCallbackFactory(factory CallbackFactory) ProcessorOption {
	return func(p *Processor) { p.callbacks = factory }
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
		logger:      logger.Named("task.processor"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start 启动任务处理循环，阻塞直到 ctx 结束。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, taskID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	task, err := p.store.Claim(ctx, taskID)
	if err != nil {
		if stdErrors.Is(err, ErrTaskNotFound) || stdErrors.Is(err, ErrTaskCompleted) || stdErrors.Is(err, ErrTaskExhausted) {
			p.logger.Debug("跳过任务", slog.String("task_id", taskID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取任务失败", slog.Any("error", err), slog.String("task_id", taskID))
		p.emitAlert(ctx, &Task{ID: taskID}, CodeTaskProcessing, err, "claim")
		return err
	}

	var cb agent.HandlerCallback
	if p.callbacks != nil {
		cb = p.callbacks(task)
	}
	res, execErr := p.executor.Process(ctx, task.Memory(), cb)
	if execErr != nil {
		return p.handleExecutionFailure(ctx, task, execErr)
	}

	record := resultFrom(res)
	if err := p.store.MarkSucceeded(ctx, task.ID, record); err != nil {
		logger.L().Error("标记任务成功状态失败", slog.Any("error", err), slog.String("task_id", task.ID))
		// 回复已经发出，只记录失败，不重新处理，避免重复上链。
		if storeErr := p.store.MarkFailed(ctx, task.ID, xerrors.CodeStorageFailure, err.Error(), true); storeErr != nil {
			logger.L().Error("回写失败状态出错", slog.Any("error", storeErr), slog.String("task_id", task.ID))
			return storeErr
		}
		p.emitAlert(ctx, task, xerrors.CodeStorageFailure, err, "persist")
		return nil
	}
	if record.Handled && !record.Success {
		task.Result = &record
		p.emitAlert(ctx, task, xerrors.CodeChainFailure, fmt.Errorf("%s: %s", record.Action, record.Reply), "action_failed")
	}
	logger.Audit().Info("消息处理完成",
		slog.String("task_id", task.ID),
		slog.String("room_id", task.RoomID),
		slog.String("user_id", task.UserID),
		slog.String("action", record.Action),
		slog.Bool("success", record.Success),
	)
	return nil
}

func (p *Processor) handleExecutionFailure(ctx context.Context, task *Task, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeTaskProcessing
	}
	retryable := xerrors.RetryableError(execErr)
	terminal := task.Attempts >= task.MaxRetries || !retryable

	if terminal && p.recovery != nil {
		if handled, err := p.recover(ctx, task, code, execErr); handled || err != nil {
			return err
		}
	}

	if storeErr := p.store.MarkFailed(ctx, task.ID, code, xerrors.UserMessage(execErr), terminal); storeErr != nil {
		logger.L().Error("标记任务失败状态出错", slog.Any("error", storeErr), slog.String("task_id", task.ID))
		return storeErr
	}
	logger.Audit().Warn("消息处理失败",
		slog.String("task_id", task.ID),
		slog.String("room_id", task.RoomID),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", task.Attempts),
		slog.Int("max_retries", task.MaxRetries),
	)

	stage := "retry"
	if terminal {
		stage = "terminal"
	}
	if !retryable {
		stage = "non_retryable"
	}
	p.emitAlert(ctx, task, code, execErr, stage)

	if !terminal {
		if pubErr := p.producer.Publish(ctx, task.ID); pubErr != nil {
			return xerrors.Wrap(CodeTaskPublish, pubErr, fmt.Sprintf("任务 %s 重投失败", task.ID))
		}
		p.logger.Debug("任务已重新排队", slog.String("task_id", task.ID), slog.Int("attempts", task.Attempts))
	}
	return nil
}

// recover 执行降级逻辑，handled 为真表示任务已写入降级结果。
func (p *Processor) recover(ctx context.Context, task *Task, code xerrors.Code, execErr error) (bool, error) {
	fallback, recErr := p.recovery.Recover(ctx, task, execErr)
	if recErr != nil {
		wrapped := xerrors.Wrap(CodeTaskCompensate, recErr, "任务补偿失败")
		logger.L().Error("执行补偿逻辑失败", slog.Any("error", wrapped), slog.String("task_id", task.ID))
		p.emitAlert(ctx, task, CodeTaskCompensate, wrapped, "compensate")
		return false, nil
	}
	if fallback == nil {
		return false, nil
	}
	if err := p.store.MarkSucceeded(ctx, task.ID, *fallback); err != nil {
		logger.L().Error("记录降级结果失败", slog.Any("error", err), slog.String("task_id", task.ID))
		if storeErr := p.store.MarkFailed(ctx, task.ID, code, err.Error(), true); storeErr != nil {
			return true, storeErr
		}
		return true, nil
	}
	logger.Audit().Warn("消息降级回复",
		slog.String("task_id", task.ID),
		slog.String("room_id", task.RoomID),
		slog.String("reply", fallback.Reply),
	)
	p.emitAlert(ctx, task, code, execErr, "degraded")
	return true, nil
}

func (p *Processor) emitAlert(ctx context.Context, task *Task, code xerrors.Code, cause error, stage string) {
	if p == nil || p.alerter == nil || task == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	if !attrs.Alert && stage != "action_failed" {
		return
	}
	message := attrs.Message
	metadata := map[string]string{"stage": stage}
	if cause != nil {
		message = cause.Error()
		metadata["cause"] = cause.Error()
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		TaskID:     task.ID,
		RoomID:     task.RoomID,
		Attempts:   task.Attempts,
		MaxRetries: task.MaxRetries,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if task.Result != nil {
		event.Action = task.Result.Action
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("task_id", task.ID),
			slog.String("stage", stage),
		)
	}
}
