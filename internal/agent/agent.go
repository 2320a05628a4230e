package agent

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ForesightX/internal/character"
	xerrors "ForesightX/internal/errors"
	"ForesightX/internal/knowledge"
	"ForesightX/internal/llm"
	"ForesightX/pkg/logger"
)

const (
	defaultMemoryDepth   = 10
	defaultJSONRetries   = 3
	defaultRetryBackoff  = time.Second
	defaultActionTimeout = 90 * time.Second
	actionNone           = "NONE"
	tracerName           = "ForesightX/internal/agent"
)

// Agent 是 ForesightX 的运行时：保存房间记忆、组装提示词状态、调度插件动作。
type Agent struct {
	id            string
	character     *character.Character
	llmClient     llm.Client
	memory        MemoryStore
	memoryDepth   int
	knowledge     knowledge.Provider
	llmTimeout    time.Duration
	actionTimeout time.Duration
	settings      SettingSource
	jsonRetries   int
	retryBackoff  time.Duration
	tracer        trace.Tracer
	observers     []Observer
	log           *slog.Logger
	now           func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	mu        sync.RWMutex
	actions   []Action
	providers []Provider
	sources   []ActionSource
}

var _ Runtime = (*Agent)(nil)

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

// WithMemoryDepth 设置组装 recentMessages 时引用的消息条数。
func WithMemoryDepth(depth int) Option {
	return func(a *Agent) {
		a.memoryDepth = depth
	}
}

// WithMemoryStore 替换默认的内存消息存储。
func WithMemoryStore(store MemoryStore) Option {
	return func(a *Agent) {
		if store != nil {
			a.memory = store
		}
	}
}

// WithKnowledgeProvider 配置知识库，用于在推理前补充上下文。
func WithKnowledgeProvider(provider knowledge.Provider) Option {
	return func(a *Agent) {
		a.knowledge = provider
	}
}

// WithLLMTimeout 设置单次调用大模型的超时时间。
func WithLLMTimeout(timeout time.Duration) Option {
	return func(a *Agent) {
		if timeout < 0 {
			timeout = 0
		}
		a.llmTimeout = timeout
	}
}

// WithActionTimeout 设置单个动作处理的超时时间。
func WithActionTimeout(timeout time.Duration) Option {
	return func(a *Agent) {
		if timeout > 0 {
			a.actionTimeout = timeout
		}
	}
}

// WithSettings 指定配置层的设置项来源。
func WithSettings(settings SettingSource) Option {
	return func(a *Agent) {
		a.settings = settings
	}
}

// WithJSONRetries 设置结构化输出解析失败后的重试次数。
func WithJSONRetries(retries int) Option {
	return func(a *Agent) {
		if retries >= 0 {
			a.jsonRetries = retries
		}
	}
}

// WithRetryBackoff 设置结构化输出重试的初始退避时间，每次重试翻倍。
func WithRetryBackoff(backoff time.Duration) Option {
	return func(a *Agent) {
		if backoff >= 0 {
			a.retryBackoff = backoff
		}
	}
}

// WithRand 指定人设素材抽样使用的随机源，nil 表示按原顺序截取。
func WithRand(rng *rand.Rand) Option {
	return func(a *Agent) {
		a.rng = rng
	}
}

// WithTracerProvider 指定 OpenTelemetry TracerProvider。
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *Agent) {
		if tp != nil {
			a.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithObserver 注册处理事件的观察者。
func WithObserver(observers ...Observer) Option {
	return func(a *Agent) {
		for _, o := range observers {
			if o != nil {
				a.observers = append(a.observers, o)
			}
		}
	}
}

// WithActions 注册静态动作。
func WithActions(actions ...Action) Option {
	return func(a *Agent) {
		a.actions = append(a.actions, actions...)
	}
}

// WithProviders 注册静态 Provider。
func WithProviders(providers ...Provider) Option {
	return func(a *Agent) {
		a.providers = append(a.providers, providers...)
	}
}

// WithActionSource 接入动态的动作来源，例如插件管理器。
func WithActionSource(source ActionSource) Option {
	return func(a *Agent) {
		if source != nil {
			a.sources = append(a.sources, source)
		}
	}
}

// New 创建一个 Agent，character 为空时使用内置人设。
func New(char *character.Character, llmClient llm.Client, opts ...Option) *Agent {
	if char == nil {
		char = character.Default()
	}
	ag := &Agent{
		id:            uuid.NewSHA1(uuid.NameSpaceOID, []byte(char.Name)).String(),
		character:     char,
		llmClient:     llmClient,
		memoryDepth:   defaultMemoryDepth,
		actionTimeout: defaultActionTimeout,
		jsonRetries:   defaultJSONRetries,
		retryBackoff:  defaultRetryBackoff,
		tracer:        otel.GetTracerProvider().Tracer(tracerName),
		log:           logger.Named("agent"),
		now:           time.Now,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	if ag.memoryDepth <= 0 {
		ag.memoryDepth = defaultMemoryDepth
	}
	if ag.memory == nil {
		ag.memory = NewRingStore(defaultRoomCapacity)
	}
	return ag
}

// AgentID 返回由人设名称派生的稳定标识。
func (a *Agent) AgentID() string { return a.id }

// Character 返回当前人设。
func (a *Agent) Character() *character.Character { return a.character }

// Register 在运行期追加动作。
func (a *Agent) Register(actions ...Action) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, actions...)
}

// Actions 返回静态动作与动态来源动作，按注册顺序排列。
func (a *Agent) Actions() []Action {
	a.mu.RLock()
	defer a.mu.RUnlock()
	all := append([]Action(nil), a.actions...)
	for _, src := range a.sources {
		all = append(all, src.Actions()...)
	}
	return all
}

// Providers 返回全部 Provider。
func (a *Agent) Providers() []Provider {
	a.mu.RLock()
	defer a.mu.RUnlock()
	all := append([]Provider(nil), a.providers...)
	for _, src := range a.sources {
		all = append(all, src.Providers()...)
	}
	return all
}

// GetSetting 依次从人设密钥、配置设置项和环境变量中查找。
func (a *Agent) GetSetting(key string) string {
	if v := a.character.Secret(key); v != "" {
		return v
	}
	if a.settings != nil {
		if v := strings.TrimSpace(a.settings.Setting(key)); v != "" {
			return v
		}
	}
	return strings.TrimSpace(os.Getenv(key))
}

// ComposeState 汇总人设、记忆、知识库与 Provider 输出，生成模板状态。
func (a *Agent) ComposeState(ctx context.Context, msg *Memory) (State, error) {
	if msg == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "消息不能为空")
	}
	recent, err := a.memory.Recent(ctx, msg.RoomID, a.memoryDepth)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取房间记忆失败")
	}

	c := a.character
	state := State{
		KeyAgentName:      c.Name,
		KeyAgentID:        a.id,
		KeyRoomID:         msg.RoomID,
		KeySystem:         c.SystemPrompt(),
		KeyRecentMessages: FormatMessages(recent),
		KeySenderName:     displayName(*msg),
		KeyMessageDirs:    c.StyleDirections("chat"),
		KeyPostDirs:       c.StyleDirections("post"),
	}
	if msg.Context.Twitter != nil {
		state[KeyTwitterUsername] = strings.TrimPrefix(msg.Context.Twitter.Username, "@")
	}

	a.rngMu.Lock()
	state[KeyBio] = c.BioText(3, a.rng)
	state[KeyLore] = c.LoreText(3, a.rng)
	state[KeyTopics] = c.TopicsText(5, a.rng)
	state[KeyAdjective] = c.AdjectiveText(a.rng)
	state[KeyMessageExamples] = c.FormatMessageExamples(2, a.rng)
	state[KeyPostExamples] = c.FormatPostExamples(5, a.rng)
	a.rngMu.Unlock()

	if a.knowledge != nil {
		state[KeyKnowledge] = knowledge.Render(a.knowledge.Query(msg.Content.Text))
	}

	actions := a.Actions()
	state[KeyActionNames], state[KeyActions] = formatActions(actions)

	var provided []string
	for _, p := range a.Providers() {
		out, err := p.Get(ctx, a, msg, state)
		if err != nil {
			a.log.Warn("provider 执行失败", "provider", p.Name(), "error", err)
			continue
		}
		if out = strings.TrimSpace(out); out != "" {
			provided = append(provided, out)
		}
	}
	state[KeyProviders] = strings.Join(provided, "\n\n")
	return state, nil
}

// UpdateRecentMessageState 刷新状态中的 recentMessages。
func (a *Agent) UpdateRecentMessageState(ctx context.Context, state State) (State, error) {
	updated := state.Clone()
	recent, err := a.memory.Recent(ctx, state[KeyRoomID], a.memoryDepth)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取房间记忆失败")
	}
	updated[KeyRecentMessages] = FormatMessages(recent)
	return updated, nil
}

// GenerateText 以人设系统提示词调用大模型。
func (a *Agent) GenerateText(ctx context.Context, prompt string, class llm.ModelClass) (string, error) {
	if a.llmClient == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	llmCtx := ctx
	if a.llmTimeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, a.llmTimeout)
		defer cancel()
	}
	resp, err := a.llmClient.Generate(llmCtx, llm.Request{
		System: a.character.SystemPrompt(),
		Prompt: prompt,
		Class:  class,
	})
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return "", xerrors.Wrap(xerrors.CodeTimeout, err, "大模型推理超时")
		}
		if _, ok := xerrors.From(err); ok {
			return "", err
		}
		return "", xerrors.Wrap(xerrors.CodeModelFailure, err, "大模型推理失败")
	}
	if resp == nil {
		return "", xerrors.New(xerrors.CodeModelFailure, "大模型返回空响应")
	}
	return strings.TrimSpace(resp.Text), nil
}

// GenerateObject 要求模型返回 JSON 对象，解析失败时按指数退避重试。
func (a *Agent) GenerateObject(ctx context.Context, prompt string, class llm.ModelClass) (map[string]any, error) {
	backoff := a.retryBackoff
	var lastErr error
	for attempt := 0; attempt <= a.jsonRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, backoff); err != nil {
				return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "等待重试时上下文结束")
			}
			backoff *= 2
		}
		text, err := a.GenerateText(ctx, prompt, class)
		if err != nil {
			if !xerrors.RetryableError(err) {
				return nil, err
			}
			lastErr = err
			continue
		}
		obj, err := llm.ExtractJSONObject(text)
		if err == nil {
			return obj, nil
		}
		a.log.Debug("模型输出无法解析为 JSON", "attempt", attempt+1, "output", text)
		lastErr = err
	}
	if stdErrors.Is(lastErr, llm.ErrNoJSONObject) {
		return nil, xerrors.Wrap(xerrors.CodeInvalidContent, lastErr, "模型未返回有效的 JSON 对象")
	}
	return nil, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Process 处理一条入站消息：写入记忆，选择动作执行，无动作命中时生成人设回复。
func (a *Agent) Process(ctx context.Context, msg *Memory, cb HandlerCallback) (*Result, error) {
	if msg == nil || strings.TrimSpace(msg.Content.Text) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "消息内容不能为空")
	}
	a.normalize(msg)

	ctx, span := a.tracer.Start(ctx, "agent.Process", trace.WithAttributes(
		attribute.String("agent.id", a.id),
		attribute.String("room.id", msg.RoomID),
		attribute.String("message.id", msg.ID),
	))
	defer span.End()

	if err := a.memory.Append(ctx, *msg); err != nil {
		err = xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存消息失败")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := &Result{MessageID: msg.ID}
	collect := a.collector(msg, result, cb)

	if action := a.selectAction(ctx, msg); action != nil {
		return a.runAction(ctx, action, msg, result, collect)
	}

	state, err := a.ComposeState(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	started := a.now()
	text, err := a.GenerateText(ctx, ComposeContext(state, messageHandlerTemplate), llm.ModelLarge)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	reply := Content{Text: text, Source: msg.Content.Source}
	if err := collect(ctx, reply); err != nil {
		a.log.Warn("回调执行失败", "error", err)
	}
	result.Success = true
	a.notify(ctx, Event{
		AgentID:   a.id,
		RoomID:    msg.RoomID,
		MessageID: msg.ID,
		Action:    actionNone,
		Success:   true,
		Content:   reply,
		Duration:  a.now().Sub(started),
		At:        a.now(),
	})
	return result, nil
}

func (a *Agent) runAction(ctx context.Context, action Action, msg *Memory, result *Result, collect HandlerCallback) (*Result, error) {
	name := action.Name()
	ctx, span := a.tracer.Start(ctx, "action."+name, trace.WithAttributes(attribute.String("action.name", name)))
	defer span.End()

	state, err := a.ComposeState(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	actionCtx := ctx
	if a.actionTimeout > 0 {
		var cancel context.CancelFunc
		actionCtx, cancel = context.WithTimeout(ctx, a.actionTimeout)
		defer cancel()
	}

	started := a.now()
	a.log.Info("执行动作", "action", name, "room", msg.RoomID, "message", msg.ID)
	ok := action.Handle(actionCtx, a, msg, state, nil, collect)
	elapsed := a.now().Sub(started)

	result.Action = name
	result.Handled = true
	result.Success = ok
	span.SetAttributes(attribute.Bool("action.success", ok))
	if !ok {
		span.SetStatus(codes.Error, "action reported failure")
	}

	var last Content
	if n := len(result.Replies); n > 0 {
		last = result.Replies[n-1]
	}
	a.notify(ctx, Event{
		AgentID:   a.id,
		RoomID:    msg.RoomID,
		MessageID: msg.ID,
		Action:    name,
		Success:   ok,
		Content:   last,
		Duration:  elapsed,
		At:        a.now(),
	})
	return result, nil
}

// selectAction 选出优先级最高且 ShouldHandle 与 Validate 均通过的动作。
// 消息显式指定动作时只考虑该动作。
func (a *Agent) selectAction(ctx context.Context, msg *Memory) Action {
	actions := a.Actions()
	if requested := strings.TrimSpace(msg.Content.Action); requested != "" && requested != actionNone {
		for _, action := range actions {
			if matchesName(action, requested) {
				if action.Validate(ctx, a, msg) {
					return action
				}
				return nil
			}
		}
	}

	candidates := make([]Action, 0, len(actions))
	for _, action := range actions {
		if action.ShouldHandle(msg) {
			candidates = append(candidates, action)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority() > candidates[j].Priority()
	})
	for _, action := range candidates {
		if action.Validate(ctx, a, msg) {
			return action
		}
	}
	return nil
}

func matchesName(action Action, name string) bool {
	if strings.EqualFold(action.Name(), name) {
		return true
	}
	for _, simile := range action.Similes() {
		if strings.EqualFold(simile, name) {
			return true
		}
	}
	return false
}

// collector 记录回调内容，把回复写入房间记忆后再转发给调用方。
func (a *Agent) collector(msg *Memory, result *Result, cb HandlerCallback) HandlerCallback {
	return func(ctx context.Context, content Content) error {
		result.Replies = append(result.Replies, content)
		reply := Memory{
			ID:        uuid.NewString(),
			UserID:    a.id,
			UserName:  a.character.Name,
			AgentID:   a.id,
			RoomID:    msg.RoomID,
			Content:   content,
			CreatedAt: a.now(),
		}
		if err := a.memory.Append(ctx, reply); err != nil {
			a.log.Warn("保存回复失败", "room", msg.RoomID, "error", err)
		}
		if cb != nil {
			return cb(ctx, content)
		}
		return nil
	}
}

func (a *Agent) normalize(msg *Memory) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.AgentID == "" {
		msg.AgentID = a.id
	}
	if msg.RoomID == "" {
		if msg.UserID != "" {
			msg.RoomID = msg.UserID
		} else {
			msg.RoomID = "default"
		}
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = a.now()
	}
}

func (a *Agent) notify(ctx context.Context, event Event) {
	for _, o := range a.observers {
		o.Observe(ctx, event)
	}
}
