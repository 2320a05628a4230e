package agent

import (
	"context"
	"time"

	"ForesightX/internal/character"
	"ForesightX/internal/llm"
)

// Content 是一条消息或回调的内容，Fields 携带结构化结果。
type Content struct {
	Text   string         `json:"text"`
	Action string         `json:"action,omitempty"`
	Source string         `json:"source,omitempty"`
	Fields map[string]any `json:"content,omitempty"`
}

// TwitterContext 描述来自推特的消息上下文。
type TwitterContext struct {
	Username string `json:"username"`
	TweetID  string `json:"tweet_id,omitempty"`
}

// MessageContext 保存消息来源平台的附加信息。
type MessageContext struct {
	Twitter *TwitterContext `json:"twitter,omitempty"`
}

// Memory 是房间中的一条消息记录。
type Memory struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	UserName  string         `json:"user_name,omitempty"`
	AgentID   string         `json:"agent_id"`
	RoomID    string         `json:"room_id"`
	Content   Content        `json:"content"`
	Context   MessageContext `json:"context"`
	CreatedAt time.Time      `json:"created_at"`
}

// Text 返回消息文本。
func (m *Memory) Text() string {
	if m == nil {
		return ""
	}
	return m.Content.Text
}

// IsTwitter 判断消息是否来自推特。
func (m *Memory) IsTwitter() bool {
	return m != nil && m.Context.Twitter != nil
}

// State 保存提示词模板可引用的命名值。
type State map[string]string

// Clone 返回状态副本。
func (s State) Clone() State {
	dup := make(State, len(s))
	for k, v := range s {
		dup[k] = v
	}
	return dup
}

// 状态中常用的键。
const (
	KeyAgentName       = "agentName"
	KeyAgentID         = "agentId"
	KeyRoomID          = "roomId"
	KeySystem          = "system"
	KeyBio             = "bio"
	KeyLore            = "lore"
	KeyTopics          = "topics"
	KeyAdjective       = "adjective"
	KeyKnowledge       = "knowledge"
	KeyMessageExamples = "characterMessageExamples"
	KeyPostExamples    = "characterPostExamples"
	KeyMessageDirs     = "messageDirections"
	KeyPostDirs        = "postDirections"
	KeyRecentMessages  = "recentMessages"
	KeySenderName      = "senderName"
	KeyTwitterUsername = "twitterUsername"
	KeyActions         = "actions"
	KeyActionNames     = "actionNames"
	KeyProviders       = "providers"
	KeyWalletInfo      = "walletInfo"
)

// HandlerCallback 接收动作产生的回复内容。
type HandlerCallback func(ctx context.Context, content Content) error

// ActionExample 是动作示例对话中的一条消息。
type ActionExample struct {
	User    string  `json:"user"`
	Content Content `json:"content"`
}

// Action 是插件向运行时注册的可执行动作。Handle 返回是否成功，
// 失败原因通过回调告知用户。
type Action interface {
	Name() string
	Similes() []string
	Triggers() []string
	Description() string
	Priority() int
	Examples() [][]ActionExample
	ShouldHandle(msg *Memory) bool
	Validate(ctx context.Context, rt Runtime, msg *Memory) bool
	Handle(ctx context.Context, rt Runtime, msg *Memory, state State, opts map[string]any, cb HandlerCallback) bool
}

// Provider 向状态注入外部信息，例如钱包余额。
type Provider interface {
	Name() string
	Get(ctx context.Context, rt Runtime, msg *Memory, state State) (string, error)
}

// ActionSource 动态提供动作与 Provider，插件管理器通过它把已启动插件接入运行时。
type ActionSource interface {
	Actions() []Action
	Providers() []Provider
}

// SettingSource 提供配置层的设置项查找。
type SettingSource interface {
	Setting(key string) string
}

// Runtime 是动作处理时可使用的运行时能力。
type Runtime interface {
	AgentID() string
	Character() *character.Character
	GetSetting(key string) string
	ComposeState(ctx context.Context, msg *Memory) (State, error)
	UpdateRecentMessageState(ctx context.Context, state State) (State, error)
	GenerateObject(ctx context.Context, prompt string, class llm.ModelClass) (map[string]any, error)
	GenerateText(ctx context.Context, prompt string, class llm.ModelClass) (string, error)
}

// Result 汇总一次消息处理的结果。
type Result struct {
	MessageID string    `json:"message_id"`
	Action    string    `json:"action,omitempty"`
	Handled   bool      `json:"handled"`
	Success   bool      `json:"success"`
	Replies   []Content `json:"replies"`
}

// Event 描述一次动作或回复的完成情况，用于事件外发与指标统计。
type Event struct {
	AgentID   string        `json:"agent_id"`
	RoomID    string        `json:"room_id"`
	MessageID string        `json:"message_id"`
	Action    string        `json:"action"`
	Success   bool          `json:"success"`
	Content   Content       `json:"content"`
	Duration  time.Duration `json:"duration"`
	At        time.Time     `json:"at"`
}

// Observer 接收处理事件。
type Observer interface {
	Observe(ctx context.Context, event Event)
}

// ObserverFunc 允许以函数形式实现 Observer。
type ObserverFunc func(ctx context.Context, event Event)

// Observe 实现 Observer 接口。
func (f ObserverFunc) Observe(ctx context.Context, event Event) { f(ctx, event) }
