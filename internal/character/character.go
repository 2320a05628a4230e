package character

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed foresightx.yaml
var defaultCharacterYAML []byte

// Character 描述聊天机器人的人设、风格与密钥设置。
type Character struct {
	Name            string             `yaml:"name" json:"name"`
	Username        string             `yaml:"username" json:"username"`
	Clients         []string           `yaml:"clients" json:"clients"`
	ModelProvider   string             `yaml:"modelProvider" json:"modelProvider"`
	System          string             `yaml:"system,omitempty" json:"system,omitempty"`
	Settings        Settings           `yaml:"settings" json:"settings"`
	Bio             []string           `yaml:"bio" json:"bio"`
	Lore            []string           `yaml:"lore" json:"lore"`
	Knowledge       []string           `yaml:"knowledge" json:"knowledge"`
	MessageExamples [][]MessageExample `yaml:"messageExamples" json:"messageExamples"`
	PostExamples    []string           `yaml:"postExamples" json:"postExamples"`
	Topics          []string           `yaml:"topics" json:"topics"`
	Style           Style              `yaml:"style" json:"style"`
	Adjectives      []string           `yaml:"adjectives" json:"adjectives"`
}

// Settings 保存人设级别的密钥和语音配置。
type Settings struct {
	Secrets map[string]string `yaml:"secrets" json:"secrets"`
	Voice   Voice             `yaml:"voice" json:"voice"`
	Model   string            `yaml:"model,omitempty" json:"model,omitempty"`
}

// Voice 描述语音合成模型。
type Voice struct {
	Model string `yaml:"model" json:"model"`
}

// MessageExample 是对话示例中的一条消息。
type MessageExample struct {
	User    string         `yaml:"user" json:"user"`
	Content ExampleContent `yaml:"content" json:"content"`
}

// ExampleContent 是示例消息内容。
type ExampleContent struct {
	Text   string `yaml:"text" json:"text"`
	Action string `yaml:"action,omitempty" json:"action,omitempty"`
}

// Style 分别描述通用、聊天与发帖的写作风格。
type Style struct {
	All  []string `yaml:"all" json:"all"`
	Chat []string `yaml:"chat" json:"chat"`
	Post []string `yaml:"post" json:"post"`
}

// Default 返回内置的 ForesightX 人设，每次调用都会得到独立副本。
func Default() *Character {
	var c Character
	if err := yaml.Unmarshal(defaultCharacterYAML, &c); err != nil {
		panic(fmt.Sprintf("内置人设解析失败: %v", err))
	}
	if c.Settings.Secrets == nil {
		c.Settings.Secrets = map[string]string{}
	}
	return &c
}

// Load 读取 YAML 或 JSON 人设文件，缺省字段由内置人设补齐。
func Load(path string) (*Character, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取人设文件失败: %w", err)
	}

	var c Character
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(content, &c)
	default:
		err = yaml.Unmarshal(content, &c)
	}
	if err != nil {
		return nil, fmt.Errorf("解析人设文件失败: %w", err)
	}
	c.fillFrom(Default())
	return &c, nil
}

func (c *Character) fillFrom(base *Character) {
	if strings.TrimSpace(c.Name) == "" {
		c.Name = base.Name
	}
	if c.Username == "" {
		c.Username = strings.ToLower(strings.ReplaceAll(c.Name, " ", ""))
	}
	if c.ModelProvider == "" {
		c.ModelProvider = base.ModelProvider
	}
	if c.Settings.Secrets == nil {
		c.Settings.Secrets = map[string]string{}
	}
	if c.Settings.Voice.Model == "" {
		c.Settings.Voice = base.Settings.Voice
	}
	fillStrings(&c.Clients, base.Clients)
	fillStrings(&c.Bio, base.Bio)
	fillStrings(&c.Lore, base.Lore)
	fillStrings(&c.Knowledge, base.Knowledge)
	fillStrings(&c.PostExamples, base.PostExamples)
	fillStrings(&c.Topics, base.Topics)
	fillStrings(&c.Adjectives, base.Adjectives)
	fillStrings(&c.Style.All, base.Style.All)
	fillStrings(&c.Style.Chat, base.Style.Chat)
	fillStrings(&c.Style.Post, base.Style.Post)
	if len(c.MessageExamples) == 0 {
		c.MessageExamples = base.MessageExamples
	}
}

func fillStrings(dst *[]string, fallback []string) {
	if len(*dst) == 0 {
		*dst = append([]string(nil), fallback...)
	}
}

// Secret 返回人设中配置的密钥。
func (c *Character) Secret(key string) string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.Settings.Secrets[key])
}

// HasClient 判断人设是否启用了指定客户端，例如 twitter。
func (c *Character) HasClient(name string) bool {
	for _, client := range c.Clients {
		if strings.EqualFold(client, name) {
			return true
		}
	}
	return false
}

// SystemPrompt 返回模型的系统提示词。
func (c *Character) SystemPrompt() string {
	if strings.TrimSpace(c.System) != "" {
		return c.System
	}
	return fmt.Sprintf("Roleplay and generate interesting dialogue on behalf of %s.", c.Name)
}

// Pick 随机挑选至多 n 条，rng 为空时按原顺序截取。
func Pick(lines []string, n int, rng *rand.Rand) []string {
	if n <= 0 || len(lines) == 0 {
		return nil
	}
	if n > len(lines) {
		n = len(lines)
	}
	if rng == nil {
		return append([]string(nil), lines[:n]...)
	}
	picked := make([]string, 0, n)
	for _, idx := range rng.Perm(len(lines))[:n] {
		picked = append(picked, lines[idx])
	}
	return picked
}

// BioText 返回拼接后的简介。
func (c *Character) BioText(n int, rng *rand.Rand) string {
	return strings.Join(Pick(c.Bio, n, rng), " ")
}

// LoreText 返回按行拼接的背景故事。
func (c *Character) LoreText(n int, rng *rand.Rand) string {
	return strings.Join(Pick(c.Lore, n, rng), "\n")
}

// TopicsText 以一句话描述人设关注的话题。
func (c *Character) TopicsText(n int, rng *rand.Rand) string {
	topics := Pick(c.Topics, n, rng)
	if len(topics) == 0 {
		return ""
	}
	return fmt.Sprintf("%s is interested in %s", c.Name, strings.Join(topics, ", "))
}

// AdjectiveText 返回一个随机形容词。
func (c *Character) AdjectiveText(rng *rand.Rand) string {
	picked := Pick(c.Adjectives, 1, rng)
	if len(picked) == 0 {
		return ""
	}
	return picked[0]
}

// StyleDirections 返回通用风格加上 chat 或 post 风格的条目列表。
func (c *Character) StyleDirections(kind string) string {
	lines := append([]string(nil), c.Style.All...)
	switch strings.ToLower(kind) {
	case "post":
		lines = append(lines, c.Style.Post...)
	default:
		lines = append(lines, c.Style.Chat...)
	}
	if len(lines) == 0 {
		return ""
	}
	return "- " + strings.Join(lines, "\n- ")
}

// FormatMessageExamples 渲染至多 n 组对话示例，{{user1}} 会替换为示例用户名。
func (c *Character) FormatMessageExamples(n int, rng *rand.Rand) string {
	if n <= 0 || len(c.MessageExamples) == 0 {
		return ""
	}
	order := make([]int, len(c.MessageExamples))
	for i := range order {
		order[i] = i
	}
	if rng != nil {
		order = rng.Perm(len(c.MessageExamples))
	}
	if n > len(order) {
		n = len(order)
	}

	blocks := make([]string, 0, n)
	for _, idx := range order[:n] {
		var b strings.Builder
		for _, msg := range c.MessageExamples[idx] {
			user := strings.ReplaceAll(msg.User, "{{user1}}", "user1")
			b.WriteString(user)
			b.WriteString(": ")
			b.WriteString(msg.Content.Text)
			if msg.Content.Action != "" {
				fmt.Fprintf(&b, " (%s)", msg.Content.Action)
			}
			b.WriteString("\n")
		}
		blocks = append(blocks, strings.TrimRight(b.String(), "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

// FormatPostExamples 渲染至多 n 条发帖示例。
func (c *Character) FormatPostExamples(n int, rng *rand.Rand) string {
	return strings.Join(Pick(c.PostExamples, n, rng), "\n")
}
