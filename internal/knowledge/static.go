package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
)

// Provider 定义知识库检索的通用接口。
type Provider interface {
	Query(text string) []Snippet
}

// Snippet 描述可供大模型引用的一段知识。
type Snippet struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`
	Tags     []string `json:"tags"`
}

// StaticProvider 在内存中按关键词匹配知识条目。
type StaticProvider struct {
	items      []Snippet
	maxResults int
}

var _ Provider = (*StaticProvider)(nil)

// NewStaticProvider 创建静态知识库实例。
func NewStaticProvider(items []Snippet, maxResults int) *StaticProvider {
	if maxResults <= 0 {
		maxResults = 3
	}
	return &StaticProvider{items: items, maxResults: maxResults}
}

// FromLines 把人设中的 knowledge 条目转换为知识片段，关键词取自全大写的词。
func FromLines(lines []string) []Snippet {
	snippets := make([]Snippet, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		snippets = append(snippets, Snippet{Content: line, Keywords: emphasised(line)})
	}
	return snippets
}

// LoadStaticProvider 从 JSON 文件加载知识条目，并追加 extra 条目。
func LoadStaticProvider(path string, maxResults int, extra ...Snippet) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("知识库文件路径不能为空")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析知识库路径失败: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取知识库文件失败: %w", err)
	}
	defer file.Close()

	var entries []Snippet
	if err := json.NewDecoder(file).Decode(&entries); err != nil {
		return nil, fmt.Errorf("解析知识库文件失败: %w", err)
	}
	return NewStaticProvider(append(entries, extra...), maxResults), nil
}

// Query 返回与文本匹配度最高的若干条目，匹配度相同时保持原有顺序。
func (p *StaticProvider) Query(text string) []Snippet {
	if p == nil {
		return nil
	}
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil
	}

	type scored struct {
		snippet Snippet
		score   int
	}
	var hits []scored
	for _, item := range p.items {
		if score := matchScore(item, text); score > 0 {
			hits = append(hits, scored{snippet: item, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	results := make([]Snippet, 0, p.maxResults)
	for _, hit := range hits {
		results = append(results, hit.snippet)
		if len(results) >= p.maxResults {
			break
		}
	}
	return results
}

// Render 将检索结果渲染为提示词中使用的列表。
func Render(snippets []Snippet) string {
	lines := make([]string, 0, len(snippets))
	for _, s := range snippets {
		switch {
		case s.Title != "" && s.Content != "":
			lines = append(lines, fmt.Sprintf("- %s: %s", s.Title, s.Content))
		case s.Content != "":
			lines = append(lines, "- "+s.Content)
		case s.Title != "":
			lines = append(lines, "- "+s.Title)
		}
	}
	return strings.Join(lines, "\n")
}

func matchScore(snippet Snippet, text string) int {
	score := 0
	for _, keyword := range snippet.Keywords {
		if k := strings.ToLower(strings.TrimSpace(keyword)); k != "" && strings.Contains(text, k) {
			score += 2
		}
	}
	for _, tag := range snippet.Tags {
		if t := strings.ToLower(strings.TrimSpace(tag)); t != "" && strings.Contains(text, t) {
			score++
		}
	}
	return score
}

func emphasised(line string) []string {
	var words []string
	for _, field := range strings.FieldsFunc(line, func(r rune) bool { return unicode.IsSpace(r) || r == ',' }) {
		letters := 0
		upper := true
		for _, r := range field {
			if unicode.IsLetter(r) {
				letters++
				if !unicode.IsUpper(r) {
					upper = false
				}
			}
		}
		if letters >= 3 && upper {
			for _, part := range strings.Split(field, "-") {
				if len(part) >= 3 {
					words = append(words, strings.ToLower(part))
				}
			}
		}
	}
	return words
}
