package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSONObject 表示模型输出中找不到可解析的 JSON 对象。
var ErrNoJSONObject = errors.New("no JSON object found in model output")

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractJSONObject 从模型输出中提取第一个 JSON 对象。优先使用 ```json 代码块，
// 否则扫描第一个括号平衡的对象。数字以 json.Number 保留，避免大整数丢失精度。
func ExtractJSONObject(text string) (map[string]any, error) {
	for _, match := range fencedBlock.FindAllStringSubmatch(text, -1) {
		if obj, ok := scanObjects(match[1]); ok {
			return obj, nil
		}
	}
	if obj, ok := scanObjects(text); ok {
		return obj, nil
	}
	return nil, ErrNoJSONObject
}

// scanObjects 依次尝试从每个左花括号开始解析对象。
func scanObjects(text string) (map[string]any, bool) {
	for offset := 0; offset < len(text); {
		idx := strings.IndexByte(text[offset:], '{')
		if idx < 0 {
			return nil, false
		}
		start := offset + idx
		if candidate := firstBalancedObject(text[start:]); candidate != "" {
			decoder := json.NewDecoder(bytes.NewReader([]byte(candidate)))
			decoder.UseNumber()
			var out map[string]any
			if err := decoder.Decode(&out); err == nil && out != nil {
				return out, true
			}
		}
		offset = start + 1
	}
	return nil, false
}

// firstBalancedObject 返回第一个花括号平衡的片段，会跳过字符串中的括号。
func firstBalancedObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
