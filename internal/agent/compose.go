package agent

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{(\w+)\}\}`)

// ComposeContext 用状态中的值替换模板里的 {{key}} 占位符，缺失的键替换为空串。
func ComposeContext(state State, template string) string {
	return placeholder.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholder.FindStringSubmatch(match)[1]
		return state[key]
	})
}

// FormatMessages 按时间顺序渲染消息，每行形如 "name: text (ACTION)"。
func FormatMessages(messages []Memory) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		text := strings.TrimSpace(m.Content.Text)
		if text == "" {
			continue
		}
		line := fmt.Sprintf("%s: %s", displayName(m), text)
		if m.Content.Action != "" && m.Content.Action != actionNone {
			line += fmt.Sprintf(" (%s)", m.Content.Action)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func displayName(m Memory) string {
	switch {
	case m.UserName != "":
		return m.UserName
	case m.Context.Twitter != nil && m.Context.Twitter.Username != "":
		return "@" + strings.TrimPrefix(m.Context.Twitter.Username, "@")
	case m.UserID != "":
		return m.UserID
	default:
		return "user"
	}
}

// formatActions 渲染动作列表供回复模板参考。
func formatActions(actions []Action) (names string, descriptions string) {
	if len(actions) == 0 {
		return "", ""
	}
	nameList := make([]string, 0, len(actions))
	lines := make([]string, 0, len(actions))
	for _, a := range actions {
		nameList = append(nameList, a.Name())
		lines = append(lines, fmt.Sprintf("%s: %s", a.Name(), a.Description()))
	}
	sort.Strings(nameList)
	return strings.Join(nameList, ", "), strings.Join(lines, "\n")
}
