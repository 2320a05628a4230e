package agent

import _ "embed"

//go:embed templates/message_handler.tmpl
var messageHandlerTemplate string

// MessageHandlerTemplate 返回没有动作命中时用于生成人设回复的模板。
func MessageHandlerTemplate() string {
	return messageHandlerTemplate
}
