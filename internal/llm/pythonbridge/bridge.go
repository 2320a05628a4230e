package pythonbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	xerrors "ForesightX/internal/errors"
	"ForesightX/internal/llm"
)

// Client 通过调用外部脚本实现大模型推理，请求与响应均为 stdin/stdout 上的 JSON。
type Client struct {
	pythonExec string
	scriptPath string
	workingDir string
}

var _ llm.Client = (*Client)(nil)

// NewClient 创建 Python Bridge 客户端。
func NewClient(pythonExec, scriptPath, workingDir string) (*Client, error) {
	if scriptPath == "" {
		return nil, fmt.Errorf("未指定 Python 脚本路径")
	}
	if pythonExec == "" {
		pythonExec = "python3"
	}
	return &Client{
		pythonExec: pythonExec,
		scriptPath: scriptPath,
		workingDir: workingDir,
	}, nil
}

type bridgeRequest struct {
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	Class       string  `json:"class"`
	Temperature float32 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Timestamp   int64   `json:"timestamp"`
}

type bridgeResponse struct {
	Text  string `json:"text"`
	Reply string `json:"reply"`
	Model string `json:"model"`
	Error string `json:"error"`
}

// Generate 调用外部脚本，并解析输出。
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	encoded, err := json.Marshal(bridgeRequest{
		System:      req.System,
		Prompt:      req.Prompt,
		Class:       string(req.Class),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Timestamp:   time.Now().Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	command := exec.CommandContext(ctx, c.pythonExec, c.scriptPath)
	if c.workingDir != "" {
		command.Dir = c.workingDir
	}
	command.Stdin = bytes.NewReader(encoded)

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeModelFailure, err,
			fmt.Sprintf("执行推理脚本失败, stderr=%s", strings.TrimSpace(stderr.String())))
	}

	var resp bridgeResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeModelFailure, err, "解析推理脚本输出失败", xerrors.WithRetryable(false))
	}
	if resp.Error != "" {
		return nil, xerrors.New(xerrors.CodeModelFailure, resp.Error)
	}
	text := resp.Text
	if text == "" {
		text = resp.Reply
	}
	if strings.TrimSpace(text) == "" {
		return nil, xerrors.New(xerrors.CodeModelFailure, "推理脚本未返回文本", xerrors.WithRetryable(false))
	}
	return &llm.Response{Text: strings.TrimSpace(text), Model: resp.Model}, nil
}

// ResolveScriptPath 根据工作目录推导脚本绝对路径。
func ResolveScriptPath(baseDir, script string) string {
	if script == "" {
		return ""
	}
	if filepath.IsAbs(script) {
		return script
	}
	if baseDir == "" {
		return script
	}
	return filepath.Join(baseDir, script)
}
