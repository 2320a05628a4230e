// Package api 暴露 ForesightX 的 HTTP 接口：提交消息、查询任务与链上交易、
// 读取人设与动作目录，以及 websocket 事件流与 Prometheus 指标。
package api
