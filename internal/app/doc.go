// Package app 按配置装配 ForesightX 的全部组件：存储、队列、链上客户端、
// 大模型、插件、智能体、事件与 HTTP 服务。
package app
