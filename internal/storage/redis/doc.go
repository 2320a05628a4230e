// Package redis 提供基于 Redis 的房间消息记忆，多实例部署时共享对话上下文。
package redis
