package task

// TaskStats 汇总消息任务的状态分布，供 /api/v1/tasks/stats 与健康检查使用。
type TaskStats struct {
	Total           int            `json:"total"`
	Pending         int            `json:"pending"`
	Running         int            `json:"running"`
	Succeeded       int            `json:"succeeded"`
	Failed          int            `json:"failed"`
	Actions         map[string]int `json:"actions,omitempty"`
	OldestUpdatedAt int64          `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64          `json:"newest_updated_at,omitempty"`
}

func (s *TaskStats) add(status Status, action string, n int) {
	s.Total += n
	switch status {
	case StatusPending:
		s.Pending += n
	case StatusRunning:
		s.Running += n
	case StatusSucceeded:
		s.Succeeded += n
	case StatusFailed:
		s.Failed += n
	}
	if action != "" {
		if s.Actions == nil {
			s.Actions = make(map[string]int)
		}
		s.Actions[action] += n
	}
}

func (s *TaskStats) observe(oldest, newest int64) {
	if newest > s.NewestUpdatedAt {
		s.NewestUpdatedAt = newest
	}
	if s.OldestUpdatedAt == 0 || (oldest != 0 && oldest < s.OldestUpdatedAt) {
		s.OldestUpdatedAt = oldest
	}
}
