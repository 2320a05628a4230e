package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ForesightX/internal/auth"
	xerrors "ForesightX/internal/errors"
	"ForesightX/internal/events"
	"ForesightX/internal/plugins/movement"
	"ForesightX/internal/storage/ledger"
	"ForesightX/internal/task"
)

// messageRequest 是 POST /api/v1/messages 的请求体。
type messageRequest struct {
	ID       string         `json:"id"`
	UserID   string         `json:"user_id"`
	UserName string         `json:"user_name"`
	RoomID   string         `json:"room_id"`
	Text     string         `json:"text"`
	Action   string         `json:"action"`
	Source   string         `json:"source"`
	Twitter  *twitterFields `json:"twitter,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type twitterFields struct {
	Username string `json:"username"`
	TweetID  string `json:"tweet_id"`
}

func (r messageRequest) toTask() task.Request {
	req := task.Request{
		ID:       r.ID,
		UserID:   r.UserID,
		UserName: r.UserName,
		RoomID:   r.RoomID,
		Text:     r.Text,
		Action:   r.Action,
		Source:   r.Source,
		Metadata: r.Metadata,
	}
	if r.Twitter != nil {
		req.TwitterUsername = r.Twitter.Username
		req.TweetID = r.Twitter.TweetID
		if req.Source == "" {
			req.Source = task.SourceTwitter
		}
	}
	return req
}

// actionView 是动作目录中的一项。
type actionView struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Similes     []string `json:"similes"`
	Priority    int      `json:"priority"`
}

// handleSubmitMessage 将消息转换为异步任务，?wait=true 时等待处理结束。
func (s *Server) handleSubmitMessage(c *gin.Context) {
	if s.tasks == nil {
		writeError(c, xerrors.New(xerrors.CodeInitializationFailure, "task service is not configured"))
		return
	}
	var body messageRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return
	}
	if body.UserID == "" {
		if subject := auth.SubjectFromContext(c.Request.Context()); subject != nil {
			body.UserID = subject.ID
		}
	}

	created, err := s.tasks.Submit(c.Request.Context(), body.toTask())
	if err != nil {
		writeError(c, err)
		return
	}
	if s.hub != nil {
		s.hub.Publish(events.TopicTasks, "submitted", created)
	}

	if !queryBool(c, "wait") {
		c.JSON(http.StatusAccepted, created)
		return
	}

	timeout := s.waitTimeout
	if raw := c.Query("timeout"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			timeout = min(time.Duration(secs)*time.Second, maxWaitTimeout)
		}
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	done, err := s.tasks.WaitUntilCompleted(ctx, created.ID, s.waitInterval)
	if err != nil {
		if xerrors.CodeOf(err) == xerrors.CodeTimeout && done != nil {
			c.JSON(http.StatusAccepted, done)
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, done)
}

func (s *Server) handleTaskDetail(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		writeError(c, xerrors.New(xerrors.CodeInvalidArgument, "缺少任务 ID"))
		return
	}
	t, err := s.tasks.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleListTasks(c *gin.Context) {
	opts, err := listOptionsFromQuery(c)
	if err != nil {
		writeError(c, err)
		return
	}
	tasks, err := s.tasks.List(c.Request.Context(), opts...)
	if err != nil {
		writeError(c, err)
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
}

func (s *Server) handleTaskStats(c *gin.Context) {
	opts, err := listOptionsFromQuery(c)
	if err != nil {
		writeError(c, err)
		return
	}
	stats, err := s.tasks.Stats(c.Request.Context(), opts...)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// handleCharacter 返回当前人设，不包含密钥。
func (s *Server) handleCharacter(c *gin.Context) {
	if s.catalogue == nil || s.catalogue.Character() == nil {
		writeError(c, xerrors.New(xerrors.CodeInitializationFailure, "agent is not configured"))
		return
	}
	char := *s.catalogue.Character()
	char.Settings.Secrets = nil
	c.JSON(http.StatusOK, char)
}

func (s *Server) handleActions(c *gin.Context) {
	if s.catalogue == nil {
		writeError(c, xerrors.New(xerrors.CodeInitializationFailure, "agent is not configured"))
		return
	}
	actions := s.catalogue.Actions()
	views := make([]actionView, 0, len(actions))
	for _, a := range actions {
		views = append(views, actionView{
			Name:        a.Name(),
			Description: a.Description(),
			Similes:     a.Similes(),
			Priority:    a.Priority(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"actions": views})
}

func (s *Server) handleListTransactions(c *gin.Context) {
	if s.ledger == nil {
		writeError(c, xerrors.New(xerrors.CodeInitializationFailure, "ledger is not configured"))
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	var opts []ledger.ListOption
	if action := strings.ToUpper(strings.TrimSpace(c.Query("action"))); action != "" {
		opts = append(opts, ledger.WithAction(action))
	}
	records, err := s.ledger.ListLatest(c.Request.Context(), limit, opts...)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": records, "count": len(records)})
}

func (s *Server) handleTransactionDetail(c *gin.Context) {
	if s.ledger == nil {
		writeError(c, xerrors.New(xerrors.CodeInitializationFailure, "ledger is not configured"))
		return
	}
	rec, err := s.ledger.FindByHash(c.Request.Context(), c.Param("hash"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// handleMarket 按 slug 查找最近一次创建的预测市场。
func (s *Server) handleMarket(c *gin.Context) {
	if s.ledger == nil {
		writeError(c, xerrors.New(xerrors.CodeInitializationFailure, "ledger is not configured"))
		return
	}
	// slug 可能包含 "/"，路由使用通配参数。
	slug := strings.TrimSpace(strings.TrimPrefix(c.Param("slug"), "/"))
	if slug == "" {
		writeError(c, xerrors.New(xerrors.CodeInvalidArgument, "market slug is required"))
		return
	}
	rec, err := s.ledger.FindMarketBySlug(c.Request.Context(), slug)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"slug":            rec.MarketSlug,
		"market_question": rec.MarketQuestion,
		"creator":         rec.Creator,
		"market_url":      movement.MarketURL(rec.MarketQuestion),
		"transaction":     rec,
	})
}

// listOptionsFromQuery 将查询参数转换为任务过滤条件。
func listOptionsFromQuery(c *gin.Context) ([]task.ListOption, error) {
	var opts []task.ListOption
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "limit 必须为整数")
		}
		opts = append(opts, task.WithLimit(n))
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "offset 必须为非负整数")
		}
		opts = append(opts, task.WithOffset(n))
	}
	if raw := c.Query("status"); raw != "" {
		var statuses []task.Status
		for _, part := range strings.Split(raw, ",") {
			status := task.Status(strings.ToLower(strings.TrimSpace(part)))
			if !task.IsValidStatus(status) {
				return nil, xerrors.New(xerrors.CodeInvalidArgument, "未知的任务状态: "+part)
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	if v := c.Query("room"); v != "" {
		opts = append(opts, task.WithRoom(v))
	}
	if v := c.Query("user"); v != "" {
		opts = append(opts, task.WithUser(v))
	}
	if v := c.Query("action"); v != "" {
		opts = append(opts, task.WithAction(v))
	}
	if v := c.Query("q"); v != "" {
		opts = append(opts, task.WithQuery(v))
	}
	for key, apply := range map[string]func(time.Time) task.ListOption{
		"since": task.WithUpdatedSince,
		"until": task.WithUpdatedUntil,
	} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		ts, err := parseTime(raw)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, key+" 时间格式无效")
		}
		opts = append(opts, apply(ts))
	}
	if raw := c.Query("has_result"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "has_result 必须为布尔值")
		}
		opts = append(opts, task.WithResultPresence(v))
	}
	if strings.EqualFold(c.Query("order"), "asc") {
		opts = append(opts, task.WithSortOrder(task.SortByUpdatedAsc))
	}
	return opts, nil
}

// parseTime 接受 RFC3339 或 Unix 秒。
func parseTime(raw string) (time.Time, error) {
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}
	return time.Parse(time.RFC3339, raw)
}

func queryBool(c *gin.Context, key string) bool {
	v, err := strconv.ParseBool(c.Query(key))
	return err == nil && v
}
