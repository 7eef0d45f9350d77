package api

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/adaptivequiz/internal/domain"
	"github.com/victornm/adaptivequiz/internal/errors"
	"github.com/victornm/adaptivequiz/internal/event"
	"github.com/victornm/adaptivequiz/internal/leaderboard"
	"github.com/victornm/adaptivequiz/internal/session"
	"github.com/victornm/adaptivequiz/internal/stats"
)

const (
	defaultLimit = 20
	maxLimit     = 100

	headerUserID   = "X-User-ID"
	headerUsername = "X-Username"
	keyIdentity    = "identity"
)

type Config struct {
	Router      gin.IRouter
	EventBus    *event.Bus
	Session     *session.Service
	Stats       stats.Store
	Leaderboard *leaderboard.Service
	// Redis is optional. Without it leaderboard notifications only reach websocket clients.
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	qss *session.Service
	sts stats.Store
	ls  *leaderboard.Service

	redis  Redis
	prefix string

	hub *hub
}

func New(c Config) *API {
	a := &API{
		qss:    c.Session,
		sts:    c.Stats,
		ls:     c.Leaderboard,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
		hub:    newHub(),
	}

	a.register(c.Router)

	// Register event handlers
	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})

	return a
}

func (a *API) register(r gin.IRouter) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ws/leaderboard", a.StreamLeaderboard)

	pub := r.Group("/api/leaderboard")
	pub.GET("", a.GetLeaderboard)
	pub.GET("/best", a.topBy(domain.MetricBest))
	pub.GET("/average", a.topBy(domain.MetricAverage))

	g := r.Group("/api", identify)
	g.POST("/quiz/start", a.StartSession)
	g.POST("/quiz/answer", a.SubmitAnswer)
	g.GET("/quiz/:sessionId", a.GetSession)
	g.GET("/quiz/:sessionId/results", a.GetResult)
	g.GET("/leaderboard/rank", a.GetRank)
	g.GET("/users/me/stats", a.GetStats)
	g.GET("/users/me/history", a.GetHistory)
}

type identity struct {
	UserID   string
	Username string
}

// identify trusts the identity headers set by the gateway in front of the service.
func identify(c *gin.Context) {
	id := identity{
		UserID:   c.GetHeader(headerUserID),
		Username: c.GetHeader(headerUsername),
	}
	if id.UserID == "" {
		renderError(c, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("missing %s header", headerUserID)))
		return
	}

	c.Set(keyIdentity, id)
	c.Next()
}

func identityOf(c *gin.Context) identity {
	id, _ := c.Get(keyIdentity)
	v, _ := id.(identity)
	return v
}

func (a *API) StartSession(c *gin.Context) {
	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, invalidRequest(err))
		return
	}

	id := identityOf(c)
	v, err := a.qss.StartSession(c.Request.Context(), session.StartSessionRequest{
		UserID:         id.UserID,
		Username:       id.Username,
		TotalQuestions: req.NumQuestions,
		Category:       req.Category,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toSession(v))
}

func (a *API) SubmitAnswer(c *gin.Context) {
	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, invalidRequest(err))
		return
	}

	resp, err := a.qss.SubmitAnswer(c.Request.Context(), session.SubmitAnswerRequest{
		SessionID:   req.SessionID,
		UserID:      identityOf(c).UserID,
		QuestionID:  req.QuestionID,
		AnswerIndex: *req.AnswerIndex,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, toAnswerResult(resp))
}

func (a *API) GetSession(c *gin.Context) {
	v, err := a.qss.GetSession(c.Request.Context(), session.GetSessionRequest{
		SessionID: c.Param("sessionId"),
		UserID:    identityOf(c).UserID,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, toSession(v))
}

func (a *API) GetResult(c *gin.Context) {
	res, err := a.qss.GetResult(c.Request.Context(), session.GetSessionRequest{
		SessionID: c.Param("sessionId"),
		UserID:    identityOf(c).UserID,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, toQuizResult(res))
}

// GetLeaderboard serves a page of the leaderboard, plus the caller's own entry when the identity headers are present.
func (a *API) GetLeaderboard(c *gin.Context) {
	q, err := bindLeaderboardQuery(c)
	if err != nil {
		renderError(c, err)
		return
	}

	l, err := a.ls.Board(c.Request.Context(), leaderboard.BoardRequest{
		Metric: q.SortBy,
		Limit:  q.Limit,
		UserID: c.GetHeader(headerUserID),
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, toLeaderboard(l))
}

func (a *API) topBy(m domain.Metric) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := bindLeaderboardQuery(c)
		if err != nil {
			renderError(c, err)
			return
		}

		l, err := a.ls.Top(c.Request.Context(), leaderboard.TopRequest{Metric: m, Limit: q.Limit})
		if err != nil {
			renderError(c, err)
			return
		}

		c.JSON(http.StatusOK, toLeaderboard(l))
	}
}

func (a *API) GetRank(c *gin.Context) {
	q, err := bindLeaderboardQuery(c)
	if err != nil {
		renderError(c, err)
		return
	}

	userID := identityOf(c).UserID
	r, err := a.ls.RankOf(c.Request.Context(), leaderboard.RankRequest{UserID: userID, Metric: q.SortBy})
	switch {
	case stderrors.Is(err, domain.ErrUserNotFound):
		c.JSON(http.StatusOK, Rank{UserID: userID, SortBy: q.SortBy, Rank: -1})
	case err != nil:
		renderError(c, err)
	default:
		c.JSON(http.StatusOK, Rank{UserID: r.UserID, SortBy: r.Metric, Rank: r.Rank})
	}
}

func (a *API) GetStats(c *gin.Context) {
	st, err := a.sts.Load(c.Request.Context(), identityOf(c).UserID)
	if err != nil {
		renderError(c, errors.Unavailable(err))
		return
	}

	c.JSON(http.StatusOK, toUserStats(st))
}

func (a *API) GetHistory(c *gin.Context) {
	var q HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		renderError(c, invalidRequest(err))
		return
	}

	scores, err := a.sts.History(c.Request.Context(), identityOf(c).UserID, limitOrDefault(q.Limit))
	if err != nil {
		renderError(c, errors.Unavailable(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": toUserScores(scores)})
}

func bindLeaderboardQuery(c *gin.Context) (LeaderboardQuery, error) {
	var q LeaderboardQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return q, invalidRequest(err)
	}

	if q.SortBy == "" {
		q.SortBy = domain.MetricBest
	}
	q.Limit = limitOrDefault(q.Limit)

	return q, nil
}

func limitOrDefault(limit int) int {
	if limit == 0 {
		return defaultLimit
	}

	return min(limit, maxLimit)
}

func invalidRequest(err error) error {
	return errors.Kind(domain.ErrInvalidArgument, errors.WithMessagef("invalid request: %v", err))
}

func renderError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal || e.Code == errors.CodeUnavailable {
		slog.ErrorContext(c.Request.Context(), "api: request failed", "path", c.FullPath(), "error", err)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": e})
}
