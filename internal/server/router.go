package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/anchor/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/anchor/backend/internal/graph"
	"github.com/MarcoPoloResearchLab/anchor/backend/internal/journal"
	"github.com/MarcoPoloResearchLab/anchor/backend/internal/layout"
	"github.com/MarcoPoloResearchLab/anchor/backend/internal/suggest"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userIDContextKey  = "anchor_user_id"
	accessTokenQuery  = "access_token"
	defaultGraphPages = 100
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingUserResolver     = errors.New("user resolver dependency required")
	errMissingJournalService   = errors.New("journal service dependency required")
)

// SessionValidator authenticates requests.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
	ValidateToken(token string) (auth.SessionClaims, error)
}

// UserResolver maps session claims onto the journal owner.
type UserResolver interface {
	ResolveCanonicalUserID(ctx context.Context, claims auth.SessionClaims) (journal.UserID, error)
}

// Dependencies wires the HTTP API.
type Dependencies struct {
	SessionValidator SessionValidator
	Users            UserResolver
	Journal          *journal.Service
	Suggestions      *suggest.Client
	Realtime         *RealtimeDispatcher
	Logger           *zap.Logger
	GraphMaxNodes    int
	TickInterval     time.Duration
	Clock            func() time.Time
}

// NewHTTPHandler builds the gin router serving the journal API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Users == nil {
		return nil, errMissingUserResolver
	}
	if deps.Journal == nil {
		return nil, errMissingJournalService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	suggestions := deps.Suggestions
	if suggestions == nil {
		suggestions = suggest.NewClient(suggest.ClientConfig{Logger: logger})
	}
	maxNodes := deps.GraphMaxNodes
	if maxNodes <= 0 {
		maxNodes = graph.DefaultMaxNodes
	}
	tickInterval := deps.TickInterval
	if tickInterval <= 0 {
		tickInterval = layout.DefaultTickInterval
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		sessions:     deps.SessionValidator,
		users:        deps.Users,
		journal:      deps.Journal,
		suggestions:  suggestions,
		realtime:     realtime,
		logger:       logger,
		maxNodes:     maxNodes,
		tickInterval: tickInterval,
		clock:        clock,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/entry-types", handler.handleEntryTypes)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.GET("/entries", handler.handleListEntries)
	protected.POST("/entries", handler.handleCreateEntry)
	protected.POST("/entries/search", handler.handleSearchEntries)
	protected.GET("/entries/:id", handler.handleGetEntry)
	protected.PATCH("/entries/:id", handler.handleUpdateEntry)
	protected.POST("/entries/:id/archive", handler.handleArchiveEntry)
	protected.POST("/entries/:id/unarchive", handler.handleUnarchiveEntry)
	protected.DELETE("/entries/:id", handler.handleDeleteEntry)
	protected.PUT("/entries/:id/tags/:tag_id", handler.handleLinkTag)
	protected.DELETE("/entries/:id/tags/:tag_id", handler.handleUnlinkTag)

	protected.GET("/tags", handler.handleListTags)
	protected.POST("/tags", handler.handleCreateTag)
	protected.GET("/tags/top", handler.handleTopTags)
	protected.POST("/tags/suggest", handler.handleSuggestTags)
	protected.PATCH("/tags/:id", handler.handleUpdateTag)
	protected.DELETE("/tags/:id", handler.handleDeleteTag)

	protected.GET("/references", handler.handleListReferences)
	protected.POST("/references", handler.handleCreateReference)
	protected.DELETE("/references/:id", handler.handleDeleteReference)

	protected.GET("/graph", handler.handleGraph)
	protected.GET("/graph/stream", handler.handleGraphStream)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc: func(string) bool { return true },
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-TAuth-Tenant"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

type httpHandler struct {
	sessions     SessionValidator
	users        UserResolver
	journal      *journal.Service
	suggestions  *suggest.Client
	realtime     *RealtimeDispatcher
	logger       *zap.Logger
	maxNodes     int
	tickInterval time.Duration
	clock        func() time.Time
}

// authorizeRequest accepts the session cookie, a bearer token, or an
// access_token query parameter for EventSource clients that cannot set headers.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if errors.Is(err, auth.ErrMissingSessionToken) {
		if token := strings.TrimSpace(c.Query(accessTokenQuery)); token != "" {
			claims, err = h.sessions.ValidateToken(token)
		}
	}
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	userID, err := h.users.ResolveCanonicalUserID(c.Request.Context(), claims)
	if err != nil {
		h.logger.Error("user resolution failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, userID)
	c.Next()
}

func currentUser(c *gin.Context) journal.UserID {
	value, ok := c.Get(userIDContextKey)
	if !ok {
		return ""
	}
	userID, _ := value.(journal.UserID)
	return userID
}

func (h *httpHandler) handleEntryTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entry_types": journal.EntryTypeConfigs()})
}

// respondError maps journal failures onto HTTP statuses.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, context.Canceled):
		status = 499
	case journal.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, journal.ErrInvalidEntryID),
		errors.Is(err, journal.ErrInvalidEntryType),
		errors.Is(err, journal.ErrInvalidTagName),
		errors.Is(err, journal.ErrSelfReference),
		errors.Is(err, journal.ErrInvalidUserID),
		errors.Is(err, graph.ErrInvalidMaxNodes),
		errors.Is(err, layout.ErrInvalidCanvas):
		status = http.StatusBadRequest
	}

	body := gin.H{"error": err.Error()}
	var serviceErr *journal.ServiceError
	if errors.As(err, &serviceErr) {
		body["code"] = serviceErr.Code()
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		body["error"] = "internal_error"
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "code": code})
}

func (h *httpHandler) publish(userID journal.UserID, entryIDs ...string) {
	h.realtime.PublishEntriesChanged(userID, entryIDs...)
}
