package server

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/anchor/backend/internal/filter"
	"github.com/MarcoPoloResearchLab/anchor/backend/internal/graph"
	"github.com/MarcoPoloResearchLab/anchor/backend/internal/journal"
	"github.com/MarcoPoloResearchLab/anchor/backend/internal/layout"
	"github.com/MarcoPoloResearchLab/anchor/backend/internal/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultCanvasWidth  = 800.0
	defaultCanvasHeight = 600.0

	codeInvalidCanvas   = "request.invalid_canvas"
	codeInvalidMaxNodes = "request.invalid_max_nodes"
	codeInvalidSeed     = "request.invalid_seed"
	codeInvalidTimeZone = "request.invalid_time_zone"
)

type searchRequest struct {
	filter.Spec
	TimeZone string `json:"time_zone"`
}

type graphRequest struct {
	width    float64
	height   float64
	maxNodes int
	options  []layout.Option
}

// loadSnapshot materializes the user's whole unarchived journal.
func (h *httpHandler) loadSnapshot(ctx context.Context, userID journal.UserID) (store.Snapshot, error) {
	entityStore, err := store.New(store.Config{
		Backend: h.journal.ForUser(userID),
		Logger:  h.logger,
		Clock:   h.clock,
	})
	if err != nil {
		return store.Snapshot{}, err
	}
	if err := entityStore.LoadAll(ctx, defaultGraphPages); err != nil {
		return store.Snapshot{}, err
	}
	return entityStore.Snapshot(), nil
}

func (h *httpHandler) handleSearchEntries(c *gin.Context) {
	var request searchRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, codeInvalidJSON)
		return
	}
	spec := request.Spec
	if zone := strings.TrimSpace(request.TimeZone); zone != "" {
		location, err := time.LoadLocation(zone)
		if err != nil {
			badRequest(c, codeInvalidTimeZone)
			return
		}
		spec.Location = location
	}

	snapshot, err := h.loadSnapshot(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	matches := filter.Apply(snapshot.Entries, spec, snapshot.TagIndex)

	tagIndex := make(journal.TagIndex, len(matches))
	for _, entry := range matches {
		if tags, ok := snapshot.TagIndex[entry.ID]; ok {
			tagIndex[entry.ID] = tags
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"entries":      matches,
		"tag_index":    tagIndex,
		"total":        len(snapshot.Entries),
		"active":       filter.HasActive(spec),
		"active_count": filter.ActiveCount(spec),
	})
}

func (h *httpHandler) handleGraph(c *gin.Context) {
	request, ok := h.parseGraphRequest(c)
	if !ok {
		return
	}
	snapshot, err := h.loadSnapshot(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	built, err := graph.Build(snapshot.Entries, snapshot.TagIndex, snapshot.References, request.maxNodes)
	if err != nil {
		h.respondError(c, err)
		return
	}
	frame, err := layout.Settle(built, request.width, request.height, request.options...)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stats": built.Stats(),
		"frame": frame,
	})
}

// handleGraphStream runs a live simulation for the connection and pushes
// every frame as a server-sent event. Journal changes rebuild the graph and
// restart the simulation from the current positions.
func (h *httpHandler) handleGraphStream(c *gin.Context) {
	request, ok := h.parseGraphRequest(c)
	if !ok {
		return
	}
	userID := currentUser(c)
	ctx := c.Request.Context()

	// Latest frame wins; the settled frame is always the last one written.
	frames := make(chan layout.Frame, 1)
	onFrame := func(frame layout.Frame) {
		select {
		case frames <- frame:
			return
		default:
		}
		select {
		case <-frames:
		default:
		}
		select {
		case frames <- frame:
		default:
		}
	}

	runner := layout.NewRunner(h.tickInterval, h.logger)
	defer runner.Stop()

	start := func() (graph.Stats, error) {
		snapshot, err := h.loadSnapshot(ctx, userID)
		if err != nil {
			return graph.Stats{}, err
		}
		built, err := graph.Build(snapshot.Entries, snapshot.TagIndex, snapshot.References, request.maxNodes)
		if err != nil {
			return graph.Stats{}, err
		}
		if err := runner.Start(ctx, built, request.width, request.height, onFrame, request.options...); err != nil {
			return graph.Stats{}, err
		}
		return built.Stats(), nil
	}

	updates, cleanup := h.realtime.Subscribe(ctx, userID)
	defer cleanup()

	stats, err := start()
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent("stats", stats)
	c.Writer.Flush()

	heartbeat := time.NewTicker(realtimeHeartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case frame := <-frames:
			event := realtimeEventFrame
			if frame.Settled {
				event = realtimeEventSettled
			}
			c.SSEvent(event, frame)
			return true
		case message, open := <-updates:
			if !open {
				return false
			}
			if message.EventType != RealtimeEventEntriesChanged {
				return true
			}
			stats, err := start()
			if err != nil {
				h.logger.Warn("graph stream rebuild failed", zap.String("user_id", userID.String()), zap.Error(err))
				c.SSEvent(realtimeEventError, gin.H{"error": "rebuild_failed"})
				return false
			}
			c.SSEvent("stats", stats)
			return true
		case now := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{
				"source":    realtimeSourceBackend,
				"timestamp": now.UTC().Format(time.RFC3339),
			})
			return true
		}
	})
}

func (h *httpHandler) parseGraphRequest(c *gin.Context) (graphRequest, bool) {
	width, err := queryFloat(c, "width", defaultCanvasWidth)
	if err != nil {
		badRequest(c, codeInvalidCanvas)
		return graphRequest{}, false
	}
	height, err := queryFloat(c, "height", defaultCanvasHeight)
	if err != nil {
		badRequest(c, codeInvalidCanvas)
		return graphRequest{}, false
	}
	maxNodes, err := queryInt(c, "max_nodes", h.maxNodes)
	if err != nil {
		badRequest(c, codeInvalidMaxNodes)
		return graphRequest{}, false
	}
	request := graphRequest{width: width, height: height, maxNodes: maxNodes}
	if raw := strings.TrimSpace(c.Query("seed")); raw != "" {
		seed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, codeInvalidSeed)
			return graphRequest{}, false
		}
		request.options = append(request.options, layout.WithSeed(seed))
	}
	return request, true
}

func queryFloat(c *gin.Context, name string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(raw, 64)
}
