package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/anchor/backend/internal/suggest"
	"github.com/gin-gonic/gin"
)

// handleSuggestTags proposes tags for a draft. When the caller omits the
// tag vocabulary the user's stored tags are used.
func (h *httpHandler) handleSuggestTags(c *gin.Context) {
	var request suggest.Request
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, codeInvalidJSON)
		return
	}
	ctx := c.Request.Context()
	if request.AllTags == nil {
		tags, err := h.journal.ListTags(ctx, currentUser(c))
		if err != nil {
			h.respondError(c, err)
			return
		}
		request.AllTags = make([]string, 0, len(tags))
		for _, tag := range tags {
			request.AllTags = append(request.AllTags, tag.Name)
		}
	}

	suggestions, err := h.suggestions.Suggest(ctx, request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if suggestions == nil {
		suggestions = []suggest.Suggestion{}
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}
