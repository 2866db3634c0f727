package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/anchor/backend/internal/journal"
	"github.com/gin-gonic/gin"
)

const (
	codeInvalidJSON      = "request.invalid_json"
	codeInvalidEntryID   = "request.invalid_entry_id"
	codeInvalidPaging    = "request.invalid_paging"
	codeInvalidLimit     = "request.invalid_limit"
	codeInvalidReference = "request.invalid_reference"
	defaultTopTagsLimit  = 10
)

type createTagRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type createReferenceRequest struct {
	FromEntryID string `json:"from_entry_id"`
	ToEntryID   string `json:"to_entry_id"`
}

func (h *httpHandler) handleListEntries(c *gin.Context) {
	userID := currentUser(c)
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		badRequest(c, codeInvalidPaging)
		return
	}
	limit, err := queryInt(c, "limit", journal.DefaultPageSize)
	if err != nil || limit < 0 {
		badRequest(c, codeInvalidPaging)
		return
	}
	archived, err := strconv.ParseBool(c.DefaultQuery("archived", "false"))
	if err != nil {
		badRequest(c, codeInvalidPaging)
		return
	}

	ctx := c.Request.Context()
	entries, err := h.journal.ListEntries(ctx, userID, journal.ListQuery{Offset: offset, Limit: limit, Archived: archived})
	if err != nil {
		h.respondError(c, err)
		return
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ID)
	}
	tagIndex, err := h.journal.TagsForEntries(ctx, userID, ids)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if entries == nil {
		entries = []journal.Entry{}
	}
	pageSize := limit
	if pageSize == 0 {
		pageSize = journal.DefaultPageSize
	}
	c.JSON(http.StatusOK, gin.H{
		"entries":   entries,
		"tag_index": tagIndex,
		"has_more":  len(entries) == pageSize,
	})
}

func (h *httpHandler) handleCreateEntry(c *gin.Context) {
	var draft journal.EntryDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		badRequest(c, codeInvalidJSON)
		return
	}
	userID := currentUser(c)
	entry, err := h.journal.CreateEntry(c.Request.Context(), userID, draft)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(userID, entry.ID)
	c.JSON(http.StatusCreated, entry)
}

func (h *httpHandler) handleGetEntry(c *gin.Context) {
	entryID, ok := entryIDParam(c, "id")
	if !ok {
		return
	}
	userID := currentUser(c)
	ctx := c.Request.Context()
	entry, err := h.journal.GetEntry(ctx, userID, entryID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	tagIndex, err := h.journal.TagsForEntries(ctx, userID, []string{entry.ID})
	if err != nil {
		h.respondError(c, err)
		return
	}
	references, err := h.journal.ReferencesFor(ctx, userID, entryID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	tags := tagIndex[entry.ID]
	if tags == nil {
		tags = []journal.Tag{}
	}
	c.JSON(http.StatusOK, gin.H{
		"entry":      entry,
		"tags":       tags,
		"references": references,
	})
}

func (h *httpHandler) handleUpdateEntry(c *gin.Context) {
	entryID, ok := entryIDParam(c, "id")
	if !ok {
		return
	}
	var patch journal.EntryPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, codeInvalidJSON)
		return
	}
	userID := currentUser(c)
	entry, err := h.journal.UpdateEntry(c.Request.Context(), userID, entryID, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(userID, entry.ID)
	c.JSON(http.StatusOK, entry)
}

func (h *httpHandler) handleArchiveEntry(c *gin.Context) {
	entryID, ok := entryIDParam(c, "id")
	if !ok {
		return
	}
	userID := currentUser(c)
	entry, err := h.journal.ArchiveEntry(c.Request.Context(), userID, entryID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(userID, entry.ID)
	c.JSON(http.StatusOK, entry)
}

func (h *httpHandler) handleUnarchiveEntry(c *gin.Context) {
	entryID, ok := entryIDParam(c, "id")
	if !ok {
		return
	}
	userID := currentUser(c)
	entry, err := h.journal.UnarchiveEntry(c.Request.Context(), userID, entryID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(userID, entry.ID)
	c.JSON(http.StatusOK, entry)
}

func (h *httpHandler) handleDeleteEntry(c *gin.Context) {
	entryID, ok := entryIDParam(c, "id")
	if !ok {
		return
	}
	userID := currentUser(c)
	if err := h.journal.DeleteEntry(c.Request.Context(), userID, entryID); err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(userID, entryID.String())
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleLinkTag(c *gin.Context) {
	entryID, ok := entryIDParam(c, "id")
	if !ok {
		return
	}
	userID := currentUser(c)
	if err := h.journal.LinkTag(c.Request.Context(), userID, entryID, c.Param("tag_id")); err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(userID, entryID.String())
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleUnlinkTag(c *gin.Context) {
	entryID, ok := entryIDParam(c, "id")
	if !ok {
		return
	}
	userID := currentUser(c)
	if err := h.journal.UnlinkTag(c.Request.Context(), userID, entryID, c.Param("tag_id")); err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(userID, entryID.String())
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListTags(c *gin.Context) {
	tags, err := h.journal.ListTags(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

func (h *httpHandler) handleCreateTag(c *gin.Context) {
	var request createTagRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, codeInvalidJSON)
		return
	}
	tag, err := h.journal.CreateTag(c.Request.Context(), currentUser(c), request.Name, request.Color)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tag)
}

func (h *httpHandler) handleUpdateTag(c *gin.Context) {
	var patch journal.TagPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, codeInvalidJSON)
		return
	}
	userID := currentUser(c)
	tag, err := h.journal.UpdateTag(c.Request.Context(), userID, c.Param("id"), patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(userID)
	c.JSON(http.StatusOK, tag)
}

func (h *httpHandler) handleDeleteTag(c *gin.Context) {
	userID := currentUser(c)
	if err := h.journal.DeleteTag(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(userID)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleTopTags(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultTopTagsLimit)
	if err != nil || limit <= 0 {
		badRequest(c, codeInvalidLimit)
		return
	}
	usage, err := h.journal.TopTags(c.Request.Context(), currentUser(c), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": usage})
}

func (h *httpHandler) handleListReferences(c *gin.Context) {
	references, err := h.journal.ListReferences(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"references": references})
}

func (h *httpHandler) handleCreateReference(c *gin.Context) {
	var request createReferenceRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, codeInvalidJSON)
		return
	}
	fromID, err := journal.NewEntryID(request.FromEntryID)
	if err != nil {
		badRequest(c, codeInvalidReference)
		return
	}
	toID, err := journal.NewEntryID(request.ToEntryID)
	if err != nil {
		badRequest(c, codeInvalidReference)
		return
	}
	userID := currentUser(c)
	reference, err := h.journal.CreateReference(c.Request.Context(), userID, fromID, toID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(userID, reference.FromEntryID, reference.ToEntryID)
	c.JSON(http.StatusCreated, reference)
}

func (h *httpHandler) handleDeleteReference(c *gin.Context) {
	userID := currentUser(c)
	if err := h.journal.DeleteReference(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(userID)
	c.Status(http.StatusNoContent)
}

func entryIDParam(c *gin.Context, name string) (journal.EntryID, bool) {
	entryID, err := journal.NewEntryID(c.Param(name))
	if err != nil {
		badRequest(c, codeInvalidEntryID)
		return "", false
	}
	return entryID, true
}

func queryInt(c *gin.Context, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
