package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/anchor/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/anchor/backend/internal/database"
	"github.com/MarcoPoloResearchLab/anchor/backend/internal/graph"
	"github.com/MarcoPoloResearchLab/anchor/backend/internal/journal"
	"github.com/MarcoPoloResearchLab/anchor/backend/internal/layout"
	"github.com/MarcoPoloResearchLab/anchor/backend/internal/suggest"
	"github.com/MarcoPoloResearchLab/anchor/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	testSigningSecret = "test-signing-secret"
	testCookieName    = "app_session"
	testUserID        = "user-1"
)

type recordingProvider struct {
	mu          sync.Mutex
	requests    []suggest.Request
	suggestions []suggest.Suggestion
}

func (p *recordingProvider) Name() string {
	return "recording"
}

func (p *recordingProvider) Suggest(_ context.Context, request suggest.Request) ([]suggest.Suggestion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, request)
	return p.suggestions, nil
}

type testAPI struct {
	server   *httptest.Server
	token    string
	provider *recordingProvider
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "anchor.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	journalService, err := journal.NewService(journal.ServiceConfig{
		Database:   db,
		IDProvider: journal.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to construct journal service: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct user service: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to construct session validator: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct token issuer: %v", err)
	}
	token, _, err := issuer.Issue(testUserID, "user@example.com")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	provider := &recordingProvider{}
	handler, err := NewHTTPHandler(Dependencies{
		SessionValidator: validator,
		Users:            userService,
		Journal:          journalService,
		Suggestions:      suggest.NewClient(suggest.ClientConfig{Provider: provider}),
		Logger:           zap.NewNop(),
		TickInterval:     time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &testAPI{server: server, token: token, provider: provider}
}

func (a *testAPI) request(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	request, err := http.NewRequest(method, a.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to construct request: %v", err)
	}
	request.Header.Set("Authorization", "Bearer "+a.token)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer response.Body.Close()
	data, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return response.StatusCode, data
}

func (a *testAPI) decode(t *testing.T, method, path string, body any, wantStatus int, target any) {
	t.Helper()
	status, data := a.request(t, method, path, body)
	if status != wantStatus {
		t.Fatalf("%s %s: expected status %d, got %d (%s)", method, path, wantStatus, status, data)
	}
	if target == nil {
		return
	}
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to decode %s %s: %v", method, path, err)
	}
}

func (a *testAPI) createEntry(t *testing.T, title string, entryType journal.EntryType) journal.Entry {
	t.Helper()
	var entry journal.Entry
	a.decode(t, http.MethodPost, "/entries", journal.EntryDraft{Title: title, EntryType: entryType}, http.StatusCreated, &entry)
	return entry
}

func (a *testAPI) createTag(t *testing.T, name string) journal.Tag {
	t.Helper()
	var tag journal.Tag
	a.decode(t, http.MethodPost, "/tags", createTagRequest{Name: name}, http.StatusCreated, &tag)
	return tag
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	api := newTestAPI(t)

	response, err := http.Get(api.server.URL + "/entries")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = response.Body.Close()
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d", response.StatusCode)
	}

	response, err = http.Get(api.server.URL + "/entry-types")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected entry types to be public, got %d", response.StatusCode)
	}
}

func TestEntryLifecycle(t *testing.T) {
	api := newTestAPI(t)

	var invalid errorBody
	api.decode(t, http.MethodPost, "/entries", journal.EntryDraft{Title: "x", EntryType: "poem"}, http.StatusBadRequest, &invalid)
	if invalid.Code != "journal.create_entry.invalid_input" {
		t.Fatalf("unexpected error code %q", invalid.Code)
	}

	entry := api.createEntry(t, "First lesson", journal.EntryTypeLesson)
	tag := api.createTag(t, "  Golang ")
	if tag.Name != "golang" {
		t.Fatalf("expected normalized tag name, got %q", tag.Name)
	}
	api.decode(t, http.MethodPut, "/entries/"+entry.ID+"/tags/"+tag.ID, nil, http.StatusNoContent, nil)

	var detail struct {
		Entry      journal.Entry           `json:"entry"`
		Tags       []journal.Tag           `json:"tags"`
		References journal.EntryReferences `json:"references"`
	}
	api.decode(t, http.MethodGet, "/entries/"+entry.ID, nil, http.StatusOK, &detail)
	if len(detail.Tags) != 1 || detail.Tags[0].ID != tag.ID {
		t.Fatalf("expected linked tag on entry, got %+v", detail.Tags)
	}

	title := "Renamed lesson"
	var updated journal.Entry
	api.decode(t, http.MethodPatch, "/entries/"+entry.ID, journal.EntryPatch{Title: &title}, http.StatusOK, &updated)
	if updated.Title != title {
		t.Fatalf("expected updated title, got %q", updated.Title)
	}

	api.decode(t, http.MethodPost, "/entries/"+entry.ID+"/archive", nil, http.StatusOK, nil)
	var page struct {
		Entries  []journal.Entry  `json:"entries"`
		TagIndex journal.TagIndex `json:"tag_index"`
		HasMore  bool             `json:"has_more"`
	}
	api.decode(t, http.MethodGet, "/entries", nil, http.StatusOK, &page)
	if len(page.Entries) != 0 {
		t.Fatalf("expected archived entry to be hidden, got %d entries", len(page.Entries))
	}
	api.decode(t, http.MethodGet, "/entries?archived=true", nil, http.StatusOK, &page)
	if len(page.Entries) != 1 || len(page.TagIndex[entry.ID]) != 1 {
		t.Fatalf("expected archived entry with its tags, got %+v", page)
	}

	api.decode(t, http.MethodDelete, "/entries/"+entry.ID, nil, http.StatusNoContent, nil)
	var missing errorBody
	api.decode(t, http.MethodGet, "/entries/"+entry.ID, nil, http.StatusNotFound, &missing)
	if missing.Code != "journal.get_entry.not_found" {
		t.Fatalf("unexpected error code %q", missing.Code)
	}

	api.decode(t, http.MethodGet, "/entries?limit=abc", nil, http.StatusBadRequest, nil)
}

func TestReferencesFeedTheGraph(t *testing.T) {
	api := newTestAPI(t)

	first := api.createEntry(t, "Alpha", journal.EntryTypeIdea)
	second := api.createEntry(t, "Beta", journal.EntryTypeNote)
	third := api.createEntry(t, "Gamma", journal.EntryTypeNote)
	tag := api.createTag(t, "shared")
	api.decode(t, http.MethodPut, "/entries/"+second.ID+"/tags/"+tag.ID, nil, http.StatusNoContent, nil)
	api.decode(t, http.MethodPut, "/entries/"+third.ID+"/tags/"+tag.ID, nil, http.StatusNoContent, nil)

	var reference journal.EntryReference
	api.decode(t, http.MethodPost, "/references",
		createReferenceRequest{FromEntryID: first.ID, ToEntryID: second.ID}, http.StatusCreated, &reference)

	var self errorBody
	api.decode(t, http.MethodPost, "/references",
		createReferenceRequest{FromEntryID: first.ID, ToEntryID: first.ID}, http.StatusBadRequest, &self)
	if self.Code != "journal.create_reference.self_reference" {
		t.Fatalf("unexpected error code %q", self.Code)
	}

	var result struct {
		Stats graph.Stats  `json:"stats"`
		Frame layout.Frame `json:"frame"`
	}
	api.decode(t, http.MethodGet, "/graph?seed=7&width=400&height=300", nil, http.StatusOK, &result)
	if result.Stats.Nodes != 3 || result.Stats.ReferenceEdges != 1 || result.Stats.TagEdges != 1 {
		t.Fatalf("unexpected graph stats %+v", result.Stats)
	}
	if !result.Frame.Settled || len(result.Frame.Nodes) != 3 || len(result.Frame.Links) != 2 {
		t.Fatalf("expected settled frame with 3 nodes and 2 links, got %+v", result.Frame)
	}

	api.decode(t, http.MethodGet, "/graph?width=0", nil, http.StatusBadRequest, nil)
	api.decode(t, http.MethodGet, "/graph?max_nodes=-1", nil, http.StatusBadRequest, nil)

	api.decode(t, http.MethodDelete, "/references/"+reference.ID, nil, http.StatusNoContent, nil)
	api.decode(t, http.MethodGet, "/graph", nil, http.StatusOK, &result)
	if result.Stats.ReferenceEdges != 0 {
		t.Fatalf("expected reference edge to be gone, got %+v", result.Stats)
	}
}

func TestSearchEntriesAppliesFilters(t *testing.T) {
	api := newTestAPI(t)

	api.createEntry(t, "Alpha release", journal.EntryTypeMilestone)
	tagged := api.createEntry(t, "Beta notes", journal.EntryTypeNote)
	api.createEntry(t, "Gamma idea", journal.EntryTypeIdea)
	tag := api.createTag(t, "release")
	api.decode(t, http.MethodPut, "/entries/"+tagged.ID+"/tags/"+tag.ID, nil, http.StatusNoContent, nil)

	type searchResult struct {
		Entries     []journal.Entry `json:"entries"`
		Total       int             `json:"total"`
		Active      bool            `json:"active"`
		ActiveCount int             `json:"active_count"`
	}

	var byQuery searchResult
	api.decode(t, http.MethodPost, "/entries/search", map[string]any{"query": "ALPHA"}, http.StatusOK, &byQuery)
	if len(byQuery.Entries) != 1 || byQuery.Entries[0].Title != "Alpha release" {
		t.Fatalf("unexpected query result %+v", byQuery.Entries)
	}
	if byQuery.Total != 3 || !byQuery.Active || byQuery.ActiveCount != 1 {
		t.Fatalf("unexpected search summary %+v", byQuery)
	}

	var byTagAndType searchResult
	api.decode(t, http.MethodPost, "/entries/search", map[string]any{
		"tag_ids": []string{tag.ID},
		"types":   []string{"note", "idea"},
	}, http.StatusOK, &byTagAndType)
	if len(byTagAndType.Entries) != 1 || byTagAndType.Entries[0].ID != tagged.ID {
		t.Fatalf("unexpected tag and type result %+v", byTagAndType.Entries)
	}
	if byTagAndType.ActiveCount != 3 {
		t.Fatalf("expected 3 active facets, got %d", byTagAndType.ActiveCount)
	}

	var everything searchResult
	api.decode(t, http.MethodPost, "/entries/search", map[string]any{}, http.StatusOK, &everything)
	if len(everything.Entries) != 3 || everything.Active {
		t.Fatalf("expected an empty filter to match everything, got %+v", everything)
	}

	api.decode(t, http.MethodPost, "/entries/search", map[string]any{"time_zone": "Mars/Olympus"}, http.StatusBadRequest, nil)
}

func TestSuggestTagsUsesStoredVocabulary(t *testing.T) {
	api := newTestAPI(t)
	api.createTag(t, "golang")
	api.provider.suggestions = []suggest.Suggestion{
		{Name: " Generics ", Confidence: 0.9},
		{Name: "golang", Confidence: 0.7},
	}

	var result struct {
		Suggestions []suggest.Suggestion `json:"suggestions"`
	}
	api.decode(t, http.MethodPost, "/tags/suggest", suggest.Request{
		Title:        "Learning generics",
		Content:      "Type parameters in Go",
		ExistingTags: []string{"golang"},
	}, http.StatusOK, &result)
	if len(result.Suggestions) != 1 || result.Suggestions[0].Name != "generics" {
		t.Fatalf("unexpected suggestions %+v", result.Suggestions)
	}

	api.provider.mu.Lock()
	defer api.provider.mu.Unlock()
	if len(api.provider.requests) != 1 {
		t.Fatalf("expected one provider call, got %d", len(api.provider.requests))
	}
	if allTags := api.provider.requests[0].AllTags; len(allTags) != 1 || allTags[0] != "golang" {
		t.Fatalf("expected stored tags to be offered, got %v", allTags)
	}
}

func TestSuggestTagsSkipsShortInput(t *testing.T) {
	api := newTestAPI(t)

	var result struct {
		Suggestions []suggest.Suggestion `json:"suggestions"`
	}
	api.decode(t, http.MethodPost, "/tags/suggest", suggest.Request{Title: "hi"}, http.StatusOK, &result)
	if result.Suggestions == nil || len(result.Suggestions) != 0 {
		t.Fatalf("expected an empty suggestion list, got %+v", result.Suggestions)
	}
	api.provider.mu.Lock()
	defer api.provider.mu.Unlock()
	if len(api.provider.requests) != 0 {
		t.Fatalf("expected provider to be skipped, got %d calls", len(api.provider.requests))
	}
}

type streamEvent struct {
	name string
	data string
}

func openGraphStream(t *testing.T, api *testAPI) <-chan streamEvent {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet,
		api.server.URL+"/graph/stream?seed=3&access_token="+api.token, http.NoBody)
	if err != nil {
		t.Fatalf("failed to construct stream request: %v", err)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	t.Cleanup(func() { _ = response.Body.Close() })
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected stream status: %d", response.StatusCode)
	}

	events := make(chan streamEvent)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(response.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		current := streamEvent{}
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				current.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				current.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			case line == "" && current.name != "":
				select {
				case events <- current:
				case <-ctx.Done():
					return
				}
				current = streamEvent{}
			}
		}
	}()
	return events
}

func waitForSettledFrame(t *testing.T, events <-chan streamEvent, match func(layout.Frame) bool) layout.Frame {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a matching settled frame")
		case event, open := <-events:
			if !open {
				t.Fatal("stream closed before a settled frame arrived")
			}
			if event.name != realtimeEventSettled {
				continue
			}
			var frame layout.Frame
			if err := json.Unmarshal([]byte(event.data), &frame); err != nil {
				t.Fatalf("failed to decode frame: %v", err)
			}
			if match(frame) {
				return frame
			}
		}
	}
}

func TestGraphStreamRestartsOnJournalChange(t *testing.T) {
	api := newTestAPI(t)
	first := api.createEntry(t, "Anchor", journal.EntryTypeMilestone)

	events := openGraphStream(t, api)
	initial := waitForSettledFrame(t, events, func(frame layout.Frame) bool {
		return len(frame.Nodes) == 1
	})
	if initial.Nodes[0].ID != first.ID {
		t.Fatalf("unexpected initial frame %+v", initial)
	}

	second := api.createEntry(t, "Follow up", journal.EntryTypeNote)
	api.decode(t, http.MethodPost, "/references",
		createReferenceRequest{FromEntryID: second.ID, ToEntryID: first.ID}, http.StatusCreated, nil)

	rebuilt := waitForSettledFrame(t, events, func(frame layout.Frame) bool {
		return len(frame.Nodes) == 2 && len(frame.Links) == 1
	})
	if rebuilt.Links[0].Source != second.ID || rebuilt.Links[0].Target != first.ID {
		t.Fatalf("unexpected reference link %+v", rebuilt.Links[0])
	}
}
