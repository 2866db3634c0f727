// Package filter narrows a journal entry set by text, tag, type, status and
// creation date.
package filter

import (
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/anchor/backend/internal/journal"
)

const dateLayout = "2006-01-02"

// DateRange bounds creation dates by calendar day, both ends inclusive.
// Bounds use the yyyy-mm-dd layout; an empty bound is open.
type DateRange struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// Spec is the combined set of active predicates.
type Spec struct {
	Query     string              `json:"query,omitempty"`
	TagIDs    []string            `json:"tag_ids,omitempty"`
	Types     []journal.EntryType `json:"types,omitempty"`
	Statuses  []string            `json:"statuses,omitempty"`
	DateRange DateRange           `json:"date_range"`

	// Location resolves day boundaries; nil means time.Local.
	Location *time.Location `json:"-"`
}

// HasActive reports whether any predicate differs from its default.
func HasActive(spec Spec) bool {
	return strings.TrimSpace(spec.Query) != "" ||
		len(spec.TagIDs) > 0 ||
		len(spec.Types) > 0 ||
		len(spec.Statuses) > 0 ||
		spec.DateRange.From != "" ||
		spec.DateRange.To != ""
}

// ActiveCount counts active facets: the query, each selected tag, type and
// status, and the date range as a whole.
func ActiveCount(spec Spec) int {
	count := len(spec.TagIDs) + len(spec.Types) + len(spec.Statuses)
	if strings.TrimSpace(spec.Query) != "" {
		count++
	}
	if spec.DateRange.From != "" || spec.DateRange.To != "" {
		count++
	}
	return count
}

// Apply returns the entries matching every predicate, in input order.
// Malformed date bounds and a nil tag index never exclude anything.
func Apply(entries []journal.Entry, spec Spec, tagIndex journal.TagIndex) []journal.Entry {
	compiled := compile(spec, tagIndex)
	result := make([]journal.Entry, 0, len(entries))
	for _, entry := range entries {
		if compiled.match(entry) {
			result = append(result, entry)
		}
	}
	return result
}

type compiledSpec struct {
	query    string
	tagIDs   []string
	types    map[journal.EntryType]struct{}
	statuses map[string]struct{}
	from     *time.Time
	to       *time.Time
	tagIndex journal.TagIndex
}

func compile(spec Spec, tagIndex journal.TagIndex) compiledSpec {
	location := spec.Location
	if location == nil {
		location = time.Local
	}
	compiled := compiledSpec{
		query:    strings.ToLower(strings.TrimSpace(spec.Query)),
		tagIndex: tagIndex,
	}
	if tagIndex != nil {
		compiled.tagIDs = spec.TagIDs
	}
	if len(spec.Types) > 0 {
		compiled.types = make(map[journal.EntryType]struct{}, len(spec.Types))
		for _, entryType := range spec.Types {
			compiled.types[entryType] = struct{}{}
		}
	}
	if len(spec.Statuses) > 0 {
		compiled.statuses = make(map[string]struct{}, len(spec.Statuses))
		for _, status := range spec.Statuses {
			compiled.statuses[status] = struct{}{}
		}
	}
	if day, ok := parseDay(spec.DateRange.From, location); ok {
		compiled.from = &day
	}
	if day, ok := parseDay(spec.DateRange.To, location); ok {
		end := time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, int(999*time.Millisecond), location)
		compiled.to = &end
	}
	return compiled
}

func parseDay(value string, location *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	day, err := time.ParseInLocation(dateLayout, value, location)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

func (c compiledSpec) match(entry journal.Entry) bool {
	return c.matchText(entry) &&
		c.matchTags(entry) &&
		c.matchType(entry) &&
		c.matchStatus(entry) &&
		c.matchDate(entry)
}

func (c compiledSpec) matchText(entry journal.Entry) bool {
	if c.query == "" {
		return true
	}
	if containsFold(entry.Title, c.query) || containsFold(string(entry.EntryType), c.query) {
		return true
	}
	if entry.Content != nil && containsFold(*entry.Content, c.query) {
		return true
	}
	if entry.Status != nil && containsFold(*entry.Status, c.query) {
		return true
	}
	for _, tag := range c.tagIndex[entry.ID] {
		if containsFold(tag.Name, c.query) {
			return true
		}
	}
	return false
}

func (c compiledSpec) matchTags(entry journal.Entry) bool {
	if len(c.tagIDs) == 0 {
		return true
	}
	assigned := c.tagIndex[entry.ID]
	for _, wanted := range c.tagIDs {
		found := false
		for _, tag := range assigned {
			if tag.ID == wanted {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (c compiledSpec) matchType(entry journal.Entry) bool {
	if c.types == nil {
		return true
	}
	_, ok := c.types[entry.EntryType]
	return ok
}

func (c compiledSpec) matchStatus(entry journal.Entry) bool {
	if c.statuses == nil {
		return true
	}
	if entry.Status == nil {
		return false
	}
	_, ok := c.statuses[*entry.Status]
	return ok
}

func (c compiledSpec) matchDate(entry journal.Entry) bool {
	if c.from != nil && entry.CreatedAt.Before(*c.from) {
		return false
	}
	if c.to != nil && entry.CreatedAt.After(*c.to) {
		return false
	}
	return true
}

func containsFold(haystack, loweredNeedle string) bool {
	return strings.Contains(strings.ToLower(haystack), loweredNeedle)
}
