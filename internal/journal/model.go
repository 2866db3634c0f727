package journal

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("journal: invalid user id")
	// ErrInvalidEntryID indicates that an entry identifier is empty, temporary, or exceeds storage bounds.
	ErrInvalidEntryID = errors.New("journal: invalid entry id")
	// ErrInvalidEntryType indicates that an entry type is not part of the closed catalogue.
	ErrInvalidEntryType = errors.New("journal: invalid entry type")
	// ErrInvalidTagName indicates that a tag name is empty after normalization.
	ErrInvalidTagName = errors.New("journal: invalid tag name")
	// ErrSelfReference indicates that an entry reference points back to its own entry.
	ErrSelfReference = errors.New("journal: self reference")
	// ErrNotFound indicates that the requested record does not exist for the user.
	ErrNotFound = errors.New("journal: not found")
)

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// EntryID represents a validated, persisted entry identifier.
type EntryID string

// NewEntryID validates raw input and returns an EntryID. Temporary ids are rejected.
func NewEntryID(rawInput string) (EntryID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidEntryID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidEntryID, maxIdentifierLength)
	}
	if IsTemporaryID(trimmed) {
		return "", fmt.Errorf("%w: temporary id %s", ErrInvalidEntryID, trimmed)
	}
	return EntryID(trimmed), nil
}

// String returns the underlying string identifier.
func (id EntryID) String() string {
	return string(id)
}

// EntryType enumerates the closed set of journal entry kinds.
type EntryType string

const (
	EntryTypeLesson    EntryType = "lesson"
	EntryTypeIdea      EntryType = "idea"
	EntryTypeMilestone EntryType = "milestone"
	EntryTypeNote      EntryType = "note"
	EntryTypeResource  EntryType = "resource"
	EntryTypeBookmark  EntryType = "bookmark"
)

// ParseEntryType validates raw input against the entry type catalogue.
func ParseEntryType(rawInput string) (EntryType, error) {
	candidate := EntryType(strings.ToLower(strings.TrimSpace(rawInput)))
	if _, ok := entryTypeConfigs[candidate]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryType, rawInput)
	}
	return candidate, nil
}

// Valid reports whether the type is part of the catalogue.
func (t EntryType) Valid() bool {
	_, ok := entryTypeConfigs[t]
	return ok
}

// Config returns the display metadata for the type.
func (t EntryType) Config() EntryTypeConfig {
	return entryTypeConfigs[t]
}

// EntryTypeConfig carries the display metadata of an entry type.
type EntryTypeConfig struct {
	Type            EntryType `json:"type"`
	Label           string    `json:"label"`
	Description     string    `json:"description"`
	Icon            string    `json:"icon"`
	Color           string    `json:"color"`
	SuggestedFields []string  `json:"suggested_fields"`
}

var entryTypeOrder = []EntryType{
	EntryTypeLesson,
	EntryTypeIdea,
	EntryTypeMilestone,
	EntryTypeNote,
	EntryTypeResource,
	EntryTypeBookmark,
}

var entryTypeConfigs = map[EntryType]EntryTypeConfig{
	EntryTypeLesson: {
		Type:            EntryTypeLesson,
		Label:           "Lesson Learned",
		Description:     "Something learned through experience",
		Icon:            "GraduationCap",
		Color:           "entry-lesson",
		SuggestedFields: []string{"title", "content", "status"},
	},
	EntryTypeIdea: {
		Type:            EntryTypeIdea,
		Label:           "Idea",
		Description:     "A raw idea or concept",
		Icon:            "Lightbulb",
		Color:           "entry-idea",
		SuggestedFields: []string{"title", "content", "status"},
	},
	EntryTypeMilestone: {
		Type:            EntryTypeMilestone,
		Label:           "Milestone",
		Description:     "A finished project or reached goal",
		Icon:            "Trophy",
		Color:           "entry-milestone",
		SuggestedFields: []string{"title", "content", "custom_date"},
	},
	EntryTypeNote: {
		Type:            EntryTypeNote,
		Label:           "Note",
		Description:     "A short observation or thought",
		Icon:            "StickyNote",
		Color:           "entry-note",
		SuggestedFields: []string{"title", "content"},
	},
	EntryTypeResource: {
		Type:            EntryTypeResource,
		Label:           "Resource",
		Description:     "An article, video or tool",
		Icon:            "Link",
		Color:           "entry-resource",
		SuggestedFields: []string{"title", "content", "status"},
	},
	EntryTypeBookmark: {
		Type:            EntryTypeBookmark,
		Label:           "Bookmark",
		Description:     "Something to pick up later",
		Icon:            "Bookmark",
		Color:           "entry-bookmark",
		SuggestedFields: []string{"title", "content", "status"},
	},
}

// EntryTypeConfigs returns the catalogue in canonical order.
func EntryTypeConfigs() []EntryTypeConfig {
	configs := make([]EntryTypeConfig, 0, len(entryTypeOrder))
	for _, entryType := range entryTypeOrder {
		configs = append(configs, entryTypeConfigs[entryType])
	}
	return configs
}

// Entry models a persisted journal record.
type Entry struct {
	ID         string     `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	UserID     string     `gorm:"column:user_id;size:190;not null;index:idx_entries_user_created,priority:1" json:"-"`
	Title      string     `gorm:"column:title;type:text;not null;default:''" json:"title"`
	Content    *string    `gorm:"column:content;type:text" json:"content"`
	EntryType  EntryType  `gorm:"column:entry_type;size:32;not null" json:"entry_type"`
	Status     *string    `gorm:"column:status;size:190" json:"status"`
	CustomDate *time.Time `gorm:"column:custom_date" json:"custom_date"`
	ImageURL   *string    `gorm:"column:image_url;size:512" json:"image_url"`
	CreatedAt  time.Time  `gorm:"column:created_at;not null;index:idx_entries_user_created,priority:3" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;not null" json:"updated_at"`
	Archived   bool       `gorm:"column:archived;not null;default:false;index:idx_entries_user_created,priority:2" json:"archived"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "entries"
}

// IsTemporary reports whether the entry is still pending creation.
func (e Entry) IsTemporary() bool {
	return IsTemporaryID(e.ID)
}

// Tag models a user-defined label.
type Tag struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	UserID    string    `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_tags_user_name,priority:1" json:"-"`
	Name      string    `gorm:"column:name;size:190;not null;uniqueIndex:idx_tags_user_name,priority:2" json:"name"`
	Color     string    `gorm:"column:color;size:16;not null" json:"color"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Tag) TableName() string {
	return "tags"
}

// EntryTag joins entries and tags; the composite key forbids duplicates.
type EntryTag struct {
	EntryID   string    `gorm:"column:entry_id;primaryKey;size:190;not null" json:"entry_id"`
	TagID     string    `gorm:"column:tag_id;primaryKey;size:190;not null;index" json:"tag_id"`
	UserID    string    `gorm:"column:user_id;size:190;not null;index" json:"-"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (EntryTag) TableName() string {
	return "entry_tags"
}

// EntryReference is a directed, user-authored link between two entries.
type EntryReference struct {
	ID          string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	UserID      string    `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_references_pair,priority:1" json:"-"`
	FromEntryID string    `gorm:"column:from_entry_id;size:190;not null;uniqueIndex:idx_references_pair,priority:2" json:"from_entry_id"`
	ToEntryID   string    `gorm:"column:to_entry_id;size:190;not null;uniqueIndex:idx_references_pair,priority:3;index" json:"to_entry_id"`
	CreatedAt   time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (EntryReference) TableName() string {
	return "entry_references"
}

// TagIndex maps an entry id to its ordered tags.
type TagIndex map[string][]Tag

// Clone returns a deep copy of the index.
func (index TagIndex) Clone() TagIndex {
	cloned := make(TagIndex, len(index))
	for entryID, tags := range index {
		cloned[entryID] = append([]Tag(nil), tags...)
	}
	return cloned
}

// EntryDraft describes a new entry before it is persisted.
type EntryDraft struct {
	Title      string     `json:"title"`
	Content    *string    `json:"content"`
	EntryType  EntryType  `json:"entry_type"`
	Status     *string    `json:"status"`
	CustomDate *time.Time `json:"custom_date"`
	ImageURL   *string    `json:"image_url"`
}

// Validate checks the draft against the entry type catalogue.
func (d EntryDraft) Validate() error {
	if !d.EntryType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidEntryType, d.EntryType)
	}
	return nil
}

// EntryPatch describes a partial entry update; nil fields are left untouched.
type EntryPatch struct {
	Title      *string    `json:"title,omitempty"`
	Content    *string    `json:"content,omitempty"`
	EntryType  *EntryType `json:"entry_type,omitempty"`
	Status     *string    `json:"status,omitempty"`
	CustomDate *time.Time `json:"custom_date,omitempty"`
	ImageURL   *string    `json:"image_url,omitempty"`
	Archived   *bool      `json:"archived,omitempty"`
}

// ApplyTo returns a copy of the entry with the patch applied.
func (p EntryPatch) ApplyTo(entry Entry) Entry {
	updated := entry
	if p.Title != nil {
		updated.Title = *p.Title
	}
	if p.Content != nil {
		updated.Content = p.Content
	}
	if p.EntryType != nil {
		updated.EntryType = *p.EntryType
	}
	if p.Status != nil {
		updated.Status = p.Status
	}
	if p.CustomDate != nil {
		updated.CustomDate = p.CustomDate
	}
	if p.ImageURL != nil {
		updated.ImageURL = p.ImageURL
	}
	if p.Archived != nil {
		updated.Archived = *p.Archived
	}
	return updated
}

// Validate checks the patch fields that carry constraints.
func (p EntryPatch) Validate() error {
	if p.EntryType != nil && !p.EntryType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidEntryType, *p.EntryType)
	}
	return nil
}

// TagPatch describes a partial tag update.
type TagPatch struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

// ApplyTo returns a copy of the tag with the patch applied.
func (p TagPatch) ApplyTo(tag Tag) Tag {
	updated := tag
	if p.Name != nil {
		updated.Name = NormalizeTagName(*p.Name)
	}
	if p.Color != nil {
		updated.Color = *p.Color
	}
	return updated
}

// NormalizeTagName trims and lower-cases a tag name.
func NormalizeTagName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// TagUsage pairs a tag with the number of entries carrying it.
type TagUsage struct {
	Tag   Tag `json:"tag"`
	Count int `json:"count"`
}

// EntryReferences splits an entry's references by direction.
type EntryReferences struct {
	Outgoing []EntryReference `json:"outgoing"`
	Incoming []EntryReference `json:"incoming"`
}
