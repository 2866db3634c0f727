package journal

import (
	"errors"
	"strings"
	"testing"
)

func TestNewEntryIDRejectsTemporaryAndEmpty(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{name: "persisted", input: "0190-abc", valid: true},
		{name: "trimmed", input: "  abc  ", valid: true},
		{name: "empty", input: "   ", valid: false},
		{name: "temporary", input: "temp-123", valid: false},
		{name: "too long", input: strings.Repeat("x", maxIdentifierLength+1), valid: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewEntryID(tc.input)
			if tc.valid && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.valid && !errors.Is(err, ErrInvalidEntryID) {
				t.Fatalf("expected ErrInvalidEntryID, got %v", err)
			}
		})
	}
}

func TestParseEntryTypeCatalogue(t *testing.T) {
	parsed, err := ParseEntryType(" Milestone ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed != EntryTypeMilestone {
		t.Fatalf("expected milestone, got %s", parsed)
	}
	if _, err := ParseEntryType("poem"); !errors.Is(err, ErrInvalidEntryType) {
		t.Fatalf("expected ErrInvalidEntryType, got %v", err)
	}

	configs := EntryTypeConfigs()
	if len(configs) != 6 {
		t.Fatalf("expected six entry types, got %d", len(configs))
	}
	if configs[0].Type != EntryTypeLesson || configs[5].Type != EntryTypeBookmark {
		t.Fatalf("unexpected catalogue order %+v", configs)
	}
	if EntryTypeIdea.Config().Label != "Idea" {
		t.Fatalf("unexpected idea label %q", EntryTypeIdea.Config().Label)
	}
}

func TestTemporaryIDs(t *testing.T) {
	id := NewTemporaryID()
	if !IsTemporaryID(id) {
		t.Fatalf("expected %s to be temporary", id)
	}
	if (Entry{ID: id}).IsTemporary() == false {
		t.Fatalf("expected entry to report temporary")
	}
	provider := NewUUIDProvider()
	persisted, err := provider.NewID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if IsTemporaryID(persisted) {
		t.Fatalf("persisted id must not carry the temporary prefix")
	}
}

func TestTagColorForCyclesPalette(t *testing.T) {
	palette := TagColors()
	if TagColorFor(0) != palette[0] {
		t.Fatalf("expected first color")
	}
	if TagColorFor(len(palette)) != palette[0] {
		t.Fatalf("expected palette to wrap")
	}
	if TagColorFor(-3) != palette[0] {
		t.Fatalf("expected negative count to clamp")
	}
}

func TestEntryPatchApplyTo(t *testing.T) {
	content := "body"
	entry := Entry{ID: "e1", Title: "old", Content: &content, EntryType: EntryTypeNote}
	title := "new"
	archived := true
	patched := EntryPatch{Title: &title, Archived: &archived}.ApplyTo(entry)
	if patched.Title != "new" || !patched.Archived {
		t.Fatalf("patch not applied: %+v", patched)
	}
	if patched.Content == nil || *patched.Content != "body" {
		t.Fatalf("untouched field changed")
	}
	if entry.Title != "old" {
		t.Fatalf("original entry mutated")
	}

	invalid := EntryType("poem")
	if err := (EntryPatch{EntryType: &invalid}).Validate(); !errors.Is(err, ErrInvalidEntryType) {
		t.Fatalf("expected ErrInvalidEntryType, got %v", err)
	}
}

func TestTagIndexCloneIsDeep(t *testing.T) {
	index := TagIndex{"e1": {{ID: "t1"}}}
	cloned := index.Clone()
	cloned["e1"][0].ID = "changed"
	if index["e1"][0].ID != "t1" {
		t.Fatalf("clone shares backing array")
	}
}
