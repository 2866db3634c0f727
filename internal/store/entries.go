package store

import (
	"context"
	"fmt"

	"github.com/MarcoPoloResearchLab/anchor/backend/internal/journal"
)

// CreateEntry inserts a temporary entry at the front and swaps in the
// persisted entry once the backend confirms it.
func (s *Store) CreateEntry(ctx context.Context, draft journal.EntryDraft) (journal.Entry, error) {
	now := s.clock().UTC()
	tentative := journal.Entry{
		ID:         journal.NewTemporaryID(),
		Title:      draft.Title,
		Content:    draft.Content,
		EntryType:  draft.EntryType,
		Status:     draft.Status,
		CustomDate: draft.CustomDate,
		ImageURL:   draft.ImageURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	return Optimistic[journal.Entry]{
		Name: "create_entry",
		Apply: func() {
			s.entries = append([]journal.Entry{tentative}, s.entries...)
		},
		Remote: func(ctx context.Context) (journal.Entry, error) {
			return s.backend.CreateEntry(ctx, draft)
		},
		Commit: func(created journal.Entry) {
			if index := s.entryIndex(tentative.ID); index >= 0 {
				s.entries[index] = created
				return
			}
			s.entries = append([]journal.Entry{created}, s.entries...)
		},
		Rollback: func() {
			s.removeEntry(tentative.ID)
		},
	}.Run(ctx, s)
}

// UpdateEntry patches a loaded entry locally and restores it on failure.
func (s *Store) UpdateEntry(ctx context.Context, entryID string, patch journal.EntryPatch) (journal.Entry, error) {
	var previous journal.Entry
	var found bool

	command := Optimistic[journal.Entry]{
		Name: "update_entry",
		Apply: func() {
			index := s.entryIndex(entryID)
			if index < 0 {
				return
			}
			found = true
			previous = s.entries[index]
			s.entries[index] = patch.ApplyTo(previous)
			if patch.Archived != nil && *patch.Archived {
				s.removeEntry(entryID)
			}
		},
		Remote: func(ctx context.Context) (journal.Entry, error) {
			if !found {
				return journal.Entry{}, fmt.Errorf("%w: entry %s", ErrNotLoaded, entryID)
			}
			return s.backend.UpdateEntry(ctx, entryID, patch)
		},
		Commit: func(updated journal.Entry) {
			if updated.Archived {
				return
			}
			if index := s.entryIndex(entryID); index >= 0 {
				s.entries[index] = updated
			}
		},
		Rollback: func() {
			if !found {
				return
			}
			if index := s.entryIndex(entryID); index >= 0 {
				s.entries[index] = previous
			} else {
				s.entries = append([]journal.Entry{previous}, s.entries...)
			}
		},
	}
	return command.Run(ctx, s)
}

// ArchiveEntry removes the entry from view and re-inserts it at the front on failure.
func (s *Store) ArchiveEntry(ctx context.Context, entryID string) error {
	archived := true
	_, err := s.UpdateEntry(ctx, entryID, journal.EntryPatch{Archived: &archived})
	return err
}

// DeleteEntry removes the entry with its tags and references. On failure the
// removed pieces are put back; changes confirmed meanwhile are kept.
func (s *Store) DeleteEntry(ctx context.Context, entryID string) error {
	type removedReference struct {
		reference journal.EntryReference
		at        int
	}
	var (
		previous     journal.Entry
		previousTags []journal.Tag
		hadTags      bool
		removedRefs  []removedReference
		found        bool
	)

	_, err := Optimistic[Done]{
		Name: "delete_entry",
		Apply: func() {
			index := s.entryIndex(entryID)
			if index < 0 {
				return
			}
			found = true
			previous = s.entries[index]
			s.removeEntry(entryID)
			previousTags, hadTags = s.tagIndex[entryID]
			delete(s.tagIndex, entryID)
			kept := s.references[:0:0]
			for at, reference := range s.references {
				if reference.FromEntryID == entryID || reference.ToEntryID == entryID {
					removedRefs = append(removedRefs, removedReference{reference: reference, at: at})
					continue
				}
				kept = append(kept, reference)
			}
			s.references = kept
		},
		Remote: noResult(func(ctx context.Context) error {
			if !found {
				return fmt.Errorf("%w: entry %s", ErrNotLoaded, entryID)
			}
			return s.backend.DeleteEntry(ctx, entryID)
		}),
		Rollback: func() {
			if !found {
				return
			}
			if s.entryIndex(entryID) < 0 {
				s.entries = append([]journal.Entry{previous}, s.entries...)
			}
			if hadTags {
				current := s.tagIndex[entryID]
				for at, tag := range previousTags {
					if tagPosition(current, tag.ID) < 0 {
						current = insertAt(current, tag, at)
					}
				}
				s.tagIndex[entryID] = current
			}
			for _, removed := range removedRefs {
				if s.referenceIndex(removed.reference.ID) < 0 {
					s.references = insertAt(s.references, removed.reference, removed.at)
				}
			}
		},
	}.Run(ctx, s)
	return err
}

func (s *Store) entryIndex(entryID string) int {
	for index, entry := range s.entries {
		if entry.ID == entryID {
			return index
		}
	}
	return -1
}

func (s *Store) removeEntry(entryID string) {
	index := s.entryIndex(entryID)
	if index < 0 {
		return
	}
	s.entries = append(s.entries[:index:index], s.entries[index+1:]...)
}
