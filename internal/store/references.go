package store

import (
	"context"
	"fmt"

	"github.com/MarcoPoloResearchLab/anchor/backend/internal/journal"
)

// AddReference links two entries. An existing local reference is returned
// without a remote call; self references are rejected.
func (s *Store) AddReference(ctx context.Context, fromID, toID string) (journal.EntryReference, error) {
	if fromID == toID {
		return journal.EntryReference{}, fmt.Errorf("%w: %s", journal.ErrSelfReference, fromID)
	}

	s.mu.Lock()
	for _, reference := range s.references {
		if reference.FromEntryID == fromID && reference.ToEntryID == toID {
			s.mu.Unlock()
			return reference, nil
		}
	}
	s.mu.Unlock()

	tentative := journal.EntryReference{
		ID:          journal.NewTemporaryID(),
		FromEntryID: fromID,
		ToEntryID:   toID,
		CreatedAt:   s.clock().UTC(),
	}
	return Optimistic[journal.EntryReference]{
		Name: "add_reference",
		Apply: func() {
			s.references = append(s.references, tentative)
		},
		Remote: func(ctx context.Context) (journal.EntryReference, error) {
			return s.backend.CreateReference(ctx, fromID, toID)
		},
		Commit: func(created journal.EntryReference) {
			s.removeReference(tentative.ID)
			if s.referenceIndex(created.ID) < 0 {
				s.references = append(s.references, created)
			}
		},
		Rollback: func() {
			s.removeReference(tentative.ID)
		},
	}.Run(ctx, s)
}

// RemoveReference deletes a reference and restores it in place on failure.
func (s *Store) RemoveReference(ctx context.Context, referenceID string) error {
	var (
		removed journal.EntryReference
		at      = -1
	)
	_, err := Optimistic[Done]{
		Name: "remove_reference",
		Apply: func() {
			at = s.referenceIndex(referenceID)
			if at < 0 {
				return
			}
			removed = s.references[at]
			s.removeReference(referenceID)
		},
		Remote: noResult(func(ctx context.Context) error {
			if at < 0 {
				return fmt.Errorf("%w: reference %s", ErrNotLoaded, referenceID)
			}
			return s.backend.DeleteReference(ctx, referenceID)
		}),
		Rollback: func() {
			if at >= 0 && s.referenceIndex(referenceID) < 0 {
				s.references = insertAt(s.references, removed, at)
			}
		},
	}.Run(ctx, s)
	return err
}

func (s *Store) referenceIndex(referenceID string) int {
	for index, reference := range s.references {
		if reference.ID == referenceID {
			return index
		}
	}
	return -1
}

func (s *Store) removeReference(referenceID string) {
	index := s.referenceIndex(referenceID)
	if index < 0 {
		return
	}
	s.references = append(s.references[:index:index], s.references[index+1:]...)
}
