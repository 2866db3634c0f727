package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/MarcoPoloResearchLab/anchor/backend/internal/journal"
)

// CreateTag adds a tag under its normalized name with the next palette color.
// A loaded tag with the same name is returned without a remote call.
func (s *Store) CreateTag(ctx context.Context, name string) (journal.Tag, error) {
	normalized := journal.NormalizeTagName(name)
	if normalized == "" {
		return journal.Tag{}, fmt.Errorf("%w: empty", journal.ErrInvalidTagName)
	}

	s.mu.Lock()
	for _, tag := range s.tags {
		if tag.Name == normalized {
			s.mu.Unlock()
			return tag, nil
		}
	}
	color := journal.TagColorFor(len(s.tags))
	s.mu.Unlock()

	tentative := journal.Tag{
		ID:        journal.NewTemporaryID(),
		Name:      normalized,
		Color:     color,
		CreatedAt: s.clock().UTC(),
	}
	return Optimistic[journal.Tag]{
		Name: "create_tag",
		Apply: func() {
			s.tags = append(s.tags, tentative)
			s.sortTags()
		},
		Remote: func(ctx context.Context) (journal.Tag, error) {
			return s.backend.CreateTag(ctx, normalized, color)
		},
		Commit: func(created journal.Tag) {
			s.removeTag(tentative.ID)
			if s.tagIndexOf(created.ID) < 0 {
				s.tags = append(s.tags, created)
				s.sortTags()
			}
		},
		Rollback: func() {
			s.removeTag(tentative.ID)
		},
	}.Run(ctx, s)
}

// UpdateTag renames or recolors a tag everywhere it appears.
func (s *Store) UpdateTag(ctx context.Context, tagID string, patch journal.TagPatch) (journal.Tag, error) {
	var (
		previous journal.Tag
		found    bool
	)
	return Optimistic[journal.Tag]{
		Name: "update_tag",
		Apply: func() {
			position := s.tagIndexOf(tagID)
			if position < 0 {
				return
			}
			found = true
			previous = s.tags[position]
			s.replaceTag(patch.ApplyTo(previous))
		},
		Remote: func(ctx context.Context) (journal.Tag, error) {
			if !found {
				return journal.Tag{}, fmt.Errorf("%w: tag %s", ErrNotLoaded, tagID)
			}
			return s.backend.UpdateTag(ctx, tagID, patch)
		},
		Commit: func(updated journal.Tag) {
			s.replaceTag(updated)
		},
		Rollback: func() {
			if found {
				s.replaceTag(previous)
			}
		},
	}.Run(ctx, s)
}

// DeleteTag removes a tag and strips it from every entry.
func (s *Store) DeleteTag(ctx context.Context, tagID string) error {
	var (
		removed  journal.Tag
		stripped map[string]int
		found    bool
	)
	_, err := Optimistic[Done]{
		Name: "delete_tag",
		Apply: func() {
			position := s.tagIndexOf(tagID)
			if position < 0 {
				return
			}
			found = true
			removed = s.tags[position]
			s.removeTag(tagID)
			stripped = map[string]int{}
			for entryID, tags := range s.tagIndex {
				if at := tagPosition(tags, tagID); at >= 0 {
					stripped[entryID] = at
					s.tagIndex[entryID] = withoutTag(tags, tagID)
				}
			}
		},
		Remote: noResult(func(ctx context.Context) error {
			if !found {
				return fmt.Errorf("%w: tag %s", ErrNotLoaded, tagID)
			}
			return s.backend.DeleteTag(ctx, tagID)
		}),
		Rollback: func() {
			if !found {
				return
			}
			if s.tagIndexOf(tagID) < 0 {
				s.tags = append(s.tags, removed)
				s.sortTags()
			}
			for entryID, at := range stripped {
				if tagPosition(s.tagIndex[entryID], tagID) < 0 {
					s.tagIndex[entryID] = insertAt(s.tagIndex[entryID], removed, at)
				}
			}
		},
	}.Run(ctx, s)
	return err
}

// AddTagToEntry links a tag to an entry. Adding a present tag is a no-op.
func (s *Store) AddTagToEntry(ctx context.Context, entryID, tagID string) error {
	var (
		tag     journal.Tag
		found   bool
		present bool
	)
	_, err := Optimistic[Done]{
		Name: "add_tag_to_entry",
		Apply: func() {
			position := s.tagIndexOf(tagID)
			if position < 0 {
				return
			}
			found = true
			tag = s.tags[position]
			if tagPosition(s.tagIndex[entryID], tagID) >= 0 {
				present = true
				return
			}
			s.tagIndex[entryID] = append(append([]journal.Tag(nil), s.tagIndex[entryID]...), tag)
		},
		Remote: noResult(func(ctx context.Context) error {
			if !found {
				return fmt.Errorf("%w: tag %s", ErrNotLoaded, tagID)
			}
			if present {
				return nil
			}
			return s.backend.LinkTag(ctx, entryID, tagID)
		}),
		Rollback: func() {
			if !found || present {
				return
			}
			s.tagIndex[entryID] = withoutTag(s.tagIndex[entryID], tagID)
		},
	}.Run(ctx, s)
	return err
}

// RemoveTagFromEntry unlinks a tag from an entry and restores the link in
// place on failure.
func (s *Store) RemoveTagFromEntry(ctx context.Context, entryID, tagID string) error {
	var (
		removed journal.Tag
		at      = -1
	)
	_, err := Optimistic[Done]{
		Name: "remove_tag_from_entry",
		Apply: func() {
			tags := s.tagIndex[entryID]
			at = tagPosition(tags, tagID)
			if at < 0 {
				return
			}
			removed = tags[at]
			s.tagIndex[entryID] = withoutTag(tags, tagID)
		},
		Remote: noResult(func(ctx context.Context) error {
			return s.backend.UnlinkTag(ctx, entryID, tagID)
		}),
		Rollback: func() {
			if at < 0 || tagPosition(s.tagIndex[entryID], tagID) >= 0 {
				return
			}
			s.tagIndex[entryID] = insertAt(s.tagIndex[entryID], removed, at)
		},
	}.Run(ctx, s)
	return err
}

// CreateAndAddTag creates the tag when needed and links it to the entry.
func (s *Store) CreateAndAddTag(ctx context.Context, entryID, name string) (journal.Tag, error) {
	tag, err := s.CreateTag(ctx, name)
	if err != nil {
		return journal.Tag{}, err
	}
	if err := s.AddTagToEntry(ctx, entryID, tag.ID); err != nil {
		return journal.Tag{}, err
	}
	return tag, nil
}

func (s *Store) tagIndexOf(tagID string) int {
	for position, tag := range s.tags {
		if tag.ID == tagID {
			return position
		}
	}
	return -1
}

func (s *Store) removeTag(tagID string) {
	position := s.tagIndexOf(tagID)
	if position < 0 {
		return
	}
	s.tags = append(s.tags[:position:position], s.tags[position+1:]...)
}

func (s *Store) replaceTag(updated journal.Tag) {
	if position := s.tagIndexOf(updated.ID); position >= 0 {
		s.tags[position] = updated
	}
	for entryID, tags := range s.tagIndex {
		for index, tag := range tags {
			if tag.ID != updated.ID {
				continue
			}
			copied := append([]journal.Tag(nil), tags...)
			copied[index] = updated
			s.tagIndex[entryID] = copied
			break
		}
	}
	s.sortTags()
}

func (s *Store) sortTags() {
	sort.SliceStable(s.tags, func(i, j int) bool {
		return s.tags[i].Name < s.tags[j].Name
	})
}

func tagPosition(tags []journal.Tag, tagID string) int {
	for position, tag := range tags {
		if tag.ID == tagID {
			return position
		}
	}
	return -1
}

func withoutTag(tags []journal.Tag, tagID string) []journal.Tag {
	kept := make([]journal.Tag, 0, len(tags))
	for _, tag := range tags {
		if tag.ID != tagID {
			kept = append(kept, tag)
		}
	}
	return kept
}
