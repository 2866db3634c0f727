package journal

import (
	"context"
	"fmt"
)

// UserJournal binds the service to a single user and speaks in raw string ids.
type UserJournal struct {
	service *Service
	userID  UserID
}

// UserID returns the bound user.
func (j *UserJournal) UserID() UserID {
	return j.userID
}

func (j *UserJournal) ListEntries(ctx context.Context, offset, limit int) ([]Entry, error) {
	return j.service.ListEntries(ctx, j.userID, ListQuery{Offset: offset, Limit: limit})
}

func (j *UserJournal) CreateEntry(ctx context.Context, draft EntryDraft) (Entry, error) {
	return j.service.CreateEntry(ctx, j.userID, draft)
}

func (j *UserJournal) UpdateEntry(ctx context.Context, entryID string, patch EntryPatch) (Entry, error) {
	id, err := j.entryID(opUpdateEntry, entryID)
	if err != nil {
		return Entry{}, err
	}
	return j.service.UpdateEntry(ctx, j.userID, id, patch)
}

func (j *UserJournal) DeleteEntry(ctx context.Context, entryID string) error {
	id, err := j.entryID(opDeleteEntry, entryID)
	if err != nil {
		return err
	}
	return j.service.DeleteEntry(ctx, j.userID, id)
}

func (j *UserJournal) ListTags(ctx context.Context) ([]Tag, error) {
	return j.service.ListTags(ctx, j.userID)
}

func (j *UserJournal) CreateTag(ctx context.Context, name, color string) (Tag, error) {
	return j.service.CreateTag(ctx, j.userID, name, color)
}

func (j *UserJournal) UpdateTag(ctx context.Context, tagID string, patch TagPatch) (Tag, error) {
	return j.service.UpdateTag(ctx, j.userID, tagID, patch)
}

func (j *UserJournal) DeleteTag(ctx context.Context, tagID string) error {
	return j.service.DeleteTag(ctx, j.userID, tagID)
}

func (j *UserJournal) TagsForEntries(ctx context.Context, entryIDs []string) (TagIndex, error) {
	return j.service.TagsForEntries(ctx, j.userID, entryIDs)
}

func (j *UserJournal) LinkTag(ctx context.Context, entryID, tagID string) error {
	id, err := j.entryID(opLinkTag, entryID)
	if err != nil {
		return err
	}
	return j.service.LinkTag(ctx, j.userID, id, tagID)
}

func (j *UserJournal) UnlinkTag(ctx context.Context, entryID, tagID string) error {
	id, err := j.entryID(opUnlinkTag, entryID)
	if err != nil {
		return err
	}
	return j.service.UnlinkTag(ctx, j.userID, id, tagID)
}

func (j *UserJournal) ListReferences(ctx context.Context) ([]EntryReference, error) {
	return j.service.ListReferences(ctx, j.userID)
}

func (j *UserJournal) CreateReference(ctx context.Context, fromID, toID string) (EntryReference, error) {
	from, err := j.entryID(opCreateReference, fromID)
	if err != nil {
		return EntryReference{}, err
	}
	to, err := j.entryID(opCreateReference, toID)
	if err != nil {
		return EntryReference{}, err
	}
	return j.service.CreateReference(ctx, j.userID, from, to)
}

func (j *UserJournal) DeleteReference(ctx context.Context, referenceID string) error {
	return j.service.DeleteReference(ctx, j.userID, referenceID)
}

func (j *UserJournal) entryID(operation, raw string) (EntryID, error) {
	id, err := NewEntryID(raw)
	if err != nil {
		return "", j.service.fail(operation, reasonInvalidInput, fmt.Errorf("entry id: %w", err))
	}
	return id, nil
}
