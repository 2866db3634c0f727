package journal

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListReferences returns every reference of the user, oldest first.
func (s *Service) ListReferences(ctx context.Context, userID UserID) ([]EntryReference, error) {
	if err := s.guard(opListReferences, userID); err != nil {
		return nil, err
	}
	var references []EntryReference
	if err := s.db.WithContext(ctx).
		Where(queryUserID, userID.String()).
		Order("created_at ASC").
		Find(&references).Error; err != nil {
		return nil, s.fail(opListReferences, reasonQueryFailed, err, zap.String(fieldUserID, userID.String()))
	}
	return references, nil
}

// ReferencesFor splits the references touching an entry into outgoing and incoming.
func (s *Service) ReferencesFor(ctx context.Context, userID UserID, entryID EntryID) (EntryReferences, error) {
	if err := s.guard(opReferencesFor, userID); err != nil {
		return EntryReferences{}, err
	}
	var references []EntryReference
	if err := s.db.WithContext(ctx).
		Where(queryUserTouches, userID.String(), entryID.String(), entryID.String()).
		Order("created_at ASC").
		Find(&references).Error; err != nil {
		return EntryReferences{}, s.fail(opReferencesFor, reasonQueryFailed, err,
			zap.String(fieldUserID, userID.String()),
			zap.String(fieldEntryID, entryID.String()))
	}

	result := EntryReferences{Outgoing: []EntryReference{}, Incoming: []EntryReference{}}
	for _, reference := range references {
		if reference.FromEntryID == entryID.String() {
			result.Outgoing = append(result.Outgoing, reference)
			continue
		}
		result.Incoming = append(result.Incoming, reference)
	}
	return result, nil
}

// CreateReference links two entries. Creating an existing pair returns the stored reference.
func (s *Service) CreateReference(ctx context.Context, userID UserID, fromID, toID EntryID) (EntryReference, error) {
	if err := s.guard(opCreateReference, userID); err != nil {
		return EntryReference{}, err
	}
	if fromID == toID {
		return EntryReference{}, s.fail(opCreateReference, reasonSelfReference,
			fmt.Errorf("%w: %s", ErrSelfReference, fromID),
			zap.String(fieldEntryID, fromID.String()))
	}

	var stored EntryReference
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadEntry(tx, opCreateReference, userID, fromID); err != nil {
			return err
		}
		if _, err := s.loadEntry(tx, opCreateReference, userID, toID); err != nil {
			return err
		}

		referenceID, err := s.newID(opCreateReference)
		if err != nil {
			return err
		}
		candidate := EntryReference{
			ID:          referenceID,
			UserID:      userID.String(),
			FromEntryID: fromID.String(),
			ToEntryID:   toID.String(),
			CreatedAt:   s.now(),
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&candidate).Error; err != nil {
			return s.fail(opCreateReference, reasonInsertFailed, err,
				zap.String(fieldUserID, userID.String()),
				zap.String(fieldEntryID, fromID.String()))
		}

		err = tx.Where(queryUserPair, userID.String(), fromID.String(), toID.String()).Take(&stored).Error
		if err != nil {
			return s.fail(opCreateReference, reasonQueryFailed, err,
				zap.String(fieldUserID, userID.String()),
				zap.String(fieldEntryID, fromID.String()))
		}
		return nil
	})
	if txErr != nil {
		return EntryReference{}, txErr
	}
	return stored, nil
}

// DeleteReference removes a reference by id.
func (s *Service) DeleteReference(ctx context.Context, userID UserID, referenceID string) error {
	if err := s.guard(opDeleteReference, userID); err != nil {
		return err
	}
	result := s.db.WithContext(ctx).
		Where(queryUserRecord, userID.String(), referenceID).
		Delete(&EntryReference{})
	if result.Error != nil {
		return s.fail(opDeleteReference, reasonDeleteFailed, result.Error, zap.String(fieldUserID, userID.String()))
	}
	if result.RowsAffected == 0 {
		return newServiceError(opDeleteReference, reasonNotFound, fmt.Errorf("%w: reference %s", ErrNotFound, referenceID))
	}
	return nil
}

// DeleteReferenceBetween removes the reference from one entry to another, if any.
func (s *Service) DeleteReferenceBetween(ctx context.Context, userID UserID, fromID, toID EntryID) error {
	if err := s.guard(opDeleteReferenceBetween, userID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).
		Where(queryUserPair, userID.String(), fromID.String(), toID.String()).
		Delete(&EntryReference{}).Error; err != nil {
		return s.fail(opDeleteReferenceBetween, reasonDeleteFailed, err,
			zap.String(fieldUserID, userID.String()),
			zap.String(fieldEntryID, fromID.String()))
	}
	return nil
}

// IsNotFound reports whether err signals a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
