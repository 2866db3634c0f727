package journal

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultPageSize is the fixed page size used when listing entries.
const DefaultPageSize = 50

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a dotted "<operation>.<reason>" code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the dotted error code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew             = "journal.service.new"
	opCreateEntry            = "journal.create_entry"
	opListEntries            = "journal.list_entries"
	opGetEntry               = "journal.get_entry"
	opUpdateEntry            = "journal.update_entry"
	opDeleteEntry            = "journal.delete_entry"
	opListTags               = "journal.list_tags"
	opCreateTag              = "journal.create_tag"
	opUpdateTag              = "journal.update_tag"
	opDeleteTag              = "journal.delete_tag"
	opTagsForEntries         = "journal.tags_for_entries"
	opLinkTag                = "journal.link_tag"
	opUnlinkTag              = "journal.unlink_tag"
	opTopTags                = "journal.top_tags"
	opListReferences         = "journal.list_references"
	opReferencesFor          = "journal.references_for"
	opCreateReference        = "journal.create_reference"
	opDeleteReference        = "journal.delete_reference"
	opDeleteReferenceBetween = "journal.delete_reference_between"

	reasonMissingDatabase = "missing_database"
	reasonInvalidUser     = "invalid_user_id"
	reasonInvalidInput    = "invalid_input"
	reasonNotFound        = "not_found"
	reasonQueryFailed     = "query_failed"
	reasonInsertFailed    = "insert_failed"
	reasonUpdateFailed    = "update_failed"
	reasonDeleteFailed    = "delete_failed"
	reasonIDFailed        = "id_generation_failed"
	reasonSelfReference   = "self_reference"

	fieldUserID  = "user_id"
	fieldEntryID = "entry_id"
	fieldTagID   = "tag_id"

	queryUserID      = "user_id = ?"
	queryUserRecord  = "user_id = ? AND id = ?"
	queryUserEntry   = "user_id = ? AND entry_id = ?"
	queryUserLink    = "user_id = ? AND entry_id = ? AND tag_id = ?"
	queryUserPair    = "user_id = ? AND from_entry_id = ? AND to_entry_id = ?"
	queryUserTouches = "user_id = ? AND (from_entry_id = ? OR to_entry_id = ?)"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies of the journal service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service persists entries, tags, entry-tag links and references per user.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// ForUser binds the service to a single user.
func (s *Service) ForUser(userID UserID) *UserJournal {
	return &UserJournal{service: s, userID: userID}
}

func (s *Service) guard(operation string, userID UserID) error {
	if s == nil || s.db == nil {
		s.logError(operation, reasonMissingDatabase, errMissingDatabase)
		return newServiceError(operation, reasonMissingDatabase, errMissingDatabase)
	}
	if userID == "" {
		s.logError(operation, reasonInvalidUser, ErrInvalidUserID)
		return newServiceError(operation, reasonInvalidUser, ErrInvalidUserID)
	}
	return nil
}

func (s *Service) fail(operation, reason string, err error, fields ...zap.Field) error {
	s.logError(operation, reason, err, fields...)
	return newServiceError(operation, reason, err)
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) newID(operation string) (string, error) {
	if s.idProvider == nil {
		return "", s.fail(operation, reasonIDFailed, errMissingIDProvider)
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		return "", s.fail(operation, reasonIDFailed, err)
	}
	return id, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("journal service error", attrs...)
}
