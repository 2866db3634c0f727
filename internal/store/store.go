package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/anchor/backend/internal/journal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrMissingBackend indicates that the store was constructed without a backend.
	ErrMissingBackend = errors.New("store: backend is required")
	// ErrNotLoaded indicates that a mutation targets an entity absent from the store.
	ErrNotLoaded = errors.New("store: entity not loaded")
)

// Backend is the remote persistence API the store confirms mutations against.
type Backend interface {
	ListEntries(ctx context.Context, offset, limit int) ([]journal.Entry, error)
	CreateEntry(ctx context.Context, draft journal.EntryDraft) (journal.Entry, error)
	UpdateEntry(ctx context.Context, entryID string, patch journal.EntryPatch) (journal.Entry, error)
	DeleteEntry(ctx context.Context, entryID string) error

	ListTags(ctx context.Context) ([]journal.Tag, error)
	CreateTag(ctx context.Context, name, color string) (journal.Tag, error)
	UpdateTag(ctx context.Context, tagID string, patch journal.TagPatch) (journal.Tag, error)
	DeleteTag(ctx context.Context, tagID string) error
	TagsForEntries(ctx context.Context, entryIDs []string) (journal.TagIndex, error)
	LinkTag(ctx context.Context, entryID, tagID string) error
	UnlinkTag(ctx context.Context, entryID, tagID string) error

	ListReferences(ctx context.Context) ([]journal.EntryReference, error)
	CreateReference(ctx context.Context, fromID, toID string) (journal.EntryReference, error)
	DeleteReference(ctx context.Context, referenceID string) error
}

// Snapshot is an immutable copy of the store contents.
type Snapshot struct {
	Entries    []journal.Entry
	Tags       []journal.Tag
	TagIndex   journal.TagIndex
	References []journal.EntryReference
	HasMore    bool
}

// Config describes the dependencies of a Store.
type Config struct {
	Backend  Backend
	PageSize int
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Store holds the authoritative in-memory copies of a user's journal.
type Store struct {
	backend  Backend
	pageSize int
	logger   *zap.Logger
	clock    func() time.Time

	mu          sync.Mutex
	entries     []journal.Entry
	tags        []journal.Tag
	tagIndex    journal.TagIndex
	references  []journal.EntryReference
	hasMore     bool
	loadingMore bool
}

// New constructs an empty Store.
func New(cfg Config) (*Store, error) {
	if cfg.Backend == nil {
		return nil, ErrMissingBackend
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = journal.DefaultPageSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		backend:  cfg.Backend,
		pageSize: pageSize,
		logger:   logger,
		clock:    clock,
		tagIndex: journal.TagIndex{},
	}, nil
}

// LoadInitial replaces the store contents with the first page of entries,
// every tag and every reference.
func (s *Store) LoadInitial(ctx context.Context) error {
	var (
		entries    []journal.Entry
		tags       []journal.Tag
		references []journal.EntryReference
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		page, err := s.backend.ListEntries(groupCtx, 0, s.pageSize)
		entries = page
		return err
	})
	group.Go(func() error {
		loaded, err := s.backend.ListTags(groupCtx)
		tags = loaded
		return err
	})
	group.Go(func() error {
		loaded, err := s.backend.ListReferences(groupCtx)
		references = loaded
		return err
	})
	if err := group.Wait(); err != nil {
		s.logger.Error("store initial load failed", zap.Error(err))
		return err
	}

	index, err := s.backend.TagsForEntries(ctx, entryIDs(entries))
	if err != nil {
		s.logger.Error("store tag index load failed", zap.Error(err))
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = dedupeEntries(nil, entries)
	s.tags = append([]journal.Tag(nil), tags...)
	s.references = append([]journal.EntryReference(nil), references...)
	s.tagIndex = index.Clone()
	s.hasMore = len(entries) >= s.pageSize
	return nil
}

// LoadMore appends the next page of entries. It is a no-op when the end of
// data was reached or another page is already loading.
func (s *Store) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.loadingMore || !s.hasMore {
		s.mu.Unlock()
		return nil
	}
	s.loadingMore = true
	offset := 0
	for _, entry := range s.entries {
		if !entry.IsTemporary() {
			offset++
		}
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.loadingMore = false
		s.mu.Unlock()
	}()

	page, err := s.backend.ListEntries(ctx, offset, s.pageSize)
	if err != nil {
		s.logger.Error("store page load failed", zap.Int("offset", offset), zap.Error(err))
		return err
	}
	index, err := s.backend.TagsForEntries(ctx, entryIDs(page))
	if err != nil {
		s.logger.Error("store tag index load failed", zap.Error(err))
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = dedupeEntries(s.entries, page)
	for entryID, tags := range index {
		s.tagIndex[entryID] = append([]journal.Tag(nil), tags...)
	}
	s.hasMore = len(page) >= s.pageSize
	return nil
}

// LoadAll performs the initial load and then fetches pages until the end
// of data or until maxPages pages were read. A non-positive maxPages means
// no limit.
func (s *Store) LoadAll(ctx context.Context, maxPages int) error {
	if err := s.LoadInitial(ctx); err != nil {
		return err
	}
	for pages := 1; s.HasMore(); pages++ {
		if maxPages > 0 && pages >= maxPages {
			s.logger.Warn("store page limit reached", zap.Int("pages", pages))
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.LoadMore(ctx); err != nil {
			return err
		}
	}
	return nil
}

// HasMore reports whether another page may exist.
func (s *Store) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// Snapshot copies the current contents.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Entries:    append([]journal.Entry(nil), s.entries...),
		Tags:       append([]journal.Tag(nil), s.tags...),
		TagIndex:   s.tagIndex.Clone(),
		References: append([]journal.EntryReference(nil), s.references...),
		HasMore:    s.hasMore,
	}
}

func entryIDs(entries []journal.Entry) []string {
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ID)
	}
	return ids
}

func dedupeEntries(existing, incoming []journal.Entry) []journal.Entry {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]journal.Entry, 0, len(existing)+len(incoming))
	for _, batch := range [][]journal.Entry{existing, incoming} {
		for _, entry := range batch {
			if _, dup := seen[entry.ID]; dup {
				continue
			}
			seen[entry.ID] = struct{}{}
			merged = append(merged, entry)
		}
	}
	return merged
}
