package journal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

var (
	// ErrInvalidSeed indicates that a seed file is malformed or references unknown handles.
	ErrInvalidSeed = errors.New("journal: invalid seed")
)

// Seed is a TOML document describing entries, tags and references.
// Entries are addressed by local handles so references can be declared
// before any id exists.
type Seed struct {
	Tags       []SeedTag       `toml:"tags"`
	Entries    []SeedEntry     `toml:"entries"`
	References []SeedReference `toml:"references"`
}

// SeedTag declares a tag; an empty color picks from the palette.
type SeedTag struct {
	Name  string `toml:"name"`
	Color string `toml:"color"`
}

// SeedEntry declares an entry.
type SeedEntry struct {
	Handle     string     `toml:"handle"`
	Title      string     `toml:"title"`
	Content    string     `toml:"content"`
	Type       string     `toml:"type"`
	Status     string     `toml:"status"`
	CustomDate *time.Time `toml:"custom_date"`
	Tags       []string   `toml:"tags"`
	Archived   bool       `toml:"archived"`
}

// SeedReference declares a directed reference between two entry handles.
type SeedReference struct {
	From string `toml:"from"`
	To   string `toml:"to"`
}

// SeedResult summarizes an import.
type SeedResult struct {
	Entries    int
	Tags       int
	Links      int
	References int
}

// LoadSeed decodes a seed file.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed %s: %w", path, err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes seed bytes and validates handles and types.
func ParseSeed(data []byte) (Seed, error) {
	var seed Seed
	if err := toml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if err := seed.validate(); err != nil {
		return Seed{}, err
	}
	return seed, nil
}

func (seed Seed) validate() error {
	handles := make(map[string]struct{}, len(seed.Entries))
	for index, entry := range seed.Entries {
		if entry.Handle == "" {
			return fmt.Errorf("%w: entry %d has no handle", ErrInvalidSeed, index)
		}
		if _, dup := handles[entry.Handle]; dup {
			return fmt.Errorf("%w: duplicate handle %q", ErrInvalidSeed, entry.Handle)
		}
		handles[entry.Handle] = struct{}{}
		if _, err := ParseEntryType(entry.Type); err != nil {
			return fmt.Errorf("%w: entry %q: %v", ErrInvalidSeed, entry.Handle, err)
		}
	}
	for _, tag := range seed.Tags {
		if NormalizeTagName(tag.Name) == "" {
			return fmt.Errorf("%w: empty tag name", ErrInvalidSeed)
		}
	}
	for _, reference := range seed.References {
		if _, ok := handles[reference.From]; !ok {
			return fmt.Errorf("%w: unknown reference source %q", ErrInvalidSeed, reference.From)
		}
		if _, ok := handles[reference.To]; !ok {
			return fmt.Errorf("%w: unknown reference target %q", ErrInvalidSeed, reference.To)
		}
		if reference.From == reference.To {
			return fmt.Errorf("%w: self reference %q", ErrInvalidSeed, reference.From)
		}
	}
	return nil
}

// ImportSeed writes the seed for one user. Tags named by entries but not
// declared are created on the fly.
func (s *Service) ImportSeed(ctx context.Context, userID UserID, seed Seed) (SeedResult, error) {
	var result SeedResult
	tagsByName := map[string]Tag{}

	ensureTag := func(name, color string) (Tag, error) {
		normalized := NormalizeTagName(name)
		if tag, ok := tagsByName[normalized]; ok {
			return tag, nil
		}
		tag, err := s.CreateTag(ctx, userID, normalized, color)
		if err != nil {
			return Tag{}, err
		}
		tagsByName[normalized] = tag
		result.Tags++
		return tag, nil
	}

	for _, declared := range seed.Tags {
		if _, err := ensureTag(declared.Name, declared.Color); err != nil {
			return result, err
		}
	}

	idsByHandle := make(map[string]EntryID, len(seed.Entries))
	for _, declared := range seed.Entries {
		entryType, err := ParseEntryType(declared.Type)
		if err != nil {
			return result, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
		}
		draft := EntryDraft{
			Title:      declared.Title,
			EntryType:  entryType,
			CustomDate: declared.CustomDate,
		}
		if declared.Content != "" {
			content := declared.Content
			draft.Content = &content
		}
		if declared.Status != "" {
			status := declared.Status
			draft.Status = &status
		}
		entry, err := s.CreateEntry(ctx, userID, draft)
		if err != nil {
			return result, err
		}
		entryID := EntryID(entry.ID)
		idsByHandle[declared.Handle] = entryID
		result.Entries++

		for _, name := range declared.Tags {
			tag, err := ensureTag(name, "")
			if err != nil {
				return result, err
			}
			if err := s.LinkTag(ctx, userID, entryID, tag.ID); err != nil {
				return result, err
			}
			result.Links++
		}
		if declared.Archived {
			if _, err := s.ArchiveEntry(ctx, userID, entryID); err != nil {
				return result, err
			}
		}
	}

	for _, declared := range seed.References {
		if _, err := s.CreateReference(ctx, userID, idsByHandle[declared.From], idsByHandle[declared.To]); err != nil {
			return result, err
		}
		result.References++
	}
	return result, nil
}
