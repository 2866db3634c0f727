package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MarcoPoloResearchLab/anchor/backend/internal/config"
	"github.com/MarcoPoloResearchLab/anchor/backend/internal/journal"
	"github.com/MarcoPoloResearchLab/anchor/backend/internal/store"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type tagOptions struct {
	user   string
	entry  string
	remove bool
}

func newTagCommand() *cobra.Command {
	options := tagOptions{}
	cmd := &cobra.Command{
		Use:   "tag NAME...",
		Short: "Add or remove tags on an entry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.LoadOffline(viper.GetViper())
			if err != nil {
				return err
			}
			return withJournal(appConfig, func(service *journal.Service, logger *zap.Logger) error {
				return runTag(cmd.Context(), service, logger, options, args, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&options.user, "user", "", "Journal owner id")
	cmd.Flags().StringVar(&options.entry, "entry", "", "Entry id")
	cmd.Flags().BoolVar(&options.remove, "remove", false, "Remove the tags instead of adding them")
	return cmd
}

type linkOptions struct {
	user   string
	from   string
	to     string
	remove bool
}

func newLinkCommand() *cobra.Command {
	options := linkOptions{}
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Add or remove a reference between two entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.LoadOffline(viper.GetViper())
			if err != nil {
				return err
			}
			return withJournal(appConfig, func(service *journal.Service, logger *zap.Logger) error {
				return runLink(cmd.Context(), service, logger, options, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&options.user, "user", "", "Journal owner id")
	cmd.Flags().StringVar(&options.from, "from", "", "Referencing entry id")
	cmd.Flags().StringVar(&options.to, "to", "", "Referenced entry id")
	cmd.Flags().BoolVar(&options.remove, "remove", false, "Remove the reference instead of adding it")
	return cmd
}

// loadStore materializes a user's whole journal into an Entity Store.
func loadStore(ctx context.Context, service *journal.Service, logger *zap.Logger, rawUser string) (*store.Store, error) {
	userID, err := parseUser(rawUser)
	if err != nil {
		return nil, err
	}
	entityStore, err := store.New(store.Config{Backend: service.ForUser(userID), Logger: logger})
	if err != nil {
		return nil, err
	}
	if err := entityStore.LoadAll(ctx, 0); err != nil {
		return nil, err
	}
	return entityStore, nil
}

func runTag(ctx context.Context, service *journal.Service, logger *zap.Logger, options tagOptions, names []string, out io.Writer) error {
	entityStore, err := loadStore(ctx, service, logger, options.user)
	if err != nil {
		return err
	}
	entry, ok := findEntry(entityStore.Snapshot(), options.entry)
	if !ok {
		return fmt.Errorf("entry %q not found", options.entry)
	}

	for _, name := range names {
		if options.remove {
			tag, found := findTag(entityStore.Snapshot(), name)
			if !found {
				return fmt.Errorf("tag %q not found", name)
			}
			if err := entityStore.RemoveTagFromEntry(ctx, entry.ID, tag.ID); err != nil {
				return err
			}
			continue
		}
		if _, err := entityStore.CreateAndAddTag(ctx, entry.ID, name); err != nil {
			return err
		}
	}

	tags := entityStore.Snapshot().TagIndex[entry.ID]
	labels := make([]string, 0, len(tags))
	for _, tag := range tags {
		labels = append(labels, tag.Name)
	}
	color.New(color.Bold).Fprintf(out, "%s", entry.Title)
	fmt.Fprintf(out, ": %s\n", strings.Join(labels, ", "))
	return nil
}

func runLink(ctx context.Context, service *journal.Service, logger *zap.Logger, options linkOptions, out io.Writer) error {
	if strings.TrimSpace(options.from) == "" || strings.TrimSpace(options.to) == "" {
		return errors.New("--from and --to are required")
	}
	entityStore, err := loadStore(ctx, service, logger, options.user)
	if err != nil {
		return err
	}
	snapshot := entityStore.Snapshot()
	from, fromFound := findEntry(snapshot, options.from)
	to, toFound := findEntry(snapshot, options.to)
	if !fromFound || !toFound {
		return fmt.Errorf("entries %q and %q must both exist", options.from, options.to)
	}

	if options.remove {
		for _, reference := range snapshot.References {
			if reference.FromEntryID == from.ID && reference.ToEntryID == to.ID {
				if err := entityStore.RemoveReference(ctx, reference.ID); err != nil {
					return err
				}
				fmt.Fprintf(out, "Unlinked %s -> %s\n", truncate(from.Title, 40), truncate(to.Title, 40))
				return nil
			}
		}
		return fmt.Errorf("no reference from %q to %q", options.from, options.to)
	}

	if _, err := entityStore.AddReference(ctx, from.ID, to.ID); err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(out, "Linked %s -> %s\n", truncate(from.Title, 40), truncate(to.Title, 40))
	return nil
}

func findEntry(snapshot store.Snapshot, entryID string) (journal.Entry, bool) {
	for _, entry := range snapshot.Entries {
		if entry.ID == entryID {
			return entry, true
		}
	}
	return journal.Entry{}, false
}

func findTag(snapshot store.Snapshot, name string) (journal.Tag, bool) {
	normalized := journal.NormalizeTagName(name)
	for _, tag := range snapshot.Tags {
		if tag.Name == normalized {
			return tag, true
		}
	}
	return journal.Tag{}, false
}
