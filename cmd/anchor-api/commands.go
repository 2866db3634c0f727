package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/anchor/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/anchor/backend/internal/config"
	"github.com/MarcoPoloResearchLab/anchor/backend/internal/database"
	"github.com/MarcoPoloResearchLab/anchor/backend/internal/graph"
	"github.com/MarcoPoloResearchLab/anchor/backend/internal/journal"
	"github.com/MarcoPoloResearchLab/anchor/backend/internal/layout"
	"github.com/MarcoPoloResearchLab/anchor/backend/internal/logging"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const summaryNodeLimit = 20

var errMissingUser = errors.New("--user is required")

var entryTypeColors = map[journal.EntryType]color.Attribute{
	journal.EntryTypeLesson:    color.FgYellow,
	journal.EntryTypeIdea:      color.FgMagenta,
	journal.EntryTypeMilestone: color.FgGreen,
	journal.EntryTypeNote:      color.FgBlue,
	journal.EntryTypeResource:  color.FgCyan,
	journal.EntryTypeBookmark:  color.FgRed,
}

type layoutOptions struct {
	user     string
	width    float64
	height   float64
	maxNodes int
	seed     int64
}

func newLayoutCommand() *cobra.Command {
	options := layoutOptions{}
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Settle a user's graph and print the resulting positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.LoadOffline(viper.GetViper())
			if err != nil {
				return err
			}
			return withJournal(appConfig, func(service *journal.Service, logger *zap.Logger) error {
				return runLayout(cmd.Context(), service, logger, appConfig, options, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&options.user, "user", "", "Journal owner id")
	cmd.Flags().Float64Var(&options.width, "width", 800, "Canvas width")
	cmd.Flags().Float64Var(&options.height, "height", 600, "Canvas height")
	cmd.Flags().IntVar(&options.maxNodes, "max-nodes", 0, "Maximum nodes (defaults to graph.max_nodes)")
	cmd.Flags().Int64Var(&options.seed, "seed", 1, "Layout seed")
	return cmd
}

type importOptions struct {
	user string
	file string
}

func newImportCommand() *cobra.Command {
	options := importOptions{}
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a TOML seed into a user's journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.LoadOffline(viper.GetViper())
			if err != nil {
				return err
			}
			return withJournal(appConfig, func(service *journal.Service, logger *zap.Logger) error {
				return runImport(cmd.Context(), service, logger, options, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&options.user, "user", "", "Journal owner id")
	cmd.Flags().StringVar(&options.file, "file", "", "Path to the TOML seed")
	return cmd
}

type tokenOptions struct {
	user  string
	email string
	ttl   time.Duration
}

func newTokenCommand() *cobra.Command {
	options := tokenOptions{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for scripted API access",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(viper.GetViper(), options, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&options.user, "user", "", "Session user id")
	cmd.Flags().StringVar(&options.email, "email", "", "Session user email")
	cmd.Flags().DurationVar(&options.ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}

// withJournal opens the database for a one-shot command.
func withJournal(appConfig config.AppConfig, run func(*journal.Service, *zap.Logger) error) error {
	logger, err := logging.NewConsoleLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	service, err := newJournalService(db, logger)
	if err != nil {
		return err
	}
	return run(service, logger)
}

func newJournalService(db *gorm.DB, logger *zap.Logger) (*journal.Service, error) {
	return journal.NewService(journal.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: journal.NewUUIDProvider(),
		Logger:     logger,
	})
}

func runLayout(ctx context.Context, service *journal.Service, logger *zap.Logger, appConfig config.AppConfig, options layoutOptions, out io.Writer) error {
	entityStore, err := loadStore(ctx, service, logger, options.user)
	if err != nil {
		return err
	}
	snapshot := entityStore.Snapshot()

	maxNodes := options.maxNodes
	if maxNodes == 0 {
		maxNodes = appConfig.Graph.MaxNodes
	}
	built, err := graph.Build(snapshot.Entries, snapshot.TagIndex, snapshot.References, maxNodes)
	if err != nil {
		return err
	}
	frame, err := layout.Settle(built, options.width, options.height, layout.WithSeed(options.seed))
	if err != nil {
		return err
	}
	printLayoutSummary(out, built.Stats(), frame)
	return nil
}

func printLayoutSummary(out io.Writer, stats graph.Stats, frame layout.Frame) {
	heading := color.New(color.Bold, color.FgCyan)
	muted := color.New(color.Faint)

	heading.Fprintln(out, "Graph")
	fmt.Fprintf(out, "  nodes %d  edges %d  (references %d, tags %d)  isolated %d\n",
		stats.Nodes, stats.Edges, stats.ReferenceEdges, stats.TagEdges, stats.Isolated)
	fmt.Fprintf(out, "  settled after %d ticks\n", frame.Tick)
	if len(frame.Nodes) == 0 {
		muted.Fprintln(out, "  (no entries)")
		return
	}

	nodes := append([]layout.NodePosition(nil), frame.Nodes...)
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].ConnectionCount > nodes[j].ConnectionCount
	})

	heading.Fprintln(out, "Most connected")
	for index, node := range nodes {
		if index == summaryNodeLimit {
			muted.Fprintf(out, "  ... %d more\n", len(nodes)-summaryNodeLimit)
			break
		}
		typeColor := color.New(entryTypeColors[node.EntryType])
		fmt.Fprintf(out, "  %s %-40s %3d links  (%7.1f, %7.1f)\n",
			typeColor.Sprintf("%-10s", node.EntryType),
			truncate(node.Title, 40),
			node.ConnectionCount,
			node.X, node.Y)
	}
}

func runImport(ctx context.Context, service *journal.Service, logger *zap.Logger, options importOptions, out io.Writer) error {
	userID, err := parseUser(options.user)
	if err != nil {
		return err
	}
	if strings.TrimSpace(options.file) == "" {
		return errors.New("--file is required")
	}
	seed, err := journal.LoadSeed(options.file)
	if err != nil {
		return err
	}
	result, err := service.ImportSeed(ctx, userID, seed)
	if err != nil {
		return err
	}
	logger.Info("seed imported", zap.String("user_id", userID.String()), zap.String("file", options.file))

	success := color.New(color.FgGreen, color.Bold)
	success.Fprintf(out, "Imported %d entries, %d tags, %d tag links, %d references\n",
		result.Entries, result.Tags, result.Links, result.References)
	return nil
}

func runToken(configViper *viper.Viper, options tokenOptions, out, errOut io.Writer) error {
	if strings.TrimSpace(options.user) == "" {
		return errMissingUser
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(configViper.GetString("tauth.signing_secret")),
		Issuer:        configViper.GetString("tauth.issuer"),
		TokenTTL:      options.ttl,
	})
	if err != nil {
		return err
	}
	token, expiresAt, err := issuer.Issue(options.user, options.email)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	color.New(color.Faint).Fprintf(errOut, "expires %s\n", expiresAt.Format(time.RFC3339))
	return nil
}

func parseUser(raw string) (journal.UserID, error) {
	if strings.TrimSpace(raw) == "" {
		return "", errMissingUser
	}
	return journal.NewUserID(raw)
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
