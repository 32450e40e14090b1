// Package main provides the methodology corpus ingestion CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm/logger"

	"github.com/thebtf/coachctx/internal/config"
	dbgorm "github.com/thebtf/coachctx/internal/db/gorm"
	"github.com/thebtf/coachctx/internal/embedding"
	"github.com/thebtf/coachctx/internal/ingest"
	"github.com/thebtf/coachctx/internal/vector/pgvector"
	"github.com/thebtf/coachctx/pkg/models"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:           "coachctx-ingest",
		Short:         "Load training methodology excerpts into the vector store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(
		newValidateCmd(),
		newLoadCmd(),
		newCountCmd(),
	)
	return cmd
}

// sourceFlags describe a markdown book. YAML manifests carry their own.
type sourceFlags struct {
	book        string
	methodology string
	level       string
	maxChars    int
}

func (s *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.book, "book", "", "book title for a markdown source")
	cmd.Flags().StringVar(&s.methodology, "methodology", "", "methodology name for a markdown source")
	cmd.Flags().StringVar(&s.level, "level", "", "athlete level for a markdown source")
	cmd.Flags().IntVar(&s.maxChars, "max-chars", ingest.DefaultMaxSectionChars, "largest instruction split from a markdown source")
}

func (s *sourceFlags) read(path string) ([]models.BookInstruction, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return ingest.SplitMarkdown(string(data), ingest.Defaults{
			BookTitle:   s.book,
			Methodology: s.methodology,
			Level:       s.level,
		}, s.maxChars)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ingest.LoadManifest(f)
	}
}

func newValidateCmd() *cobra.Command {
	var src sourceFlags
	cmd := &cobra.Command{
		Use:   "validate SOURCE",
		Short: "Check a manifest or markdown book without embedding or storing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instructions, err := src.read(args[0])
			if err != nil {
				return err
			}
			books := map[string]int{}
			for _, in := range instructions {
				books[in.BookTitle]++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d instructions from %d books\n", len(instructions), len(books))
			return nil
		},
	}
	src.register(cmd)
	return cmd
}

func openStore(cfg *config.Config) (*dbgorm.Store, *pgvector.Client, error) {
	store, err := dbgorm.NewStore(dbgorm.Config{
		DSN:                 cfg.DatabaseDSN,
		MaxConns:            cfg.MaxConns,
		LogLevel:            logger.Silent,
		EmbeddingDimensions: cfg.EmbeddingDimensions,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	client, err := pgvector.NewClient(store.GetDB())
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("vector client: %w", err)
	}
	return store, client, nil
}

func newLoadCmd() *cobra.Command {
	var (
		batchSize int
		src       sourceFlags
	)
	cmd := &cobra.Command{
		Use:   "load SOURCE",
		Short: "Embed and upsert every instruction in a manifest or markdown book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instructions, err := src.read(args[0])
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if batchSize <= 0 {
				batchSize = cfg.EmbeddingBatchSize
			}

			store, client, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := ingest.Run(cmd.Context(), embedding.NewClientFromConfig(cfg), client, instructions, batchSize)
			fmt.Fprintf(cmd.OutOrStdout(), "total=%d embedded=%d stored=%d failed=%d\n",
				report.Total, report.Embedded, report.Stored, report.Failed)
			return err
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "texts per embedding request (default from settings)")
	src.register(cmd)
	return cmd
}

func newCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of stored instructions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			store, client, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := client.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}
