package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kevinmichaelchen/star-lists/internal/config"
	"github.com/kevinmichaelchen/star-lists/internal/github"
	"github.com/kevinmichaelchen/star-lists/internal/pipeline"
	"github.com/kevinmichaelchen/star-lists/internal/surrealdb"
)

func main() {
	root := &cobra.Command{
		Use:          "star-lists",
		Short:        "Organize GitHub stars into lists with AI classification",
		SilenceUsage: true,
	}

	root.AddCommand(schemaCmd(), syncCmd(), classifyCmd(), listsCmd(), statsCmd(), exportCmd(), importCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// withDB connects to SurrealDB for the duration of fn.
func withDB(ctx context.Context, cfg *config.Config, fn func(db *surrealdb.Client) error) error {
	db, err := surrealdb.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(ctx) }()
	return fn(db)
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Initialize/update SurrealDB schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			return withDB(ctx, config.Load(), func(db *surrealdb.Client) error {
				if err := db.InitSchema(ctx); err != nil {
					return err
				}
				fmt.Println("Schema initialized")
				return nil
			})
		},
	}
}

func syncCmd() *cobra.Command {
	var refresh bool
	var cacheFile string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch starred repos from GitHub and store them in SurrealDB",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg := config.Load()
			if cfg.GitHubToken == "" {
				return fmt.Errorf("GITHUB_TOKEN is not set")
			}
			gh, err := github.NewClient(ctx, cfg.GitHubToken)
			if err != nil {
				return err
			}

			fmt.Println("Connecting to SurrealDB...")
			return withDB(ctx, cfg, func(db *surrealdb.Client) error {
				if err := db.InitSchema(ctx); err != nil {
					return err
				}
				_, err := pipeline.Sync(ctx,
					pipeline.GitHubFetcher{Client: gh, ListID: cfg.StarListID},
					db,
					pipeline.Options{ListID: cfg.StarListID, Refresh: refresh, CacheFile: cacheFile})
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Re-fetch from GitHub (ignores cache)")
	cmd.Flags().StringVar(&cacheFile, "cache", pipeline.DefaultCacheFile, "Local cache of fetched repos")
	return cmd
}

func listsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lists",
		Short: "Show lists and how many repos each holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			return withDB(ctx, config.Load(), func(db *surrealdb.Client) error {
				counts, err := db.GetCategoryBreakdown(ctx)
				if err != nil {
					return err
				}
				if len(counts) == 0 {
					fmt.Println("No lists yet. Run `star-lists classify` to create some.")
					return nil
				}
				rows := make([][]string, 0, len(counts))
				for i, c := range counts {
					rows = append(rows, []string{strconv.Itoa(i + 1), c.Category, c.Color, strconv.Itoa(c.Count)})
				}
				fmt.Println(renderTable([]string{"#", "List", "Color", "Repos"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show repo counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			return withDB(ctx, config.Load(), func(db *surrealdb.Client) error {
				stats, err := db.GetStats(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Repos:         %d\n", stats.Total)
				fmt.Printf("Categorized:   %d\n", stats.Categorized)
				fmt.Printf("Uncategorized: %d\n", stats.Uncategorized)
				fmt.Printf("Lists:         %d\n", stats.Lists)
				fmt.Printf("Memberships:   %d\n", stats.Memberships)
				return nil
			})
		},
	}
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write lists and memberships as JSON (stdout by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			var w io.Writer = cmd.OutOrStdout()
			if len(args) == 1 {
				f, err := os.Create(args[0])
				if err != nil {
					return fmt.Errorf("creating %s: %w", args[0], err)
				}
				defer func() { _ = f.Close() }()
				w = f
			}
			return withDB(ctx, config.Load(), func(db *surrealdb.Client) error {
				b, err := db.Export(ctx, w)
				if err != nil {
					return err
				}
				if len(args) == 1 {
					fmt.Printf("Exported %d lists and %d memberships to %s\n", len(b.Lists), len(b.Memberships), args[0])
				}
				return nil
			})
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Merge lists and memberships from a JSON export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer func() { _ = f.Close() }()

			return withDB(ctx, config.Load(), func(db *surrealdb.Client) error {
				if err := db.InitSchema(ctx); err != nil {
					return err
				}
				res, err := db.Import(ctx, f)
				if err != nil {
					return err
				}
				fmt.Printf("Created %d lists, merged %d, filed %d memberships\n",
					res.ListsCreated, res.ListsMerged, res.Memberships)
				return nil
			})
		},
	}
}
