package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v2"

	"movievault/internal/config"
	"movievault/internal/errs"
	"movievault/internal/logging"
	"movievault/internal/models"
	"movievault/internal/normalize"
	"movievault/internal/service/search"
)

// newCLIApp creates the CLI application with all commands. Running it
// without a command starts the bot.
func newCLIApp(out io.Writer) *cli.App {
	app := &cli.App{
		Name:    "movievault",
		Usage:   "Chat bot that catalogs uploaded movies and answers title searches",
		Version: Version,
		Writer:  out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Path to a YAML config file"},
		},
		Action: runServe,
		Commands: []*cli.Command{
			serveCmd(),
			normalizeCmd(),
			searchCmd(),
			lookupCmd(),
			purgeCmd(),
		},
	}
	// Return errors to the caller instead of exiting, so tests can inspect them.
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func normalizeCmd() *cli.Command {
	return &cli.Command{
		Name:      "normalize",
		Usage:     "Show how uploaded filenames are turned into display titles",
		ArgsUsage: "<filename>...",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errs.New(errs.CodeInvalidQuery, "at least one filename is required"))
			}
			type row struct {
				Input    string `json:"input"`
				Title    string `json:"title"`
				Year     string `json:"year,omitempty"`
				Language string `json:"language,omitempty"`
				Display  string `json:"display"`
			}
			rows := make([]row, 0, c.NArg())
			for _, raw := range c.Args().Slice() {
				r := normalize.Filename(raw)
				rows = append(rows, row{Input: raw, Title: r.Title, Year: r.Year, Language: r.Language, Display: r.Display()})
			}
			return outputJSON(c, rows)
		},
	}
}

func searchCmd() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Run a catalog search the way the bot does",
		ArgsUsage: "<query>",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return outputError(err)
			}
			db, catalog, err := openCatalog(c.Context, cfg)
			if err != nil {
				return outputError(err)
			}
			defer db.Close()

			engine := search.NewEngine(catalog, search.Options{
				DirectLimit:     cfg.Catalog.DirectLimit,
				SuggestionLimit: cfg.Catalog.SuggestionLimit,
				SuggestionChars: cfg.Catalog.SuggestionChars,
			})
			res, err := engine.Search(c.Context, strings.Join(c.Args().Slice(), " "))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, struct {
				Kind        string                 `json:"kind"`
				Query       string                 `json:"query"`
				Direct      []*models.CatalogEntry `json:"direct,omitempty"`
				Suggestions []*models.CatalogEntry `json:"suggestions,omitempty"`
			}{res.Kind.String(), res.Query, res.Direct, res.Suggestions})
		},
	}
}

func lookupCmd() *cli.Command {
	return &cli.Command{
		Name:      "lookup",
		Usage:     "Print one catalog entry",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errs.New(errs.CodeInvalidQuery, "exactly one entry id is required"))
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return outputError(err)
			}
			db, catalog, err := openCatalog(c.Context, cfg)
			if err != nil {
				return outputError(err)
			}
			defer db.Close()

			engine := search.NewEngine(catalog, search.Options{})
			entry, err := engine.Lookup(c.Context, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, entry)
		},
	}
}

func purgeCmd() *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete catalog entries older than a given age",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Required: true, Usage: "Minimum entry age, e.g. 720h or 30d"},
		},
		Action: func(c *cli.Context) error {
			age, err := parseAge(c.String("older-than"))
			if err != nil {
				return outputError(errs.Wrap(errs.CodeInvalidQuery, err, "older-than"))
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return outputError(err)
			}
			db, catalog, err := openCatalog(c.Context, cfg)
			if err != nil {
				return outputError(err)
			}
			defer db.Close()

			cutoff := time.Now().UTC().Add(-age)
			n, err := catalog.DeleteCreatedBefore(c.Context, cutoff)
			if err != nil {
				return outputError(err)
			}
			logging.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("catalog purged")
			return outputJSON(c, map[string]any{"deleted": n, "cutoff": cutoff})
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Caller: cfg.Log.Caller,
	})
	return cfg, nil
}

// parseAge accepts Go durations plus a whole-day suffix ("30d").
func parseAge(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid day count %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("age must be positive, got %s", s)
	}
	return d, nil
}

func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var coded *errs.Error
	if errors.As(err, &coded) && coded.Message != "" {
		return cli.Exit(fmt.Sprintf("[%s] %s", coded.Code, coded.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
