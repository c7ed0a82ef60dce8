package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/mergegate/internal/aireview"
	"github.com/mergegate/internal/config"
	"github.com/mergegate/internal/configstore"
	"github.com/mergegate/internal/conflicts"
	"github.com/mergegate/internal/database"
	"github.com/mergegate/internal/history"
	"github.com/mergegate/internal/hosting"
	"github.com/mergegate/internal/orchestrator"
	"github.com/mergegate/internal/quality"
	"github.com/mergegate/internal/ticket"
	"github.com/mergegate/pkg/models"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "mergegate",
		Usage: "PR quality gate - deterministic analysis, AI review, and auto-merge decisions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
				EnvVars: []string{"MERGEGATE_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "log level: debug, info, warn, error",
				EnvVars: []string{"MERGEGATE_LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			level, err := zerolog.ParseLevel(c.String("log-level"))
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", c.String("log-level"), err)
			}
			zerolog.SetGlobalLevel(level)
			return nil
		},
		Commands: []*cli.Command{
			listCommand(),
			reviewCommand(),
			conflictsCommand(),
			historyCommand(),
			thresholdsCommand(),
			configCommand(),
		},
	}
}

// deps bundles everything the commands wire together
type deps struct {
	cfg     *config.Config
	repo    *hosting.Client
	engine  *aireview.Engine
	configs configstore.Store
	history history.Store
	ticket  ticket.Client
	db      dbCloser
}

type dbCloser interface{ Close() error }

func buildDeps(c *cli.Context) (*deps, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	d := &deps{cfg: cfg}
	d.repo = hosting.NewClient(cfg.Hosting.BaseURL, cfg.Hosting.Owner, cfg.Hosting.Repo, cfg.Hosting.Token)

	d.engine, err = aireview.NewEngine(aireview.Config{
		Provider:    cfg.AI.Provider,
		APIKey:      cfg.AI.APIKey,
		BaseURL:     cfg.AI.BaseURL,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Ticket.BaseURL != "" {
		d.ticket = ticket.NewHTTPClient(cfg.Ticket.BaseURL, cfg.Ticket.User, cfg.Ticket.Token)
	}

	// Decision history and thresholds live in Postgres when a database is
	// configured, in memory otherwise
	if cfg.Database.URL != "" {
		db, err := database.New(cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		d.db = db

		cs := configstore.NewPostgresStore(db)
		if err := cs.EnsureSchema(c.Context); err != nil {
			return nil, err
		}
		hs := history.NewPostgresStore(db)
		if err := hs.EnsureSchema(c.Context); err != nil {
			return nil, err
		}
		d.configs = cs
		d.history = hs
	} else {
		log.Debug().Msg("No database configured, using in-memory stores")
		d.configs = configstore.NewMemoryStore()
		d.history = history.NewMemoryStore()
	}

	return d, nil
}

func (d *deps) close() {
	if d.db != nil {
		d.db.Close()
	}
}

func prArg(c *cli.Context) (int, error) {
	if c.NArg() < 1 {
		return 0, fmt.Errorf("pull request number is required")
	}
	n, err := strconv.Atoi(c.Args().First())
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid pull request number: %s", c.Args().First())
	}
	return n, nil
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list open pull requests",
		Action: func(c *cli.Context) error {
			d, err := buildDeps(c)
			if err != nil {
				return err
			}
			defer d.close()

			prs, err := d.repo.ListPullRequests(c.Context)
			if err != nil {
				return err
			}

			if len(prs) == 0 {
				fmt.Println("No open pull requests.")
				return nil
			}

			fmt.Printf("%-6s %-50s %-16s %-8s %-8s %s\n", "PR", "TITLE", "AUTHOR", "+LINES", "-LINES", "UPDATED")
			for _, pr := range prs {
				title := pr.Title
				if len(title) > 48 {
					title = title[:45] + "..."
				}
				fmt.Printf("#%-5d %-50s %-16s %-8d %-8d %s\n",
					pr.Number, title, pr.Author, pr.Additions, pr.Deletions,
					pr.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func reviewCommand() *cli.Command {
	return &cli.Command{
		Name:      "review",
		Usage:     "run the full gate pipeline for a pull request",
		ArgsUsage: "<pr-number>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "compute and record the decision without merging",
			},
			&cli.StringFlag{
				Name:  "ticket",
				Usage: "ticket key whose requirements feed the review prompt",
			},
			&cli.StringFlag{
				Name:  "output",
				Value: "pretty",
				Usage: "output format: pretty or json",
			},
		},
		Action: func(c *cli.Context) error {
			prNumber, err := prArg(c)
			if err != nil {
				return err
			}
			d, err := buildDeps(c)
			if err != nil {
				return err
			}
			defer d.close()

			var ticketInfo *models.TicketInfo
			if key := c.String("ticket"); key != "" {
				if d.ticket == nil {
					return fmt.Errorf("--ticket requires ticket.base_url in the config")
				}
				ticketInfo, err = d.ticket.Fetch(c.Context, key)
				if err != nil {
					log.Warn().Err(err).Str("key", key).Msg("Ticket lookup failed, continuing without it")
					ticketInfo = nil
				}
			}

			orch := orchestrator.New(d.repo, d.engine, d.configs, d.history, orchestrator.Options{
				DryRun:     c.Bool("dry-run"),
				Thresholds: quality.DefaultThresholds(),
			})

			ctx, cancel := context.WithTimeout(c.Context, 10*time.Minute)
			defer cancel()

			result, err := orch.Run(ctx, prNumber, ticketInfo)
			if err != nil && result == nil {
				return err
			}

			if c.String("output") == "json" {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			renderRunResult(result, err)
			return nil
		},
	}
}

func renderRunResult(result *orchestrator.RunResult, runErr error) {
	fmt.Println("\n" + strings.Repeat("=", 72))
	fmt.Println("MERGE GATE RESULT")
	fmt.Println(strings.Repeat("=", 72))

	if result.PR != nil {
		fmt.Printf("\nPR #%d  %s  (by %s)\n", result.PR.Number, result.PR.Title, result.PR.Author)
	}
	if result.Report != nil {
		fmt.Printf("\nQuality gate: %s  (bugs=%d vulns=%d smells=%d)\n",
			result.Report.GateStatus,
			int(result.Report.Bugs.Value),
			int(result.Report.Vulnerabilities.Value),
			int(result.Report.CodeSmells.Value))
		for _, v := range result.Report.Violations {
			fmt.Printf("  - %s\n", v)
		}
	}
	if result.Review != nil {
		fmt.Printf("\nAI review: %d/100 (%s)", result.Review.OverallScore, result.Review.Provider)
		if result.Review.Fallback {
			fmt.Print("  [fallback scores]")
		}
		fmt.Println()
		if result.Review.Summary != "" {
			fmt.Printf("  %s\n", result.Review.Summary)
		}
		for _, s := range result.Review.Suggestions {
			fmt.Printf("  [%s] %s: %s\n", strings.ToUpper(string(s.Severity)), s.File, s.Message)
		}
	}

	fmt.Printf("\nDecision: %s\n", result.Record.Decision)
	if result.Record.Details != "" {
		fmt.Printf("  %s\n", result.Record.Details)
	}
	if runErr != nil {
		fmt.Printf("\nRun error: %v\n", runErr)
	}
	fmt.Println(strings.Repeat("=", 72) + "\n")
}

func conflictsCommand() *cli.Command {
	return &cli.Command{
		Name:      "conflicts",
		Usage:     "inspect and resolve merge conflicts on a pull request",
		ArgsUsage: "<pr-number>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "analyze",
				Usage: "ask the AI to classify each conflicted file and recommend a strategy",
			},
			&cli.StringFlag{
				Name:  "resolve",
				Usage: "filename to resolve",
			},
			&cli.StringFlag{
				Name:  "strategy",
				Usage: "resolution strategy: ours, theirs, manual, ai_assisted",
			},
			&cli.StringFlag{
				Name:  "content-file",
				Usage: "path to the manually resolved content (strategy=manual)",
			},
		},
		Action: func(c *cli.Context) error {
			prNumber, err := prArg(c)
			if err != nil {
				return err
			}
			d, err := buildDeps(c)
			if err != nil {
				return err
			}
			defer d.close()

			resolver := conflicts.NewResolver(d.repo, d.engine)

			files, mergeability, err := resolver.CheckConflicts(c.Context, prNumber)
			if err != nil {
				return err
			}

			fmt.Printf("PR #%d mergeable_state=%s\n", prNumber, mergeability.State)
			if len(files) == 0 {
				fmt.Println("No conflicts detected.")
				return nil
			}

			fmt.Printf("\n%d conflicted file(s):\n", len(files))
			for _, f := range files {
				tag := ""
				if f.HasBusinessLogic {
					tag = "  [business logic]"
				}
				fmt.Printf("  %s%s\n", f.Filename, tag)
			}

			if c.Bool("analyze") {
				fmt.Println("\nAI analysis:")
				for _, f := range files {
					analysis, err := resolver.AnalyzeWithAI(c.Context, f)
					if err != nil {
						log.Warn().Err(err).Str("file", f.Filename).Msg("Conflict analysis failed")
						continue
					}
					fmt.Printf("\n  %s\n", f.Filename)
					fmt.Printf("    classification: %s\n", analysis.Classification)
					fmt.Printf("    recommended:    %s (confidence %.2f)\n", analysis.Strategy, analysis.Confidence)
					if analysis.Rationale != "" {
						fmt.Printf("    rationale:      %s\n", analysis.Rationale)
					}
				}
			}

			if name := c.String("resolve"); name != "" {
				strategy := models.ResolutionStrategy(c.String("strategy"))
				if strategy == "" {
					return fmt.Errorf("--strategy is required with --resolve")
				}

				var target *models.ConflictFile
				for i := range files {
					if files[i].Filename == name {
						target = &files[i]
						break
					}
				}
				if target == nil {
					return fmt.Errorf("file %q is not in the conflict set", name)
				}

				var content string
				if path := c.String("content-file"); path != "" {
					raw, err := os.ReadFile(path)
					if err != nil {
						return fmt.Errorf("could not read content file: %w", err)
					}
					content = string(raw)
				}

				resolution, err := resolver.Resolve(c.Context, *target, strategy, content)
				if err != nil {
					return err
				}
				fmt.Printf("\nResolved %s via %s (status=%s)\n", resolution.Filename, resolution.Strategy, resolution.Status)
			}

			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "show the decision history for a pull request",
		ArgsUsage: "<pr-number>",
		Action: func(c *cli.Context) error {
			prNumber, err := prArg(c)
			if err != nil {
				return err
			}
			d, err := buildDeps(c)
			if err != nil {
				return err
			}
			defer d.close()

			records, err := d.history.List(c.Context, prNumber)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Printf("No decisions recorded for PR #%d.\n", prNumber)
				return nil
			}

			fmt.Printf("%-20s %-15s %-8s %-8s %s\n", "WHEN", "DECISION", "AI", "ISSUES", "DETAILS")
			for _, r := range records {
				details := r.Details
				if len(details) > 60 {
					details = details[:57] + "..."
				}
				fmt.Printf("%-20s %-15s %-8d %-8d %s\n",
					r.CreatedAt.Format("2006-01-02 15:04:05"), r.Decision, r.AIScore, r.SonarIssues, details)
			}
			return nil
		},
	}
}

func thresholdsCommand() *cli.Command {
	return &cli.Command{
		Name:  "thresholds",
		Usage: "show or update the auto-merge threshold configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "print the current thresholds",
				Action: func(c *cli.Context) error {
					d, err := buildDeps(c)
					if err != nil {
						return err
					}
					defer d.close()

					cfg, err := configstore.LoadThresholds(c.Context, d.configs)
					if err != nil {
						return err
					}
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(cfg)
				},
			},
			{
				Name:  "set",
				Usage: "update thresholds",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "enabled", Usage: "enable auto-merge"},
					&cli.StringFlag{Name: "mode", Value: string(models.ModeAtMost), Usage: "at-most or at-least"},
					&cli.IntFlag{Name: "ai", Value: 80, Usage: "AI score threshold (0-100)"},
					&cli.IntFlag{Name: "sonar", Value: 5, Usage: "quality issue-count threshold"},
					&cli.IntFlag{Name: "junit", Value: -1, Usage: "JUnit score threshold, -1 to unset"},
					&cli.BoolFlag{Name: "require-junit-java", Usage: "apply the JUnit threshold when Java files change"},
					&cli.BoolFlag{Name: "allow-fallback", Value: true, Usage: "let fallback AI scores drive auto-merge"},
				},
				Action: func(c *cli.Context) error {
					mode := models.ThresholdMode(c.String("mode"))
					if mode != models.ModeAtMost && mode != models.ModeAtLeast {
						return fmt.Errorf("invalid mode %q", c.String("mode"))
					}
					ai := c.Int("ai")
					if ai < 0 || ai > 100 {
						return fmt.Errorf("ai threshold must be 0-100")
					}
					sonar := c.Int("sonar")
					if sonar < 0 {
						return fmt.Errorf("sonar threshold must be >= 0")
					}

					cfg := models.AutoMergeConfig{
						Enabled:             c.Bool("enabled"),
						Mode:                mode,
						AIThreshold:         ai,
						SonarThreshold:      sonar,
						RequireJUnitForJava: c.Bool("require-junit-java"),
						AllowFallbackScore:  c.Bool("allow-fallback"),
					}
					if j := c.Int("junit"); j >= 0 {
						cfg.JUnitThreshold = &j
					}

					d, err := buildDeps(c)
					if err != nil {
						return err
					}
					defer d.close()

					if err := configstore.SaveThresholds(c.Context, d.configs, cfg); err != nil {
						return err
					}
					fmt.Println("Thresholds saved.")
					return nil
				},
			},
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "manage the local config file",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "write a sample config file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "path",
						Value: "mergegate.toml",
						Usage: "where to write the sample config",
					},
				},
				Action: func(c *cli.Context) error {
					path := c.String("path")
					if err := config.Init(path); err != nil {
						return err
					}
					fmt.Printf("Wrote %s\n", path)
					return nil
				},
			},
		},
	}
}
