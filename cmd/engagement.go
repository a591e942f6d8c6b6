package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/naka-gawa/pr-engagement/internal/config"
	"github.com/naka-gawa/pr-engagement/internal/gateway"
	"github.com/naka-gawa/pr-engagement/internal/report"
	"github.com/naka-gawa/pr-engagement/internal/staging"
	"github.com/naka-gawa/pr-engagement/internal/usecase"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var engagementCmd = &cobra.Command{
	Use:   "engagement",
	Short: "Ranks contributors by how they engage with others' pull requests",
	Long: `Fetches the pull requests updated in the window together with their reviews,
review comments and issue comments, then scores every contributor on depth
(engagement actions per PR by others) and breadth (share of others' PRs touched).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		verbose, _ := cmd.InheritedFlags().GetBool("verbose")
		logger := newLogger(verbose)

		configPath, _ := cmd.InheritedFlags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := applyFlags(cmd.Flags(), cfg); err != nil {
			return err
		}
		// Fail before any network activity.
		if err := cfg.Validate(); err != nil {
			return err
		}

		return runEngagement(ctx, cfg, logger, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(engagementCmd)
	registerEngagementFlags(engagementCmd.Flags())
}

func registerEngagementFlags(f *pflag.FlagSet) {
	f.StringP("org", "o", "", "GitHub organization (required)")
	f.StringP("repo", "r", "", "GitHub repository (required)")
	f.IntP("days", "t", config.DefaultDays, "Number of days to look back")
	f.IntP("end", "e", 0, "Number of days back to end the window")
	f.Float64P("depth-diminishing-factor", "s", config.DefaultDepthDiminishingFactor, "The rate at which importance of ever-increasing depth diminishes (>0 <1)")
	f.Float64P("weight", "w", config.DefaultBreadthWeight, "Weight for engagement breadth (>= 0.25)")
	f.BoolP("detailed", "d", false, "Also print the detailed per-user activity report")
	f.BoolP("with-names", "n", false, "Display full user names")
	f.String("output", config.OutputTable, "Output format: table or json")
	f.String("staging-dir", "", "Keep the raw fetched documents in this directory")
	f.Int("batch-size", config.DefaultBatchSize, "Number of PRs whose reviews and comments are fetched concurrently")
}

// applyFlags overrides cfg with every flag the user set explicitly,
// so values from the config file survive unless overridden.
func applyFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	var err error
	set := func(name string, apply func() error) {
		if err == nil && flags.Changed(name) {
			err = apply()
		}
	}
	set("org", func() (e error) { cfg.Organization, e = flags.GetString("org"); return })
	set("repo", func() (e error) { cfg.Repository, e = flags.GetString("repo"); return })
	set("days", func() (e error) { cfg.Days, e = flags.GetInt("days"); return })
	set("end", func() (e error) { cfg.EndDays, e = flags.GetInt("end"); return })
	set("depth-diminishing-factor", func() (e error) {
		cfg.DepthDiminishingFactor, e = flags.GetFloat64("depth-diminishing-factor")
		return
	})
	set("weight", func() (e error) { cfg.BreadthWeight, e = flags.GetFloat64("weight"); return })
	set("detailed", func() (e error) { cfg.Detailed, e = flags.GetBool("detailed"); return })
	set("with-names", func() (e error) { cfg.WithNames, e = flags.GetBool("with-names"); return })
	set("output", func() (e error) { cfg.Output, e = flags.GetString("output"); return })
	set("staging-dir", func() (e error) { cfg.StagingDir, e = flags.GetString("staging-dir"); return })
	set("batch-size", func() (e error) { cfg.BatchSize, e = flags.GetInt("batch-size"); return })
	return err
}

// runEngagement wires the gateway, staging store and analyzer, then renders the report to out.
func runEngagement(ctx context.Context, cfg *config.Config, logger *logrus.Logger, out io.Writer) error {
	var store staging.Store = staging.NewMemoryStore()
	if cfg.StagingDir != "" {
		dirStore, err := staging.NewDirStore(cfg.StagingDir)
		if err != nil {
			return err
		}
		logger.WithField("dir", dirStore.Dir()).Info("Staging raw documents on disk")
		store = dirStore
	}

	githubGateway, err := gateway.NewGitHubGateway(cfg.Token, cfg.Organization, cfg.Repository, gateway.Options{
		APIURL:         cfg.APIURL,
		RequestTimeout: cfg.RequestTimeout,
		PageDelay:      cfg.PageDelay,
		RetryDelay:     cfg.RetryDelay,
	}, gateway.NewRateBudget(), logger)
	if err != nil {
		return fmt.Errorf("failed to create GitHub gateway: %w", err)
	}

	analyzer := usecase.NewAnalyzer(githubGateway, store, usecase.Weights{
		Breadth:                cfg.BreadthWeight,
		DepthDiminishingFactor: cfg.DepthDiminishingFactor,
	}, cfg.BatchSize, logger)

	result, err := analyzer.Run(ctx, cfg.Organization, cfg.Repository, cfg.Window(time.Now()))
	if err != nil {
		return err
	}

	if cfg.Output == config.OutputJSON {
		return report.WriteJSON(out, result)
	}
	opts := report.Options{WithNames: cfg.WithNames, RepoWebURL: cfg.RepoWebURL()}
	if err := report.WriteSummary(out, result, opts); err != nil {
		return err
	}
	if !cfg.Detailed {
		return nil
	}
	// Links in the detailed report should point at the real web host, which on
	// GitHub Enterprise is not derivable from the API URL.
	if webURL, err := githubGateway.RepositoryWebURL(ctx); err != nil {
		logger.WithError(err).Warnf("Falling back to %s for PR links", opts.RepoWebURL)
	} else {
		opts.RepoWebURL = webURL
	}
	return report.WriteDetailed(out, result, opts)
}
