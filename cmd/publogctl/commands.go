package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dfryer1193/publog/blog/migration"
	"github.com/dfryer1193/publog/internal/app"
	"github.com/dfryer1193/publog/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type cli struct {
	configFile string
	loader     *config.Loader
	app        *app.App
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:          "publogctl",
		Short:        "Maintenance jobs for publog content",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			return c.initialize()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.app == nil {
				return nil
			}
			return c.app.Close()
		},
	}
	root.PersistentFlags().StringVarP(&c.configFile, "config", "c", "", "path to publog.yaml")

	root.AddCommand(newMigrateCommand(c))
	root.AddCommand(newCacheCommand(c))
	return root
}

func (c *cli) initialize() error {
	loader, err := config.NewLoader(c.configFile)
	if err != nil {
		return err
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(cfg.Level())

	a, err := app.New(cfg, loader, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	c.loader, c.app = loader, a
	return nil
}

// groups returns the named group, or every configured group when all is set.
func (c *cli) groups(ctx context.Context, all bool, args []string) ([]string, error) {
	if !all {
		if len(args) != 1 {
			return nil, fmt.Errorf("expected exactly one group, or --all")
		}
		return args, nil
	}
	groups, err := c.app.Registry.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	slugs := make([]string, 0, len(groups))
	for _, g := range groups {
		slugs = append(slugs, g.Slug)
	}
	return slugs, nil
}

func newMigrateCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run a migration job",
	}

	jobs := []struct {
		use   string
		short string
		job   func() migration.Job
	}{
		{"restructure", "Move legacy posts into v1 directories", func() migration.Job { return c.app.Restructure }},
		{"primary-language", "Backfill primary_language", func() migration.Job { return c.app.PrimaryLanguage }},
		{"validate", "Compare filesystem and database content", func() migration.Job { return c.app.Validate }},
	}
	for _, j := range jobs {
		var all bool
		sub := &cobra.Command{
			Use:   j.use + " [group]",
			Short: j.short,
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				groups, err := c.groups(cmd.Context(), all, args)
				if err != nil {
					return err
				}
				var failed error
				for _, g := range groups {
					res, err := c.app.Runner.Run(cmd.Context(), j.job(), g)
					printResult(cmd.OutOrStdout(), res)
					if err != nil {
						failed = err
					}
				}
				return failed
			},
		}
		sub.Flags().BoolVar(&all, "all", false, "run for every configured group")
		cmd.AddCommand(sub)
	}

	var target string
	primary := findCommand(cmd, "primary-language")
	primary.Flags().StringVar(&target, "target", "", "primary language to set instead of the group default")
	primary.PreRun = func(cmd *cobra.Command, args []string) {
		c.app.PrimaryLanguage.Target = target
	}

	var sampleSize int
	validate := findCommand(cmd, "validate")
	validate.Flags().IntVar(&sampleSize, "sample", migration.DefaultSampleSize, "posts per group to compare content for")
	validate.PreRun = func(cmd *cobra.Command, args []string) {
		c.app.Validate.SampleSize = sampleSize
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "fs-to-db",
		Short: "Copy every group into the database and switch backends when clean",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := c.app.FSToDB.RunAll(cmd.Context(), c.app.Runner)
			for _, res := range results {
				printResult(cmd.OutOrStdout(), res)
			}
			return err
		},
	})
	return cmd
}

func findCommand(parent *cobra.Command, name string) *cobra.Command {
	for _, sub := range parent.Commands() {
		if sub.Name() == name {
			return sub
		}
	}
	panic("missing subcommand " + name)
}

func newCacheCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Listing cache maintenance",
	}

	var all bool
	regenerate := &cobra.Command{
		Use:   "regenerate [group]",
		Short: "Rebuild listing caches",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groups, err := c.groups(cmd.Context(), all, args)
			if err != nil {
				return err
			}
			for _, g := range groups {
				if err := c.app.Cache.RegenerateIfNotInProgress(cmd.Context(), g); err != nil {
					return fmt.Errorf("%s: %w", g, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "regenerated %s\n", g)
			}
			return nil
		},
	}
	regenerate.Flags().BoolVar(&all, "all", false, "regenerate every configured group")

	invalidate := &cobra.Command{
		Use:   "invalidate <group>",
		Short: "Drop a group's cached listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.Cache.Invalidate(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(regenerate, invalidate)
	return cmd
}

type resultView struct {
	JobID     string   `yaml:"job_id"`
	Job       string   `yaml:"job"`
	Group     string   `yaml:"group"`
	Total     int      `yaml:"total"`
	Succeeded int      `yaml:"succeeded"`
	Skipped   int      `yaml:"skipped"`
	Errors    []string `yaml:"errors,omitempty"`
	Report    any      `yaml:"report,omitempty"`
}

func printResult(w io.Writer, res *migration.Result) {
	if res == nil {
		return
	}
	view := resultView{
		JobID:     res.JobID,
		Job:       res.Job,
		Group:     res.Group,
		Total:     res.Total,
		Succeeded: res.Succeeded,
		Skipped:   res.Skipped,
		Report:    res.Report,
	}
	for _, e := range res.Errors {
		view.Errors = append(view.Errors, e.Error())
	}
	out, err := yaml.Marshal([]resultView{view})
	if err != nil {
		fmt.Fprintln(w, err)
		return
	}
	w.Write(out)
}
