package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"

	tcfg "github.com/kiliankoe/threader/cli/internal/config"
	"github.com/kiliankoe/threader/cli/internal/render"
	"github.com/kiliankoe/threader/pkg/logging"
	"github.com/kiliankoe/threader/pkg/threads"
	"github.com/kiliankoe/threader/pkg/threads/platforms"
)

// app carries per-invocation state so commands stay testable.
type app struct {
	v       *viper.Viper
	cfgFile string
	verbose bool

	cfg     tcfg.Config
	cfgPath string

	newRegistry func(platforms.Config, logging.Logger) *threads.Registry
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time
}

func newApp() *app {
	return &app{
		v: viper.New(),
		newRegistry: func(cfg platforms.Config, logger logging.Logger) *threads.Registry {
			return platforms.New(cfg, logger).Registry
		},
		sleep: sleepContext,
		now:   time.Now,
	}
}

// NewRootCmd returns the root command for the threader CLI
func NewRootCmd() *cobra.Command {
	return newRootCmd(newApp())
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "threader",
		Short:         "Reconstruct Mastodon and Bluesky threads",
		Long:          "threader follows a post up and down its reply tree and prints the single-author thread it belongs to.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.threader/config.yaml)")
	pf.StringP("output", "o", "", "output format: text|json|markdown")
	pf.Bool("no-color", false, "disable colored output")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging on stderr")
	a.bind("output", pf.Lookup("output"))
	a.bind("no_color", pf.Lookup("no-color"))

	rootCmd.AddCommand(newFetchCmd(a))
	rootCmd.AddCommand(newParseCmd(a))
	rootCmd.AddCommand(newConfigCmd(a))
	rootCmd.AddCommand(newVersionCmd(a))
	return rootCmd
}

func (a *app) bind(key string, flag *pflag.Flag) {
	_ = a.v.BindPFlag(key, flag)
}

// loadConfig layers flags over THREADER_* env over the YAML file over
// built-in defaults.
func (a *app) loadConfig() error {
	fileCfg, path, err := tcfg.Load(a.cfgFile)
	if err != nil {
		return err
	}
	a.cfgPath = path

	v := a.v
	v.SetEnvPrefix("THREADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("output", fileCfg.Output)
	v.SetDefault("no_color", fileCfg.NoColor)
	v.SetDefault("fetch.min_gap", fileCfg.Fetch.MinGap)
	v.SetDefault("fetch.cache_ttl", fileCfg.Fetch.CacheTTL)
	v.SetDefault("fetch.cache_max_entries", fileCfg.Fetch.CacheMaxEntries)
	v.SetDefault("fetch.timeout", fileCfg.Fetch.Timeout)
	v.SetDefault("fetch.user_agent", fileCfg.Fetch.UserAgent)
	v.SetDefault("fetch.bluesky_api_base", fileCfg.Fetch.BlueskyAPIBase)
	v.SetDefault("options.initial_context_requests", fileCfg.Options.InitialContextRequests)
	v.SetDefault("options.max_context_requests", fileCfg.Options.MaxContextRequests)
	v.SetDefault("options.max_parent_lookups", fileCfg.Options.MaxParentLookups)
	v.SetDefault("follow.max_rounds", fileCfg.Follow.MaxRounds)
	v.SetDefault("follow.max_wait", fileCfg.Follow.MaxWait)

	cfg := tcfg.Config{
		Output:  v.GetString("output"),
		NoColor: v.GetBool("no_color"),
		Fetch: tcfg.Fetch{
			MinGap:          v.GetDuration("fetch.min_gap"),
			CacheTTL:        v.GetDuration("fetch.cache_ttl"),
			CacheMaxEntries: v.GetInt("fetch.cache_max_entries"),
			Timeout:         v.GetDuration("fetch.timeout"),
			UserAgent:       v.GetString("fetch.user_agent"),
			BlueskyAPIBase:  v.GetString("fetch.bluesky_api_base"),
		},
		Options: threads.Options{
			InitialContextRequests: v.GetInt("options.initial_context_requests"),
			MaxContextRequests:     v.GetInt("options.max_context_requests"),
			MaxParentLookups:       v.GetInt("options.max_parent_lookups"),
		},
		Follow: tcfg.Follow{
			MaxRounds: v.GetInt("follow.max_rounds"),
			MaxWait:   v.GetDuration("follow.max_wait"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) logger(cmd *cobra.Command) logging.Logger {
	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(logrus.WarnLevel)
	if a.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func (a *app) printer(cmd *cobra.Command) *render.Printer {
	out := cmd.OutOrStdout()
	return render.NewPrinter(out, render.Format(a.cfg.Output), a.useColor(out))
}

// useColor is true only when out is a terminal and neither --no-color nor
// NO_COLOR (honored by fatih/color) turned it off.
func (a *app) useColor(out io.Writer) bool {
	if a.cfg.NoColor || color.NoColor {
		return false
	}
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// notice writes progress to stderr so stdout stays clean for --output json.
func (a *app) notice(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
