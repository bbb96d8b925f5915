package internal

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/goplus/llrecipe/internal/config"
	"github.com/goplus/llrecipe/internal/shell"
	"github.com/goplus/llrecipe/internal/vcs"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version is set at link time.
var Version = "dev"

var (
	cfgFile string
	v       = config.New()
	cfg     = defaultConfig()
	logger  = log.Default()
)

var rootCmd = &cobra.Command{
	Use:   "llrecipe",
	Short: "llrecipe builds native libraries from declarative recipes",
	Long: `llrecipe fetches the source of a native library, patches its CMake project,
builds it and collects headers and libraries into a package layout.`,
	SilenceUsage:      true,
	PersistentPreRunE: initRoot,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ./llrecipe.toml or $XDG_CONFIG_HOME/llrecipe/llrecipe.toml)")
	flags.BoolP("verbose", "v", false, "enable verbose output, including tool output")
	flags.BoolP("quiet", "q", false, "only report warnings and errors")
	flags.String("workspace", "", "workspace directory (default: a temporary directory)")
	flags.Bool("keep-workspace", false, "keep the temporary workspace after the run")
	flags.String("fetcher", config.FetcherGit, `source fetcher, "git" or "go-git"`)
	flags.String("git", "git", "git executable")
	flags.String("cmake", "cmake", "cmake executable")

	bindFlags(v, flags, map[string]string{
		"verbose":        "verbose",
		"quiet":          "quiet",
		"workspace":      "workspace",
		"keep_workspace": "keep-workspace",
		"fetcher":        "fetcher",
		"git":            "git",
		"cmake":          "cmake",
	})
}

// bindFlags binds config keys to the named flags of fs.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind %s: %v", name, err))
		}
	}
}

func initRoot(cmd *cobra.Command, args []string) error {
	c, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	cfg = c

	level, err := log.ParseLevel(cfg.Level())
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logger = log.NewWithOptions(cmd.ErrOrStderr(), log.Options{
		Level:  level,
		Prefix: "llrecipe",
	})
	log.SetDefault(logger)
	return nil
}

func defaultConfig() *config.Config {
	c := config.Default()
	return &c
}

// toolOutput is where external tools stream to, nil unless verbose.
func toolOutput(cmd *cobra.Command) io.Writer {
	if cfg.Verbose {
		return cmd.ErrOrStderr()
	}
	return nil
}

func newRunner(cmd *cobra.Command) shell.Runner {
	if w := toolOutput(cmd); w != nil {
		return shell.New(shell.WithStream(w))
	}
	return shell.New()
}

func newVCS(cmd *cobra.Command, runner shell.Runner) vcs.VCS {
	if cfg.Fetcher == config.FetcherGoGit {
		return vcs.NewGoGitVCS(toolOutput(cmd))
	}
	return vcs.NewGitVCS(vcs.WithGitPath(cfg.Git), vcs.WithRunner(runner))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(Version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
