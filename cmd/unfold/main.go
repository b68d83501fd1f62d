package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agusx1211/unfold/internal/fsys"
	"github.com/agusx1211/unfold/internal/logx"
	"github.com/agusx1211/unfold/internal/unfold"
)

type options struct {
	dir       string
	lib       string
	profile   string
	logFormat string
	quiet     bool

	floor             int
	noCollapseSelfDir bool
	excludePatterns   []string
	respectGitignore  bool

	keepLib bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "unfold",
		Short: "Unfold flattens a directory tree into encoded file names and restores it",
		Long: `Unfold moves every file of a directory tree into a single level, encoding
its original path into the file name ("a/b/c.jpg" becomes "a_b_c.jpg"), and
records every move in a library file so the tree can be restored later.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.dir, "dir", ".", "Root directory to process")
	rootCmd.PersistentFlags().StringVar(&opts.lib, "lib", "", "Path to the rename library file (default <dir>/.rename_lib)")
	rootCmd.PersistentFlags().StringVarP(&opts.profile, "profile", "p", "", "Profile from .unfold.yaml to apply")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Diagnostic format: plain, text, json, or auto")
	rootCmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "Only report problems")

	renameCmd := &cobra.Command{
		Use:   "rename",
		Short: "Flatten file paths into underscores; records mapping in the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRename(cmd, opts)
		},
	}
	renameCmd.Flags().IntVar(&opts.floor, "floor", 0, "Number of top levels to keep before flattening")
	renameCmd.Flags().BoolVar(&opts.noCollapseSelfDir, "no-collapse-self-dir", false, "Keep <name>/<name>.<ext> as <name>_<name>.<ext> instead of <name>.<ext>")
	renameCmd.Flags().StringArrayVarP(&opts.excludePatterns, "exclude", "e", nil, "Glob of files to leave in place (repeatable); a trailing / excludes directories")
	renameCmd.Flags().BoolVar(&opts.respectGitignore, "respect-gitignore", false, "Leave files matched by .gitignore and the .git directory in place")

	repackCmd := &cobra.Command{
		Use:   "repack",
		Short: "Restore file paths using the library or the classic underscore-based method",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepack(cmd, opts)
		},
	}
	repackCmd.Flags().BoolVar(&opts.keepLib, "keep-lib", false, "Keep the rename library after repack")

	defaultsCmd := &cobra.Command{
		Use:   "defaults",
		Short: "Store default options in ~/.unfold.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDefaults(cmd, opts)
		},
	}
	defaultsCmd.Flags().IntVar(&opts.floor, "floor", 0, "Default number of top levels to keep")

	rootCmd.AddCommand(renameCmd, repackCmd, defaultsCmd)
	return rootCmd
}

func runRename(cmd *cobra.Command, opts *options) error {
	settings, err := loadSettings(opts.dir, opts.profile)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, opts, settings)
	if err != nil {
		return err
	}

	floor := 0
	if settings.Floor != nil {
		floor = *settings.Floor
	}
	if cmd.Flags().Changed("floor") {
		floor = opts.floor
	}
	collapse := true
	if settings.CollapseSelfDir != nil {
		collapse = *settings.CollapseSelfDir
	}
	if cmd.Flags().Changed("no-collapse-self-dir") {
		collapse = !opts.noCollapseSelfDir
	}

	respectGitignore := settings.RespectGitignore != nil && *settings.RespectGitignore
	if cmd.Flags().Changed("respect-gitignore") {
		respectGitignore = opts.respectGitignore
	}

	filter, err := NewFilter(opts.dir, respectGitignore, append(settings.Exclude, opts.excludePatterns...))
	if err != nil {
		return fmt.Errorf("failed to create filter: %w", err)
	}

	_, err = unfold.Rename(fsys.NewReal(), unfold.RenameOptions{
		Root:            opts.dir,
		LibraryPath:     libraryPath(cmd, opts, settings),
		Floor:           floor,
		CollapseSelfDir: collapse,
		Filter:          filter,
		Logger:          logger,
	})
	return err
}

func runRepack(cmd *cobra.Command, opts *options) error {
	settings, err := loadSettings(opts.dir, opts.profile)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, opts, settings)
	if err != nil {
		return err
	}

	keep := settings.KeepLib != nil && *settings.KeepLib
	if cmd.Flags().Changed("keep-lib") {
		keep = opts.keepLib
	}

	_, err = unfold.Repack(fsys.NewReal(), unfold.RepackOptions{
		Root:        opts.dir,
		LibraryPath: libraryPath(cmd, opts, settings),
		KeepLibrary: keep,
		Logger:      logger,
	})
	return err
}

func runDefaults(cmd *cobra.Command, opts *options) error {
	values := make(map[string]any)
	if cmd.Flags().Changed("log-format") {
		values["log_format"] = opts.logFormat
	}
	if cmd.Flags().Changed("floor") {
		values["floor"] = opts.floor
	}
	if len(values) == 0 {
		return fmt.Errorf("nothing to store: pass --log-format or --floor")
	}
	path, err := writeHomeDefaults(values)
	if err != nil {
		return fmt.Errorf("failed to store defaults: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Defaults written to: %s\n", path)
	return nil
}

// libraryPath picks --lib, then the config file's lib (relative to the
// root), then the default inside the root.
func libraryPath(cmd *cobra.Command, opts *options, settings Settings) string {
	if cmd.Flags().Changed("lib") {
		return opts.lib
	}
	if settings.Lib != "" {
		if filepath.IsAbs(settings.Lib) {
			return settings.Lib
		}
		return filepath.Join(opts.dir, settings.Lib)
	}
	return ""
}

func newLogger(cmd *cobra.Command, opts *options, settings Settings) (*slog.Logger, error) {
	format := settings.LogFormat
	if cmd.Flags().Changed("log-format") {
		format = opts.logFormat
	}
	level := slog.LevelInfo
	if opts.quiet {
		level = slog.LevelWarn
	}
	return logx.New(cmd.OutOrStdout(), format, level)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
