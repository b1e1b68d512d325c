// Command srcfast is the CLI front end for source-fast: build and maintain
// a trigram index over a repository's working tree, query it, watch it for
// changes, or serve it over MCP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/standardbeagle/source-fast/internal/config"
	srcerrors "github.com/standardbeagle/source-fast/internal/errors"
	"github.com/standardbeagle/source-fast/internal/indexer"
	"github.com/standardbeagle/source-fast/internal/logging"
	"github.com/standardbeagle/source-fast/internal/mcpserver"
	"github.com/standardbeagle/source-fast/internal/queryeval"
	"github.com/standardbeagle/source-fast/internal/version"
	"github.com/standardbeagle/source-fast/internal/watcher"
)

const defaultConfigName = ".source_fast.kdl"

// exitCoder lets command actions signal a specific process exit code
// without forcing cli to guess from the error alone.
type exitCoder struct {
	err  error
	code int
}

func (e *exitCoder) Error() string { return e.err.Error() }
func (e *exitCoder) ExitCode() int { return e.code }
func (e *exitCoder) Unwrap() error { return e.err }

func exitErr(err error, code int) error {
	if err == nil {
		return nil
	}
	return &exitCoder{err: err, code: code}
}

// classifyErr maps a source-fast error to a process exit code: 2 for a
// Corrupt store that could not be recreated, 1 for user error
// (QueryTooShort, InvalidRegex) and for every other error. A nil error
// stays nil.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case srcerrors.IsKind(err, srcerrors.KindQueryTooShort), srcerrors.IsKind(err, srcerrors.KindInvalidRegex):
		return exitErr(err, 1)
	case srcerrors.IsKind(err, srcerrors.KindCorrupt):
		return exitErr(err, 2)
	default:
		return exitErr(err, 1)
	}
}

func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	root := c.String("root")
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = cwd
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path %q: %w", root, err)
	}

	configRoot := absRoot
	if configFlag := c.String("config"); configFlag != "" {
		configRoot = filepath.Dir(configFlag)
	}

	cfg, err := config.Load(configRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", filepath.Join(configRoot, defaultConfigName), err)
	}
	cfg.Project.Root = absRoot

	if includes := c.StringSlice("include"); len(includes) > 0 {
		cfg.Include = includes
	}
	if excludes := c.StringSlice("exclude"); len(excludes) > 0 {
		cfg.Exclude = append(cfg.Exclude, excludes...)
	}
	return cfg, nil
}

func newLogger(c *cli.Context) (*zap.Logger, error) {
	if c.Bool("quiet") {
		return logging.Nop(), nil
	}
	return logging.New(c.Bool("verbose"))
}

func main() {
	app := &cli.App{
		Name:    "srcfast",
		Usage:   "trigram-indexed substring search over a repository's working tree",
		Version: version.Version,
		// Leave exit handling to the errors.As branch below instead of
		// letting cli call os.Exit from inside Run.
		ExitErrHandler: func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (default: <root>/.source_fast.kdl)",
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root directory (default: current directory)",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Include files matching glob patterns",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Exclude files matching glob patterns",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress logging entirely",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "index",
				Usage:  "Build or update the index for the project root",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "After the initial pass, watch for changes and reindex incrementally",
					},
				},
				Action: indexCommand,
			},
			{
				Name:      "search",
				Usage:     "Search indexed content for a literal substring",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "file-regex",
						Usage: "Restrict matches to paths matching this RE2 regular expression",
					},
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output results as JSON",
					},
				},
				Action: searchCommand,
			},
			{
				Name:      "search-paths",
				Usage:     "Search indexed paths for a substring",
				ArgsUsage: "<substring>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output results as JSON",
					},
				},
				Action: searchPathsCommand,
			},
			{
				Name:  "serve",
				Usage: "Index the project, then serve search_code over MCP stdio",
				Action: serveCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		var ec *exitCoder
		if errors.As(err, &ec) {
			fmt.Fprintf(os.Stderr, "srcfast: %v\n", ec.err)
			os.Exit(ec.code)
		}
		fmt.Fprintf(os.Stderr, "srcfast: %v\n", err)
		os.Exit(1)
	}
}

func interruptContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func indexCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return exitErr(err, 1)
	}
	logger, err := newLogger(c)
	if err != nil {
		return exitErr(err, 2)
	}
	defer logger.Sync()

	ix, err := indexer.Open(cfg.Project.Root, cfg, logger)
	if err != nil {
		return classifyErr(err)
	}
	defer ix.Close()

	ctx, cancel := interruptContext()
	defer cancel()

	if err := ix.Run(ctx, nil); err != nil {
		if ctx.Err() != nil {
			return exitErr(ctx.Err(), 130)
		}
		return classifyErr(err)
	}

	if !c.Bool("watch") {
		return nil
	}

	w, err := watcher.New(cfg.Project.Root, cfg, func() {
		if err := ix.Run(ctx, nil); err != nil {
			logger.Warn("reindex after change failed", zap.Error(err))
		}
	}, logger)
	if err != nil {
		return exitErr(err, 2)
	}
	if err := w.Start(ctx); err != nil {
		return exitErr(err, 2)
	}
	defer w.Stop()

	<-ctx.Done()
	return exitErr(ctx.Err(), 130)
}

func searchCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return exitErr(errors.New("usage: srcfast search <query>"), 1)
	}
	query := c.Args().First()
	fileRegex := c.String("file-regex")

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return exitErr(err, 1)
	}
	logger, err := newLogger(c)
	if err != nil {
		return exitErr(err, 2)
	}
	defer logger.Sync()

	ix, err := indexer.Open(cfg.Project.Root, cfg, logger)
	if err != nil {
		return classifyErr(err)
	}
	defer ix.Close()

	eval := queryeval.New(ix.Store(), cfg.Project.Root, cfg.Performance.MaxOpenFiles, logging.Component(logger, "query"))

	ctx, cancel := interruptContext()
	defer cancel()

	matches, err := eval.SearchContent(ctx, query, fileRegex)
	if err != nil {
		if ctx.Err() != nil {
			return exitErr(ctx.Err(), 130)
		}
		return classifyErr(err)
	}

	if c.Bool("json") {
		return json.NewEncoder(os.Stdout).Encode(matches)
	}
	for _, m := range matches {
		fmt.Printf("%s:%d:\n%s\n", m.Path, m.LineNo, m.Snippet)
	}
	return nil
}

func searchPathsCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return exitErr(errors.New("usage: srcfast search-paths <substring>"), 1)
	}
	substr := c.Args().First()

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return exitErr(err, 1)
	}
	logger, err := newLogger(c)
	if err != nil {
		return exitErr(err, 2)
	}
	defer logger.Sync()

	ix, err := indexer.Open(cfg.Project.Root, cfg, logger)
	if err != nil {
		return classifyErr(err)
	}
	defer ix.Close()

	eval := queryeval.New(ix.Store(), cfg.Project.Root, cfg.Performance.MaxOpenFiles, logging.Component(logger, "query"))

	paths, err := eval.SearchPaths(substr)
	if err != nil {
		return classifyErr(err)
	}

	if c.Bool("json") {
		return json.NewEncoder(os.Stdout).Encode(paths)
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}

func serveCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return exitErr(err, 1)
	}
	logger, err := newLogger(c)
	if err != nil {
		return exitErr(err, 2)
	}
	defer logger.Sync()

	ix, err := indexer.Open(cfg.Project.Root, cfg, logger)
	if err != nil {
		return classifyErr(err)
	}
	defer ix.Close()

	ctx, cancel := interruptContext()
	defer cancel()

	if err := ix.Run(ctx, nil); err != nil {
		logger.Warn("initial indexing pass failed, serving stale index", zap.Error(err))
	}

	if cfg.Index.WatchMode {
		w, err := watcher.New(cfg.Project.Root, cfg, func() {
			if err := ix.Run(ctx, nil); err != nil {
				logger.Warn("reindex after change failed", zap.Error(err))
			}
		}, logger)
		if err != nil {
			return exitErr(err, 2)
		}
		if err := w.Start(ctx); err != nil {
			return exitErr(err, 2)
		}
		defer w.Stop()
	}

	eval := queryeval.New(ix.Store(), cfg.Project.Root, cfg.Performance.MaxOpenFiles, logging.Component(logger, "query"))
	srv := mcpserver.New(eval, logging.Component(logger, "mcp"))

	if err := srv.Serve(ctx); err != nil {
		if ctx.Err() != nil {
			return exitErr(ctx.Err(), 130)
		}
		return exitErr(err, 2)
	}
	return nil
}
