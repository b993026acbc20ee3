package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/irvingoujAtDevolution/source-fast/internal/applog"
	"github.com/irvingoujAtDevolution/source-fast/internal/lease"
	"github.com/irvingoujAtDevolution/source-fast/internal/mcpserver"
	"github.com/irvingoujAtDevolution/source-fast/internal/scan"
	"github.com/irvingoujAtDevolution/source-fast/internal/search"
	"github.com/irvingoujAtDevolution/source-fast/internal/version"
	"github.com/irvingoujAtDevolution/source-fast/internal/watch"
	"github.com/irvingoujAtDevolution/source-fast/internal/worktree"
	"github.com/irvingoujAtDevolution/source-fast/internal/writer"
)

const indexDirName = ".source_fast"

var rootDBFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "root",
		Usage: "Root directory to index (default: current working directory)",
	},
	&cli.StringFlag{
		Name:  "db",
		Usage: "Path to the index database file (default: <root>/.source_fast/index.db)",
	},
}

func resolveRoot(c *cli.Context) (string, error) {
	root := c.String("root")
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
		return wd, nil
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root %q: %w", root, err)
	}
	return abs, nil
}

func resolveDBPath(c *cli.Context, root string) string {
	if db := c.String("db"); db != "" {
		return db
	}
	return filepath.Join(root, indexDirName, "index.db")
}

func main() {
	app := &cli.App{
		Name:    "sf",
		Usage:   "source_fast: persistent trigram search for source code",
		Version: version.Version,
		Commands: []*cli.Command{
			{
				Name:   "index",
				Usage:  "Build or update the index, then exit",
				Flags:  rootDBFlags,
				Action: indexCommand,
			},
			{
				Name:      "search",
				Usage:     "Search using an existing index",
				ArgsUsage: "QUERY",
				Flags: append(append([]cli.Flag{}, rootDBFlags...), &cli.StringFlag{
					Name:  "file-regex",
					Usage: "Regular expression filtering hits by path",
				}),
				Action: searchCommand,
			},
			{
				Name:      "search-file",
				Usage:     "Search indexed file paths by substring",
				ArgsUsage: "PATTERN",
				Flags:     rootDBFlags,
				Action:    searchFileCommand,
			},
			{
				Name:   "server",
				Usage:  "Run the MCP search server over stdio",
				Flags:  rootDBFlags,
				Action: serverCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func indexCommand(c *cli.Context) error {
	log := applog.CLI()
	ctx := context.Background()

	root, err := resolveRoot(c)
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve root")
		return cli.Exit("", 1)
	}
	dbPath := resolveDBPath(c, root)

	log.Info().Str("root", root).Str("db", dbPath).Msg("building index")

	engine, err := worktree.Open(ctx, root, dbPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to open index database")
		return cli.Exit("", 1)
	}
	defer engine.Close()

	writeEnabled := &atomic.Bool{}
	writeEnabled.Store(true)

	actor, err := writer.New(ctx, engine, writeEnabled, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to start writer")
		return cli.Exit("", 1)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go actor.Run(runCtx)

	if err := scan.SmartScan(ctx, root, actor, log); err != nil {
		log.Error().Err(err).Msg("indexing failed")
		return cli.Exit("", 1)
	}
	if err := actor.Flush(ctx); err != nil {
		log.Error().Err(err).Msg("indexing failed")
		return cli.Exit("", 1)
	}

	log.Info().Msg("index build completed")
	return nil
}

func searchCommand(c *cli.Context) error {
	log := applog.CLI()
	ctx := context.Background()

	query := c.Args().First()

	root, err := resolveRoot(c)
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve root")
		return cli.Exit("", 1)
	}
	dbPath := resolveDBPath(c, root)

	if _, err := os.Stat(dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "Index database not found at %s. Run `sf index --root %s` to build the index.\n", dbPath, root)
		return cli.Exit("", 1)
	}

	var fileRegex *regexp.Regexp
	if pattern := c.String("file-regex"); pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			log.Error().Err(err).Msg("invalid file-regex")
			return cli.Exit("", 1)
		}
		fileRegex = re
	}

	hits, err := search.Search(ctx, dbPath, query, fileRegex, true)
	if err != nil {
		log.Error().Err(err).Msg("search failed")
		return cli.Exit("", 1)
	}

	for _, hit := range hits {
		if hit.SnippetError != "" {
			log.Warn().Str("path", hit.Path).Str("error", hit.SnippetError).Msg("failed to extract snippet")
		}
		if hit.Snippet != nil {
			fmt.Printf("File: %s:%d\n", hit.Path, hit.Snippet.LineNumber)
			for _, line := range hit.Snippet.Lines {
				fmt.Printf("%d: %s\n", line.Number, line.Text)
			}
			fmt.Println()
		} else {
			fmt.Printf("File: %s\n", hit.Path)
		}
	}

	return nil
}

func searchFileCommand(c *cli.Context) error {
	log := applog.CLI()
	ctx := context.Background()

	pattern := c.Args().First()

	root, err := resolveRoot(c)
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve root")
		return cli.Exit("", 1)
	}
	dbPath := resolveDBPath(c, root)

	if _, err := os.Stat(dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "Index database not found at %s. Run `sf index --root %s` to build the index.\n", dbPath, root)
		return cli.Exit("", 1)
	}

	hits, err := search.SearchFiles(ctx, dbPath, pattern)
	if err != nil {
		log.Error().Err(err).Msg("search failed")
		return cli.Exit("", 1)
	}

	for _, hit := range hits {
		fmt.Println(hit.Path)
	}

	return nil
}

func serverCommand(c *cli.Context) error {
	log, closeLog := applog.Server()
	defer closeLog()

	root, err := resolveRoot(c)
	if err != nil {
		return cli.Exit("", 1)
	}
	dbPath := resolveDBPath(c, root)

	log.Info().Msg("source_fast MCP server starting")
	log.Info().Str("root", root).Msg("root")
	log.Info().Str("db", dbPath).Msg("db")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	engine, err := worktree.Open(ctx, root, dbPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to open index database")
		return cli.Exit("", 1)
	}
	defer engine.Close()

	writeEnabled := &atomic.Bool{}
	ready := &atomic.Bool{}

	actor, err := writer.New(ctx, engine, writeEnabled, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to start writer")
		return cli.Exit("", 1)
	}
	go actor.Run(ctx)

	var writerMu sync.Mutex
	var writerCancel context.CancelFunc

	onPromote := func(context.Context) {
		log.Info().Msg("promoted to writer")

		writerMu.Lock()
		writerCtx, cancel := context.WithCancel(ctx)
		writerCancel = cancel
		writerMu.Unlock()

		go func() {
			if err := scan.SmartScan(writerCtx, root, actor, log); err != nil {
				log.Warn().Err(err).Msg("initial scan failed")
			}
			if err := actor.Flush(writerCtx); err != nil {
				log.Warn().Err(err).Msg("initial scan flush failed")
			}
			ready.Store(true)

			watcher, err := watch.New(root, actor, log)
			if err != nil {
				log.Error().Err(err).Msg("failed to start watcher")
				return
			}
			if err := watcher.Run(writerCtx); err != nil && writerCtx.Err() == nil {
				log.Error().Err(err).Msg("file watcher stopped")
			}
		}()
	}

	onDemote := func() {
		log.Info().Msg("demoted to reader, stopping scanner/watcher")
		writerMu.Lock()
		defer writerMu.Unlock()
		if writerCancel != nil {
			writerCancel()
			writerCancel = nil
		}
	}

	leaseMgr := lease.New(engine.DB(), writeEnabled, ready, log, onPromote, onDemote)
	go leaseMgr.Run(ctx)

	srv := mcpserver.New(dbPath, ready, log)
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("mcp server stopped")
		return cli.Exit("", 1)
	}

	return nil
}
