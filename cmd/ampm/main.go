// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command ampm resolves, fetches, and publishes content-addressed
// artifacts stored on a network-mounted remote repository.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/ampm/lib/artifact"
)

func main() {
	// The fast path runs before any flag parsing, logging setup, or
	// Cache/Resolver construction: an exact "ampm get <type>:<fp>" or
	// "ampm env <type>:<fp>" with no other arguments only ever needs one
	// syscall to answer.
	if output, trailingNewline, ok := tryFastPath(os.Args); ok {
		if trailingNewline {
			fmt.Println(output)
		} else {
			fmt.Print(output)
		}
		os.Exit(0)
	}

	err := run(os.Args[1:])
	os.Exit(artifact.ExitCode(err))
}

// tryFastPath recognizes exactly "ampm get <type>:<fingerprint>" or
// "ampm env <type>:<fingerprint>" (no flags, no attribute expressions)
// and, if the cache's side file for that identifier can be read directly,
// returns its raw contents. The second result reports whether the caller
// still needs to append a newline: a `.target` link's text has none, a
// `.env` file's contents already end in one (matching runGet/runEnv's own
// fmt.Println/fmt.Print split). Any other shape of invocation, or any
// error along the way, falls through to the full dispatcher — this is an
// optimization, never a source of truth.
func tryFastPath(args []string) (output string, trailingNewline bool, ok bool) {
	if len(args) != 3 || (args[1] != "get" && args[1] != "env") {
		return "", false, false
	}
	id, err := artifact.ParseIdentifier(args[2])
	if err != nil || !id.Exact() {
		return "", false, false
	}

	cacheDir := os.Getenv("AMPM_CACHE_DIR")
	if cacheDir == "" {
		cacheDir = defaultCacheDir
	}
	metadataDir := filepath.Join(cacheDir, "metadata", id.Type)

	if args[1] == "get" {
		link, err := os.Readlink(filepath.Join(metadataDir, id.Fingerprint+".target"))
		if err != nil {
			return "", false, false
		}
		return link, true, true
	}

	env, err := os.ReadFile(filepath.Join(metadataDir, id.Fingerprint+".env"))
	if err != nil {
		return "", false, false
	}
	return string(env), false, true
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return fmt.Errorf("%w: no subcommand given", artifact.ErrMalformed)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()

	subcommand, rest := args[0], args[1:]
	switch subcommand {
	case "get":
		return runGet(ctx, logger, rest)
	case "env":
		return runEnv(ctx, logger, rest)
	case "list":
		return runList(ctx, logger, rest)
	case "upload":
		return runUpload(ctx, logger, rest)
	case "remote-rm":
		return runRemoteRM(ctx, logger, rest)
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("%w: unknown subcommand %q", artifact.ErrMalformed, subcommand)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: ampm <command> [flags]

commands:
  get <identifier> [-a key=value ...]        resolve, fetch, print local path
  env <identifier> [-a key=value ...]        resolve, fetch, print export lines
  list [<type>] [-a key=value ...]           list matching artifacts
  upload <local-path> --type T [...]         publish a new artifact
  remote-rm <identifier> --i-realise-...     delete from the remote

global flags: -s/--server, --cache-dir, --offline`)
}

// openResolver builds the Cache/Gateway/Resolver stack shared by every
// subcommand that resolves or fetches artifacts. A Gateway is only
// constructed when cfg.Server is set and cfg.Offline is false: a bare
// cache-only Resolver is perfectly usable, it just can never satisfy a
// miss.
func openResolver(cfg config, logger *slog.Logger) (*artifact.Resolver, error) {
	cache, err := artifact.NewCache(cfg.CacheDir, logger)
	if err != nil {
		return nil, err
	}

	var gateway *artifact.Gateway
	if cfg.Server != "" && !cfg.Offline {
		gateway, err = artifact.NewGateway(cfg.Server)
		if err != nil {
			return nil, err
		}
	}

	return artifact.NewResolver(cache, gateway, cfg.Offline), nil
}
