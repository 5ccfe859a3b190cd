// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/spf13/pflag"
)

const defaultCacheDir = "/var/ampm"

// config holds the settings every subcommand needs, assembled by
// layering defaults, then environment variables, then explicit flags —
// each layer overriding the last. There is no config file and no
// dynamic reload: ampm is a short-lived CLI process.
type config struct {
	Server   string
	CacheDir string
	Offline  bool
}

// defaultConfig reads the environment-variable layer over ampm's
// built-in defaults.
func defaultConfig() config {
	cfg := config{
		CacheDir: defaultCacheDir,
	}
	if v := os.Getenv("AMPM_SERVER"); v != "" {
		cfg.Server = v
	}
	if v := os.Getenv("AMPM_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("AMPM_OFFLINE"); v != "" {
		cfg.Offline = v != "0" && v != "false"
	}
	return cfg
}

// addGlobalFlags registers the flags common to every subcommand onto fs,
// with defaults taken from cfg (which should already carry the
// environment-variable layer). Parsing fs mutates cfg's fields directly,
// so the flag layer wins over the environment layer as soon as fs.Parse
// runs.
func addGlobalFlags(fs *pflag.FlagSet, cfg *config) {
	fs.StringVarP(&cfg.Server, "server", "s", cfg.Server, "remote artifact repository root")
	fs.StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "local cache directory")
	fs.BoolVar(&cfg.Offline, "offline", cfg.Offline, "never contact the remote repository")
}

// attrFlags accumulates repeated "-a key=value" flags into a map (a
// repeated key keeps its last value), implementing pflag.Value so it can be registered directly with a
// FlagSet.
type attrFlags map[string]string

func (a attrFlags) String() string {
	return ""
}

func (a attrFlags) Set(raw string) error {
	key, value, ok := cutOnce(raw, '=')
	if !ok {
		return errAttrSyntax(raw)
	}
	a[key] = value
	return nil
}

func (a attrFlags) Type() string { return "key=value" }

func cutOnce(s string, sep byte) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

func errAttrSyntax(raw string) error {
	return &flagSyntaxError{raw: raw}
}

type flagSyntaxError struct{ raw string }

func (e *flagSyntaxError) Error() string {
	return "expected key=value, got " + e.raw
}
