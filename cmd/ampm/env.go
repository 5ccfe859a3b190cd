// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ampm/lib/artifact"
)

func runEnv(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := pflag.NewFlagSet("env", pflag.ContinueOnError)
	cfg := defaultConfig()
	addGlobalFlags(fs, &cfg)
	attrs := attrFlags{}
	fs.VarP(attrs, "attr", "a", "attribute expression, key=value or key=@tag:param")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", artifact.ErrMalformed, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: env takes exactly one identifier argument", artifact.ErrMalformed)
	}

	resolver, err := openResolver(cfg, logger)
	if err != nil {
		return err
	}
	query, err := artifact.ParseQuery(fs.Arg(0), attrs)
	if err != nil {
		return err
	}
	rec, path, err := resolver.Get(ctx, query)
	if err != nil {
		return err
	}
	fmt.Print(artifact.FormatEnvFile(rec, path))
	return nil
}
