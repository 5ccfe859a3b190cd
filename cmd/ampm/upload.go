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

func runUpload(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := pflag.NewFlagSet("upload", pflag.ContinueOnError)
	cfg := defaultConfig()
	addGlobalFlags(fs, &cfg)
	attrs := attrFlags{}
	fs.VarP(attrs, "attr", "a", "attribute, key=value")
	env := attrFlags{}
	fs.VarP(env, "env", "e", "environment variable to record, key=value")
	artifactType := fs.String("type", "", "artifact type (required)")
	name := fs.String("name", "", "artifact name (defaults to the local path's base name)")
	description := fs.String("description", "", "human-readable description")
	remotePath := fs.String("remote-path", "", "override the computed remote payload location")
	compressed := fs.Bool("compressed", true, "gzip/tar.gz the payload before publishing")
	uncompressed := fs.Bool("uncompressed", false, "publish the payload as-is (file/dir), no compression")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", artifact.ErrMalformed, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: upload takes exactly one local-path argument", artifact.ErrMalformed)
	}
	if *artifactType == "" {
		return fmt.Errorf("%w: --type is required", artifact.ErrMalformed)
	}
	if cfg.Server == "" {
		return fmt.Errorf("%w: upload requires -s/--server (or AMPM_SERVER)", artifact.ErrMalformed)
	}

	cache, err := artifact.NewCache(cfg.CacheDir, logger)
	if err != nil {
		return err
	}
	gateway, err := artifact.NewGateway(cfg.Server)
	if err != nil {
		return err
	}

	rec, err := artifact.Upload(ctx, gateway, cache, artifact.UploadOptions{
		LocalPath:   fs.Arg(0),
		Type:        *artifactType,
		Name:        *name,
		Description: *description,
		Attributes:  attrs,
		Env:         env,
		Compress:    *compressed && !*uncompressed,
		RemotePath:  *remotePath,
	})
	if err != nil {
		return err
	}

	logger.Info("uploaded artifact", slog.String("identifier", rec.Identifier().String()))
	fmt.Println(rec.Identifier())
	return nil
}
