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

const acknowledgeFlag = "i-realise-this-may-break-other-peoples-builds-in-the-future"

func runRemoteRM(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := pflag.NewFlagSet("remote-rm", pflag.ContinueOnError)
	cfg := defaultConfig()
	addGlobalFlags(fs, &cfg)
	acknowledged := fs.Bool(acknowledgeFlag, false, "required: acknowledge this permanently removes a published artifact")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", artifact.ErrMalformed, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: remote-rm takes exactly one identifier argument", artifact.ErrMalformed)
	}
	if !*acknowledged {
		return fmt.Errorf("%w: remote-rm requires --%s", artifact.ErrMalformed, acknowledgeFlag)
	}
	if cfg.Server == "" {
		return fmt.Errorf("%w: remote-rm requires -s/--server (or AMPM_SERVER)", artifact.ErrMalformed)
	}

	id, err := artifact.ParseIdentifier(fs.Arg(0))
	if err != nil {
		return err
	}
	if !id.Exact() {
		return fmt.Errorf("%w: remote-rm requires an exact type:fingerprint identifier, got %q", artifact.ErrMalformed, fs.Arg(0))
	}

	gateway, err := artifact.NewGateway(cfg.Server)
	if err != nil {
		return err
	}
	if err := gateway.RemoveArtifact(ctx, id); err != nil {
		return err
	}
	logger.Warn("removed artifact from remote repository", slog.String("identifier", id.String()))
	return nil
}
