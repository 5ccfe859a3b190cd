// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ampm/lib/artifact"
)

func runList(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
	cfg := defaultConfig()
	addGlobalFlags(fs, &cfg)
	attrs := attrFlags{}
	fs.VarP(attrs, "attr", "a", "attribute expression, key=value or key=@tag:param")
	format := fs.StringP("format", "f", "pretty", "output format: pretty, json, short, index-file")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", artifact.ErrMalformed, err)
	}
	if fs.NArg() > 1 {
		return fmt.Errorf("%w: list takes at most one type argument", artifact.ErrMalformed)
	}
	artifactType := ""
	if fs.NArg() == 1 {
		artifactType = fs.Arg(0)
	}

	resolver, err := openResolver(cfg, logger)
	if err != nil {
		return err
	}
	records, err := resolver.List(ctx, artifactType, attrs)
	if err != nil {
		return err
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Type != records[j].Type {
			return records[i].Type < records[j].Type
		}
		return records[i].Fingerprint() < records[j].Fingerprint()
	})

	return printRecords(records, *format)
}

func printRecords(records []*artifact.Record, format string) error {
	switch format {
	case "pretty":
		for _, rec := range records {
			fmt.Printf("%s\n", rec.Identifier())
			fmt.Printf("  name: %s\n", rec.Name)
			if rec.Description != "" {
				fmt.Printf("  description: %s\n", rec.Description)
			}
			fmt.Printf("  pubdate: %s\n", rec.PubDate.Format("2006-01-02 15:04:05"))
			for _, k := range sortedAttrKeys(rec.Attributes) {
				fmt.Printf("  %s: %s\n", k, rec.Attributes[k])
			}
			fmt.Println()
		}
		return nil

	case "short":
		for _, rec := range records {
			fmt.Printf("%s\t%s\n", rec.Identifier(), describeAttrs(rec.Attributes))
		}
		return nil

	case "index-file":
		for _, rec := range records {
			fmt.Printf("%s\t%s\t%s\n", rec.Identifier(), describeAttrs(rec.Attributes), indexLink(rec))
		}
		return nil

	case "json":
		type jsonRecord struct {
			Identifier  string            `json:"identifier"`
			Name        string            `json:"name"`
			Description string            `json:"description"`
			PubDate     string            `json:"pubdate"`
			Type        string            `json:"type"`
			Attributes  map[string]string `json:"attributes"`
			Env         map[string]string `json:"env"`
		}
		out := make([]jsonRecord, 0, len(records))
		for _, rec := range records {
			out = append(out, jsonRecord{
				Identifier:  rec.Identifier().String(),
				Name:        rec.Name,
				Description: rec.Description,
				PubDate:     rec.PubDate.Format("2006-01-02T15:04:05Z07:00"),
				Type:        rec.Type,
				Attributes:  rec.Attributes,
				Env:         rec.Env,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)

	default:
		return fmt.Errorf("%w: unknown output format %q", artifact.ErrMalformed, format)
	}
}

func sortedAttrKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func describeAttrs(m map[string]string) string {
	parts := make([]string, 0, len(m))
	for _, k := range sortedAttrKeys(m) {
		parts = append(parts, k+"="+m[k])
	}
	return strings.Join(parts, ",")
}

// indexLink renders the static-index "computed link column" the
// index-file format adds: the payload's path relative to the remote
// repository root (its location override if set, else
// artifacts/<type>/<fingerprint>/<name><suffix>), which a generated index
// page can link straight to, mirroring the original --index-file-prefix
// output minus its HTML templating.
func indexLink(rec *artifact.Record) string {
	if rec.PathLocation != "" {
		return rec.PathLocation
	}
	return "artifacts/" + rec.Type + "/" + rec.Fingerprint() + "/" + rec.Name + rec.PathType.Suffix()
}
