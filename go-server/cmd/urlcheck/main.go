// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.

// Command urlcheck scores URLs from the command line and prints one JSON
// report per argument.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"websentinel/go-server/internal/config"
	"websentinel/go-server/internal/pipeline"
)

func main() {
	showFeatures := flag.Bool("features", false, "print the assembled feature vector instead of the report")
	verbose := flag.Bool("v", false, "log lookups to stderr")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: urlcheck [-features] [-v] URL...\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level := slog.LevelError
	if *verbose {
		level = slog.LevelDebug
	}
	logger := pipeline.NewLogger(cfg.LogFormat, os.Stderr, level)

	p, err := pipeline.New(context.Background(), cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer p.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	failed := false
	for _, rawURL := range flag.Args() {
		report, err := p.Analyzer.Analyze(context.Background(), rawURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", rawURL, err)
			failed = true
			continue
		}
		var out any = report
		if *showFeatures {
			out = report.Features
		}
		if err := enc.Encode(out); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if failed {
		os.Exit(1)
	}
}
