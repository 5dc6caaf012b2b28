package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/klauspost/compress/zstd"

	"github.com/gambitlabs/insights/internal/analyzer"
	"github.com/gambitlabs/insights/internal/httpapi"
	"github.com/gambitlabs/insights/internal/store"
)

func main() {
	var (
		dbPath     = flag.String("db", "./data/insights.db", "SQLite database path")
		outputPath = flag.String("output", "analyses.jsonl.zst", "Output file (.zst appends zstd compression)")
	)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := store.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	outFile, err := os.Create(*outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output file: %v\n", err)
		os.Exit(1)
	}
	defer outFile.Close()

	enc := json.NewEncoder(outFile)
	var zw *zstd.Encoder
	if strings.HasSuffix(*outputPath, ".zst") {
		zw, err = zstd.NewWriter(outFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create zstd writer: %v\n", err)
			os.Exit(1)
		}
		enc = json.NewEncoder(zw)
	}

	var exported int
	err = db.IterateAnalyses(ctx, func(ga *analyzer.GameAnalysis) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := enc.Encode(httpapi.ToAnalysisResponse(ga)); err != nil {
			return err
		}
		exported++
		if exported%10000 == 0 {
			fmt.Printf("Exported %d analyses\n", exported)
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "iterate error: %v\n", err)
		os.Exit(1)
	}

	if zw != nil {
		if err := zw.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "zstd close error: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("\nDone! Exported %d analyses to %s\n", exported, *outputPath)
}
