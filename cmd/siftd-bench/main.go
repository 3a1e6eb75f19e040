// Command siftd-bench drives the engine facade end to end against a model
// directory and a throwaway SQLite file, for manual smoke-testing. Real
// hosts embed the engine package directly; this is the one piece of "host"
// this repo ships.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/screenager/siftd/engine"
)

func main() {
	var modelDir string
	var dbPath string
	var tokenizerPath string

	root := &cobra.Command{
		Use:   "siftd-bench",
		Short: "Exercise the siftd embedding/search engine from the command line",
	}
	root.PersistentFlags().StringVar(&modelDir, "model-dir", "./models", "directory containing config.json and model.safetensors")
	root.PersistentFlags().StringVar(&dbPath, "db", "./siftd.db", "path to the vector store database")
	root.PersistentFlags().StringVar(&tokenizerPath, "tokenizer", "", "path to tokenizer.json or vocab.txt (default: model-dir/tokenizer.json)")

	open := func() (*engine.Engine, error) {
		tp := tokenizerPath
		if tp == "" {
			tp = filepath.Join(modelDir, "tokenizer.json")
		}
		e := engine.New()
		if err := e.Init(modelDir, tp); err != nil {
			return nil, err
		}
		if err := e.OpenDB(dbPath); err != nil {
			return nil, err
		}
		return e, nil
	}

	root.AddCommand(&cobra.Command{
		Use:   "index <symbols.json>",
		Short: "Embed and index a batch of symbols described as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.CloseDB()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var batch []engine.SymbolInput
			if err := json.Unmarshal(data, &batch); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			start := time.Now()
			if err := e.IndexSymbols(cmd.Context(), batch); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "indexed %d symbols in %s\n", len(batch), time.Since(start).Round(time.Millisecond))
			return nil
		},
	})

	var topK int
	var threshold float32
	var language, kind, pathPrefix string
	searchCmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Run a semantic search against the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.CloseDB()

			results, err := e.Search(cmd.Context(), []string{strings.Join(args, " ")}, topK, threshold, engine.Filters{
				Language:   language,
				Kind:       kind,
				PathPrefix: pathPrefix,
			})
			if err != nil {
				return err
			}
			for i, r := range results {
				fmt.Printf("%2d  %.3f  %s:%d  %s (%s/%s)\n", i+1, r.Score, r.FilePath, r.Line, r.Name, r.Language, r.Kind)
			}
			return nil
		},
	}
	searchCmd.Flags().IntVar(&topK, "top-k", 10, "number of results to return")
	searchCmd.Flags().Float32Var(&threshold, "threshold", 0, "minimum score to include")
	searchCmd.Flags().StringVar(&language, "language", "", "filter by language")
	searchCmd.Flags().StringVar(&kind, "kind", "", "filter by symbol kind")
	searchCmd.Flags().StringVar(&pathPrefix, "path-prefix", "", "filter by file path prefix")
	root.AddCommand(searchCmd)

	root.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print symbol and file counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.CloseDB()

			stats, err := e.GetStats()
			if err != nil {
				return err
			}
			fmt.Printf("files:   %d\n", stats.NumFiles)
			fmt.Printf("symbols: %d\n", stats.NumSymbols)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "delete <path...>",
		Short: "Delete files (and their symbols) from the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.CloseDB()
			return e.DeleteFiles(args)
		},
	})

	root.SilenceUsage = true
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "siftd-bench:", err)
		os.Exit(1)
	}
}
