// Command quereus is the engine's command-line front end: a small cobra
// tool wrapping internal/engine for ad-hoc SQL execution and plan
// inspection, in the same shape as the teacher's cli/main.go (one root
// command, one subcommand per verb, flags bound with cobra.Command).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"quereus/internal/engine"
	"quereus/internal/explain"
	"quereus/internal/kv/memkv"
	"quereus/internal/vtab/memory"
)

func newDatabase(ctx context.Context, optionsPath string) (*engine.Database, error) {
	opts := engine.DefaultOptions()
	if optionsPath != "" {
		loaded, err := engine.LoadOptions(optionsPath)
		if err != nil {
			return nil, err
		}
		opts = loaded
	}

	provider := memkv.NewProvider()
	db := engine.New(provider, opts)
	db.RegisterVtabModule(ctx, "memory", memory.New(provider), nil)
	return db, nil
}

func main() {
	var optionsPath string

	rootCmd := &cobra.Command{
		Use:   "quereus",
		Short: "A SQL query engine over pluggable virtual tables",
	}
	rootCmd.PersistentFlags().StringVar(&optionsPath, "options", "", "path to a TOML options file")

	execCmd := &cobra.Command{
		Use:   "exec <sql>",
		Short: "Execute one or more statements and print their results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := newDatabase(context.Background(), optionsPath)
			if err != nil {
				return err
			}
			defer db.Close(context.Background())

			results, err := db.Exec(context.Background(), args[0], nil)
			if err != nil {
				return err
			}
			for i, r := range results {
				if r.IsQuery {
					fmt.Printf("-- statement %d: %d row(s)\n", i+1, len(r.Rows))
					for _, row := range r.Rows {
						fmt.Println(renderRow(row))
					}
				} else {
					fmt.Printf("-- statement %d: %d row(s) affected\n", i+1, r.RowsAffected)
				}
			}
			return nil
		},
	}

	var explainFormat string
	explainCmd := &cobra.Command{
		Use:   "explain <sql>",
		Short: "Print the optimized plan for a single statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := newDatabase(context.Background(), optionsPath)
			if err != nil {
				return err
			}
			defer db.Close(context.Background())

			ctx := context.Background()
			stmt, err := db.Prepare(ctx, args[0], nil)
			if err != nil {
				return err
			}

			formatter, err := explain.NewFormatter(explainFormat)
			if err != nil {
				return err
			}
			out, err := formatter.FormatPlan(stmt.Node)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
	explainCmd.Flags().StringVar(&explainFormat, "format", "text", "output format: text or json")

	serveMemoryCmd := &cobra.Command{
		Use:   "serve-memory",
		Short: "Start an empty in-memory database and read statements from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := newDatabase(context.Background(), optionsPath)
			if err != nil {
				return err
			}
			defer db.Close(context.Background())

			fmt.Fprintln(os.Stderr, "quereus: memory-backed database ready, reading statements from stdin")
			return runREPL(db, os.Stdin, os.Stdout)
		},
	}

	rootCmd.AddCommand(execCmd, explainCmd, serveMemoryCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "quereus:", err)
		os.Exit(1)
	}
}
