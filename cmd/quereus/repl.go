package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"quereus/internal/engine"
	"quereus/internal/errs"
	"quereus/internal/types"
)

// renderRow joins a row's values into one printable line.
func renderRow(row types.Row) string {
	parts := make([]string, len(row))
	for i, v := range row {
		if v.IsNull() {
			parts[i] = "NULL"
		} else {
			parts[i] = v.String()
		}
	}
	return strings.Join(parts, "\t")
}

// runREPL reads semicolon-terminated statements from r and executes each
// against db, printing results to w until EOF (spec §4.12 exec/eval loop,
// adapted for an interactive stdin/stdout session).
func runREPL(db *engine.Database, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	var buf strings.Builder
	ctx := context.Background()

	flush := func() {
		sql := strings.TrimSpace(buf.String())
		buf.Reset()
		if sql == "" {
			return
		}
		results, err := db.Exec(ctx, sql, nil)
		if err != nil {
			fmt.Fprintln(w, "error:", errs.Format(err))
			return
		}
		for _, res := range results {
			if res.IsQuery {
				for _, row := range res.Rows {
					fmt.Fprintln(w, renderRow(row))
				}
			} else {
				fmt.Fprintf(w, "OK, %d row(s) affected\n", res.RowsAffected)
			}
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteString("\n")
		if strings.HasSuffix(strings.TrimSpace(line), ";") {
			flush()
		}
	}
	flush()
	return scanner.Err()
}
