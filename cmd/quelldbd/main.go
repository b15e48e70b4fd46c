// Command quelldbd is the engine's CLI front end: it opens a storage
// root and either runs a single statement passed with --exec or drops
// into an interactive REPL reading statements from stdin.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"quelldb/internal/database"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dataDir string
	var execStmt string

	root := &cobra.Command{
		Use:   "quelldbd",
		Short: "quelldb is a single-node, disk-backed relational database engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.Open(dataDir)
			if err != nil {
				return fmt.Errorf("opening %q: %w", dataDir, err)
			}
			defer func() {
				if err := db.Close(); err != nil {
					logrus.WithError(err).Error("error closing database")
				}
			}()

			if execStmt != "" {
				return runOne(db, execStmt)
			}
			return runREPL(db)
		},
	}

	root.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "storage root directory")
	root.Flags().StringVarP(&execStmt, "exec", "e", "", "run a single statement and exit")

	return root
}

func runOne(db *database.Database, stmt string) error {
	result, err := db.Execute(stmt)
	if err != nil {
		return err
	}
	printResult(os.Stdout, result)
	return nil
}

func runREPL(db *database.Database) error {
	fmt.Println("quelldb ready. Enter a statement, or BEGIN/COMMIT/ROLLBACK; Ctrl-D to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	var buf strings.Builder

	for {
		if buf.Len() == 0 {
			fmt.Print("quelldb> ")
		} else {
			fmt.Print("     ...> ")
		}
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')

		if !strings.HasSuffix(strings.TrimSpace(line), ";") {
			continue
		}
		stmt := buf.String()
		buf.Reset()

		if strings.TrimSpace(stmt) == "" {
			continue
		}
		result, err := db.Execute(stmt)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		printResult(os.Stdout, result)
	}
}

func printResult(w io.Writer, r *database.Result) {
	if !r.IsQuery {
		fmt.Fprintf(w, "OK (%d rows affected)\n", r.RowsAffected)
		return
	}
	if len(r.Rows) == 0 {
		fmt.Fprintln(w, "(0 rows)")
		return
	}
	fmt.Fprintln(w, strings.Join(r.Columns, "\t"))
	for _, row := range r.Rows {
		fields := make([]string, len(row))
		for i, v := range row {
			fields[i] = v.CanonicalString()
		}
		fmt.Fprintln(w, strings.Join(fields, "\t"))
	}
	fmt.Fprintf(w, "(%d rows)\n", len(r.Rows))
}
