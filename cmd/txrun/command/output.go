package command

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
)

func printOutcome(w io.Writer, id, state string, executed int, elapsed time.Duration) {
	fmt.Fprintf(w, "transaction %s %s: %d statement(s) in %s\n", id, state, executed, elapsed.Round(time.Millisecond))
}

func printRows(w io.Writer, columns []string, values [][]any) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if len(columns) > 0 {
		fmt.Fprintln(tw, strings.Join(columns, "\t"))
		sep := make([]string, len(columns))
		for i, c := range columns {
			sep[i] = strings.Repeat("-", len(c))
		}
		fmt.Fprintln(tw, strings.Join(sep, "\t"))
	}

	for _, row := range values {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatValue(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "(%d row(s))\n", len(values))
	return err
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}
