package cli

import (
	"io"
	"text/tabwriter"

	json "github.com/goccy/go-json"
)

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// notifier prints wizard notices to stderr.
type notifier struct{ w io.Writer }

func (n notifier) Error(msg string)   { writeln(n.w, "error: %s", msg) }
func (n notifier) Success(msg string) { writeln(n.w, "%s", msg) }
