package cli

import (
	"encoding/json"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// printResult writes data as JSON or YAML when --output asks for it and
// calls textFn otherwise. Only the encoded data goes to w in the structured
// modes.
func printResult(w io.Writer, data any, textFn func(io.Writer) error) error {
	switch outputFormat {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	default:
		return textFn(w)
	}
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}
