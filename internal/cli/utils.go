// Package cli provides output helpers for the speechlab command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/speechlab/internal/evaluator"
	"github.com/hyperjump/speechlab/internal/indexer"
	"github.com/hyperjump/speechlab/internal/models"
	"github.com/hyperjump/speechlab/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat returns the format named by s.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case OutputText, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

const scriptPreviewLen = 80

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// WriteEvaluation writes a text-only evaluation result.
func WriteEvaluation(w io.Writer, res evaluator.Result, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "Score: %.2f\n", res.Score)
	if len(res.MissingWords) > 0 {
		fmt.Fprintf(w, "Missing: %s\n", strings.Join(res.MissingWords, ", "))
	}
	for _, nm := range res.NearMisses {
		fmt.Fprintf(w, "Near miss: %s -> %s (%.2f)\n", nm.Expected, nm.Heard, nm.Similarity)
	}
	fmt.Fprintf(w, "\n%s\n", res.Feedback)
	return nil
}

// WriteScripts writes a list of scripts, one per line in text mode.
func WriteScripts(w io.Writer, scripts []*models.Script, format OutputFormat) error {
	if format == OutputJSON {
		if scripts == nil {
			scripts = []*models.Script{}
		}
		return writeJSON(w, scripts)
	}
	if len(scripts) == 0 {
		fmt.Fprintln(w, "No scripts.")
		return nil
	}
	for _, sc := range scripts {
		line := fmt.Sprintf("%6d  %s", sc.ID, utils.Truncate(sc.Text, scriptPreviewLen))
		if sc.Source != "" {
			line += "  [" + sc.Source + "]"
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

// WriteImport writes the summary of a file or directory import.
func WriteImport(w io.Writer, res *indexer.ImportResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "Imported %d file(s): %d script(s) added, %d skipped\n", res.Files, res.Added, res.Skipped)
	return nil
}

// WriteStatus writes catalog and index status.
func WriteStatus(w io.Writer, st *models.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Scripts:      %d\n", st.Scripts)
	fmt.Fprintf(w, "Submissions:  %d\n", st.Feedback)
	fmt.Fprintf(w, "Index size:   %d\n", st.IndexSize)
	fmt.Fprintf(w, "Dimension:    %d\n", st.IndexDimension)
	if st.SnapshotID != "" {
		fmt.Fprintf(w, "Snapshot:     %s\n", st.SnapshotID)
	}
	fmt.Fprintf(w, "Disk usage:   %s\n", FormatBytes(st.DiskUsageBytes))
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
