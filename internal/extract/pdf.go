package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF returns one paragraph per line. PDF text is laid out in wrapped
// rows, so consecutive rows are joined and a blank row or page break ends the
// paragraph; sentence splitting then works on whole paragraphs.
func extractPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	var paragraphs []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		paragraphs = append(paragraphs, unwrapRows(text)...)
	}
	return strings.Join(paragraphs, "\n"), nil
}

// unwrapRows joins runs of non-blank rows into single paragraphs.
func unwrapRows(text string) []string {
	var paragraphs, cur []string
	flush := func() {
		if len(cur) > 0 {
			paragraphs = append(paragraphs, strings.Join(cur, " "))
			cur = cur[:0]
		}
	}
	for _, row := range strings.Split(text, "\n") {
		if row = strings.TrimSpace(row); row == "" {
			flush()
			continue
		}
		cur = append(cur, row)
	}
	flush()
	return paragraphs
}
