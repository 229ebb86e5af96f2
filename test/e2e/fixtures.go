package e2e

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SupportedFileExtensions are the script source formats generated for E2E imports.
// PDF is not generated here (no minimal PDF with extractable text) and .odt/.rtf
// go through the shared document reader.
var SupportedFileExtensions = []string{".txt", ".md", ".docx", ".xlsx", ".ods"}

// WriteMinimalFile returns a minimal file of the given extension holding lines,
// one paragraph, cell or line each.
func WriteMinimalFile(ext string, lines []string) ([]byte, error) {
	switch ext {
	case ".txt", ".md":
		return []byte(strings.Join(lines, "\n") + "\n"), nil
	case ".docx":
		var body strings.Builder
		for _, l := range lines {
			body.WriteString(`<w:p><w:r><w:t>` + l + `</w:t></w:r></w:p>`)
		}
		return zipOf("word/document.xml",
			`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`+body.String()+`</w:body></w:document>`)
	case ".ods":
		var rows strings.Builder
		for _, l := range lines {
			rows.WriteString(`<table:table-row><table:table-cell office:value-type="string"><text:p>` + l + `</text:p></table:table-cell></table:table-row>`)
		}
		return zipOf("content.xml",
			`<office:document-content><office:body><office:spreadsheet><table:table>`+rows.String()+`</table:table></office:spreadsheet></office:body></office:document-content>`)
	case ".xlsx":
		return minimalXlsx(lines)
	default:
		return nil, fmt.Errorf("no fixture for %s", ext)
	}
}

func zipOf(name, content string) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.Create(name)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func minimalXlsx(lines []string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	for i, l := range lines {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue("Sheet1", cell, l); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
