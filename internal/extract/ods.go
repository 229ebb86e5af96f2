package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// odsContentPath is the path to the main content inside an .ods zip.
const odsContentPath = "content.xml"

var (
	// odsCell matches a non-empty spreadsheet cell.
	odsCell = regexp.MustCompile(`(?s)<table:table-cell(?:\s[^>]*[^/>])?>(.*?)</table:table-cell>`)
	xmlTag  = regexp.MustCompile(`<[^>]+>`)
)

// extractODS emits one line per non-empty cell.
func extractODS(content []byte) (string, error) {
	contentXML, err := readZipEntry(content, odsContentPath)
	if err != nil {
		return "", fmt.Errorf("extract ODS: %w", err)
	}
	var lines []string
	for _, cell := range odsCell.FindAllStringSubmatch(string(contentXML), -1) {
		text := strings.Join(strings.Fields(xmlTag.ReplaceAllString(cell[1], "")), " ")
		if text != "" {
			lines = append(lines, text)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// readZipEntry returns the named entry of a zip archive held in content.
func readZipEntry(content []byte, name string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("not a zip: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		defer rc.Close()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("%s not found", name)
}
