// Package rowsource reads catalog rows from csv files and workbooks.
package rowsource

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"PdfVault/model"
)

// FormatError is returned for file extensions no reader understands.
type FormatError struct {
	Ext string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unsupported file format: %q", e.Ext)
}

// Columns maps workbook headers to catalog fields.
type Columns struct {
	Key                string
	PrimaryURL         string
	BackupURL          string
	Title              string
	PublicationYear    string
	OrganizationName   string
	OrganizationType   string
	OrganizationSector string
	Country            string
	Region             string
}

// DefaultColumns returns the header names of the GRI report workbook.
func DefaultColumns() Columns {
	return Columns{
		Key:                "BRnum",
		PrimaryURL:         "Pdf_URL",
		BackupURL:          "Report Html Address",
		Title:              "Title",
		PublicationYear:    "Publication Year",
		OrganizationName:   "Name",
		OrganizationType:   "Organization type",
		OrganizationSector: "Sector",
		Country:            "Country",
		Region:             "Region",
	}
}

// Source yields catalog items one at a time. It is not safe for concurrent use.
type Source interface {
	// Next returns io.EOF once the window is exhausted.
	Next() (*model.CatalogItem, error)
	Close() error
}

// rowReader is the format specific part: it returns raw cells, header first.
type rowReader interface {
	next() ([]string, error)
	close() error
}

var workbookExts = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".xltx": true,
	".xltm": true,
}

// CheckFormat validates the file extension without touching the file.
func CheckFormat(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".csv" || workbookExts[ext] {
		return nil
	}
	return &FormatError{Ext: ext}
}

// Open returns the window [start, start+count) of data rows in path.
// Row 0 of the file is the header; start 0 is the first data row.
// A negative count reads to the end of the file.
func Open(path string, start, count int, cols Columns) (Source, error) {
	if err := CheckFormat(path); err != nil {
		return nil, err
	}
	if start < 0 {
		return nil, fmt.Errorf("negative start row %d", start)
	}
	var (
		rr  rowReader
		err error
	)
	if strings.ToLower(filepath.Ext(path)) == ".csv" {
		rr, err = openCSV(path)
	} else {
		rr, err = openWorkbook(path)
	}
	if err != nil {
		return nil, err
	}
	header, err := rr.next()
	if err == io.EOF {
		_ = rr.close()
		return nil, fmt.Errorf("%s: missing header row", filepath.Base(path))
	}
	if err != nil {
		_ = rr.close()
		return nil, err
	}
	return &windowSource{
		rows:   rr,
		index:  headerIndex(header),
		cols:   cols,
		start:  start,
		remain: count,
	}, nil
}

func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	return index
}

type windowSource struct {
	rows    rowReader
	index   map[string]int
	cols    Columns
	start   int
	remain  int
	skipped bool
	row     int
}

func (s *windowSource) Next() (*model.CatalogItem, error) {
	if s.remain == 0 {
		return nil, io.EOF
	}
	if !s.skipped {
		for s.row < s.start {
			if _, err := s.rows.next(); err != nil {
				return nil, err
			}
			s.row++
		}
		s.skipped = true
	}
	cells, err := s.rows.next()
	if err != nil {
		return nil, err
	}
	item := s.item(cells)
	s.row++
	if s.remain > 0 {
		s.remain--
	}
	return item, nil
}

func (s *windowSource) Close() error {
	return s.rows.close()
}

func (s *windowSource) cell(cells []string, header string) string {
	i, ok := s.index[header]
	if !ok || i >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[i])
}

func (s *windowSource) item(cells []string) *model.CatalogItem {
	return &model.CatalogItem{
		Row:        s.row,
		Key:        s.cell(cells, s.cols.Key),
		PrimaryURL: s.cell(cells, s.cols.PrimaryURL),
		BackupURL:  s.cell(cells, s.cols.BackupURL),
		Meta: model.ReportMeta{
			Title:              s.cell(cells, s.cols.Title),
			PublicationYear:    s.cell(cells, s.cols.PublicationYear),
			OrganizationName:   s.cell(cells, s.cols.OrganizationName),
			OrganizationType:   s.cell(cells, s.cols.OrganizationType),
			OrganizationSector: s.cell(cells, s.cols.OrganizationSector),
			Country:            s.cell(cells, s.cols.Country),
			Region:             s.cell(cells, s.cols.Region),
		},
	}
}
