package rowsource

import (
	"errors"
	"io"

	"github.com/xuri/excelize/v2"
)

// workbookReader streams the active sheet row by row.
type workbookReader struct {
	f    *excelize.File
	rows *excelize.Rows
}

func openWorkbook(path string) (*workbookReader, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		_ = f.Close()
		return nil, errors.New("workbook has no active sheet")
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &workbookReader{f: f, rows: rows}, nil
}

func (w *workbookReader) next() ([]string, error) {
	if !w.rows.Next() {
		if err := w.rows.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return w.rows.Columns()
}

func (w *workbookReader) close() error {
	rowsErr := w.rows.Close()
	if err := w.f.Close(); err != nil {
		return err
	}
	return rowsErr
}
