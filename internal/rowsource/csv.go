package rowsource

import (
	"encoding/csv"
	"os"
)

type csvReader struct {
	f *os.File
	r *csv.Reader
}

func openCSV(path string) (*csvReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = false
	return &csvReader{f: f, r: r}, nil
}

func (c *csvReader) next() ([]string, error) {
	return c.r.Read()
}

func (c *csvReader) close() error {
	return c.f.Close()
}
