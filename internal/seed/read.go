// Package seed loads provider records from CSV or XLSX files into the store.
package seed

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/unicode/norm"
)

// Row is one provider record from a seed file.
type Row struct {
	ExternalID    string
	Name          string
	Phone         string
	Address       string
	Specialty     string
	LicenseNo     string
	LicenseExpiry string
	Affiliations  string
}

// columns maps header names to the Row field they fill.
var columns = map[string]func(*Row) *string{
	"external_id":    func(r *Row) *string { return &r.ExternalID },
	"name":           func(r *Row) *string { return &r.Name },
	"phone":          func(r *Row) *string { return &r.Phone },
	"address":        func(r *Row) *string { return &r.Address },
	"specialty":      func(r *Row) *string { return &r.Specialty },
	"license_no":     func(r *Row) *string { return &r.LicenseNo },
	"license_expiry": func(r *Row) *string { return &r.LicenseExpiry },
	"affiliations":   func(r *Row) *string { return &r.Affiliations },
}

// ReadFile reads rows from path. Files ending in .xlsx are read from their
// first sheet; anything else is parsed as CSV. The first row is the header.
func ReadFile(path string) ([]Row, error) {
	var (
		records [][]string
		err     error
	)
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		records, err = readXLSX(path)
	} else {
		records, err = readCSV(path)
	}
	if err != nil {
		return nil, err
	}
	return parseRecords(records)
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: open csv %s", path)
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "seed: read csv %s", path)
	}
	return records, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: open xlsx %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("seed: %s has no sheets", path)
	}

	var records [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		records = append(records, cells)
	}
	return records, nil
}

// parseRecords maps records onto Rows by header name. Unknown columns are
// ignored. Values are NFC-normalized and trimmed.
func parseRecords(records [][]string) ([]Row, error) {
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	setters := make([]func(*Row) *string, len(header))
	found := map[string]bool{}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if set, ok := columns[key]; ok {
			setters[i] = set
			found[key] = true
		}
	}
	for _, required := range []string{"external_id", "name"} {
		if !found[required] {
			return nil, eris.Errorf("seed: missing required column %q", required)
		}
	}

	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		var r Row
		for i, v := range rec {
			if i < len(setters) && setters[i] != nil {
				*setters[i](&r) = clean(v)
			}
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func clean(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
