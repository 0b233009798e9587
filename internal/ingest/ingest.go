// Package ingest loads business records from CSV and XLSX files into the
// store's shape.
package ingest

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/sitecheck/internal/model"
)

// headerAliases maps Business fields to the column names exports tend to use.
var headerAliases = map[string][]string{
	"id":      {"id", "business_id", "record_id"},
	"name":    {"name", "business_name", "company", "company_name"},
	"phone":   {"phone", "phone_number", "telephone"},
	"address": {"address", "street", "street_address", "address1"},
	"city":    {"city", "town"},
	"state":   {"state", "province", "region"},
	"country": {"country"},
	"url":     {"url", "website", "website_url", "web_site", "domain"},
}

// ReadFile loads businesses from path, dispatching on extension.
func ReadFile(path string) ([]model.Business, error) {
	switch {
	case strings.HasSuffix(strings.ToLower(path), ".csv"):
		return readCSV(path)
	case strings.HasSuffix(strings.ToLower(path), ".xlsx"):
		return readXLSX(path)
	default:
		return nil, eris.Errorf("ingest: unsupported file type %q", path)
	}
}

func readCSV(path string) ([]model.Business, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open csv")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read csv header")
	}

	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "ingest: read csv row")
		}
		rows = append(rows, row)
	}

	return MapRows(header, rows)
}

func readXLSX(path string) ([]model.Business, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("ingest: xlsx has no sheets")
	}

	sheet := f.Sheets[0]
	var header []string
	var rows [][]string
	for i, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		if i == 0 {
			header = cells
			continue
		}
		rows = append(rows, cells)
	}

	return MapRows(header, rows)
}

// MapRows converts header-addressed rows into Business records. Rows with no
// name are dropped; rows with no id get a generated one. Unknown columns are
// ignored.
func MapRows(header []string, rows [][]string) ([]model.Business, error) {
	idx, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	out := make([]model.Business, 0, len(rows))
	for _, row := range rows {
		get := func(field string) string {
			i, ok := idx[field]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		name := get("name")
		if name == "" {
			continue
		}

		b := model.Business{
			ID:      get("id"),
			Name:    name,
			Phone:   get("phone"),
			Address: get("address"),
			City:    get("city"),
			State:   get("state"),
			Country: get("country"),
			URL:     get("url"),
			Status:  model.StatePending,
		}
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		if b.URL != "" {
			b.URLSource = model.URLSourceScraped
		}
		out = append(out, b)
	}

	return out, nil
}

// columnIndex resolves each known field to its column position.
func columnIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int)
	for i, col := range header {
		normalized := strings.ToLower(strings.TrimSpace(col))
		normalized = strings.ReplaceAll(normalized, " ", "_")
		for field, aliases := range headerAliases {
			if _, taken := idx[field]; taken {
				continue
			}
			for _, a := range aliases {
				if normalized == a {
					idx[field] = i
					break
				}
			}
		}
	}

	if _, ok := idx["name"]; !ok {
		return nil, eris.New("ingest: no name column found in header")
	}
	return idx, nil
}
