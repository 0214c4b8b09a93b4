package source

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/lead-engine/internal/model"
)

// ReadFile loads a lead batch from a .json, .csv, or .xlsx file. JSON files
// hold an array of leads; sheets carry a header row.
func ReadFile(path string) ([]model.RawLead, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return readJSON(path)
	case ".csv":
		return readCSV(path)
	case ".xlsx":
		return readXLSX(path)
	default:
		return nil, eris.Errorf("source: unsupported file type %q", ext)
	}
}

func readJSON(path string) ([]model.RawLead, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "source: read json")
	}
	var leads []model.RawLead
	if err := json.Unmarshal(data, &leads); err != nil {
		return nil, eris.Wrap(err, "source: decode json")
	}
	return leads, nil
}

func readCSV(path string) ([]model.RawLead, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "source: open csv")
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "source: read csv")
	}
	if len(records) == 0 {
		return nil, nil
	}
	records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	return rowsToLeads(records[0], records[1:])
}

func readXLSX(path string) ([]model.RawLead, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "source: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("source: xlsx has no sheets")
	}

	sheet := f.Sheets[0]
	var rows [][]string
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rowsToLeads(rows[0], rows[1:])
}
