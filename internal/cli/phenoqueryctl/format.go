package phenoqueryctl

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
)

const (
	FormatJSON  = "json"
	FormatCSV   = "csv"
	FormatTable = "table"
)

type dataPayload struct {
	Columns  []string         `json:"columns"`
	Data     []map[string]any `json:"data"`
	RowCount int              `json:"row_count"`
}

func validFormat(format string) bool {
	switch format {
	case FormatJSON, FormatCSV, FormatTable:
		return true
	default:
		return false
	}
}

// writeRows renders a get_data response body in the header order the server
// returned.
func writeRows(w io.Writer, format string, raw []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var payload dataPayload
	if err := decoder.Decode(&payload); err != nil {
		return fmt.Errorf("decode data response: %w", err)
	}

	switch format {
	case FormatCSV:
		writer := csv.NewWriter(w)
		if err := writer.Write(payload.Columns); err != nil {
			return err
		}
		for _, row := range payload.Data {
			if err := writer.Write(record(payload.Columns, row, csvValue)); err != nil {
				return err
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return fmt.Errorf("flush csv writer: %w", err)
		}
		return nil
	case FormatTable:
		table := tablewriter.NewWriter(w)
		table.SetAutoFormatHeaders(false)
		table.SetHeader(payload.Columns)
		for _, row := range payload.Data {
			table.Append(record(payload.Columns, row, tableValue))
		}
		table.Render()
		_, err := fmt.Fprintf(w, "%d row(s)\n", payload.RowCount)
		return err
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func record(columns []string, row map[string]any, format func(any) string) []string {
	values := make([]string, len(columns))
	for i, column := range columns {
		values[i] = format(row[column])
	}
	return values
}

func tableValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprint(v)
}

// csvValue prefixes cells that spreadsheets would evaluate as formulas.
func csvValue(v any) string {
	if v == nil {
		return ""
	}
	value := fmt.Sprint(v)
	if _, isNumber := v.(json.Number); isNumber {
		return value
	}
	if value != "" && strings.ContainsRune("=+-@\t\r\n|", rune(value[0])) {
		return "'" + strings.ReplaceAll(value, "'", "''")
	}
	return value
}
