// =============================================================================
// SEPA Direct Debit Export - CSV Member Source
// =============================================================================
//
// This module reads member rows from a CSV export of the membership
// directory. It handles:
//   - Different delimiters (comma, semicolon, pipe, tab)
//   - Multi-line headers
//   - Legacy encodings (ISO-8859-1, Windows-1252)
//   - Configurable header names per member field
//
// Parsing happens in two steps: Parse produces a generic header -> value
// table, and ParseMembers maps it onto member rows.
//
// =============================================================================

package csvparser

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/ginjaninja78/sepa-export/internal/config"
	"github.com/ginjaninja78/sepa-export/internal/types"
)

// =============================================================================
// CSV DATA STRUCTURE
// =============================================================================

// CSVData represents the parsed CSV file.
type CSVData struct {
	// Headers contains the column headers from the CSV file.
	// For multi-line headers, these are the merged headers.
	Headers []string

	// Rows contains the data rows as maps of header -> value.
	Rows []map[string]string

	// RowCount is the number of data rows (excluding headers and blank rows).
	RowCount int
}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// ParseFile opens a CSV file and reads member rows from it.
func ParseFile(filePath string, settings config.CSVSettings, columns config.ColumnMapping) ([]types.MemberRow, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return ParseMembers(file, settings, columns)
}

// ParseMembers reads member rows from r.
//
// PARAMETERS:
//   - r: The CSV input.
//   - settings: Delimiter, header rows and encoding.
//   - columns: The header name of each member field.
//
// RETURNS:
//   - The member rows in file order.
//   - An error if the input cannot be decoded or a mapped column is missing.
func ParseMembers(r io.Reader, settings config.CSVSettings, columns config.ColumnMapping) ([]types.MemberRow, error) {
	data, err := Parse(r, settings)
	if err != nil {
		return nil, err
	}

	if err := checkColumns(data.Headers, columns); err != nil {
		return nil, err
	}

	members := make([]types.MemberRow, 0, len(data.Rows))
	for _, row := range data.Rows {
		members = append(members, types.MemberRow{
			ID:        row[columns.ID],
			LastName:  row[columns.LastName],
			FirstName: row[columns.FirstName],
			IBAN:      row[columns.IBAN],
			BIC:       row[columns.BIC],
			Bank:      row[columns.Bank],
			Groups:    row[columns.Groups],
		})
	}

	return members, nil
}

// checkColumns reports mapped columns that are absent from the header.
// The bank column is optional.
func checkColumns(headers []string, columns config.ColumnMapping) error {
	present := make(map[string]bool, len(headers))
	for _, header := range headers {
		present[header] = true
	}

	var missing []string
	for _, name := range []string{
		columns.ID, columns.LastName, columns.FirstName,
		columns.IBAN, columns.BIC, columns.Groups,
	} {
		if !present[name] {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing column(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

// Parse reads CSV input and returns the parsed table.
//
// PARSING PROCESS:
//  1. Decode the input from the configured encoding to UTF-8
//  2. Configure the CSV reader with the configured delimiter
//  3. Read and merge header rows (for multi-line headers)
//  4. Convert each following row to a map of header -> value
func Parse(r io.Reader, settings config.CSVSettings) (*CSVData, error) {
	decoder, err := decoderFor(settings.Encoding)
	if err != nil {
		return nil, err
	}

	var reader io.Reader = bufio.NewReader(r)
	if decoder != nil {
		reader = transform.NewReader(reader, decoder.NewDecoder())
	}

	csvReader := csv.NewReader(reader)
	configureReader(csvReader, settings)

	allRows, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}

	if len(allRows) == 0 {
		return nil, fmt.Errorf("CSV file is empty")
	}

	headers, err := extractHeaders(allRows, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to extract headers: %w", err)
	}

	dataRows := extractDataRows(allRows[settings.HeaderRows:], headers)

	return &CSVData{
		Headers:  headers,
		Rows:     dataRows,
		RowCount: len(dataRows),
	}, nil
}

// decoderFor returns the decoder for a configured encoding name, or nil for
// UTF-8 input.
func decoderFor(name string) (encoding.Encoding, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "UTF-8", "UTF8":
		return nil, nil
	case "ISO-8859-1", "ISO8859-1", "LATIN1", "LATIN-1":
		return charmap.ISO8859_1, nil
	case "WINDOWS-1252", "CP1252":
		return charmap.Windows1252, nil
	case "ISO-8859-15", "LATIN9":
		return charmap.ISO8859_15, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}

// configureReader configures the CSV reader based on the settings.
func configureReader(reader *csv.Reader, settings config.CSVSettings) {
	switch settings.Delimiter {
	case "\\t", "tab", "TAB":
		reader.Comma = '\t'
	case "|", "pipe", "PIPE":
		reader.Comma = '|'
	case ";", "semicolon":
		reader.Comma = ';'
	default:
		if len(settings.Delimiter) > 0 {
			reader.Comma = rune(settings.Delimiter[0])
		} else {
			reader.Comma = ','
		}
	}

	// Directory exports are not consistent about trailing columns.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
}

// extractHeaders extracts and merges headers from the CSV.
//
// MULTI-LINE HEADER HANDLING:
//
//	Row 1: "Member", "",     "Bank"
//	Row 2: "Id",     "IBAN", "BIC"
//	Result: "Member Id", "IBAN", "Bank BIC"
func extractHeaders(allRows [][]string, settings config.CSVSettings) ([]string, error) {
	if settings.HeaderRows <= 0 {
		return nil, fmt.Errorf("header_rows must be at least 1")
	}

	if len(allRows) < settings.HeaderRows {
		return nil, fmt.Errorf("file has fewer rows than header_rows setting")
	}

	if settings.HeaderRows == 1 {
		return cleanHeaders(allRows[0]), nil
	}

	maxCols := 0
	for i := 0; i < settings.HeaderRows; i++ {
		if len(allRows[i]) > maxCols {
			maxCols = len(allRows[i])
		}
	}

	headers := make([]string, maxCols)
	for col := 0; col < maxCols; col++ {
		var parts []string

		for row := 0; row < settings.HeaderRows; row++ {
			if col < len(allRows[row]) {
				value := strings.TrimSpace(allRows[row][col])
				if value != "" {
					parts = append(parts, value)
				}
			}
		}

		headers[col] = strings.Join(parts, " ")
	}

	return cleanHeaders(headers), nil
}

// cleanHeaders trims headers, strips a UTF-8 byte order mark and names
// empty headers after their position.
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))

	for i, header := range headers {
		if i == 0 {
			header = strings.TrimPrefix(header, "\ufeff")
		}
		header = strings.TrimSpace(header)

		if header == "" {
			header = fmt.Sprintf("Column_%d", i+1)
		}

		cleaned[i] = header
	}

	return cleaned
}

// extractDataRows converts data rows to maps, skipping blank rows.
func extractDataRows(rows [][]string, headers []string) []map[string]string {
	dataRows := make([]map[string]string, 0, len(rows))

	for _, row := range rows {
		if isRowEmpty(row) {
			continue
		}

		rowMap := make(map[string]string, len(headers))
		for colIndex, header := range headers {
			if colIndex < len(row) {
				rowMap[header] = strings.TrimSpace(row[colIndex])
			} else {
				rowMap[header] = ""
			}
		}

		dataRows = append(dataRows, rowMap)
	}

	return dataRows
}

// isRowEmpty checks if a row contains only empty values.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
