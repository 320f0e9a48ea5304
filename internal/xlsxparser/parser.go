// =============================================================================
// SEPA Direct Debit Export - XLSX Member Source
// =============================================================================
//
// This module reads member rows from a spreadsheet export of the
// membership directory.
//
// SHEET STRUCTURE (Expected Layout):
//   The first row holds the column headers; every following non-empty row
//   is one member. Header names are configurable via config.ColumnMapping.
//
//   | id | last_name | first_name | iban                   | bic      | bank | groups |
//   |----|-----------|------------|------------------------|----------|------|--------|
//   | 1  | Doe       | Jane       | DE89370400440532013000 | DEUTDEFF |      | 7,8    |
//
// Sheets whose names start with "_" are never selected automatically.
//
// =============================================================================

package xlsxparser

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/sepa-export/internal/config"
	"github.com/ginjaninja78/sepa-export/internal/types"
)

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// ParseMembers reads member rows from an XLSX file.
//
// PARAMETERS:
//   - path: The path to the XLSX file.
//   - sheet: The sheet to read. Empty selects the first visible data sheet.
//   - columns: The header name of each member field.
//
// RETURNS:
//   - The member rows in sheet order.
//   - An error if the file or sheet cannot be read or a mapped column is missing.
func ParseMembers(path, sheet string, columns config.ColumnMapping) ([]types.MemberRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open member file: %w", err)
	}
	defer f.Close()

	sheetName, err := selectSheet(f, sheet)
	if err != nil {
		return nil, err
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return parseSheet(rows, columns)
}

// selectSheet resolves the configured sheet name against the workbook.
func selectSheet(f *excelize.File, sheet string) (string, error) {
	sheetNames := f.GetSheetList()

	if sheet != "" {
		for _, name := range sheetNames {
			if name == sheet {
				return name, nil
			}
		}
		return "", fmt.Errorf("sheet '%s' not found", sheet)
	}

	for _, name := range sheetNames {
		if !strings.HasPrefix(name, "_") {
			return name, nil
		}
	}
	return "", fmt.Errorf("member file has no sheets")
}

// parseSheet maps the rows of one sheet onto member rows.
func parseSheet(rows [][]string, columns config.ColumnMapping) ([]types.MemberRow, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet is empty")
	}

	index := make(map[string]int, len(rows[0]))
	for i, header := range rows[0] {
		index[strings.TrimSpace(header)] = i
	}

	var missing []string
	for _, name := range []string{
		columns.ID, columns.LastName, columns.FirstName,
		columns.IBAN, columns.BIC, columns.Groups,
	} {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing column(s): %s", strings.Join(missing, ", "))
	}

	cell := func(row []string, header string) string {
		i, ok := index[header]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	members := make([]types.MemberRow, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isRowEmpty(row) {
			continue
		}

		members = append(members, types.MemberRow{
			ID:        cell(row, columns.ID),
			LastName:  cell(row, columns.LastName),
			FirstName: cell(row, columns.FirstName),
			IBAN:      cell(row, columns.IBAN),
			BIC:       cell(row, columns.BIC),
			Bank:      cell(row, columns.Bank),
			Groups:    cell(row, columns.Groups),
		})
	}

	return members, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// isRowEmpty checks if a row contains only empty values.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
