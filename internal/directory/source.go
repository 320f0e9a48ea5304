package directory

import (
	"context"
	"fmt"

	"github.com/ginjaninja78/sepa-export/internal/config"
	"github.com/ginjaninja78/sepa-export/internal/csvparser"
	"github.com/ginjaninja78/sepa-export/internal/types"
	"github.com/ginjaninja78/sepa-export/internal/xlsxparser"
)

// LoadMembers reads member rows from the configured source.
func LoadMembers(ctx context.Context, src config.MemberSource) ([]types.MemberRow, error) {
	switch src.Source {
	case config.SourceCSV:
		return csvparser.ParseFile(src.Path, src.CSVSettings, src.Columns)

	case config.SourceXLSX:
		return xlsxparser.ParseMembers(src.Path, src.Sheet, src.Columns)

	case config.SourceSQLite, config.SourcePostgres:
		dsn := src.DSN
		if src.Source == config.SourceSQLite {
			dsn = src.Path
		}

		dir, err := Open(src.Source, dsn)
		if err != nil {
			return nil, err
		}
		defer dir.Close()

		return dir.ActiveMembers(ctx, src.Groups)

	default:
		return nil, fmt.Errorf("unknown member source %q", src.Source)
	}
}
