// =============================================================================
// SEPA Direct Debit Export - Membership Directory
// =============================================================================
//
// Reads billable members straight from the membership database. Two
// backends are supported: SQLite (a local copy of the directory) and
// PostgreSQL.
//
// SCHEMA:
//   members(id, published, last_name, first_name, iban, bic, bank)
//   member_category(id, member_id, catid)
//
// A member is billable if it is published and belongs to at least one of
// the selected groups. The groups reported for a member are ALL of its
// groups, in the order they were assigned (member_category.id), because
// the fee resolver picks the first one that has a fee.
//
// =============================================================================

package directory

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/ginjaninja78/sepa-export/internal/types"
)

// dialect captures the differences between the supported databases.
type dialect struct {
	driver string
	schema []string
}

// placeholder returns the n-th (1-based) bind parameter.
func (d dialect) placeholder(n int) string {
	if d.driver == "postgres" {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

var dialects = map[string]dialect{
	"sqlite": {
		driver: "sqlite",
		schema: []string{
			`PRAGMA foreign_keys = ON;`,
			`CREATE TABLE IF NOT EXISTS members (
				id INTEGER PRIMARY KEY,
				published INTEGER NOT NULL DEFAULT 1,
				last_name TEXT,
				first_name TEXT,
				iban TEXT,
				bic TEXT,
				bank TEXT
			);`,
			`CREATE TABLE IF NOT EXISTS member_category (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				member_id INTEGER NOT NULL REFERENCES members(id),
				catid INTEGER NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS idx_member_category_member ON member_category(member_id);`,
		},
	},
	"postgres": {
		driver: "postgres",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS members (
				id BIGINT PRIMARY KEY,
				published INTEGER NOT NULL DEFAULT 1,
				last_name TEXT,
				first_name TEXT,
				iban TEXT,
				bic TEXT,
				bank TEXT
			);`,
			`CREATE TABLE IF NOT EXISTS member_category (
				id BIGSERIAL PRIMARY KEY,
				member_id BIGINT NOT NULL REFERENCES members(id),
				catid INTEGER NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS idx_member_category_member ON member_category(member_id);`,
		},
	},
}

// Directory is a membership database connection.
type Directory struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the membership database. driver is "sqlite" (dsn is a
// file path) or "postgres" (dsn is a connection string).
func Open(driver, dsn string) (*Directory, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("directory: unsupported driver %q", driver)
	}
	if dsn == "" {
		return nil, fmt.Errorf("directory: dsn is required")
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("directory: open: %w", err)
	}
	if d.driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	return &Directory{db: db, dialect: d}, nil
}

// Close closes the connection.
func (d *Directory) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Migrate creates the directory tables if they do not exist.
func (d *Directory) Migrate(ctx context.Context) error {
	for _, statement := range d.dialect.schema {
		if _, err := d.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("directory: migrate: %w", err)
		}
	}
	return nil
}

// ActiveMembers returns the published members belonging to at least one of
// groupIDs, ordered by member id. Each row's Groups lists every group of the
// member, comma-joined, in assignment order.
func (d *Directory) ActiveMembers(ctx context.Context, groupIDs []int) ([]types.MemberRow, error) {
	if len(groupIDs) == 0 {
		return nil, fmt.Errorf("directory: no groups selected")
	}

	placeholders := make([]string, len(groupIDs))
	args := make([]any, len(groupIDs))
	for i, id := range groupIDs {
		placeholders[i] = d.dialect.placeholder(i + 1)
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT m.id,
		       COALESCE(m.last_name, ''), COALESCE(m.first_name, ''),
		       COALESCE(m.iban, ''), COALESCE(m.bic, ''), COALESCE(m.bank, ''),
		       c.catid
		FROM members m
		JOIN member_category c ON c.member_id = m.id
		WHERE m.published = 1
		  AND m.id IN (SELECT s.member_id FROM member_category s WHERE s.catid IN (%s))
		ORDER BY m.id, c.id`, strings.Join(placeholders, ", "))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("directory: query members: %w", err)
	}
	defer rows.Close()

	var (
		members []types.MemberRow
		groups  []string
		lastID  int64
	)
	flush := func() {
		if len(members) > 0 {
			members[len(members)-1].Groups = strings.Join(groups, ",")
		}
		groups = groups[:0]
	}

	for rows.Next() {
		var (
			id     int64
			member types.MemberRow
			catID  int
		)
		if err := rows.Scan(&id, &member.LastName, &member.FirstName,
			&member.IBAN, &member.BIC, &member.Bank, &catID); err != nil {
			return nil, fmt.Errorf("directory: scan member: %w", err)
		}

		if len(members) == 0 || id != lastID {
			flush()
			member.ID = strconv.FormatInt(id, 10)
			members = append(members, member)
			lastID = id
		}
		groups = append(groups, strconv.Itoa(catID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: read members: %w", err)
	}
	flush()

	return members, nil
}
