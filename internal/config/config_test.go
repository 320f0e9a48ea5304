package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
export_dir: ./exports
log_level: debug
club:
  name: FC Example e.V.
  iban: DE89370400440532013000
  bic: DEUTDEFF
  creditor_id: DE98ZZZ09999999999
  default_purpose: Membership fee
  group_fee_mapping:
    - group_id: 7
      fee: "12.50"
    - group_id: 8
      fee: "30"
members:
  source: csv
  path: ./members.csv
  delimiter: ";"
  encoding: ISO-8859-1
  columns:
    last_name: Name
`

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "./exports", cfg.ExportDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "localhost:8080", cfg.ListenAddr)
	assert.False(t, cfg.AllowEmptyExport)

	assert.Equal(t, SourceCSV, cfg.Members.Source)
	assert.Equal(t, ";", cfg.Members.Delimiter)
	assert.Equal(t, "ISO-8859-1", cfg.Members.Encoding)
	assert.Equal(t, 1, cfg.Members.HeaderRows)
	assert.Equal(t, "Name", cfg.Members.Columns.LastName)
	assert.Equal(t, "first_name", cfg.Members.Columns.FirstName)
	assert.Equal(t, "groups", cfg.Members.Columns.Groups)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse(strings.NewReader(sampleConfig + "\nexport_directory: ./x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestParse_RejectsDuplicateGroup(t *testing.T) {
	doc := `
club:
  group_fee_mapping:
    - group_id: 7
      fee: "12.50"
    - group_id: 7
      fee: "15.00"
members:
  path: members.csv
`
	_, err := Parse(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "group 7 is listed more than once")
}

func TestParse_RejectsMalformedFee(t *testing.T) {
	doc := `
club:
  group_fee_mapping:
    - group_id: 7
      fee: "12,50"
members:
  path: members.csv
`
	_, err := Parse(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "group 7")
}

func TestParse_SourceRequirements(t *testing.T) {
	tests := []struct {
		name    string
		members string
		wantErr string
	}{
		{"csv without path", "source: csv", "members.path is required"},
		{"sqlite without groups", "source: sqlite\n  path: club.db", "members.groups is required"},
		{"postgres without dsn", "source: postgres\n  groups: [7]", "members.dsn is required"},
		{"unknown source", "source: ldap\n  path: x", "is not one of csv"},
		{"postgres", "source: postgres\n  dsn: postgres://localhost/club\n  groups: [7]", ""},
		{"xlsx", "source: xlsx\n  path: members.xlsx\n  sheet: Members", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader("members:\n  " + tt.members + "\n"))
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_InvalidLogLevel(t *testing.T) {
	_, err := Parse(strings.NewReader("log_level: loud\nmembers:\n  path: m.csv\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "FC Example e.V.", cfg.Club.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestClubProfile(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	club, err := cfg.ClubProfile("2025-10-01", "")
	require.NoError(t, err)

	assert.Equal(t, "FC Example e.V.", club.Name)
	assert.Equal(t, "DE89370400440532013000", club.IBAN)
	assert.Equal(t, "2025-10-01", club.ExecutionDate)
	assert.Equal(t, "Membership fee", club.Purpose)
	require.Len(t, club.GroupFees, 2)
	assert.Equal(t, "12.50", club.GroupFees[7].StringFixed(2))
	assert.Equal(t, "30.00", club.GroupFees[8].StringFixed(2))

	club, err = cfg.ClubProfile("2025-10-01", "Season 2026")
	require.NoError(t, err)
	assert.Equal(t, "Season 2026", club.Purpose)
}
