package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/sepa-export/internal/config"
	"github.com/ginjaninja78/sepa-export/internal/converter"
)

var runTime = time.Date(2025, time.October, 19, 14, 30, 5, 0, time.UTC)

const membersCSV = "id;last_name;first_name;iban;bic;bank;groups\n" +
	"1;Doe;Jane;DE89 3704 0044 0532 0130 00;DEUTDEFF;Deutsche Bank;7\n" +
	"2;Roe;Rich;DE89370400440532013001;DEUTDEFF;;7\n" +
	"3;Poe;Pat;DE89370400440532013000;DEUTDEFF;;99\n"

// writeFixture writes a configuration and a member CSV into a temp dir.
func writeFixture(t *testing.T, csv string) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "members.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(csv), 0o644))

	doc := `
export_dir: ` + filepath.Join(dir, "exports") + `
club:
  name: FC Example e.V.
  iban: DE89370400440532013000
  bic: DEUTDEFF
  creditor_id: DE98ZZZ09999999999
  default_purpose: Membership fee
  group_fee_mapping:
    - group_id: 7
      fee: "12.50"
members:
  source: csv
  path: ` + csvPath + `
  delimiter: ";"
`

	cfg, err := config.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	return cfg, dir
}

func TestRunExport_WritesFileAndReport(t *testing.T) {
	cfg, dir := writeFixture(t, membersCSV)
	var out, errOut bytes.Buffer

	err := runExport(context.Background(), cfg, newLogger(io.Discard, "info", false),
		exportOptions{Date: "01.11.2025", Purpose: "Season 2025"}, &out, &errOut, runTime)
	require.NoError(t, err)

	assert.Empty(t, out.String())
	warnings := errOut.String()
	assert.Contains(t, warnings, `WARNING: skipped Roe Rich (2): invalid-iban "DE89370400440532013001"`)
	assert.Contains(t, warnings, "WARNING: skipped Poe Pat (3): no-fee-group")
	assert.Contains(t, warnings, "Transactions: 1")
	assert.Contains(t, warnings, "Control sum:  12.50 EUR")

	exportPath := filepath.Join(dir, "exports", "sepa_export_20251019_143005.xml")
	data, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	doc := string(data)
	assert.Contains(t, doc, "<ReqdColltnDt>2025-11-01</ReqdColltnDt>")
	assert.Contains(t, doc, "<Nm>Doe Jane</Nm>")
	assert.Contains(t, doc, "<Ustrd>Season 2025</Ustrd>")

	_, err = os.Stat(filepath.Join(dir, "exports", "sepa_export_20251019_143005_rejections.txt"))
	assert.NoError(t, err)
}

func TestRunExport_DryRun(t *testing.T) {
	cfg, dir := writeFixture(t, membersCSV)
	var out, errOut bytes.Buffer

	err := runExport(context.Background(), cfg, newLogger(io.Discard, "info", false),
		exportOptions{Date: "2025-11-01", DryRun: true}, &out, &errOut, runTime)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out.String(), `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out.String(), "<Ustrd>Membership fee</Ustrd>")

	_, err = os.Stat(filepath.Join(dir, "exports"))
	assert.True(t, os.IsNotExist(err), "dry run stores nothing")
}

func TestRunExport_OutputDirOverride(t *testing.T) {
	cfg, _ := writeFixture(t, membersCSV)
	override := filepath.Join(t.TempDir(), "elsewhere")

	err := runExport(context.Background(), cfg, newLogger(io.Discard, "info", false),
		exportOptions{Date: "2025-11-01", OutputDir: override}, io.Discard, io.Discard, runTime)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(override, "sepa_export_20251019_143005.xml"))
	assert.NoError(t, err)
}

func TestRunExport_EmptyResult(t *testing.T) {
	onlyUnbillable := "id;last_name;first_name;iban;bic;bank;groups\n" +
		"3;Poe;Pat;DE89370400440532013000;DEUTDEFF;;99\n"

	cfg, dir := writeFixture(t, onlyUnbillable)
	var errOut bytes.Buffer

	err := runExport(context.Background(), cfg, newLogger(io.Discard, "info", false),
		exportOptions{Date: "2025-11-01"}, io.Discard, &errOut, runTime)
	require.ErrorIs(t, err, converter.ErrEmptyResult)
	assert.Contains(t, errOut.String(), "no-fee-group")

	_, statErr := os.Stat(filepath.Join(dir, "exports"))
	assert.True(t, os.IsNotExist(statErr))

	err = runExport(context.Background(), cfg, newLogger(io.Discard, "info", false),
		exportOptions{Date: "2025-11-01", AllowEmpty: true}, io.Discard, io.Discard, runTime)
	require.NoError(t, err)
}

func TestRunExport_InvalidClub(t *testing.T) {
	cfg, _ := writeFixture(t, membersCSV)
	cfg.Club.CreditorID = "nope"
	var errOut bytes.Buffer

	err := runExport(context.Background(), cfg, newLogger(io.Discard, "info", false),
		exportOptions{Date: "2025-11-01"}, io.Discard, &errOut, runTime)
	require.ErrorIs(t, err, converter.ErrConfigurationInvalid)
	assert.Contains(t, errOut.String(), "creditor_id")
	assert.NotContains(t, errOut.String(), "WARNING", "no member is touched")
}

func TestRunExport_InvalidClubStopsBeforeMembersAreRead(t *testing.T) {
	cfg, dir := writeFixture(t, membersCSV)
	cfg.Club.IBAN = "DE89370400440532013001"
	cfg.Members.Path = filepath.Join(dir, "missing.csv")
	var errOut bytes.Buffer

	err := runExport(context.Background(), cfg, newLogger(io.Discard, "info", false),
		exportOptions{Date: "2025-11-01"}, io.Discard, &errOut, runTime)

	require.ErrorIs(t, err, converter.ErrConfigurationInvalid)
	assert.NotContains(t, err.Error(), "failed to load members")
	assert.Contains(t, errOut.String(), "club IBAN checksum is invalid")
}

func TestRunExport_BadDate(t *testing.T) {
	cfg, _ := writeFixture(t, membersCSV)

	err := runExport(context.Background(), cfg, newLogger(io.Discard, "info", false),
		exportOptions{Date: "soon"}, io.Discard, io.Discard, runTime)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in a supported format")
}

func TestRunValidate(t *testing.T) {
	cfg, _ := writeFixture(t, membersCSV)
	var out bytes.Buffer

	err := runValidate(context.Background(), cfg, newLogger(io.Discard, "info", false), "2025-11-01", &out)
	require.NoError(t, err)

	report := out.String()
	assert.Contains(t, report, "Club configuration is valid.")
	assert.Contains(t, report, "Members read: 3")
	assert.Contains(t, report, "Billable:     1")
	assert.Contains(t, report, "Skipped:      2")
}

func TestRunValidate_InvalidClub(t *testing.T) {
	cfg, _ := writeFixture(t, membersCSV)
	cfg.Club.IBAN = "DE00"
	var out bytes.Buffer

	err := runValidate(context.Background(), cfg, newLogger(io.Discard, "info", false), "2025-11-01", &out)
	require.ErrorIs(t, err, converter.ErrConfigurationInvalid)
	assert.Contains(t, out.String(), "1 problem(s)")
	assert.Equal(t, 1, strings.Count(out.String(), "iban:"))
	assert.NotContains(t, err.Error(), "iban:", "problems are listed once, in the report")
}

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer

	newLogger(&buf, "warn", false).Info("hidden")
	assert.Empty(t, buf.String())

	newLogger(&buf, "warn", true).Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}
