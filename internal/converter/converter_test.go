package converter

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/sepa-export/internal/types"
	"github.com/ginjaninja78/sepa-export/internal/xmlwriter"
)

func testClub() types.Club {
	return types.Club{
		Name:          "FC Example e.V.",
		IBAN:          "DE89370400440532013000",
		BIC:           "DEUTDEFF",
		CreditorID:    "DE98ZZZ09999999999",
		ExecutionDate: "2025-10-01",
		Purpose:       "Membership 2025",
		GroupFees: map[int]decimal.Decimal{
			7: decimal.RequireFromString("12.50"),
			8: decimal.RequireFromString("30.00"),
		},
	}
}

func fixedOptions() Options {
	b := xmlwriter.NewBuilder()
	b.Now = func() time.Time { return time.Date(2025, time.September, 20, 8, 0, 0, 0, time.UTC) }
	return Options{Builder: b}
}

func TestFilterRecords_RejectionReasons(t *testing.T) {
	rows := []types.MemberRow{
		{ID: "A", LastName: "Alpha", FirstName: "Ann", IBAN: "DE89370400440532013000", BIC: "DEUTDEFF", Groups: "99"},
		{ID: "B", LastName: "Beta", FirstName: "Ben", IBAN: "DE89370400440532013001", BIC: "DEUTDEFF", Groups: "7"},
		{ID: "C", LastName: "Gamma", FirstName: "Cid", IBAN: "DE89370400440532013000", BIC: "DEUTDEFF", Groups: "7"},
	}

	records, rejections := FilterRecords(testClub(), rows)

	require.Len(t, records, 1)
	assert.Equal(t, "Gamma Cid", records[0].Name)

	require.Len(t, rejections, 2)
	assert.Equal(t, types.Rejection{MemberID: "A", Name: "Alpha Ann", Reason: types.ReasonNoFeeGroup}, rejections[0])
	assert.Equal(t, types.Rejection{
		MemberID: "B", Name: "Beta Ben", Reason: types.ReasonInvalidIBAN, Value: "DE89370400440532013001",
	}, rejections[1])
}

func TestFilterRecords_CheckOrder(t *testing.T) {
	// A row failing every check is reported for the fee first.
	rows := []types.MemberRow{
		{ID: "1", IBAN: "bogus", BIC: "bogus", Groups: ""},
		{ID: "2", IBAN: "bogus", BIC: "bogus", Groups: "7"},
		{ID: "3", IBAN: "DE89370400440532013000", BIC: "bogus", Groups: "7"},
	}

	_, rejections := FilterRecords(testClub(), rows)

	require.Len(t, rejections, 3)
	assert.Equal(t, types.ReasonNoFeeGroup, rejections[0].Reason)
	assert.Equal(t, types.ReasonInvalidIBAN, rejections[1].Reason)
	assert.Equal(t, types.ReasonInvalidBIC, rejections[2].Reason)
	assert.Equal(t, "bogus", rejections[2].Value)
}

func TestFilterRecords_BICIsCheckedAsGiven(t *testing.T) {
	rows := []types.MemberRow{
		{ID: "1", IBAN: "DE89370400440532013000", BIC: " DEUTDEFF", Groups: "7"},
		{ID: "2", IBAN: "DE89370400440532013000", BIC: "deutdeff", Groups: "7"},
	}

	records, rejections := FilterRecords(testClub(), rows)

	assert.Empty(t, records)
	require.Len(t, rejections, 2)
	assert.Equal(t, types.Rejection{MemberID: "1", Name: " ", Reason: types.ReasonInvalidBIC, Value: " DEUTDEFF"}, rejections[0])
	assert.Equal(t, types.ReasonInvalidBIC, rejections[1].Reason)
}

func TestFilterRecords_BuildsRecord(t *testing.T) {
	club := testClub()
	club.Purpose = "Fees & dues <2025>"
	club.CreditorID = " DE98ZZZ09999999999 "

	rows := []types.MemberRow{{
		ID:        "42",
		LastName:  "Doe",
		FirstName: "Jane",
		IBAN:      "de89 3704 0044 0532 0130 00",
		BIC:       "DEUTDEFF500",
		Groups:    "3, 8,7",
	}}

	records, rejections := FilterRecords(club, rows)

	require.Empty(t, rejections)
	require.Len(t, records, 1)
	record := records[0]
	assert.Equal(t, "Doe Jane", record.Name)
	assert.Equal(t, "DE89370400440532013000", record.IBAN)
	assert.Equal(t, "DEUTDEFF500", record.BIC)
	assert.Equal(t, "30.00", record.Amount.StringFixed(2), "first listed group with a fee wins")
	assert.Equal(t, "Fees &amp; dues &lt;2025&gt;", record.RemittanceText)
	assert.Equal(t, "DE98ZZZ09999999999", record.MandateID)
	assert.Equal(t, "2025-10-01", record.MandateSignatureDate)
}

func TestFilterRecords_KeepsInputOrder(t *testing.T) {
	var rows []types.MemberRow
	for _, name := range []string{"Zed", "Amy", "Mo", "Bob"} {
		rows = append(rows, types.MemberRow{
			ID: name, LastName: name, FirstName: "X",
			IBAN: "DE89370400440532013000", BIC: "DEUTDEFF", Groups: "7",
		})
	}

	records, _ := FilterRecords(testClub(), rows)

	var names []string
	for _, r := range records {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"Zed X", "Amy X", "Mo X", "Bob X"}, names)
}

func TestExport_SingleMember(t *testing.T) {
	rows := []types.MemberRow{{
		ID: "1", LastName: "Doe", FirstName: "Jane",
		IBAN: "DE89370400440532013000", BIC: "DEUTDEFF", Groups: "7",
	}}

	result, err := Export(testClub(), rows, fixedOptions())

	require.NoError(t, err)
	require.NotNil(t, result)
	xml := string(result.XML)
	assert.Contains(t, xml, `<InstdAmt Ccy="EUR">12.50</InstdAmt>`)
	assert.Contains(t, xml, "<Nm>Doe Jane</Nm>")
	assert.Contains(t, xml, "<IBAN>DE89370400440532013000</IBAN>")
	assert.Equal(t, 2, strings.Count(xml, "<NbOfTxs>1</NbOfTxs>"))
	assert.Equal(t, 2, strings.Count(xml, "<CtrlSum>12.50</CtrlSum>"))

	assert.Equal(t, 1, result.Stats.RowsRead)
	assert.Equal(t, 1, result.Stats.Accepted)
	assert.Zero(t, result.Stats.Rejected)
	assert.True(t, result.Stats.ControlSum.Equal(decimal.RequireFromString("12.50")))
}

func TestExport_FirstMatchingGroupWithElevenCharacterBIC(t *testing.T) {
	club := testClub()
	club.GroupFees = map[int]decimal.Decimal{7: decimal.RequireFromString("12.50")}

	rows := []types.MemberRow{{
		ID: "1", LastName: "Doe", FirstName: "Jane",
		IBAN: "DE89370400440532013000", BIC: "DEUTDEFF500", Groups: "3,7",
	}}

	result, err := Export(club, rows, fixedOptions())

	require.NoError(t, err)
	assert.Empty(t, result.Rejections)
	xml := string(result.XML)
	assert.Contains(t, xml, `<InstdAmt Ccy="EUR">12.50</InstdAmt>`)
	assert.Contains(t, xml, "<BIC>DEUTDEFF500</BIC>")
	assert.Contains(t, xml, "<Nm>Doe Jane</Nm>")
	assert.Equal(t, 2, strings.Count(xml, "<CtrlSum>12.50</CtrlSum>"))
}

func TestExport_ReportsRejectionsAlongsideDocument(t *testing.T) {
	rows := []types.MemberRow{
		{ID: "A", LastName: "A", FirstName: "A", IBAN: "DE89370400440532013000", BIC: "DEUTDEFF", Groups: "99"},
		{ID: "B", LastName: "B", FirstName: "B", IBAN: "DE89370400440532013001", BIC: "DEUTDEFF", Groups: "7"},
		{ID: "C", LastName: "C", FirstName: "C", IBAN: "DE89370400440532013000", BIC: "DEUTDEFF", Groups: "7"},
	}

	result, err := Export(testClub(), rows, fixedOptions())

	require.NoError(t, err)
	assert.Equal(t, 3, result.Stats.RowsRead)
	assert.Equal(t, 1, result.Stats.Accepted)
	assert.Equal(t, 2, result.Stats.Rejected)
	assert.Equal(t, 1, strings.Count(string(result.XML), "<DrctDbtTxInf>"))
	require.Len(t, result.Rejections, 2)
	assert.Equal(t, "A", result.Rejections[0].MemberID)
	assert.Equal(t, "B", result.Rejections[1].MemberID)
}

func TestExport_InvalidClub(t *testing.T) {
	club := testClub()
	club.IBAN = "DE89370400440532013001"
	club.BIC = ""

	result, err := Export(club, []types.MemberRow{{ID: "1"}}, fixedOptions())

	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigurationInvalid))

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Len(t, cfgErr.Problems, 2)
	assert.Equal(t, "iban", cfgErr.Problems[0].Field)
	assert.Equal(t, "bic", cfgErr.Problems[1].Field)
	assert.Contains(t, err.Error(), "club configuration invalid")
}

func TestExport_EmptyResult(t *testing.T) {
	rows := []types.MemberRow{
		{ID: "A", LastName: "A", FirstName: "A", IBAN: "DE89370400440532013000", BIC: "DEUTDEFF", Groups: "99"},
	}

	result, err := Export(testClub(), rows, fixedOptions())

	require.ErrorIs(t, err, ErrEmptyResult)
	require.NotNil(t, result)
	assert.Nil(t, result.XML)
	assert.Len(t, result.Rejections, 1)
}

func TestExport_EmptyResultAllowed(t *testing.T) {
	opts := fixedOptions()
	opts.AllowEmpty = true

	result, err := Export(testClub(), nil, opts)

	require.NoError(t, err)
	xml := string(result.XML)
	assert.Equal(t, 2, strings.Count(xml, "<NbOfTxs>0</NbOfTxs>"))
	assert.Equal(t, 2, strings.Count(xml, "<CtrlSum>0.00</CtrlSum>"))
	assert.NotContains(t, xml, "<DrctDbtTxInf>")
}

func TestExport_SerializationFailure(t *testing.T) {
	rows := []types.MemberRow{{
		ID: "1", LastName: "Doe\x01", FirstName: "Jane",
		IBAN: "DE89370400440532013000", BIC: "DEUTDEFF", Groups: "7",
	}}

	result, err := Export(testClub(), rows, fixedOptions())

	require.ErrorIs(t, err, ErrSerializationFailure)
	require.NotNil(t, result)
	assert.Nil(t, result.XML)
}

func TestExport_DefaultBuilder(t *testing.T) {
	rows := []types.MemberRow{{
		ID: "1", LastName: "Doe", FirstName: "Jane",
		IBAN: "DE89370400440532013000", BIC: "DEUTDEFF", Groups: "7",
	}}

	result, err := Export(testClub(), rows, Options{})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(result.XML), `<?xml version="1.0" encoding="UTF-8"?>`))
}
