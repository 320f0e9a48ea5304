// =============================================================================
// SEPA Direct Debit Export - Record Filter
// =============================================================================
//
// Turns raw member rows into debit records. Each row goes through three
// checks, in this order, and the first failing check decides the rejection
// reason:
//
//   1. fee resolution  -> no-fee-group
//   2. IBAN checksum   -> invalid-iban
//   3. BIC format      -> invalid-bic
//
// Accepted records and rejections both keep input order; EndToEndId
// numbering in the document depends on it. The filter never logs or prints:
// rejections are returned to the caller.
//
// =============================================================================

package converter

import (
	"strings"

	"github.com/ginjaninja78/sepa-export/internal/fees"
	"github.com/ginjaninja78/sepa-export/internal/types"
	"github.com/ginjaninja78/sepa-export/internal/validation"
	"github.com/ginjaninja78/sepa-export/internal/xmlwriter"
)

// Filter checks member rows against one club profile.
type Filter struct {
	club     types.Club
	resolver *fees.Resolver

	// Values shared by every record of the run.
	remittanceText string
	mandateID      string
}

// NewFilter creates a Filter for club. The club is assumed to be validated.
func NewFilter(club types.Club) *Filter {
	return &Filter{
		club:           club,
		resolver:       fees.NewResolver(club.GroupFees),
		remittanceText: xmlwriter.EscapeText(club.Purpose),
		mandateID:      strings.TrimSpace(club.CreditorID),
	}
}

// FilterRecords is a shorthand for NewFilter(club).Apply(rows).
func FilterRecords(club types.Club, rows []types.MemberRow) ([]types.DebitRecord, []types.Rejection) {
	return NewFilter(club).Apply(rows)
}

// Apply checks every row in order and splits them into accepted debit
// records and rejections.
func (f *Filter) Apply(rows []types.MemberRow) ([]types.DebitRecord, []types.Rejection) {
	records := make([]types.DebitRecord, 0, len(rows))
	var rejections []types.Rejection

	for _, row := range rows {
		record, rejection, ok := f.check(row)
		if !ok {
			rejections = append(rejections, rejection)
			continue
		}
		records = append(records, record)
	}

	return records, rejections
}

// check runs the three checks for a single row.
func (f *Filter) check(row types.MemberRow) (types.DebitRecord, types.Rejection, bool) {
	reject := func(reason types.ReasonCode, value string) (types.DebitRecord, types.Rejection, bool) {
		return types.DebitRecord{}, types.Rejection{
			MemberID: row.ID,
			Name:     row.DisplayName(),
			Reason:   reason,
			Value:    value,
		}, false
	}

	fee, err := f.resolver.ResolveString(row.Groups)
	if err != nil {
		return reject(types.ReasonNoFeeGroup, "")
	}

	if !validation.IsValidIBAN(row.IBAN) {
		return reject(types.ReasonInvalidIBAN, row.IBAN)
	}

	if !validation.IsValidBIC(row.BIC) {
		return reject(types.ReasonInvalidBIC, row.BIC)
	}

	return types.DebitRecord{
		Name:                 row.DisplayName(),
		IBAN:                 validation.NormalizeIBAN(row.IBAN),
		BIC:                  row.BIC,
		Amount:               fee,
		RemittanceText:       f.remittanceText,
		MandateID:            f.mandateID,
		MandateSignatureDate: f.club.ExecutionDate,
	}, types.Rejection{}, true
}
