// =============================================================================
// SEPA Direct Debit Export - Shared Types
// =============================================================================
//
// This package contains shared types used across multiple modules to avoid
// import cycles. Types defined here are used by:
//   - validation
//   - fees
//   - converter
//   - xmlwriter
//   - csvparser / xlsxparser / directory (member sources)
//
// =============================================================================

package types

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// CREDITOR PROFILE
// =============================================================================

// Club is the creditor profile for one export run. It is assembled once at
// the boundary (config file + run parameters) and never modified afterwards.
type Club struct {
	// Name is the display name of the club (InitgPty/Nm and Cdtr/Nm).
	Name string

	// IBAN is the account the collected fees are credited to.
	IBAN string

	// BIC is the club bank's business identifier code.
	BIC string

	// CreditorID is the SEPA creditor scheme identifier,
	// e.g. "DE98ZZZ09999999999".
	CreditorID string

	// ExecutionDate is the requested collection date, normalized to YYYY-MM-DD.
	ExecutionDate string

	// Purpose is the unescaped remittance text printed on every debit.
	Purpose string

	// GroupFees maps a directory group id to the fee charged for it.
	GroupFees map[int]decimal.Decimal
}

// =============================================================================
// MEMBER INPUT
// =============================================================================

// MemberRow is one billable member as supplied by the member directory.
type MemberRow struct {
	ID        string
	LastName  string
	FirstName string
	IBAN      string
	BIC       string

	// Bank is the bank name. It is only used for display.
	Bank string

	// Groups is the comma-joined list of group ids, in directory order.
	Groups string
}

// DisplayName returns "LastName FirstName", the form used in the document
// and in rejection reports.
func (m MemberRow) DisplayName() string {
	return m.LastName + " " + m.FirstName
}

// =============================================================================
// EXPORT RECORDS
// =============================================================================

// DebitRecord is a member that passed every check and will be collected.
type DebitRecord struct {
	// Name is the debtor name (Dbtr/Nm).
	Name string

	// IBAN is the normalized debtor IBAN.
	IBAN string

	// BIC is the debtor bank's BIC.
	BIC string

	// Amount is the fee in EUR.
	Amount decimal.Decimal

	// RemittanceText is the purpose text, already XML-escaped.
	RemittanceText string

	// MandateID is the mandate reference (the club creditor id).
	MandateID string

	// MandateSignatureDate is the date of signature, YYYY-MM-DD.
	MandateSignatureDate string
}

// ReasonCode explains why a member was left out of the export.
type ReasonCode string

const (
	ReasonNoFeeGroup  ReasonCode = "no-fee-group"
	ReasonInvalidIBAN ReasonCode = "invalid-iban"
	ReasonInvalidBIC  ReasonCode = "invalid-bic"
)

// Rejection reports a skipped member. Rejections never reach the document.
type Rejection struct {
	MemberID string
	Name     string
	Reason   ReasonCode

	// Value is the offending IBAN or BIC; empty for ReasonNoFeeGroup.
	Value string
}
