// =============================================================================
// SEPA Direct Debit Export - Validation Engine
// =============================================================================
//
// This module validates payment credentials and the creditor profile:
//   - IBAN checksum (ISO 13616 mod-97)
//   - BIC format (ISO 9362)
//   - SEPA creditor scheme identifier format
//   - The complete club profile, before any member is processed
//
// VALIDATION STRATEGY:
//   The single-value predicates are pure functions returning bool; they are
//   used per member by the record filter. The club profile check collects
//   every problem instead of stopping at the first, so an operator can fix
//   the configuration in one pass.
//
// =============================================================================

package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ginjaninja78/sepa-export/internal/types"
)

// =============================================================================
// FORMAT PATTERNS
// =============================================================================

var (
	bicPattern        = regexp.MustCompile(`^[A-Z]{6}[A-Z0-9]{2}([A-Z0-9]{3})?$`)
	creditorIDPattern = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}ZZZ[0-9A-Z]{1,28}$`)
	ibanShapePattern  = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{1,30}$`)
)

const (
	// DateLayout is the only accepted form of the execution date.
	DateLayout = "2006-01-02"

	minIBANLength = 15
	maxIBANLength = 34

	// Max70Text / Max140Text limits of pain.008.002.02.
	maxNameLength    = 70
	maxPurposeLength = 140
)

// =============================================================================
// IBAN
// =============================================================================

// NormalizeIBAN removes spaces and upper-cases the IBAN.
func NormalizeIBAN(raw string) string {
	return strings.ToUpper(strings.ReplaceAll(raw, " ", ""))
}

// IsValidIBAN reports whether raw is a structurally valid IBAN whose mod-97
// checksum is 1. Spaces and lower-case letters are accepted.
//
// ALGORITHM:
//  1. Normalize (strip spaces, upper-case).
//  2. Reject anything outside [A-Z0-9] or outside 15..34 characters.
//  3. Move the first four characters to the end.
//  4. Replace letters with two digits (A=10 ... Z=35).
//  5. Reduce the resulting number modulo 97 digit by digit, so the
//     intermediate value never exceeds 9699 and no precision is lost.
func IsValidIBAN(raw string) bool {
	iban := NormalizeIBAN(raw)

	if len(iban) < minIBANLength || len(iban) > maxIBANLength {
		return false
	}

	for i := 0; i < len(iban); i++ {
		if !isUpperAlnum(iban[i]) {
			return false
		}
	}

	return ibanRemainder(iban) == 1
}

// ibanRemainder computes the mod-97 remainder of the rearranged IBAN.
// iban must be normalized and at least four characters long.
func ibanRemainder(iban string) int {
	rearranged := iban[4:] + iban[:4]

	remainder := 0
	for i := 0; i < len(rearranged); i++ {
		c := rearranged[i]
		if c >= 'A' && c <= 'Z' {
			remainder = (remainder*100 + int(c-'A') + 10) % 97
		} else {
			remainder = (remainder*10 + int(c-'0')) % 97
		}
	}

	return remainder
}

func isUpperAlnum(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// =============================================================================
// BIC AND CREDITOR ID
// =============================================================================

// IsValidBIC reports whether raw is an 8 or 11 character BIC.
// No normalization is applied: lower-case input is invalid.
func IsValidBIC(raw string) bool {
	return bicPattern.MatchString(raw)
}

// IsValidCreditorID reports whether raw has the SEPA creditor identifier
// shape: country, two check digits, "ZZZ", then 1-28 alphanumerics.
func IsValidCreditorID(raw string) bool {
	return creditorIDPattern.MatchString(raw)
}

// =============================================================================
// EXECUTION DATE
// =============================================================================

// executionDateLayouts are the input forms accepted for an execution date.
var executionDateLayouts = []string{
	DateLayout,
	"02.01.2006",
	"01/02/2006",
	"20060102",
}

// NormalizeExecutionDate parses a user-supplied execution date and returns
// it as YYYY-MM-DD.
func NormalizeExecutionDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("execution date is required")
	}

	for _, layout := range executionDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(DateLayout), nil
		}
	}

	return "", fmt.Errorf("execution date %q is not in a supported format (YYYY-MM-DD, DD.MM.YYYY, MM/DD/YYYY, YYYYMMDD)", raw)
}

// =============================================================================
// VALIDATION ERROR TYPES
// =============================================================================

// ValidationError describes one problem with the club profile.
type ValidationError struct {
	// Field is the club field that failed validation.
	Field string

	// Value is the offending value (may be empty).
	Value string

	// Rule is a short machine-readable rule name.
	Rule string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s (value: '%s')", e.Field, e.Message, e.Value)
}

// =============================================================================
// CLUB PROFILE VALIDATION
// =============================================================================

// ValidateClub checks every field of the creditor profile and returns all
// problems found. An empty slice means the club is usable for export.
func ValidateClub(club types.Club) []*ValidationError {
	var errs []*ValidationError

	add := func(field, value, rule, message string) {
		errs = append(errs, &ValidationError{
			Field:   field,
			Value:   value,
			Rule:    rule,
			Message: message,
		})
	}

	// Name.
	name := strings.TrimSpace(club.Name)
	switch {
	case name == "":
		add("name", "", "required", "club name is not set")
	case utf8.RuneCountInString(name) > maxNameLength:
		add("name", club.Name, "max_length", fmt.Sprintf("club name exceeds %d characters", maxNameLength))
	}

	// IBAN: shape first, then checksum.
	iban := strings.TrimSpace(club.IBAN)
	switch {
	case iban == "":
		add("iban", "", "required", "club IBAN is not set")
	case !ibanShapePattern.MatchString(iban):
		add("iban", club.IBAN, "format", "club IBAN must be upper-case without spaces")
	case !IsValidIBAN(iban):
		add("iban", club.IBAN, "checksum", "club IBAN checksum is invalid")
	}

	// BIC.
	bic := strings.TrimSpace(club.BIC)
	if bic == "" {
		add("bic", "", "required", "club BIC is not set")
	} else if !IsValidBIC(bic) {
		add("bic", club.BIC, "format", "club BIC must have 8 or 11 upper-case characters")
	}

	// Creditor scheme identifier.
	creditorID := strings.TrimSpace(club.CreditorID)
	if creditorID == "" {
		add("creditor_id", "", "required", "creditor id is not set")
	} else if !IsValidCreditorID(creditorID) {
		add("creditor_id", club.CreditorID, "format", "creditor id must look like DEkkZZZ0123456789")
	}

	// Execution date.
	if club.ExecutionDate == "" {
		add("execution_date", "", "required", "execution date is not set")
	} else if _, err := time.Parse(DateLayout, club.ExecutionDate); err != nil {
		add("execution_date", club.ExecutionDate, "date", "execution date must be YYYY-MM-DD")
	}

	// Purpose (RmtInf/Ustrd is Max140Text).
	switch {
	case strings.TrimSpace(club.Purpose) == "":
		add("purpose", "", "required", "purpose is not set")
	case utf8.RuneCountInString(club.Purpose) > maxPurposeLength:
		add("purpose", club.Purpose, "max_length", fmt.Sprintf("purpose exceeds %d characters", maxPurposeLength))
	}

	// Group fee mapping.
	if len(club.GroupFees) == 0 {
		add("group_fee_mapping", "", "required", "no group fee mapping configured")
	}
	groupIDs := make([]int, 0, len(club.GroupFees))
	for groupID := range club.GroupFees {
		groupIDs = append(groupIDs, groupID)
	}
	sort.Ints(groupIDs)

	for _, groupID := range groupIDs {
		fee := club.GroupFees[groupID]
		switch {
		case !fee.IsPositive():
			add("group_fee_mapping", fee.String(), "positive", fmt.Sprintf("fee for group %d must be greater than zero", groupID))
		case !fee.Equal(fee.Round(2)):
			add("group_fee_mapping", fee.String(), "precision", fmt.Sprintf("fee for group %d has more than two decimal places", groupID))
		}
	}

	return errs
}

// =============================================================================
// ERROR FORMATTING
// =============================================================================

// FormatErrors formats validation errors for display or logging.
func FormatErrors(errors []*ValidationError) string {
	if len(errors) == 0 {
		return "No validation errors."
	}

	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("Club configuration has %d problem(s):\n", len(errors)))

	for i, err := range errors {
		builder.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}

	return builder.String()
}
