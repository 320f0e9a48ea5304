// =============================================================================
// SEPA Direct Debit Export - Converter Module
// =============================================================================
//
// This module contains the export pipeline. It orchestrates one export run,
// from the club profile and member rows to the serialized document.
//
// CONVERSION PIPELINE:
//   1. Validate the club profile (abort before touching any member)
//   2. Filter member rows into debit records and rejections
//   3. Apply the empty-result policy
//   4. Generate the pain.008.002.02 document
//
// The pipeline performs no I/O. Loading members, writing the file and
// showing rejections to the operator are left to the caller.
//
// =============================================================================

package converter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/sepa-export/internal/types"
	"github.com/ginjaninja78/sepa-export/internal/validation"
	"github.com/ginjaninja78/sepa-export/internal/xmlwriter"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrConfigurationInvalid means the club profile failed validation.
	ErrConfigurationInvalid = errors.New("club configuration invalid")

	// ErrEmptyResult means no member was accepted and empty exports are not
	// allowed.
	ErrEmptyResult = errors.New("no member qualifies for export")

	// ErrSerializationFailure means the document could not be generated.
	ErrSerializationFailure = errors.New("document serialization failed")
)

// ConfigurationError lists every problem found in the club profile.
type ConfigurationError struct {
	Problems []*validation.ValidationError
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return fmt.Sprintf("%s: %s", ErrConfigurationInvalid, strings.Join(msgs, "; "))
}

// Unwrap makes errors.Is(err, ErrConfigurationInvalid) hold.
func (e *ConfigurationError) Unwrap() error {
	return ErrConfigurationInvalid
}

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Options controls policy decisions of a run.
type Options struct {
	// AllowEmpty accepts a run in which no member qualifies and produces a
	// document with zero transactions. When false such a run fails with
	// ErrEmptyResult.
	AllowEmpty bool

	// Builder generates the document. Nil means xmlwriter.NewBuilder().
	Builder *xmlwriter.Builder
}

// Result represents the outcome of one export run.
type Result struct {
	// XML is the serialized document. Nil if the run failed.
	XML []byte

	// Records are the accepted debit records, in input order.
	Records []types.DebitRecord

	// Rejections are the skipped members, in input order.
	Rejections []types.Rejection

	// Stats contains processing statistics.
	Stats ProcessingStats
}

// ProcessingStats contains statistics about the run.
type ProcessingStats struct {
	// RowsRead is the number of member rows received.
	RowsRead int

	// Accepted is the number of debit records in the document.
	Accepted int

	// Rejected is the number of skipped members.
	Rejected int

	// ControlSum is the total amount collected.
	ControlSum decimal.Decimal
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// Export runs the pipeline for club and rows.
//
// RETURNS:
//   - (result, nil) on success; result.XML holds the document.
//   - (nil, *ConfigurationError) if the club profile is invalid.
//   - (result, ErrEmptyResult) if no member qualified and opts.AllowEmpty is
//     false; result carries the rejections so they can still be reported.
//   - (result, ErrSerializationFailure) if the document could not be built.
func Export(club types.Club, rows []types.MemberRow, opts Options) (*Result, error) {
	// =========================================================================
	// STEP 1: VALIDATE CLUB PROFILE
	// =========================================================================

	if problems := validation.ValidateClub(club); len(problems) > 0 {
		return nil, &ConfigurationError{Problems: problems}
	}

	// =========================================================================
	// STEP 2: FILTER MEMBERS
	// =========================================================================

	records, rejections := FilterRecords(club, rows)

	result := &Result{
		Records:    records,
		Rejections: rejections,
		Stats: ProcessingStats{
			RowsRead:   len(rows),
			Accepted:   len(records),
			Rejected:   len(rejections),
			ControlSum: controlSum(records),
		},
	}

	// =========================================================================
	// STEP 3: EMPTY-RESULT POLICY
	// =========================================================================

	if len(records) == 0 && !opts.AllowEmpty {
		return result, ErrEmptyResult
	}

	// =========================================================================
	// STEP 4: GENERATE XML DOCUMENT
	// =========================================================================

	builder := opts.Builder
	if builder == nil {
		builder = xmlwriter.NewBuilder()
	}

	xmlDoc, err := builder.Build(club, records)
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrSerializationFailure, err)
	}

	result.XML = xmlDoc
	return result, nil
}

// controlSum returns the exact sum of all record amounts.
func controlSum(records []types.DebitRecord) decimal.Decimal {
	total := decimal.Zero
	for _, record := range records {
		total = total.Add(record.Amount)
	}
	return total
}
