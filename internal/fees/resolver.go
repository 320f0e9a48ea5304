// =============================================================================
// SEPA Direct Debit Export - Fee Resolver
// =============================================================================
//
// Maps the set of directory groups a member belongs to onto the single fee
// that is collected from them.
//
// TIE-BREAK:
//   The member's groups are scanned in the order the directory lists them
//   and the first group present in the fee table wins. This is neither the
//   lowest nor the highest fee; existing exports depend on this behavior.
//
// =============================================================================

package fees

import (
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNoFeeGroupAssigned is returned when none of the member's groups has a fee.
var ErrNoFeeGroupAssigned = errors.New("no fee group assigned")

// Resolver resolves member fees against a group -> fee table.
type Resolver struct {
	table map[int]decimal.Decimal
}

// NewResolver creates a Resolver for the given table. The table is not copied
// and must not be modified while the Resolver is in use.
func NewResolver(table map[int]decimal.Decimal) *Resolver {
	return &Resolver{table: table}
}

// Resolve returns the fee of the first group in groups that has an entry in
// the table, or ErrNoFeeGroupAssigned.
func (r *Resolver) Resolve(groups []int) (decimal.Decimal, error) {
	for _, groupID := range groups {
		if fee, ok := r.table[groupID]; ok {
			return fee, nil
		}
	}
	return decimal.Zero, ErrNoFeeGroupAssigned
}

// ResolveString parses a comma-joined group list and resolves it.
func (r *Resolver) ResolveString(groups string) (decimal.Decimal, error) {
	return r.Resolve(ParseGroupIDs(groups))
}

// ParseGroupIDs splits a comma-joined group list ("3, 7,7,,x") into integer
// ids. Blanks, non-numeric entries and repeated ids are dropped; the order of
// first appearance is kept.
func ParseGroupIDs(s string) []int {
	var ids []int
	seen := make(map[int]bool)

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, err := strconv.Atoi(part)
		if err != nil {
			continue
		}

		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	return ids
}
