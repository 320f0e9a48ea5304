// =============================================================================
// SEPA Direct Debit Export - XML Writer Module
// =============================================================================
//
// This module turns a club profile and its accepted debit records into an
// ISO 20022 pain.008.002.02 document. The schema is a strict xs:sequence at
// every level, so the element tree is built from ordered slices and written
// out element by element; nothing is emitted from maps.
//
// XML STRUCTURE:
//
//   <Document xmlns=... xmlns:xsi=... xsi:schemaLocation=...>
//     <CstmrDrctDbtInitn>
//       <GrpHdr>                       <!-- message header, totals -->
//         <MsgId/> <CreDtTm/> <NbOfTxs/> <CtrlSum/> <InitgPty><Nm/></InitgPty>
//       </GrpHdr>
//       <PmtInf>                       <!-- one batch, creditor data -->
//         <PmtInfId/> <PmtMtd/> <BtchBookg/> <NbOfTxs/> <CtrlSum/>
//         <PmtTpInf/> <ReqdColltnDt/> <Cdtr/> <CdtrAcct/> <CdtrAgt/>
//         <ChrgBr/> <CdtrSchmeId/>
//         <DrctDbtTxInf> ... </DrctDbtTxInf>   <!-- one per debit record -->
//       </PmtInf>
//     </CstmrDrctDbtInitn>
//   </Document>
//
// IDENTIFIERS:
//   MsgId and EndToEndId carry the generation time to the second. Each
//   EndToEndId also carries its 1-based position in the document, which makes
//   it unique within the document by construction.
//
// =============================================================================

package xmlwriter

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/sepa-export/internal/types"
)

// =============================================================================
// SCHEMA CONSTANTS
// =============================================================================

const (
	// Namespace is the pain.008.002.02 target namespace.
	Namespace = "urn:iso:std:iso:20022:tech:xsd:pain.008.002.02"

	xsiNamespace   = "http://www.w3.org/2001/XMLSchema-instance"
	schemaLocation = Namespace + " pain.008.002.02.xsd"

	currency = "EUR"

	stampLayout    = "20060102150405"
	dateTimeLayout = "2006-01-02T15:04:05Z07:00"
)

// =============================================================================
// XML GENERATION OPTIONS
// =============================================================================

// GenerateOptions contains options for XML generation.
type GenerateOptions struct {
	// Indent is the string used for indentation.
	// Default: "  " (two spaces)
	Indent string

	// XMLVersion is the XML version for the declaration.
	// Default: "1.0"
	XMLVersion string

	// Encoding is the encoding for the XML declaration.
	// Default: "UTF-8"
	Encoding string
}

// DefaultGenerateOptions returns the default generation options.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		Indent:     "  ",
		XMLVersion: "1.0",
		Encoding:   "UTF-8",
	}
}

// =============================================================================
// BUILDER
// =============================================================================

// Builder assembles pain.008.002.02 documents.
type Builder struct {
	// Now returns the generation time. Tests replace it with a fixed clock.
	Now func() time.Time

	Options GenerateOptions
}

// NewBuilder returns a Builder using the wall clock and default options.
func NewBuilder() *Builder {
	return &Builder{
		Now:     time.Now,
		Options: DefaultGenerateOptions(),
	}
}

// Generate builds a document with a default Builder.
func Generate(club types.Club, records []types.DebitRecord) ([]byte, error) {
	return NewBuilder().Build(club, records)
}

// Build creates the XML document for club and records. Records are written
// in the order given.
//
// The club must have passed validation: a club without IBAN or BIC is a
// programming error and makes Build panic. An error is returned only if a
// value cannot be represented in an XML document (invalid UTF-8 or control
// characters).
func (b *Builder) Build(club types.Club, records []types.DebitRecord) ([]byte, error) {
	if strings.TrimSpace(club.IBAN) == "" || strings.TrimSpace(club.BIC) == "" {
		panic(fmt.Sprintf("xmlwriter: club %q has no IBAN or BIC; validate the club before building", club.Name))
	}
	if b.Now == nil {
		panic("xmlwriter: Builder.Now is nil")
	}

	now := b.Now()
	doc := buildDocument(club, records, now)

	var buffer bytes.Buffer

	buffer.WriteString(fmt.Sprintf("<?xml version=\"%s\" encoding=\"%s\"?>\n",
		b.Options.XMLVersion, b.Options.Encoding))

	if err := writeElement(&buffer, doc, b.Options.Indent, 0); err != nil {
		return nil, fmt.Errorf("failed to write XML: %w", err)
	}

	return buffer.Bytes(), nil
}

// =============================================================================
// XML DOCUMENT BUILDING
// =============================================================================

// Attr is a single attribute; attributes keep their insertion order.
type Attr struct {
	Name  string
	Value string
}

// XMLElement represents a generic XML element.
type XMLElement struct {
	Name       string
	Attributes []Attr
	Value      string

	// Raw marks Value as already escaped; it is written verbatim.
	Raw bool

	Children []XMLElement
}

// buildDocument constructs the complete element tree.
func buildDocument(club types.Club, records []types.DebitRecord, now time.Time) XMLElement {
	initiation := element("CstmrDrctDbtInitn",
		buildGroupHeader(club, records, now),
		buildPaymentInfo(club, records, now),
	)

	root := element("Document", initiation)
	root.Attributes = []Attr{
		{Name: "xmlns:xsi", Value: xsiNamespace},
		{Name: "xmlns", Value: Namespace},
		{Name: "xsi:schemaLocation", Value: schemaLocation},
	}

	return root
}

// buildGroupHeader constructs GrpHdr.
func buildGroupHeader(club types.Club, records []types.DebitRecord, now time.Time) XMLElement {
	count, total := summarize(records)

	return element("GrpHdr",
		createSimpleElement("MsgId", "MSG-"+now.Format(stampLayout)),
		createSimpleElement("CreDtTm", now.Format(dateTimeLayout)),
		createSimpleElement("NbOfTxs", fmt.Sprintf("%d", count)),
		createSimpleElement("CtrlSum", formatAmount(total)),
		element("InitgPty",
			createSimpleElement("Nm", club.Name),
		),
	)
}

// buildPaymentInfo constructs PmtInf including every transaction.
func buildPaymentInfo(club types.Club, records []types.DebitRecord, now time.Time) XMLElement {
	count, total := summarize(records)

	creditorID := strings.TrimSpace(club.CreditorID)

	pmtInf := element("PmtInf",
		createSimpleElement("PmtInfId", "PMT-"+strings.ReplaceAll(club.ExecutionDate, "-", "")),
		createSimpleElement("PmtMtd", "DD"),
		createSimpleElement("BtchBookg", "true"),
		createSimpleElement("NbOfTxs", fmt.Sprintf("%d", count)),
		createSimpleElement("CtrlSum", formatAmount(total)),
		element("PmtTpInf",
			element("SvcLvl",
				createSimpleElement("Cd", "SEPA"),
			),
			createSimpleElement("SeqTp", "RCUR"),
		),
		createSimpleElement("ReqdColltnDt", club.ExecutionDate),
		element("Cdtr",
			createSimpleElement("Nm", club.Name),
		),
		element("CdtrAcct",
			element("Id",
				createSimpleElement("IBAN", strings.TrimSpace(club.IBAN)),
			),
		),
		element("CdtrAgt",
			element("FinInstnId",
				createSimpleElement("BIC", strings.TrimSpace(club.BIC)),
			),
		),
		createSimpleElement("ChrgBr", "SLEV"),
		element("CdtrSchmeId",
			element("Id",
				element("PrvtId",
					element("Othr",
						createSimpleElement("Id", creditorID),
						element("SchmeNm",
							createSimpleElement("Prtry", "SEPA"),
						),
					),
				),
			),
		),
	)

	stamp := now.Format(stampLayout)
	for i, record := range records {
		pmtInf.Children = append(pmtInf.Children, buildTransaction(record, endToEndID(stamp, i+1)))
	}

	return pmtInf
}

// buildTransaction constructs one DrctDbtTxInf.
func buildTransaction(record types.DebitRecord, e2eID string) XMLElement {
	amount := createSimpleElement("InstdAmt", formatAmount(record.Amount))
	amount.Attributes = []Attr{{Name: "Ccy", Value: currency}}

	remittance := createSimpleElement("Ustrd", record.RemittanceText)
	remittance.Raw = true

	return element("DrctDbtTxInf",
		element("PmtId",
			createSimpleElement("EndToEndId", e2eID),
		),
		amount,
		element("DrctDbtTx",
			element("MndtRltdInf",
				createSimpleElement("MndtId", strings.TrimSpace(record.MandateID)),
				createSimpleElement("DtOfSgntr", record.MandateSignatureDate),
			),
		),
		element("DbtrAgt",
			element("FinInstnId",
				createSimpleElement("BIC", strings.TrimSpace(record.BIC)),
			),
		),
		element("Dbtr",
			createSimpleElement("Nm", record.Name),
		),
		element("DbtrAcct",
			element("Id",
				createSimpleElement("IBAN", strings.TrimSpace(record.IBAN)),
			),
		),
		element("RmtInf", remittance),
	)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// summarize returns the transaction count and the exact control sum.
func summarize(records []types.DebitRecord) (int, decimal.Decimal) {
	total := decimal.Zero
	for _, record := range records {
		total = total.Add(record.Amount)
	}
	return len(records), total
}

// formatAmount renders an amount with exactly two decimals, "." separator
// and no grouping.
func formatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// endToEndID returns the identifier of the seq-th transaction (1-based).
func endToEndID(stamp string, seq int) string {
	return fmt.Sprintf("E2E-%s-%06d", stamp, seq)
}

// element creates a container element.
func element(name string, children ...XMLElement) XMLElement {
	return XMLElement{
		Name:     name,
		Children: children,
	}
}

// createSimpleElement creates a simple XML element with a text value.
func createSimpleElement(name, value string) XMLElement {
	return XMLElement{
		Name:  name,
		Value: value,
	}
}

// writeElement writes an XML element to the buffer with indentation.
func writeElement(buffer *bytes.Buffer, el XMLElement, indent string, level int) error {
	buffer.WriteString(strings.Repeat(indent, level))

	// Opening tag.
	buffer.WriteString("<")
	buffer.WriteString(el.Name)

	for _, attr := range el.Attributes {
		if err := checkText(attr.Value); err != nil {
			return fmt.Errorf("attribute %s of <%s>: %w", attr.Name, el.Name, err)
		}
		buffer.WriteString(fmt.Sprintf(" %s=\"%s\"", attr.Name, EscapeText(attr.Value)))
	}

	if len(el.Children) == 0 && el.Value == "" {
		buffer.WriteString("/>\n")
		return nil
	}

	buffer.WriteString(">")

	if len(el.Children) == 0 {
		if err := checkText(el.Value); err != nil {
			return fmt.Errorf("<%s>: %w", el.Name, err)
		}
		if el.Raw {
			buffer.WriteString(el.Value)
		} else {
			buffer.WriteString(EscapeText(el.Value))
		}
	} else {
		buffer.WriteString("\n")

		for _, child := range el.Children {
			if err := writeElement(buffer, child, indent, level+1); err != nil {
				return err
			}
		}

		buffer.WriteString(strings.Repeat(indent, level))
	}

	// Closing tag.
	buffer.WriteString("</")
	buffer.WriteString(el.Name)
	buffer.WriteString(">\n")

	return nil
}

// checkText rejects values that cannot appear in an XML 1.0 document.
func checkText(s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("value is not valid UTF-8")
	}
	for _, r := range s {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return fmt.Errorf("value contains control character %U", r)
		}
	}
	return nil
}

// EscapeText escapes the five XML special characters.
func EscapeText(s string) string {
	var buffer bytes.Buffer

	for _, r := range s {
		switch r {
		case '&':
			buffer.WriteString("&amp;")
		case '<':
			buffer.WriteString("&lt;")
		case '>':
			buffer.WriteString("&gt;")
		case '"':
			buffer.WriteString("&quot;")
		case '\'':
			buffer.WriteString("&apos;")
		default:
			buffer.WriteRune(r)
		}
	}

	return buffer.String()
}
