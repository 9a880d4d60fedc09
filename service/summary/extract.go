// Package summary extracts structured transaction proposals from free-form
// assistant replies.
//
// The agent signals a proposal with a fixed directive of the form
//
//	Rincian Transaksi: [Ke: <recipient> | Nominal: <amount> | Kategori: <category>]
//
// (labels vary by deployment language). Extraction is deliberately fail-closed:
// any deviation from the directive grammar, including an unparseable amount,
// yields no proposal rather than a partial one.
package summary

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Locale defines the directive marker phrase and field labels the agent is
// configured to emit.
type Locale struct {
	Marker         string
	RecipientLabel string
	AmountLabel    string
	CategoryLabel  string
}

var (
	// LocaleEnglish matches the documented directive contract.
	LocaleEnglish = Locale{
		Marker:         "Transaction Details",
		RecipientLabel: "To",
		AmountLabel:    "Nominal",
		CategoryLabel:  "Category",
	}

	// LocaleIndonesian matches the production KASRA deployment.
	LocaleIndonesian = Locale{
		Marker:         "Rincian Transaksi",
		RecipientLabel: "Ke",
		AmountLabel:    "Nominal",
		CategoryLabel:  "Kategori",
	}
)

const (
	// PlaceholderRecipient stands in when the recipient label is present but empty.
	PlaceholderRecipient = "(Recipient)"

	// DefaultCategory labels proposals the agent did not categorize.
	DefaultCategory = "Uncategorized Expense"
)

// hexAddressRegex is the strict account-address pattern: 0x plus exactly 40
// hex digits. Anything looser (no prefix, wrong length) is treated as a
// natural-language recipient name.
var hexAddressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsHexAddress reports whether s is a well-formed 20-byte account address.
func IsHexAddress(s string) bool {
	return hexAddressRegex.MatchString(s)
}

// Summary is the structured transaction proposal derived from a reply.
// It is always re-derived from the message text, never cached, so it is
// trivially consistent with the message it annotates.
type Summary struct {
	RecipientLabel   string
	RecipientAddress common.Address
	Amount           int64
	Category         string
}

// Extractor scans assistant replies for transaction directives.
type Extractor struct {
	locale      Locale
	fallback    common.Address
	hasFallback bool

	directiveRegex *regexp.Regexp
	recipientRegex *regexp.Regexp
	amountRegex    *regexp.Regexp
	categoryRegex  *regexp.Regexp
}

// NewExtractor builds an extractor for the given locale. fallbackRecipient is
// substituted when the agent names a recipient in natural language rather than
// emitting an address; if it is not itself a well-formed address, the all-zero
// address is used instead.
func NewExtractor(locale Locale, fallbackRecipient string) *Extractor {
	e := &Extractor{
		locale:         locale,
		directiveRegex: directiveRegex(locale.Marker),
		recipientRegex: fieldRegex(locale.RecipientLabel),
		amountRegex:    fieldRegex(locale.AmountLabel),
		categoryRegex:  fieldRegex(locale.CategoryLabel),
	}
	if IsHexAddress(fallbackRecipient) {
		e.fallback = common.HexToAddress(fallbackRecipient)
		e.hasFallback = true
	}
	return e
}

// directiveRegex matches "<marker> : [<payload>]" anywhere in the reply,
// capturing the payload up to the first closing bracket. Whitespace between
// the marker words and around the colon is flexible, but the colon itself is
// mandatory: a bare "<marker> [...]" is prose, not a directive.
func directiveRegex(marker string) *regexp.Regexp {
	words := strings.Fields(marker)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)` + strings.Join(words, `\s+`) + `\s*:\s*\[([^\]]*)\]`)
}

// fieldRegex matches "<label> : <value>" where the value runs to the next
// field separator. Fields are located independently by label, so their order
// within the payload does not matter.
func fieldRegex(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(label) + `\s*:\s*([^|]+)`)
}

// Extract scans replyText for a transaction directive and returns the
// structured summary, or nil when the reply contains no well-formed proposal.
// It is a pure function of the text: re-extraction always yields an identical
// result.
func (e *Extractor) Extract(replyText string) *Summary {
	m := e.directiveRegex.FindStringSubmatch(replyText)
	if m == nil {
		// The marker may appear in prose without a directive attached; only a
		// full "<marker>: [...]" form carries a proposal.
		return nil
	}
	inner := m[1]

	recipient := strings.TrimSpace(firstGroup(e.recipientRegex, inner))
	if recipient == "" {
		recipient = PlaceholderRecipient
	}

	category := strings.TrimSpace(firstGroup(e.categoryRegex, inner))
	if category == "" {
		category = DefaultCategory
	}

	rawAmount := strings.TrimSpace(firstGroup(e.amountRegex, inner))
	amount, err := ParseAmount(rawAmount)
	if err != nil {
		// A proposal must have a well-formed amount or it is not a proposal.
		return nil
	}

	return &Summary{
		RecipientLabel:   recipient,
		RecipientAddress: e.resolveAddress(recipient),
		Amount:           amount,
		Category:         category,
	}
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

// resolveAddress resolves the recipient label to a 20-byte account address.
// A strict hex address passes through verbatim; otherwise the configured
// fallback is used, else the all-zero address. The system deliberately does
// not perform off-chain name resolution.
func (e *Extractor) resolveAddress(label string) common.Address {
	if IsHexAddress(label) {
		return common.HexToAddress(label)
	}
	if e.hasFallback {
		return e.fallback
	}
	return common.Address{}
}
