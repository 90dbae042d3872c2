// Package incontext rewrites GraphQL documents to carry an @inContext
// directive built from the active request context.
//
// DESIGN: This is deliberately a text transformation, not a parser. Only the
// operation header (the substring before the first '{') is inspected and
// rewritten; variable declarations, selection sets, comments and any other
// directives elsewhere in the document are left byte-for-byte intact.
package incontext

import (
	"fmt"
	"regexp"
	"strings"
)

// AnonymousOperationName is the name synthesized for documents that start
// with a bare selection set, since a directive needs a named operation to
// attach to.
const AnonymousOperationName = "GeneratedQuery"

// BuyerIdentity identifies the buyer on whose behalf a request runs.
type BuyerIdentity struct {
	CustomerAccessToken string
	Email               string
	Phone               string
	CountryCode         string // Enum token, rendered unquoted
}

// RequestContext carries the localization and identity attached to requests.
type RequestContext struct {
	Country       string // Enum token, rendered unquoted
	Language      string // Enum token, rendered unquoted
	BuyerIdentity *BuyerIdentity
}

// IsEmpty reports whether the context would produce no directive at all.
func (rc *RequestContext) IsEmpty() bool {
	if rc == nil {
		return true
	}
	return rc.Country == "" && rc.Language == "" && !rc.hasBuyerIdentity()
}

func (rc *RequestContext) hasBuyerIdentity() bool {
	b := rc.BuyerIdentity
	if b == nil {
		return false
	}
	return b.Email != "" || b.Phone != "" || b.CustomerAccessToken != "" || b.CountryCode != ""
}

// operationHeader matches "query Name" or "mutation Name" at the start of a
// document, capturing the keyword, the name, and whatever separates them.
var operationHeader = regexp.MustCompile(`^(\s*)(query|mutation)(\s+)([A-Za-z_][A-Za-z0-9_]*)`)

// Inject returns document with an @inContext directive spliced into its
// operation header. An empty context is an identity transform, which makes
// re-injection safe against double-directive insertion.
//
// Placement, evaluated in order:
//   - Anonymous operation ("{ ... }"): a named query header is prepended.
//   - Named operation with an existing directive right after its name: the
//     new directive goes before the existing one.
//   - Named operation otherwise: the directive goes right after the name,
//     before the variable list or selection set.
func Inject(document string, rc *RequestContext) string {
	if rc.IsEmpty() {
		return document
	}

	directive := "@inContext(" + strings.Join(directiveArgs(rc), ", ") + ")"

	trimmed := strings.TrimSpace(document)
	if strings.HasPrefix(trimmed, "{") {
		return fmt.Sprintf("query %s %s %s", AnonymousOperationName, directive, trimmed)
	}

	// Only the header before the first selection set is rewritten.
	brace := strings.Index(document, "{")
	header := document
	if brace >= 0 {
		header = document[:brace]
	}

	loc := operationHeader.FindStringSubmatchIndex(header)
	if loc == nil {
		// Operation keyword without a name: attach after the keyword.
		kw := regexp.MustCompile(`^(\s*)(query|mutation)\b`)
		if m := kw.FindStringIndex(header); m != nil {
			return document[:m[1]] + " " + directive + document[m[1]:]
		}
		return document
	}

	nameEnd := loc[9] // End of the captured operation name
	rest := document[nameEnd:]

	// An existing directive immediately after the name keeps its place; the
	// new one is inserted before it, separated by a space.
	restTrimmed := strings.TrimLeft(rest, " \t\r\n")
	if strings.HasPrefix(restTrimmed, "@") {
		lead := len(rest) - len(restTrimmed)
		return document[:nameEnd+lead] + directive + " " + restTrimmed
	}

	return document[:nameEnd] + " " + directive + rest
}

// directiveArgs renders the directive parameters in their fixed order:
// country, language, buyerIdentity.
func directiveArgs(rc *RequestContext) []string {
	var args []string
	if rc.Country != "" {
		args = append(args, "country: "+rc.Country)
	}
	if rc.Language != "" {
		args = append(args, "language: "+rc.Language)
	}
	if rc.hasBuyerIdentity() {
		args = append(args, "buyerIdentity: {"+strings.Join(buyerArgs(rc.BuyerIdentity), ", ")+"}")
	}
	return args
}

// buyerArgs renders present buyerIdentity sub-fields in their fixed order.
// String sub-fields are quoted; countryCode is an enum token.
func buyerArgs(b *BuyerIdentity) []string {
	var args []string
	if b.Email != "" {
		args = append(args, fmt.Sprintf("email: %q", b.Email))
	}
	if b.Phone != "" {
		args = append(args, fmt.Sprintf("phone: %q", b.Phone))
	}
	if b.CustomerAccessToken != "" {
		args = append(args, fmt.Sprintf("customerAccessToken: %q", b.CustomerAccessToken))
	}
	if b.CountryCode != "" {
		args = append(args, "countryCode: "+b.CountryCode)
	}
	return args
}
