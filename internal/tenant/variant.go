// Package tenant describes loyalty programs and the per-program schema
// variant that decides how customers are looked up and which fields a
// ledger entry must carry.
package tenant

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Field names shared by request parsing, validation errors and the API.
const (
	FieldEmail         = "email"
	FieldSecondaryID   = "secondaryId"
	FieldAmount        = "amount"
	FieldExpiry        = "expiry"
	FieldTransactionID = "transactionId"
	FieldFlightNumber  = "flightNumber"
	FieldRouteCode     = "routeCode"
)

// Kind tags a Variant.
type Kind string

const (
	KindBase          Kind = "base"
	KindMembership    Kind = "membership"
	KindFrequentFlyer Kind = "frequent-flyer"
)

// Variant is the schema of one tenant. The zero value is not valid; use one
// of the package-level variants or ParseKind.
type Variant struct {
	kind Kind
	// secondaryParam is the tenant-specific request name of the secondary
	// identifier. Empty for email-only programs.
	secondaryParam string
	amountAlias    string
	extraFields    []string
}

var (
	BaseVariant = Variant{
		kind:        KindBase,
		amountAlias: "points",
	}
	MembershipVariant = Variant{
		kind:           KindMembership,
		secondaryParam: "membershipId",
		amountAlias:    "points",
		extraFields:    []string{FieldTransactionID},
	}
	FrequentFlyerVariant = Variant{
		kind:           KindFrequentFlyer,
		secondaryParam: "ffn",
		amountAlias:    "miles",
		extraFields:    []string{FieldFlightNumber, FieldRouteCode},
	}
)

// ParseKind returns the variant tagged by kind.
func ParseKind(kind string) (Variant, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case KindBase, "":
		return BaseVariant, nil
	case KindMembership:
		return MembershipVariant, nil
	case KindFrequentFlyer, "frequentflyer", "frequent_flyer":
		return FrequentFlyerVariant, nil
	default:
		return Variant{}, fmt.Errorf("unknown tenant variant %q", kind)
	}
}

// Kind returns the variant tag.
func (v Variant) Kind() Kind { return v.kind }

// HasSecondaryID reports whether customers are keyed by email plus a
// secondary identifier.
func (v Variant) HasSecondaryID() bool { return v.secondaryParam != "" }

// SecondaryParam is the tenant-specific name of the secondary identifier.
func (v Variant) SecondaryParam() string { return v.secondaryParam }

// AmountAlias is the tenant-specific name of the amount field.
func (v Variant) AmountAlias() string { return v.amountAlias }

// RequiredWriteFields lists the fields a new ledger entry must carry.
func (v Variant) RequiredWriteFields() []string {
	fields := make([]string, 0, 2+len(v.extraFields))
	fields = append(fields, FieldAmount, FieldExpiry)
	return append(fields, v.extraFields...)
}

// SecondaryParamNames lists the request names accepted for the secondary
// identifier, generic name first.
func (v Variant) SecondaryParamNames() []string {
	if !v.HasSecondaryID() {
		return nil
	}
	return []string{FieldSecondaryID, v.secondaryParam}
}

// AmountParamNames lists the request names accepted for the amount.
func (v Variant) AmountParamNames() []string {
	if v.amountAlias == "" {
		return []string{FieldAmount}
	}
	return []string{FieldAmount, v.amountAlias}
}

// Params identifies a customer as supplied by a caller.
type Params struct {
	Email       string
	SecondaryID string
}

// ReadParams pulls identification params through get, accepting any of the
// variant's names for the secondary identifier.
func (v Variant) ReadParams(get func(name string) string) Params {
	p := Params{Email: strings.TrimSpace(get(FieldEmail))}
	for _, name := range v.SecondaryParamNames() {
		if s := strings.TrimSpace(get(name)); s != "" {
			p.SecondaryID = s
			break
		}
	}
	return p
}

// LookupKey is the predicate selecting one customer within a tenant.
// SecondaryID is empty for email-only programs.
type LookupKey struct {
	Email       string
	SecondaryID string
}

// Matches reports whether a stored customer satisfies the key.
func (k LookupKey) Matches(email, secondaryID string) bool {
	if email != k.Email {
		return false
	}
	return k.SecondaryID == "" || secondaryID == k.SecondaryID
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// LookupKey builds the customer predicate for params. Missing or malformed
// components are reported as FieldErrors.
func (v Variant) LookupKey(p Params) (LookupKey, error) {
	var errs FieldErrors

	switch {
	case p.Email == "":
		errs = append(errs, FieldError{Field: FieldEmail, Reason: ReasonRequired})
	case !emailPattern.MatchString(p.Email):
		errs = append(errs, FieldError{Field: FieldEmail, Reason: ReasonInvalid})
	}

	key := LookupKey{Email: p.Email}
	if v.HasSecondaryID() {
		if p.SecondaryID == "" {
			errs = append(errs, FieldError{Field: v.secondaryParam, Reason: ReasonRequired})
		}
		key.SecondaryID = p.SecondaryID
	}

	if len(errs) > 0 {
		return LookupKey{}, errs
	}
	return key, nil
}

// String returns the variant tag.
func (v Variant) String() string { return string(v.kind) }

// MarshalText encodes the variant as its tag.
func (v Variant) MarshalText() ([]byte, error) {
	return []byte(v.kind), nil
}

// UnmarshalText decodes a variant tag.
func (v *Variant) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// UnmarshalYAML decodes a variant tag from a tenants file.
func (v *Variant) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("line %d: variant must be a string: %w", node.Line, err)
	}
	return v.UnmarshalText([]byte(raw))
}

// MarshalYAML encodes the variant as its tag.
func (v Variant) MarshalYAML() (any, error) {
	return string(v.kind), nil
}
