// Package domain defines core data structures used throughout the balance aggregator.
package domain

import "strings"

// Qualifier marks a venue or product variant of a base currency within one exchange.
type Qualifier string

const (
	QualifierNone        Qualifier = ""
	QualifierCoinFutures Qualifier = "COIN_FUTURES"
	QualifierSuperMargin Qualifier = "SUPER_MARGIN"
	QualifierEarnLocked  Qualifier = "EARN_LOCKED"
	QualifierFutures     Qualifier = "FUTURES"
	QualifierMargin      Qualifier = "MARGIN"
	QualifierEarn        Qualifier = "EARN"
	QualifierFund        Qualifier = "FUND"
	QualifierPoint       Qualifier = "POINT"
	QualifierOTC         Qualifier = "OTC"
)

// qualifiers is the exhaustive qualifier set ordered longest-first, so that
// COIN_FUTURES wins over FUTURES and SUPER_MARGIN over MARGIN.
var qualifiers = []Qualifier{
	QualifierCoinFutures,
	QualifierSuperMargin,
	QualifierEarnLocked,
	QualifierFutures,
	QualifierMargin,
	QualifierEarn,
	QualifierFund,
	QualifierPoint,
	QualifierOTC,
}

// Qualifiers returns the known qualifiers in matching order.
func Qualifiers() []Qualifier {
	out := make([]Qualifier, len(qualifiers))
	copy(out, qualifiers)
	return out
}

// String returns the string representation.
func (q Qualifier) String() string {
	return string(q)
}

// IsValid checks if the Qualifier value belongs to the known set.
func (q Qualifier) IsValid() bool {
	for _, known := range qualifiers {
		if q == known {
			return true
		}
	}
	return false
}

// ParseQualifier maps exchange account-type names like "super-margin" onto a Qualifier.
func ParseQualifier(s string) (Qualifier, bool) {
	q := Qualifier(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	if !q.IsValid() {
		return QualifierNone, false
	}
	return q, true
}

// AssetKey is a base currency symbol, optionally suffixed with "_QUALIFIER".
type AssetKey string

// NewAssetKey builds the key for base tagged with q. An empty qualifier yields the bare symbol.
func NewAssetKey(base string, q Qualifier) AssetKey {
	if q == QualifierNone {
		return AssetKey(base)
	}
	return AssetKey(base + "_" + string(q))
}

// Split strips the single longest matching qualifier suffix.
// Keys without a known suffix come back unchanged with QualifierNone.
func (k AssetKey) Split() (string, Qualifier) {
	s := string(k)
	for _, q := range qualifiers {
		suffix := "_" + string(q)
		if len(s) > len(suffix) && strings.HasSuffix(s, suffix) {
			return s[:len(s)-len(suffix)], q
		}
	}
	return s, QualifierNone
}

// Base returns the base currency symbol.
func (k AssetKey) Base() string {
	base, _ := k.Split()
	return base
}

// String returns the string representation.
func (k AssetKey) String() string {
	return string(k)
}
