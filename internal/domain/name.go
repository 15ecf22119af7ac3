package domain

import "golang.org/x/text/cases"

// NameKey is the case-folded form of a product name used for lookups and
// for the unique index of the products collection.
func NameKey(name string) string {
	return cases.Fold().String(name)
}
