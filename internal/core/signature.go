package core

import (
	"sort"
	"strings"
)

// sigSep separates the fields inside a single item signature. It is a unit
// separator so commas inside descriptions cannot collide with the joined
// category and image lists.
const sigSep = "\x1f"

// Signature returns the canonical string encoding of the item's comparable
// fields: trimmed description, trimmed price text, trimmed quantity,
// comma-joined categories, and comma-joined sorted image references.
// Checked state and source id are identity/session data and do not
// participate in equality.
func (it LineItem) Signature() string {
	imgs := append([]string(nil), it.ImageRefs...)
	sort.Strings(imgs)
	return strings.Join([]string{
		strings.TrimSpace(it.Description),
		strings.TrimSpace(it.Price),
		strings.TrimSpace(it.Quantity),
		strings.Join(it.Categories, ","),
		strings.Join(imgs, ","),
	}, sigSep)
}

// SignatureList returns the sorted list of item signatures for a record's
// item set. Two item sets hold the same content iff their signature lists
// are equal element-wise.
func SignatureList(items []LineItem) []string {
	sigs := make([]string, len(items))
	for i, it := range items {
		sigs[i] = it.Signature()
	}
	sort.Strings(sigs)
	return sigs
}

// SignaturesEqual reports whether two sorted signature lists match in size
// and content.
func SignaturesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SameItems reports whether two item sets carry identical content,
// regardless of item order.
func SameItems(a, b []LineItem) bool {
	return SignaturesEqual(SignatureList(a), SignatureList(b))
}
