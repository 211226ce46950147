package ledger

import (
	"strings"

	"registro/internal/core"
)

// Merge pairs incoming items against a master record's existing items and
// returns the merged item set. Matching runs in three descending tiers, the
// first success wins:
//
//  1. identity: the incoming item's SourceID is found among existing items
//  2. name: equal normalized (trimmed, lowercased) descriptions
//  3. fuzzy: equal trimmed price text and one normalized name containing
//     the other
//
// Matching is strictly one-to-one per pass: each existing item is consumed
// by at most one incoming item, earliest unconsumed candidate first. A
// matched slot takes the incoming item's values but keeps the existing
// item's SourceID when the incoming one is nil. Unmatched incoming items
// append as new lines; unconsumed existing items are retained at the end in
// their original order, so the output never loses an existing item.
func Merge(existing, incoming []core.LineItem) []core.LineItem {
	byID := make(map[int64]int, len(existing))
	byName := make(map[string][]int, len(existing))
	for i, it := range existing {
		if it.SourceID != nil {
			// Last write wins on duplicate ids; duplicates are not
			// expected but not rejected either.
			byID[*it.SourceID] = i
		}
		name := it.NormalizedName()
		byName[name] = append(byName[name], i)
	}

	consumed := make([]bool, len(existing))
	merged := make([]core.LineItem, 0, len(existing)+len(incoming))

	for _, in := range incoming {
		idx := matchIndex(existing, consumed, byID, byName, in)
		if idx < 0 {
			merged = append(merged, in)
			continue
		}
		consumed[idx] = true
		merged = append(merged, mergeInto(existing[idx], in))
	}

	for i, it := range existing {
		if !consumed[i] {
			merged = append(merged, it)
		}
	}

	return merged
}

// matchIndex resolves the incoming item to an unconsumed existing item,
// returning -1 when all three tiers miss.
func matchIndex(existing []core.LineItem, consumed []bool, byID map[int64]int, byName map[string][]int, in core.LineItem) int {
	if in.SourceID != nil {
		if i, ok := byID[*in.SourceID]; ok && !consumed[i] {
			return i
		}
	}

	for _, i := range byName[in.NormalizedName()] {
		if !consumed[i] {
			return i
		}
	}

	inPrice := strings.TrimSpace(in.Price)
	inName := in.NormalizedName()
	for i, ex := range existing {
		if consumed[i] {
			continue
		}
		if strings.TrimSpace(ex.Price) != inPrice {
			continue
		}
		exName := ex.NormalizedName()
		if strings.Contains(exName, inName) || strings.Contains(inName, exName) {
			return i
		}
	}

	return -1
}

// mergeInto builds the updated slot: incoming values over the existing
// item's identity.
func mergeInto(existing, in core.LineItem) core.LineItem {
	sourceID := existing.SourceID
	if in.SourceID != nil {
		sourceID = in.SourceID
	}
	return core.LineItem{
		Description: in.Description,
		Price:       in.Price,
		Quantity:    in.Quantity,
		Categories:  in.Categories,
		ImageRefs:   in.ImageRefs,
		Checked:     in.Checked,
		SourceID:    sourceID,
	}
}
