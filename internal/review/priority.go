// Package review materializes the human work queue and applies
// adjudication decisions.
package review

import (
	"sort"

	"github.com/ledgermatch/ledgermatch/internal/model"
)

// Queue priorities, lower first. Failures that block processing outrank
// everything; reimbursements have the least urgency because money
// already left the employee's pocket, not the company's.
var itemPriority = map[model.ReviewItemType]int{
	model.ItemProcessingError: 1,
	model.ItemFlagged:         2,
	model.ItemOrphan:          3,
	model.ItemLowConfidence:   4,
	model.ItemReimbursement:   5,
}

// Priority returns the sort rank for an item type. Unknown types sort last.
func Priority(t model.ReviewItemType) int {
	if p, ok := itemPriority[t]; ok {
		return p
	}
	return len(itemPriority) + 1
}

// SortItems orders items by priority, then oldest first, then by source
// id so the order is a total one and stable across runs.
func SortItems(items []model.ReviewItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority < items[j].Priority
		}
		if !items[i].Date.Equal(items[j].Date) {
			return items[i].Date.Before(items[j].Date)
		}
		return items[i].SourceID < items[j].SourceID
	})
}
