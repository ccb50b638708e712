package ledger

import (
	"fmt"
	"sort"
)

// Before reports whether a precedes b in ledger order: business date, then recorded
// time, then insertion sequence.
func Before(a, b Entry) bool {
	if !a.TransactionDate.Equal(b.TransactionDate) {
		return a.TransactionDate.Before(b.TransactionDate)
	}
	if !a.RecordedAt.Equal(b.RecordedAt) {
		return a.RecordedAt.Before(b.RecordedAt)
	}
	return a.ID < b.ID
}

// SortEntries orders entries in ledger order in place.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool { return Before(entries[i], entries[j]) })
}

// ChainBreak describes an entry whose balance does not follow from its predecessor.
type ChainBreak struct {
	ItemID   int64
	EntryID  int64
	Expected int64
	Actual   int64
}

func (b ChainBreak) String() string {
	return fmt.Sprintf("item %d entry %d: expected balance %d, stored %d", b.ItemID, b.EntryID, b.Expected, b.Actual)
}

// CheckChain walks entries, which must already be in ledger order, and returns every
// position where the running balance is inconsistent. It also reports zero deltas on
// anything but an opening entry.
func CheckChain(entries []Entry) []ChainBreak {
	var breaks []ChainBreak
	var running int64
	for _, e := range entries {
		running += e.QuantityChange
		zero := e.QuantityChange == 0 && e.Type != TypeOpening
		if e.NetBalance != running || zero {
			breaks = append(breaks, ChainBreak{ItemID: e.ItemID, EntryID: e.ID, Expected: running, Actual: e.NetBalance})
			running = e.NetBalance
		}
	}
	return breaks
}

// chain assigns running balances to entries in their current order and returns the final total.
func chain(entries []Entry, start int64) int64 {
	running := start
	for i := range entries {
		running += entries[i].QuantityChange
		entries[i].NetBalance = running
	}
	return running
}
