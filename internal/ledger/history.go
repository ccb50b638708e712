package ledger

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
)

const (
	defaultHistoryLimit = 200
	maxHistoryLimit     = 1000
)

// HistoryReader is the read side consumed by Projector.
type HistoryReader interface {
	ListEntries(ctx context.Context, query EntryQuery) ([]Entry, error)
	FindReceiptLines(ctx context.Context, companyID int64, lineIDs []int64) (map[int64]ReceiptLine, error)
	FindDispatchLines(ctx context.Context, companyID int64, lineIDs []int64) (map[int64]DispatchLine, error)
}

// Projector produces the user-facing stock card of an item.
type Projector struct {
	reader HistoryReader
}

// NewProjector constructs Projector.
func NewProjector(reader HistoryReader) *Projector {
	return &Projector{reader: reader}
}

// History returns the entries of one stream newest first, joined to the documents
// that caused them and narrowed by filter.
func (p *Projector) History(ctx context.Context, companyID, itemID int64, filter HistoryFilter) ([]HistoryRow, error) {
	const op = "ledger.history"
	if companyID <= 0 || itemID <= 0 {
		return nil, validationError(op, fmt.Errorf("company and item ids must be positive"))
	}
	if !filter.DateFrom.IsZero() && !filter.DateTo.IsZero() && filter.DateTo.Before(filter.DateFrom) {
		return nil, validationError(op, fmt.Errorf("date range end precedes start"))
	}
	types := make([]TransactionType, 0, len(filter.Types))
	for _, category := range filter.Types {
		t, err := category.TransactionType()
		if err != nil {
			return nil, validationError(op, err)
		}
		types = append(types, t)
	}
	limit := filter.Limit
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}

	var needle string
	if s := strings.TrimSpace(filter.Search); s != "" {
		needle = cases.Fold().String(s)
	}

	query := EntryQuery{
		Key:   StreamKey{CompanyID: companyID, ItemID: itemID},
		From:  filter.DateFrom,
		To:    filter.DateTo,
		Types: types,
		Limit: limit,
	}
	rows := make([]HistoryRow, 0)
	for len(rows) < limit {
		entries, err := p.reader.ListEntries(ctx, query)
		if err != nil {
			return nil, classify(op, err)
		}
		if len(entries) == 0 {
			break
		}
		page, err := p.project(ctx, companyID, entries)
		if err != nil {
			return nil, classify(op, err)
		}
		for _, row := range page {
			if needle != "" && !row.matches(needle) {
				continue
			}
			rows = append(rows, row)
			if len(rows) == limit {
				break
			}
		}
		// Without a search every fetched row is kept, so one page is always enough.
		if needle == "" || len(entries) < query.Limit {
			break
		}
		cursor := CursorOf(entries[len(entries)-1])
		query.Before = &cursor
	}
	return rows, nil
}

func (p *Projector) project(ctx context.Context, companyID int64, entries []Entry) ([]HistoryRow, error) {
	var receiptIDs, dispatchIDs []int64
	for _, e := range entries {
		if e.Source.LineID == 0 {
			continue
		}
		switch e.Source.Type {
		case SourceReceipt:
			receiptIDs = append(receiptIDs, e.Source.LineID)
		case SourceDispatch:
			dispatchIDs = append(dispatchIDs, e.Source.LineID)
		}
	}

	var (
		receipts   map[int64]ReceiptLine
		dispatches map[int64]DispatchLine
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		receipts, err = p.reader.FindReceiptLines(gctx, companyID, receiptIDs)
		return err
	})
	g.Go(func() error {
		var err error
		dispatches, err = p.reader.FindDispatchLines(gctx, companyID, dispatchIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rows := make([]HistoryRow, 0, len(entries))
	for _, e := range entries {
		row := HistoryRow{
			Entry:          e,
			DocumentNumber: TrimReference(e.Type, e.ReferenceLabel),
			Counterparty:   e.CounterpartyLabel,
		}
		switch e.Source.Type {
		case SourceReceipt:
			if line, ok := receipts[e.Source.LineID]; ok {
				row.DocumentNumber = line.DocumentNumber
				if line.Counterparty != "" {
					row.Counterparty = line.Counterparty
				}
				row.ChallanNumber = line.ChallanNumber
				row.ChallanDate = line.ChallanDate
				if e.Type == TypeIn || e.Type == TypeRej {
					received, rejected, short := line.Received, line.Rejected, line.Short
					row.Received, row.Rejected, row.Short = &received, &rejected, &short
				}
			}
		case SourceDispatch:
			if line, ok := dispatches[e.Source.LineID]; ok {
				row.DocumentNumber = line.DocumentNumber
				if line.Counterparty != "" {
					row.Counterparty = line.Counterparty
				}
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// matches reports whether needle, already case folded, occurs in any searchable column.
func (r HistoryRow) matches(needle string) bool {
	fold := cases.Fold()
	for _, field := range []string{r.DocumentNumber, r.Entry.ReferenceLabel, r.Counterparty, r.Entry.ActorName} {
		if field != "" && strings.Contains(fold.String(field), needle) {
			return true
		}
	}
	return false
}
