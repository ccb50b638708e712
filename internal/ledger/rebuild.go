package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

// RebuildReport summarises one rebuild run.
type RebuildReport struct {
	RunID     uuid.UUID
	CompanyID int64
	Items     int
	Entries   int
	Deleted   int64
	Duration  time.Duration
}

type runIDKey struct{}

// ContextWithRunID attaches a run id chosen by the caller, typically the job that
// scheduled the rebuild, so logs and reports share it.
func ContextWithRunID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

func runIDFrom(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(runIDKey{}).(uuid.UUID); ok && id != uuid.Nil {
		return id
	}
	return uuid.New()
}

// Rebuilder discards and regenerates ledger streams from the source documents.
type Rebuilder struct {
	repo     TxRunner
	audit    AuditPort
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewRebuilder constructs Rebuilder.
func NewRebuilder(repo TxRunner, audit AuditPort, notifier Notifier, cfg ServiceConfig) *Rebuilder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Rebuilder{repo: repo, audit: audit, notifier: notifier, logger: logger, now: now}
}

// Rebuild regenerates every stream of the company in one unit of work.
func (r *Rebuilder) Rebuild(ctx context.Context, companyID int64) (RebuildReport, error) {
	return r.run(ctx, "ledger.rebuild", companyID, 0)
}

// RebuildItem regenerates a single stream.
func (r *Rebuilder) RebuildItem(ctx context.Context, companyID, itemID int64) (RebuildReport, error) {
	if itemID <= 0 {
		return RebuildReport{}, validationError("ledger.rebuild_item", fmt.Errorf("item id must be positive"))
	}
	return r.run(ctx, "ledger.rebuild_item", companyID, itemID)
}

func (r *Rebuilder) run(ctx context.Context, op string, companyID, itemID int64) (RebuildReport, error) {
	if companyID <= 0 {
		return RebuildReport{}, validationError(op, fmt.Errorf("company id must be positive"))
	}
	started := r.now()
	report := RebuildReport{RunID: runIDFrom(ctx), CompanyID: companyID}
	var tails []Entry

	err := r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Held exclusively so no live append of this company interleaves with the rebuild.
		if err := tx.LockCompany(ctx, companyID, true); err != nil {
			return err
		}
		items, err := r.items(ctx, tx, companyID, itemID)
		if err != nil {
			return err
		}
		for _, item := range items {
			key := StreamKey{CompanyID: companyID, ItemID: item.ID}
			deleted, err := tx.DeleteEntries(ctx, key)
			if err != nil {
				return err
			}
			receipts, err := tx.ReceiptLines(ctx, key)
			if err != nil {
				return err
			}
			dispatches, err := tx.DispatchLines(ctx, key)
			if err != nil {
				return err
			}
			entries := Replay(item, receipts, dispatches)
			if err := tx.InsertEntries(ctx, entries); err != nil {
				return err
			}
			tail := entries[len(entries)-1]
			if err := tx.UpdateItemStock(ctx, key, tail.NetBalance); err != nil {
				return err
			}
			tails = append(tails, tail)
			report.Items++
			report.Entries += len(entries)
			report.Deleted += deleted
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return RebuildReport{}, notFoundError(op, err)
		}
		return RebuildReport{}, classify(op, err)
	}
	report.Duration = r.now().Sub(started)

	r.logger.Info("stock ledger rebuilt",
		slog.String("run_id", report.RunID.String()),
		slog.Int64("company_id", companyID),
		slog.Int("items", report.Items),
		slog.Int("entries", report.Entries),
		slog.Int64("deleted", report.Deleted),
		slog.Duration("duration", report.Duration),
	)
	r.recordAudit(ctx, report, itemID)
	if r.notifier != nil && len(tails) > 0 {
		if err := r.notifier.StockChanged(ctx, tails); err != nil {
			r.logger.Warn("stock ledger notify", slog.Any("error", err), slog.String("run_id", report.RunID.String()))
		}
	}
	return report, nil
}

func (r *Rebuilder) items(ctx context.Context, tx TxRepository, companyID, itemID int64) ([]Item, error) {
	if itemID == 0 {
		return tx.ListItems(ctx, companyID)
	}
	item, err := tx.FindItem(ctx, StreamKey{CompanyID: companyID, ItemID: itemID})
	if err != nil {
		return nil, err
	}
	return []Item{item}, nil
}

func (r *Rebuilder) recordAudit(ctx context.Context, report RebuildReport, itemID int64) {
	if r.audit == nil {
		return
	}
	entityID := fmt.Sprintf("%d", report.CompanyID)
	if itemID != 0 {
		entityID = StreamKey{CompanyID: report.CompanyID, ItemID: itemID}.String()
	}
	if err := r.audit.Record(ctx, auditLog(0, "ledger:rebuild", entityID, r.now(), map[string]any{
		"run_id":  report.RunID.String(),
		"items":   report.Items,
		"entries": report.Entries,
		"deleted": report.Deleted,
	})); err != nil {
		r.logger.Warn("stock ledger audit", slog.Any("error", err))
	}
}

type candidate struct {
	entry   Entry
	created time.Time
}

// Replay derives the full entry sequence of one item from its source documents:
// the opening entry, one IN per receipt line, a REJ for any rejected quantity and one
// OUT per dispatch line. Entries are ordered by business date and document creation
// time, ties keeping generation order, and carry running balances from zero. The
// result always starts from an opening entry, even when the opening stock is zero.
func Replay(item Item, receipts []ReceiptLine, dispatches []DispatchLine) []Entry {
	base := Entry{CompanyID: item.CompanyID, ItemID: item.ID}
	created := normaliseTime(item.CreatedAt)

	opening := base
	opening.TransactionDate = created
	opening.Type = TypeOpening
	opening.ReferenceLabel = FormatReference(TypeOpening, item.SKU)
	opening.Source = SourceRef{Type: SourceItem, DocumentID: item.ID}
	opening.QuantityChange = item.OpeningStock
	candidates := []candidate{{entry: opening, created: created}}

	for _, line := range receipts {
		at := normaliseTime(line.DocumentCreatedAt)
		e := base
		e.TransactionDate = normaliseTime(line.BusinessDate)
		e.CounterpartyLabel = line.Counterparty
		e.ActorID = line.ActorID
		e.ActorName = line.ActorName
		e.Source = SourceRef{Type: SourceReceipt, DocumentID: line.DocumentID, LineID: line.LineID}
		if line.Received != 0 {
			in := e
			in.Type = TypeIn
			in.ReferenceLabel = FormatReference(TypeIn, line.DocumentNumber)
			in.QuantityChange = line.Received
			candidates = append(candidates, candidate{entry: in, created: at})
		}
		if line.Rejected != 0 {
			rej := e
			rej.Type = TypeRej
			rej.ReferenceLabel = FormatReference(TypeRej, line.DocumentNumber)
			rej.QuantityChange = -line.Rejected
			candidates = append(candidates, candidate{entry: rej, created: at})
		}
	}
	for _, line := range dispatches {
		if line.Dispatched == 0 {
			continue
		}
		e := base
		e.TransactionDate = normaliseTime(line.BusinessDate)
		e.Type = TypeOut
		e.ReferenceLabel = FormatReference(TypeOut, line.DocumentNumber)
		e.CounterpartyLabel = line.Counterparty
		e.ActorID = line.ActorID
		e.ActorName = line.ActorName
		e.Source = SourceRef{Type: SourceDispatch, DocumentID: line.DocumentID, LineID: line.LineID}
		e.QuantityChange = -line.Dispatched
		candidates = append(candidates, candidate{entry: e, created: normaliseTime(line.DocumentCreatedAt)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.entry.TransactionDate.Equal(b.entry.TransactionDate) {
			return a.entry.TransactionDate.Before(b.entry.TransactionDate)
		}
		return a.created.Before(b.created)
	})

	entries := make([]Entry, len(candidates))
	for i, c := range candidates {
		c.entry.RecordedAt = c.created
		entries[i] = c.entry
	}
	chain(entries, 0)
	return entries
}
