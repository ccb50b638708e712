package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/stock-ledger/internal/shared"
)

// TxRunner opens units of work.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// RepositoryPort abstracts the store used by Service.
type RepositoryPort interface {
	TxRunner
	LatestEntry(ctx context.Context, key StreamKey) (Entry, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Notifier is told about committed ledger writes.
type Notifier interface {
	StockChanged(ctx context.Context, entries []Entry) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	Logger *slog.Logger
	Clock  func() time.Time
}

// Service appends to the stock ledger and keeps the item stock mirror in step with it.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	notifier Notifier
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, notifier Notifier, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:     repo,
		audit:    audit,
		notifier: notifier,
		validate: validator.New(),
		logger:   logger,
		now:      now,
	}
}

// Append records one signed quantity change inside the caller's unit of work and
// returns the stored entry. The stream lock taken here is held until tx ends.
func (s *Service) Append(ctx context.Context, tx TxRepository, in AppendInput) (Entry, error) {
	const op = "ledger.append"
	if err := s.checkAppend(in); err != nil {
		return Entry{}, validationError(op, err)
	}
	key := in.Key()
	if err := tx.LockCompany(ctx, key.CompanyID, false); err != nil {
		return Entry{}, classify(op, err)
	}
	if err := tx.LockStream(ctx, key); err != nil {
		return Entry{}, classify(op, err)
	}
	if _, err := tx.FindItem(ctx, key); err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return Entry{}, notFoundError(op, fmt.Errorf("%w: item %d of company %d", ErrItemNotFound, key.ItemID, key.CompanyID))
		}
		return Entry{}, classify(op, err)
	}

	date := normaliseTime(in.TransactionDate)
	recordedAt := normaliseTime(s.now())
	var last int64
	latest, err := tx.LatestEntry(ctx, key)
	switch {
	case errors.Is(err, ErrEntryNotFound):
	case err != nil:
		return Entry{}, classify(op, err)
	default:
		if date.Before(latest.TransactionDate) {
			return Entry{}, validationError(op, fmt.Errorf("%w: %s before %s", ErrOutOfOrder,
				date.Format(time.RFC3339), latest.TransactionDate.Format(time.RFC3339)))
		}
		if recordedAt.Before(latest.RecordedAt) {
			recordedAt = latest.RecordedAt
		}
		last = latest.NetBalance
	}

	entry := Entry{
		CompanyID:         key.CompanyID,
		ItemID:            key.ItemID,
		TransactionDate:   date,
		Type:              in.Type,
		ReferenceLabel:    in.ReferenceLabel,
		CounterpartyLabel: in.CounterpartyLabel,
		ActorID:           in.ActorID,
		ActorName:         in.ActorName,
		Source:            in.Source,
		Reverses:          in.Reverses,
		QuantityChange:    in.QuantityChange,
		NetBalance:        last + in.QuantityChange,
		RecordedAt:        recordedAt,
	}
	stored, err := tx.InsertEntry(ctx, entry)
	if err != nil {
		return Entry{}, classify(op, err)
	}
	return stored, nil
}

// RefreshMirror copies the latest running balance of the stream onto the item record.
// It is the only writer of the mirror outside the rebuild job.
func (s *Service) RefreshMirror(ctx context.Context, tx TxRepository, key StreamKey) (int64, error) {
	const op = "ledger.refresh_mirror"
	var balance int64
	latest, err := tx.LatestEntry(ctx, key)
	switch {
	case errors.Is(err, ErrEntryNotFound):
	case err != nil:
		return 0, classify(op, err)
	default:
		balance = latest.NetBalance
	}
	if err := tx.UpdateItemStock(ctx, key, balance); err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return 0, notFoundError(op, err)
		}
		return 0, classify(op, err)
	}
	return balance, nil
}

// Apply appends the change and refreshes the stock mirror in the same unit of work.
// Movement mutators call this once per quantity change they cause.
func (s *Service) Apply(ctx context.Context, tx TxRepository, in AppendInput) (Entry, error) {
	entry, err := s.Append(ctx, tx, in)
	if err != nil {
		return Entry{}, err
	}
	if _, err := s.RefreshMirror(ctx, tx, entry.Key()); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Post applies a standalone change, such as a manual stock correction, in its own
// unit of work. Subscribers are notified only after commit.
func (s *Service) Post(ctx context.Context, in AppendInput) (Entry, error) {
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = s.Apply(ctx, tx, in)
		return err
	})
	if err != nil {
		return Entry{}, classify("ledger.post", err)
	}
	s.logger.Info("stock ledger entry posted",
		slog.Int64("company_id", entry.CompanyID),
		slog.Int64("item_id", entry.ItemID),
		slog.String("type", entry.Type.String()),
		slog.Int64("quantity", entry.QuantityChange),
		slog.Int64("balance", entry.NetBalance),
	)
	s.recordAudit(ctx, entry.ActorID, fmt.Sprintf("ledger:%s", entry.Type), entry.Key().String(), map[string]any{
		"entry_id":  entry.ID,
		"quantity":  entry.QuantityChange,
		"balance":   entry.NetBalance,
		"reference": entry.ReferenceLabel,
	})
	s.notify(ctx, []Entry{entry})
	return entry, nil
}

// Void appends an equal and opposite entry for every entry of the source that has not
// been compensated yet and refreshes the affected mirrors. Compensations are dated at
// the time of the void, or at the stream's latest business date when that is later.
// Prior entries are never touched.
func (s *Service) Void(ctx context.Context, tx TxRepository, in VoidInput) ([]Entry, error) {
	const op = "ledger.void"
	if err := s.checkVoid(in); err != nil {
		return nil, validationError(op, err)
	}
	pending, err := s.lockPending(ctx, tx, op, in)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, notFoundError(op, fmt.Errorf("%w: %s document %d", ErrNothingToVoid, in.Source.Type, in.Source.DocumentID))
	}
	sort.SliceStable(pending, func(i, j int) bool {
		a, b := pending[i].Key(), pending[j].Key()
		if a.ItemID != b.ItemID {
			return a.ItemID < b.ItemID
		}
		return Before(pending[i], pending[j])
	})

	at := s.now()
	compensations := make([]Entry, 0, len(pending))
	touched := make([]StreamKey, 0, 1)
	for _, original := range pending {
		date := at
		latest, err := tx.LatestEntry(ctx, original.Key())
		if err != nil && !errors.Is(err, ErrEntryNotFound) {
			return nil, classify(op, err)
		}
		if err == nil && latest.TransactionDate.After(date) {
			date = latest.TransactionDate
		}
		entry, err := s.Append(ctx, tx, AppendInput{
			CompanyID:         original.CompanyID,
			ItemID:            original.ItemID,
			TransactionDate:   date,
			Type:              original.Type,
			ReferenceLabel:    original.ReferenceLabel,
			CounterpartyLabel: original.CounterpartyLabel,
			ActorID:           in.ActorID,
			ActorName:         in.ActorName,
			Source:            original.Source,
			Reverses:          original.ID,
			QuantityChange:    -original.QuantityChange,
		})
		if err != nil {
			return nil, err
		}
		compensations = append(compensations, entry)
		if n := len(touched); n == 0 || touched[n-1] != entry.Key() {
			touched = append(touched, entry.Key())
		}
	}
	for _, key := range touched {
		if _, err := s.RefreshMirror(ctx, tx, key); err != nil {
			return nil, err
		}
	}
	s.logger.Info("stock ledger source voided",
		slog.Int64("company_id", in.CompanyID),
		slog.String("source_type", string(in.Source.Type)),
		slog.Int64("document_id", in.Source.DocumentID),
		slog.Int("entries", len(compensations)),
		slog.String("reason", in.Reason),
	)
	return compensations, nil
}

// lockPending locks every stream the source touches, in key order, and returns the
// uncompensated entries as seen once all of them are held. Locks are re-entrant
// within a transaction, so the appends that follow take them again at no cost.
func (s *Service) lockPending(ctx context.Context, tx TxRepository, op string, in VoidInput) ([]Entry, error) {
	if err := tx.LockCompany(ctx, in.CompanyID, false); err != nil {
		return nil, classify(op, err)
	}
	locked := make(map[StreamKey]bool)
	for {
		existing, err := tx.SourceEntries(ctx, in.CompanyID, in.Source)
		if err != nil {
			return nil, classify(op, err)
		}
		pending := uncompensated(existing)
		var keys []StreamKey
		for _, e := range pending {
			if key := e.Key(); !locked[key] {
				locked[key] = true
				keys = append(keys, key)
			}
		}
		if len(keys) == 0 {
			return pending, nil
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].ItemID < keys[j].ItemID })
		for _, key := range keys {
			if err := tx.LockStream(ctx, key); err != nil {
				return nil, classify(op, err)
			}
		}
	}
}

func uncompensated(entries []Entry) []Entry {
	compensated := make(map[int64]bool)
	for _, e := range entries {
		if e.Reverses != 0 {
			compensated[e.Reverses] = true
		}
	}
	var pending []Entry
	for _, e := range entries {
		if e.Reverses == 0 && !compensated[e.ID] {
			pending = append(pending, e)
		}
	}
	return pending
}

// Balance returns the current running balance of a stream, zero when it has no entries.
func (s *Service) Balance(ctx context.Context, key StreamKey) (int64, error) {
	latest, err := s.repo.LatestEntry(ctx, key)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return 0, nil
		}
		return 0, classify("ledger.balance", err)
	}
	return latest.NetBalance, nil
}

func (s *Service) checkAppend(in AppendInput) error {
	if in.QuantityChange == 0 {
		return ErrInvalidQuantity
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownType, uint8(in.Type))
	}
	if err := s.validate.Struct(in); err != nil {
		return err
	}
	if !in.Source.Type.Valid() {
		return fmt.Errorf("unknown source type %q", in.Source.Type)
	}
	if !in.Type.allowsQuantity(in.QuantityChange, in.Reverses != 0) {
		return fmt.Errorf("%w: %s %d", ErrSignMismatch, in.Type, in.QuantityChange)
	}
	return nil
}

func (s *Service) checkVoid(in VoidInput) error {
	if err := s.validate.Struct(in); err != nil {
		return err
	}
	if in.Source.Type == "" || !in.Source.Type.Valid() {
		return fmt.Errorf("unknown source type %q", in.Source.Type)
	}
	if in.Source.DocumentID <= 0 {
		return errors.New("source document id required")
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, auditLog(actorID, action, entityID, s.now(), meta)); err != nil {
		s.logger.Warn("stock ledger audit", slog.Any("error", err))
	}
}

func auditLog(actorID int64, action, entityID string, at time.Time, meta map[string]any) shared.AuditLog {
	return shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_ledger",
		EntityID: entityID,
		Meta:     meta,
		At:       at,
	}
}

func (s *Service) notify(ctx context.Context, entries []Entry) {
	if s.notifier == nil || len(entries) == 0 {
		return
	}
	if err := s.notifier.StockChanged(ctx, entries); err != nil {
		s.logger.Warn("stock ledger notify", slog.Any("error", err), slog.Int("entries", len(entries)))
	}
}

// normaliseTime matches the microsecond precision of timestamptz so in-memory
// ordering agrees with what the store returns.
func normaliseTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
