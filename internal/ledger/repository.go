package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stock-ledger/internal/platform/db"
)

const (
	entriesTable = "stock_ledger_entries"
	// reversesIndex allows one compensation per entry.
	reversesIndex = "uq_stock_ledger_reverses"
	readCommitted = "read committed"
)

var entryColumns = []string{
	"id", "company_id", "item_id", "transaction_date", "tx_type", "reference_label",
	"counterparty_label", "actor_id", "actor_name", "source_type", "source_document_id",
	"source_line_id", "reverses_id", "quantity_change", "net_balance", "recorded_at",
}

// TxRepository exposes the operations available inside one unit of work.
type TxRepository interface {
	LockCompany(ctx context.Context, companyID int64, exclusive bool) error
	LockStream(ctx context.Context, key StreamKey) error
	FindItem(ctx context.Context, key StreamKey) (Item, error)
	ListItems(ctx context.Context, companyID int64) ([]Item, error)
	UpdateItemStock(ctx context.Context, key StreamKey, qty int64) error
	LatestEntry(ctx context.Context, key StreamKey) (Entry, error)
	InsertEntry(ctx context.Context, entry Entry) (Entry, error)
	InsertEntries(ctx context.Context, entries []Entry) error
	DeleteEntries(ctx context.Context, key StreamKey) (int64, error)
	SourceEntries(ctx context.Context, companyID int64, ref SourceRef) ([]Entry, error)
	ReceiptLines(ctx context.Context, key StreamKey) ([]ReceiptLine, error)
	DispatchLines(ctx context.Context, key StreamKey) ([]DispatchLine, error)
}

// RepositoryConfig tunes the PostgreSQL store.
type RepositoryConfig struct {
	LockTimeout time.Duration
}

// Repository persists the stock ledger in PostgreSQL.
type Repository struct {
	pool        *pgxpool.Pool
	builder     squirrel.StatementBuilderType
	lockTimeout time.Duration
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, cfg RepositoryConfig) *Repository {
	timeout := cfg.LockTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Repository{
		pool:        pool,
		builder:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		lockTimeout: timeout,
	}
}

// WithTx executes fn inside a read-committed transaction. The balance read after a
// stream lock must observe rows committed while the lock was awaited, which a
// repeatable-read snapshot would hide.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx, r.lockTimeout))
	})
}

// txQuerier is the part of pgx.Tx the ledger uses.
type txQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type txRepository struct {
	tx          txQuerier
	builder     squirrel.StatementBuilderType
	lockTimeout time.Duration
	prepared    bool
}

// NewTxRepository adopts a transaction opened by the caller so ledger writes commit or
// roll back together with the business operation that caused them. The transaction
// must run at READ COMMITTED; locking refuses any other level.
func NewTxRepository(tx pgx.Tx, lockTimeout time.Duration) TxRepository {
	return newTxRepository(tx, lockTimeout)
}

func newTxRepository(tx txQuerier, lockTimeout time.Duration) *txRepository {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &txRepository{
		tx:          tx,
		builder:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		lockTimeout: lockTimeout,
	}
}

// prepareLocking bounds the lock wait and checks the isolation level once per
// transaction. A snapshot older than the stream lock would read a stale balance.
func (r *txRepository) prepareLocking(ctx context.Context) error {
	if r.prepared {
		return nil
	}
	ms := fmt.Sprintf("%dms", r.lockTimeout.Milliseconds())
	var timeout, level string
	err := r.tx.QueryRow(ctx, `SELECT set_config('lock_timeout', $1, true), current_setting('transaction_isolation')`, ms).
		Scan(&timeout, &level)
	if err != nil {
		return classify("ledger.lock", err)
	}
	if level != readCommitted {
		return concurrencyError("ledger.lock", fmt.Errorf("%w: transaction isolation is %q, appends need %q", ErrChainBroken, level, readCommitted))
	}
	r.prepared = true
	return nil
}

func (r *txRepository) LockCompany(ctx context.Context, companyID int64, exclusive bool) error {
	if err := r.prepareLocking(ctx); err != nil {
		return err
	}
	query := `SELECT pg_advisory_xact_lock_shared($1)`
	if exclusive {
		query = `SELECT pg_advisory_xact_lock($1)`
	}
	if _, err := r.tx.Exec(ctx, query, CompanyLockKey(companyID)); err != nil {
		return classify("ledger.lock_company", err)
	}
	return nil
}

func (r *txRepository) LockStream(ctx context.Context, key StreamKey) error {
	if err := r.prepareLocking(ctx); err != nil {
		return err
	}
	if _, err := r.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, StreamLockKey(key)); err != nil {
		return classify("ledger.lock_stream", err)
	}
	return nil
}

func (r *txRepository) FindItem(ctx context.Context, key StreamKey) (Item, error) {
	var row itemRow
	err := pgxscan.Get(ctx, r.tx, &row, `SELECT id, company_id, sku, name, opening_stock, current_stock, created_at
FROM items WHERE id=$1 AND company_id=$2`, key.ItemID, key.CompanyID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, classify("ledger.find_item", err)
	}
	return row.item(), nil
}

func (r *txRepository) ListItems(ctx context.Context, companyID int64) ([]Item, error) {
	return listItems(ctx, r.tx, companyID)
}

func (r *txRepository) UpdateItemStock(ctx context.Context, key StreamKey, qty int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE items SET current_stock=$3, updated_at=NOW() WHERE id=$1 AND company_id=$2`, key.ItemID, key.CompanyID, qty)
	if err != nil {
		return classify("ledger.update_item_stock", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepository) LatestEntry(ctx context.Context, key StreamKey) (Entry, error) {
	return latestEntry(ctx, r.tx, r.builder, key)
}

func (r *txRepository) InsertEntry(ctx context.Context, entry Entry) (Entry, error) {
	sql, args, err := r.builder.Insert(entriesTable).
		Columns(entryColumns[1:]...).
		Values(entryValues(entry)...).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return Entry{}, fmt.Errorf("build insert entry: %w", err)
	}
	if err := r.tx.QueryRow(ctx, sql, args...).Scan(&entry.ID); err != nil {
		return Entry{}, classify("ledger.insert_entry", err)
	}
	return entry, nil
}

func (r *txRepository) InsertEntries(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, entry := range entries {
		sql, args, err := r.builder.Insert(entriesTable).
			Columns(entryColumns[1:]...).
			Values(entryValues(entry)...).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert entries: %w", err)
		}
		batch.Queue(sql, args...)
	}
	results := r.tx.SendBatch(ctx, batch)
	for range entries {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return classify("ledger.insert_entries", err)
		}
	}
	if err := results.Close(); err != nil {
		return classify("ledger.insert_entries", err)
	}
	return nil
}

func (r *txRepository) DeleteEntries(ctx context.Context, key StreamKey) (int64, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM stock_ledger_entries WHERE company_id=$1 AND item_id=$2`, key.CompanyID, key.ItemID)
	if err != nil {
		return 0, classify("ledger.delete_entries", err)
	}
	return tag.RowsAffected(), nil
}

func (r *txRepository) SourceEntries(ctx context.Context, companyID int64, ref SourceRef) ([]Entry, error) {
	q := r.builder.Select(entryColumns...).From(entriesTable).
		Where(squirrel.Eq{"company_id": companyID, "source_type": string(ref.Type), "source_document_id": ref.DocumentID}).
		OrderBy("transaction_date ASC", "recorded_at ASC", "id ASC")
	if ref.LineID != 0 {
		q = q.Where(squirrel.Eq{"source_line_id": ref.LineID})
	}
	return selectEntries(ctx, r.tx, q)
}

func (r *txRepository) ReceiptLines(ctx context.Context, key StreamKey) ([]ReceiptLine, error) {
	q := receiptLineQuery(r.builder).
		Where(squirrel.Eq{"d.company_id": key.CompanyID, "l.item_id": key.ItemID, "d.status": "COMPLETED"}).
		Where("d.is_active AND l.is_active").
		OrderBy("d.business_date ASC", "d.created_at ASC", "l.id ASC")
	return selectReceiptLines(ctx, r.tx, q)
}

func (r *txRepository) DispatchLines(ctx context.Context, key StreamKey) ([]DispatchLine, error) {
	q := dispatchLineQuery(r.builder).
		Where(squirrel.Eq{"d.company_id": key.CompanyID, "l.item_id": key.ItemID, "d.status": "COMPLETED"}).
		Where("d.is_active AND l.is_active").
		OrderBy("d.business_date ASC", "d.created_at ASC", "l.id ASC")
	return selectDispatchLines(ctx, r.tx, q)
}

// LatestEntry returns the newest entry of a stream without locking it.
func (r *Repository) LatestEntry(ctx context.Context, key StreamKey) (Entry, error) {
	return latestEntry(ctx, r.pool, r.builder, key)
}

// ListEntries returns one page of a stream, newest first.
func (r *Repository) ListEntries(ctx context.Context, query EntryQuery) ([]Entry, error) {
	return selectEntries(ctx, r.pool, buildEntryQuery(r.builder, query))
}

// StreamEntries returns the whole stream in ledger order.
func (r *Repository) StreamEntries(ctx context.Context, key StreamKey) ([]Entry, error) {
	q := r.builder.Select(entryColumns...).From(entriesTable).
		Where(squirrel.Eq{"company_id": key.CompanyID, "item_id": key.ItemID}).
		OrderBy("transaction_date ASC", "recorded_at ASC", "id ASC")
	return selectEntries(ctx, r.pool, q)
}

// ListItems returns the company's items ordered by id.
func (r *Repository) ListItems(ctx context.Context, companyID int64) ([]Item, error) {
	return listItems(ctx, r.pool, companyID)
}

// ListCompanyIDs returns every company owning at least one item.
func (r *Repository) ListCompanyIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := pgxscan.Select(ctx, r.pool, &ids, `SELECT DISTINCT company_id FROM items ORDER BY company_id`); err != nil {
		return nil, classify("ledger.list_companies", err)
	}
	return ids, nil
}

// FindReceiptLines resolves receiving lines by id regardless of document status.
func (r *Repository) FindReceiptLines(ctx context.Context, companyID int64, lineIDs []int64) (map[int64]ReceiptLine, error) {
	if len(lineIDs) == 0 {
		return map[int64]ReceiptLine{}, nil
	}
	q := receiptLineQuery(r.builder).Where(squirrel.Eq{"d.company_id": companyID, "l.id": lineIDs})
	lines, err := selectReceiptLines(ctx, r.pool, q)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]ReceiptLine, len(lines))
	for _, line := range lines {
		out[line.LineID] = line
	}
	return out, nil
}

// FindDispatchLines resolves dispatch lines by id regardless of document status.
func (r *Repository) FindDispatchLines(ctx context.Context, companyID int64, lineIDs []int64) (map[int64]DispatchLine, error) {
	if len(lineIDs) == 0 {
		return map[int64]DispatchLine{}, nil
	}
	q := dispatchLineQuery(r.builder).Where(squirrel.Eq{"d.company_id": companyID, "l.id": lineIDs})
	lines, err := selectDispatchLines(ctx, r.pool, q)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]DispatchLine, len(lines))
	for _, line := range lines {
		out[line.LineID] = line
	}
	return out, nil
}

func buildEntryQuery(builder squirrel.StatementBuilderType, query EntryQuery) squirrel.SelectBuilder {
	q := builder.Select(entryColumns...).From(entriesTable).
		Where(squirrel.Eq{"company_id": query.Key.CompanyID, "item_id": query.Key.ItemID})
	if !query.From.IsZero() {
		q = q.Where(squirrel.GtOrEq{"transaction_date": query.From})
	}
	if !query.To.IsZero() {
		q = q.Where(squirrel.LtOrEq{"transaction_date": query.To})
	}
	if len(query.Types) > 0 {
		types := make([]string, 0, len(query.Types))
		for _, t := range query.Types {
			types = append(types, t.String())
		}
		q = q.Where(squirrel.Eq{"tx_type": types})
	}
	if query.Before != nil {
		q = q.Where(squirrel.Expr("(transaction_date, recorded_at, id) < (?, ?, ?)",
			query.Before.TransactionDate, query.Before.RecordedAt, query.Before.ID))
	}
	q = q.OrderBy("transaction_date DESC", "recorded_at DESC", "id DESC")
	if query.Limit > 0 {
		q = q.Limit(uint64(query.Limit))
	}
	return q
}

func latestEntry(ctx context.Context, querier pgxscan.Querier, builder squirrel.StatementBuilderType, key StreamKey) (Entry, error) {
	entries, err := selectEntries(ctx, querier, buildEntryQuery(builder, EntryQuery{Key: key, Limit: 1}))
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, ErrEntryNotFound
	}
	return entries[0], nil
}

func selectEntries(ctx context.Context, querier pgxscan.Querier, q squirrel.SelectBuilder) ([]Entry, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select entries: %w", err)
	}
	var rows []entryRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, classify("ledger.select_entries", err)
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.entry()
		if err != nil {
			return nil, persistenceError("ledger.select_entries", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func listItems(ctx context.Context, querier pgxscan.Querier, companyID int64) ([]Item, error) {
	var rows []itemRow
	err := pgxscan.Select(ctx, querier, &rows, `SELECT id, company_id, sku, name, opening_stock, current_stock, created_at
FROM items WHERE company_id=$1 ORDER BY id`, companyID)
	if err != nil {
		return nil, classify("ledger.list_items", err)
	}
	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.item())
	}
	return items, nil
}

func receiptLineQuery(builder squirrel.StatementBuilderType) squirrel.SelectBuilder {
	return builder.Select(
		"l.id AS line_id", "d.id AS document_id", "d.number AS document_number", "l.item_id",
		"l.received_qty AS received", "l.rejected_qty AS rejected", "l.short_qty AS short",
		"COALESCE(l.challan_number, '') AS challan_number", "l.challan_date", "d.counterparty",
		"d.created_by AS actor_id", "d.created_by_name AS actor_name", "d.business_date",
		"d.created_at AS document_created_at",
	).From("receiving_document_lines l").Join("receiving_documents d ON d.id = l.document_id")
}

func dispatchLineQuery(builder squirrel.StatementBuilderType) squirrel.SelectBuilder {
	return builder.Select(
		"l.id AS line_id", "d.id AS document_id", "d.number AS document_number", "l.item_id",
		"l.dispatched_qty AS dispatched", "d.counterparty",
		"d.created_by AS actor_id", "d.created_by_name AS actor_name", "d.business_date",
		"d.created_at AS document_created_at",
	).From("dispatch_document_lines l").Join("dispatch_documents d ON d.id = l.document_id")
}

func selectReceiptLines(ctx context.Context, querier pgxscan.Querier, q squirrel.SelectBuilder) ([]ReceiptLine, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select receipt lines: %w", err)
	}
	var rows []receiptRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, classify("ledger.receipt_lines", err)
	}
	lines := make([]ReceiptLine, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, row.line())
	}
	return lines, nil
}

func selectDispatchLines(ctx context.Context, querier pgxscan.Querier, q squirrel.SelectBuilder) ([]DispatchLine, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select dispatch lines: %w", err)
	}
	var rows []dispatchRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, classify("ledger.dispatch_lines", err)
	}
	lines := make([]DispatchLine, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, row.line())
	}
	return lines, nil
}

// classify maps store failures onto the error taxonomy. Lock waits, deadlocks,
// serialization failures and a second compensation of one entry are concurrency
// errors. Everything else is persistence.
func classify(op string, err error) error {
	if err == nil || IsKind(err) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return concurrencyError(op, fmt.Errorf("%w: %w", ErrLockTimeout, err))
		case "40P01", "40001":
			return concurrencyError(op, err)
		case "23505":
			if pgErr.ConstraintName == reversesIndex {
				return concurrencyError(op, fmt.Errorf("%w: %w", ErrChainBroken, err))
			}
		}
	}
	return persistenceError(op, err)
}

type entryRow struct {
	ID                int64     `db:"id"`
	CompanyID         int64     `db:"company_id"`
	ItemID            int64     `db:"item_id"`
	TransactionDate   time.Time `db:"transaction_date"`
	TxType            string    `db:"tx_type"`
	ReferenceLabel    string    `db:"reference_label"`
	CounterpartyLabel string    `db:"counterparty_label"`
	ActorID           *int64    `db:"actor_id"`
	ActorName         string    `db:"actor_name"`
	SourceType        *string   `db:"source_type"`
	SourceDocumentID  *int64    `db:"source_document_id"`
	SourceLineID      *int64    `db:"source_line_id"`
	ReversesID        *int64    `db:"reverses_id"`
	QuantityChange    int64     `db:"quantity_change"`
	NetBalance        int64     `db:"net_balance"`
	RecordedAt        time.Time `db:"recorded_at"`
}

func (r entryRow) entry() (Entry, error) {
	typ, err := ParseTransactionType(r.TxType)
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{
		ID:                r.ID,
		CompanyID:         r.CompanyID,
		ItemID:            r.ItemID,
		TransactionDate:   r.TransactionDate,
		Type:              typ,
		ReferenceLabel:    r.ReferenceLabel,
		CounterpartyLabel: r.CounterpartyLabel,
		ActorID:           deref(r.ActorID),
		ActorName:         r.ActorName,
		Reverses:          deref(r.ReversesID),
		QuantityChange:    r.QuantityChange,
		NetBalance:        r.NetBalance,
		RecordedAt:        r.RecordedAt,
	}
	if r.SourceType != nil {
		entry.Source = SourceRef{Type: SourceType(*r.SourceType), DocumentID: deref(r.SourceDocumentID), LineID: deref(r.SourceLineID)}
	}
	return entry, nil
}

func entryValues(e Entry) []any {
	var sourceType any
	if e.Source.Type != "" {
		sourceType = string(e.Source.Type)
	}
	return []any{
		e.CompanyID, e.ItemID, e.TransactionDate, e.Type.String(), e.ReferenceLabel,
		e.CounterpartyLabel, nullInt(e.ActorID), e.ActorName, sourceType, nullInt(e.Source.DocumentID),
		nullInt(e.Source.LineID), nullInt(e.Reverses), e.QuantityChange, e.NetBalance, e.RecordedAt,
	}
}

type itemRow struct {
	ID           int64     `db:"id"`
	CompanyID    int64     `db:"company_id"`
	SKU          string    `db:"sku"`
	Name         string    `db:"name"`
	OpeningStock int64     `db:"opening_stock"`
	CurrentStock int64     `db:"current_stock"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r itemRow) item() Item {
	return Item(r)
}

type receiptRow struct {
	LineID            int64      `db:"line_id"`
	DocumentID        int64      `db:"document_id"`
	DocumentNumber    string     `db:"document_number"`
	ItemID            int64      `db:"item_id"`
	Received          int64      `db:"received"`
	Rejected          int64      `db:"rejected"`
	Short             int64      `db:"short"`
	ChallanNumber     string     `db:"challan_number"`
	ChallanDate       *time.Time `db:"challan_date"`
	Counterparty      string     `db:"counterparty"`
	ActorID           *int64     `db:"actor_id"`
	ActorName         string     `db:"actor_name"`
	BusinessDate      time.Time  `db:"business_date"`
	DocumentCreatedAt time.Time  `db:"document_created_at"`
}

func (r receiptRow) line() ReceiptLine {
	line := ReceiptLine{
		LineID:            r.LineID,
		DocumentID:        r.DocumentID,
		DocumentNumber:    r.DocumentNumber,
		ItemID:            r.ItemID,
		Received:          r.Received,
		Rejected:          r.Rejected,
		Short:             r.Short,
		ChallanNumber:     r.ChallanNumber,
		Counterparty:      r.Counterparty,
		ActorID:           deref(r.ActorID),
		ActorName:         r.ActorName,
		BusinessDate:      r.BusinessDate,
		DocumentCreatedAt: r.DocumentCreatedAt,
	}
	if r.ChallanDate != nil {
		line.ChallanDate = *r.ChallanDate
	}
	return line
}

type dispatchRow struct {
	LineID            int64     `db:"line_id"`
	DocumentID        int64     `db:"document_id"`
	DocumentNumber    string    `db:"document_number"`
	ItemID            int64     `db:"item_id"`
	Dispatched        int64     `db:"dispatched"`
	Counterparty      string    `db:"counterparty"`
	ActorID           *int64    `db:"actor_id"`
	ActorName         string    `db:"actor_name"`
	BusinessDate      time.Time `db:"business_date"`
	DocumentCreatedAt time.Time `db:"document_created_at"`
}

func (r dispatchRow) line() DispatchLine {
	return DispatchLine{
		LineID:            r.LineID,
		DocumentID:        r.DocumentID,
		DocumentNumber:    r.DocumentNumber,
		ItemID:            r.ItemID,
		Dispatched:        r.Dispatched,
		Counterparty:      r.Counterparty,
		ActorID:           deref(r.ActorID),
		ActorName:         r.ActorName,
		BusinessDate:      r.BusinessDate,
		DocumentCreatedAt: r.DocumentCreatedAt,
	}
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func deref(value *int64) int64 {
	if value == nil {
		return 0
	}
	return *value
}
