package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/stock-ledger/internal/shared"
)

// memoryStore is an in-memory ledger store. Locks behave like transaction scoped
// advisory locks and writes become visible to others only on commit.
type memoryStore struct {
	mu         sync.Mutex
	items      map[StreamKey]Item
	entries    []Entry
	receipts   map[StreamKey][]ReceiptLine
	dispatches map[StreamKey][]DispatchLine
	nextID     int64

	streamLocks  map[StreamKey]*sync.Mutex
	companyLocks map[int64]*sync.RWMutex

	failInsert error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		items:        make(map[StreamKey]Item),
		receipts:     make(map[StreamKey][]ReceiptLine),
		dispatches:   make(map[StreamKey][]DispatchLine),
		streamLocks:  make(map[StreamKey]*sync.Mutex),
		companyLocks: make(map[int64]*sync.RWMutex),
	}
}

func (s *memoryStore) addItem(item Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[StreamKey{CompanyID: item.CompanyID, ItemID: item.ID}] = item
}

func (s *memoryStore) addReceipt(key StreamKey, line ReceiptLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	line.ItemID = key.ItemID
	s.receipts[key] = append(s.receipts[key], line)
}

func (s *memoryStore) addDispatch(key StreamKey, line DispatchLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	line.ItemID = key.ItemID
	s.dispatches[key] = append(s.dispatches[key], line)
}

func (s *memoryStore) item(key StreamKey) Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[key]
}

func (s *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{
		store:     s,
		deleted:   make(map[StreamKey]bool),
		stock:     make(map[StreamKey]int64),
		streams:   make(map[StreamKey]bool),
		companies: make(map[int64]bool),
	}
	defer tx.release()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *memoryStore) committed(key StreamKey) []Entry {
	var out []Entry
	for _, e := range s.entries {
		if e.Key() == key {
			out = append(out, e)
		}
	}
	return out
}

func (s *memoryStore) LatestEntry(ctx context.Context, key StreamKey) (Entry, error) {
	entries, _ := s.StreamEntries(ctx, key)
	if len(entries) == 0 {
		return Entry{}, ErrEntryNotFound
	}
	return entries[len(entries)-1], nil
}

func (s *memoryStore) StreamEntries(_ context.Context, key StreamKey) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.committed(key)
	SortEntries(entries)
	return entries, nil
}

func (s *memoryStore) ListEntries(ctx context.Context, query EntryQuery) ([]Entry, error) {
	entries, _ := s.StreamEntries(ctx, query.Key)
	out := make([]Entry, 0)
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if !query.From.IsZero() && e.TransactionDate.Before(query.From) {
			continue
		}
		if !query.To.IsZero() && e.TransactionDate.After(query.To) {
			continue
		}
		if len(query.Types) > 0 && !containsType(query.Types, e.Type) {
			continue
		}
		if query.Before != nil && !Before(e, Entry{TransactionDate: query.Before.TransactionDate, RecordedAt: query.Before.RecordedAt, ID: query.Before.ID}) {
			continue
		}
		out = append(out, e)
		if query.Limit > 0 && len(out) == query.Limit {
			break
		}
	}
	return out, nil
}

func (s *memoryStore) ListItems(_ context.Context, companyID int64) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.companyItems(companyID), nil
}

func (s *memoryStore) companyItems(companyID int64) []Item {
	var items []Item
	for key, item := range s.items {
		if key.CompanyID == companyID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func (s *memoryStore) FindReceiptLines(_ context.Context, companyID int64, lineIDs []int64) (map[int64]ReceiptLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]ReceiptLine)
	for key, lines := range s.receipts {
		if key.CompanyID != companyID {
			continue
		}
		for _, line := range lines {
			if containsID(lineIDs, line.LineID) {
				out[line.LineID] = line
			}
		}
	}
	return out, nil
}

func (s *memoryStore) FindDispatchLines(_ context.Context, companyID int64, lineIDs []int64) (map[int64]DispatchLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]DispatchLine)
	for key, lines := range s.dispatches {
		if key.CompanyID != companyID {
			continue
		}
		for _, line := range lines {
			if containsID(lineIDs, line.LineID) {
				out[line.LineID] = line
			}
		}
	}
	return out, nil
}

type memoryTx struct {
	store     *memoryStore
	inserted  []Entry
	deleted   map[StreamKey]bool
	stock     map[StreamKey]int64
	unlock    []func()
	streams   map[StreamKey]bool
	companies map[int64]bool
}

func (tx *memoryTx) release() {
	for i := len(tx.unlock) - 1; i >= 0; i-- {
		tx.unlock[i]()
	}
}

func (tx *memoryTx) commit() {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	for _, e := range s.entries {
		if !tx.deleted[e.Key()] {
			kept = append(kept, e)
		}
	}
	s.entries = append(kept, tx.inserted...)
	for key, qty := range tx.stock {
		item := s.items[key]
		item.CurrentStock = qty
		s.items[key] = item
	}
}

// Advisory locks are re-entrant within a transaction, so a second request is a no-op.
func (tx *memoryTx) LockCompany(_ context.Context, companyID int64, exclusive bool) error {
	if tx.companies[companyID] {
		return nil
	}
	tx.companies[companyID] = true
	s := tx.store
	s.mu.Lock()
	lock, ok := s.companyLocks[companyID]
	if !ok {
		lock = &sync.RWMutex{}
		s.companyLocks[companyID] = lock
	}
	s.mu.Unlock()
	if exclusive {
		lock.Lock()
		tx.unlock = append(tx.unlock, lock.Unlock)
		return nil
	}
	lock.RLock()
	tx.unlock = append(tx.unlock, lock.RUnlock)
	return nil
}

func (tx *memoryTx) LockStream(_ context.Context, key StreamKey) error {
	if tx.streams[key] {
		return nil
	}
	tx.streams[key] = true
	s := tx.store
	s.mu.Lock()
	lock, ok := s.streamLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.streamLocks[key] = lock
	}
	s.mu.Unlock()
	lock.Lock()
	tx.unlock = append(tx.unlock, lock.Unlock)
	return nil
}

func (tx *memoryTx) FindItem(_ context.Context, key StreamKey) (Item, error) {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[key]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	if qty, ok := tx.stock[key]; ok {
		item.CurrentStock = qty
	}
	return item, nil
}

func (tx *memoryTx) ListItems(_ context.Context, companyID int64) ([]Item, error) {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.companyItems(companyID), nil
}

func (tx *memoryTx) UpdateItemStock(_ context.Context, key StreamKey, qty int64) error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; !ok {
		return ErrItemNotFound
	}
	tx.stock[key] = qty
	return nil
}

func (tx *memoryTx) visible(key StreamKey) []Entry {
	s := tx.store
	s.mu.Lock()
	var out []Entry
	if !tx.deleted[key] {
		out = s.committed(key)
	}
	s.mu.Unlock()
	for _, e := range tx.inserted {
		if e.Key() == key {
			out = append(out, e)
		}
	}
	SortEntries(out)
	return out
}

func (tx *memoryTx) LatestEntry(_ context.Context, key StreamKey) (Entry, error) {
	entries := tx.visible(key)
	if len(entries) == 0 {
		return Entry{}, ErrEntryNotFound
	}
	return entries[len(entries)-1], nil
}

func (tx *memoryTx) InsertEntry(_ context.Context, entry Entry) (Entry, error) {
	s := tx.store
	s.mu.Lock()
	if s.failInsert != nil {
		s.mu.Unlock()
		return Entry{}, s.failInsert
	}
	s.nextID++
	entry.ID = s.nextID
	s.mu.Unlock()
	tx.inserted = append(tx.inserted, entry)
	return entry, nil
}

func (tx *memoryTx) InsertEntries(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if _, err := tx.InsertEntry(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (tx *memoryTx) DeleteEntries(_ context.Context, key StreamKey) (int64, error) {
	n := int64(len(tx.visible(key)))
	tx.deleted[key] = true
	kept := tx.inserted[:0]
	for _, e := range tx.inserted {
		if e.Key() != key {
			kept = append(kept, e)
		}
	}
	tx.inserted = kept
	return n, nil
}

func (tx *memoryTx) SourceEntries(_ context.Context, companyID int64, ref SourceRef) ([]Entry, error) {
	s := tx.store
	s.mu.Lock()
	var keys []StreamKey
	for key := range s.items {
		if key.CompanyID == companyID {
			keys = append(keys, key)
		}
	}
	s.mu.Unlock()
	var out []Entry
	for _, key := range keys {
		for _, e := range tx.visible(key) {
			if e.Source.Type != ref.Type || e.Source.DocumentID != ref.DocumentID {
				continue
			}
			if ref.LineID != 0 && e.Source.LineID != ref.LineID {
				continue
			}
			out = append(out, e)
		}
	}
	return out, nil
}

func (tx *memoryTx) ReceiptLines(_ context.Context, key StreamKey) ([]ReceiptLine, error) {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ReceiptLine(nil), s.receipts[key]...), nil
}

func (tx *memoryTx) DispatchLines(_ context.Context, key StreamKey) ([]DispatchLine, error) {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DispatchLine(nil), s.dispatches[key]...), nil
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
	fail error
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail != nil {
		return a.fail
	}
	a.logs = append(a.logs, log)
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	batches [][]Entry
}

func (n *recordingNotifier) StockChanged(_ context.Context, entries []Entry) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, append([]Entry(nil), entries...))
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.batches)
}

func containsType(types []TransactionType, t TransactionType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func containsID(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return baseTime.AddDate(0, 0, n)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
