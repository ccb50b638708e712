package ledger

import (
	"fmt"
	"strings"
	"time"
)

// TransactionType enumerates the kinds of stock ledger entries.
type TransactionType uint8

const (
	// TypeOpening anchors a stream with the item's opening stock.
	TypeOpening TransactionType = iota + 1
	// TypeIn records stock received.
	TypeIn
	// TypeOut records stock dispatched.
	TypeOut
	// TypeRej records stock rejected (negative) or a rejected quantity restored (positive).
	TypeRej
)

// String returns the persisted text form of the type.
func (t TransactionType) String() string {
	switch t {
	case TypeOpening:
		return "OPENING"
	case TypeIn:
		return "IN"
	case TypeOut:
		return "OUT"
	case TypeRej:
		return "REJ"
	}
	return fmt.Sprintf("TransactionType(%d)", uint8(t))
}

// Valid reports whether t is one of the declared types.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeOpening, TypeIn, TypeOut, TypeRej:
		return true
	}
	return false
}

// ParseTransactionType converts the persisted text form back into a TransactionType.
func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OPENING":
		return TypeOpening, nil
	case "IN":
		return TypeIn, nil
	case "OUT":
		return TypeOut, nil
	case "REJ":
		return TypeRej, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// allowsQuantity reports whether qty carries the sign expected for t. Compensating
// entries carry the opposite sign of a normal entry of the same type.
func (t TransactionType) allowsQuantity(qty int64, compensating bool) bool {
	if compensating {
		qty = -qty
	}
	switch t {
	case TypeOpening, TypeIn:
		return qty > 0
	case TypeOut:
		return qty < 0
	case TypeRej:
		return qty != 0
	}
	return false
}

// SourceType identifies the kind of document an entry originates from.
type SourceType string

const (
	SourceItem          SourceType = "ITEM"
	SourceReceipt       SourceType = "RECEIPT"
	SourceDispatch      SourceType = "DISPATCH"
	SourceManufacturing SourceType = "MANUFACTURING"
	SourceAdjustment    SourceType = "ADJUSTMENT"
)

// Valid reports whether s is a known source type. The empty value is valid and means no source.
func (s SourceType) Valid() bool {
	switch s {
	case "", SourceItem, SourceReceipt, SourceDispatch, SourceManufacturing, SourceAdjustment:
		return true
	}
	return false
}

// SourceRef points at the document line that caused an entry.
type SourceRef struct {
	Type       SourceType
	DocumentID int64
	LineID     int64
}

// IsZero reports whether the reference is unset.
func (r SourceRef) IsZero() bool {
	return r.Type == "" && r.DocumentID == 0 && r.LineID == 0
}

// StreamKey identifies one ledger stream.
type StreamKey struct {
	CompanyID int64
	ItemID    int64
}

func (k StreamKey) String() string {
	return fmt.Sprintf("%d:%d", k.CompanyID, k.ItemID)
}

// Entry is one immutable stock ledger row.
type Entry struct {
	ID                int64
	CompanyID         int64
	ItemID            int64
	TransactionDate   time.Time
	Type              TransactionType
	ReferenceLabel    string
	CounterpartyLabel string
	ActorID           int64
	ActorName         string
	Source            SourceRef
	Reverses          int64
	QuantityChange    int64
	NetBalance        int64
	RecordedAt        time.Time
}

// Key returns the stream the entry belongs to.
func (e Entry) Key() StreamKey {
	return StreamKey{CompanyID: e.CompanyID, ItemID: e.ItemID}
}

// AppendInput describes a single signed quantity change handed to the ledger.
type AppendInput struct {
	CompanyID         int64           `validate:"required,gt=0"`
	ItemID            int64           `validate:"required,gt=0"`
	TransactionDate   time.Time       `validate:"required"`
	Type              TransactionType `validate:"required"`
	ReferenceLabel    string          `validate:"max=255"`
	CounterpartyLabel string          `validate:"max=255"`
	ActorID           int64           `validate:"gte=0"`
	ActorName         string          `validate:"max=120"`
	Source            SourceRef
	Reverses          int64 `validate:"gte=0"`
	QuantityChange    int64 `validate:"required"`
}

// Key returns the stream the input appends to.
func (in AppendInput) Key() StreamKey {
	return StreamKey{CompanyID: in.CompanyID, ItemID: in.ItemID}
}

// VoidInput asks for every entry of a source document (or one of its lines) to be compensated.
type VoidInput struct {
	CompanyID int64 `validate:"required,gt=0"`
	Source    SourceRef
	ActorID   int64  `validate:"gte=0"`
	ActorName string `validate:"max=120"`
	Reason    string `validate:"max=255"`
}

// Item is the ledger's view of the item registry record.
type Item struct {
	ID           int64
	CompanyID    int64
	SKU          string
	Name         string
	OpeningStock int64
	CurrentStock int64
	CreatedAt    time.Time
}

// ReceiptLine is a completed, active receiving document line.
type ReceiptLine struct {
	LineID            int64
	DocumentID        int64
	DocumentNumber    string
	ItemID            int64
	Received          int64
	Rejected          int64
	Short             int64
	ChallanNumber     string
	ChallanDate       time.Time
	Counterparty      string
	ActorID           int64
	ActorName         string
	BusinessDate      time.Time
	DocumentCreatedAt time.Time
}

// DispatchLine is a completed, active dispatch document line.
type DispatchLine struct {
	LineID            int64
	DocumentID        int64
	DocumentNumber    string
	ItemID            int64
	Dispatched        int64
	Counterparty      string
	ActorID           int64
	ActorName         string
	BusinessDate      time.Time
	DocumentCreatedAt time.Time
}

// Category is the user-facing grouping of transaction types used by history filters.
type Category string

const (
	CategoryIncoming Category = "incoming"
	CategoryOutgoing Category = "outgoing"
	CategoryOpening  Category = "opening"
	CategoryRejected Category = "rejected"
)

// TransactionType maps the category onto its ledger type.
func (c Category) TransactionType() (TransactionType, error) {
	switch Category(strings.ToLower(string(c))) {
	case CategoryIncoming:
		return TypeIn, nil
	case CategoryOutgoing:
		return TypeOut, nil
	case CategoryOpening:
		return TypeOpening, nil
	case CategoryRejected:
		return TypeRej, nil
	}
	return 0, fmt.Errorf("%w: category %q", ErrUnknownType, string(c))
}

// HistoryFilter narrows a history query.
type HistoryFilter struct {
	DateFrom time.Time
	DateTo   time.Time
	Types    []Category
	Search   string
	Limit    int
}

// HistoryRow is one ledger entry joined back to its originating document.
type HistoryRow struct {
	Entry          Entry
	DocumentNumber string
	Counterparty   string
	Received       *int64
	Rejected       *int64
	Short          *int64
	ChallanNumber  string
	ChallanDate    time.Time
}

// EntryQuery is the store-level page request behind History.
type EntryQuery struct {
	Key    StreamKey
	From   time.Time
	To     time.Time
	Types  []TransactionType
	Before *Cursor
	Limit  int
}

// Cursor is a keyset position in ledger order.
type Cursor struct {
	TransactionDate time.Time
	RecordedAt      time.Time
	ID              int64
}

// CursorOf returns the keyset position of e.
func CursorOf(e Entry) Cursor {
	return Cursor{TransactionDate: e.TransactionDate, RecordedAt: e.RecordedAt, ID: e.ID}
}

const referenceSeparator = " / "

// FormatReference builds the human-readable reference label for a document number.
func FormatReference(t TransactionType, documentNumber string) string {
	return t.String() + referenceSeparator + documentNumber
}

// TrimReference recovers the document number from a label built by FormatReference.
// Labels without the type prefix are returned trimmed but otherwise unchanged.
func TrimReference(t TransactionType, label string) string {
	prefix := t.String() + referenceSeparator
	if strings.HasPrefix(label, prefix) {
		return strings.TrimSpace(strings.TrimPrefix(label, prefix))
	}
	return strings.TrimSpace(label)
}
