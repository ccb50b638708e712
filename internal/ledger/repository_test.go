package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	lockWait := classify("op", &pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"})
	require.ErrorIs(t, lockWait, ErrConcurrency)
	require.ErrorIs(t, lockWait, ErrLockTimeout)

	deadlock := classify("op", &pgconn.PgError{Code: "40P01"})
	require.ErrorIs(t, deadlock, ErrConcurrency)
	var pgErr *pgconn.PgError
	require.True(t, errors.As(deadlock, &pgErr))
	require.Equal(t, "40P01", pgErr.Code)

	require.ErrorIs(t, classify("op", &pgconn.PgError{Code: "40001"}), ErrConcurrency)
	require.ErrorIs(t, classify("op", &pgconn.PgError{Code: "23505", ConstraintName: "items_pkey"}), ErrPersistence)

	doubleVoid := classify("op", &pgconn.PgError{Code: "23505", ConstraintName: reversesIndex})
	require.ErrorIs(t, doubleVoid, ErrConcurrency)
	require.ErrorIs(t, doubleVoid, ErrChainBroken)
	require.NotErrorIs(t, doubleVoid, ErrPersistence)

	missing := classify("op", pgx.ErrNoRows)
	require.ErrorIs(t, missing, ErrPersistence)
	require.ErrorIs(t, missing, pgx.ErrNoRows)

	already := validationError("inner", ErrInvalidQuantity)
	require.Same(t, already, classify("outer", already))
	require.Nil(t, classify("op", nil))
}

func TestBuildEntryQuery(t *testing.T) {
	builder := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	cursor := Cursor{TransactionDate: day(3), RecordedAt: day(3), ID: 42}
	sql, args, err := buildEntryQuery(builder, EntryQuery{
		Key:    StreamKey{CompanyID: 1, ItemID: 7},
		From:   day(1),
		To:     day(5),
		Types:  []TransactionType{TypeIn, TypeRej},
		Before: &cursor,
		Limit:  50,
	}).ToSql()
	require.NoError(t, err)
	require.Contains(t, sql, "FROM stock_ledger_entries WHERE company_id = $1 AND item_id = $2")
	require.Contains(t, sql, "transaction_date >= $3")
	require.Contains(t, sql, "transaction_date <= $4")
	require.Contains(t, sql, "tx_type IN ($5,$6)")
	require.Contains(t, sql, "(transaction_date, recorded_at, id) < ($7, $8, $9)")
	require.Contains(t, sql, "ORDER BY transaction_date DESC, recorded_at DESC, id DESC LIMIT 50")
	require.Equal(t, []any{int64(1), int64(7), day(1), day(5), "IN", "REJ", day(3), day(3), int64(42)}, args)

	sql, args, err = buildEntryQuery(builder, EntryQuery{Key: StreamKey{CompanyID: 1, ItemID: 7}}).ToSql()
	require.NoError(t, err)
	require.NotContains(t, sql, "LIMIT")
	require.Len(t, args, 2)
}

func TestErrorMessage(t *testing.T) {
	err := notFoundError("ledger.append", ErrItemNotFound)
	require.Equal(t, "ledger.append: ledger: item not found", err.Error())
	require.True(t, IsKind(err))
	require.False(t, IsKind(ErrItemNotFound))
}

type stubTx struct {
	txQuerier
	isolation string
	prepares  int
	execs     []string
}

func (s *stubTx) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	s.prepares++
	return stubRow{values: []string{fmt.Sprint(args...), s.isolation}}
}

func (s *stubTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, sql)
	return pgconn.NewCommandTag("SELECT 1"), nil
}

type stubRow struct {
	values []string
}

func (r stubRow) Scan(dest ...any) error {
	for i, d := range dest {
		*(d.(*string)) = r.values[i]
	}
	return nil
}

func TestLockingRefusesSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	key := StreamKey{CompanyID: 1, ItemID: 7}
	for _, level := range []string{"repeatable read", "serializable"} {
		t.Run(level, func(t *testing.T) {
			tx := &stubTx{isolation: level}
			repo := newTxRepository(tx, time.Second)

			err := repo.LockStream(ctx, key)
			require.ErrorIs(t, err, ErrConcurrency)
			require.ErrorIs(t, err, ErrChainBroken)
			require.ErrorIs(t, repo.LockCompany(ctx, key.CompanyID, false), ErrConcurrency)
			require.Empty(t, tx.execs)
		})
	}
}

func TestLockingUnderReadCommitted(t *testing.T) {
	ctx := context.Background()
	key := StreamKey{CompanyID: 1, ItemID: 7}
	tx := &stubTx{isolation: readCommitted}
	repo := newTxRepository(tx, 750*time.Millisecond)

	require.NoError(t, repo.LockCompany(ctx, key.CompanyID, false))
	require.NoError(t, repo.LockStream(ctx, key))
	require.Equal(t, 1, tx.prepares)
	require.Equal(t, []string{
		`SELECT pg_advisory_xact_lock_shared($1)`,
		`SELECT pg_advisory_xact_lock($1)`,
	}, tx.execs)
}
