package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/example/gl-core/internal/ledger"
)

const accountColumns = `id, tenant_id, code, name, type, sub_type, parent_id, currency, description,
	cash_flow_category, balance_cents, is_active, is_system, created_at, updated_at`

func scanAccount(r row) (*ledger.Account, error) {
	var (
		a                    ledger.Account
		parentID             sql.NullString
		balance              int64
		createdAt, updatedAt dbTime
	)
	err := r.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.SubType, &parentID, &a.Currency, &a.Description,
		&a.CashFlowCategory, &balance, &a.IsActive, &a.IsSystem, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	a.ParentID = parentID.String
	a.Balance = fromCents(balance)
	a.CreatedAt = createdAt.Time
	a.UpdatedAt = updatedAt.Time
	return &a, nil
}

func (t *tx) getAccount(ctx context.Context, where string, args ...any) (*ledger.Account, error) {
	a, err := scanAccount(t.queryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+where, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (t *tx) GetAccount(ctx context.Context, tenantID, id string) (*ledger.Account, error) {
	return t.getAccount(ctx, `tenant_id = ? AND id = ?`, tenantID, id)
}

func (t *tx) GetAccountByCode(ctx context.Context, tenantID, code string) (*ledger.Account, error) {
	return t.getAccount(ctx, `tenant_id = ? AND code = ?`, tenantID, code)
}

func (t *tx) ListAccounts(ctx context.Context, tenantID string) ([]*ledger.Account, error) {
	rs, err := t.query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id = ? ORDER BY code`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rs.Close()

	var accounts []*ledger.Account
	for rs.Next() {
		a, err := scanAccount(rs)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rs.Err()
}

func accountArgs(a *ledger.Account) []any {
	return []any{a.ID, a.TenantID, a.Code, a.Name, string(a.Type), string(a.SubType), nullable(a.ParentID), a.Currency,
		a.Description, string(a.CashFlowCategory), toCents(a.Balance), a.IsActive, a.IsSystem, a.CreatedAt.UTC(), a.UpdatedAt.UTC()}
}

const insertAccount = `INSERT INTO accounts (` + accountColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (t *tx) InsertAccount(ctx context.Context, a *ledger.Account) error {
	if _, err := t.exec(ctx, insertAccount, accountArgs(a)...); err != nil {
		if t.dialect.isUniqueViolation(err) {
			return fmt.Errorf("code %s: %w", a.Code, ledger.ErrDuplicateCode)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func (t *tx) InsertAccountIfAbsent(ctx context.Context, a *ledger.Account) (bool, error) {
	n, err := t.exec(ctx, insertAccount+` ON CONFLICT (tenant_id, code) DO NOTHING`, accountArgs(a)...)
	if err != nil {
		return false, fmt.Errorf("failed to insert account: %w", err)
	}
	return n > 0, nil
}

func (t *tx) UpdateAccount(ctx context.Context, a *ledger.Account) error {
	n, err := t.exec(ctx, `UPDATE accounts SET code = ?, name = ?, type = ?, sub_type = ?, parent_id = ?, currency = ?,
		description = ?, cash_flow_category = ?, is_active = ?, is_system = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?`,
		a.Code, a.Name, string(a.Type), string(a.SubType), nullable(a.ParentID), a.Currency,
		a.Description, string(a.CashFlowCategory), a.IsActive, a.IsSystem, a.UpdatedAt.UTC(),
		a.TenantID, a.ID)
	if err != nil {
		if t.dialect.isUniqueViolation(err) {
			return fmt.Errorf("code %s: %w", a.Code, ledger.ErrDuplicateCode)
		}
		return fmt.Errorf("failed to update account: %w", err)
	}
	if n == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

func (t *tx) DeleteAccount(ctx context.Context, tenantID, id string) error {
	n, err := t.exec(ctx, `DELETE FROM accounts WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if n == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

func (t *tx) CountChildren(ctx context.Context, tenantID, id string) (int, error) {
	n, err := t.count(ctx, `SELECT COUNT(*) FROM accounts WHERE tenant_id = ? AND parent_id = ?`, tenantID, id)
	if err != nil {
		return 0, fmt.Errorf("failed to count child accounts: %w", err)
	}
	return n, nil
}

// LockAccounts locks rows in the order given. On SQLite the write
// transaction already holds the database lock, so this only checks
// existence.
func (t *tx) LockAccounts(ctx context.Context, tenantID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, 0, len(ids)+1)
	args = append(args, tenantID)
	for _, id := range ids {
		args = append(args, id)
	}
	rs, err := t.query(ctx, `SELECT id FROM accounts WHERE tenant_id = ? AND id IN (`+placeholders+`) ORDER BY id`+t.dialect.forUpdate(), args...)
	if err != nil {
		return fmt.Errorf("failed to lock accounts: %w", err)
	}
	defer rs.Close()

	found := 0
	for rs.Next() {
		found++
	}
	if err := rs.Err(); err != nil {
		return fmt.Errorf("failed to lock accounts: %w", err)
	}
	if found != len(ids) {
		return ledger.ErrAccountNotFound
	}
	return nil
}

func (t *tx) SetAccountBalance(ctx context.Context, tenantID, id string, balance decimal.Decimal) error {
	n, err := t.exec(ctx, `UPDATE accounts SET balance_cents = ? WHERE tenant_id = ? AND id = ?`, toCents(balance), tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	if n == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}
