package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/example/gl-core/pkg/audit"
)

// AccountDirectory manages a tenant's chart of accounts.
type AccountDirectory struct {
	store Store
	opts  Options
}

// NewAccountDirectory creates an account directory backed by store.
func NewAccountDirectory(store Store, opts Options) *AccountDirectory {
	return &AccountDirectory{store: store, opts: opts.withDefaults()}
}

// NewAccount is the input to Create.
type NewAccount struct {
	Code             string           `json:"code"`
	Name             string           `json:"name"`
	Type             AccountType      `json:"type"`
	SubType          SubType          `json:"subType"`
	ParentID         string           `json:"parentId,omitempty"`
	Currency         string           `json:"currency,omitempty"`
	Description      string           `json:"description,omitempty"`
	CashFlowCategory CashFlowCategory `json:"cashFlowCategory,omitempty"`
}

func (n NewAccount) validate() error {
	var missing []string
	if strings.TrimSpace(n.Code) == "" {
		missing = append(missing, "code")
	}
	if strings.TrimSpace(n.Name) == "" {
		missing = append(missing, "name")
	}
	if len(missing) > 0 {
		return validationf("missing required fields: %s", strings.Join(missing, ", "))
	}
	if !n.Type.Valid() {
		return validationf("invalid account type %q", n.Type)
	}
	if !n.SubType.BelongsTo(n.Type) {
		return validationf("subtype %q does not belong to account type %s", n.SubType, n.Type)
	}
	if !n.CashFlowCategory.Valid() {
		return validationf("invalid cash flow category %q", n.CashFlowCategory)
	}
	return nil
}

// Create adds an account to the tenant's chart.
func (d *AccountDirectory) Create(ctx context.Context, tenantID, actor string, n NewAccount) (*Account, error) {
	if tenantID == "" {
		return nil, validationf("tenant id is required")
	}
	if err := n.validate(); err != nil {
		return nil, err
	}
	now := d.opts.Now().UTC()
	acct := &Account{
		ID:               uuid.New().String(),
		TenantID:         tenantID,
		Code:             strings.TrimSpace(n.Code),
		Name:             strings.TrimSpace(n.Name),
		Type:             n.Type,
		SubType:          n.SubType,
		ParentID:         n.ParentID,
		Currency:         n.Currency,
		Description:      n.Description,
		CashFlowCategory: n.CashFlowCategory,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if acct.Currency == "" {
		acct.Currency = d.opts.DefaultCurrency
	}

	err := d.store.InTx(ctx, func(tx Tx) error {
		if acct.ParentID != "" {
			if _, err := tx.GetAccount(ctx, tenantID, acct.ParentID); err != nil {
				if errors.Is(err, ErrAccountNotFound) {
					return fmt.Errorf("parent %s: %w", acct.ParentID, ErrParentNotFound)
				}
				return err
			}
		}
		return tx.InsertAccount(ctx, acct)
	})
	if err != nil {
		return nil, fmt.Errorf("create account %s: %w", acct.Code, err)
	}

	d.opts.Logger.Info("account_created", slog.String("tenant_id", tenantID), slog.String("account_id", acct.ID), slog.String("code", acct.Code))
	d.record(ctx, "account.created", tenantID, actor, acct.ID, map[string]any{"code": acct.Code, "type": acct.Type})
	return acct, nil
}

// Get returns one account of the tenant.
func (d *AccountDirectory) Get(ctx context.Context, tenantID, id string) (*Account, error) {
	var acct *Account
	err := d.store.ReadTx(ctx, func(tx Tx) error {
		var err error
		acct, err = tx.GetAccount(ctx, tenantID, id)
		return err
	})
	return acct, err
}

// GetByCode returns the tenant's account with the given code.
func (d *AccountDirectory) GetByCode(ctx context.Context, tenantID, code string) (*Account, error) {
	var acct *Account
	err := d.store.ReadTx(ctx, func(tx Tx) error {
		var err error
		acct, err = tx.GetAccountByCode(ctx, tenantID, code)
		return err
	})
	return acct, err
}

// List returns all accounts of the tenant ordered by code.
func (d *AccountDirectory) List(ctx context.Context, tenantID string) ([]*Account, error) {
	var accounts []*Account
	err := d.store.ReadTx(ctx, func(tx Tx) error {
		var err error
		accounts, err = tx.ListAccounts(ctx, tenantID)
		return err
	})
	return accounts, err
}

// Update applies patch to the account. Code and type of system accounts are
// immutable.
func (d *AccountDirectory) Update(ctx context.Context, tenantID, actor, id string, patch AccountPatch) (*Account, error) {
	if patch.IsEmpty() {
		return nil, validationf("update contains no fields")
	}
	var updated *Account
	err := d.store.InTx(ctx, func(tx Tx) error {
		acct, err := tx.GetAccount(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if err := patch.apply(acct); err != nil {
			return err
		}
		if acct.ParentID != "" && patch.ParentID != nil {
			if err := checkParent(ctx, tx, tenantID, acct); err != nil {
				return err
			}
		}
		if patch.IsActive != nil && !*patch.IsActive && !acct.Balance.IsZero() {
			return fmt.Errorf("deactivate %s: %w", acct.Code, ErrNonZeroBalance)
		}
		acct.UpdatedAt = d.opts.Now().UTC()
		if err := tx.UpdateAccount(ctx, acct); err != nil {
			return err
		}
		updated = acct
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update account %s: %w", id, err)
	}

	d.opts.Logger.Info("account_updated", slog.String("tenant_id", tenantID), slog.String("account_id", id))
	d.record(ctx, "account.updated", tenantID, actor, id, map[string]any{"fields": patch.Fields()})
	return updated, nil
}

// checkParent verifies the new parent exists and is not the account itself
// or one of its descendants.
func checkParent(ctx context.Context, tx Tx, tenantID string, acct *Account) error {
	seen := map[string]bool{acct.ID: true}
	parentID := acct.ParentID
	for parentID != "" {
		if seen[parentID] {
			return fmt.Errorf("account %s: %w", acct.Code, ErrParentCycle)
		}
		seen[parentID] = true
		parent, err := tx.GetAccount(ctx, tenantID, parentID)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return fmt.Errorf("parent %s: %w", parentID, ErrParentNotFound)
			}
			return err
		}
		parentID = parent.ParentID
	}
	return nil
}

// Delete removes an account that is not a system account and has no
// children, balance, or ledger history.
func (d *AccountDirectory) Delete(ctx context.Context, tenantID, actor, id string) error {
	err := d.store.InTx(ctx, func(tx Tx) error {
		acct, err := tx.GetAccount(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if acct.IsSystem {
			return ErrSystemAccount
		}
		children, err := tx.CountChildren(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if children > 0 {
			return ErrHasChildren
		}
		if !acct.Balance.IsZero() {
			return ErrNonZeroBalance
		}
		entries, err := tx.CountEntries(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if entries > 0 {
			return ErrHasEntries
		}
		return tx.DeleteAccount(ctx, tenantID, id)
	})
	if err != nil {
		return fmt.Errorf("delete account %s: %w", id, err)
	}
	d.opts.Logger.Info("account_deleted", slog.String("tenant_id", tenantID), slog.String("account_id", id))
	d.record(ctx, "account.deleted", tenantID, actor, id, nil)
	return nil
}

// AccountNode is an account with its direct children.
type AccountNode struct {
	*Account
	Children []*AccountNode `json:"children"`
}

// Hierarchy returns the tenant's accounts as a forest ordered by code at
// every level. Accounts whose parent is missing are treated as roots.
func (d *AccountDirectory) Hierarchy(ctx context.Context, tenantID string) ([]*AccountNode, error) {
	accounts, err := d.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return BuildHierarchy(accounts), nil
}

// BuildHierarchy arranges accounts into a forest.
func BuildHierarchy(accounts []*Account) []*AccountNode {
	nodes := make(map[string]*AccountNode, len(accounts))
	for _, a := range accounts {
		nodes[a.ID] = &AccountNode{Account: a, Children: []*AccountNode{}}
	}
	var roots []*AccountNode
	for _, a := range accounts {
		node := nodes[a.ID]
		if parent, ok := nodes[a.ParentID]; ok && a.ParentID != a.ID {
			parent.Children = append(parent.Children, node)
			continue
		}
		roots = append(roots, node)
	}
	sortNodes(roots)
	return roots
}

func sortNodes(nodes []*AccountNode) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Code < nodes[j].Code })
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

// SeedDefaults creates the configured chart template for tenantID and
// returns how many accounts were created. Codes already present are left
// alone, so it is safe to call repeatedly and concurrently.
func (d *AccountDirectory) SeedDefaults(ctx context.Context, tenantID string) (int, error) {
	return d.Seed(ctx, tenantID, d.opts.Chart)
}

// Seed creates the accounts of chart for tenantID. A nil chart seeds the
// default one.
func (d *AccountDirectory) Seed(ctx context.Context, tenantID string, chart *ChartTemplate) (int, error) {
	if tenantID == "" {
		return 0, validationf("tenant id is required")
	}
	if chart == nil {
		chart = DefaultChart()
	}
	if err := chart.Validate(); err != nil {
		return 0, err
	}
	var created int
	err := d.store.InTx(ctx, func(tx Tx) error {
		created = 0
		now := d.opts.Now().UTC()
		for _, ca := range chart.Accounts {
			acct := &Account{
				ID:               uuid.New().String(),
				TenantID:         tenantID,
				Code:             ca.Code,
				Name:             ca.Name,
				Type:             ca.Type,
				SubType:          ca.SubType,
				Currency:         d.opts.DefaultCurrency,
				CashFlowCategory: ca.CashFlow,
				IsActive:         true,
				IsSystem:         ca.System,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			inserted, err := tx.InsertAccountIfAbsent(ctx, acct)
			if err != nil {
				return fmt.Errorf("seed %s: %w", ca.Code, err)
			}
			if inserted {
				created++
			}
		}
		return linkChartParents(ctx, tx, tenantID, chart)
	})
	if err != nil {
		return 0, fmt.Errorf("seed chart for tenant %s: %w", tenantID, err)
	}
	d.opts.Logger.Info("chart_seeded", slog.String("tenant_id", tenantID), slog.Int("created", created))
	if created > 0 {
		d.record(ctx, "chart.seeded", tenantID, "system", tenantID, map[string]any{"created": created})
	}
	return created, nil
}

// linkChartParents sets parent links for template accounts that do not have
// one yet.
func linkChartParents(ctx context.Context, tx Tx, tenantID string, chart *ChartTemplate) error {
	accounts, err := tx.ListAccounts(ctx, tenantID)
	if err != nil {
		return err
	}
	byCode := make(map[string]*Account, len(accounts))
	for _, a := range accounts {
		byCode[a.Code] = a
	}
	for _, ca := range chart.Accounts {
		if ca.Parent == "" {
			continue
		}
		child, parent := byCode[ca.Code], byCode[ca.Parent]
		if child == nil || parent == nil || child.ParentID != "" {
			continue
		}
		child.ParentID = parent.ID
		if err := tx.UpdateAccount(ctx, child); err != nil {
			return fmt.Errorf("link %s to %s: %w", ca.Code, ca.Parent, err)
		}
	}
	return nil
}

func (d *AccountDirectory) record(ctx context.Context, action, tenantID, actor, entityID string, details map[string]any) {
	recordAudit(ctx, d.opts, audit.Event{
		Action:     action,
		TenantID:   tenantID,
		Actor:      actor,
		EntityType: "account",
		EntityID:   entityID,
		Details:    details,
	})
}

// recordAudit appends ev to the audit sink. The mutation is already
// committed, so a sink failure is logged rather than returned.
func recordAudit(ctx context.Context, opts Options, ev audit.Event) {
	entry, err := opts.Auditor.Record(ctx, ev)
	if err != nil {
		opts.Logger.Error("audit_record_failed", slog.String("action", ev.Action), slog.String("error", err.Error()))
		return
	}
	opts.Logger.Debug("audit_recorded", slog.String("action", ev.Action), slog.String("hash", entry.Hash))
}
