package ledger

import (
	"fmt"
	"sort"
	"strings"
)

// AccountPatch lists the mutable fields of an account. Nil fields are left
// unchanged.
type AccountPatch struct {
	Code             *string
	Name             *string
	Description      *string
	Type             *AccountType
	SubType          *SubType
	ParentID         *string
	IsActive         *bool
	Currency         *string
	CashFlowCategory *CashFlowCategory
}

// IsEmpty reports whether the patch changes nothing.
func (p AccountPatch) IsEmpty() bool {
	return len(p.Fields()) == 0
}

// Fields returns the names of the fields set in the patch.
func (p AccountPatch) Fields() []string {
	var fields []string
	add := func(set bool, name string) {
		if set {
			fields = append(fields, name)
		}
	}
	add(p.Code != nil, "code")
	add(p.Name != nil, "name")
	add(p.Description != nil, "description")
	add(p.Type != nil, "type")
	add(p.SubType != nil, "subType")
	add(p.ParentID != nil, "parentId")
	add(p.IsActive != nil, "isActive")
	add(p.Currency != nil, "currency")
	add(p.CashFlowCategory != nil, "cashFlowCategory")
	return fields
}

func (p AccountPatch) apply(a *Account) error {
	if a.IsSystem {
		if p.Code != nil && *p.Code != a.Code {
			return &ImmutableFieldError{Field: "code", AccountID: a.ID}
		}
		if p.Type != nil && *p.Type != a.Type {
			return &ImmutableFieldError{Field: "type", AccountID: a.ID}
		}
	}
	if p.Code != nil {
		code := strings.TrimSpace(*p.Code)
		if code == "" {
			return validationf("code cannot be empty")
		}
		a.Code = code
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return validationf("name cannot be empty")
		}
		a.Name = name
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
	if p.Type != nil {
		if !p.Type.Valid() {
			return validationf("invalid account type %q", *p.Type)
		}
		a.Type = *p.Type
	}
	if p.SubType != nil {
		a.SubType = *p.SubType
	}
	if !a.SubType.BelongsTo(a.Type) {
		return validationf("subtype %q does not belong to account type %s", a.SubType, a.Type)
	}
	if p.ParentID != nil {
		if *p.ParentID == a.ID {
			return fmt.Errorf("account %s: %w", a.Code, ErrParentCycle)
		}
		a.ParentID = *p.ParentID
	}
	if p.IsActive != nil {
		a.IsActive = *p.IsActive
	}
	if p.Currency != nil {
		if len(*p.Currency) != 3 {
			return validationf("currency code must be 3 characters")
		}
		a.Currency = strings.ToUpper(*p.Currency)
	}
	if p.CashFlowCategory != nil {
		if !p.CashFlowCategory.Valid() {
			return validationf("invalid cash flow category %q", *p.CashFlowCategory)
		}
		a.CashFlowCategory = *p.CashFlowCategory
	}
	return nil
}

// ParseAccountPatch converts a loosely typed update, such as decoded JSON,
// into an AccountPatch. Unknown and read-only fields are rejected by name.
func ParseAccountPatch(raw map[string]any) (AccountPatch, error) {
	var p AccountPatch
	var rejected []string
	for key, value := range raw {
		var err error
		switch key {
		case "code":
			p.Code, err = stringField(key, value)
		case "name":
			p.Name, err = stringField(key, value)
		case "description":
			p.Description, err = stringField(key, value)
		case "parentId":
			if value == nil {
				empty := ""
				p.ParentID = &empty
				continue
			}
			p.ParentID, err = stringField(key, value)
		case "currency":
			p.Currency, err = stringField(key, value)
		case "type":
			var s *string
			if s, err = stringField(key, value); err == nil {
				t := AccountType(*s)
				p.Type = &t
			}
		case "subType":
			var s *string
			if s, err = stringField(key, value); err == nil {
				st := SubType(*s)
				p.SubType = &st
			}
		case "cashFlowCategory":
			var s *string
			if s, err = stringField(key, value); err == nil {
				c := CashFlowCategory(*s)
				p.CashFlowCategory = &c
			}
		case "isActive":
			b, ok := value.(bool)
			if !ok {
				err = validationf("field isActive must be a boolean")
			}
			p.IsActive = &b
		default:
			rejected = append(rejected, key)
		}
		if err != nil {
			return AccountPatch{}, err
		}
	}
	if len(rejected) > 0 {
		sort.Strings(rejected)
		return AccountPatch{}, validationf("fields are not mutable: %s", strings.Join(rejected, ", "))
	}
	return p, nil
}

func stringField(key string, value any) (*string, error) {
	s, ok := value.(string)
	if !ok {
		return nil, validationf("field %s must be a string", key)
	}
	return &s, nil
}
