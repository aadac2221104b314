package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/gl-core/internal/ledger"
)

const moneyDef = `{"type": ["string", "number"], "pattern": "^-?[0-9]+(\\.[0-9]+)?$"}`

const dateDef = `{"type": "string", "minLength": 10}`

// requestSchemas constrain the shape of write requests before they reach the
// ledger. Business rules stay in the ledger package.
var requestSchemas = map[string]string{
	"CreateAccount": `{
  "type": "object",
  "required": ["code", "name", "type", "subType"],
  "properties": {
    "code": {"type": "string", "minLength": 1, "maxLength": 20},
    "name": {"type": "string", "minLength": 1, "maxLength": 255},
    "type": {"type": "string", "enum": ["ASSET", "LIABILITY", "EQUITY", "REVENUE", "EXPENSE"]},
    "subType": {"type": "string", "minLength": 1},
    "parentId": {"type": "string"},
    "currency": {"type": "string", "pattern": "^[A-Z]{3}$"},
    "description": {"type": "string"},
    "cashFlowCategory": {"type": "string"}
  }
}`,
	"PostTransaction": `{
  "type": "object",
  "required": ["date", "lines"],
  "properties": {
    "date": ` + dateDef + `,
    "reference": {"type": "string"},
    "description": {"type": "string"},
    "sourceType": {"type": "string"},
    "sourceId": {"type": "string", "minLength": 1},
    "lines": {
      "type": "array",
      "minItems": 2,
      "items": {
        "type": "object",
        "required": ["accountId"],
        "properties": {
          "accountId": {"type": "string", "minLength": 1},
          "debit": ` + moneyDef + `,
          "credit": ` + moneyDef + `,
          "description": {"type": "string"}
        }
      }
    }
  }
}`,
	"IssueInvoice": `{
  "type": "object",
  "required": ["invoiceId", "number", "issueDate", "subtotal", "total"],
  "properties": {
    "invoiceId": {"type": "string", "minLength": 1},
    "number": {"type": "string", "minLength": 1},
    "customer": {"type": "string"},
    "issueDate": ` + dateDef + `,
    "dueDate": {"type": "string"},
    "subtotal": ` + moneyDef + `,
    "tax": ` + moneyDef + `,
    "total": ` + moneyDef + `,
    "revenueAccountCode": {"type": "string"}
  }
}`,
	"RecordInvoicePayment": `{
  "type": "object",
  "required": ["invoiceId", "accountId", "amount", "date"],
  "properties": {
    "invoiceId": {"type": "string", "minLength": 1},
    "paymentId": {"type": "string"},
    "accountId": {"type": "string", "minLength": 1},
    "amount": ` + moneyDef + `,
    "date": ` + dateDef + `,
    "reference": {"type": "string"}
  }
}`,
	"RecordExpense": `{
  "type": "object",
  "required": ["expenseId", "date", "amount"],
  "properties": {
    "expenseId": {"type": "string", "minLength": 1},
    "date": ` + dateDef + `,
    "description": {"type": "string"},
    "vendor": {"type": "string"},
    "amount": ` + moneyDef + `,
    "tax": ` + moneyDef + `,
    "reference": {"type": "string"},
    "accountId": {"type": "string"}
  }
}`,
	"PostVendorBill": `{
  "type": "object",
  "required": ["billId", "number", "issueDate", "items", "total"],
  "properties": {
    "billId": {"type": "string", "minLength": 1},
    "number": {"type": "string", "minLength": 1},
    "vendor": {"type": "string"},
    "issueDate": ` + dateDef + `,
    "total": ` + moneyDef + `,
    "items": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["accountId", "amount"],
        "properties": {
          "accountId": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "amount": ` + moneyDef + `,
          "tax": ` + moneyDef + `
        }
      }
    }
  }
}`,
	"CreateJournalEntry": `{
  "type": "object",
  "required": ["date", "description", "lines"],
  "properties": {
    "date": ` + dateDef + `,
    "description": {"type": "string", "minLength": 1},
    "reference": {"type": "string"},
    "lines": {
      "type": "array",
      "minItems": 2,
      "items": {
        "type": "object",
        "required": ["accountId", "side", "amount"],
        "properties": {
          "accountId": {"type": "string", "minLength": 1},
          "side": {"type": "string", "enum": ["DEBIT", "CREDIT"]},
          "amount": ` + moneyDef + `,
          "description": {"type": "string"}
        }
      }
    }
  }
}`,
	"ImportBankTransactions": `{
  "type": "object",
  "required": ["accountId", "lines"],
  "properties": {
    "accountId": {"type": "string", "minLength": 1},
    "lines": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["date", "amount"],
        "properties": {
          "date": ` + dateDef + `,
          "description": {"type": "string"},
          "amount": ` + moneyDef + `,
          "reference": {"type": "string"}
        }
      }
    }
  }
}`,
}

// schemaValidator checks a request struct against a compiled JSON schema.
type schemaValidator struct {
	schema *jsonschema.Schema
}

func newSchemaValidator(name, schemaJSON string) (*schemaValidator, error) {
	compiler := jsonschema.NewCompiler()
	url := name + ".json"
	if err := compiler.AddResource(url, strings.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, err
	}
	return &schemaValidator{schema: schema}, nil
}

func (v *schemaValidator) validate(req *structpb.Struct) error {
	if req == nil {
		req = &structpb.Struct{}
	}
	raw, err := protojson.Marshal(req)
	if err != nil {
		return fmt.Errorf("invalid request: %v: %w", err, ledger.ErrValidation)
	}
	var payload any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return fmt.Errorf("invalid request: %v: %w", err, ledger.ErrValidation)
	}
	if err := v.schema.Validate(payload); err != nil {
		return fmt.Errorf("invalid request: %v: %w", err, ledger.ErrValidation)
	}
	return nil
}

var validators = mustCompileSchemas()

func mustCompileSchemas() map[string]*schemaValidator {
	out := make(map[string]*schemaValidator, len(requestSchemas))
	for name, schema := range requestSchemas {
		v, err := newSchemaValidator(name, schema)
		if err != nil {
			panic(fmt.Sprintf("rpc: compile %s schema: %v", name, err))
		}
		out[name] = v
	}
	return out
}

// validateRequest checks req against the schema registered for the method,
// if any.
func validateRequest(name string, req *structpb.Struct) error {
	v, ok := validators[name]
	if !ok {
		return nil
	}
	return v.validate(req)
}
