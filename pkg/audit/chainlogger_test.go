package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainLogger(t *testing.T) {
	logger := NewChainLogger(nil)

	e1 := logger.Append("action: account.created, code: 1110")
	e2 := logger.Append("action: ledger.posted, reference: INV-001")
	e3 := logger.Append("action: journal.voided, number: JE-00001")

	chain := []*LogEntry{e1, e2, e3}
	assert.True(t, VerifyChain(chain), "valid chain")

	originalPayload := e2.Payload
	e2.Payload = "action: ledger.posted, reference: INV-999"
	assert.False(t, VerifyChain(chain), "tampered payload")

	e2.Payload = originalPayload
	originalHash := e2.Hash
	e2.Hash = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	assert.False(t, VerifyChain(chain), "tampered hash")

	e2.Hash = originalHash
	e3.PreviousHash = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	assert.False(t, VerifyChain(chain), "broken link")
}

func TestChainLogger_RecordWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	logger := NewChainLogger(&buf)
	ctx := context.Background()

	_, err := logger.Record(ctx, Event{Action: "account.created", TenantID: "t1", Actor: "alice", EntityType: "account", EntityID: "a1"})
	require.NoError(t, err)
	_, err = logger.Record(ctx, Event{Action: "ledger.posted", TenantID: "t1", Actor: "alice", EntityType: "transaction", EntityID: "tx1",
		Details: map[string]any{"reference": "INV-001"}})
	require.NoError(t, err)

	var written []*LogEntry
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var e LogEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		written = append(written, &e)
	}
	require.Len(t, written, 2)
	assert.True(t, VerifyChain(written))
	assert.Equal(t, written[1].Hash, logger.Head())
	assert.Equal(t, 2, logger.Len())
	assert.Empty(t, logger.Entries(), "sink backed chains keep only the head")
}

func TestChainLogger_EventsInMemory(t *testing.T) {
	logger := NewChainLogger(nil)
	ctx := context.Background()

	_, err := logger.Record(ctx, Event{Action: "ledger.posted", TenantID: "t1", Details: map[string]any{"reference": "INV-001"}})
	require.NoError(t, err)
	logger.Append("not an event")

	assert.Equal(t, 2, logger.Len())
	require.Len(t, logger.Entries(), 2)
	events := logger.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "ledger.posted", events[0].Action)
	assert.Equal(t, "INV-001", events[0].Details["reference"])
}

func TestChainLogger_RecordRejectsEmptyAction(t *testing.T) {
	logger := NewChainLogger(nil)
	_, err := logger.Record(context.Background(), Event{TenantID: "t1"})
	assert.Error(t, err)
	assert.Empty(t, logger.Entries())
}

func TestChainLogger_RecordHonoursCancelledContext(t *testing.T) {
	logger := NewChainLogger(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := logger.Record(ctx, Event{Action: "account.created"})
	assert.ErrorIs(t, err, context.Canceled)
}
