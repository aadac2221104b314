package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Event is one auditable state change.
type Event struct {
	Action     string         `json:"action"`
	TenantID   string         `json:"tenant_id"`
	Actor      string         `json:"actor"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Details    map[string]any `json:"details,omitempty"`
}

// LogEntry represents a single audit log entry
type LogEntry struct {
	Timestamp    string `json:"timestamp"`
	PreviousHash string `json:"previous_hash"`
	Payload      string `json:"payload"`
	Hash         string `json:"hash"`
}

// ChainLogger provides a tamper-evident audit trail using hash chaining.
// With a writer configured, entries are written as JSON lines and only the
// chain head is held in memory. Without one, the whole chain is kept in
// memory.
type ChainLogger struct {
	mu           sync.Mutex
	previousHash string
	count        int
	entries      []*LogEntry
	out          io.Writer
	now          func() time.Time
}

// NewChainLogger creates a ChainLogger initialized with a zero hash. w may be
// nil to keep the chain in memory only.
func NewChainLogger(w io.Writer) *ChainLogger {
	return &ChainLogger{
		previousHash: strings.Repeat("0", 64),
		out:          w,
		now:          time.Now,
	}
}

// Record serializes ev and appends it to the chain.
func (c *ChainLogger) Record(ctx context.Context, ev Event) (*LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ev.Action == "" {
		return nil, fmt.Errorf("audit event has no action")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal audit event: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.appendLocked(string(payload))
	if c.out != nil {
		line, err := json.Marshal(entry)
		if err != nil {
			return entry, fmt.Errorf("marshal audit entry: %w", err)
		}
		if _, err := c.out.Write(append(line, '\n')); err != nil {
			return entry, fmt.Errorf("write audit entry: %w", err)
		}
	}
	return entry, nil
}

// Append adds a raw payload to the chain.
func (c *ChainLogger) Append(payload string) *LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendLocked(payload)
}

func (c *ChainLogger) appendLocked(payload string) *LogEntry {
	entry := &LogEntry{
		Timestamp:    c.now().UTC().Format(time.RFC3339Nano),
		PreviousHash: c.previousHash,
		Payload:      payload,
	}
	entry.Hash = hashEntry(entry.PreviousHash, entry.Timestamp, entry.Payload)

	c.previousHash = entry.Hash
	c.count++
	if c.out == nil {
		c.entries = append(c.entries, entry)
	}
	return entry
}

// Len returns the number of entries in the chain, including resumed ones.
func (c *ChainLogger) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Head returns the hash the next entry will link to.
func (c *ChainLogger) Head() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previousHash
}

// Entries returns a copy of the chain held in memory. It is empty for a
// logger writing to a sink; read the sink with ReadChain instead.
func (c *ChainLogger) Entries() []*LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*LogEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Events decodes the payloads recorded so far, skipping raw entries that are
// not events.
func (c *ChainLogger) Events() []Event {
	var events []Event
	for _, e := range c.Entries() {
		var ev Event
		if err := json.Unmarshal([]byte(e.Payload), &ev); err == nil && ev.Action != "" {
			events = append(events, ev)
		}
	}
	return events
}

func hashEntry(prevHash, timestamp, payload string) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", prevHash, timestamp, payload)))
	return hex.EncodeToString(hash[:])
}

// VerifyChain checks if a slice of entries forms a valid hash chain.
func VerifyChain(entries []*LogEntry) bool {
	return FirstBreak(entries) < 0
}

// FirstBreak returns the index of the first entry whose hash or link does not
// match, or -1 for an intact chain.
func FirstBreak(entries []*LogEntry) int {
	var prev *LogEntry
	for i, entry := range entries {
		if !linked(prev, entry) {
			return i
		}
		prev = entry
	}
	return -1
}

// linked reports whether entry hashes correctly and follows prev. A nil prev
// accepts any previous hash.
func linked(prev, entry *LogEntry) bool {
	prevHash := entry.PreviousHash
	if prev != nil {
		if entry.PreviousHash != prev.Hash {
			return false
		}
		prevHash = prev.Hash
	}
	return hashEntry(prevHash, entry.Timestamp, entry.Payload) == entry.Hash
}
