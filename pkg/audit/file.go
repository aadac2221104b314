package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrBrokenChain is returned when persisted entries do not verify.
var ErrBrokenChain = errors.New("audit chain is broken")

const maxLineSize = 1 << 20

// scanChain decodes JSON line entries one at a time. Blank lines are skipped.
func scanChain(r io.Reader, fn func(e *LogEntry) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return fmt.Errorf("audit line %d: %w", line, err)
		}
		if err := fn(&e); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read audit chain: %w", err)
	}
	return nil
}

// ReadChain decodes JSON line entries as written by Record.
func ReadChain(r io.Reader) ([]*LogEntry, error) {
	var entries []*LogEntry
	err := scanChain(r, func(e *LogEntry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ResumeChainLogger continues an existing chain. The entries must verify;
// new records link to the last one. They are retained only when w is nil.
func ResumeChainLogger(entries []*LogEntry, w io.Writer) (*ChainLogger, error) {
	report := Verify(entries)
	if !report.Valid {
		return nil, fmt.Errorf("%w at entry %d", ErrBrokenChain, *report.BrokenAt)
	}
	c := resume(report, w)
	if w == nil {
		c.entries = append(c.entries, entries...)
	}
	return c, nil
}

func resume(report Report, w io.Writer) *ChainLogger {
	c := NewChainLogger(w)
	if report.Entries > 0 {
		c.previousHash = report.LastHash
		c.count = report.Entries
	}
	return c
}

// OpenFile opens or creates a JSON lines audit sink and resumes the chain it
// holds. The file is verified as it is read; only the chain head is kept.
// The caller closes the returned file.
func OpenFile(path string) (*ChainLogger, *os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit sink: %w", err)
	}
	report, err := VerifyReader(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if !report.Valid {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w at entry %d", path, ErrBrokenChain, *report.BrokenAt)
	}
	return resume(report, f), f, nil
}

// Report summarizes a chain verification.
type Report struct {
	Entries    int    `json:"entries"`
	Valid      bool   `json:"valid"`
	BrokenAt   *int   `json:"broken_at,omitempty"`
	FirstEntry string `json:"first_entry,omitempty"`
	LastEntry  string `json:"last_entry,omitempty"`
	LastHash   string `json:"last_hash,omitempty"`
}

type verifier struct {
	report Report
	prev   *LogEntry
}

func newVerifier() *verifier {
	return &verifier{report: Report{Valid: true}}
}

func (v *verifier) add(e *LogEntry) {
	if v.report.Valid && !linked(v.prev, e) {
		i := v.report.Entries
		v.report.Valid = false
		v.report.BrokenAt = &i
	}
	if v.report.Entries == 0 {
		v.report.FirstEntry = e.Timestamp
	}
	v.report.LastEntry = e.Timestamp
	v.report.LastHash = e.Hash
	v.report.Entries++
	v.prev = e
}

// Verify builds a Report for entries.
func Verify(entries []*LogEntry) Report {
	v := newVerifier()
	for _, e := range entries {
		v.add(e)
	}
	return v.report
}

// VerifyReader verifies a JSON lines chain without holding it in memory.
func VerifyReader(r io.Reader) (Report, error) {
	v := newVerifier()
	err := scanChain(r, func(e *LogEntry) error {
		v.add(e)
		return nil
	})
	if err != nil {
		return Report{}, err
	}
	return v.report, nil
}

// VerifyFile reads and verifies a persisted chain.
func VerifyFile(path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("open audit sink: %w", err)
	}
	defer f.Close()
	return VerifyReader(f)
}
