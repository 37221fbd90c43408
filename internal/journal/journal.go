// Package journal persists trading-cycle outcomes and executed trades to a
// JSON file. The dashboard reads it; the trading loop writes it.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	maxCycleRecords = 200
	maxTradeRecords = 500
)

// CycleRecord is the outcome of one trading cycle.
type CycleRecord struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Outcome       string    `json:"outcome"` // completed | skipped | no_advice | failed
	ActionCount   int       `json:"action_count"`
	ExecutedCount int       `json:"executed_count"`
	RejectedCount int       `json:"rejected_count"`
	FailedCount   int       `json:"failed_count"`
	Notes         string    `json:"notes,omitempty"`
}

// TradeRecord is one executed order with its advisory audit fields.
type TradeRecord struct {
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Quantity   int       `json:"quantity"`
	Action     string    `json:"action"`
	OrderID    string    `json:"order_id"`
	Confidence float64   `json:"confidence"`
	Urgency    string    `json:"urgency"`
	Reasoning  string    `json:"reasoning,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type journalData struct {
	Cycles []CycleRecord `json:"cycles"`
	Trades []TradeRecord `json:"trades"`
}

// Journal is a mutex-guarded JSON-file journal. Safe for concurrent use:
// the trading loop writes while the dashboard reads.
type Journal struct {
	mu   sync.RWMutex
	path string
	data journalData
}

// Open loads the journal at path, creating an empty one if the file does
// not exist yet.
func Open(path string) (*Journal, error) {
	j := &Journal{path: path}

	raw, err := os.ReadFile(path) // #nosec G304 -- path comes from validated config
	if os.IsNotExist(err) {
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	if len(raw) == 0 {
		return j, nil
	}
	if err := json.Unmarshal(raw, &j.data); err != nil {
		return nil, fmt.Errorf("parsing journal: %w", err)
	}
	return j, nil
}

// RecordCycle appends a cycle record and persists.
func (j *Journal) RecordCycle(rec CycleRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.data.Cycles = append(j.data.Cycles, rec)
	if len(j.data.Cycles) > maxCycleRecords {
		j.data.Cycles = j.data.Cycles[len(j.data.Cycles)-maxCycleRecords:]
	}
	return j.save()
}

// RecordTrade appends a trade record and persists.
func (j *Journal) RecordTrade(rec TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.data.Trades = append(j.data.Trades, rec)
	if len(j.data.Trades) > maxTradeRecords {
		j.data.Trades = j.data.Trades[len(j.data.Trades)-maxTradeRecords:]
	}
	return j.save()
}

// Cycles returns all cycle records oldest-first.
func (j *Journal) Cycles() []CycleRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]CycleRecord, len(j.data.Cycles))
	copy(out, j.data.Cycles)
	return out
}

// Trades returns all trade records oldest-first.
func (j *Journal) Trades() []TradeRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]TradeRecord, len(j.data.Trades))
	copy(out, j.data.Trades)
	return out
}

// LastCycle returns the most recent cycle record, or nil if none exists.
func (j *Journal) LastCycle() *CycleRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.data.Cycles) == 0 {
		return nil
	}
	rec := j.data.Cycles[len(j.data.Cycles)-1]
	return &rec
}

// save writes atomically via a temp file and rename. Caller holds the lock.
func (j *Journal) save() error {
	encoded, err := json.MarshalIndent(j.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding journal: %w", err)
	}

	dir := filepath.Dir(j.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating journal directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".journal-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp journal: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(encoded); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing temp journal: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing temp journal: %w", err)
	}
	if err := os.Rename(tmpName, j.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing journal: %w", err)
	}
	return nil
}
