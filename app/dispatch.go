package app

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"whalehub/core/types"
)

const defaultDispatchLogSize = 4096

// DispatchStatus tracks a sub-message through its transaction.
type DispatchStatus string

const (
	DispatchPending   DispatchStatus = "pending"
	DispatchCommitted DispatchStatus = "committed"
	DispatchFailed    DispatchStatus = "failed"
)

// DispatchRecord describes one sub-message emitted by a module.
type DispatchRecord struct {
	ID      uuid.UUID      `json:"id"`
	Height  uint64         `json:"height"`
	From    string         `json:"from"`
	MsgType string         `json:"msg_type"`
	To      string         `json:"to,omitempty"`
	Amount  types.Coins    `json:"amount"`
	Status  DispatchStatus `json:"status"`
	Error   string         `json:"error,omitempty"`
	At      time.Time      `json:"at"`
}

// DispatchLog keeps the most recent sub-message records in memory.
type DispatchLog struct {
	mu    sync.RWMutex
	limit int
	order []uuid.UUID
	byID  map[uuid.UUID]*DispatchRecord
}

func NewDispatchLog(limit int) *DispatchLog {
	if limit <= 0 {
		limit = defaultDispatchLogSize
	}
	return &DispatchLog{limit: limit, byID: make(map[uuid.UUID]*DispatchRecord)}
}

func (l *DispatchLog) begin(rec DispatchRecord) uuid.UUID {
	rec.ID = uuid.New()
	rec.Status = DispatchPending
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byID[rec.ID] = &rec
	l.order = append(l.order, rec.ID)
	for len(l.order) > l.limit {
		delete(l.byID, l.order[0])
		l.order = l.order[1:]
	}
	return rec.ID
}

func (l *DispatchLog) finish(ids []uuid.UUID, status DispatchStatus, cause error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		rec, ok := l.byID[id]
		if !ok || rec.Status != DispatchPending {
			continue
		}
		rec.Status = status
		if cause != nil {
			rec.Error = cause.Error()
		}
	}
}

// Get returns a copy of the record with id.
func (l *DispatchLog) Get(id uuid.UUID) (DispatchRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.byID[id]
	if !ok {
		return DispatchRecord{}, false
	}
	return *rec, true
}

// Recent returns up to n records, newest first.
func (l *DispatchLog) Recent(n int) []DispatchRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > len(l.order) {
		n = len(l.order)
	}
	out := make([]DispatchRecord, 0, n)
	for i := len(l.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, *l.byID[l.order[i]])
	}
	return out
}
