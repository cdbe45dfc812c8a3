package epoch

import (
	"fmt"
	"time"
)

// Epoch is a numbered, fixed-length period used as the accounting boundary for
// rewards.
type Epoch struct {
	ID        uint64    `json:"id"`
	StartTime time.Time `json:"start_time"`
}

func (e Epoch) String() string {
	return fmt.Sprintf("Epoch { id: %d, start_time: %d }", e.ID, e.StartTime.UnixNano())
}

// EpochChangedHook is delivered to every registered hook after an epoch is
// created.
type EpochChangedHook struct {
	CurrentEpoch Epoch `json:"current_epoch"`
}

// ConfigResponse is returned by the config query.
type ConfigResponse struct {
	Owner  string `json:"owner"`
	Config Config `json:"epoch_config"`
}

type storedEpoch struct {
	ID         uint64
	StartNanos uint64
}

func newStoredEpoch(e Epoch) *storedEpoch {
	return &storedEpoch{ID: e.ID, StartNanos: unixNanos(e.StartTime)}
}

func (s *storedEpoch) toEpoch() Epoch {
	if s == nil {
		return Epoch{}
	}
	return Epoch{ID: s.ID, StartTime: fromNanos(s.StartNanos)}
}

func unixNanos(t time.Time) uint64 {
	n := t.UnixNano()
	if n < 0 {
		return 0
	}
	return uint64(n)
}

func fromNanos(n uint64) time.Time {
	return time.Unix(0, int64(n)).UTC()
}
