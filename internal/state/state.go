// Package state keeps the in-memory view of the running loop that the status
// endpoint reads: per-symbol exposure and a bounded history of cycle reports.
// Nothing here is persisted.
package state

import (
	"sync"
	"time"

	"smatrader/internal/ring"
)

type ExposureState string

const (
	ExposureFlat  ExposureState = "flat"
	ExposureLong  ExposureState = "long"
	ExposureShort ExposureState = "short"
	ExposureMixed ExposureState = "mixed"
)

type Exposure struct {
	Symbol    string        `json:"symbol"`
	State     ExposureState `json:"state"`
	Volume    float64       `json:"volume"`
	Tickets   []string      `json:"tickets,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// CycleReport is what one poll iteration observed and did.
type CycleReport struct {
	RunID         string    `json:"run_id"`
	Cycle         uint64    `json:"cycle"`
	Time          time.Time `json:"time"`
	Symbol        string    `json:"symbol"`
	Exposure      float64   `json:"exposure"`
	LastClose     float64   `json:"last_close"`
	SMA           float64   `json:"sma"`
	Direction     string    `json:"direction"`
	BarTime       time.Time `json:"bar_time,omitempty"`
	Action        string    `json:"action,omitempty"`
	Opened        []string  `json:"opened,omitempty"`
	Closed        []string  `json:"closed,omitempty"`
	StopsModified int       `json:"stops_modified"`
	Skipped       string    `json:"skipped,omitempty"`
	Errors        []string  `json:"errors,omitempty"`
}

type Snapshot struct {
	RunID     string              `json:"run_id"`
	StartedAt time.Time           `json:"started_at"`
	Cycles    uint64              `json:"cycles"`
	Exposure  map[string]Exposure `json:"exposure"`
	Last      *CycleReport        `json:"last,omitempty"`
	History   []CycleReport       `json:"history"`
}

type Store struct {
	mu        sync.RWMutex
	runID     string
	startedAt time.Time
	cycles    uint64
	exposure  map[string]Exposure
	history   *ring.RingBuffer[CycleReport]
}

func NewStore(runID string, historySize int) *Store {
	if historySize <= 0 {
		historySize = 1
	}
	return &Store{
		runID:     runID,
		startedAt: time.Now().UTC(),
		exposure:  map[string]Exposure{},
		history:   ring.NewRingBuffer[CycleReport](historySize),
	}
}

func (s *Store) NextCycle() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
	return s.cycles
}

func (s *Store) UpdateExposure(exposure Exposure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exposure.Tickets = append([]string(nil), exposure.Tickets...)
	s.exposure[exposure.Symbol] = exposure
}

func (s *Store) Record(report CycleReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Add(report)
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		RunID:     s.runID,
		StartedAt: s.startedAt,
		Cycles:    s.cycles,
		Exposure:  make(map[string]Exposure, len(s.exposure)),
		History:   s.history.Values(),
	}
	for k, v := range s.exposure {
		v.Tickets = append([]string(nil), v.Tickets...)
		snap.Exposure[k] = v
	}
	if last, ok := s.history.Last(); ok {
		snap.Last = &last
	}
	return snap
}
