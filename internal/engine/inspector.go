package engine

import (
	"sync"
	"time"
)

// DecisionStatus is the outcome of handling one track notification.
type DecisionStatus string

const (
	DecisionApplied   DecisionStatus = "applied"
	DecisionUnchanged DecisionStatus = "unchanged"
	DecisionFiltered  DecisionStatus = "filtered"
	DecisionNoMatch   DecisionStatus = "no-match"
	DecisionIdle      DecisionStatus = "idle"
	DecisionError     DecisionStatus = "error"

	inspectorHistoryLimit = 128
)

// Decision records what the dispatcher did for a track.
type Decision struct {
	Timestamp time.Time      `json:"timestamp"`
	Track     string         `json:"track"`
	AppID     string         `json:"appId,omitempty"`
	Rule      string         `json:"rule,omitempty"`
	Wallpaper string         `json:"wallpaper,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Status    DecisionStatus `json:"status"`
	Error     string         `json:"error,omitempty"`
}

type decisionLog struct {
	mu      sync.Mutex
	entries []Decision
	limit   int
}

func newDecisionLog(limit int) *decisionLog {
	if limit <= 0 {
		limit = inspectorHistoryLimit
	}
	return &decisionLog{limit: limit}
}

func (l *decisionLog) record(entry Decision) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit > 0 && len(l.entries) == l.limit {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:l.limit-1]
	}
	l.entries = append(l.entries, entry)
}

func (l *decisionLog) snapshot() []Decision {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return nil
	}
	return append([]Decision(nil), l.entries...)
}
