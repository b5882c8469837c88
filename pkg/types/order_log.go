package types

import "time"

// LogEntry is one line of the append-only log every order entity carries.
type LogEntry struct {
	Date   time.Time `json:"date"`
	Status string    `json:"status,omitempty"`
	Info   string    `json:"info,omitempty"`
}

// Log is the append-only entity log, persisted as a jsonb array.
type Log []LogEntry

// Append returns the log with a new entry added. The receiver is not mutated.
func (l Log) Append(status, info string) Log {
	entry := LogEntry{
		Date:   time.Now().UTC(),
		Status: status,
		Info:   info,
	}
	next := make(Log, 0, len(l)+1)
	next = append(next, l...)
	return append(next, entry)
}

// LastStatus returns the status of the newest entry, or "" for an empty log.
func (l Log) LastStatus() string {
	if len(l) == 0 {
		return ""
	}
	return l[len(l)-1].Status
}

// CountStatus counts the entries recorded for the given status.
func (l Log) CountStatus(status string) int {
	count := 0
	for _, entry := range l {
		if entry.Status == status {
			count++
		}
	}
	return count
}
