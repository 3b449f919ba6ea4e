package serialplot

import (
	"strings"
	"sync"
	"time"
)

// DefaultLogCapacity is the number of non-numeric entries kept.
const DefaultLogCapacity = 10

// Entry is one non-numeric line with its arrival time (second resolution).
type Entry struct {
	Time time.Time
	Text string
}

// String renders the entry as "[15:04:05] text".
func (e Entry) String() string {
	return "[" + e.Time.Format(time.TimeOnly) + "] " + e.Text
}

// NonNumericLog is a bounded, timestamped log of lines that could not be
// plotted. Safe for concurrent use.
type NonNumericLog struct {
	mu      sync.RWMutex
	entries *ring[Entry]
	now     func() time.Time
}

func NewNonNumericLog(capacity int) *NonNumericLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &NonNumericLog{
		entries: newRing[Entry](capacity),
		now:     time.Now,
	}
}

// Append stamps text with the current time and stores it, evicting the
// oldest entry beyond capacity.
func (l *NonNumericLog) Append(text string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{Time: l.now().Truncate(time.Second), Text: text}
	l.entries.push(e)
	return e
}

// Entries returns a copy of the log, oldest first.
func (l *NonNumericLog) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries.slice()
}

// Len returns the number of stored entries.
func (l *NonNumericLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries.len()
}

// Render joins the entries one per line in chronological order.
func (l *NonNumericLog) Render() string {
	entries := l.Entries()
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(e.String())
	}
	return b.String()
}

func (l *NonNumericLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries.reset()
}
