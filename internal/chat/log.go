package chat

import (
	"sync"
	"time"
)

type Kind string

const (
	KindPlayer         Kind = "player"
	KindGlobalSystem   Kind = "global"   // joins and leaves, seen by everyone
	KindPersonalSystem Kind = "personal" // only meaningful to the local participant
	KindAdminSystem    Kind = "admin"    // kick and ban notices
)

const DefaultMaxLines = 250

type Line struct {
	Kind Kind
	Text string
	At   time.Time
}

// Log keeps the most recent lines shown in a lobby's chat panel.
type Log struct {
	mu     sync.Mutex
	lines  []Line
	max    int
	onLine func(Line)
}

func NewLog(max int) *Log {
	if max <= 0 {
		max = DefaultMaxLines
	}
	return &Log{max: max}
}

// OnLine installs a callback invoked after each line is stored.
func (l *Log) OnLine(fn func(Line)) {
	l.mu.Lock()
	l.onLine = fn
	l.mu.Unlock()
}

func (l *Log) Add(kind Kind, text string) {
	line := Line{Kind: kind, Text: text, At: time.Now()}

	l.mu.Lock()
	if len(l.lines) >= l.max {
		l.lines = l.lines[len(l.lines)-l.max+1:]
	}
	l.lines = append(l.lines, line)
	fn := l.onLine
	l.mu.Unlock()

	if fn != nil {
		fn(line)
	}
}

func (l *Log) Lines() []Line {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Line, len(l.lines))
	copy(out, l.lines)
	return out
}

// Find returns the most recent line of the given kind whose text matches.
func (l *Log) Find(kind Kind, text string) (Line, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.lines) - 1; i >= 0; i-- {
		if l.lines[i].Kind == kind && l.lines[i].Text == text {
			return l.lines[i], true
		}
	}
	return Line{}, false
}
