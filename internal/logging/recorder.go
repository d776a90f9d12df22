package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultRecorderSize is the number of entries a Recorder keeps when no size
// is given.
const DefaultRecorderSize = 1000

// Entry is one recorded log record.
type Entry struct {
	Time    time.Time         `json:"time"`
	Level   slog.Level        `json:"level"`
	Message string            `json:"message"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// Recorder is a slog.Handler that keeps the most recent records in memory.
// Handlers derived through WithAttrs and WithGroup share the same buffer.
type Recorder struct {
	level  slog.Leveler
	buf    *entryBuffer
	attrs  []slog.Attr
	prefix string
}

type entryBuffer struct {
	mu      sync.RWMutex
	entries []Entry
	size    int
}

// NewRecorder returns a recorder keeping up to size entries at or above level.
func NewRecorder(size int, level slog.Leveler) *Recorder {
	if size <= 0 {
		size = DefaultRecorderSize
	}
	if level == nil {
		level = slog.LevelDebug
	}
	return &Recorder{
		level: level,
		buf:   &entryBuffer{entries: make([]Entry, 0, size), size: size},
	}
}

func (r *Recorder) Enabled(_ context.Context, level slog.Level) bool {
	return level >= r.level.Level()
}

func (r *Recorder) Handle(_ context.Context, record slog.Record) error {
	attrs := make(map[string]string, len(r.attrs)+record.NumAttrs())
	for _, a := range r.attrs {
		addAttr(attrs, "", a)
	}
	record.Attrs(func(a slog.Attr) bool {
		addAttr(attrs, r.prefix, a)
		return true
	})
	if len(attrs) == 0 {
		attrs = nil
	}

	b := r.buf
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, Entry{
		Time:    record.Time,
		Level:   record.Level,
		Message: record.Message,
		Attrs:   attrs,
	})
	if len(b.entries) > b.size {
		b.entries[0] = Entry{}
		b.entries = b.entries[1:]
	}
	return nil
}

func (r *Recorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return r
	}
	out := *r
	out.attrs = make([]slog.Attr, 0, len(r.attrs)+len(attrs))
	out.attrs = append(out.attrs, r.attrs...)
	for _, a := range attrs {
		if r.prefix != "" {
			a.Key = r.prefix + a.Key
		}
		out.attrs = append(out.attrs, a)
	}
	return &out
}

func (r *Recorder) WithGroup(name string) slog.Handler {
	if name == "" {
		return r
	}
	out := *r
	out.prefix = r.prefix + name + "."
	return &out
}

// Entries returns a copy of every recorded entry, oldest first.
func (r *Recorder) Entries() []Entry {
	r.buf.mu.RLock()
	defer r.buf.mu.RUnlock()
	out := make([]Entry, len(r.buf.entries))
	copy(out, r.buf.entries)
	return out
}

// Recent returns up to n of the newest entries, oldest first.
func (r *Recorder) Recent(n int) []Entry {
	r.buf.mu.RLock()
	defer r.buf.mu.RUnlock()
	if n <= 0 || n > len(r.buf.entries) {
		n = len(r.buf.entries)
	}
	out := make([]Entry, n)
	copy(out, r.buf.entries[len(r.buf.entries)-n:])
	return out
}

// Search returns entries whose message or attribute values contain query,
// ignoring case.
func (r *Recorder) Search(query string) []Entry {
	q := strings.ToLower(query)
	r.buf.mu.RLock()
	defer r.buf.mu.RUnlock()
	var out []Entry
	for _, e := range r.buf.entries {
		if matches(e, q) {
			out = append(out, e)
		}
	}
	return out
}

// Clear drops every recorded entry.
func (r *Recorder) Clear() {
	r.buf.mu.Lock()
	defer r.buf.mu.Unlock()
	r.buf.entries = r.buf.entries[:0]
}

func matches(e Entry, q string) bool {
	if strings.Contains(strings.ToLower(e.Message), q) {
		return true
	}
	for _, v := range e.Attrs {
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	return false
}

func addAttr(dst map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range group {
			addAttr(dst, prefix, ga)
		}
		return
	}
	dst[prefix+a.Key] = a.Value.String()
}
