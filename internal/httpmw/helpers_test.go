package httpmw

import (
	"context"
	"sync"

	"github.com/keithlinneman/linnemanlabs-monitoring/internal/log"
)

type record struct {
	level  string
	msg    string
	err    error
	fields map[string]any
}

// recSink is shared by a recLogger and every logger derived from it via With.
type recSink struct {
	mu      sync.Mutex
	records []record
}

// recLogger records every call with its With fields merged in.
type recLogger struct {
	sink *recSink
	with []any
}

func newRecLogger() *recLogger { return &recLogger{sink: &recSink{}} }

func (l *recLogger) With(kv ...any) log.Logger {
	w := make([]any, 0, len(l.with)+len(kv))
	w = append(w, l.with...)
	w = append(w, kv...)
	return &recLogger{sink: l.sink, with: w}
}

func (l *recLogger) add(level, msg string, err error, kv []any) {
	f := make(map[string]any)
	all := append(append([]any{}, l.with...), kv...)
	for i := 0; i+1 < len(all); i += 2 {
		if k, ok := all[i].(string); ok {
			f[k] = all[i+1]
		}
	}
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.records = append(l.sink.records, record{level: level, msg: msg, err: err, fields: f})
}

func (l *recLogger) Debug(_ context.Context, msg string, kv ...any) { l.add("debug", msg, nil, kv) }
func (l *recLogger) Info(_ context.Context, msg string, kv ...any)  { l.add("info", msg, nil, kv) }
func (l *recLogger) Warn(_ context.Context, msg string, kv ...any)  { l.add("warn", msg, nil, kv) }
func (l *recLogger) Error(_ context.Context, err error, msg string, kv ...any) {
	l.add("error", msg, err, kv)
}
func (l *recLogger) Sync() error { return nil }

func (l *recLogger) all() []record {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return append([]record(nil), l.sink.records...)
}

func (l *recLogger) byMsg(msg string) []record {
	var out []record
	for _, r := range l.all() {
		if r.msg == msg {
			out = append(out, r)
		}
	}
	return out
}
