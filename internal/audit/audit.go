// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package audit appends one JSON object per line to an override log that
// records how each reference's queries, ranking and URLs came to be.
package audit

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Event names a kind of audit record.
type Event string

const (
	QueriesLLM        Event = "queries_llm"
	QueriesFallback   Event = "queries_fallback"
	SearchRun         Event = "search_run"
	RankLLM           Event = "rank_llm"
	RankFallback      Event = "rank_fallback"
	PrimaryOverride   Event = "primary_override"
	SecondaryOverride Event = "secondary_override"
	RelevanceEdit     Event = "relevance_edit"
	QueriesEdit       Event = "queries_edit"
	Finalize          Event = "finalize"
	FinalizeRejected  Event = "finalize_rejected"
	URLCheck          Event = "url_check"
	Skipped           Event = "skipped"
)

// Log writes audit events. The zero value and a nil *Log discard events.
type Log struct {
	logger *zap.Logger
	file   *os.File
}

// Open appends to the NDJSON file at path, creating it if needed.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		MessageKey:     "event",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	})
	core := zapcore.NewCore(enc, zapcore.AddSync(f), zapcore.InfoLevel)
	return &Log{logger: zap.New(core), file: f}, nil
}

// Nop returns a Log that discards events.
func Nop() *Log {
	return &Log{logger: zap.NewNop()}
}

// Record appends one event for reference id.
func (l *Log) Record(ev Event, id int, fields ...zap.Field) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Info(string(ev), append([]zap.Field{zap.Int("ref", id)}, fields...)...)
}

// Change records a before/after override.
func (l *Log) Change(ev Event, id int, before, after string) {
	if before == after {
		return
	}
	l.Record(ev, id, zap.String("before", before), zap.String("after", after))
}

// Close flushes and closes the file.
func (l *Log) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = l.logger.Sync()
	return l.file.Close()
}
