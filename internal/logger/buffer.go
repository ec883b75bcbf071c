// internal/logger/buffer.go
package logger

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"
)

// DefaultBufferSize is how many entries the dashboard keeps in memory.
const DefaultBufferSize = 200

// LogEntry is one decoded log line.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Logger    string    `json:"logger,omitempty"`
	Message   string    `json:"msg"`
}

// LogBuffer is a thread-safe ring of recent entries. It accepts the JSON
// lines zap writes, so it can sit behind a zapcore.Core.
type LogBuffer struct {
	mu           sync.Mutex
	ring         []LogEntry
	next         int
	wrapped      bool
	totalEntries uint64
	dropped      uint64
}

// NewLogBuffer creates a buffer holding at most size entries.
func NewLogBuffer(size int) *LogBuffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &LogBuffer{ring: make([]LogEntry, size)}
}

// Write decodes newline separated JSON entries. Undecodable lines are kept
// verbatim as the message.
func (lb *LogBuffer) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(p, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var entry LogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			entry = LogEntry{Timestamp: time.Now(), Level: "INFO", Message: string(line)}
		}
		lb.Add(entry)
	}
	return len(p), nil
}

// Sync satisfies zapcore.WriteSyncer.
func (lb *LogBuffer) Sync() error { return nil }

// Add appends an entry, overwriting the oldest once full.
func (lb *LogBuffer) Add(entry LogEntry) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if lb.wrapped {
		lb.dropped++
	}
	lb.ring[lb.next] = entry
	lb.next = (lb.next + 1) % len(lb.ring)
	if lb.next == 0 {
		lb.wrapped = true
	}
	lb.totalEntries++
}

// GetRecentLogs returns up to limit entries, oldest first. limit <= 0 returns all.
func (lb *LogBuffer) GetRecentLogs(limit int) []LogEntry {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	count := lb.next
	start := 0
	if lb.wrapped {
		count = len(lb.ring)
		start = lb.next
	}
	if limit > 0 && limit < count {
		start += count - limit
		count = limit
	}

	logs := make([]LogEntry, 0, count)
	for i := 0; i < count; i++ {
		logs = append(logs, lb.ring[(start+i)%len(lb.ring)])
	}
	return logs
}

// GetStats returns how many entries were written and how many fell off the ring.
func (lb *LogBuffer) GetStats() (total, dropped uint64) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.totalEntries, lb.dropped
}
