// Package logging builds the run log: every entry is timestamped, annotated
// with the current heap footprint, and mirrored to the console.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

const timeLayout = "2006-01-02 15:04:05"

// MemoryFormatter renders "[time] [mem: N MB] LEVEL message k=v ...".
type MemoryFormatter struct {
	// MemUsage returns the bytes to report. Defaults to the last heap sample.
	MemUsage func() uint64
}

// Format implements logrus.Formatter.
func (f *MemoryFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	memUsage := f.MemUsage
	if memUsage == nil {
		memUsage = LastHeapSample
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "[%s] [mem: %s] %s %s",
		entry.Time.Format(timeLayout),
		humanize.IBytes(memUsage()),
		strings.ToUpper(entry.Level.String()),
		entry.Message,
	)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

var heapSample atomic.Uint64

// HeapInUse samples the runtime heap and remembers the value for log lines.
// ReadMemStats stops the world, so only the memory guard calls it regularly.
func HeapInUse() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	heapSample.Store(m.HeapInuse)
	return m.HeapInuse
}

// LastHeapSample returns the most recent HeapInUse value, sampling once if
// nothing has been recorded yet.
func LastHeapSample() uint64 {
	if v := heapSample.Load(); v != 0 {
		return v
	}
	return HeapInUse()
}

// Logger wraps a logrus logger together with the log file it owns.
type Logger struct {
	*logrus.Logger
	file *os.File
}

// New opens (truncating) logPath and returns a logger writing to it and to console.
// An empty logPath logs to console only.
func New(logPath, level string, console io.Writer) (*Logger, error) {
	if console == nil {
		console = os.Stdout
	}

	l := logrus.New()
	l.SetFormatter(&MemoryFormatter{})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	out := &Logger{Logger: l}
	if logPath == "" {
		l.SetOutput(console)
		return out, nil
	}

	if dir := filepath.Dir(logPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}
	out.file = f
	l.SetOutput(io.MultiWriter(f, console))
	return out, nil
}

// Close releases the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
