package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// AuditLogger implements asynchronous, buffered audit logging with size-based
// rotation and periodic flush. Records arrive on a channel; a full channel
// drops the record rather than blocking the request path.
type AuditLogger struct {
	fileTemplate  string // e.g. "/var/log/genproxy/audit-%s.jsonl"
	maxSize       int64  // bytes before rotation
	maxFiles      int    // rotated files to keep
	flushInterval time.Duration

	mu          sync.Mutex
	currentFile string
	file        *os.File
	writer      *bufio.Writer
	currentSize int64

	recCh  chan AuditRecord
	doneCh chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// NewAuditLogger opens the active audit file and starts the writer goroutine.
// bufferSize bounds how many records can be queued before drops begin.
func NewAuditLogger(fileTemplate string, maxSize int64, maxFiles, bufferSize int, flushInterval time.Duration) (*AuditLogger, error) {
	a := &AuditLogger{
		fileTemplate:  fileTemplate,
		maxSize:       maxSize,
		maxFiles:      maxFiles,
		flushInterval: flushInterval,
		recCh:         make(chan AuditRecord, bufferSize),
		doneCh:        make(chan struct{}),
	}

	if err := a.openFile(); err != nil {
		return nil, err
	}

	a.wg.Add(1)
	go a.run()

	return a, nil
}

// Record queues an audit record. A full queue drops the record.
func (a *AuditLogger) Record(rec AuditRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	select {
	case a.recCh <- rec:
	default:
		// queue full; dropping the record beats stalling a request
	}
}

func (a *AuditLogger) newFileName() string {
	timestamp := time.Now().Format("20060102150405")
	return fmt.Sprintf(a.fileTemplate, timestamp)
}

// openFile opens (or creates) the active audit file and prepares the buffered
// writer, creating the directory when missing.
func (a *AuditLogger) openFile() error {
	a.currentFile = a.newFileName()
	dir := filepath.Dir(a.currentFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	file, err := os.OpenFile(a.currentFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	a.currentSize = fi.Size()
	a.file = file
	a.writer = bufio.NewWriter(file)
	return nil
}

// rotateIfNeeded rotates the active file when adding n bytes would cross the
// size limit.
func (a *AuditLogger) rotateIfNeeded(n int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.currentSize+int64(n) < a.maxSize {
		return nil
	}

	if err := a.writer.Flush(); err != nil {
		return err
	}
	if err := a.file.Close(); err != nil {
		return err
	}

	if err := a.openFile(); err != nil {
		return err
	}
	return a.cleanupOldFiles()
}

// cleanupOldFiles removes the oldest rotated files beyond maxFiles.
func (a *AuditLogger) cleanupOldFiles() error {
	pattern := fmt.Sprintf(a.fileTemplate, "*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}

	sort.Slice(matches, func(i, j int) bool {
		fi, err1 := os.Stat(matches[i])
		fj, err2 := os.Stat(matches[j])
		if err1 != nil || err2 != nil {
			return false
		}
		return fi.ModTime().Before(fj.ModTime())
	})

	excess := len(matches) - a.maxFiles
	for i := 0; i < excess; i++ {
		_ = os.Remove(matches[i])
	}
	return nil
}

func (a *AuditLogger) run() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec := <-a.recCh:
			a.writeRecord(rec)
		case <-ticker.C:
			a.mu.Lock()
			_ = a.writer.Flush()
			a.mu.Unlock()
		case <-a.doneCh:
			// drain what is left before closing
			for {
				select {
				case rec := <-a.recCh:
					a.writeRecord(rec)
				default:
					a.mu.Lock()
					_ = a.writer.Flush()
					_ = a.file.Close()
					a.mu.Unlock()
					return
				}
			}
		}
	}
}

func (a *AuditLogger) writeRecord(rec AuditRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	line := string(data) + "\n"
	n := len(line)
	_ = a.rotateIfNeeded(n)

	a.mu.Lock()
	_, _ = a.writer.WriteString(line)
	a.currentSize += int64(n)
	a.mu.Unlock()
}

// Shutdown flushes queued records and closes the file. Idempotent.
func (a *AuditLogger) Shutdown() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	close(a.doneCh)
	a.wg.Wait()
}
