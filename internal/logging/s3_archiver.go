package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"genproxy/internal/utils"
)

// S3Archiver uploads batches of audit records to S3 as JSON Lines objects.
type S3Archiver struct {
	client   *s3.Client
	bucket   string
	prefix   string
	nodeName string
	logger   *utils.Logger
}

// NewS3Archiver builds an archiver using the ambient AWS credential chain.
func NewS3Archiver(ctx context.Context, bucket, region, prefix, nodeName string) (*S3Archiver, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Archiver{
		client:   s3.NewFromConfig(cfg),
		bucket:   bucket,
		prefix:   prefix,
		nodeName: nodeName,
		logger:   utils.NewLogger("s3-archiver"),
	}, nil
}

// WriteBatch uploads a batch of records as one JSONL object and returns the
// object key. Keys shard by date: audit/2026/08/29/orchestrator-0-...jsonl
func (w *S3Archiver) WriteBatch(ctx context.Context, records []AuditRecord) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	now := time.Now()
	key := fmt.Sprintf("%s%04d/%02d/%02d/%s-%s-%d.jsonl",
		w.prefix,
		now.Year(),
		now.Month(),
		now.Day(),
		w.nodeName,
		now.Format("20060102-150405"),
		now.Nanosecond(),
	)

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			w.logger.Error("Failed to encode audit record", "error", err)
			continue
		}
	}

	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	w.logger.Info("Archived audit batch to S3", "key", key, "count", len(records), "bytes", buf.Len())
	return key, nil
}

// ArchivingSink tees records to an inner sink and accumulates them for
// periodic S3 upload.
type ArchivingSink struct {
	inner    Sink
	archiver *S3Archiver
	interval time.Duration
	logger   *utils.Logger

	mu      sync.Mutex
	pending []AuditRecord

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewArchivingSink wraps inner with S3 archival and starts the upload loop.
func NewArchivingSink(inner Sink, archiver *S3Archiver, interval time.Duration) *ArchivingSink {
	s := &ArchivingSink{
		inner:    inner,
		archiver: archiver,
		interval: interval,
		logger:   utils.NewLogger("audit-archive"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *ArchivingSink) Record(rec AuditRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	s.inner.Record(rec)

	s.mu.Lock()
	s.pending = append(s.pending, rec)
	s.mu.Unlock()
}

func (s *ArchivingSink) loop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			s.flush()
			return
		case <-ticker.C:
			s.flush()
		}
	}
}

func (s *ArchivingSink) flush() {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.archiver.WriteBatch(ctx, batch); err != nil {
		s.logger.Error("Failed to archive audit batch", "error", err, "count", len(batch))
	}
}

// Shutdown uploads any pending batch and stops the loop.
func (s *ArchivingSink) Shutdown() {
	close(s.stopCh)
	<-s.doneCh
}
