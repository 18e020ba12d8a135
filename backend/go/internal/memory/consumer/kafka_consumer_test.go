package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"Giorgio/backend/go/internal/models"
	"Giorgio/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	errs      int
	committed []kafka.Message
	drained   chan struct{}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.errs > 0 {
		r.errs--
		r.mu.Unlock()
		return kafka.Message{}, errors.New("broker unavailable")
	}
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	close(r.drained)
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

type recordingHandler struct {
	jobs []models.ExtractionJob
}

func (h *recordingHandler) HandleExtractionJob(ctx context.Context, job models.ExtractionJob) int {
	h.jobs = append(h.jobs, job)
	return 1
}

func TestKafkaConsumerRun(t *testing.T) {
	job, err := json.Marshal(models.ExtractionJob{OwnerID: "42", Text: "Mi chiamo Luca e vivo a Roma", Source: "conversation_t1"})
	require.NoError(t, err)
	reader := &fakeReader{
		errs:    1,
		msgs:    []kafka.Message{{Value: []byte("{rotto")}, {Value: job}},
		drained: make(chan struct{}),
	}
	handler := &recordingHandler{}
	c := NewKafkaConsumer(reader, handler, logger.New("memory_worker", "", ""))
	c.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	<-reader.drained
	cancel()
	require.NoError(t, <-done)

	require.Len(t, handler.jobs, 1)
	assert.Equal(t, "42", handler.jobs[0].OwnerID)
	assert.Equal(t, "conversation_t1", handler.jobs[0].Source)
	assert.Len(t, reader.committed, 2)
}
