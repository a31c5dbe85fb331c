// Package fs provides a filesystem-backed messaging.Queue built on the afs
// abstraction, so queue directories can live on local disk or any afs
// supported storage. Messages survive process restarts, which makes the
// vendor useful for resumable flows without a broker.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/storage"

	"github.com/flowmesh/sagaflow/internal/idgen"
	"github.com/flowmesh/sagaflow/service/messaging"
)

// Config holds configuration for the filesystem queue.
type Config struct {
	BaseURL    string // base directory or URL for queue folders
	MaxRetries int
}

// DefaultConfig returns a default queue configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:    "/tmp/sagaflow/queue",
		MaxRetries: 3,
	}
}

// Message implements messaging.Message for the filesystem queue.
type Message[T any] struct {
	ID        string    `json:"id"`
	Data      T         `json:"data"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Retries   int       `json:"retries"`

	queue     *Queue[T]
	name      string
	processed bool
	mu        sync.Mutex
}

// T returns the message payload.
func (m *Message[T]) T() *T {
	return &m.Data
}

// Ack removes the message from the processing directory.
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message already processed")
	}
	m.processed = true
	return m.queue.fs.Delete(context.Background(), path.Join(m.queue.processingDir, m.name))
}

// Nack requeues the message for another attempt, or moves it to the dead
// directory once the retry limit is exhausted.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message already processed")
	}
	m.processed = true
	m.Retries++
	if err != nil {
		m.Error = err.Error()
	}
	ctx := context.Background()
	src := path.Join(m.queue.processingDir, m.name)
	if m.Retries > m.queue.config.MaxRetries {
		return m.queue.fs.Move(ctx, src, path.Join(m.queue.deadDir, m.name))
	}
	data, mErr := json.Marshal(m)
	if mErr != nil {
		return mErr
	}
	if uErr := m.queue.upload(ctx, path.Join(m.queue.pendingDir, m.name), data); uErr != nil {
		return uErr
	}
	return m.queue.fs.Delete(ctx, src)
}

// Queue implements a filesystem-based messaging.Queue.
type Queue[T any] struct {
	fs            afs.Service
	config        Config
	pendingDir    string
	processingDir string
	deadDir       string
	mu            sync.Mutex
}

// NewQueue creates a new filesystem-based queue rooted at config.BaseURL.
func NewQueue[T any](fsService afs.Service, config Config) (*Queue[T], error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	q := &Queue[T]{
		fs:            fsService,
		config:        config,
		pendingDir:    path.Join(config.BaseURL, "pending"),
		processingDir: path.Join(config.BaseURL, "processing"),
		deadDir:       path.Join(config.BaseURL, "dead"),
	}
	ctx := context.Background()
	for _, dir := range []string{q.pendingDir, q.processingDir, q.deadDir} {
		exists, _ := fsService.Exists(ctx, dir)
		if !exists {
			if err := fsService.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
				return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}
	return q, nil
}

// Publish serialises the payload into the pending directory. The filename
// carries a sortable timestamp prefix so consumption is oldest-first.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	msg := &Message[T]{
		ID:        idgen.New(),
		Data:      *t,
		CreatedAt: time.Now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	name := fmt.Sprintf("%020d-%s.json", msg.CreatedAt.UnixNano(), msg.ID)
	return q.upload(ctx, path.Join(q.pendingDir, name), data)
}

// Consume moves the oldest pending message into the processing directory and
// returns it. When the queue is empty it returns (nil, nil).
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	objects, err := q.fs.List(ctx, q.pendingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending messages: %w", err)
	}
	var oldest storage.Object
	for _, obj := range objects {
		if obj.IsDir() || !strings.HasSuffix(obj.Name(), ".json") {
			continue
		}
		if oldest == nil || obj.Name() < oldest.Name() {
			oldest = obj
		}
	}
	if oldest == nil {
		return nil, nil
	}

	data, err := q.fs.DownloadWithURL(ctx, oldest.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	msg := &Message[T]{}
	if err := json.Unmarshal(data, msg); err != nil {
		// quarantine the corrupt file so it does not wedge the queue
		_ = q.fs.Move(ctx, oldest.URL(), path.Join(q.deadDir, "invalid-"+oldest.Name()))
		return nil, fmt.Errorf("failed to unmarshal message %s: %w", oldest.Name(), err)
	}
	msg.queue = q
	msg.name = oldest.Name()

	if err := q.upload(ctx, path.Join(q.processingDir, oldest.Name()), data); err != nil {
		return nil, fmt.Errorf("failed to move message to processing: %w", err)
	}
	if err := q.fs.Delete(ctx, oldest.URL()); err != nil {
		return nil, fmt.Errorf("failed to remove pending message: %w", err)
	}
	return msg, nil
}

func (q *Queue[T]) upload(ctx context.Context, dest string, data []byte) error {
	return q.fs.Upload(ctx, dest, file.DefaultFileOsMode, bytes.NewReader(data))
}

var _ messaging.Queue[any] = (*Queue[any])(nil)
