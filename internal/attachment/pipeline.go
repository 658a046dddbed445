package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pichehq/workspace-messaging/internal/model"
	"github.com/pichehq/workspace-messaging/pkg/logger"
	"github.com/pichehq/workspace-messaging/pkg/metrics"
)

// MaxAttachmentSize is the per-file ceiling. Files over it are rejected at
// stage time, before any bytes are written.
const MaxAttachmentSize int64 = 10 << 20 // 10 MiB

// Handle tracks one staged upload. A message referencing the handle cannot
// be sent until Uploaded reports true.
type Handle struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	mu        sync.Mutex
	info      BlobInfo
	uploaded  bool
	uploadErr error
	done      chan struct{}
	publicURL string
}

// Uploaded reports whether the blob write has completed successfully.
func (h *Handle) Uploaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.uploaded
}

// Err returns the terminal upload error, if any.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.uploadErr
}

// Info returns the blob info; valid only once Uploaded is true.
func (h *Handle) Info() BlobInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.info
}

// URL returns the durable URL; valid only once Uploaded is true.
func (h *Handle) URL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.publicURL
}

// Wait blocks until the upload reaches a terminal state or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsImage reports whether the uploaded blob is an image, which decides the
// content kind of the message carrying it.
func (h *Handle) IsImage() bool {
	return strings.HasPrefix(h.Info().ContentType, "image/")
}

// Pipeline coordinates upload completion before a message referencing a
// staged file is considered sendable. Multiple files may be staged
// concurrently for one pending message.
type Pipeline struct {
	blobs   BlobStore
	baseURL string
	log     *logger.Logger

	mu      sync.RWMutex
	handles map[string]*Handle
}

// NewPipeline creates a pipeline over the given blob store. baseURL is the
// public prefix under which uploaded blobs are served.
func NewPipeline(blobs BlobStore, baseURL string, log *logger.Logger) *Pipeline {
	return &Pipeline{
		blobs:   blobs,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
		handles: make(map[string]*Handle),
	}
}

// Stage registers an upload and starts writing it in the background. A
// declared size over the ceiling is rejected immediately and nothing is
// staged; an overrun discovered mid-copy is rejected with the partial blob
// removed. The caller keeps r alive until the handle reaches a terminal
// state (use Wait).
func (p *Pipeline) Stage(ctx context.Context, name string, declaredSize int64, r io.Reader) (*Handle, error) {
	if declaredSize > MaxAttachmentSize {
		metrics.AttachmentFailuresTotal.WithLabelValues("too_large").Inc()
		return nil, model.ErrAttachmentTooLarge
	}

	h := &Handle{
		ID:   uuid.Must(uuid.NewV7()).String(),
		Name: name,
		done: make(chan struct{}),
	}

	p.mu.Lock()
	p.handles[h.ID] = h
	p.mu.Unlock()

	go p.upload(h, r)
	return h, nil
}

func (p *Pipeline) upload(h *Handle, r io.Reader) {
	defer close(h.done)

	info, err := p.blobs.Put(h.ID, h.Name, r, MaxAttachmentSize)
	h.mu.Lock()
	defer h.mu.Unlock()

	if err != nil {
		h.uploadErr = err
		reason := "write_failed"
		if errors.Is(err, model.ErrAttachmentTooLarge) {
			reason = "too_large"
		}
		metrics.AttachmentFailuresTotal.WithLabelValues(reason).Inc()
		p.log.Warn("attachment upload failed",
			zap.String("attachment_id", h.ID),
			zap.String("name", h.Name),
			zap.Error(err),
		)
		return
	}

	h.info = info
	h.publicURL = fmt.Sprintf("%s/api/v1/attachments/%s", p.baseURL, h.ID)
	h.uploaded = true
	metrics.AttachmentBytesTotal.Add(float64(info.Size))
}

// Get returns a staged handle.
func (p *Pipeline) Get(id string) (*Handle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handles[id]
	if !ok {
		return nil, model.ErrAttachmentNotFound
	}
	return h, nil
}

// Ready resolves the given handle ids and fails unless every one has
// finished uploading. This is the send-path gate: a staged-but-pending
// attachment yields ErrAttachmentNotReady, which callers treat as
// retryable.
func (p *Pipeline) Ready(ids []string) ([]*Handle, error) {
	handles := make([]*Handle, 0, len(ids))
	for _, id := range ids {
		h, err := p.Get(id)
		if err != nil {
			return nil, err
		}
		if err := h.Err(); err != nil {
			return nil, fmt.Errorf("attachment %s failed: %w", id, err)
		}
		if !h.Uploaded() {
			return nil, model.ErrAttachmentNotReady
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// Open serves an uploaded blob.
func (p *Pipeline) Open(id string) (io.ReadCloser, BlobInfo, error) {
	return p.blobs.Open(id)
}

// Release forgets a handle, e.g. after its message was sent or the client
// abandoned the draft. The blob itself stays durable once uploaded.
func (p *Pipeline) Release(id string) {
	p.mu.Lock()
	delete(p.handles, id)
	p.mu.Unlock()
}
