package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

var ErrObjectNotFound = errors.New("blob: object not found")

// Memory keeps objects in process. Failures can be injected per external id.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    map[string]error
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte), fail: make(map[string]error)}
}

// FailOn makes every delete of id return err.
func (m *Memory) FailOn(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[id] = err
}

// Put stores an object under a known id.
func (m *Memory) Put(id string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[id] = data
}

func (m *Memory) Has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[id]
	return ok
}

func (m *Memory) Upload(_ context.Context, r io.Reader, folder string) (Object, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Object{}, fmt.Errorf("read upload: %w", err)
	}
	if folder == "" {
		folder = DefaultFolder
	}
	id := folder + "/" + uuid.NewString()
	m.Put(id, data)
	return Object{URL: "memory://" + id, ExternalID: id}, nil
}

func (m *Memory) Delete(_ context.Context, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[externalID]; err != nil {
		return err
	}
	if _, ok := m.objects[externalID]; !ok {
		return ErrObjectNotFound
	}
	delete(m.objects, externalID)
	return nil
}

func (m *Memory) DeleteMany(ctx context.Context, externalIDs []string) map[string]error {
	out := make(map[string]error, len(externalIDs))
	for _, id := range externalIDs {
		out[id] = m.Delete(ctx, id)
	}
	return out
}

var _ Store = (*Memory)(nil)
