package correlate

import (
	"context"
	"sync"

	"github.com/kailas-cloud/saucebot/internal/domain/source"
)

type mockStore struct {
	mu     sync.Mutex
	data   map[int64]string
	getErr error
	putErr error
	gets   int
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[int64]string)}
}

func (m *mockStore) Put(_ context.Context, messageID int64, imageURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.data[messageID] = imageURL
	return nil
}

func (m *mockStore) Get(_ context.Context, messageID int64) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return "", false, m.getErr
	}
	url, ok := m.data[messageID]
	return url, ok, nil
}

type mockAggregator struct {
	mu       sync.Mutex
	results  []source.Image
	searched []string
}

func (m *mockAggregator) SearchImage(_ context.Context, imageURL string) []source.Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searched = append(m.searched, imageURL)
	return m.results
}

type mockSearcher struct {
	name string
}

func (m *mockSearcher) Name() string { return m.name }

func (m *mockSearcher) Search(context.Context, string) (*source.Image, error) {
	return nil, nil
}
