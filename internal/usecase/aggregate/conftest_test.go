package aggregate

import (
	"context"

	"github.com/kailas-cloud/saucebot/internal/domain/source"
)

type mockSearcher struct {
	name     string
	searchFn func(ctx context.Context, imageURL string) (*source.Image, error)
}

func (m *mockSearcher) Name() string { return m.name }

func (m *mockSearcher) Search(ctx context.Context, imageURL string) (*source.Image, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, imageURL)
	}
	return nil, nil
}

func foundSearcher(name, url string, md map[string]string) *mockSearcher {
	return &mockSearcher{name: name, searchFn: func(context.Context, string) (*source.Image, error) {
		img := source.New(url, name, md)
		return &img, nil
	}}
}

func failingSearcher(name string, err error) *mockSearcher {
	return &mockSearcher{name: name, searchFn: func(context.Context, string) (*source.Image, error) {
		return nil, err
	}}
}
