// Package source holds the provenance result types produced by searchers.
package source

import "sort"

// Metadata labels produced by the searchers.
const (
	MetaAuthor     = "author"
	MetaTitle      = "title"
	MetaSimilarity = "similarity"
	MetaService    = "service"
)

// Image is one provenance candidate: where the picture was originally posted,
// which searcher found it, and attribution metadata.
type Image struct {
	url      string
	searcher string
	metadata map[string]string
}

// Field is a single metadata label/value pair.
type Field struct {
	Key   string
	Value string
}

// New creates an Image. The metadata map is copied.
func New(url, searcher string, metadata map[string]string) Image {
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	return Image{url: url, searcher: searcher, metadata: md}
}

// URL returns the source URL.
func (i *Image) URL() string { return i.url }

// Searcher returns the name of the searcher that produced the image.
func (i *Image) Searcher() string { return i.searcher }

// Metadata returns a copy of the metadata.
func (i *Image) Metadata() map[string]string {
	md := make(map[string]string, len(i.metadata))
	for k, v := range i.metadata {
		md[k] = v
	}
	return md
}

// SortedMetadata returns the metadata ordered by key.
func (i *Image) SortedMetadata() []Field {
	fields := make([]Field, 0, len(i.metadata))
	for k, v := range i.metadata {
		fields = append(fields, Field{Key: k, Value: v})
	}
	sort.Slice(fields, func(a, b int) bool { return fields[a].Key < fields[b].Key })
	return fields
}

// WithOrigin returns a copy tagged with the producing searcher, both as the
// origin and as the "service" metadata entry.
func (i Image) WithOrigin(searcher string) Image {
	out := New(i.url, searcher, i.metadata)
	out.metadata[MetaService] = searcher
	return out
}
