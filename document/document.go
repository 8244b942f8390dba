package document

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cloudwego/eino/schema"
)

var ErrNotFound = errors.New("document not found")

// Document is a scanned document: a display name and its page images.
// Images are opaque locators (URLs, data URIs or content-addressed keys).
type Document struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Images []string `json:"images"`
}

// Provider resolves a document identifier into its images.
type Provider interface {
	GetDocument(ctx context.Context, id string) (*Document, error)
}

// ExtraKey marks the message produced by AttachDocument.
const ExtraKey = "formchat_document"

// Intro is the text block that precedes the images.
func Intro(title string) string {
	if title == "" {
		return "I'd like to discuss this document."
	}
	return "I'd like to discuss this document titled \"" + title + "\"."
}

// AttachDocument turns msg into a user message carrying one text block followed by one
// image block per image, in input order. With no images msg is returned unchanged.
func AttachDocument(msg *schema.Message, title string, images []string) *schema.Message {
	if len(images) == 0 {
		return msg
	}
	text := Intro(title)
	if msg != nil && msg.Content != "" {
		text += "\n\n" + msg.Content
	}
	parts := make([]schema.ChatMessagePart, 0, len(images)+1)
	parts = append(parts, schema.ChatMessagePart{
		Type: schema.ChatMessagePartTypeText,
		Text: text,
	})
	for _, img := range images {
		parts = append(parts, schema.ChatMessagePart{
			Type:     schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{URL: img},
		})
	}
	return &schema.Message{
		Role:         schema.User,
		MultiContent: parts,
		Extra:        map[string]any{ExtraKey: true},
	}
}

// HasImages reports whether any message carries an image block.
func HasImages(msgs []*schema.Message) bool {
	for _, m := range msgs {
		if m == nil {
			continue
		}
		for _, part := range m.MultiContent {
			if part.Type == schema.ChatMessagePartTypeImageURL {
				return true
			}
		}
	}
	return false
}

// MemoryProvider is an in-memory Provider for tests and local usage.
type MemoryProvider struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

func NewMemoryProvider(docs ...*Document) *MemoryProvider {
	p := &MemoryProvider{docs: make(map[string]*Document, len(docs))}
	for _, d := range docs {
		p.docs[d.ID] = d
	}
	return p
}

func (p *MemoryProvider) Put(doc *Document) {
	p.mu.Lock()
	p.docs[doc.ID] = doc
	p.mu.Unlock()
}

// SaveDocument stores a copy of doc.
func (p *MemoryProvider) SaveDocument(ctx context.Context, doc *Document) error {
	p.Put(copyDocument(doc))
	return nil
}

// ListDocuments returns copies of every document ordered by id.
func (p *MemoryProvider) ListDocuments(ctx context.Context) ([]*Document, error) {
	p.mu.RLock()
	out := make([]*Document, 0, len(p.docs))
	for _, d := range p.docs {
		out = append(out, copyDocument(d))
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p *MemoryProvider) GetDocument(ctx context.Context, id string) (*Document, error) {
	p.mu.RLock()
	doc, ok := p.docs[id]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return copyDocument(doc), nil
}

func copyDocument(doc *Document) *Document {
	out := *doc
	out.Images = append([]string{}, doc.Images...)
	return &out
}

var _ Provider = (*MemoryProvider)(nil)
