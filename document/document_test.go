package document

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachDocumentPreservesOrder(t *testing.T) {
	t.Parallel()
	msg := AttachDocument(nil, "Lease", []string{"a", "b", "c"})
	require.NotNil(t, msg)
	assert.Equal(t, schema.User, msg.Role)
	require.Len(t, msg.MultiContent, 4)

	assert.Equal(t, schema.ChatMessagePartTypeText, msg.MultiContent[0].Type)
	assert.Equal(t, `I'd like to discuss this document titled "Lease".`, msg.MultiContent[0].Text)

	var urls []string
	for _, part := range msg.MultiContent[1:] {
		require.Equal(t, schema.ChatMessagePartTypeImageURL, part.Type)
		urls = append(urls, part.ImageURL.URL)
	}
	assert.Equal(t, []string{"a", "b", "c"}, urls)
	assert.True(t, HasImages([]*schema.Message{msg}))
}

func TestAttachDocumentWithoutImages(t *testing.T) {
	t.Parallel()
	in := schema.UserMessage("hello")
	assert.Same(t, in, AttachDocument(in, "Lease", nil))
	assert.Nil(t, AttachDocument(nil, "Lease", []string{}))
	assert.False(t, HasImages([]*schema.Message{in, nil}))
}

func TestAttachDocumentKeepsSingleTextBlock(t *testing.T) {
	t.Parallel()
	msg := AttachDocument(schema.UserMessage("please help"), "", []string{"x"})
	require.Len(t, msg.MultiContent, 2)
	assert.Equal(t, "I'd like to discuss this document.\n\nplease help", msg.MultiContent[0].Text)
}

func TestMemoryProvider(t *testing.T) {
	t.Parallel()
	p := NewMemoryProvider(&Document{ID: "d1", Name: "Lease", Images: []string{"p1"}})
	doc, err := p.GetDocument(context.Background(), "d1")
	require.NoError(t, err)
	doc.Images[0] = "mutated"

	again, err := p.GetDocument(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, again.Images)

	_, err = p.GetDocument(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestIntroKeepsTitleVerbatim(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `I'd like to discuss this document titled "Lease "A" \ 2026".`, Intro(`Lease "A" \ 2026`))
	assert.Equal(t, "I'd like to discuss this document titled \"Café\".", Intro("Café"))
}

func TestMemoryProviderSaveAndList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := NewMemoryProvider()
	doc := &Document{ID: "b", Name: "Second", Images: []string{"p1"}}
	require.NoError(t, p.SaveDocument(ctx, doc))
	require.NoError(t, p.SaveDocument(ctx, &Document{ID: "a", Name: "First"}))
	doc.Images[0] = "mutated"

	list, err := p.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, []string{}, list[0].Images)
	assert.Equal(t, []string{"p1"}, list[1].Images)
}
