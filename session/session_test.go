package session

import (
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbxark/formchat/document"
	"github.com/tbxark/formchat/types"
)

func intake(t *testing.T) types.FormSchema {
	t.Helper()
	s, err := types.NewFormSchema("Intake", []types.FormField{
		{Name: "fullName", Type: "text"},
		{Name: "age", Type: "number"},
	})
	require.NoError(t, err)
	return s
}

func TestCreateWithoutDocument(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	s, err := Create(intake(t), nil, WithID("s1"), WithClock(func() time.Time { return at }))
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)
	assert.Equal(t, DefaultTitle, s.Title)
	assert.False(t, s.Complete)
	assert.Equal(t, StateAwaitingFirstQuestion, s.State)
	assert.Equal(t, at, s.CreatedAt)
	require.Len(t, s.Transcript, 1)
	assert.Equal(t, schema.System, s.Transcript[0].Role)
	assert.Contains(t, s.Transcript[0].Content, "fullName")
}

func TestCreateWithDocument(t *testing.T) {
	t.Parallel()
	doc := &document.Document{ID: "d1", Name: "Lease", Images: []string{"p1", "p2"}}
	s, err := Create(intake(t), doc)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "Lease", s.Title)
	assert.Equal(t, "d1", s.DocumentID)
	require.Len(t, s.Transcript, 2)
	assert.Equal(t, schema.System, s.Transcript[0].Role)
	assert.Equal(t, schema.User, s.Transcript[1].Role)
	assert.Len(t, s.Transcript[1].MultiContent, 3)
}

func TestCreateWithEmptyDocument(t *testing.T) {
	t.Parallel()
	s, err := Create(intake(t), &document.Document{ID: "d1", Name: "Blank"})
	require.NoError(t, err)
	assert.Len(t, s.Transcript, 1)
	assert.Equal(t, "Blank", s.Title)
}

func TestCreateRejectsInvalidSchema(t *testing.T) {
	t.Parallel()
	_, err := Create(types.FormSchema{Name: "Empty"}, nil)
	assert.True(t, errors.Is(err, types.ErrInvalidSchema))
}

func TestCreateTreatsBlankValuesAsUnanswered(t *testing.T) {
	t.Parallel()
	form := types.FormSchema{Name: "Intake", Fields: []types.FormField{
		{Name: "fullName", Type: "text", Value: "   "},
		{Name: "age", Type: "number"},
	}}
	s, err := Create(form, nil)
	require.NoError(t, err)
	assert.Nil(t, s.Schema.Fields[0].Value)
	assert.Len(t, s.Schema.Missing(), 2)

	s, _, err = ApplyAssistantTurn(AppendUserTurn(s, "29"), `{"name":"Intake","fields":[{"name":"fullName","type":"text","value":null},{"name":"age","type":"number","value":29}],"complete":true}`)
	require.NoError(t, err)
	assert.False(t, s.Complete)
	assert.Equal(t, StateAwaitingUserAnswer, s.State)
	assert.Equal(t, "fullName", s.Schema.Missing()[0].Path)
}

func TestAppendUserTurnIsPure(t *testing.T) {
	t.Parallel()
	s, err := Create(intake(t), nil)
	require.NoError(t, err)
	next := AppendUserTurn(s, "Jane Doe")
	assert.Len(t, s.Transcript, 1)
	require.Len(t, next.Transcript, 2)
	assert.Equal(t, schema.User, next.Transcript[1].Role)
	assert.Equal(t, "Jane Doe", next.Transcript[1].Content)
}

func TestApplyAssistantTurn(t *testing.T) {
	t.Parallel()
	s, err := Create(intake(t), nil)
	require.NoError(t, err)

	s = AppendUserTurn(s, "Jane Doe")
	s, reply, err := ApplyAssistantTurn(s, `{"name":"Intake","fields":[{"name":"fullName","type":"text","value":"Jane Doe"},{"name":"age","type":"number","value":null}],"complete":false,"message":"How old are you?"}`)
	require.NoError(t, err)
	assert.Equal(t, "How old are you?", reply.Message)
	assert.Equal(t, "Jane Doe", s.Schema.Fields[0].Value)
	assert.Nil(t, s.Schema.Fields[1].Value)
	assert.False(t, s.Complete)
	assert.Equal(t, StateAwaitingUserAnswer, s.State)
	assert.Len(t, s.Transcript, 3)

	s = AppendUserTurn(s, "29")
	s, _, err = ApplyAssistantTurn(s, `{"name":"Intake","fields":[{"name":"fullName","type":"text","value":"Jane Doe"},{"name":"age","type":"number","value":"29"}],"complete":true}`)
	require.NoError(t, err)
	assert.Equal(t, "29", s.Schema.Fields[1].Value)
	assert.True(t, s.Complete)
	assert.Equal(t, StateComplete, s.State)
}

func TestApplyAssistantTurnUnparsable(t *testing.T) {
	t.Parallel()
	s, err := Create(intake(t), nil)
	require.NoError(t, err)
	s, _, err = ApplyAssistantTurn(AppendUserTurn(s, "Jane"), `{"name":"Intake","fields":[{"name":"fullName","type":"text","value":"Jane"},{"name":"age","type":"number","value":null}],"complete":false}`)
	require.NoError(t, err)

	before := s
	after, reply, err := ApplyAssistantTurn(AppendUserTurn(s, "hmm"), "Sorry, could you repeat that?")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParse))
	assert.Nil(t, reply)
	assert.Equal(t, before.Schema, after.Schema)
	assert.False(t, after.Complete)
	assert.Len(t, after.Transcript, len(before.Transcript)+2)
	assert.Equal(t, "Sorry, could you repeat that?", after.LastAssistantText())
}

func TestApplyAssistantTurnNeverClearsValues(t *testing.T) {
	t.Parallel()
	s, err := Create(intake(t), nil)
	require.NoError(t, err)
	s, _, err = ApplyAssistantTurn(s, `{"fields":[{"name":"fullName","value":"Jane"},{"name":"age","value":null}]}`)
	require.NoError(t, err)
	s, _, err = ApplyAssistantTurn(s, `{"fields":[{"name":"fullName","value":null},{"name":"age","value":29}]}`)
	require.NoError(t, err)
	assert.Equal(t, "Jane", s.Schema.Fields[0].Value)
	assert.Equal(t, float64(29), s.Schema.Fields[1].Value)

	s, _, err = ApplyAssistantTurn(s, `{"fields":[{"name":"fullName","value":"Janet"},{"name":"age","value":null}]}`)
	require.NoError(t, err)
	assert.Equal(t, "Janet", s.Schema.Fields[0].Value)
	assert.Equal(t, float64(29), s.Schema.Fields[1].Value)
}

func TestPrematureCompleteIsIgnored(t *testing.T) {
	t.Parallel()
	s, err := Create(intake(t), nil)
	require.NoError(t, err)
	s, _, err = ApplyAssistantTurn(s, `{"fields":[{"name":"fullName","value":"Jane"},{"name":"age","value":null}],"complete":true}`)
	require.NoError(t, err)
	assert.False(t, s.Complete)
	assert.Equal(t, StateAwaitingUserAnswer, s.State)
}

func TestModelMessagesSkipFallbacks(t *testing.T) {
	t.Parallel()
	s, err := Create(intake(t), nil)
	require.NoError(t, err)
	s = AppendFallback(AppendUserTurn(s, "Jane"), "try again")
	assert.Len(t, s.Transcript, 3)
	msgs := s.ModelMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.User, msgs[1].Role)
	assert.True(t, IsFallback(s.Transcript[2]))
}
