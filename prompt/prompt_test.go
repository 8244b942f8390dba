package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbxark/formchat/types"
)

func intake(t *testing.T) types.FormSchema {
	t.Helper()
	s, err := types.NewFormSchema("Intake", []types.FormField{
		{Name: "fullName", Type: "text"},
		{Name: "age", Type: "number"},
		{Name: "address", Type: "address", Subfields: []types.FormField{
			{Name: "street", Type: "text"},
		}},
	})
	require.NoError(t, err)
	return s
}

func TestBuildSystemPromptIsDeterministic(t *testing.T) {
	t.Parallel()
	s := intake(t)
	first := BuildSystemPrompt(s, "French")
	second := BuildSystemPrompt(s, "French")
	assert.Equal(t, first, second)
}

func TestBuildSystemPromptContainsRules(t *testing.T) {
	t.Parallel()
	out := BuildSystemPrompt(intake(t), "French")
	assert.Contains(t, out, "Ask one field at a time, wait for the answer before proceeding")
	assert.Contains(t, out, "return the full form as JSON with all fields filled so far and null for the rest")
	assert.Contains(t, out, `Set "complete": true only once every field (recursively, including subfields) has a non-null value`)
	assert.Contains(t, out, "French")
	assert.Contains(t, out, "address.street")
	assert.Contains(t, out, `"complete": false`)
	assert.NotContains(t, out, "{{")
}

func TestBuildSystemPromptDefaultLanguage(t *testing.T) {
	t.Parallel()
	s := intake(t)
	assert.Contains(t, BuildSystemPrompt(s, ""), "in English")

	b := NewBuilder(WithDefaultLanguage("German"))
	assert.Contains(t, b.BuildSystemPrompt(s, " "), "in German")
	assert.Contains(t, b.BuildSystemPrompt(s, "Spanish"), "in Spanish")
}

func TestBuildSystemPromptDoesNotLeakValues(t *testing.T) {
	t.Parallel()
	s := intake(t)
	filled := s.Clone()
	filled.Fields[0].Value = "Jane Doe"
	assert.NotContains(t, BuildSystemPrompt(filled, ""), "Jane Doe")
	assert.Nil(t, filled.Fields[1].Value)
	assert.Equal(t, "Jane Doe", filled.Fields[0].Value)
}

func TestCustomTemplateAndKickoff(t *testing.T) {
	t.Parallel()
	b := NewBuilder(
		WithSystemPromptTemplate("Fill {{form}} in {{language}}."),
		WithKickoffInstruction("Go."),
	)
	assert.Equal(t, "Fill Intake in English.", b.BuildSystemPrompt(intake(t), ""))
	assert.Equal(t, "Go.", b.BuildKickoffInstruction())
	assert.Equal(t, DefaultKickoffInstruction, BuildKickoffInstruction())
}
