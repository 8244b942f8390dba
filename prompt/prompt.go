package prompt

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/eino-contrib/jsonschema"
	"github.com/tbxark/formchat/types"
)

const DefaultLanguage = "English"

// DefaultSystemPromptTemplate is the instruction text sent as the first message of every
// session. Placeholders: {{language}}, {{form}}, {{fields}}, {{example}}, {{reply_schema}}.
const DefaultSystemPromptTemplate = `Task:
Guide the user in filling out the form "{{form}}" incrementally, one field at a time.

Rules:
1. Ask one field at a time, wait for the answer before proceeding to the next field. Follow the order of the field table below.
2. After every user answer return the full form as JSON with all fields filled so far and null for the rest.
   Keep the field names, types and order exactly as given. Put the next question in the "message" property.
3. Set "complete": true only once every field (recursively, including subfields) has a non-null value. Until then "complete" must be false.
4. If the user answers several fields at once, or corrects an earlier answer, update every affected field.
5. Keep the form's original field names; talk to the user in {{language}}.

Fields to collect:
{{fields}}

Reply with a single JSON object shaped like this example:
` + "```json\n{{example}}\n```" + `

Reply JSON schema:
` + "```json\n{{reply_schema}}\n```"

// DefaultKickoffInstruction asks the model for its first question.
const DefaultKickoffInstruction = `Now, begin by asking the user about the first field in the form. If the user already provided an appropriate answer for it, fill it in and move on to the next field.`

type builderOptions struct {
	language string
	template string
	kickoff  string
}

type Option func(*builderOptions)

// WithDefaultLanguage sets the language used when BuildSystemPrompt receives an empty one.
func WithDefaultLanguage(lang string) Option {
	return func(o *builderOptions) {
		o.language = lang
	}
}

// WithSystemPromptTemplate overrides DefaultSystemPromptTemplate.
func WithSystemPromptTemplate(tpl string) Option {
	return func(o *builderOptions) {
		o.template = tpl
	}
}

// WithKickoffInstruction overrides DefaultKickoffInstruction.
func WithKickoffInstruction(text string) Option {
	return func(o *builderOptions) {
		o.kickoff = text
	}
}

// Builder renders instruction text. It never looks at user answers, so equal inputs
// always produce equal prompts.
type Builder struct {
	DefaultLanguage string
	template        string
	kickoff         string
}

func NewBuilder(opts ...Option) *Builder {
	options := builderOptions{
		language: DefaultLanguage,
		template: DefaultSystemPromptTemplate,
		kickoff:  DefaultKickoffInstruction,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.language == "" {
		options.language = DefaultLanguage
	}
	if options.template == "" {
		options.template = DefaultSystemPromptTemplate
	}
	if options.kickoff == "" {
		options.kickoff = DefaultKickoffInstruction
	}
	return &Builder{
		DefaultLanguage: options.language,
		template:        options.template,
		kickoff:         options.kickoff,
	}
}

func (b *Builder) BuildSystemPrompt(schema types.FormSchema, lang string) string {
	if strings.TrimSpace(lang) == "" {
		lang = b.DefaultLanguage
	}
	r := strings.NewReplacer(
		"{{language}}", lang,
		"{{form}}", schema.Name,
		"{{fields}}", types.FormatFieldTable(schema),
		"{{example}}", exampleReply(schema),
		"{{reply_schema}}", replySchema(),
	)
	return r.Replace(b.template)
}

func (b *Builder) BuildKickoffInstruction() string {
	return b.kickoff
}

var defaultBuilder = NewBuilder()

// BuildSystemPrompt renders the system instructions with the default builder.
func BuildSystemPrompt(schema types.FormSchema, lang string) string {
	return defaultBuilder.BuildSystemPrompt(schema, lang)
}

// BuildKickoffInstruction returns the default kickoff instruction.
func BuildKickoffInstruction() string {
	return defaultBuilder.BuildKickoffInstruction()
}

func exampleReply(schema types.FormSchema) string {
	blank := schema.Clone()
	clearValues(blank.Fields)
	data, err := sonic.ConfigStd.MarshalIndent(types.Reply{
		Name:     blank.Name,
		Fields:   blank.Fields,
		Complete: false,
		Message:  "<your next question>",
	}, "", "  ")
	if err != nil {
		slog.Warn("marshal example reply failed", "err", err)
		return "{}"
	}
	return string(data)
}

func clearValues(fields []types.FormField) {
	for i := range fields {
		fields[i].Value = nil
		clearValues(fields[i].Subfields)
	}
}

var replySchema = sync.OnceValue(func() string {
	s := jsonschema.Reflect(&types.Reply{})
	data, err := sonic.ConfigStd.Marshal(s)
	if err != nil {
		slog.Warn("marshal reply json schema failed", "err", err)
		return "{}"
	}
	return string(data)
})
