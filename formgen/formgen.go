package formgen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/formchat/structured"
	"github.com/tbxark/formchat/types"
)

const (
	generateFormToolName        = "generate_form_schema"
	generateFormToolDescription = "Return the structured form schema: the form name and its ordered fields, each with a name, a type and optional nested subfields."
)

const requestSystemPrompt = `You are a helpful assistant designed to generate structured form schemas based on user input.
Field names must be unique among their siblings. Use subfields only for composite fields such as an address.
Call the '%s' tool with the result.`

const imageSystemPrompt = `Parse the image of a form into a structured form schema. Keep the form's original language for names.
List the fields in the order they appear on the form. Field names must be unique among their siblings.
Call the '%s' tool with the result.`

// maxAttempts bounds the calls spent on a schema the model keeps getting wrong.
const maxAttempts = 2

type field struct {
	Name      string  `json:"name" jsonschema:"required,description=The name of the field"`
	Type      string  `json:"type" jsonschema:"required,description=The type of the field (e.g. text, number, address, phone number, email, date)"`
	Subfields []field `json:"subfields,omitempty" jsonschema:"description=Nested fields of a composite field"`
}

type form struct {
	Name   string  `json:"name" jsonschema:"required,description=The name of the form"`
	Fields []field `json:"fields" jsonschema:"required,description=The ordered fields of the form"`
}

type request struct {
	Text  string
	Image string
}

// Generator derives form schemas with the model, either from a description of the
// desired form or from an image of an existing paper form.
type Generator struct {
	chain *structured.Chain[request, form]
}

func New(chatModel model.ToolCallingChatModel) (*Generator, error) {
	chain, err := structured.NewChain[request, form](
		chatModel,
		buildPrompt,
		generateFormToolName,
		generateFormToolDescription,
	)
	if err != nil {
		return nil, err
	}
	chain.Validate = func(f *form) error {
		_, err := f.toSchema()
		return err
	}
	chain.MaxAttempts = maxAttempts
	return &Generator{chain: chain}, nil
}

// FromRequest creates a form schema based on a free-text request.
func (g *Generator) FromRequest(ctx context.Context, text string) (types.FormSchema, error) {
	if strings.TrimSpace(text) == "" {
		return types.FormSchema{}, errors.New("empty form request")
	}
	return g.generate(ctx, request{Text: text})
}

// FromImage parses the image of a form into a form schema.
func (g *Generator) FromImage(ctx context.Context, imageURL string) (types.FormSchema, error) {
	if imageURL == "" {
		return types.FormSchema{}, errors.New("empty image url")
	}
	return g.generate(ctx, request{Image: imageURL})
}

func (g *Generator) generate(ctx context.Context, req request) (types.FormSchema, error) {
	out, err := g.chain.Invoke(ctx, req, model.WithTemperature(0))
	if err != nil {
		return types.FormSchema{}, fmt.Errorf("failed to generate form: %w", err)
	}
	return out.toSchema()
}

func (f *form) toSchema() (types.FormSchema, error) {
	return types.NewFormSchema(f.Name, convertFields(f.Fields))
}

func convertFields(in []field) []types.FormField {
	if len(in) == 0 {
		return nil
	}
	out := make([]types.FormField, len(in))
	for i, f := range in {
		out[i] = types.FormField{
			Name:      f.Name,
			Type:      f.Type,
			Subfields: convertFields(f.Subfields),
		}
	}
	return out
}

func buildPrompt(ctx context.Context, req request) ([]*schema.Message, error) {
	if req.Image != "" {
		return []*schema.Message{
			schema.SystemMessage(fmt.Sprintf(imageSystemPrompt, generateFormToolName)),
			{
				Role: schema.User,
				MultiContent: []schema.ChatMessagePart{
					{Type: schema.ChatMessagePartTypeText, Text: "Please convert this form to JSON format."},
					{Type: schema.ChatMessagePartTypeImageURL, ImageURL: &schema.ChatMessageImageURL{URL: req.Image}},
				},
			},
		}, nil
	}
	return []*schema.Message{
		schema.SystemMessage(fmt.Sprintf(requestSystemPrompt, generateFormToolName)),
		schema.UserMessage(fmt.Sprintf("Create a form schema based on this request: %q.", req.Text)),
	}, nil
}
