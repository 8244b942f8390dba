package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/tbxark/formchat/config"
	"google.golang.org/genai"
)

// FinishReasonContentFilter is reported when Gemini blocks a prompt or a candidate.
const FinishReasonContentFilter = "content_filter"

var (
	_ model.BaseChatModel        = (*Gemini)(nil)
	_ model.ToolCallingChatModel = (*Gemini)(nil)
)

// Gemini adapts the genai SDK to the eino chat model interfaces.
type Gemini struct {
	models generator
	model  string
	tools  []*schema.ToolInfo
}

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type geminiOptions struct {
	model   string
	baseURL string
}

type GeminiOption func(*geminiOptions)

func WithGeminiModel(name string) GeminiOption {
	return func(o *geminiOptions) {
		if name != "" {
			o.model = name
		}
	}
}

func WithGeminiBaseURL(url string) GeminiOption {
	return func(o *geminiOptions) {
		o.baseURL = url
	}
}

func NewGemini(ctx context.Context, apiKey string, opts ...GeminiOption) (*Gemini, error) {
	o := geminiOptions{model: config.DefaultGeminiModel}
	for _, opt := range opts {
		opt(&o)
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: o.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return &Gemini{models: gc.Models, model: o.model}, nil
}

func (g *Gemini) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{
		Model: &g.model,
		Tools: g.tools,
	}, opts...)

	contents, system, err := convertMessages(input)
	if err != nil {
		return nil, err
	}
	conf, err := buildConfig(options, system)
	if err != nil {
		return nil, err
	}
	resp, err := g.models.GenerateContent(ctx, *options.Model, contents, conf)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return convertResponse(resp)
}

// Stream delivers the Generate result as a single chunk.
func (g *Gemini) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := g.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (g *Gemini) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	clone := *g
	clone.tools = tools
	return &clone, nil
}

func buildConfig(options *model.Options, system []*genai.Part) (*genai.GenerateContentConfig, error) {
	conf := &genai.GenerateContentConfig{
		Temperature: options.Temperature,
	}
	if options.MaxTokens != nil {
		conf.MaxOutputTokens = int32(*options.MaxTokens)
	}
	if options.TopP != nil {
		conf.TopP = options.TopP
	}
	if len(options.Stop) > 0 {
		conf.StopSequences = options.Stop
	}
	if len(system) > 0 {
		conf.SystemInstruction = &genai.Content{Parts: system}
	}
	tools, err := convertTools(options.Tools)
	if err != nil {
		return nil, err
	}
	conf.Tools = tools
	if options.ToolChoice != nil && len(tools) > 0 {
		fc := &genai.FunctionCallingConfig{}
		switch *options.ToolChoice {
		case schema.ToolChoiceForbidden:
			fc.Mode = genai.FunctionCallingConfigModeNone
		case schema.ToolChoiceForced:
			fc.Mode = genai.FunctionCallingConfigModeAny
		default:
			fc.Mode = genai.FunctionCallingConfigModeAuto
		}
		conf.ToolConfig = &genai.ToolConfig{FunctionCallingConfig: fc}
	}
	return conf, nil
}

// convertMessages splits system messages into the system instruction and maps the rest
// onto user and model contents.
func convertMessages(msgs []*schema.Message) ([]*genai.Content, []*genai.Part, error) {
	var (
		contents []*genai.Content
		system   []*genai.Part
	)
	for _, m := range msgs {
		if m == nil {
			continue
		}
		parts, err := convertParts(m)
		if err != nil {
			return nil, nil, err
		}
		switch m.Role {
		case schema.System:
			system = append(system, parts...)
		case schema.Assistant:
			for _, tc := range m.ToolCalls {
				var args map[string]any
				_ = sonic.UnmarshalString(tc.Function.Arguments, &args)
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Function.Name,
					Args: args,
				}})
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case schema.Tool:
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
					ID:       m.ToolCallID,
					Name:     m.ToolName,
					Response: map[string]any{"output": m.Content},
				}}},
			})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: parts})
		}
	}
	return contents, system, nil
}

func convertParts(m *schema.Message) ([]*genai.Part, error) {
	var parts []*genai.Part
	if m.Content != "" {
		parts = append(parts, &genai.Part{Text: m.Content})
	}
	for _, p := range m.MultiContent {
		switch p.Type {
		case schema.ChatMessagePartTypeText:
			parts = append(parts, &genai.Part{Text: p.Text})
		case schema.ChatMessagePartTypeImageURL:
			if p.ImageURL == nil {
				continue
			}
			part, err := imagePart(p.ImageURL.URL, p.ImageURL.MIMEType)
			if err != nil {
				return nil, err
			}
			parts = append(parts, part)
		}
	}
	return parts, nil
}

// imagePart inlines data URIs and references everything else by URI.
func imagePart(url, mimeType string) (*genai.Part, error) {
	if rest, ok := strings.CutPrefix(url, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(meta, ";base64") {
			return nil, fmt.Errorf("gemini: unsupported data uri")
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("gemini: decode image: %w", err)
		}
		return &genai.Part{InlineData: &genai.Blob{
			MIMEType: strings.TrimSuffix(meta, ";base64"),
			Data:     data,
		}}, nil
	}
	if mimeType == "" {
		mimeType = mime.TypeByExtension(path.Ext(url))
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return &genai.Part{FileData: &genai.FileData{FileURI: url, MIMEType: mimeType}}, nil
}

func convertTools(tools []*schema.ToolInfo) ([]*genai.Tool, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decl := &genai.FunctionDeclaration{Name: t.Name, Description: t.Desc}
		if t.ParamsOneOf != nil {
			js, err := t.ParamsOneOf.ToJSONSchema()
			if err != nil {
				return nil, fmt.Errorf("gemini: tool %s schema: %w", t.Name, err)
			}
			decl.ParametersJsonSchema = js
		}
		decls = append(decls, decl)
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}, nil
}

var errEmptyResponse = errors.New("gemini: empty response")

func convertResponse(resp *genai.GenerateContentResponse) (*schema.Message, error) {
	if resp == nil {
		return nil, errEmptyResponse
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return refused(string(resp.PromptFeedback.BlockReason)), nil
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil, errEmptyResponse
	}
	cand := resp.Candidates[0]
	if blocked(cand.FinishReason) {
		return refused(string(cand.FinishReason)), nil
	}
	msg := &schema.Message{
		Role: schema.Assistant,
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: strings.ToLower(string(cand.FinishReason)),
		},
	}
	var text strings.Builder
	if cand.Content != nil {
		for _, p := range cand.Content.Parts {
			if p == nil || p.Thought {
				continue
			}
			text.WriteString(p.Text)
			if p.FunctionCall != nil {
				args, err := sonic.MarshalString(p.FunctionCall.Args)
				if err != nil {
					return nil, fmt.Errorf("gemini: encode tool arguments: %w", err)
				}
				id := p.FunctionCall.ID
				if id == "" {
					id = uuid.NewString()
				}
				msg.ToolCalls = append(msg.ToolCalls, schema.ToolCall{
					ID:       id,
					Type:     "function",
					Function: schema.FunctionCall{Name: p.FunctionCall.Name, Arguments: args},
				})
			}
		}
	}
	msg.Content = text.String()
	if u := resp.UsageMetadata; u != nil {
		msg.ResponseMeta.Usage = &schema.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return msg, nil
}

func blocked(reason genai.FinishReason) bool {
	switch reason {
	case genai.FinishReasonSafety, genai.FinishReasonBlocklist,
		genai.FinishReasonProhibitedContent, genai.FinishReasonSPII:
		return true
	}
	return false
}

func refused(reason string) *schema.Message {
	return &schema.Message{
		Role:         schema.Assistant,
		ResponseMeta: &schema.ResponseMeta{FinishReason: FinishReasonContentFilter},
		Extra:        map[string]any{"gemini_block_reason": reason},
	}
}
