package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/tbxark/formchat/types"
)

// ErrParse is returned when a model reply is not a structurally valid form.
var ErrParse = errors.New("reply parse error")

type wireReply struct {
	Name     string      `json:"name"`
	Fields   []wireField `json:"fields"`
	Complete any         `json:"complete"`
	Message  string      `json:"message"`
}

type wireField struct {
	Name      string      `json:"name"`
	Type      string      `json:"type"`
	Value     any         `json:"value"`
	Subfields []wireField `json:"subfields"`
}

// ParseReply extracts the JSON object from raw and validates it against form. The
// returned reply lists fields in the order of form, whatever order the model used.
// Fields the form does not declare are dropped. A missing or non-boolean "complete"
// reads as false.
func ParseReply(raw string, form types.FormSchema) (*types.Reply, error) {
	body, prose, ok := extractJSON(raw)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrParse)
	}
	var wire wireReply
	if err := sonic.UnmarshalString(body, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if wire.Fields == nil {
		return nil, fmt.Errorf("%w: reply has no fields", ErrParse)
	}
	fields, err := conform("", form.Fields, wire.Fields)
	if err != nil {
		return nil, err
	}
	complete, _ := wire.Complete.(bool)
	msg := strings.TrimSpace(wire.Message)
	if msg == "" {
		msg = prose
	}
	return &types.Reply{
		Name:     form.Name,
		Fields:   fields,
		Complete: complete,
		Message:  msg,
	}, nil
}

func conform(prefix string, want []types.FormField, got []wireField) ([]types.FormField, error) {
	byName := make(map[string]wireField, len(got))
	for _, f := range got {
		if _, dup := byName[f.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate field %q", ErrParse, joinPath(prefix, f.Name))
		}
		byName[f.Name] = f
	}
	out := make([]types.FormField, len(want))
	for i, w := range want {
		path := joinPath(prefix, w.Name)
		g, ok := byName[w.Name]
		if !ok {
			return nil, fmt.Errorf("%w: field %q missing from reply", ErrParse, path)
		}
		out[i] = types.FormField{Name: w.Name, Type: w.Type}
		if w.IsGroup() {
			if len(g.Subfields) == 0 {
				return nil, fmt.Errorf("%w: field %q has no subfields", ErrParse, path)
			}
			subs, err := conform(path, w.Subfields, g.Subfields)
			if err != nil {
				return nil, err
			}
			out[i].Subfields = subs
			continue
		}
		if len(g.Subfields) > 0 {
			return nil, fmt.Errorf("%w: field %q is not composite", ErrParse, path)
		}
		v, err := types.NormalizeValue(g.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrParse, path, err)
		}
		out[i].Value = v
	}
	return out, nil
}

// Merge copies the non-null answers of reply into a copy of prior. A null in the reply
// never clears an earlier answer; a different non-null value replaces it.
func Merge(prior types.FormSchema, reply *types.Reply) types.FormSchema {
	next := prior.Clone()
	if reply != nil {
		mergeFields(next.Fields, reply.Fields)
	}
	return next
}

func mergeFields(dst, src []types.FormField) {
	byName := make(map[string]types.FormField, len(src))
	for _, f := range src {
		byName[f.Name] = f
	}
	for i := range dst {
		f, ok := byName[dst[i].Name]
		if !ok {
			continue
		}
		if dst[i].IsGroup() {
			mergeFields(dst[i].Subfields, f.Subfields)
			continue
		}
		if f.Value != nil {
			dst[i].Value = f.Value
		}
	}
}

// extractJSON finds the reply object in raw, tolerating markdown code fences and prose
// around it. Braces in the prose are skipped: the first span that is a JSON object with a
// "fields" key wins, else the first span that is any JSON object. prose is whatever text
// surrounds the chosen object.
func extractJSON(raw string) (body, prose string, ok bool) {
	text := strings.ReplaceAll(raw, "```json", "```")
	start, end := -1, -1
	anyStart, anyEnd := -1, -1
scan:
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		for j := strings.LastIndexByte(text, '}'); j > i; j = strings.LastIndexByte(text[:j], '}') {
			candidate := text[i : j+1]
			if !sonic.Valid([]byte(candidate)) {
				continue
			}
			if _, err := sonic.GetFromString(candidate, "fields"); err == nil {
				start, end = i, j
				break scan
			}
			if anyStart < 0 {
				anyStart, anyEnd = i, j
			}
			break
		}
	}
	if start < 0 {
		start, end = anyStart, anyEnd
	}
	if start < 0 {
		return "", "", false
	}
	body = text[start : end+1]
	outside := text[:start] + " " + text[end+1:]
	outside = strings.ReplaceAll(outside, "```", "")
	return body, strings.Join(strings.Fields(outside), " "), true
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
