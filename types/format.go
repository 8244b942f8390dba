package types

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
)

// FormatFieldTable renders the leaves of the form as a markdown table in asking order.
func FormatFieldTable(s FormSchema) string {
	var buf strings.Builder
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("#", "Field", "Type")
	for i, leaf := range s.Leaves() {
		_ = table.Append(fmt.Sprintf("%d", i+1), leaf.Path, leaf.Type)
	}
	_ = table.Render()
	return strings.TrimRight(buf.String(), "\n")
}

// FormatValueTable renders the current answers, with "-" for unanswered leaves.
func FormatValueTable(s FormSchema) string {
	var buf strings.Builder
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Field", "Value")
	walkLeaves("", "", s.Fields, func(info FieldInfo, f FormField) {
		_ = table.Append(info.Path, FormatValue(f.Value))
	})
	_ = table.Render()
	return strings.TrimRight(buf.String(), "\n")
}

// FormatValue prints a leaf value for humans.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case float64:
		return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%f", val), "0"), ".")
	default:
		return fmt.Sprint(val)
	}
}
