package types

// Reply is the wire shape the model returns after every turn.
type Reply struct {
	Name     string      `json:"name" jsonschema:"required,description=The name of the form"`
	Fields   []FormField `json:"fields" jsonschema:"required,description=Every field of the form with the answers collected so far and null for the rest"`
	Complete bool        `json:"complete" jsonschema:"required,description=True only once every field including subfields has a non-null value"`
	Message  string      `json:"message,omitempty" jsonschema:"description=The next question or a short closing remark for the user"`
}
