package engine

import (
	"errors"
	"fmt"

	"github.com/cloudwego/eino/schema"
)

var (
	// ErrModelUnavailable covers transport and authentication failures reaching the model.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrModelRefused is a content-policy refusal by the model.
	ErrModelRefused = errors.New("model refused")

	ErrNilSession         = errors.New("nil session")
	ErrInvalidState       = errors.New("invalid session state")
	ErrTurnInProgress     = errors.New("a turn is already in progress")
	ErrConversationClosed = errors.New("conversation closed")
	ErrNoDocumentProvider = errors.New("no document provider configured")
)

const finishReasonContentFilter = "content_filter"

// classify maps the outcome of a model call onto the engine's error taxonomy.
func classify(resp *schema.Message, err error) error {
	if err != nil {
		if errors.Is(err, ErrModelRefused) || errors.Is(err, ErrModelUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if resp == nil {
		return fmt.Errorf("%w: empty response", ErrModelUnavailable)
	}
	if resp.ResponseMeta != nil && resp.ResponseMeta.FinishReason == finishReasonContentFilter {
		return fmt.Errorf("%w: finish reason %s", ErrModelRefused, resp.ResponseMeta.FinishReason)
	}
	return nil
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrModelRefused):
		return "refused"
	case errors.Is(err, ErrModelUnavailable):
		return "unavailable"
	default:
		return "parse"
	}
}
