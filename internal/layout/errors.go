package layout

import "fmt"

// InputError reports a fragment or area that cannot be laid out. The
// offending item is skipped; the rest of the page is unaffected.
type InputError struct {
	SpanID string
	Page   int
	Reason string
}

func (e *InputError) Error() string {
	if e.SpanID == "" {
		return fmt.Sprintf("layout input (page %d): %s", e.Page, e.Reason)
	}
	return fmt.Sprintf("layout input (span %s, page %d): %s", e.SpanID, e.Page, e.Reason)
}

func inputErrorf(spanID string, page int, format string, args ...any) *InputError {
	return &InputError{SpanID: spanID, Page: page, Reason: fmt.Sprintf(format, args...)}
}
