package pipeline

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// A BundleError is returned when esbuild reports errors for the entry module.
type BundleError struct {
	Entry    string
	Messages []api.Message
}

func (e *BundleError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("bundle %s: esbuild produced no output", e.Entry)
	}
	texts := make([]string, len(e.Messages))
	for i, m := range e.Messages {
		texts[i] = m.Text
	}
	return fmt.Sprintf("bundle %s: %d error(s): %s", e.Entry, len(e.Messages), strings.Join(texts, "; "))
}

// Formatted renders the messages the way the esbuild CLI does, source excerpts included.
func (e *BundleError) Formatted() []string {
	return api.FormatMessages(e.Messages, api.FormatMessagesOptions{
		Kind: api.ErrorMessage,
	})
}

// An IntegrityError is returned when a written artifact still references
// the external module in a form the runtime cannot resolve.
// The artifact is left on disk.
type IntegrityError struct {
	Path   string
	Marker string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("artifact %s contains unresolved external reference %q", e.Path, e.Marker)
}
