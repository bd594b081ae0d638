package notebook

import (
	"github.com/grothkopp/ainb/pkg/api"
	"github.com/grothkopp/ainb/pkg/engine"
)

// NoopExpander passes cell source through unchanged. It stands in for
// the external templating collaborator when no reference substitution
// layer is wired.
type NoopExpander struct{}

// Ensure NoopExpander implements engine.Expander at compile time.
var _ engine.Expander = NoopExpander{}

// ExpandTemplate returns the source unchanged.
func (NoopExpander) ExpandTemplate(source string, _ []api.Cell) (string, error) {
	return source, nil
}
