package render

// Renderer writes a command result to the terminal, either as a table or as
// a single JSON document.
type Renderer[T any] interface {
	Render(result T) error
}
