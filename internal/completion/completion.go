// Package completion abstracts the text-completion capability used by the
// analysis pipeline: one prompt in, one completion out. No streaming, no tool
// calls.
package completion

import "context"

type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
