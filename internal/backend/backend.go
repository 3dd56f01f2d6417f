// Package backend defines the contract for the optional natural-language
// correction fallback. The implementation is an external collaborator; the
// daemon only depends on this interface and treats every failure as "no
// suggestion available".
package backend

import "context"

// Suggestion is a backend-proposed replacement command.
type Suggestion struct {
	Command     string
	Explanation string
}

// Suggester turns a failed command and its diagnostic into a suggestion.
// Implementations must respect ctx; the daemon calls this detached from the
// request/response cycle and delivers the result to the session's outbox.
type Suggester interface {
	Suggest(ctx context.Context, failedCommand, diagnostic string) (*Suggestion, error)
}

// Disabled is the Suggester used when the user has not opted in.
type Disabled struct{}

// Suggest always reports no suggestion.
func (Disabled) Suggest(context.Context, string, string) (*Suggestion, error) {
	return nil, nil
}
