// Package chat holds the conversation session store, the streaming reveal
// that fills assistant replies, and the controller that ties a chat turn to
// the remote memory service.
package chat

import "errors"

// Sentinel errors for chat operations.
var (
	// ErrSessionNotFound indicates the referenced session id is not in the
	// collection. The store state is left unchanged.
	ErrSessionNotFound = errors.New("chat: session not found")

	// ErrNoMessages indicates an operation that targets the last message
	// was called on an empty conversation.
	ErrNoMessages = errors.New("chat: no messages")

	// ErrEmptyMessage indicates a send was attempted with blank input.
	ErrEmptyMessage = errors.New("chat: empty message")

	// ErrEmptyTitle indicates a rename to a blank title.
	ErrEmptyTitle = errors.New("chat: empty title")
)
