package engram

import (
	"context"

	"github.com/flemzord/recall/internal/chat"
)

// Responder adapts a Client to chat.Responder.
type Responder struct {
	client *Client
}

var _ chat.Responder = (*Responder)(nil)

// NewResponder wraps c.
func NewResponder(c *Client) *Responder {
	return &Responder{client: c}
}

// Chat sends the whole conversation with retrieval hints and maps the
// reply back to chat types.
func (r *Responder) Chat(ctx context.Context, req chat.ChatRequest) (chat.ChatReply, error) {
	msgs := make([]Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = Message{Role: string(m.Role), Content: m.Content}
	}

	creq := ChatRequest{Messages: msgs}
	if req.K > 0 || len(req.Modalities) > 0 {
		creq.RetrievalHints = &RetrievalHints{Modalities: req.Modalities, K: req.K}
	}
	temp := req.Temperature
	creq.Temperature = &temp

	resp, err := r.client.Chat(ctx, creq)
	if err != nil {
		return chat.ChatReply{}, err
	}
	return chat.ChatReply{Content: resp.Output(), Memories: resp.MemoriesUsed}, nil
}
