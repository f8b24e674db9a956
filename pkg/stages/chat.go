package stages

import "context"

// ChatClient sends the transcript to POST /chat.
type ChatClient struct {
	base
}

func NewChatClient(opts Options) *ChatClient {
	return &ChatClient{base: newBase(opts)}
}

type chatRequest struct {
	Prompt string `json:"prompt"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// Reply returns the assistant reply, possibly empty.
func (c *ChatClient) Reply(ctx context.Context, prompt string) (string, error) {
	resp, err := c.postJSON(ctx, StageChat, "/chat", chatRequest{Prompt: prompt})
	if err != nil {
		return "", err
	}
	var out chatResponse
	if err := c.decodeJSON(StageChat, resp, &out); err != nil {
		return "", err
	}
	return out.Reply, nil
}
