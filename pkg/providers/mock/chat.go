package mock

import (
	"context"

	"github.com/harunnryd/voxrelay/pkg/providers"
)

type ChatConfig struct {
	// Reply is returned for every prompt. Empty echoes the prompt back.
	Reply string `mapstructure:"reply"`
	Err   error  `mapstructure:"-"`
}

type Chat struct {
	cfg ChatConfig
}

func NewChat(cfg ChatConfig) *Chat {
	return &Chat{cfg: cfg}
}

func (c *Chat) Name() string  { return "mock" }
func (c *Chat) Model() string { return "mock-echo" }

func (c *Chat) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.cfg.Err != nil {
		return "", c.cfg.Err
	}
	if c.cfg.Reply != "" {
		return c.cfg.Reply, nil
	}
	return "You said: " + prompt, nil
}

var _ providers.Chat = (*Chat)(nil)
