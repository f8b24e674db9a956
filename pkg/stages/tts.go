package stages

import (
	"context"
	"fmt"
	"io"

	"github.com/harunnryd/voxrelay/pkg/audio"
)

// TTSClient requests synthesized speech from POST /tts.
type TTSClient struct {
	base
}

func NewTTSClient(opts Options) *TTSClient {
	return &TTSClient{base: newBase(opts)}
}

type ttsRequest struct {
	Text string `json:"text"`
}

// Synthesize returns the raw audio body untouched.
func (c *TTSClient) Synthesize(ctx context.Context, text string) (audio.Synthesized, error) {
	resp, err := c.postJSON(ctx, StageTTS, "/tts", ttsRequest{Text: text})
	if err != nil {
		return audio.Synthesized{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.Synthesized{}, c.fail(StageTTS, resp.StatusCode, "", fmt.Errorf("read body: %w", err))
	}
	return audio.Synthesized{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}
