package stages

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/harunnryd/voxrelay/pkg/audio"
)

const (
	sttField    = "audio"
	sttFilename = "input.webm"
)

// STTClient uploads a recorded artifact to POST /stt.
type STTClient struct {
	base
}

func NewSTTClient(opts Options) *STTClient {
	return &STTClient{base: newBase(opts)}
}

type sttResponse struct {
	Text string `json:"text"`
}

// Transcribe returns the transcript text; a missing field reads as "".
func (c *STTClient) Transcribe(ctx context.Context, artifact *audio.Artifact) (string, error) {
	body, contentType, err := multipartAudio(artifact)
	if err != nil {
		return "", c.fail(StageSTT, 0, "", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/stt"), body)
	if err != nil {
		return "", c.fail(StageSTT, 0, "", err)
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.do(StageSTT, req)
	if err != nil {
		return "", err
	}
	var out sttResponse
	if err := c.decodeJSON(StageSTT, resp, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

func multipartAudio(artifact *audio.Artifact) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, sttField, sttFilename))
	h.Set("Content-Type", artifact.MIMEType())
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, artifact.Reader()); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
