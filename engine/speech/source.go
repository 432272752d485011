package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/spaghettifunk/marionette/engine/core"
)

// AudioSource turns text into playable audio.
type AudioSource interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// HTTPAudioSource posts {"text": ...} to a text-to-speech endpoint and
// returns the response body as audio.
type HTTPAudioSource struct {
	URL     string
	Voice   string
	Timeout time.Duration
	Client  *fasthttp.Client
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

func NewHTTPAudioSource(url string, timeout time.Duration) *HTTPAudioSource {
	return &HTTPAudioSource{
		URL:     url,
		Timeout: timeout,
		Client:  &fasthttp.Client{Name: "marionette"},
	}
}

func (s *HTTPAudioSource) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", core.ErrAudioSource)
	}
	body, err := json.Marshal(synthesizeRequest{Text: text, Voice: s.Voice})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrAudioSource, err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.URL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if !ok {
		timeout := s.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		deadline = time.Now().Add(timeout)
	}
	if err := s.Client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrAudioSource, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return nil, fmt.Errorf("%w: status %d", core.ErrAudioSource, code)
	}
	if len(resp.Body()) == 0 {
		return nil, fmt.Errorf("%w: empty audio", core.ErrAudioSource)
	}
	return append([]byte(nil), resp.Body()...), nil
}
