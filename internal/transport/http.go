package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/aria-ai/chat-engine/internal/sse"
	"github.com/aria-ai/chat-engine/pkg/logger"
)

// readChunkSize is the buffer used for incremental body reads. Small
// enough that deltas surface promptly, large enough to not thrash.
const readChunkSize = 4096

// HTTPStream is the primary transport: a GET request whose response
// body is read incrementally and decoded with the frame parser.
type HTTPStream struct {
	endpoint   string
	authToken  string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewHTTPStream creates the primary transport. endpoint is the full
// chat URL, e.g. "http://localhost:8080/api/aria/ai/chat".
func NewHTTPStream(endpoint string, log *logger.Logger, opts ...Option) *HTTPStream {
	o := applyOptions(opts)
	return &HTTPStream{
		endpoint:  endpoint,
		authToken: o.authToken,
		// No client timeout: the body stays open for the whole
		// reply. Termination comes from Cancel or the server.
		httpClient: &http.Client{},
		logger:     log,
	}
}

func (t *HTTPStream) Name() string { return "http-stream" }

// Open issues the request and starts the read loop. A dial failure or
// non-2xx status is an open failure, which makes the exchange
// eligible for the secondary transport.
func (t *HTTPStream) Open(ctx context.Context, prompt, conversationID string) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	q := url.Values{}
	q.Set("prompt", prompt)
	q.Set("conversationId", conversationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if t.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+t.authToken)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("open stream: unexpected status %d", resp.StatusCode)
	}

	stream := NewStream(cancel)
	go t.consume(ctx, stream, resp.Body)
	return stream, nil
}

// consume reads body chunks until EOF or error, pushing decoded
// frames to the stream.
func (t *HTTPStream) consume(ctx context.Context, stream *Stream, body io.ReadCloser) {
	defer body.Close()

	var parser sse.Parser
	buf := make([]byte, readChunkSize)
	delivered := 0

	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, frame := range parser.Feed(string(buf[:n])) {
				if !stream.Emit(ctx, frame) {
					stream.Finish(Result{Outcome: OutcomeCancelled})
					return
				}
				delivered++
			}
		}
		if err == io.EOF {
			for _, frame := range parser.Flush() {
				if !stream.Emit(ctx, frame) {
					stream.Finish(Result{Outcome: OutcomeCancelled})
					return
				}
				delivered++
			}
			stream.Finish(Result{Outcome: OutcomeCompleted})
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				stream.Finish(Result{Outcome: OutcomeCancelled})
				return
			}
			// A drop after content arrived keeps the partial
			// answer; before that it is a real failure.
			if delivered > 0 {
				t.logger.Warn("stream dropped mid-reply, keeping partial content",
					zap.Int("frames", delivered),
					zap.Error(err),
				)
				stream.Finish(Result{Outcome: OutcomeCompleted})
				return
			}
			stream.Finish(Result{Outcome: OutcomeFailed, Err: fmt.Errorf("read stream: %w", err)})
			return
		}
	}
}

// chatEndpoint joins a base URL, API prefix and the chat path.
func chatEndpoint(baseURL, apiPrefix string) string {
	return strings.TrimSuffix(baseURL, "/") + apiPrefix + "/ai/chat"
}
