package provider

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// HTTPClient interface for HTTP requests (enables testing)
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Verify http.Client implements HTTPClient
var _ HTTPClient = (*http.Client)(nil)

// StreamIdleTimeout aborts a stream that sends nothing for this long.
const StreamIdleTimeout = 30 * time.Second

var errIdle = errors.New("stream timeout: no data received for 30 seconds")

// apiError reads a non-200 response into an error.
func apiError(name string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
	return fmt.Errorf("%s API error %d: %s", name, resp.StatusCode, strings.TrimSpace(string(body)))
}

// readSSE calls fn with the payload of every "data:" line until fn returns
// false or the body ends. The body is closed when no line arrives within
// idle, which surfaces as errIdle.
func readSSE(body io.ReadCloser, idle time.Duration, fn func(data string) bool) error {
	defer body.Close()

	timedOut := make(chan struct{})
	var once sync.Once
	timer := time.AfterFunc(idle, func() {
		once.Do(func() { close(timedOut) })
		body.Close()
	})
	defer timer.Stop()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		timer.Reset(idle)
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if !fn(data) {
			return nil
		}
	}
	select {
	case <-timedOut:
		return errIdle
	default:
	}
	return scanner.Err()
}

