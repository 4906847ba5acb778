package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/uoloki/microsoft-dataextract/domain"
)

const maxErrorBody = 512

// Classify maps an HTTP status to an error kind. Authentication, throttling and server
// failures are SourceUnavailable; any other rejected request is a SourceQueryError.
func Classify(status int) domain.Kind {
	switch {
	case status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= 500:
		return domain.SourceUnavailable

	default:
		return domain.SourceQueryError
	}
}

// StatusError creates the classified error for a failed HTTP response.
func StatusError(op string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody] + "..."
	}

	if Classify(status) == domain.SourceUnavailable {
		return domain.ErrSourceUnavailable("%s: HTTP %d %s (%s)", op, status, http.StatusText(status), msg)
	}

	return domain.ErrSourceQuery("%s: HTTP %d %s (%s)", op, status, http.StatusText(status), msg)
}

// TransportError classifies a failure to complete a request. Cancellation is returned
// unchanged so callers can tell it apart from an unreachable source.
func TransportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var e *domain.Error
	if errors.As(err, &e) {
		return err
	}

	return domain.ErrSourceUnavailable("%s (%w)", op, err)
}

// DoJSON sends the request and decodes a successful JSON response into reply.
func DoJSON(client *http.Client, rq *http.Request, reply any) error {
	op := fmt.Sprintf("%s %s", rq.Method, rq.URL.Redacted())

	response, err := client.Do(rq)
	if err != nil {
		return TransportError(op, err)
	}

	return DecodeJSON(op, response, reply)
}

// DecodeJSON classifies the response status and decodes a successful JSON body into reply.
// The response body is always closed.
func DecodeJSON(op string, response *http.Response, reply any) error {
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return TransportError(op, err)
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return StatusError(op, response.StatusCode, body)
	}

	if err := json.Unmarshal(body, reply); err != nil {
		return domain.ErrSourceQuery("%s: invalid response (%w)", op, err)
	}

	return nil
}
