package transport

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/legislature-data/cz-psp-pipeline/pkg/errors"
)

// DecodeResponse decodes a JSON response into the target structure.
// Non-200 responses are returned as APIError with the body as message.
func DecodeResponse(service string, resp *http.Response, target any) error {
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WrapIO("read", "response body", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &errors.APIError{
			Service:    service,
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	if err := json.Unmarshal(body, target); err != nil {
		return errors.WrapParse("json", "response", err)
	}

	return nil
}
