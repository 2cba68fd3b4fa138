package anthropic

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/modelrelay/modelrelay/pkg/model"
	"github.com/modelrelay/modelrelay/pkg/provider"
)

// maxErrorBodyBytes bounds how much of an error response is read.
const maxErrorBodyBytes = 64 * 1024

// mapHTTPError converts a non-2xx response into a taxonomy error, preferring
// the structured error envelope over the raw body.
func mapHTTPError(resp *http.Response) *model.Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return provider.ClassifyStatus("anthropic", resp.StatusCode,
			fmt.Sprintf("%s: %s", envelope.Error.Type, envelope.Error.Message))
	}
	return provider.ClassifyStatus("anthropic", resp.StatusCode, string(body))
}
