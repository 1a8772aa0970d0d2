package phab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is a failed Conduit call. The pipeline never retries these;
// they propagate unchanged to the tool caller.
type APIError struct {
	Method string
	Code   string
	Info   string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("conduit %s failed: %s: %s", e.Method, e.Code, e.Info)
	}
	return fmt.Sprintf("conduit %s failed: %s", e.Method, e.Info)
}

// conduitResponse is the envelope every Conduit endpoint returns.
type conduitResponse struct {
	Result    json.RawMessage `json:"result"`
	ErrorCode string          `json:"error_code"`
	ErrorInfo string          `json:"error_info"`
}

// call POSTs a Conduit method with form-encoded parameters and decodes the
// result envelope into out (when out is non-nil).
func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode %s params: %w", method, err)
	}

	form := url.Values{}
	form.Set("params", string(paramsJSON))
	form.Set("output", "json")
	form.Set("api.token", c.token)

	endpoint := c.host + "/api/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("conduit %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	if resp.StatusCode != http.StatusOK {
		return &APIError{Method: method, Info: fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var envelope conduitResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}

	if envelope.ErrorCode != "" {
		return &APIError{Method: method, Code: envelope.ErrorCode, Info: envelope.ErrorInfo}
	}

	if out != nil && len(envelope.Result) > 0 && !bytes.Equal(envelope.Result, []byte("null")) {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}

	return nil
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
