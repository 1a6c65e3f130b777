package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrPermissionDenied marks a rejected credential; callers treat it as an
// expired session.
var ErrPermissionDenied = errors.New("permission denied")

type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Detail     string
}

func (e *HTTPError) Error() string {
	phrase := e.Status
	if phrase == "" {
		phrase = http.StatusText(e.StatusCode)
	}
	msg := fmt.Sprintf("Request failed with status: %d %s [%s]", e.StatusCode, phrase, e.URL)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *HTTPError) Is(target error) bool {
	if target != ErrPermissionDenied {
		return false
	}
	return e.StatusCode == http.StatusForbidden || isPermissionDeniedText(e.Detail)
}

// gostint relays vault's own rejection text, which carries "Code: 403".
func isPermissionDeniedText(msg string) bool {
	return strings.Contains(msg, "Code: 403")
}

type errorBody struct {
	Error  string   `json:"error"`
	Errors []string `json:"errors"`
}

func (b errorBody) detail() string {
	if b.Error != "" {
		return b.Error
	}
	return strings.Join(b.Errors, "; ")
}

// statusPhrase strips the numeric prefix net/http puts on resp.Status.
func statusPhrase(resp *http.Response) string {
	phrase := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode)))
	if phrase == "" {
		phrase = http.StatusText(resp.StatusCode)
	}
	return phrase
}

func NormalizeBaseURL(baseURL string) string {
	return strings.TrimRight(strings.TrimSpace(baseURL), "/")
}

func joinURL(baseURL, path string) string {
	return NormalizeBaseURL(baseURL) + "/" + strings.TrimLeft(path, "/")
}

// doJSON issues one request and decodes a 200 body into out. 204 leaves out
// untouched; every other status is an *HTTPError.
func doJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("invalid response from %s: %w", url, err)
		}
		return nil
	case http.StatusNoContent:
		return nil
	default:
		var eb errorBody
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&eb)
		return &HTTPError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Status:     statusPhrase(resp),
			Detail:     eb.detail(),
		}
	}
}
