package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/EO-DataHub/eodhp-directory-services/internal/metadata"
	"github.com/EO-DataHub/eodhp-directory-services/models"
)

// Client talks to the directory daemon.
type Client struct {
	BaseURL    string
	User       string
	Pass       string
	Token      string
	HTTPClient *http.Client
}

// Upload is a file sent with a call.
type Upload struct {
	Field   string
	Name    string
	Content io.Reader
}

type HTTPError struct {
	Message string
	Status  int
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewClient creates a client authenticating with basic credentials.
func NewClient(baseURL, user, pass string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		User:       user,
		Pass:       pass,
		HTTPClient: &http.Client{},
	}
}

// Index returns the summary of every module loaded by the daemon.
func (c *Client) Index(ctx context.Context) (*models.Response, error) {
	return c.do(ctx, http.MethodGet, "/", "", nil)
}

// Metadata fetches the method table of a module.
func (c *Client) Metadata(ctx context.Context, module string) (*metadata.Module, error) {
	resp, err := c.do(ctx, http.MethodGet, "/"+url.PathEscape(module)+"/metadata", "", nil)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode metadata: %w", err)
	}
	var m metadata.Module
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return &m, nil
}

// Call invokes a module method with its REST verb. Query values travel in
// the URL for GET and DELETE, and in the body otherwise.
func (c *Client) Call(ctx context.Context, module string, method *metadata.Method, query map[string]string, uploads ...Upload) (*models.Response, error) {
	path := fmt.Sprintf("/%s/%s", url.PathEscape(module), url.PathEscape(method.Name))

	values := url.Values{}
	for k, v := range query {
		values.Set(k, v)
	}

	switch {
	case method.RESTType == http.MethodGet || method.RESTType == http.MethodDelete:
		if len(uploads) > 0 {
			return nil, fmt.Errorf("%s does not accept file uploads", method.Name)
		}
		if len(values) > 0 {
			path += "?" + values.Encode()
		}
		return c.do(ctx, method.RESTType, path, "", nil)

	case len(uploads) > 0:
		body, contentType, err := multipartBody(values, uploads)
		if err != nil {
			return nil, err
		}
		return c.do(ctx, method.RESTType, path, contentType, body)

	default:
		return c.do(ctx, method.RESTType, path, "application/x-www-form-urlencoded", []byte(values.Encode()))
	}
}

func multipartBody(values url.Values, uploads []Upload) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for k := range values {
		if err := w.WriteField(k, values.Get(k)); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", k, err)
		}
	}
	for _, u := range uploads {
		part, err := w.CreateFormFile(u.Field, u.Name)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create form file %s: %w", u.Field, err)
		}
		if _, err := io.Copy(part, u.Content); err != nil {
			return nil, "", fmt.Errorf("failed to copy %s: %w", u.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte) (*models.Response, error) {
	respBody, status, err := c.makeRequest(ctx, method, c.BaseURL+path, contentType, body)
	if err != nil {
		return nil, err
	}

	var envelope models.Response
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		if status >= 400 {
			return nil, &HTTPError{Message: strings.TrimSpace(string(respBody)), Status: status}
		}
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if status >= 400 || envelope.Status != models.StatusOK {
		return &envelope, &HTTPError{Message: envelope.Msg, Status: status}
	}
	return &envelope, nil
}

func (c *Client) makeRequest(ctx context.Context, method, url, contentType string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	if c.Token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	} else if c.User != "" {
		req.SetBasicAuth(c.User, c.Pass)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	return respBody, resp.StatusCode, nil
}
