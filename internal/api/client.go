package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"mediasrv/internal/models"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	httpTimeoutEnvKey  = "MEDIASRV_HTTP_TIMEOUT"
)

// Client talks to a mediasrv server.
type Client struct {
	baseURL string
	http    *http.Client
	// stream has no overall timeout; transfers are bounded by the caller's context.
	stream *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: httpTimeoutFromEnv()},
		stream:  &http.Client{},
	}
}

// call describes one API request.
type call struct {
	method string
	path   string
	query  url.Values
	body   io.Reader
	header http.Header
	// streaming calls move media bytes and skip the request timeout.
	streaming bool
}

func jsonCall(method, path string, payload any) (call, error) {
	c := call{method: method, path: path}
	if payload == nil {
		return c, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return c, err
	}
	c.body = bytes.NewReader(raw)
	c.header = http.Header{"Content-Type": {"application/json"}}
	return c, nil
}

func mediaPath(id string, suffix ...string) string {
	return "/v1/media/" + url.PathEscape(id) + strings.Join(suffix, "")
}

// open sends req and returns the response when its status is below 400.
// Error responses are decoded into *APIError.
func (c *Client) open(ctx context.Context, req call) (*http.Response, error) {
	endpoint := c.baseURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, req.body)
	if err != nil {
		return nil, err
	}
	for key, values := range req.header {
		httpReq.Header[key] = values
	}

	hc := c.http
	if req.streaming {
		hc = c.stream
	}
	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

// send runs req and decodes a JSON response into out when out is non-nil.
func (c *Client) send(ctx context.Context, req call, out any) error {
	resp, err := c.open(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.send(ctx, call{method: http.MethodGet, path: "/health"}, nil)
}

func (c *Client) GetInfo(ctx context.Context) (InfoResponse, error) {
	var resp InfoResponse
	err := c.send(ctx, call{method: http.MethodGet, path: "/v1/info"}, &resp)
	return resp, err
}

// UploadMedia streams content as a multipart upload without buffering it.
func (c *Client) UploadMedia(ctx context.Context, req MediaUploadRequest, content io.Reader) (models.Media, error) {
	var media models.Media
	if content == nil {
		return media, errors.New("content is required")
	}

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(form, req, content))
	}()

	err := c.send(ctx, call{
		method:    http.MethodPost,
		path:      "/v1/media",
		body:      pr,
		header:    http.Header{"Content-Type": {form.FormDataContentType()}},
		streaming: true,
	}, &media)
	if err != nil {
		// Unblock the form writer if the server stopped reading early.
		_ = pr.CloseWithError(err)
	}
	return media, err
}

func writeUploadForm(form *multipart.Writer, req MediaUploadRequest, content io.Reader) error {
	for _, field := range []struct{ name, value string }{
		{"title", req.Title},
		{"filename", req.Filename},
		{"media_type", req.MediaType},
	} {
		if strings.TrimSpace(field.value) == "" {
			continue
		}
		if err := form.WriteField(field.name, field.value); err != nil {
			return err
		}
	}

	filename := req.Filename
	if filename == "" {
		filename = "upload"
	}
	part, err := form.CreateFormFile("content", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return err
	}
	return form.Close()
}

func (c *Client) ListMedia(ctx context.Context, query url.Values) ([]models.Media, error) {
	var items []models.Media
	err := c.send(ctx, call{method: http.MethodGet, path: "/v1/media", query: query}, &items)
	return items, err
}

func (c *Client) GetMedia(ctx context.Context, id string) (models.Media, error) {
	var media models.Media
	err := c.send(ctx, call{method: http.MethodGet, path: mediaPath(id)}, &media)
	return media, err
}

func (c *Client) DeleteMedia(ctx context.Context, id string) (MediaDeleteResponse, error) {
	var resp MediaDeleteResponse
	err := c.send(ctx, call{method: http.MethodDelete, path: mediaPath(id)}, &resp)
	return resp, err
}

// FetchContent downloads media bytes into w. rangeHeader is sent verbatim
// as the Range header when non-empty.
func (c *Client) FetchContent(ctx context.Context, id, rangeHeader string, w io.Writer) (ContentInfo, error) {
	req := call{method: http.MethodGet, path: mediaPath(id, "/content"), streaming: true}
	if rangeHeader = strings.TrimSpace(rangeHeader); rangeHeader != "" {
		req.header = http.Header{"Range": {rangeHeader}}
	}

	resp, err := c.open(ctx, req)
	if err != nil {
		return ContentInfo{}, err
	}
	defer resp.Body.Close()

	info := ContentInfo{
		Status:        resp.StatusCode,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		ContentRange:  resp.Header.Get("Content-Range"),
		ETag:          resp.Header.Get("ETag"),
	}
	info.Written, err = io.Copy(w, resp.Body)
	return info, err
}

// GCBlobs runs blob garbage collection. A non-dry run needs confirm.
func (c *Client) GCBlobs(ctx context.Context, req BlobGCRequest, confirm bool) (BlobGCResponse, error) {
	var resp BlobGCResponse
	gc, err := jsonCall(http.MethodPost, "/v1/admin/gc-blobs", req)
	if err != nil {
		return resp, err
	}
	if confirm {
		gc.header.Set("X-Confirm", "true")
	}
	err = c.send(ctx, gc, &resp)
	return resp, err
}

// httpTimeoutFromEnv reads MEDIASRV_HTTP_TIMEOUT as a Go duration or whole
// seconds.
func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultHTTPTimeout
}
