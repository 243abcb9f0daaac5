package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/tidwall/gjson"

	"github.com/valentinpelus/posturewatch/pkg/source"
)

const (
	defaultClipTimeout  = 10 * time.Minute
	defaultFrameTimeout = 10 * time.Second
)

// Per-unit result lists accepted in clip responses, in lookup order
var clipResultKeys = []string{"per_frame_feedback", "frames", "results"}

// ServiceClient talks to the remote Analysis Service over HTTP
type ServiceClient struct {
	videoURL     string
	frameURL     string
	clipTimeout  time.Duration
	frameTimeout time.Duration
	client       *http.Client
}

// NewServiceClient creates a new Analysis Service client
func NewServiceClient(videoURL, frameURL string, clipTimeout, frameTimeout time.Duration) *ServiceClient {
	if clipTimeout <= 0 {
		clipTimeout = defaultClipTimeout
	}
	if frameTimeout <= 0 {
		frameTimeout = defaultFrameTimeout
	}
	return &ServiceClient{
		videoURL:     videoURL,
		frameURL:     frameURL,
		clipTimeout:  clipTimeout,
		frameTimeout: frameTimeout,
		client:       &http.Client{},
	}
}

// Name returns the client name
func (c *ServiceClient) Name() string {
	return "Analysis Service"
}

type frameRequest struct {
	Image string `json:"image"`
}

// AnalyzeFrame posts one still as a base64 data URL
func (c *ServiceClient) AnalyzeFrame(ctx context.Context, frame source.Frame) ([]string, error) {
	if len(frame.Data) == 0 {
		return nil, clientError("frame has no image data", nil)
	}

	jsonData, err := json.Marshal(frameRequest{Image: frame.DataURL()})
	if err != nil {
		return nil, clientError("failed to marshal request", err)
	}

	body, err := c.post(ctx, c.frameURL, c.frameTimeout, "application/json", bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, rejected(http.StatusOK, "invalid response body")
	}
	return issueList(gjson.GetBytes(body, "issues")), nil
}

// AnalyzeClip uploads a clip as multipart form data and returns the
// per-unit results in the order the service listed them.
func (c *ServiceClient) AnalyzeClip(ctx context.Context, clip Clip) ([][]string, error) {
	if len(clip.Data) == 0 {
		return nil, clientError("clip is empty", nil)
	}

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)

	contentType := clip.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, clip.Name))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, clientError("failed to build multipart body", err)
	}
	if _, err := part.Write(clip.Data); err != nil {
		return nil, clientError("failed to build multipart body", err)
	}
	if err := writer.Close(); err != nil {
		return nil, clientError("failed to build multipart body", err)
	}

	log.Printf("Uploading clip %s (%d bytes) to %s", clip.Name, len(clip.Data), c.videoURL)

	body, err := c.post(ctx, c.videoURL, c.clipTimeout, writer.FormDataContentType(), &form)
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, rejected(http.StatusOK, "invalid response body")
	}

	units := clipUnits(gjson.ParseBytes(body))
	results := make([][]string, 0, len(units))
	for _, unit := range units {
		results = append(results, issueList(unit.Get("issues")))
	}

	log.Printf("Clip %s analyzed: %d units", clip.Name, len(results))
	return results, nil
}

func (c *ServiceClient) post(ctx context.Context, url string, timeout time.Duration, contentType string, body io.Reader) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, clientError("failed to create request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, noResponse(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, noResponse(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, rejected(resp.StatusCode, serverMessage(respBody))
	}

	return respBody, nil
}

// clipUnits finds the per-unit list in a clip response. A response
// without one yields no units.
func clipUnits(doc gjson.Result) []gjson.Result {
	if doc.IsArray() {
		return doc.Array()
	}
	for _, key := range clipResultKeys {
		if r := doc.Get(key); r.IsArray() {
			return r.Array()
		}
	}
	return nil
}

// issueList converts a JSON array of labels. A missing list means no issues.
func issueList(r gjson.Result) []string {
	issues := []string{}
	if !r.IsArray() {
		return issues
	}
	for _, item := range r.Array() {
		if label := item.String(); label != "" {
			issues = append(issues, label)
		}
	}
	return issues
}

// serverMessage extracts the error text a service put in a failure body
func serverMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return "Unknown error"
	}
	detail := gjson.GetBytes(body, "detail")
	switch {
	case detail.Type == gjson.String && detail.String() != "":
		return detail.String()
	case detail.IsArray() && detail.Get("0.msg").Exists():
		return detail.Get("0.msg").String()
	}
	if msg := gjson.GetBytes(body, "message").String(); msg != "" {
		return msg
	}
	return "Unknown error"
}
