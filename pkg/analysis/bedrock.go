package analysis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"

	"github.com/valentinpelus/posturewatch/pkg/source"
)

const bedrockPrompt = `You are a posture coach looking at a single webcam frame of a person at a desk.
List the posture problems you can see, using short lowercase labels such as
"slouching", "forward head", "uneven shoulders", "leaning sideways".

Respond with a JSON array of strings only. Respond with [] when the posture looks fine
or when no person is visible.`

// modelInvoker is the part of the Bedrock runtime client the analyzer uses
type modelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockAnalyzer analyzes frames with a vision model on AWS Bedrock
type BedrockAnalyzer struct {
	client  modelInvoker
	model   string
	region  string
	timeout time.Duration
}

// NewBedrockAnalyzer creates a new AWS Bedrock frame analyzer
func NewBedrockAnalyzer(ctx context.Context, region, model string, timeout time.Duration) (*BedrockAnalyzer, error) {
	if region == "" {
		region = "us-east-1" // Default region
	}
	if model == "" {
		model = "anthropic.claude-3-5-sonnet-20241022-v2:0" // Default model
	}

	// Load AWS credentials from environment/IAM role
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newBedrockAnalyzer(bedrockruntime.NewFromConfig(cfg), region, model, timeout), nil
}

func newBedrockAnalyzer(client modelInvoker, region, model string, timeout time.Duration) *BedrockAnalyzer {
	if timeout <= 0 {
		timeout = defaultFrameTimeout
	}
	return &BedrockAnalyzer{
		client:  client,
		model:   model,
		region:  region,
		timeout: timeout,
	}
}

// Name returns the analyzer name
func (p *BedrockAnalyzer) Name() string {
	return fmt.Sprintf("AWS Bedrock (%s)", p.model)
}

// Bedrock request/response structures (Claude messages format on Bedrock)
type bedrockImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type bedrockContentBlock struct {
	Type   string              `json:"type"`
	Text   string              `json:"text,omitempty"`
	Source *bedrockImageSource `json:"source,omitempty"`
}

type bedrockClaudeMessage struct {
	Role    string                `json:"role"`
	Content []bedrockContentBlock `json:"content"`
}

type bedrockClaudeRequest struct {
	Messages         []bedrockClaudeMessage `json:"messages"`
	MaxTokens        int                    `json:"max_tokens"`
	Temperature      float64                `json:"temperature"`
	AnthropicVersion string                 `json:"anthropic_version"`
}

type bedrockClaudeResponse struct {
	ID      string                `json:"id"`
	Role    string                `json:"role"`
	Content []bedrockContentBlock `json:"content"`
}

// AnalyzeFrame asks the model for posture issue labels
func (p *BedrockAnalyzer) AnalyzeFrame(ctx context.Context, frame source.Frame) ([]string, error) {
	if len(frame.Data) == 0 {
		return nil, clientError("frame has no image data", nil)
	}

	mediaType := "image/jpeg"
	if frame.ContentType != "" {
		if mt, _, err := mime.ParseMediaType(frame.ContentType); err == nil {
			mediaType = mt
		}
	}

	reqBody := bedrockClaudeRequest{
		Messages: []bedrockClaudeMessage{
			{
				Role: "user",
				Content: []bedrockContentBlock{
					{
						Type: "image",
						Source: &bedrockImageSource{
							Type:      "base64",
							MediaType: mediaType,
							Data:      base64.StdEncoding.EncodeToString(frame.Data),
						},
					},
					{Type: "text", Text: bedrockPrompt},
				},
			},
		},
		MaxTokens:        200,
		Temperature:      0.0,
		AnthropicVersion: "bedrock-2023-05-31",
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, clientError("failed to marshal request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        jsonData,
	})
	if err != nil {
		return nil, classifyBedrockError(err)
	}

	var bedrockResp bedrockClaudeResponse
	if err := json.Unmarshal(resp.Body, &bedrockResp); err != nil {
		return nil, rejected(0, "invalid response body")
	}
	if len(bedrockResp.Content) == 0 {
		return nil, rejected(0, "Bedrock returned no content")
	}

	issues, err := parseIssueArray(bedrockResp.Content[0].Text)
	if err != nil {
		log.Printf("Bedrock returned unparseable issues %q: %v", bedrockResp.Content[0].Text, err)
		return nil, rejected(0, "model reply was not a list of issues")
	}
	return issues, nil
}

// parseIssueArray pulls the first JSON array of strings out of a model reply
func parseIssueArray(text string) ([]string, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end < start {
		return nil, fmt.Errorf("no JSON array in reply")
	}

	var raw []string
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, err
	}

	issues := make([]string, 0, len(raw))
	for _, label := range raw {
		label = strings.ToLower(strings.TrimSpace(label))
		if label != "" {
			issues = append(issues, label)
		}
	}
	return issues, nil
}

func classifyBedrockError(err error) error {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		message := "Unknown error"
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorMessage() != "" {
			message = apiErr.ErrorMessage()
		}
		return rejected(respErr.HTTPStatusCode(), message)
	}
	return noResponse(err)
}
