package analyzer

import (
	"context"
	"encoding/json"
	"log/slog"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

// Oracle is the remote generative model that produces forensic verdicts
type Oracle interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Image is a base64 encoded still attached to a request
type Image struct {
	MediaType string
	Data      string
}

// Tool declares the structured output the model must produce
type Tool struct {
	Name        string
	Description string
	Properties  map[string]any
	Required    []string
}

// Request is a single multimodal completion request
type Request struct {
	Model       string
	MaxTokens   int64
	Temperature float64
	System      string
	Prompt      string
	Images      []Image
	Tool        *Tool
}

// Usage tracks token consumption for one request
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Response is the model's reply reduced to what the analyzer needs
type Response struct {
	ID         string
	Model      string
	StopReason string
	ToolName   string
	ToolInput  json.RawMessage
	Text       string
	Usage      Usage
}

// AgentConfig configures the Anthropic-backed oracle
type AgentConfig struct {
	APIKey  string
	BaseURL string
}

type anthropicOracle struct {
	client sdk.Client
	logger *slog.Logger
}

// NewAgent initializes an Oracle backed by the Anthropic Messages API.
// An empty API key falls back to the SDK's ANTHROPIC_API_KEY lookup; it is not
// validated until the first request.
func NewAgent(cfg AgentConfig, logger *slog.Logger) Oracle {
	opts := []option.RequestOption{
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &anthropicOracle{
		client: sdk.NewClient(opts...),
		logger: logger,
	}
}

func (o *anthropicOracle) Complete(ctx context.Context, req Request) (*Response, error) {
	blocks := make([]sdk.ContentBlockParamUnion, 0, len(req.Images)+1)
	blocks = append(blocks, sdk.NewTextBlock(req.Prompt))
	for _, img := range req.Images {
		blocks = append(blocks, sdk.NewImageBlockBase64(img.MediaType, img.Data))
	}

	params := sdk.MessageNewParams{
		Model:       sdk.Model(req.Model),
		MaxTokens:   req.MaxTokens,
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(blocks...)},
		Temperature: sdk.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Tool != nil {
		params.Tools = []sdk.ToolUnionParam{{
			OfTool: &sdk.ToolParam{
				Name:        req.Tool.Name,
				Description: sdk.String(req.Tool.Description),
				InputSchema: sdk.ToolInputSchemaParam{
					Properties: req.Tool.Properties,
					Required:   req.Tool.Required,
				},
			},
		}}
		params.ToolChoice = sdk.ToolChoiceParamOfTool(req.Tool.Name)
	}

	o.logger.Debug("sending oracle request",
		"model", req.Model,
		"images", len(req.Images),
		"temperature", req.Temperature,
	)

	msg, err := o.client.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}

	resp := &Response{
		ID:         msg.ID,
		Model:      string(msg.Model),
		StopReason: string(msg.StopReason),
		Usage: Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "tool_use":
			if resp.ToolInput == nil {
				resp.ToolName = block.Name
				resp.ToolInput = block.Input
			}
		case "text":
			if resp.Text == "" {
				resp.Text = block.Text
			}
		}
	}

	return resp, nil
}
