package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cloo-solutions/tenantpal/internal/domain"
	"github.com/cloo-solutions/tenantpal/internal/metrics"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions is the expected dimension of embeddings from text-embedding-3-small
	DefaultEmbeddingDimensions = 1536
	// DefaultChatModel is used when a role does not bind its own model
	DefaultChatModel = openai.GPT4oMini

	DefaultEmbeddingTimeout = 60 * time.Second
	DefaultChatTimeout      = 120 * time.Second
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when embedding has wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrNoAPIKey is returned when OpenAI API key is not set
	ErrNoAPIKey = domain.ErrMissingCapabilityKey
)

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatAPI defines the interface for chat completions
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req domain.CompletionRequest) (string, error)
}

// Client is the process-wide handle on the external embedding and reasoning
// capabilities. It is built once from explicit configuration and passed by
// reference to every consumer.
type Client struct {
	api              EmbeddingAPI
	chat             ChatAPI
	dimensions       int
	embeddingModel   string
	chatModel        string
	embeddingTimeout time.Duration
	chatTimeout      time.Duration
}

type OpenAIAdapter struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// NewOpenAIAdapter embeds with model. A positive dimensions is sent with every
// request so text-embedding-3 models shorten their vectors to match; zero
// leaves the model's native size.
func NewOpenAIAdapter(client *openai.Client, model openai.EmbeddingModel, dimensions int) *OpenAIAdapter {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIAdapter{
		client:     client,
		model:      model,
		dimensions: dimensions,
	}
}

// CreateEmbeddings calls the OpenAI API to embed a batch of texts. Vectors
// are returned in input order.
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          texts,
		Model:          a.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		Dimensions:     a.dimensions,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding response index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// ChatAdapter issues chat completions through the OpenAI API.
type ChatAdapter struct {
	client *openai.Client
}

func NewChatAdapter(client *openai.Client) *ChatAdapter {
	return &ChatAdapter{client: client}
}

// CreateChatCompletion sends a system + user message pair and returns the
// first choice's content.
func (a *ChatAdapter) CreateChatCompletion(ctx context.Context, req domain.CompletionRequest) (string, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
	}
	if req.JSONOutput {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := a.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      string
	EmbeddingDimensions int
	ChatModel           string
	EmbeddingTimeout    time.Duration
	ChatTimeout         time.Duration
}

// NewClient creates a new OpenAI client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	api := openai.NewClientWithConfig(clientCfg)

	c := newClient(NewOpenAIAdapter(api, openai.EmbeddingModel(cfg.EmbeddingModel), cfg.EmbeddingDimensions), NewChatAdapter(api), cfg)
	return c
}

// NewClientFromConfig validates that a credential is present before building the handle.
func NewClientFromConfig(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNoAPIKey
	}
	return NewClientWithConfig(cfg), nil
}

func newClient(api EmbeddingAPI, chat ChatAPI, cfg Config) *Client {
	c := &Client{
		api:              api,
		chat:             chat,
		dimensions:       cfg.EmbeddingDimensions,
		embeddingModel:   cfg.EmbeddingModel,
		chatModel:        cfg.ChatModel,
		embeddingTimeout: cfg.EmbeddingTimeout,
		chatTimeout:      cfg.ChatTimeout,
	}
	if c.dimensions <= 0 {
		c.dimensions = DefaultEmbeddingDimensions
	}
	if c.embeddingModel == "" {
		c.embeddingModel = string(DefaultEmbeddingModel)
	}
	if c.chatModel == "" {
		c.chatModel = DefaultChatModel
	}
	if c.embeddingTimeout <= 0 {
		c.embeddingTimeout = DefaultEmbeddingTimeout
	}
	if c.chatTimeout <= 0 {
		c.chatTimeout = DefaultChatTimeout
	}
	return c
}

// Dimensions returns the embedding dimension every vector is checked against.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// DefaultModel returns the chat model used when a role binds none.
func (c *Client) DefaultModel() string {
	return c.chatModel
}

// GenerateEmbedding generates an embedding for the given text
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	vectors, err := c.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// GenerateEmbeddings embeds a batch of texts in one bounded round-trip.
func (c *Client) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, t := range texts {
		if t == "" {
			return nil, ErrEmptyText
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.embeddingTimeout)
	defer cancel()

	start := time.Now()
	vectors, err := c.api.CreateEmbeddings(ctx, texts)
	metrics.ObserveCapabilityCall("embedding", c.embeddingModel, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	for _, v := range vectors {
		if len(v) != c.dimensions {
			return nil, ErrWrongDimensions
		}
	}

	return vectors, nil
}

// Complete runs one chat completion bounded by the chat timeout.
func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	if req.Model == "" {
		req.Model = c.chatModel
	}

	ctx, cancel := context.WithTimeout(ctx, c.chatTimeout)
	defer cancel()

	start := time.Now()
	out, err := c.chat.CreateChatCompletion(ctx, req)
	metrics.ObserveCapabilityCall("chat", req.Model, start, err)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	return out, nil
}
