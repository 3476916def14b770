package ai

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/krishkalaria12/pix-stash/config"
)

const (
	visionModel   = "gpt-4o-mini"
	maxTokens     = 300
	fetchTimeout  = 10 * time.Second
	defaultPrompt = "Please describe this image in detail."

	msgNotConfigured  = "AI image analysis is not configured."
	msgDownloadFailed = "Failed to download image."
	msgEncodeFailed   = "Failed to encode image."
)

// BlobReader is the authenticated read path into our own object store.
type BlobReader interface {
	IsStorageURL(rawURL string) bool
	KeyFromURL(rawURL string) string
	Download(ctx context.Context, key string) ([]byte, error)
}

// Analyzer describes images through a vision-capable chat completion API.
//
// Analyze never returns an error: every failure mode collapses into a
// human-readable message that the caller stores as the description. The
// route layer therefore always succeeds at the HTTP level once it holds a
// record, whatever happened downstream.
type Analyzer struct {
	client     *openai.Client
	store      BlobReader
	httpClient *http.Client
	configured bool
	log        zerolog.Logger
}

func New(cfg *config.Config, store BlobReader, log zerolog.Logger) *Analyzer {
	a := &Analyzer{
		store:      store,
		httpClient: &http.Client{Timeout: fetchTimeout},
		log:        log.With().Str("component", "ai-analyzer").Logger(),
	}

	if cfg.OpenAIAPIKey == "" {
		a.log.Warn().Msg("OPENAI_API_KEY is not set; image analysis is disabled")
		return a
	}

	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}
	a.client = openai.NewClientWithConfig(clientCfg)
	a.configured = true
	return a
}

// Analyze fetches the image, base64-encodes it and asks the vision model for
// a description. customPrompt overrides the default prompt when non-empty.
func (a *Analyzer) Analyze(ctx context.Context, imageURL, customPrompt string) string {
	if !a.configured {
		return msgNotConfigured
	}

	data := a.fetch(ctx, imageURL)
	if data == nil {
		return msgDownloadFailed
	}
	if len(data) == 0 {
		return msgEncodeFailed
	}
	encoded := base64.StdEncoding.EncodeToString(data)

	prompt := customPrompt
	if prompt == "" {
		prompt = defaultPrompt
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     visionModel,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: "data:image/jpeg;base64," + encoded,
						},
					},
				},
			},
		},
	})
	if err != nil {
		a.log.Warn().Err(err).Str("url", imageURL).Msg("chat completion failed")
		return "Error analyzing image: " + err.Error()
	}
	if len(resp.Choices) == 0 {
		return "Error analyzing image: empty completion response"
	}

	return resp.Choices[0].Message.Content
}

// fetch returns the raw image bytes, or nil when the download failed. URLs
// inside our own bucket go through the store's authenticated read path;
// anything else is a plain bounded GET.
func (a *Analyzer) fetch(ctx context.Context, imageURL string) []byte {
	if a.store != nil && a.store.IsStorageURL(imageURL) {
		data, err := a.store.Download(ctx, a.store.KeyFromURL(imageURL))
		if err != nil {
			a.log.Warn().Err(err).Str("url", imageURL).Msg("storage download failed")
			return nil
		}
		return data
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.log.Warn().Err(err).Str("url", imageURL).Msg("image fetch failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		a.log.Warn().Int("status", resp.StatusCode).Str("url", imageURL).Msg("image fetch returned non-2xx")
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}
	return data
}
