// Package ai wraps the OpenAI backend behind the handful of operations
// the gateway needs. Every call runs under a hard deadline so a slow
// backend degrades into a friendly reply instead of a provider-side
// webhook timeout.
package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sashabaranov/go-openai"

	"chatgw/internal/domain"
	"chatgw/internal/observability"
	"chatgw/internal/util"
)

const systemPrompt = "You are a helpful assistant chatting over WhatsApp. " +
	"Keep answers concise and conversational."

// api is the slice of *openai.Client the gateway calls. Tests substitute
// a fake.
type api interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateImage(ctx context.Context, req openai.ImageRequest) (openai.ImageResponse, error)
	CreateEditImage(ctx context.Context, req openai.ImageEditRequest) (openai.ImageResponse, error)
	CreateVariImage(ctx context.Context, req openai.ImageVariRequest) (openai.ImageResponse, error)
	CreateSpeech(ctx context.Context, req openai.CreateSpeechRequest) (io.ReadCloser, error)
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

type Client struct {
	api       api
	ChatModel string
	Timeout   time.Duration
	TempDir   string
	Log       *slog.Logger
}

func NewClient(apiKey, chatModel string, timeout time.Duration, tempDir string, log *slog.Logger) *Client {
	return &Client{
		api:       openai.NewClient(apiKey),
		ChatModel: chatModel,
		Timeout:   timeout,
		TempDir:   tempDir,
		Log:       log,
	}
}

func (c *Client) guard(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.Timeout)
}

// mapErr folds backend failures into the gateway's error taxonomy.
func mapErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrBackendTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
}

func observe(op string, start time.Time) {
	observability.AILatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (c *Client) CompleteChat(ctx context.Context, turns []domain.Turn) (string, error) {
	ctx, cancel := c.guard(ctx)
	defer cancel()
	defer observe("chat", time.Now())

	msgs := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, t := range turns {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: t.Role, Content: t.Content})
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.ChatModel,
		Messages: msgs,
	})
	if err != nil {
		return "", mapErr(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", domain.ErrBackendUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := c.guard(ctx)
	defer cancel()
	defer observe("image_generate", time.Now())

	resp, err := c.api.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          openai.CreateImageModelDallE3,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		Quality:        openai.CreateImageQualityStandard,
		Style:          openai.CreateImageStyleNatural,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", mapErr(err)
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("%w: empty image response", domain.ErrBackendUnavailable)
	}
	return resp.Data[0].URL, nil
}

func (c *Client) EditImage(ctx context.Context, imagePath, prompt string) (string, error) {
	ctx, cancel := c.guard(ctx)
	defer cancel()
	defer observe("image_edit", time.Now())

	f, err := os.Open(imagePath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMediaDownload, err)
	}
	defer f.Close()

	resp, err := c.api.CreateEditImage(ctx, openai.ImageEditRequest{
		Image:  f,
		Prompt: prompt,
		N:      1,
		Size:   openai.CreateImageSize512x512,
	})
	if err != nil {
		return "", mapErr(err)
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("%w: empty image response", domain.ErrBackendUnavailable)
	}
	return resp.Data[0].URL, nil
}

func (c *Client) VaryImage(ctx context.Context, imagePath string) (string, error) {
	ctx, cancel := c.guard(ctx)
	defer cancel()
	defer observe("image_vary", time.Now())

	f, err := os.Open(imagePath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMediaDownload, err)
	}
	defer f.Close()

	resp, err := c.api.CreateVariImage(ctx, openai.ImageVariRequest{
		Image: f,
		N:     1,
		Size:  openai.CreateImageSize512x512,
	})
	if err != nil {
		return "", mapErr(err)
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("%w: empty image response", domain.ErrBackendUnavailable)
	}
	return resp.Data[0].URL, nil
}

// Synthesize renders text to speech and returns the path of an opus file
// under TempDir. Callers own the file and should remove it after sending.
func (c *Client) Synthesize(ctx context.Context, text, voice string) (string, error) {
	ctx, cancel := c.guard(ctx)
	defer cancel()
	defer observe("speech", time.Now())

	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	resp, err := c.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatOpus,
	})
	if err != nil {
		return "", mapErr(err)
	}
	defer resp.Close()

	if err := os.MkdirAll(c.TempDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(c.TempDir, util.NewTaskID()+".opus")
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, resp); err != nil {
		out.Close()
		os.Remove(path)
		return "", fmt.Errorf("write speech file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	ctx, cancel := c.guard(ctx)
	defer cancel()
	defer observe("transcribe", time.Now())

	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", domain.ErrBackendTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrTranscriptionFailed, err)
	}
	return resp.Text, nil
}
