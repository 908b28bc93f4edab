package ai

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatgw/internal/domain"
)

type fakeAPI struct {
	chatResp  openai.ChatCompletionResponse
	imageResp openai.ImageResponse
	audioResp openai.AudioResponse
	speech    string
	err       error

	// block makes every call wait out the caller's context.
	block bool

	lastChat openai.ChatCompletionRequest
}

func (f *fakeAPI) wait(ctx context.Context) error {
	if !f.block {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastChat = req
	if err := f.wait(ctx); err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	return f.chatResp, nil
}

func (f *fakeAPI) CreateImage(ctx context.Context, _ openai.ImageRequest) (openai.ImageResponse, error) {
	if err := f.wait(ctx); err != nil {
		return openai.ImageResponse{}, err
	}
	return f.imageResp, nil
}

func (f *fakeAPI) CreateEditImage(ctx context.Context, _ openai.ImageEditRequest) (openai.ImageResponse, error) {
	if err := f.wait(ctx); err != nil {
		return openai.ImageResponse{}, err
	}
	return f.imageResp, nil
}

func (f *fakeAPI) CreateVariImage(ctx context.Context, _ openai.ImageVariRequest) (openai.ImageResponse, error) {
	if err := f.wait(ctx); err != nil {
		return openai.ImageResponse{}, err
	}
	return f.imageResp, nil
}

func (f *fakeAPI) CreateSpeech(ctx context.Context, _ openai.CreateSpeechRequest) (io.ReadCloser, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(f.speech)), nil
}

func (f *fakeAPI) CreateTranscription(ctx context.Context, _ openai.AudioRequest) (openai.AudioResponse, error) {
	if err := f.wait(ctx); err != nil {
		return openai.AudioResponse{}, err
	}
	return f.audioResp, nil
}

func newTestClient(t *testing.T, f *fakeAPI, timeout time.Duration) *Client {
	t.Helper()
	return &Client{
		api:       f,
		ChatModel: "gpt-test",
		Timeout:   timeout,
		TempDir:   t.TempDir(),
		Log:       slog.Default(),
	}
}

func TestCompleteChatPrependsSystemPrompt(t *testing.T) {
	f := &fakeAPI{chatResp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "hi"}},
		},
	}}
	c := newTestClient(t, f, time.Second)

	out, err := c.CompleteChat(context.Background(), []domain.Turn{
		{Role: domain.RoleUser, Content: "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	require.Len(t, f.lastChat.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, f.lastChat.Messages[0].Role)
	assert.Equal(t, "hello", f.lastChat.Messages[1].Content)
}

func TestSlowBackendMapsToTimeout(t *testing.T) {
	c := newTestClient(t, &fakeAPI{block: true}, 20*time.Millisecond)

	_, err := c.CompleteChat(context.Background(), []domain.Turn{
		{Role: domain.RoleUser, Content: "hello"},
	})
	require.ErrorIs(t, err, domain.ErrBackendTimeout)
}

func TestBackendFailureMapsToUnavailable(t *testing.T) {
	c := newTestClient(t, &fakeAPI{err: io.ErrUnexpectedEOF}, time.Second)

	_, err := c.GenerateImage(context.Background(), "a red barn")
	require.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestSynthesizeWritesTempFile(t *testing.T) {
	f := &fakeAPI{speech: "opus-bytes"}
	c := newTestClient(t, f, time.Second)

	path, err := c.Synthesize(context.Background(), "hello world", "")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(path) })

	assert.Equal(t, c.TempDir, filepath.Dir(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "opus-bytes", string(b))
}

func TestTranscribeFailureMapsToTranscriptionError(t *testing.T) {
	c := newTestClient(t, &fakeAPI{err: io.ErrUnexpectedEOF}, time.Second)

	_, err := c.Transcribe(context.Background(), "/tmp/nope.ogg")
	require.ErrorIs(t, err, domain.ErrTranscriptionFailed)
}
