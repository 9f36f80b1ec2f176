package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/sirupsen/logrus"

	"praxischat/model"
)

var ErrEmptyCompletion = errors.New("assistant response was empty")

// Turn 上下文窗口中的一轮对话
type Turn struct {
	Role    model.Role
	Content string
}

// TurnsFromMessages 按原顺序转换
func TurnsFromMessages(messages []model.Message) []Turn {
	turns := make([]Turn, len(messages))
	for i, m := range messages {
		turns[i] = Turn{Role: m.Role, Content: m.Content}
	}
	return turns
}

// Generator 生成助手回复
type Generator interface {
	GenerateResponse(ctx context.Context, window []Turn) (string, error)
}

// AssistantOptions 模型参数
type AssistantOptions struct {
	Model        string
	Temperature  float64
	MaxTokens    int64
	SystemPrompt string
}

// Assistant 对 chat completions 的封装，失败直接返回给调用方
type Assistant struct {
	client *openai.Client
	opts   AssistantOptions
	logger *logrus.Logger
}

func NewAssistant(client *openai.Client, opts AssistantOptions, logger *logrus.Logger) *Assistant {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = SystemPrompt
	}
	return &Assistant{client: client, opts: opts, logger: logger}
}

func (a *Assistant) GenerateResponse(ctx context.Context, window []Turn) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages:    openai.F(a.buildMessages(window)),
		Model:       openai.F(openai.ChatModel(a.opts.Model)),
		Temperature: openai.F(a.opts.Temperature),
		MaxTokens:   openai.F(a.opts.MaxTokens),
	}

	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if IsRateLimited(err) {
			a.logger.Warnf("LLM rate limit hit: %s", err)
		} else {
			a.logger.Errorf("LLM API error: %s", err)
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

func (a *Assistant) buildMessages(window []Turn) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(window)+1)
	messages = append(messages, chatMessage(openai.ChatCompletionMessageParamRoleSystem, a.opts.SystemPrompt))
	for _, turn := range window {
		role := openai.ChatCompletionMessageParamRoleUser
		if turn.Role == model.RoleAssistant {
			role = openai.ChatCompletionMessageParamRoleAssistant
		}
		messages = append(messages, chatMessage(role, turn.Content))
	}
	return messages
}

func chatMessage(role openai.ChatCompletionMessageParamRole, content string) openai.ChatCompletionMessageParam {
	var body any = content
	return openai.ChatCompletionMessageParam{
		Role:    openai.F(role),
		Content: openai.F(body),
	}
}

// IsRateLimited 判断是否为服务商的 429
func IsRateLimited(err error) bool {
	var apiErr *openai.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}
