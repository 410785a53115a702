package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
)

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	model      Model
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client for the given model. An empty apiKey falls back
// to the ZEROG_API_KEY environment variable at request time.
func NewClient(model Model, apiKey string) *Client {
	return &Client{
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

func (c *Client) resolveKey() (string, error) {
	key := c.apiKey
	if key == "" {
		key = os.Getenv("ZEROG_API_KEY")
	}
	if key == "" {
		return "", fmt.Errorf("ZEROG_API_KEY not set")
	}
	return key, nil
}

func (c *Client) buildRequest(ctx context.Context, req Request, streaming bool) (*http.Request, error) {
	key, err := c.resolveKey()
	if err != nil {
		return nil, err
	}

	messages := req.Messages
	if req.SystemPrompt != "" {
		systemMsg := Message{Role: "system", Content: req.SystemPrompt}
		messages = append([]Message{systemMsg}, req.Messages...)
	}

	reqBody := map[string]any{
		"model":    c.model.ID,
		"messages": messages,
		"stream":   streaming,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	slog.Debug("[LLM] request", "model", c.model.ID, "provider", c.model.Provider, "bytes", len(jsonBody), "stream", streaming)

	url := c.model.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+key)
	return httpReq, nil
}

// Stream starts a streaming completion. The returned stream terminates with
// a DoneEvent carrying the full response text, or an ErrorEvent. Cancelling
// the context aborts the underlying request.
func (c *Client) Stream(ctx context.Context, req Request) *Stream {
	stream := NewStream()

	go func() {
		defer stream.End("")

		httpReq, err := c.buildRequest(ctx, req, true)
		if err != nil {
			stream.Push(ErrorEvent{Error: err})
			return
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			stream.Push(ErrorEvent{Error: fmt.Errorf("connection error: %w", err)})
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			stream.Push(ErrorEvent{Error: ClassifyAPIError(resp.StatusCode, string(body))})
			return
		}

		stream.Push(StartEvent{})

		var text strings.Builder
		var usage Usage
		stopReason := "stop"

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()

			// SSE format: "data: {...}"
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				break
			}

			var chunk struct {
				Choices []struct {
					Delta struct {
						Content          string `json:"content,omitempty"`
						ReasoningContent string `json:"reasoning_content,omitempty"`
						Thinking         string `json:"thinking,omitempty"`
					} `json:"delta"`
					FinishReason *string `json:"finish_reason"`
				} `json:"choices"`
				Usage *Usage `json:"usage"`
				Error *struct {
					Message string `json:"message,omitempty"`
					Type    string `json:"type,omitempty"`
				} `json:"error,omitempty"`
			}
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}

			if chunk.Error != nil {
				msg := strings.TrimSpace(chunk.Error.Message)
				if msg == "" {
					msg = strings.TrimSpace(chunk.Error.Type)
				}
				stream.Push(ErrorEvent{Error: ClassifyAPIError(resp.StatusCode, msg)})
				return
			}
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			if choice.Delta.Content != "" {
				text.WriteString(choice.Delta.Content)
				stream.Push(TextDeltaEvent{Delta: choice.Delta.Content})
			}
			// Z.AI reports reasoning as reasoning_content, others as thinking.
			if choice.Delta.ReasoningContent != "" {
				stream.Push(ThinkingDeltaEvent{Delta: choice.Delta.ReasoningContent})
			}
			if choice.Delta.Thinking != "" {
				stream.Push(ThinkingDeltaEvent{Delta: choice.Delta.Thinking})
			}

			if choice.FinishReason != nil {
				stopReason = *choice.FinishReason
				break
			}
		}

		if err := scanner.Err(); err != nil {
			stream.Push(ErrorEvent{Error: err})
			return
		}

		stream.Push(DoneEvent{Text: text.String(), Usage: usage, StopReason: stopReason})
	}()

	return stream
}

// Complete performs a non-streaming completion and returns the response text.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	httpReq, err := c.buildRequest(ctx, req, false)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", ClassifyAPIError(resp.StatusCode, string(body))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("malformed completion response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("completion response has no choices")
	}
	return decoded.Choices[0].Message.Content, nil
}
