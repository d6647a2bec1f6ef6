package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Typed intent-extraction failures. All are user-correctable: the caller
// reports them and never retries automatically.
var (
	ErrNoTime      = errors.New("no time found in message")
	ErrNotReminder = errors.New("message is not a reminder request")
	ErrParseFailed = errors.New("could not parse model output")
)

type Client struct {
	client *openai.Client
	model  string
}

func New(apiKey, baseURL, model string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// ParsedReminder is the normalized (task, trigger instant, recurrence)
// tuple the scheduling core consumes.
type ParsedReminder struct {
	Task           string
	TriggerAt      time.Time // UTC
	RecurrenceRule string    // "" for one-shot reminders
}

const systemPromptTemplate = `You are a reminder-creation assistant.
The current time is %s.

If the user message describes a reminder with both a specific task and a specific time (or a clear recurrence), return JSON exactly like:
{"task": "<string>", "datetime_iso": "<ISO-8601 UTC or with offset>", "recurrence": "<null|daily|weekly|monthly|RRULE string>"}
Resolve relative times ("tomorrow at 9 pm", "every Monday") against the current time and output datetime_iso in ISO 8601.
If the message lacks a clear time: {"error": "no_time"}
If the text is not a reminder request: {"error": "not_reminder"}`

func systemPrompt(now time.Time) string {
	return fmt.Sprintf(systemPromptTemplate, now.UTC().Format("2006-01-02 15:04 (Monday) UTC"))
}

// JSON Schema for structured output
var reminderSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"task": {
			"type": "string",
			"description": "What to remind the user about"
		},
		"datetime_iso": {
			"type": "string",
			"description": "First trigger time in ISO 8601"
		},
		"recurrence": {
			"type": "string",
			"description": "null, daily, weekly, monthly, or an RFC 5545 RRULE"
		},
		"error": {
			"type": "string",
			"enum": ["no_time", "not_reminder"],
			"description": "Set only when no reminder can be created"
		}
	},
	"additionalProperties": false
}`)

// ParseReminder extracts a structured reminder from free text. It
// returns ErrNoTime, ErrNotReminder, or ErrParseFailed for the
// user-correctable failure modes.
func (c *Client) ParseReminder(ctx context.Context, text string, now time.Time) (*ParsedReminder, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt(now),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "reminder",
				Schema: reminderSchema,
			},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call AI API: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from AI")
	}

	return decodeParsed(resp.Choices[0].Message.Content)
}

func decodeParsed(content string) (*ParsedReminder, error) {
	var raw struct {
		Task        string `json:"task"`
		DatetimeISO string `json:"datetime_iso"`
		Recurrence  string `json:"recurrence"`
		Error       string `json:"error"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}

	switch raw.Error {
	case "":
	case "no_time":
		return nil, ErrNoTime
	case "not_reminder":
		return nil, ErrNotReminder
	default:
		return nil, fmt.Errorf("%w: unknown error variant %q", ErrParseFailed, raw.Error)
	}

	if raw.Task == "" || raw.DatetimeISO == "" {
		return nil, ErrParseFailed
	}

	when, err := parseInstant(raw.DatetimeISO)
	if err != nil {
		return nil, fmt.Errorf("%w: bad datetime %q", ErrParseFailed, raw.DatetimeISO)
	}

	rule := strings.TrimSpace(raw.Recurrence)
	if strings.EqualFold(rule, "null") || strings.EqualFold(rule, "none") {
		rule = ""
	}

	return &ParsedReminder{
		Task:           raw.Task,
		TriggerAt:      when.UTC(),
		RecurrenceRule: rule,
	}, nil
}

// parseInstant accepts the ISO shapes models actually emit; values
// without an offset are taken as UTC.
func parseInstant(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", value)
}
