package contracts

import (
	"encoding/json"
	"fmt"

	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/google/uuid"
)

const (
	CommandSearch = "search"
	CommandExit   = "exit"

	MessageCommandError = "command_error"
)

// MaxQueryLength is the longest query accepted, in characters. The command
// schema carries the same limit as maxLength.
const MaxQueryLength = 256

// Command is what a streaming peer sends.
type Command struct {
	Type  string `json:"type"`
	Query string `json:"query,omitempty"`
}

// ParseCommand validates body against the command schema and decodes it.
func ParseCommand(body []byte) (Command, error) {
	if err := ValidateCommand(body); err != nil {
		return Command{}, err
	}
	var cmd Command
	if err := json.Unmarshal(body, &cmd); err != nil {
		return Command{}, fmt.Errorf("failed to decode command: %w", err)
	}
	return cmd, nil
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Message string `json:"message"`
}

// EventMessage is the wire form of a SourceEvent. Poll entries leave
// SearchID empty, pushed messages carry it.
type EventMessage struct {
	Type     domain.EventType `json:"type"`
	Source   domain.SourceID  `json:"source,omitempty"`
	SearchID string           `json:"search_id,omitempty"`
	Data     interface{}      `json:"data,omitempty"`
}

func NewEventMessage(searchID uuid.UUID, event domain.SourceEvent) EventMessage {
	msg := EventMessage{Type: event.Type, Source: event.Source}
	if searchID != uuid.Nil {
		msg.SearchID = searchID.String()
	}
	switch event.Type {
	case domain.EventTypeResult:
		if event.Item != nil {
			msg.Data = *event.Item
		}
	case domain.EventTypeError:
		msg.Data = ErrorData{Message: event.Message}
	}
	return msg
}

// NewEntries converts stored events into poll entries.
func NewEntries(events []domain.SourceEvent) []EventMessage {
	entries := make([]EventMessage, 0, len(events))
	for _, ev := range events {
		entries = append(entries, NewEventMessage(uuid.Nil, ev))
	}
	return entries
}

// CommandErrorMessage is sent back to a streaming peer whose command was rejected.
type CommandErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Query   string `json:"query,omitempty"`
}

func NewCommandError(message, query string) CommandErrorMessage {
	return CommandErrorMessage{Type: MessageCommandError, Message: message, Query: query}
}
