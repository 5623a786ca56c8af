package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Hamnivore/used-item-aggregator/internal/contracts"
	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
)

// wireMessage is any message the service sends to a client.
type wireMessage struct {
	Type     string          `json:"type"`
	Source   string          `json:"source,omitempty"`
	SearchID string          `json:"search_id,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Message  string          `json:"message,omitempty"`
}

const separator = "--------------------------------------------------"

// printMessage writes a human readable form of msg to out.
func printMessage(out io.Writer, msg wireMessage) error {
	switch msg.Type {
	case string(domain.EventTypeResult):
		var item domain.ListingRecord
		if err := json.Unmarshal(msg.Data, &item); err != nil {
			return fmt.Errorf("malformed result from %s: %w", msg.Source, err)
		}
		fmt.Fprintf(out, "Received from %s:\n", msg.Source)
		fmt.Fprintf(out, "Name: %s\n", item.Name)
		if item.Price != nil {
			fmt.Fprintf(out, "Price: $%.2f\n", *item.Price)
		} else {
			fmt.Fprintln(out, "Price: N/A")
		}
		if item.URL != nil {
			fmt.Fprintf(out, "URL: %s\n", *item.URL)
		} else {
			fmt.Fprintln(out, "URL: N/A")
		}
		if len(item.ImageURLs) > 0 {
			fmt.Fprintf(out, "Images: %s\n", strings.Join(item.ImageURLs, ", "))
		}
		fmt.Fprintln(out, separator)
	case string(domain.EventTypeError):
		var data contracts.ErrorData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return fmt.Errorf("malformed error from %s: %w", msg.Source, err)
		}
		fmt.Fprintf(out, "Source %s failed: %s\n", msg.Source, data.Message)
		fmt.Fprintln(out, separator)
	case string(domain.EventTypeSearchComplete):
		fmt.Fprintln(out, "Search completed.")
	case contracts.MessageCommandError:
		fmt.Fprintf(out, "Command rejected: %s\n", msg.Message)
	default:
		fmt.Fprintf(out, "Unknown message type %q\n", msg.Type)
	}
	return nil
}
