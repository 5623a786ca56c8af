package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
)

type queuedResponse struct {
	Message  string `json:"message"`
	SearchID string `json:"search_id"`
	Error    string `json:"error"`
}

type resultsResponse struct {
	SearchID    string        `json:"search_id"`
	Status      string        `json:"status"`
	IsSearching bool          `json:"is_searching"`
	Results     []wireMessage `json:"results"`
	Error       string        `json:"error"`
}

func searchAction(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if query == "" {
		return errors.New("a query is required")
	}

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	client := &http.Client{Timeout: 30 * time.Second}
	return pollSearch(ctx, client, cmd.String("url"), query, cmd.Duration("interval"), os.Stdout)
}

// pollSearch queues query and prints its results once the service reports it finished.
func pollSearch(ctx context.Context, client *http.Client, baseURL, query string, interval time.Duration, out io.Writer) error {
	baseURL = strings.TrimSuffix(baseURL, "/")

	var queued queuedResponse
	status, err := getJSON(ctx, client, baseURL+"/search/"+url.PathEscape(query), &queued)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("search was not queued (status %d): %s", status, queued.Error)
	}
	fmt.Fprintf(out, "Search queued: %s\n", queued.SearchID)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		var results resultsResponse
		status, err := getJSON(ctx, client, baseURL+"/results/"+queued.SearchID, &results)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("failed to read results (status %d): %s", status, results.Error)
		}

		if !results.IsSearching {
			for _, msg := range results.Results {
				if err := printMessage(out, msg); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "Search completed with %d entries.\n", len(results.Results))
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("gave up waiting for search %s: %w", queued.SearchID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func getJSON(ctx context.Context, client *http.Client, target string, v interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request to %s failed: %w", target, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response from %s: %w", target, err)
	}
	return resp.StatusCode, nil
}
