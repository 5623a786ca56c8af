package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/Hamnivore/used-item-aggregator/internal/contracts"
	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/urfave/cli/v3"
)

const prompt = "Enter a command (search <query> or exit): "

func streamAction(ctx context.Context, cmd *cli.Command) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", cmd.String("addr"))
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	return runREPL(conn, os.Stdin, os.Stdout)
}

// runREPL reads commands from in, sends them over conn and prints replies to out.
func runREPL(conn io.ReadWriter, in io.Reader, out io.Writer) error {
	input := bufio.NewScanner(in)
	replies := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		fmt.Fprint(out, prompt)
		if !input.Scan() {
			// stdin closed, leave politely
			return enc.Encode(contracts.Command{Type: contracts.CommandExit})
		}

		fields := strings.SplitN(strings.TrimSpace(input.Text()), " ", 2)
		switch {
		case fields[0] == contracts.CommandSearch && len(fields) == 2 && strings.TrimSpace(fields[1]) != "":
			query := strings.TrimSpace(fields[1])
			if err := enc.Encode(contracts.Command{Type: contracts.CommandSearch, Query: query}); err != nil {
				return fmt.Errorf("failed to send search: %w", err)
			}
			if err := receiveUntilComplete(replies, out); err != nil {
				return err
			}
		case fields[0] == contracts.CommandExit:
			return enc.Encode(contracts.Command{Type: contracts.CommandExit})
		default:
			fmt.Fprintln(out, "Invalid command. Use 'search <query>' or 'exit'.")
		}
	}
}

func receiveUntilComplete(replies *json.Decoder, out io.Writer) error {
	for {
		var msg wireMessage
		if err := replies.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("server closed the connection")
			}
			return fmt.Errorf("failed to read reply: %w", err)
		}
		if err := printMessage(out, msg); err != nil {
			return err
		}
		switch msg.Type {
		case string(domain.EventTypeSearchComplete), contracts.MessageCommandError:
			return nil
		}
	}
}
