package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "finder-client",
		Usage: "search used-item listings through a running finder service",
		Commands: []*cli.Command{
			{
				Name:  "stream",
				Usage: "interactive session over the streaming socket",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "address of the streaming socket",
						Value: "localhost:5555",
					},
				},
				Action: streamAction,
			},
			{
				Name:      "search",
				Usage:     "queue one search over HTTP and poll until it finishes",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "url",
						Usage: "base URL of the HTTP API",
						Value: "http://localhost:8080",
					},
					&cli.DurationFlag{
						Name:  "interval",
						Usage: "poll interval",
						Value: time.Second,
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "give up after this long",
						Value: 2 * time.Minute,
					},
				},
				Action: searchAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
