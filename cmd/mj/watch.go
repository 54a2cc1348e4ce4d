package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/menujobs/internal/events"
	"github.com/alfredjeanlab/menujobs/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Follow notifications published by the handlers",
	GroupID: "events",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats-url")
		topic, _ := cmd.Flags().GetString("topic")
		if natsURL == "" {
			return fmt.Errorf("no NATS URL: set --nats-url or MENUJOBS_NATS_URL")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		return watchNATS(ctx, natsURL, topic)
	},
}

// watchNATS prints every notification on topic until ctx is cancelled.
func watchNATS(ctx context.Context, natsURL, topic string) error {
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(topic)
	if err != nil {
		return fmt.Errorf("subscribing to notifications: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			printMessage(msg, time.Now())
		}
	}
}

func printMessage(msg events.Message, at time.Time) {
	if jsonOutput {
		out := struct {
			Topic string          `json:"topic"`
			Key   string          `json:"key,omitempty"`
			Data  json.RawMessage `json:"data"`
		}{msg.Topic, msg.Key, msg.Data}
		if !json.Valid(msg.Data) {
			out.Data, _ = json.Marshal(string(msg.Data))
		}
		data, _ := json.Marshal(out)
		fmt.Println(string(data))
		return
	}
	fmt.Printf("%s %s %s %s\n",
		ui.RenderMuted(at.Format("15:04:05")),
		ui.RenderAccent(msg.Topic),
		ui.RenderMuted(msg.Key),
		msg.Data,
	)
}

func init() {
	watchCmd.Flags().String("nats-url", os.Getenv("MENUJOBS_NATS_URL"), "NATS server URL")
	watchCmd.Flags().String("topic", events.TopicAll, "subject to follow (NATS wildcards allowed)")
}
