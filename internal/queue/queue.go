// Package queue carries hub commands over a Valkey stream so the API
// process can accept requests without running the pipelines itself; the
// hub process consumes and executes them.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/valkey-io/valkey-go"
)

const (
	StreamName = "biohub:commands"
	GroupName  = "biohub-hubs"
)

// Command kinds.
const (
	KindIndex         = "index"
	KindSnapshot      = "snapshot"
	KindSnapshotBuild = "snapshot_build"
)

// CommandMessage is one hub command enqueued for execution.
type CommandMessage struct {
	Kind string `json:"kind"`
	Env  string `json:"env,omitempty"`
	// Target is the build id for index and snapshot_build commands.
	Target    string   `json:"target,omitempty"`
	IndexName string   `json:"index_name,omitempty"`
	Snapshot  string   `json:"snapshot,omitempty"`
	Mode      string   `json:"mode,omitempty"`
	Steps     []string `json:"steps,omitempty"`
	BatchSize int      `json:"batch_size,omitempty"`
	IDs       []string `json:"ids,omitempty"`
}

// Producer enqueues hub commands to the Valkey stream.
type Producer struct {
	client valkey.Client
}

func NewProducer(client valkey.Client) *Producer {
	return &Producer{client: client}
}

func (p *Producer) Enqueue(ctx context.Context, msg CommandMessage) (string, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal command: %w", err)
	}

	resp := p.client.Do(ctx, p.client.B().Xadd().
		Key(StreamName).Id("*").
		FieldValue().FieldValue("data", string(data)).
		Build())
	if err := resp.Error(); err != nil {
		return "", fmt.Errorf("xadd command: %w", err)
	}

	id, err := resp.ToString()
	if err != nil {
		return "", fmt.Errorf("xadd response: %w", err)
	}
	return id, nil
}

// Consumer reads hub commands from the Valkey stream as part of a
// consumer group, so a restarted hub resumes its unacknowledged work.
type Consumer struct {
	client     valkey.Client
	consumerID string
	logger     *slog.Logger
}

func NewConsumer(client valkey.Client, consumerID string, logger *slog.Logger) *Consumer {
	return &Consumer{client: client, consumerID: consumerID, logger: logger}
}

// EnsureGroup creates the consumer group if it doesn't exist.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	resp := c.client.Do(ctx, c.client.B().XgroupCreate().
		Key(StreamName).Group(GroupName).Id("0").Mkstream().Build())
	if err := resp.Error(); err != nil {
		if err.Error() != "BUSYGROUP Consumer Group name already exists" {
			return fmt.Errorf("xgroup create: %w", err)
		}
	}
	return nil
}

// Consume blocks reading commands, handing each to handler and ACKing on
// success. Failed commands stay pending and are retried by drainPending
// on the next start.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, CommandMessage) error) error {
	c.drainPending(ctx, handler)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		resp := c.client.Do(ctx, c.client.B().Xreadgroup().
			Group(GroupName, c.consumerID).
			Count(1).Block(5000).
			Streams().Key(StreamName).Id(">").
			Build())

		if err := resp.Error(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		results, err := resp.AsXRead()
		if err != nil {
			continue
		}

		for _, messages := range results {
			for _, msg := range messages {
				c.process(ctx, msg, handler)
			}
		}
	}
}

func (c *Consumer) drainPending(ctx context.Context, handler func(context.Context, CommandMessage) error) {
	resp := c.client.Do(ctx, c.client.B().Xreadgroup().
		Group(GroupName, c.consumerID).
		Count(10).
		Streams().Key(StreamName).Id("0").
		Build())

	if err := resp.Error(); err != nil {
		c.logger.Warn("drain pending commands failed", slog.String("error", err.Error()))
		return
	}

	results, err := resp.AsXRead()
	if err != nil {
		return
	}

	for _, messages := range results {
		for _, msg := range messages {
			c.logger.Info("recovering pending command", slog.String("id", msg.ID))
			c.process(ctx, msg, handler)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg valkey.XRangeEntry, handler func(context.Context, CommandMessage) error) {
	dataStr, ok := msg.FieldValues["data"]
	if !ok {
		c.logger.Warn("command missing data field", slog.String("id", msg.ID))
		c.ack(ctx, msg.ID)
		return
	}

	var cmd CommandMessage
	if err := json.Unmarshal([]byte(dataStr), &cmd); err != nil {
		c.logger.Error("unmarshal command", slog.String("error", err.Error()), slog.String("id", msg.ID))
		c.ack(ctx, msg.ID)
		return
	}

	if err := handler(ctx, cmd); err != nil {
		c.logger.Error("handle command", slog.String("error", err.Error()),
			slog.String("id", msg.ID),
			slog.String("kind", cmd.Kind),
			slog.String("target", cmd.Target))
		return
	}
	c.ack(ctx, msg.ID)
}

func (c *Consumer) ack(ctx context.Context, msgID string) {
	resp := c.client.Do(ctx, c.client.B().Xack().
		Key(StreamName).Group(GroupName).Id(msgID).Build())
	if err := resp.Error(); err != nil {
		c.logger.Error("xack failed", slog.String("error", err.Error()), slog.String("id", msgID))
	}
}
