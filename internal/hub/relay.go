// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"sitekit/internal/protocol"
	"sitekit/internal/store"
)

// DefaultChannel is the Valkey pub/sub channel broadcasts travel on.
const DefaultChannel = "sitekit:sync"

// Relay shares broadcasts between server instances over Valkey pub/sub.
// Each instance tags what it publishes and skips its own messages.
type Relay struct {
	client  *redis.Client
	channel string
	origin  string
}

type relayEnvelope struct {
	Origin  string           `json:"origin"`
	Ref     store.Ref        `json:"ref"`
	Message protocol.Message `json:"message"`
}

// NewRelay creates a relay on channel, or DefaultChannel when empty.
func NewRelay(client *redis.Client, channel string) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Relay{client: client, channel: channel, origin: ulid.Make().String()}
}

// Origin returns the id this instance tags its messages with.
func (r *Relay) Origin() string {
	return r.origin
}

// Publish sends msg for ref to the other instances.
func (r *Relay) Publish(ctx context.Context, ref store.Ref, msg protocol.Message) error {
	payload, err := json.Marshal(relayEnvelope{Origin: r.origin, Ref: ref, Message: msg})
	if err != nil {
		return fmt.Errorf("encode relay message: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish relay message: %w", err)
	}
	return nil
}

// Run subscribes to the channel and hands every message published by
// another instance to deliver, until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, deliver func(store.Ref, protocol.Message)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	slog.Info("sync relay subscribed", "channel", r.channel, "origin", r.origin)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return fmt.Errorf("relay channel %s closed", r.channel)
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
				slog.Warn("dropping malformed relay message", "error", err)
				continue
			}
			if env.Origin == r.origin {
				continue
			}
			deliver(env.Ref, env.Message)
		}
	}
}
