/*
SPDX-FileCopyrightText: Copyright (c) 2026 NVIDIA CORPORATION & AFFILIATES. All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.

SPDX-License-Identifier: Apache-2.0
*/

package redis

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"go.corp.nvidia.com/osmo-authz/utils"
)

const (
	// DefaultInvalidationChannel carries role cache invalidations.
	DefaultInvalidationChannel = "osmo:authz:roles:invalidate"

	// InvalidateAll as a payload drops every cached role set. An empty
	// payload means the same.
	InvalidateAll = "*"

	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffMax  = 30 * time.Second
)

// Invalidator is the cache side of an invalidation message.
type Invalidator interface {
	Clear()
	InvalidateRole(roleName string) int
}

// ParseInvalidation decodes a message payload. all is true for "*" or an
// empty payload; otherwise roleNames holds the comma-separated names with
// whitespace trimmed and empty entries dropped.
func ParseInvalidation(payload string) (all bool, roleNames []string) {
	payload = strings.TrimSpace(payload)
	if payload == "" || payload == InvalidateAll {
		return true, nil
	}
	for _, name := range strings.Split(payload, ",") {
		if name = strings.TrimSpace(name); name != "" {
			roleNames = append(roleNames, name)
		}
	}
	if len(roleNames) == 0 {
		return true, nil
	}
	return false, roleNames
}

// ApplyInvalidation applies one payload to target.
func ApplyInvalidation(target Invalidator, payload string) {
	all, roleNames := ParseInvalidation(payload)
	if all {
		target.Clear()
		return
	}
	for _, name := range roleNames {
		target.InvalidateRole(name)
	}
}

// PublishRoleInvalidation announces that roleNames changed. With no names
// every replica clears its whole cache.
func (c *RedisClient) PublishRoleInvalidation(ctx context.Context, channel string, roleNames ...string) error {
	payload := InvalidateAll
	if len(roleNames) > 0 {
		payload = strings.Join(roleNames, ",")
	}
	return c.client.Publish(ctx, channel, payload).Err()
}

// InvalidationSubscriber listens on a channel and applies every message to
// an Invalidator.
type InvalidationSubscriber struct {
	client      *redis.Client
	channel     string
	target      Invalidator
	logger      *slog.Logger
	backoffBase time.Duration
	backoffMax  time.Duration

	// subscribed is closed once the first subscription is confirmed.
	subscribed chan struct{}
}

// NewInvalidationSubscriber creates a subscriber for channel.
func NewInvalidationSubscriber(client *RedisClient, channel string, target Invalidator, logger *slog.Logger) *InvalidationSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	if channel == "" {
		channel = DefaultInvalidationChannel
	}
	return &InvalidationSubscriber{
		client:      client.Client(),
		channel:     channel,
		target:      target,
		logger:      logger,
		backoffBase: defaultBackoffBase,
		backoffMax:  defaultBackoffMax,
		subscribed:  make(chan struct{}),
	}
}

// Subscribed is closed after the subscription is first confirmed by Redis.
func (s *InvalidationSubscriber) Subscribed() <-chan struct{} {
	return s.subscribed
}

// Run receives messages until ctx is cancelled. After any receive error the
// whole cache is cleared, since messages published while disconnected are
// lost, and the receive is retried with exponential backoff.
func (s *InvalidationSubscriber) Run(ctx context.Context) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	retryCount := 0
	confirmed := false
	for {
		msg, err := pubsub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := utils.CalculateBackoff(retryCount, s.backoffBase, s.backoffMax)
			retryCount++
			s.logger.Warn("role invalidation subscription interrupted",
				slog.String("channel", s.channel),
				slog.String("error", err.Error()),
				slog.Duration("retry_in", delay),
			)
			s.target.Clear()

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		retryCount = 0

		switch m := msg.(type) {
		case *redis.Subscription:
			s.logger.Info("subscribed to role invalidations",
				slog.String("channel", m.Channel),
				slog.String("kind", m.Kind),
			)
			if !confirmed && m.Kind == "subscribe" {
				confirmed = true
				close(s.subscribed)
			}
		case *redis.Message:
			s.logger.Info("role invalidation received",
				slog.String("channel", m.Channel),
				slog.String("payload", m.Payload),
			)
			ApplyInvalidation(s.target, m.Payload)
		}
	}
}
