package eventbus

import (
	"context"

	"github.com/go-redis/redis/v8"
)

type Channel string

const (
	// ClientMessages carries events bound for one websocket connection.
	ClientMessages Channel = "client_messages"
)

func (c Channel) buildChannel(connectionID string) string {
	return string(c) + ":" + connectionID
}

// Message is anything the coordinator can push to a connection.
type Message interface {
	ToJSON() ([]byte, error)
}

type Publisher interface {
	PublishClient(connectionID string, msg Message) error
}

type Subscriber interface {
	SubscribeClient(connectionID string) (Subscription, error)
}

// Subscription is one connection's ordered stream of client-bound events.
// Redis delivers a channel's messages in publish order, which is what the
// relay's per-pair ordering guarantee rests on.
type Subscription interface {
	Channel() <-chan *redis.Message
	Close() error
}

type redisSubscription struct {
	pubsub *redis.PubSub
}

func (s *redisSubscription) Channel() <-chan *redis.Message {
	return s.pubsub.Channel()
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}

type Eventbus struct {
	rdb *redis.Client
}

// RedisPubSub is factory for building Eventbus based on redis pubsub
func RedisPubSub(rdb *redis.Client) *Eventbus {
	return &Eventbus{rdb: rdb}
}

func (e *Eventbus) PublishClient(connectionID string, msg Message) error {
	payload, err := msg.ToJSON()
	if err != nil {
		return err
	}
	return e.rdb.Publish(context.Background(), ClientMessages.buildChannel(connectionID), payload).Err()
}

func (e *Eventbus) SubscribeClient(connectionID string) (Subscription, error) {
	ctx := context.Background()
	// Subscribe the connection to its messages
	pubsub := e.rdb.Subscribe(ctx, ClientMessages.buildChannel(connectionID))
	// Wait until subscription is created
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, err
	}

	return &redisSubscription{pubsub: pubsub}, nil
}
