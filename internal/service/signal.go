package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/totegamma/humayat"
	"github.com/totegamma/humayat/internal/domain"
)

type SignalService struct {
	rdb     *redis.Client
	channel string
}

func NewSignalService(redisClient *redis.Client) *SignalService {
	return &SignalService{
		rdb:     redisClient,
		channel: domain.ImageEventChannel,
	}
}

func (s *SignalService) Publish(ctx context.Context, event humayat.ImageEvent) error {

	jsonstr, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = s.rdb.Publish(ctx, s.channel, jsonstr).Err()
	if err != nil {
		return err

	}

	return nil
}

// Realtime forwards every published image event to output until ctx is done.
func (s *SignalService) Realtime(ctx context.Context, output chan<- humayat.ImageEvent) {
	pubsub := s.rdb.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}

			var event humayat.ImageEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.ErrorContext(
					ctx, "failed to decode image event",
					slog.String("error", err.Error()),
					slog.String("module", "signal"),
				)
				continue
			}

			select {
			case output <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}
