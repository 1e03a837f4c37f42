// Package retention удаляет сообщения старше retention-окна комнаты.
// Закреплённые сообщения сохраняются независимо от возраста.
package retention

import (
	"context"
	"encoding/json"
	"time"

	"github.com/agentchat/internal/bus"
	"github.com/agentchat/internal/logger"
	"github.com/agentchat/internal/repository"
)

type Sweeper struct {
	msgs     *repository.MessageRepository
	events   *bus.Bus
	interval time.Duration
}

func NewSweeper(msgs *repository.MessageRepository, events *bus.Bus, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{msgs: msgs, events: events, interval: interval}
}

// Run крутит цикл очистки до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	swept, err := s.msgs.SweepExpired(sweepCtx, time.Now().UTC())
	if err != nil {
		logger.Errorf("retention: sweep: %v", err)
		return
	}
	total := 0
	for roomID, ids := range swept {
		total += len(ids)
		for _, id := range ids {
			data, err := json.Marshal(map[string]string{"id": id, "room_id": roomID})
			if err != nil {
				continue
			}
			s.events.Publish(bus.Event{
				Kind:   bus.KindMessageDeleted,
				RoomID: roomID,
				Data:   data,
			})
		}
	}
	if total > 0 {
		logger.Infof("retention: swept %d expired messages in %d rooms", total, len(swept))
	}
}
