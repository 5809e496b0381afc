package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// Source: часть amqp.Channel, нужная для чтения очереди.
type Source interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// EventHandler обрабатывает одно событие жизненного цикла.
type EventHandler func(ctx context.Context, e models.Event) error

// ErrDeliveriesClosed возвращается, когда брокер закрыл канал доставки.
var ErrDeliveriesClosed = errors.New("delivery channel closed")

// ConsumeEvents читает события из очереди и обрабатывает их не более чем в workers горутинах.
// Нераспознанное сообщение отбрасывается, сообщение с ошибкой обработки возвращается в очередь.
// Блокируется до отмены ctx или закрытия канала доставки и перед возвратом дожидается
// обработки уже полученных сообщений. При отмене ctx возвращает nil.
func ConsumeEvents(ctx context.Context, src Source, queue string, workers int, log *slog.Logger, handler EventHandler) error {
	const op = "rabbitmq.ConsumeEvents"
	if workers <= 0 {
		workers = 1
	}
	deliveries, err := src.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log = log.With(slog.String("op", op), slog.String("queue", queue))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("%s: %w", op, ErrDeliveriesClosed)
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				if err := d.Nack(false, true); err != nil {
					log.Error("failed to nack message", sl.Err(err))
				}
				return nil
			}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer func() {
					<-sem
					wg.Done()
				}()
				handleDelivery(ctx, d, log, handler)
			}(d)
		}
	}
}

func handleDelivery(ctx context.Context, d amqp.Delivery, log *slog.Logger, handler EventHandler) {
	var e models.Event
	if err := json.Unmarshal(d.Body, &e); err != nil || e.Type == "" {
		log.Warn("dropping malformed event", slog.String("routing_key", d.RoutingKey))
		if err := d.Reject(false); err != nil {
			log.Error("failed to reject message", sl.Err(err))
		}
		return
	}

	if err := handler(ctx, e); err != nil {
		log.Warn("failed to handle event", slog.String("type", e.Type), sl.Err(err))
		if err := d.Nack(false, true); err != nil {
			log.Error("failed to nack message", sl.Err(err))
		}
		return
	}
	if err := d.Ack(false); err != nil {
		log.Error("failed to ack message", sl.Err(err))
	}
}
