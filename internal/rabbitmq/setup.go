package rabbitmq

import (
	"fmt"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// QueueConfig описывает очередь и ключи, которыми она привязана к обменнику.
type QueueConfig struct {
	QueueName   string
	RoutingKeys []string
}

// LifecycleQueues возвращает очереди для событий подписок: аудит получает все события,
// биллинг только денежные.
func LifecycleQueues() []QueueConfig {
	return []QueueConfig{
		{
			QueueName: "subscriptions.audit",
			RoutingKeys: []string{
				models.EventSubscriptionCreated,
				models.EventSubscriptionUpgraded,
				models.EventSubscriptionCancelled,
				models.EventSubscriptionReconciled,
				models.EventPaymentRefunded,
			},
		},
		{
			QueueName: "subscriptions.billing",
			RoutingKeys: []string{
				models.EventSubscriptionCreated,
				models.EventSubscriptionUpgraded,
				models.EventPaymentRefunded,
			},
		},
	}
}

// SetupChannel открывает канал, объявляет durable direct-обменник и привязывает очереди.
func SetupChannel(conn *amqp.Connection, exchange string, queues []QueueConfig) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			q.QueueName,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("%s: failed to declare queue %s: %w", op, q.QueueName, err)
		}

		for _, key := range q.RoutingKeys {
			if err := ch.QueueBind(q.QueueName, key, exchange, false, nil); err != nil {
				_ = ch.Close()
				return nil, fmt.Errorf("%s: failed to bind queue %s with routing key %s: %w", op, q.QueueName, key, err)
			}
		}
	}

	return ch, nil
}
