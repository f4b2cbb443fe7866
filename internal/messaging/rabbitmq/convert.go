package rabbitmq

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vladislavdragonenkov/shopflow/internal/messaging"
)

func toPublishing(d messaging.Delivery) amqp.Publishing {
	var headers amqp.Table
	if len(d.Headers) > 0 {
		headers = make(amqp.Table, len(d.Headers))
		for k, v := range d.Headers {
			headers[k] = v
		}
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    d.ID,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         d.Body,
	}
}

func fromAMQP(m amqp.Delivery) messaging.Delivery {
	headers := make(map[string]string, len(m.Headers))
	for k, v := range m.Headers {
		switch val := v.(type) {
		case string:
			headers[k] = val
		case []byte:
			headers[k] = string(val)
		default:
			headers[k] = fmt.Sprint(val)
		}
	}
	return messaging.Delivery{
		ID:       m.MessageId,
		Exchange: m.Exchange,
		Topic:    m.RoutingKey,
		Body:     m.Body,
		Headers:  headers,
	}
}
