package kafka

import (
	"strings"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/shopflow/internal/messaging"
)

// Заголовки Kafka-сообщения, переносящие метаданные конверта.
const (
	HeaderMessageID = "x-message-id"
	HeaderExchange  = "x-exchange"
	HeaderTopic     = "x-topic"
)

// TopicName строит имя Kafka topic для пары exchange/routing key: <prefix>.<exchange>.<topic>.
func TopicName(prefix, exchange, topic string) string {
	parts := make([]string, 0, 3)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, exchange, topic)
	return strings.Join(parts, ".")
}

func toHeaders(d messaging.Delivery) []sarama.RecordHeader {
	headers := make([]sarama.RecordHeader, 0, len(d.Headers)+3)
	headers = append(headers,
		sarama.RecordHeader{Key: []byte(HeaderMessageID), Value: []byte(d.ID)},
		sarama.RecordHeader{Key: []byte(HeaderExchange), Value: []byte(d.Exchange)},
		sarama.RecordHeader{Key: []byte(HeaderTopic), Value: []byte(d.Topic)},
	)
	for k, v := range d.Headers {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	return headers
}

// toDelivery восстанавливает конверт; без служебных заголовков используется ключ сообщения и binding.
func toDelivery(b messaging.Binding, msg *sarama.ConsumerMessage) messaging.Delivery {
	d := messaging.Delivery{
		ID:       string(msg.Key),
		Exchange: b.Exchange,
		Topic:    b.Topic,
		Body:     msg.Value,
		Headers:  make(map[string]string, len(msg.Headers)),
	}
	for _, h := range msg.Headers {
		if h == nil {
			continue
		}
		switch key := string(h.Key); key {
		case HeaderMessageID:
			d.ID = string(h.Value)
		case HeaderExchange:
			d.Exchange = string(h.Value)
		case HeaderTopic:
			d.Topic = string(h.Value)
		default:
			d.Headers[key] = string(h.Value)
		}
	}
	return d
}
