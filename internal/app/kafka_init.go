package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/ordenio/pedidos/internal/messaging/kafka"
)

// initKafkaProducer поднимает producer событий заказов. Пустой список
// брокеров означает запуск без Kafka: outbox копит записи до следующего
// деплоя с брокером.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Warn("kafka producer unavailable, order events will stay in outbox")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer подключён")
	return producer, nil
}

func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("ошибка при закрытии kafka producer")
		return
	}
	logger.Info("kafka producer закрыт")
}
