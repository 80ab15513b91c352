// Package service связывает компоненты intent-сервиса в один процесс.
//
// # Жизненный цикл
//
//  1. Подключение к RabbitMQ (ограниченный по времени retry)
//  2. Объявление router_exchange, NameExchange и NameQueue
//  3. Подписка на NameQueue
//  4. Публикация add_route для каждого объявленного маршрута
//  5. Обработка сообщений до отмены ctx
//  6. Дообработка текущего сообщения и закрытие соединения
//
// # Подтверждение сообщений
//
//   - Успех — ack
//   - Ошибка декодирования, проверки или handler'а — nack без requeue
//   - Ошибка публикации — nack с requeue
//
// Пример:
//
//	svc, err := service.New(service.Config{
//	    Name:    "Echo",
//	    Handler: echo.New(),
//	    Routes:  echo.Routes(),
//	    Broker:  mq.NewConnection(cfg.Broker, logger, metrics),
//	    Logger:  logger,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = svc.Run(ctx)
package service
