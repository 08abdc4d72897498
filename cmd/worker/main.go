package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sokograph/backend/internal/queue"
	"github.com/sokograph/backend/internal/util"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sokograph/backend/pkg/extract"
	"github.com/sokograph/backend/pkg/grammar"
	"github.com/sokograph/backend/pkg/leaselock"
	"github.com/sokograph/backend/pkg/logger"
	"github.com/sokograph/backend/pkg/logger/console"
	"github.com/sokograph/backend/pkg/logger/file"
	"github.com/sokograph/backend/pkg/persist"
	pgxstore "github.com/sokograph/backend/pkg/persist/pgx"
	s3store "github.com/sokograph/backend/pkg/persist/s3"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	backends := []logger.LoggerInstance{
		console.NewConsoleLogger(console.ConsoleLoggerParams{
			Debug: debug,
		}),
	}
	if logPath := util.GetEnvString("LOG_FILE", ""); logPath != "" {
		backends = append(backends, file.NewFileLogger(file.FileLoggerParams{
			Path:       logPath,
			MaxSizeMB:  util.GetEnvInt("LOG_MAX_SIZE_MB", 50),
			MaxBackups: util.GetEnvInt("LOG_MAX_BACKUPS", 5),
			Debug:      debug,
		}))
	}
	logger.Init(backends...)

	// Init s3 client
	s3Client, err := s3store.NewClient(ctx)
	if err != nil {
		logger.Fatal("Could not create S3 client", "err", err)
	}
	bucket := util.GetEnvString("AWS_BUCKET", "sokograph")
	docStore := s3store.NewDocumentStore(s3Client, bucket)

	// Init pgx client
	pgConn, err := util.RetryWithContext(ctx, 5, func(ctx context.Context) (*pgxpool.Pool, error) {
		return pgxstore.NewPool(ctx, util.GetEnv("DATABASE_URL"))
	})
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	relStore := pgxstore.NewStore(pgConn)
	if err := relStore.EnsureSchema(ctx); err != nil {
		logger.Fatal("Unable to ensure schema", "err", err)
	}

	coordinator := persist.NewCoordinator(docStore, relStore)
	lock := leaselock.New(pgConn)

	extractorVersion := util.GetEnvInt("EXTRACTOR_VERSION", 1)
	engine := extract.NewEngine(grammar.Default(), extractorVersion)

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	logger.Info("Listening for messages", "extractor_version", extractorVersion)

	// Single consumer channel with prefetch=1 so only one message is in
	// flight across all queues.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	err = consumerCh.Qos(1, 0, true)
	if err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	type queuedMessage struct {
		msg       amqp.Delivery
		queueName string
	}

	messageChan := make(chan queuedMessage)

	for _, queueName := range queue.Queues {
		go func(qName string) {
			consumerTag := fmt.Sprintf("%s_consumer", qName)
			msgs, err := consumerCh.Consume(
				qName,
				consumerTag,
				false, // autoAck
				false, // exclusive
				false, // noLocal
				false, // noWait
				nil,   // args
			)
			if err != nil {
				logger.Fatal("Failed to start consuming", "queue", qName, "err", err)
			}

			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						return
					}
					messageChan <- queuedMessage{msg: msg, queueName: qName}
				}
			}
		}(queueName)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case qm := <-messageChan:
				startTime := time.Now()
				logger.Info("Received message", "queue", qm.queueName)

				var processingErr error
				switch qm.queueName {
				case queue.IngestQueue:
					processingErr = queue.ProcessIngestMessage(ctx, engine, coordinator, relStore, string(qm.msg.Body))
				case queue.ReconcileQueue:
					processingErr = queue.ProcessReconcileMessage(ctx, lock, coordinator)
				case queue.AnalyzeQueue:
					processingErr = queue.ProcessAnalyzeMessage(ctx, lock, relStore, coordinator, relStore)
				}

				// Retry or dead-letter on error, ack otherwise.
				if processingErr != nil {
					logger.Error("Error processing message", "queue", qm.queueName, "err", processingErr)
					handleProcessingError(consumerCh, qm.msg, qm.queueName)
				} else {
					err = qm.msg.Ack(false)
					if err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					logger.Info("Message processed successfully", "queue", qm.queueName)
				}

				processingDuration := time.Since(startTime)
				hours := int(processingDuration.Hours())
				minutes := int(processingDuration.Minutes()) % 60
				seconds := int(processingDuration.Seconds()) % 60
				logger.Info(
					"Processing time",
					"duration", fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds),
				)
				logger.Info("Waiting for next message")
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}

func handleProcessingError(ch *amqp.Channel, msg amqp.Delivery, queueName string) {
	retries := 0
	if val, ok := msg.Headers["x-retries"]; ok {
		if v, ok := val.(int32); ok {
			retries = int(v)
		}
	}

	// After 10 retries the message goes to the dead-letter queue.
	if retries >= 10 {
		dlqName := queueName + "_dlq"
		logger.Info("Sending message to DLQ", "dlq", dlqName)
		pubErr := ch.Publish(
			"",
			dlqName,
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				Body:        msg.Body,
				Headers:     msg.Headers,
			},
		)
		if pubErr != nil {
			logger.Error("Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			msg.Nack(false, true)
			return
		}
		msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := msg.Headers
	if headers == nil {
		headers = amqp.Table{}
	}
	headers["x-retries"] = int32(retries + 1)

	pubErr := ch.Publish(
		"",
		retryName,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        msg.Body,
			Headers:     headers,
		},
	)
	if pubErr != nil {
		logger.Error("Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}
