package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nsqio/go-nsq"
)

type ConsumerConfig struct {
	NSQDAddr    string
	Topic       string
	Channel     string
	MaxInFlight int
	MaxAttempts int
}

// Run consumes cfg.Topic with handler until ctx is cancelled, then stops
// the consumer and waits for in-flight messages to finish.
func Run(ctx context.Context, cfg ConsumerConfig, handler nsq.Handler) error {
	nsqCfg := nsq.NewConfig()
	nsqCfg.MaxInFlight = cfg.MaxInFlight
	if cfg.MaxAttempts > 0 {
		nsqCfg.MaxAttempts = uint16(cfg.MaxAttempts)
	}

	consumer, err := nsq.NewConsumer(cfg.Topic, cfg.Channel, nsqCfg)
	if err != nil {
		return fmt.Errorf("nsq consumer error: %w", err)
	}
	consumer.AddHandler(handler)

	if err := consumer.ConnectToNSQD(cfg.NSQDAddr); err != nil {
		consumer.Stop()
		return fmt.Errorf("nsq connect error: %w", err)
	}
	slog.InfoContext(ctx, "worker consuming", "topic", cfg.Topic, "channel", cfg.Channel)

	select {
	case <-ctx.Done():
	case <-consumer.StopChan:
		return fmt.Errorf("nsq consumer stopped unexpectedly")
	}

	slog.Info("stopping worker...")
	consumer.Stop()
	<-consumer.StopChan
	return nil
}
