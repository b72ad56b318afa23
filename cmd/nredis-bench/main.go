// Command nredis-bench dials a Redis server, runs a small fixed workload
// (set/get, a corked batch, a publish/subscribe round-trip) and prints
// timing for each stage. It exists so the client can be exercised against
// a real socket; it adds no protocol behavior of its own.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	redis "github.com/xenking/nredis"
)

// config is loaded from NREDIS_BENCH_-prefixed environment variables via
// envconfig, then overridable by flags bound in init().
type config struct {
	Host    string        `envconfig:"HOST" default:"127.0.0.1"`
	Port    int           `envconfig:"PORT" default:"6379"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s"`
	Debug   bool          `envconfig:"DEBUG" default:"false"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg config
	if err := envconfig.Process("nredis_bench", &cfg); err != nil {
		fmt.Fprintln(os.Stderr, "nredis-bench: loading environment config:", err)
	}

	cmd := &cobra.Command{
		Use:   "nredis-bench",
		Short: "Exercise the nredis client against a live Redis server",
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.Host, "host", cfg.Host, "server host")
	cmd.Flags().IntVar(&cfg.Port, "port", cfg.Port, "server port")
	cmd.Flags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "connect timeout")
	cmd.Flags().BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable debug logging and AggregateError surfacing")

	return cmd
}

func run(cfg config) error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	if !cfg.Debug {
		logger = logger.Level(zerolog.InfoLevel)
	}

	ready := make(chan struct{}, 1)
	client := redis.NewClient(redis.Options{
		Host:           cfg.Host,
		Port:           cfg.Port,
		ConnectTimeout: cfg.Timeout,
		Logger:         &logger,
		Debug:          cfg.Debug,
	}, redis.Hooks{
		OnReady: func() {
			select {
			case ready <- struct{}{}:
			default:
			}
		},
		OnError: func(err error) { logger.Error().Err(err).Msg("client error") },
		OnWarning: func(msg string) { logger.Warn().Msg(msg) },
	})
	defer client.End(true)

	select {
	case <-ready:
	case <-time.After(cfg.Timeout):
		return fmt.Errorf("nredis-bench: timed out waiting for ready after %s", cfg.Timeout)
	}

	if err := benchSetGet(client); err != nil {
		return err
	}
	if err := benchCorkedBatch(client); err != nil {
		return err
	}
	if err := benchPubSub(client); err != nil {
		return err
	}
	return nil
}

func benchSetGet(c *redis.Client) error {
	start := time.Now()
	if _, err := c.Set("nredis-bench:key", redis.StringArg("hello")).Result(); err != nil {
		return fmt.Errorf("set: %w", err)
	}
	value, err := c.Get("nredis-bench:key").Result()
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	fmt.Printf("set/get: %v (value=%v)\n", time.Since(start), value)
	return nil
}

func benchCorkedBatch(c *redis.Client) error {
	start := time.Now()
	c.Cork()
	futures := make([]*redis.Future, 0, 100)
	for i := 0; i < 100; i++ {
		futures = append(futures, c.Incr("nredis-bench:counter"))
	}
	c.Uncork()
	for _, f := range futures {
		if _, err := f.Result(); err != nil {
			return fmt.Errorf("corked incr: %w", err)
		}
	}
	fmt.Printf("corked batch (100 cmds): %v\n", time.Since(start))
	return nil
}

func benchPubSub(c *redis.Client) error {
	received := make(chan []byte, 1)
	sub := c.Duplicate(nil, redis.Hooks{
		OnMessage: func(_ string, payload []byte) {
			select {
			case received <- payload:
			default:
			}
		},
	})
	defer sub.End(true)

	subReady := make(chan struct{}, 1)
	sub.Subscribe(func(err error, _ interface{}) {
		if err == nil {
			select {
			case subReady <- struct{}{}:
			default:
			}
		}
	}, "nredis-bench:channel")

	select {
	case <-subReady:
	case <-time.After(2 * time.Second):
		return fmt.Errorf("pubsub: subscribe acknowledgement timed out")
	}

	start := time.Now()
	if _, err := c.Publish("nredis-bench:channel", redis.StringArg("ping")).Result(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	select {
	case payload := <-received:
		fmt.Printf("pubsub round-trip: %v (payload=%q)\n", time.Since(start), payload)
	case <-time.After(2 * time.Second):
		return fmt.Errorf("pubsub: message not received within timeout")
	}
	return nil
}
