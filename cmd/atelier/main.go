// Atelier CLI — инструмент командной строки для управления задачами
// генерации и пулом воркеров через HTTP API.
//
// Использование:
//
//	atelier [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	task     Управление задачами
//	worker   Управление воркерами
//	stats    Сводка пропускной способности
//	events   Поток событий оркестратора
//	enqueue  Заявка через RabbitMQ (generation.requests)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Atelier/internal/cli"
	"github.com/shaiso/Atelier/internal/domain"
	"github.com/shaiso/Atelier/internal/mq"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "atelier",
		Short:         "Atelier CLI — generation task orchestrator",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", envOr("ATELIER_API_URL", "http://localhost:8083"), "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewTaskCmd(clientFn, outputFn),
		cli.NewWorkerCmd(clientFn, outputFn),
		cli.NewStatsCmd(clientFn, outputFn),
		cli.NewEventsCmd(clientFn, outputFn),
		newEnqueueCmd(outputFn),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newEnqueueCmd публикует заявку напрямую в generation.requests,
// минуя HTTP API. Результат придёт в atelier.events (task.completed).
func newEnqueueCmd(outputFn func() *cli.Output) *cobra.Command {
	var (
		amqpURL   string
		requestID string
		kind      string
		units     float64
		priority  int
		params    []string
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Publish a generation request to RabbitMQ",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			payload := mq.GenerationRequestPayload{
				RequestID:             requestID,
				Kind:                  domain.TaskKind(kind),
				RequiredCapacityUnits: units,
			}
			if payload.RequestID == "" {
				payload.RequestID = uuid.NewString()
			}
			if cmd.Flags().Changed("priority") {
				payload.Priority = &priority
			}
			if len(params) > 0 {
				payload.Parameters = make(map[string]any, len(params))
				for _, kv := range params {
					key, value, ok := strings.Cut(kv, "=")
					if !ok {
						return fmt.Errorf("invalid parameter format %q, expected KEY=VALUE", kv)
					}
					payload.Parameters[key] = value
				}
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			conn, err := mq.NewConnection(amqpURL, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			if err := mq.NewPublisher(conn, logger).PublishGenerationRequest(ctx, payload); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Request published: %s", payload.RequestID))
			return nil
		},
	}

	cmd.Flags().StringVar(&amqpURL, "amqp-url", envOr("RABBITMQ_URL", mq.DefaultURL()), "RabbitMQ URL")
	cmd.Flags().StringVar(&requestID, "request-id", "", "Correlation ID (generated if not specified)")
	cmd.Flags().StringVar(&kind, "kind", "image", "Generation kind (image, video)")
	cmd.Flags().Float64Var(&units, "units", 0, "Required capacity units (estimated if not specified)")
	cmd.Flags().IntVar(&priority, "priority", 0, "Priority tier, higher runs first")
	cmd.Flags().StringSliceVar(&params, "param", nil, "Generation parameter as KEY=VALUE (repeatable)")

	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
