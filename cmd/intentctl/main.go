// intentctl — инструмент командной строки для ручной отправки
// управляющих сообщений в шину intent-сервисов.
//
// Использование:
//
//	intentctl [broker flags] [--json] <command> [flags]
//
// Команды:
//
//	route       Объявление маршрутов (add_route)
//	send        Публикация JSON конверта
//	topology    Имена exchange/queue сервиса
//	deliveries  Аудит обработанных сообщений
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/sharedintent/internal/cli"
	"github.com/shaiso/sharedintent/internal/config"
	"github.com/shaiso/sharedintent/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	// Значения по умолчанию — из того же окружения, что у сервисов
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	// Логи в stderr, чтобы не мешать выводу данных в stdout
	slog.SetDefault(telemetry.NewLogger(os.Stderr, telemetry.LogLevel(), "text"))

	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "intentctl",
		Short:         "intentctl — control tool for the shared intent bus",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.Broker.Host, "host", cfg.Broker.Host, "RabbitMQ host")
	flags.IntVar(&cfg.Broker.Port, "port", cfg.Broker.Port, "RabbitMQ port")
	flags.StringVar(&cfg.Broker.Vhost, "vhost", cfg.Broker.Vhost, "RabbitMQ virtual host")
	flags.StringVar(&cfg.Broker.Username, "user", cfg.Broker.Username, "RabbitMQ user")
	flags.StringVar(&cfg.Broker.Password, "password", cfg.Broker.Password, "RabbitMQ password")
	flags.DurationVar(&cfg.Broker.ConnectTimeout, "connect-timeout", cfg.Broker.ConnectTimeout, "Broker connection timeout")
	flags.StringVar(&cfg.DBURL, "db-url", cfg.DBURL, "PostgreSQL DSN of the delivery audit")
	flags.BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	dialFn := func() cli.Dialer { return cli.NewDialer(cfg.Broker, slog.Default()) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }
	listerFn := cli.NewPgLister(func() string { return cfg.DBURL })

	rootCmd.AddCommand(
		cli.NewRouteCmd(dialFn, outputFn),
		cli.NewSendCmd(dialFn, outputFn),
		cli.NewTopologyCmd(outputFn),
		cli.NewDeliveriesCmd(listerFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
