package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shaiso/sharedintent/internal/intent"
	"github.com/shaiso/sharedintent/internal/mq"
)

// NewRouteCmd создаёт группу команд для управления маршрутами.
func NewRouteCmd(dialFn func() Dialer, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Manage route declarations",
	}

	cmd.AddCommand(newRouteAddCmd(dialFn, outputFn))

	return cmd
}

func newRouteAddCmd(dialFn func() Dialer, outputFn func() *Output) *cobra.Command {
	var intents []string
	var dataTypes []string
	var exchange string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Announce a route to the router",
		Long: `Publishes an add_route control message to router_exchange.

Repeat --intents and --data-types to declare several values.`,
		Example: `  intentctl route add --intents chime.echo --data-types chime.string --exchange EchoExchange`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(intents) == 0 || len(dataTypes) == 0 {
				return errors.New("--intents and --data-types are required")
			}
			if exchange == "" {
				return errors.New("--exchange is required")
			}

			out := outputFn()
			route := intent.Route{
				Intents:   scalarOrList(intents),
				DataTypes: scalarOrList(dataTypes),
			}

			ch, closeFn, err := dialFn()(cmd.Context())
			if err != nil {
				return fmt.Errorf("connect to broker: %w", err)
			}
			defer closeFn()

			logger := slog.Default()
			pub, err := routerPublisher(ch, logger)
			if err != nil {
				return err
			}

			registrar := intent.NewRegistrar(pub, mq.Exchange(exchange), []intent.Route{route}, logger)
			if _, err := registrar.RegisterRoutes(cmd.Context()); err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(intent.RouteAnnouncement{Route: route, Exchange: mq.Exchange(exchange)})
				return nil
			}

			out.Success(fmt.Sprintf("Route announced for %s", exchange))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&intents, "intents", nil, "Intent to route (repeatable)")
	cmd.Flags().StringArrayVar(&dataTypes, "data-types", nil, "Data type to route (repeatable)")
	cmd.Flags().StringVar(&exchange, "exchange", "", "Destination exchange of the service")

	return cmd
}

// scalarOrList сохраняет одиночное значение скаляром, как его объявляют сервисы.
func scalarOrList(values []string) any {
	if len(values) == 1 {
		return values[0]
	}
	return values
}
