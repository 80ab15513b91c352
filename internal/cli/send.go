package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/sharedintent/internal/intent"
	"github.com/shaiso/sharedintent/internal/mq"
)

// NewSendCmd создаёт команду публикации произвольного конверта.
func NewSendCmd(dialFn func() Dialer, outputFn func() *Output) *cobra.Command {
	var file string
	var data string
	var exchange string
	var routingKey string
	var validate bool

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Publish a JSON envelope",
		Example: `  intentctl send --exchange EchoExchange --data '{"data":"hi","routing":{"conversation":{"id":"c1"},"user":{"id":"u1"}}}'
  intentctl send --file message.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			var body []byte
			switch {
			case file != "" && data != "":
				return fmt.Errorf("--file and --data are mutually exclusive")
			case file != "":
				b, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read file: %w", err)
				}
				body = b
			case data != "":
				body = []byte(data)
			default:
				return fmt.Errorf("--file or --data is required")
			}

			env, err := intent.Decode(body)
			if err != nil {
				return err
			}
			if validate {
				if err := intent.ValidateInbound(env); err != nil {
					return err
				}
			}

			ch, closeFn, err := dialFn()(cmd.Context())
			if err != nil {
				return fmt.Errorf("connect to broker: %w", err)
			}
			defer closeFn()

			logger := slog.Default()

			var pub *mq.Publisher
			if mq.Exchange(exchange) == mq.RouterExchange {
				if pub, err = routerPublisher(ch, logger); err != nil {
					return err
				}
			} else {
				pub = mq.NewPublisher(ch, mq.Exchange(exchange), logger)
			}

			if err := pub.PublishRaw(cmd.Context(), mq.RoutingKey(routingKey), body); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Published %d bytes to %s", len(body), exchange))
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Path to JSON file")
	cmd.Flags().StringVar(&data, "data", "", "Inline JSON envelope")
	cmd.Flags().StringVar(&exchange, "exchange", string(mq.RouterExchange), "Target exchange")
	cmd.Flags().StringVar(&routingKey, "routing-key", "", "Routing key")
	cmd.Flags().BoolVar(&validate, "validate", true, "Require routing.conversation.id and routing.user.id")

	return cmd
}
