package cli

import (
	"github.com/spf13/cobra"

	"github.com/shaiso/sharedintent/internal/mq"
)

// TopologyView — производные имена топологии сервиса.
type TopologyView struct {
	Service            string      `json:"service"`
	RouterExchange     mq.Exchange `json:"router_exchange"`
	Exchange           mq.Exchange `json:"exchange"`
	Queue              mq.Queue    `json:"queue"`
	DeadLetterExchange mq.Exchange `json:"dead_letter_exchange,omitempty"`
}

// NewTopologyCmd создаёт команду, печатающую топологию сервиса.
// Брокер не требуется.
func NewTopologyCmd(outputFn func() *Output) *cobra.Command {
	var deadLetter string

	cmd := &cobra.Command{
		Use:   "topology SERVICE_NAME",
		Short: "Show exchange and queue names of a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			name := args[0]

			if out.JSONMode() {
				out.JSON(TopologyView{
					Service:            name,
					RouterExchange:     mq.RouterExchange,
					Exchange:           mq.ExchangeName(name),
					Queue:              mq.QueueName(name),
					DeadLetterExchange: mq.Exchange(deadLetter),
				})
				return nil
			}

			out.Text(mq.TopologyInfo(name, mq.Exchange(deadLetter)))
			return nil
		},
	}

	cmd.Flags().StringVar(&deadLetter, "dead-letter-exchange", "", "Dead-letter exchange of the service queue")

	return cmd
}
