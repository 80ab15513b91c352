package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/sharedintent/internal/domain"
	"github.com/shaiso/sharedintent/internal/repo"
)

// DeliveryLister читает аудит обработанных сообщений. Реализуется *repo.DeliveryRepo.
type DeliveryLister interface {
	List(ctx context.Context, filter repo.DeliveryFilter) ([]domain.Delivery, error)
}

// ListerFunc открывает хранилище аудита и возвращает функцию закрытия.
type ListerFunc func(ctx context.Context) (DeliveryLister, func(), error)

// NewPgLister создаёт ListerFunc поверх PostgreSQL.
func NewPgLister(dsn func() string) ListerFunc {
	return func(ctx context.Context) (DeliveryLister, func(), error) {
		pool, err := repo.NewPool(ctx, dsn())
		if err != nil {
			return nil, nil, err
		}
		return repo.NewDeliveryRepo(pool), pool.Close, nil
	}
}

// NewDeliveriesCmd создаёт группу команд для чтения аудита.
func NewDeliveriesCmd(listerFn ListerFunc, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deliveries",
		Short: "Inspect processed deliveries",
	}

	cmd.AddCommand(newDeliveriesListCmd(listerFn, outputFn))

	return cmd
}

func newDeliveriesListCmd(listerFn ListerFunc, outputFn func() *Output) *cobra.Command {
	var service string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded deliveries",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			lister, closeFn, err := listerFn(cmd.Context())
			if err != nil {
				return fmt.Errorf("open audit store: %w", err)
			}
			defer closeFn()

			deliveries, err := lister.List(cmd.Context(), repo.DeliveryFilter{
				Service: service,
				Status:  domain.DeliveryStatus(status),
				Limit:   limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "SERVICE", "CONVERSATION", "USER", "STATUS", "RESPONSES", "CREATED"}
			rows := make([][]string, len(deliveries))
			for i, d := range deliveries {
				rows[i] = []string{
					d.ID.String(),
					d.Service,
					d.ConversationID,
					d.UserID,
					string(d.Status),
					strconv.Itoa(d.Responses),
					d.CreatedAt.Format(time.RFC3339),
				}
			}

			out.Print(headers, rows, deliveries)
			return nil
		},
	}

	cmd.Flags().StringVar(&service, "service", "", "Filter by service name")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (PUBLISHED, DECODE_FAILED, INVALID_INBOUND, HANDLER_FAILED, INVALID_RESPONSE, PUBLISH_FAILED)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of results")

	return cmd
}
