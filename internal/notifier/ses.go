package notifier

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/fjod/go_orders/internal/domain"
)

// EmailSender is the part of the SES client the mailer uses.
type EmailSender interface {
	SendEmail(ctx context.Context, in *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// Mailer e-mails the shop admin about new and cancelled orders.
type Mailer struct {
	client EmailSender
	from   string
	to     string
}

func NewSESClient(ctx context.Context, region string) (*ses.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config: %w", err)
	}
	return ses.NewFromConfig(cfg), nil
}

func NewMailer(client EmailSender, from, to string) *Mailer {
	return &Mailer{client: client, from: from, to: to}
}

func (m *Mailer) Name() string { return "ses" }

// Notify sends mail only for events an admin has to act on.
func (m *Mailer) Notify(ctx context.Context, ev domain.OrderEvent) error {
	if !mailworthy(ev) {
		return nil
	}

	subject := fmt.Sprintf("Order %s: %s", ev.OrderNumber, ev.Status)
	body := fmt.Sprintf("%s\n\nOrder: %s\nUser: %d\nStatus: %s\nPayment: %s\nTotal: %s\n",
		summary(ev), ev.OrderNumber, ev.UserID, ev.Status, ev.PaymentStatus, ev.TotalAmount.StringFixed(2))

	_, err := m.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(m.from),
		Destination: &types.Destination{ToAddresses: []string{m.to}},
		Message: &types.Message{
			Subject: &types.Content{Charset: aws.String("UTF-8"), Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Charset: aws.String("UTF-8"), Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func mailworthy(ev domain.OrderEvent) bool {
	return ev.Type == domain.EventOrderCreated || ev.Status == domain.OrderStatusCancelled
}
