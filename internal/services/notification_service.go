package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/exambook-store/api/internal/domain"
)

const (
	notificationEventFailed  = "notification.publish.failed"
	notificationEventSkipped = "notification.skipped"

	defaultNotificationTimeout = 10 * time.Second
)

// NotificationServiceDeps bundles collaborators required to construct the notifier.
type NotificationServiceDeps struct {
	Publisher NotificationPublisher
	// AdminEmail receives a copy of every order placed notification when set.
	AdminEmail string
	// Enabled gates all publishing. A disabled notifier still satisfies Notifier.
	Enabled bool
	Timeout time.Duration
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

// NotificationService renders order notifications and publishes them in the
// background. Close waits for in-flight sends during shutdown.
type NotificationService struct {
	publisher  NotificationPublisher
	adminEmail string
	enabled    bool
	timeout    time.Duration
	clock      func() time.Time
	logger     serviceLogger

	wg sync.WaitGroup
}

var _ Notifier = (*NotificationService)(nil)

// NewNotificationService wires dependencies into a NotificationService.
func NewNotificationService(deps NotificationServiceDeps) (*NotificationService, error) {
	if deps.Enabled && deps.Publisher == nil {
		return nil, errors.New("notification service: publisher is required when enabled")
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultNotificationTimeout
	}
	return &NotificationService{
		publisher:  deps.Publisher,
		adminEmail: strings.TrimSpace(deps.AdminEmail),
		enabled:    deps.Enabled,
		timeout:    timeout,
		clock:      ensureClock(deps.Clock),
		logger:     ensureLogger(deps.Logger),
	}, nil
}

func (s *NotificationService) OrderPlaced(ctx context.Context, order Order) {
	subject := fmt.Sprintf("Order %s received", order.ID)
	body := renderOrderBody(order, fmt.Sprintf("Thank you for your order, %s.", firstName(order.Customer.Name)))
	emails := []EmailNotification{s.email(NotificationOrderPlaced, order, order.Customer.Email, subject, body)}
	if s.adminEmail != "" {
		emails = append(emails, s.email(NotificationOrderPlaced, order, s.adminEmail,
			fmt.Sprintf("New order %s (%s)", order.ID, FormatINR(order.TotalAmount)), body))
	}
	s.dispatch(ctx, NotificationOrderPlaced, order, emails, s.whatsApp(NotificationOrderPlaced, order))
}

func (s *NotificationService) PaymentResult(ctx context.Context, order Order) {
	status := string(order.PaymentStatus)
	var subject, lead string
	switch order.PaymentStatus {
	case domain.PaymentStatusPaid:
		subject = fmt.Sprintf("Payment received for order %s", order.ID)
		lead = fmt.Sprintf("We received your payment of %s.", FormatINR(order.TotalAmount))
	case domain.PaymentStatusFailed:
		subject = fmt.Sprintf("Payment failed for order %s", order.ID)
		lead = "Your payment could not be completed. You can retry from your order page."
	default:
		subject = fmt.Sprintf("Payment update for order %s", order.ID)
		lead = fmt.Sprintf("Your payment status is now %s.", status)
	}
	body := renderOrderBody(order, lead)
	msg := s.whatsApp(NotificationPaymentResult, order)
	msg.Status = status
	s.dispatch(ctx, NotificationPaymentResult, order,
		[]EmailNotification{s.email(NotificationPaymentResult, order, order.Customer.Email, subject, body)}, msg)
}

func (s *NotificationService) StatusChanged(ctx context.Context, order Order, change StatusChange) {
	subject := fmt.Sprintf("Order %s is now %s", order.ID, statusLabel(change.To))
	lead := fmt.Sprintf("Your order moved from %s to %s.", statusLabel(change.From), statusLabel(change.To))
	if note := strings.TrimSpace(change.Note); note != "" {
		lead += "\nNote: " + note
	}
	body := renderOrderBody(order, lead)
	msg := s.whatsApp(NotificationStatusChanged, order)
	msg.Status = string(change.To)
	s.dispatch(ctx, NotificationStatusChanged, order,
		[]EmailNotification{s.email(NotificationStatusChanged, order, order.Customer.Email, subject, body)}, msg)
}

// Close waits for pending publishes or until ctx is done.
func (s *NotificationService) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch publishes every message on a detached context so request
// cancellation does not drop notifications.
func (s *NotificationService) dispatch(ctx context.Context, kind NotificationKind, order Order, emails []EmailNotification, whatsapp WhatsAppNotification) {
	if !s.enabled {
		s.logger(ctx, notificationEventSkipped, map[string]any{"kind": string(kind), "orderId": order.ID})
		return
	}
	base := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sendCtx, cancel := context.WithTimeout(base, s.timeout)
		defer cancel()

		var g errgroup.Group
		for _, msg := range emails {
			if msg.To == "" {
				continue
			}
			g.Go(func() error {
				if err := s.publisher.PublishEmail(sendCtx, msg); err != nil {
					s.logFailure(sendCtx, kind, order.ID, "email", err)
					return err
				}
				return nil
			})
		}
		if whatsapp.Phone != "" {
			g.Go(func() error {
				if err := s.publisher.PublishWhatsApp(sendCtx, whatsapp); err != nil {
					s.logFailure(sendCtx, kind, order.ID, "whatsapp", err)
					return err
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
}

func (s *NotificationService) logFailure(ctx context.Context, kind NotificationKind, orderID, channel string, err error) {
	s.logger(ctx, notificationEventFailed, map[string]any{
		"kind":    string(kind),
		"orderId": orderID,
		"channel": channel,
		"error":   err.Error(),
	})
}

func (s *NotificationService) email(kind NotificationKind, order Order, to, subject, body string) EmailNotification {
	return EmailNotification{
		Kind:      kind,
		OrderID:   order.ID,
		To:        strings.TrimSpace(to),
		Subject:   subject,
		Body:      body,
		CreatedAt: s.clock(),
	}
}

func (s *NotificationService) whatsApp(kind NotificationKind, order Order) WhatsAppNotification {
	items := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, fmt.Sprintf("%s x%d", item.Title, item.Quantity))
	}
	phone := strings.TrimSpace(order.Customer.Phone)
	if phone == "" {
		phone = strings.TrimSpace(order.ShippingAddress.Phone)
	}
	return WhatsAppNotification{
		Kind:         kind,
		OrderID:      order.ID,
		CustomerName: order.Customer.Name,
		Phone:        phone,
		Amount:       order.TotalAmount,
		AmountText:   FormatINR(order.TotalAmount),
		Items:        items,
		Status:       string(order.Status),
		CreatedAt:    s.clock(),
	}
}

func renderOrderBody(order Order, lead string) string {
	var b strings.Builder
	b.WriteString(lead)
	b.WriteString("\n\nOrder ")
	b.WriteString(order.ID)
	b.WriteString("\n")
	for _, item := range order.Items {
		fmt.Fprintf(&b, "- %s x%d: %s\n", item.Title, item.Quantity, FormatINR(item.Price*int64(item.Quantity)))
	}
	fmt.Fprintf(&b, "\nSubtotal: %s\n", FormatINR(order.Subtotal))
	fmt.Fprintf(&b, "Shipping: %s\n", FormatINR(order.ShippingCharges))
	if order.Discount > 0 {
		fmt.Fprintf(&b, "Discount: -%s\n", FormatINR(order.Discount))
	}
	fmt.Fprintf(&b, "Total: %s\n", FormatINR(order.TotalAmount))
	if addr := order.ShippingAddress; addr.Line1 != "" {
		fmt.Fprintf(&b, "\nShipping to: %s, %s, %s %s\n", addr.Line1, addr.City, addr.State, addr.Pincode)
	}
	return b.String()
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "reader"
	}
	return fields[0]
}

func statusLabel(status OrderStatus) string {
	return strings.ReplaceAll(string(status), "_", " ")
}
