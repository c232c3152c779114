// Package notify pushes trade outcome alerts to external channels. Alerts
// fire on terminal execution states so operators see settlements without
// watching the dashboard.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avask/arbot/internal/domain"
)

// Sender is the interface each notification channel implements.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender.
	Name() string
}

// Notifier fans a notification out to all registered senders. A failing
// sender does not block delivery to the rest.
type Notifier struct {
	senders []Sender
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders.
func NewNotifier(senders []Sender, logger *slog.Logger) *Notifier {
	return &Notifier{
		senders: senders,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// ExecutionSettled formats and dispatches an alert for a terminal execution.
// Non-terminal states are ignored.
func (n *Notifier) ExecutionSettled(ctx context.Context, exec domain.TradeExecution) error {
	if !exec.Status.Terminal() {
		return nil
	}

	var title string
	switch exec.Status {
	case domain.ExecConfirmed:
		title = fmt.Sprintf("Trade confirmed: %s", exec.Pair)
	case domain.ExecReverted:
		title = fmt.Sprintf("Trade reverted: %s", exec.Pair)
	default:
		title = fmt.Sprintf("Trade failed: %s", exec.Pair)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "buy %s / sell %s, notional %.2f", exec.BuyVenue, exec.SellVenue, exec.Notional)
	if exec.Status == domain.ExecConfirmed {
		fmt.Fprintf(&b, "\nprofit %.4f", exec.RealizedProfit)
	}
	if exec.TxHash != "" {
		fmt.Fprintf(&b, "\ntx %s", exec.TxHash)
	}
	if exec.Error != "" {
		fmt.Fprintf(&b, "\nerror: %s", exec.Error)
	}

	return n.dispatch(ctx, title, b.String())
}

// dispatch sends to every sender, collecting failures into one error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
