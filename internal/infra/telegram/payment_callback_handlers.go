// internal/infra/telegram/payment_callback_handlers.go
package telegram

import (
	"context"
	"errors"
	"fmt"

	"subscription_reminder_bot/internal/app"
	"subscription_reminder_bot/internal/domain/subscription"
	domaintg "subscription_reminder_bot/internal/domain/telegram"
	"subscription_reminder_bot/internal/domain/user"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterPaymentCallbackHandlers handles the inline "paid" button attached to
// reminders sent over Telegram.
func RegisterPaymentCallbackHandlers(ctx context.Context, b *telebot.Bot, subService *app.SubscriptionService, userRepo user.Repository, baseLogger *logrus.Entry) {
	b.Handle(telebot.OnCallback, func(c telebot.Context) error {
		data := c.Callback().Data
		logCtx := baseLogger.WithFields(logrus.Fields{"handler": "callback", "sender_id": c.Sender().ID})

		if !domaintg.IsPaidCallback(data) {
			c.Bot().OnError(fmt.Errorf("unhandled callback data: %s", data), c)
			return c.Respond(&telebot.CallbackResponse{Text: "Unknown action."})
		}

		id, paymentDate, err := domaintg.ParsePaidCallback(data)
		if err != nil {
			c.Bot().OnError(fmt.Errorf("invalid paid callback: %w", err), c)
			return c.Respond(&telebot.CallbackResponse{Text: "Could not read this button."})
		}

		u, err := currentUser(ctx, userRepo, c)
		if err != nil {
			logCtx.WithError(err).Warn("Callback from unknown user")
			return c.Respond(&telebot.CallbackResponse{Text: "Send /start first."})
		}

		sub, err := subService.MarkAsPaid(ctx, u.ID, id, &paymentDate)
		switch {
		case err == nil:
		case errors.Is(err, app.ErrStalePayment):
			return c.Respond(&telebot.CallbackResponse{Text: "This payment was already marked as paid."})
		case errors.Is(err, subscription.ErrNotFound), errors.Is(err, app.ErrNotOwner):
			return c.Respond(&telebot.CallbackResponse{Text: "Subscription not found."})
		default:
			c.Bot().OnError(fmt.Errorf("error marking subscription %s as paid: %w", id, err), c)
			return c.Respond(&telebot.CallbackResponse{Text: "Something went wrong."})
		}

		logCtx.WithField("subscription_id", id).Info("Payment confirmed from reminder button")
		if err := c.Respond(&telebot.CallbackResponse{Text: "Marked as paid!"}); err != nil {
			return err
		}
		return c.Send(paidReply(sub))
	})
}
