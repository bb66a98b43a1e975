// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"subscription_reminder_bot/internal/domain/user"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

var validate = validator.New()

const helpText = `I keep track of your recurring payments and remind you before they are due.

/add <name> <price> <currency> <YYYY-MM-DD> <every> [timezone]
 - Add a subscription, e.g. /add Netflix 12.99 EUR 2025-07-10 1m Europe/Berlin
   <every> is a number and a unit: d (days), w (weeks), m (months), y (years).
/list - Show your subscriptions.
/upcoming - Payments due soon.
/next <id> - Next payment of one subscription.
/paid <id> - Mark the current payment as paid.
/pause <id>, /resume <id> - Stop or restart reminders.
/rules <id> <when>:<channels> ... - Choose when and where to be reminded, e.g. 3d:push+email due:push
/until <id> <YYYY-MM-DD|off> - Stop the subscription before a date.
/edit <id> <field> <value> - Change name, price, currency, url, notes, date, cycle or timezone.
/email <address> - Receive reminders by email too.
/service <webhook|ntfy|discord|slack> <url|off> [token] - Connect an external service.
/help - Show this message.

<id> is the short code shown by /list.`

func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	userRepo user.Repository,
	baseLogger *logrus.Entry, // For contextual logging
) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		sender := c.Sender()
		logCtx := startHelpLogger.WithField("command", "/start").WithField("sender_id", sender.ID)
		logCtx.Info("Processing /start command")

		existing, err := userRepo.GetByTelegramID(ctx, sender.ID)
		if err == nil {
			logCtx.WithField("user_id", existing.ID).Info("User already registered")
			if existing.IsBlocked {
				// Writing to the bot again means the chat is reachable.
				if err := userRepo.SetBlocked(ctx, existing.ID, false); err != nil {
					logCtx.WithError(err).Error("Failed to unblock returning user")
				} else {
					logCtx.WithField("user_id", existing.ID).Info("Returning user unblocked")
				}
			}
			return c.Send(fmt.Sprintf("Welcome back, %s! Use /upcoming to see what is due soon.", existing.FirstName))
		} else if !errors.Is(err, user.ErrNotFound) {
			logCtx.WithError(err).Error("Error looking up user for /start command")
			return c.Send("Something went wrong while checking your account. Please try again later.")
		}

		newUser := &user.User{
			TelegramID: sender.ID,
			FirstName:  sender.FirstName,
			Language:   languageOf(sender),
		}
		if err := userRepo.Create(ctx, newUser); err != nil {
			logCtx.WithError(err).Error("Failed to register user")
			return c.Send("Something went wrong while creating your account. Please try again later.")
		}

		logCtx.WithField("user_id", newUser.ID).Info("New user registered")
		return c.Send(fmt.Sprintf("Hi, %s! Your account is ready.\n\n%s", newUser.FirstName, helpText))
	})

	b.Handle("/help", func(c telebot.Context) error {
		startHelpLogger.WithField("command", "/help").WithField("sender_id", c.Sender().ID).Debug("Processing /help command")
		return c.Send(helpText)
	})

	b.Handle("/email", func(c telebot.Context) error {
		logCtx := startHelpLogger.WithField("command", "/email").WithField("sender_id", c.Sender().ID)

		u, err := currentUser(ctx, userRepo, c)
		if err != nil {
			return replyUserError(c, logCtx, err)
		}
		args := c.Args()
		if len(args) != 1 || (!strings.EqualFold(args[0], "off") && !strings.Contains(args[0], "@")) {
			return c.Send("Usage: /email <address>, or /email off to stop email reminders.")
		}

		email := sql.NullString{}
		if !strings.EqualFold(args[0], "off") {
			email = sql.NullString{String: args[0], Valid: true}
		}
		if err := userRepo.UpdateEmail(ctx, u.ID, email); err != nil {
			logCtx.WithError(err).Error("Failed to update email")
			return c.Send("Could not save your email address. Please try again later.")
		}
		if !email.Valid {
			return c.Send("Email reminders are off.")
		}
		return c.Send(fmt.Sprintf("Subscriptions added from now on will also remind you at %s.", email.String))
	})

	b.Handle("/service", func(c telebot.Context) error {
		logCtx := startHelpLogger.WithField("command", "/service").WithField("sender_id", c.Sender().ID)

		u, err := currentUser(ctx, userRepo, c)
		if err != nil {
			return replyUserError(c, logCtx, err)
		}
		if len(c.Args()) == 0 {
			return c.Send(describeServices(u.ExternalServices))
		}

		name, services, err := parseServiceArgs(c.Args(), u.ExternalServices)
		if err != nil {
			return c.Send(fmt.Sprintf("Could not read that: %s.\n%s", err.Error(), serviceUsage))
		}
		if err := userRepo.UpdateExternalServices(ctx, u.ID, services); err != nil {
			logCtx.WithError(err).Error("Failed to update external services")
			return c.Send("Could not save the service. Please try again later.")
		}
		logCtx.WithFields(logrus.Fields{"user_id": u.ID, "service": name}).Info("External service updated")
		return c.Send(describeServices(services))
	})
}

const serviceUsage = "Usage: /service <webhook|ntfy|discord|slack> <url> [token], or /service <name> off.\n" +
	"For ntfy the topic is the path of the url, e.g. https://ntfy.sh/my-bills."

// parseServiceArgs applies "/service <name> <url|off> [token]" to a copy of current.
func parseServiceArgs(args []string, current user.ExternalServices) (string, user.ExternalServices, error) {
	if len(args) < 2 || len(args) > 3 {
		return "", current, errors.New("wrong number of arguments")
	}
	name := strings.ToLower(args[0])
	svc, ok := current.Lookup(name)
	if !ok {
		return "", current, fmt.Errorf("unknown service %q, use one of %s", args[0], strings.Join(user.ServiceNames, ", "))
	}

	if strings.EqualFold(args[1], "off") {
		if len(args) == 3 {
			return "", current, errors.New("no token is needed to turn a service off")
		}
		svc.Enabled = false
		return name, current, nil
	}

	if err := validate.Var(args[1], "required,http_url"); err != nil {
		return "", current, fmt.Errorf("invalid url %q", args[1])
	}
	updated := user.ExternalService{Enabled: true, URL: args[1]}
	if len(args) == 3 {
		updated.Token = args[2]
	}
	if name == "ntfy" {
		parsed, err := url.Parse(args[1])
		if err != nil {
			return "", current, fmt.Errorf("invalid url %q", args[1])
		}
		updated.Topic = strings.Trim(parsed.Path, "/")
		updated.URL = parsed.Scheme + "://" + parsed.Host
	}
	*svc = updated
	return name, current, nil
}

func describeServices(services user.ExternalServices) string {
	var b strings.Builder
	b.WriteString("External services:\n")
	for _, name := range user.ServiceNames {
		svc, _ := services.Lookup(name)
		status := "off"
		switch {
		case svc.Usable():
			status = "on, " + svc.URL
			if svc.Topic != "" {
				status += ", topic " + svc.Topic
			}
		case svc.URL != "":
			status = "off, " + svc.URL
		}
		fmt.Fprintf(&b, "%s: %s\n", name, status)
	}
	b.WriteString("\nUse /rules to send reminders to a connected service.")
	return b.String()
}

// currentUser resolves the Telegram sender to a registered user.
func currentUser(ctx context.Context, repo user.Repository, c telebot.Context) (*user.User, error) {
	return repo.GetByTelegramID(ctx, c.Sender().ID)
}

func replyUserError(c telebot.Context, logCtx *logrus.Entry, err error) error {
	if errors.Is(err, user.ErrNotFound) {
		return c.Send("You are not registered yet. Send /start first.")
	}
	logCtx.WithError(err).Error("Error resolving user")
	return c.Send("Something went wrong. Please try again later.")
}

func languageOf(sender *telebot.User) string {
	if sender.LanguageCode == "" {
		return "en"
	}
	return sender.LanguageCode
}
