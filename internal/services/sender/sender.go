// Package sender реализует воркер отправки писем о скором окончании
// подписки. Сообщения приходят из очереди RabbitMQ, письма уходят
// по SMTP.
package sender

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/taskflowhq/billing-service/internal/lib/sl"
	"github.com/taskflowhq/billing-service/internal/lib/smtp"
	"github.com/taskflowhq/billing-service/internal/models"
)

// Service воркер отправки писем.
type Service struct {
	transport smtp.TransportInterface
	log       *slog.Logger
}

// New создает новый Service.
func New(transport smtp.TransportInterface, log *slog.Logger) *Service {
	return &Service{
		transport: transport,
		log:       log,
	}
}

// SendReminderEmail обрабатывает сообщение очереди напоминаний.
// Без настроенного SMTP письмо пропускается без ошибки, иначе сообщение
// вечно возвращалось бы в очередь.
func (s *Service) SendReminderEmail(body []byte) error {
	var message models.ReminderMessage
	if err := json.Unmarshal(body, &message); err != nil {
		s.log.Error("failed to unmarshal reminder message", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	if !s.transport.Configured() {
		s.log.Warn("smtp is not configured, reminder email dropped",
			slog.String("email", message.Email))
		return nil
	}

	subject, bodyText := composeEmail(message)
	return s.sendEmail([]string{message.Email}, subject, bodyText)
}

// composeEmail собирает тему и тело письма на языке пользователя.
func composeEmail(m models.ReminderMessage) (subject, body string) {
	day := "days"
	if m.DaysLeft == 1 {
		day = "day"
	}
	what := "subscription"
	if m.IsTrial {
		what = "trial"
	}

	if m.Locale == "lt" {
		kas := "prenumerata"
		if m.IsTrial {
			kas = "bandomasis laikotarpis"
		}
		subject = fmt.Sprintf("Jūsų %s %s baigsis %s", m.PlanName, kas, m.PeriodEnd.Format("2006-01-02"))
		if m.HasPaymentMethod {
			body = fmt.Sprintf("Sveiki!\n\nJūsų %s %s baigsis %s. Mokestis bus nuskaitytas automatiškai nuo išsaugotos mokėjimo priemonės.\n\nTaskFlow komanda",
				m.PlanName, kas, m.PeriodEnd.Format("2006-01-02"))
		} else {
			body = fmt.Sprintf("Sveiki!\n\nJūsų %s %s baigsis %s. Atnaujinkite dabar, kitaip paskyra bus perkelta į nemokamą planą.\n\nTaskFlow komanda",
				m.PlanName, kas, m.PeriodEnd.Format("2006-01-02"))
		}
		return subject, body
	}

	subject = fmt.Sprintf("Your %s %s expires in %d %s", m.PlanName, what, m.DaysLeft, day)
	if m.HasPaymentMethod {
		body = fmt.Sprintf("Hello!\n\nYour %s %s expires on %s. Your saved payment method will be charged automatically.\n\nThe TaskFlow team",
			m.PlanName, what, m.PeriodEnd.Format("2006-01-02"))
	} else {
		body = fmt.Sprintf("Hello!\n\nYour %s %s expires on %s. Renew now to keep your plan, otherwise your account will switch to the free plan.\n\nThe TaskFlow team",
			m.PlanName, what, m.PeriodEnd.Format("2006-01-02"))
	}
	return subject, body
}

func (s *Service) sendEmail(to []string, subject, bodyText string) error {
	msg := strings.Join([]string{
		"From: " + s.transport.GetSMTPUser(),
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer client.Close()

	if err := client.Mail(s.transport.GetSMTPUser()); err != nil {
		s.log.Error("failed to set MAIL FROM", "from", s.transport.GetSMTPUser(), sl.Err(err))
		return err
	}

	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", "recipient", addr, sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get Data writer", sl.Err(err))
		return err
	}

	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}
	if err = wc.Close(); err != nil {
		s.log.Error("failed to close Data writer", sl.Err(err))
		return err
	}
	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("reminder email sent", "to", to)
	return nil
}
