// Package notify tells students about grades through Telegram.
package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Spok95/classtrack-portal/internal/observability"
)

// Grade is what a student is told once a submission is graded.
type Grade struct {
	ChatID         int64
	AssignmentName string
	Grade          float64
	Feedback       *string
}

type Notifier interface {
	GradePosted(ctx context.Context, g Grade) error
}

type Noop struct{}

func (Noop) GradePosted(context.Context, Grade) error { return nil }

// Sender is the part of tgbotapi.BotAPI used here.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Telegram struct {
	bot Sender
	log *zap.Logger
}

func NewTelegram(token string, log *zap.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	log.Info("telegram notifications enabled", zap.String("bot", bot.Self.UserName))
	return &Telegram{bot: bot, log: log}, nil
}

func NewTelegramWith(bot Sender, log *zap.Logger) *Telegram {
	return &Telegram{bot: bot, log: log}
}

func (t *Telegram) GradePosted(_ context.Context, g Grade) error {
	msg := tgbotapi.NewMessage(g.ChatID, FormatGrade(g))
	_, err := send(t.bot, msg)
	if err != nil {
		t.log.Warn("grade notification failed", zap.Int64("chat_id", g.ChatID), zap.Error(err))
	}
	return err
}

func FormatGrade(g Grade) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your submission for %q was graded: %s/100", g.AssignmentName, trimFloat(g.Grade))
	if g.Feedback != nil && strings.TrimSpace(*g.Feedback) != "" {
		fmt.Fprintf(&b, "\n\nFeedback: %s", strings.TrimSpace(*g.Feedback))
	}
	return b.String()
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// System errors are 5xx, 429 and timeouts; Telegram's 400s (chat not found,
// bad markup) stay out of Sentry.
func isSystemErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "429") || strings.Contains(s, "502") ||
		strings.Contains(s, "503") || strings.Contains(s, "timeout")
}

func send(bot Sender, msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	m, err := bot.Send(msg)
	if isSystemErr(err) {
		observability.CaptureErr(err)
	}
	return m, err
}
