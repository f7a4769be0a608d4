// Package telegram delivers notifications to a Telegram chat. It is a
// send-only channel: the daemon never polls for updates.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "nudgeloop/pkg/logx"

	"nudgeloop/internal/transport"
)

type Config struct {
	Token  string
	ChatID int64
	// Timeout bounds a single send. Defaults to 10s.
	Timeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram: chat_id is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

func (a *Adapter) Name() string { return "telegram" }

func (a *Adapter) Send(ctx context.Context, n transport.Notification) error {
	// telebot has no per-call context; bound the call time ourselves and let
	// the result report late if the context expired first.
	done := make(chan error, 1)
	go func() {
		text := "*" + escapeMarkdown(n.Title) + "*"
		if strings.TrimSpace(n.Body) != "" {
			text += "\n" + escapeMarkdown(n.Body)
		}
		_, err := a.bot.Send(tele.ChatID(a.cfg.ChatID), text, &tele.SendOptions{ParseMode: tele.ModeMarkdownV2})
		done <- err
	}()

	timer := time.NewTimer(a.cfg.Timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("telegram: send timed out after %s", a.cfg.Timeout)
	}
}

// Granted probes the API with a getMe call; a valid token implies the bot can
// post to its configured chat. Request cannot do more than re-probe.
func (a *Adapter) Granted(ctx context.Context) (bool, error) {
	done := make(chan error, 1)
	go func() {
		_, err := a.bot.ChatByID(a.cfg.ChatID)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("telegram chat probe failed", logx.Int64("chat_id", a.cfg.ChatID), logx.Err(err))
			return false, nil
		}
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (a *Adapter) Request(ctx context.Context) (bool, error) { return a.Granted(ctx) }

var markdownEscaper = strings.NewReplacer(
	"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(", ")", "\\)",
	"~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-",
	"=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}", ".", "\\.", "!", "\\!",
)

func escapeMarkdown(s string) string { return markdownEscaper.Replace(s) }
