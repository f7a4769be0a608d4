package core

import (
	"fmt"

	"nudgeloop/internal/config"
	"nudgeloop/internal/transport"
	"nudgeloop/internal/transport/desktop"
	"nudgeloop/internal/transport/telegram"
	logx "nudgeloop/pkg/logx"
)

// buildAdapter selects the delivery channel. The adapter doubles as the
// permission provider when it implements one; otherwise delivery is treated
// as always permitted.
func buildAdapter(c *config.NotifierConfig, log logx.Logger) (transport.Adapter, transport.PermissionProvider, error) {
	switch ch := channelName(c); ch {
	case "desktop":
		ad := desktop.New(desktop.Config{}, log.With(logx.String("comp", "desktop")))
		return ad, ad, nil
	case "telegram":
		if c == nil || c.Telegram == nil {
			return nil, nil, fmt.Errorf("notifier.telegram section is required for the telegram channel")
		}
		ad, err := telegram.New(telegram.Config{
			Token:   c.Telegram.Token,
			ChatID:  c.Telegram.ChatID,
			Timeout: telegramTimeout(c.Telegram),
		}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, nil, err
		}
		return ad, ad, nil
	default:
		return nil, nil, fmt.Errorf("unknown notifier channel %q", ch)
	}
}
