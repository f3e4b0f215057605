package telegram

import (
	"context"
	"fmt"
	"strings"

	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/dongshu2013/the-agent-bot/internal/bus"
)

// maxMessageRunes is Telegram's sendMessage text limit.
const maxMessageRunes = 4096

// Send delivers a reply, split into several messages when it exceeds the limit.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if strings.TrimSpace(msg.Content) == "" {
		return nil
	}
	for i, part := range splitMessage(msg.Content, maxMessageRunes) {
		if _, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(msg.ChatID), part)); err != nil {
			return fmt.Errorf("telegram send part %d to %d: %w", i+1, msg.ChatID, err)
		}
	}
	return nil
}

// splitMessage cuts text into chunks of at most limit runes, preferring to
// break after a newline in the second half of a chunk.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i >= limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
