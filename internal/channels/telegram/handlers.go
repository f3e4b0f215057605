package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/mymmrac/telego"

	"github.com/dongshu2013/the-agent-bot/internal/channels"
)

// handleMessage answers known commands directly and publishes everything else
// to the bus for batching.
func (c *Channel) handleMessage(ctx context.Context, message *telego.Message) {
	user := message.From
	if user == nil || message.Text == "" {
		slog.Debug("telegram message skipped (no text or sender)", "chat_id", message.Chat.ID)
		return
	}

	userID := strconv.FormatInt(user.ID, 10)
	senderID := userID
	if user.Username != "" {
		senderID = fmt.Sprintf("%s|%s", userID, user.Username)
	}
	chatID := message.Chat.ID

	slog.Debug("telegram message received",
		"chat_type", message.Chat.Type,
		"chat_id", chatID,
		"user_id", user.ID,
		"text_preview", channels.Truncate(message.Text, 60),
	)

	if !c.IsAllowed(senderID) {
		slog.Debug("telegram message rejected by allow list", "chat_id", chatID, "user_id", userID)
		return
	}

	if reply, ok := c.commandReply(ctx, message.Text, user.ID); ok {
		if err := c.reply(ctx, chatID, reply); err != nil {
			slog.Warn("telegram command reply failed", "chat_id", chatID, "error", err)
		}
		return
	}

	if !c.HandleMessage(senderID, chatID, message.Text, map[string]string{
		"message_id": strconv.Itoa(message.MessageID),
		"user_id":    userID,
	}) {
		slog.Debug("telegram message dropped", "chat_id", chatID, "user_id", userID)
	}
}
