package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// aboutMe is sent verbatim with MarkdownV2 parse mode.
const aboutMe = "*Hi, I'm your agent\\!*\n\n" +
	"Talk to me like you would to a friend\\. " +
	"Send as many messages as you like: I wait until you pause, then answer them together\\.\n\n" +
	"Commands:\n" +
	"/about\\_me \\- what this bot is\n" +
	"/get\\_report \\- your evaluation report\n" +
	"/help \\- list commands"

const helpText = "Available commands:\n" +
	"/about_me - View rules\n" +
	"/get_report - Get the evaluation report\n" +
	"/help - Show this help message\n" +
	"\nJust send messages to chat. Replies arrive once you pause."

type replyText struct {
	text      string
	parseMode string
}

// commandReply returns the response for a known bot command. Unknown commands
// and plain text report ok=false and go to the batcher.
func (c *Channel) commandReply(ctx context.Context, text string, userID int64) (replyText, bool) {
	switch parseCommand(text) {
	case "/about_me", "/start":
		return c.aboutReply(ctx), true

	case "/help":
		return replyText{text: helpText}, true

	case "/get_report":
		if userID == 0 {
			return replyText{text: "No user id"}, true
		}
		if c.agent == nil {
			return replyText{text: "Reports are not available right now."}, true
		}
		report, err := c.agent.FetchPersona(ctx, userID)
		if err != nil {
			slog.Warn("telegram get_report failed", "user_id", userID, "error", err)
			return replyText{text: "Failed to get your report. Please try again later."}, true
		}
		if strings.TrimSpace(report) == "" {
			return replyText{text: "No report yet. Keep chatting!"}, true
		}
		return replyText{text: report}, true
	}
	return replyText{}, false
}

// aboutReply introduces the agent by its configured name and description,
// falling back to the static intro when the reply service can't say.
func (c *Channel) aboutReply(ctx context.Context) replyText {
	static := replyText{text: aboutMe, parseMode: telego.ModeMarkdownV2}
	if c.agent == nil {
		return static
	}
	agent, err := c.agent.AgentInfo(ctx)
	if err != nil {
		slog.Warn("telegram about_me: agent info unavailable", "error", err)
		return static
	}
	if agent == nil || strings.TrimSpace(agent.Name) == "" {
		return static
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi, I'm %s!\n", strings.TrimSpace(agent.Name))
	if desc := strings.TrimSpace(agent.Description); desc != "" {
		b.WriteString("\n" + desc + "\n")
	}
	b.WriteString("\n" + helpText)
	return replyText{text: b.String()}
}

// parseCommand extracts a lowercased "/cmd" (stripping @botname) or "".
func parseCommand(text string) string {
	text = strings.TrimSpace(text)
	if len(text) == 0 || text[0] != '/' {
		return ""
	}
	cmd := strings.SplitN(text, " ", 2)[0]
	cmd = strings.SplitN(cmd, "@", 2)[0]
	return strings.ToLower(cmd)
}

func (c *Channel) reply(ctx context.Context, chatID int64, r replyText) error {
	msg := tu.Message(tu.ID(chatID), r.text)
	msg.ParseMode = r.parseMode
	_, err := c.bot.SendMessage(ctx, msg)
	return err
}

// SyncMenuCommands registers bot commands with Telegram via setMyCommands.
func (c *Channel) SyncMenuCommands(ctx context.Context, commands []telego.BotCommand) error {
	if err := c.bot.DeleteMyCommands(ctx, nil); err != nil {
		slog.Debug("deleteMyCommands failed (may not exist)", "error", err)
	}

	if len(commands) == 0 {
		return nil
	}

	if len(commands) > 100 {
		commands = commands[:100]
	}

	return c.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{
		Commands: commands,
	})
}

// DefaultMenuCommands returns the default bot menu commands.
func DefaultMenuCommands() []telego.BotCommand {
	return []telego.BotCommand{
		{Command: "about_me", Description: "View rules"},
		{Command: "get_report", Description: "Get the evaluation report"},
		{Command: "help", Description: "Show available commands"},
	}
}
