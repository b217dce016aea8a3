package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/botsdv/backend/internal/models"
)

const replyButtonText = "💬 Balas"

// esc keeps user-supplied text from breaking Markdown parsing, which makes
// Telegram reject the whole message.
func esc(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

// ReplyButton lets the reporter answer a staff comment from the chat.
func ReplyButton(ticketID string) Button {
	return Button{Text: replyButtonText, CallbackData: "reply_ticket_" + ticketID}
}

func TicketTaken(t models.Ticket, agentName string) Message {
	return Message{
		ChatID: t.ReporterChatID,
		Text: fmt.Sprintf("Halo *%s*,\n\nTiket Anda *%s* telah diambil oleh *%s*.\nMohon tunggu, kami sedang memprosesnya. 👨‍💻",
			esc(t.ReporterName), t.TicketNumber, esc(agentName)),
	}
}

func TicketTakenGroup(groupChatID string, t models.Ticket, agentName string) Message {
	category := t.Category
	if category == "" {
		category = "-"
	}
	return Message{
		ChatID: groupChatID,
		Text: fmt.Sprintf("📌 *Tiket Diambil*\n\nTiket *%s* telah diambil oleh *%s*.\nUser: %s\nKategori: %s",
			t.TicketNumber, esc(agentName), esc(t.ReporterName), esc(category)),
	}
}

func TicketCompleted(t models.Ticket, agentName string) Message {
	return Message{
		ChatID: t.ReporterChatID,
		Text: fmt.Sprintf("Halo *%s*,\n\nTiket Anda *%s* telah *SELESAI* dikerjakan oleh *%s*.\nTerima kasih telah menggunakan layanan kami. 🙏",
			esc(t.ReporterName), t.TicketNumber, esc(agentName)),
	}
}

func StaffReply(t models.Ticket, c models.Comment) Message {
	return Message{
		ChatID: t.ReporterChatID,
		Text: fmt.Sprintf("💬 *Pesan Baru dari Agent*\nTiket: *%s*\nDari: *%s*\n\n%s",
			t.TicketNumber, esc(c.Username), esc(c.Comment)),
		Buttons: []Button{ReplyButton(t.ID)},
	}
}
