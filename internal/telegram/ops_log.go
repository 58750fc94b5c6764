package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/roulette/internal/config"
	"github.com/set-night/roulette/internal/domain"
)

const (
	MaxMessageLen = 4096
	queueSize     = 256
)

// Sender is the part of *bot.Bot the ops log needs.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

type LogType string

const (
	LogTypeError      LogType = "error"
	LogTypeSecurity   LogType = "security"
	LogTypeGift       LogType = "gift"
	LogTypeCredit     LogType = "credit"
	LogTypeSettlement LogType = "settlement"
)

type message struct {
	logType LogType
	text    string
}

// OpsLog posts operator notices to forum topics of a Telegram chat. Messages
// are queued and delivered by Run so callers never wait on Telegram.
type OpsLog struct {
	sender Sender
	cfg    *config.Config
	logger *slog.Logger
	queue  chan message
}

func NewOpsLog(sender Sender, cfg *config.Config, logger *slog.Logger) *OpsLog {
	return &OpsLog{
		sender: sender,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan message, queueSize),
	}
}

// Run delivers queued messages until ctx is done.
func (l *OpsLog) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-l.queue:
			l.send(ctx, m)
		}
	}
}

func (l *OpsLog) send(ctx context.Context, m message) {
	ctx, cancel := context.WithTimeout(ctx, config.OpsLogTimeout)
	defer cancel()

	params := &bot.SendMessageParams{
		ChatID:          l.cfg.LogTelegramChatID,
		Text:            m.text,
		ParseMode:       models.ParseModeMarkdownV1,
		MessageThreadID: l.topicID(m.logType),
	}
	if _, err := l.sender.SendMessage(ctx, params); err != nil {
		// Fallback to plain text
		l.logger.Warn("markdown send failed, falling back to plain text", "type", m.logType, "error", err)
		params.ParseMode = ""
		if _, err := l.sender.SendMessage(ctx, params); err != nil {
			l.logger.Error("failed to send telegram log", "type", m.logType, "error", err)
		}
	}
}

func (l *OpsLog) Log(logType LogType, text string) {
	if l.cfg.LogTelegramChatID == 0 || l.topicID(logType) == 0 {
		return
	}

	select {
	case l.queue <- message{logType: logType, text: truncate(text, MaxMessageLen)}:
	default:
		l.logger.Warn("telegram log queue full, dropping message", "type", logType)
	}
}

func (l *OpsLog) LogError(err error, context string) {
	msg := fmt.Sprintf("❌ *Error*\n\n*Context:* %s\n*Error:* %s\n*Time:* %s",
		inlineCode(context), inlineCode(err.Error()), time.Now().Format(time.DateTime))
	l.Log(LogTypeError, msg)
}

func (l *OpsLog) SecurityViolation(_ context.Context, text string) {
	msg := fmt.Sprintf("🚨 *Security*\n\n%s\n*Time:* %s", inlineCode(text), time.Now().Format(time.DateTime))
	l.Log(LogTypeSecurity, msg)
}

func (l *OpsLog) GiftSettled(_ context.Context, t *domain.GiftTransaction) {
	msg := fmt.Sprintf("🎁 *Gift Accepted*\n\n*Request:* `%d`\n*From:* `%d`\n*To:* `%d`\n*Amount:* %d\n*Model share:* %d\n*Platform share:* %d\n*Rate:* %s",
		t.RequestID, t.SenderID, t.ReceiverID, t.Amount, t.ModelShare, t.PlatformShare, t.CommissionRate.String())
	l.Log(LogTypeGift, msg)
}

func (l *OpsLog) Credited(_ context.Context, userID, amount int64, bucket domain.Bucket, reference string) {
	msg := fmt.Sprintf("💰 *Balance Top-Up*\n\n*User:* `%d`\n*Amount:* %d\n*Bucket:* %s\n*Reference:* %s",
		userID, amount, bucket, inlineCode(reference))
	l.Log(LogTypeCredit, msg)
}

func (l *OpsLog) SettleSession(_ context.Context, s *domain.Session) {
	var duration time.Duration
	if s.StartedAt != nil && s.EndedAt != nil {
		duration = s.EndedAt.Sub(*s.StartedAt).Round(time.Second)
	}
	msg := fmt.Sprintf("📹 *Session Ended*\n\n*Room:* `%s`\n*Client:* `%d`\n*Model:* `%d`\n*Duration:* %s\n*Coins:* %d\n*Reason:* %s",
		s.RoomID, *s.ClientID, *s.ModelID, duration, s.ConsumedCoins, s.EndReason)
	l.Log(LogTypeSettlement, msg)
}

func (l *OpsLog) topicID(logType LogType) int {
	switch logType {
	case LogTypeError:
		return l.cfg.LogTopicError
	case LogTypeSecurity:
		return l.cfg.LogTopicSecurity
	case LogTypeGift:
		return l.cfg.LogTopicGift
	case LogTypeCredit:
		return l.cfg.LogTopicCredit
	case LogTypeSettlement:
		return l.cfg.LogTopicSettlement
	default:
		return 0
	}
}
