package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/roulette/internal/config"
	"github.com/set-night/roulette/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu             sync.Mutex
	sent           []*bot.SendMessageParams
	rejectMarkdown bool
}

func (f *fakeSender) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectMarkdown && p.ParseMode != "" {
		return nil, errors.New("Bad Request: can't parse entities")
	}
	cp := *p
	f.sent = append(f.sent, &cp)
	return &models.Message{}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func testLog(t *testing.T) (*OpsLog, *fakeSender) {
	t.Helper()
	cfg := &config.Config{
		LogTelegramChatID:  -100,
		LogTopicError:      1,
		LogTopicSecurity:   2,
		LogTopicGift:       3,
		LogTopicSettlement: 5,
	}
	sender := &fakeSender{}
	l := NewOpsLog(sender, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go l.Run(ctx)
	return l, sender
}

func TestOpsLogRoutesToTopics(t *testing.T) {
	l, sender := testLog(t)
	ctx := context.Background()

	l.SecurityViolation(ctx, "gift token mismatch")
	l.GiftSettled(ctx, &domain.GiftTransaction{RequestID: 1, Amount: 50, ModelShare: 30, PlatformShare: 20, CommissionRate: decimal.RequireFromString("0.4")})
	l.LogError(errors.New("boom"), "billing")

	require.Eventually(t, func() bool { return sender.count() == 3 }, time.Second, 10*time.Millisecond)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	topics := map[int]bool{}
	for _, p := range sender.sent {
		require.Equal(t, int64(-100), p.ChatID)
		topics[p.MessageThreadID] = true
	}
	require.Equal(t, map[int]bool{1: true, 2: true, 3: true}, topics)
}

func TestOpsLogSkipsUnconfiguredTopics(t *testing.T) {
	l, sender := testLog(t)

	l.Credited(context.Background(), 1, 100, domain.BucketTime, "pay-1")
	time.Sleep(20 * time.Millisecond)
	require.Zero(t, sender.count())
}

func TestOpsLogSettlementSummary(t *testing.T) {
	l, sender := testLog(t)
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Minute)
	client, model := int64(1), int64(2)

	l.SettleSession(context.Background(), &domain.Session{
		RoomID: "room", ClientID: &client, ModelID: &model,
		StartedAt: &start, EndedAt: &end, ConsumedCoins: 30, EndReason: domain.EndReasonUserEnded,
	})

	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 10*time.Millisecond)
	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Contains(t, sender.sent[0].Text, "3m0s")
	require.Equal(t, 5, sender.sent[0].MessageThreadID)
}

func TestOpsLogFallsBackToPlainText(t *testing.T) {
	l, sender := testLog(t)
	sender.mu.Lock()
	sender.rejectMarkdown = true
	sender.mu.Unlock()

	l.LogError(errors.New("bad `quote"), "accept")

	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 10*time.Millisecond)
	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Empty(t, string(sender.sent[0].ParseMode))
	require.Contains(t, sender.sent[0].Text, "`bad 'quote`")
}
