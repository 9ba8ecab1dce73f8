package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"swapflow/logger"
	"swapflow/models"
)

const (
	telegramAPIBase      = "https://api.telegram.org"
	telegramBatchSize    = 10
	telegramBatchSeconds = 30
)

// TelegramSink posts terminal order events and strategy terminations to a
// Telegram chat through the Bot API sendMessage endpoint. Messages are
// queued and batched so a burst of fills does not spam the chat, and a slow
// or unreachable API never blocks the engine.
type TelegramSink struct {
	Nop // non-terminal events are not forwarded

	token  string
	chatID string
	client *http.Client
	log    *logger.Log

	queue chan string
	wg    sync.WaitGroup
	once  sync.Once
	done  chan struct{}
}

// NewTelegramSink starts a background delivery worker. Stop must be called
// to flush outstanding messages on shutdown.
func NewTelegramSink(token, chatID string) *TelegramSink {
	t := &TelegramSink{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger.GetLogger(),
		queue:  make(chan string, 256),
		done:   make(chan struct{}),
	}
	t.wg.Add(1)
	go t.worker()
	return t
}

func (t *TelegramSink) OnOrderFilled(o *models.Order, receipt *models.Receipt) {
	msg := fmt.Sprintf("✅ [%s] [%s] order %s filled: %s %s %s/%s",
		o.Wallet, o.Strategy, o.ID, strings.ToUpper(string(o.Side)), o.Amount, o.Base, o.Quote)
	if receipt != nil && receipt.ExplorerURL != "" {
		msg += "\n" + receipt.ExplorerURL
	}
	t.enqueue(msg)
}

func (t *TelegramSink) OnOrderFailed(o *models.Order, reason string) {
	t.enqueue(fmt.Sprintf("❌ [%s] [%s] order %s failed after %d attempt(s): %s",
		o.Wallet, o.Strategy, o.ID, o.Attempts, reason))
}

func (t *TelegramSink) OnStrategyStopped(wallet, strategy, reason string) {
	t.enqueue(fmt.Sprintf("🏁 [%s] [%s] %s", wallet, strategy, reason))
}

func (t *TelegramSink) OnConnectionHealthChanged(state string) {
	t.enqueue(fmt.Sprintf("📡 connection health: %s", state))
}

func (t *TelegramSink) enqueue(msg string) {
	select {
	case t.queue <- msg:
	default:
		// Queue full, drop rather than block trading.
		t.log.WithComponent("telegram").Warn("notification queue full, message dropped")
	}
}

func (t *TelegramSink) worker() {
	defer t.wg.Done()

	ticker := time.NewTicker(telegramBatchSeconds * time.Second)
	defer ticker.Stop()

	var batch []string
	flush := func() {
		if len(batch) == 0 {
			return
		}
		t.send(strings.Join(batch, "\n\n"))
		batch = batch[:0]
	}

	for {
		select {
		case msg := <-t.queue:
			batch = append(batch, msg)
			if len(batch) >= telegramBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-t.done:
			// Drain whatever is queued, then flush once.
			for {
				select {
				case msg := <-t.queue:
					batch = append(batch, msg)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (t *TelegramSink) send(text string) {
	body, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/bot%s/sendMessage", telegramAPIBase, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		t.log.WithComponent("telegram").WithError(err).Warn("failed to deliver notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.log.WithComponent("telegram").WithFields(logger.Fields{
			"status": resp.Status,
		}).Warn("telegram API rejected notification")
	}
}

// Stop flushes queued messages and stops the worker.
func (t *TelegramSink) Stop() {
	t.once.Do(func() { close(t.done) })
	t.wg.Wait()
}
