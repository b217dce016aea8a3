package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/botsdv/backend/internal/metrics"
)

const (
	DefaultAPIURL         = "https://api.telegram.org"
	defaultMaxAttempts    = 3
	defaultBaseBackoff    = 500 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
	defaultRetryAfter     = 5 * time.Second
	defaultMaxRetryAfter  = 60 * time.Second
	defaultRequestTimeout = 15 * time.Second
)

type TelegramConfig struct {
	APIURL      string
	Token       string
	MaxAttempts int
	Timeout     time.Duration
}

type Option func(*Telegram)

// WithHTTPClient replaces the managed client. A replaced client is never
// rebuilt after connection failures.
func WithHTTPClient(client *http.Client) Option {
	return func(t *Telegram) {
		if client != nil {
			t.client = client
			t.managed = false
		}
	}
}

func WithBackoff(base, max time.Duration) Option {
	return func(t *Telegram) {
		t.baseBackoff = base
		t.maxBackoff = max
	}
}

// WithRetryAfter sets the wait used when a 429 carries no hint and the cap
// applied to server-provided hints.
func WithRetryAfter(fallback, max time.Duration) Option {
	return func(t *Telegram) {
		t.retryAfter = fallback
		t.maxRetryAfter = max
	}
}

// Telegram sends messages through the Bot API sendMessage method with
// bounded retries.
type Telegram struct {
	token         string
	apiEndpoint   string
	maxAttempts   int
	timeout       time.Duration
	baseBackoff   time.Duration
	maxBackoff    time.Duration
	retryAfter    time.Duration
	maxRetryAfter time.Duration
	logger        zerolog.Logger

	mu      sync.Mutex
	client  *http.Client
	managed bool
}

// NewTelegram returns a Telegram channel, or Noop when no token is set.
func NewTelegram(cfg TelegramConfig, logger zerolog.Logger, opts ...Option) Channel {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		logger.Warn().Msg("BOT_TOKEN not set, chat notifications disabled")
		return Noop()
	}
	return newTelegram(cfg, logger, opts...)
}

func newTelegram(cfg TelegramConfig, logger zerolog.Logger, opts ...Option) *Telegram {
	apiURL := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	t := &Telegram{
		token:         strings.TrimSpace(cfg.Token),
		apiEndpoint:   apiURL + "/bot%s/%s",
		maxAttempts:   cfg.MaxAttempts,
		timeout:       cfg.Timeout,
		baseBackoff:   defaultBaseBackoff,
		maxBackoff:    defaultMaxBackoff,
		retryAfter:    defaultRetryAfter,
		maxRetryAfter: defaultMaxRetryAfter,
		logger:        logger.With().Str("component", "telegram").Logger(),
		managed:       true,
	}
	if t.maxAttempts <= 0 {
		t.maxAttempts = defaultMaxAttempts
	}
	if t.timeout <= 0 {
		t.timeout = defaultRequestTimeout
	}
	t.client = t.newClient()
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// observer binds tgbotapi requests to the caller's context and remembers
// the status and Retry-After header of the last response, which the
// library does not surface.
type observer struct {
	ctx        context.Context
	base       tgbotapi.HTTPClient
	status     int
	retryAfter time.Duration
}

func (o *observer) Do(req *http.Request) (*http.Response, error) {
	o.status, o.retryAfter = 0, 0
	resp, err := o.base.Do(req.WithContext(o.ctx))
	if err != nil {
		return nil, err
	}
	o.status = resp.StatusCode
	if d, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
		o.retryAfter = d
	}
	return resp, nil
}

// failure normalizes a request error into an httpStatusError whenever the
// server answered at all.
func (o *observer) failure(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		se := &httpStatusError{StatusCode: apiErr.Code, Body: apiErr.Message, RetryAfter: o.retryAfter}
		if se.StatusCode == 0 {
			se.StatusCode = o.status
		}
		if apiErr.RetryAfter > 0 {
			se.RetryAfter = time.Duration(apiErr.RetryAfter) * time.Second
		}
		return se
	}
	if o.status >= http.StatusMultipleChoices {
		return &httpStatusError{StatusCode: o.status, Body: err.Error(), RetryAfter: o.retryAfter}
	}
	return err
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("telegram: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

func (t *Telegram) Send(ctx context.Context, msg Message) bool {
	log := t.logger.With().Str("chat_id", msg.ChatID).Logger()
	cfg, err := buildMessage(msg)
	if err != nil {
		log.Warn().Err(err).Msg("skipping notification")
		return false
	}

	obs := &observer{ctx: ctx, base: t.httpClient()}
	bot := &tgbotapi.BotAPI{Token: t.token, Client: obs, Buffer: 1}
	bot.SetAPIEndpoint(t.apiEndpoint)

	var hint time.Duration
	backoff := retry.NewExponential(t.baseBackoff)
	backoff = retry.WithCappedDuration(t.maxBackoff, backoff)
	backoff = retry.WithMaxRetries(uint64(t.maxAttempts-1), backoff)
	backoff = withHint(backoff, &hint)

	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		metrics.NotificationAttempts.Inc()
		_, err := bot.Request(cfg)
		if err == nil {
			return nil
		}
		err = obs.failure(err)
		var statusErr *httpStatusError
		if !errors.As(err, &statusErr) && isConnectionFailure(err) {
			t.resetClient()
			obs.base = t.httpClient()
		}
		delay, retryable := t.classify(ctx, err)
		if !retryable {
			return err
		}
		hint = delay
		log.Debug().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("notification attempt failed")
		return retry.RetryableError(err)
	})
	if err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Int("attempts", attempt).Msg("notification dropped")
		return false
	}
	metrics.Notifications.WithLabelValues("delivered").Inc()
	return true
}

// buildMessage accepts numeric chat ids and @channel usernames.
func buildMessage(msg Message) (tgbotapi.MessageConfig, error) {
	chatID := strings.TrimSpace(msg.ChatID)
	var cfg tgbotapi.MessageConfig
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		cfg = tgbotapi.NewMessage(id, msg.Text)
	} else if strings.HasPrefix(chatID, "@") {
		cfg = tgbotapi.NewMessageToChannel(chatID, msg.Text)
	} else {
		return cfg, fmt.Errorf("invalid chat id %q", msg.ChatID)
	}
	cfg.ParseMode = tgbotapi.ModeMarkdown
	if len(msg.Buttons) > 0 {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(msg.Buttons))
		for _, b := range msg.Buttons {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.CallbackData))
		}
		cfg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	}
	return cfg, nil
}

// classify reports whether err is worth another attempt and, when the
// server asked for it, how long to wait first. A zero delay means the
// exponential schedule decides.
func (t *Telegram) classify(ctx context.Context, err error) (time.Duration, bool) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			if statusErr.RetryAfter > 0 {
				return t.capRetryAfter(statusErr.RetryAfter), true
			}
			return t.retryAfter, true
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode >= http.StatusInternalServerError:
			return t.capRetryAfter(statusErr.RetryAfter), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return 0, true
	}
	return 0, isConnectionFailure(err)
}

func (t *Telegram) capRetryAfter(d time.Duration) time.Duration {
	if t.maxRetryAfter > 0 && d > t.maxRetryAfter {
		return t.maxRetryAfter
	}
	return d
}

func (t *Telegram) httpClient() *http.Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client
}

func (t *Telegram) newClient() *http.Client {
	return &http.Client{
		Timeout:   t.timeout,
		Transport: http.DefaultTransport.(*http.Transport).Clone(),
	}
}

// resetClient drops pooled connections after a hard connection failure so
// the next attempt dials fresh.
func (t *Telegram) resetClient() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.client.CloseIdleConnections()
	if t.managed {
		t.client = t.newClient()
	}
}

func withHint(next retry.Backoff, hint *time.Duration) retry.Backoff {
	return retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := next.Next()
		if stop {
			return 0, true
		}
		if *hint > 0 {
			d = *hint
			*hint = 0
		}
		return d, false
	})
}

func isConnectionFailure(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
