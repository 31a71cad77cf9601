package main

import (
	"context"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"
)

const (
	feedRecreateBackoffMin = time.Second
	feedRecreateBackoffMax = 30 * time.Second
	feedReceiveTimeout     = 5 * time.Second
)

// poolFeed ingests the event stream the pool core publishes over ZMQ and
// writes it into the ledger tables the dashboard reads. The dashboard never
// computes pool state itself; it only mirrors what the core reports.
type poolFeed struct {
	addr     string
	ledger   *ledgerStore
	notifier *discordNotifier
	healthy  atomic.Bool

	reconnects  uint64
	disconnects uint64
}

type poolEvent struct {
	Type        string `json:"type"`
	IP          string `json:"ip,omitempty"`
	UserID      int64  `json:"user_id,omitempty"`
	Shares      int64  `json:"shares,omitempty"`
	Percent     int64  `json:"percent,omitempty"`
	Amount      int64  `json:"amount,omitempty"`
	Hash        string `json:"hash,omitempty"`
	Nonce       string `json:"nonce,omitempty"`
	TimestampMS int64  `json:"ts,omitempty"`
}

func newPoolFeed(addr string, ledger *ledgerStore, notifier *discordNotifier) *poolFeed {
	return &poolFeed{addr: addr, ledger: ledger, notifier: notifier}
}

func (f *poolFeed) markHealthy() {
	if f.healthy.Swap(true) {
		return
	}
	atomic.AddUint64(&f.reconnects, 1)
	verb := "connected"
	if atomic.LoadUint64(&f.disconnects) > 0 {
		verb = "reconnected"
	}
	logger.Info("pool feed "+verb, "addr", f.addr)
}

func (f *poolFeed) markUnhealthy(reason string, err error) {
	fields := []any{"reason", reason}
	if err != nil {
		fields = append(fields, "error", err)
	}
	if f.healthy.Swap(false) {
		atomic.AddUint64(&f.disconnects, 1)
		logger.Warn("pool feed unhealthy", fields...)
	} else if err != nil {
		logger.Error("pool feed error", fields...)
	}
}

// applyEvent dispatches one decoded event into storage. Unknown event types
// are skipped so a newer pool core can publish fields this build ignores.
func (f *poolFeed) applyEvent(ctx context.Context, ev poolEvent) error {
	if ev.TimestampMS <= 0 {
		ev.TimestampMS = time.Now().UnixMilli()
	}
	switch ev.Type {
	case "ping":
		if ev.IP == "" {
			return nil
		}
		return f.ledger.RecordPing(ctx, ev.IP, ev.TimestampMS)
	case "share":
		if ev.UserID <= 0 {
			return nil
		}
		return f.ledger.SetShares(ctx, ev.UserID, ev.Shares, ev.Percent, time.UnixMilli(ev.TimestampMS))
	case "payment":
		if ev.UserID <= 0 {
			return nil
		}
		if err := f.ledger.RecordPayment(ctx, ev.UserID, ev.TimestampMS, ev.Amount, ev.Hash); err != nil {
			return err
		}
		f.notifier.NotifyPayment(humanReadable(ev.Amount) + " " + coinTicker)
		return nil
	case "round":
		if ev.Nonce == "" {
			return nil
		}
		return f.ledger.AddRoundAmount(ctx, ev.Nonce, ev.Amount)
	default:
		if debugLogging {
			logger.Debug("unknown pool event type", "type", ev.Type)
		}
		return nil
	}
}

func (f *poolFeed) handleFrame(ctx context.Context, payload []byte) {
	var ev poolEvent
	if err := fastJSONUnmarshal(payload, &ev); err != nil {
		logger.Warn("decode pool event failed", "error", err)
		return
	}
	if err := f.applyEvent(ctx, ev); err != nil {
		logger.Error("apply pool event failed", "type", ev.Type, "error", err)
	}
}

// start runs the subscribe loop until ctx ends. Disabled when no address is
// configured.
func (f *poolFeed) start(ctx context.Context) {
	if f.addr == "" {
		logger.Info("pool feed disabled (no address configured)")
		return
	}
	go f.subscribeLoop(ctx)
}

func (f *poolFeed) subscribeLoop(ctx context.Context) {
	backoff := feedRecreateBackoffMin
	for {
		if ctx.Err() != nil {
			return
		}

		sub, err := zmq4.NewSocket(zmq4.SUB)
		if err != nil {
			f.markUnhealthy("socket", err)
			if err := sleepContext(ctx, backoff); err != nil {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}
		_ = sub.SetLinger(0)

		if err := sub.SetSubscribe(""); err != nil {
			f.markUnhealthy("subscribe", err)
			sub.Close()
			if err := sleepContext(ctx, backoff); err != nil {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}
		if err := sub.SetRcvtimeo(feedReceiveTimeout); err != nil {
			f.markUnhealthy("set_rcvtimeo", err)
			sub.Close()
			if err := sleepContext(ctx, backoff); err != nil {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}
		if err := sub.Connect(f.addr); err != nil {
			f.markUnhealthy("connect", err)
			sub.Close()
			if err := sleepContext(ctx, backoff); err != nil {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		logger.Info("watching pool event feed", "addr", f.addr)
		backoff = feedRecreateBackoffMin

		for {
			if ctx.Err() != nil {
				sub.Close()
				return
			}
			frames, err := sub.RecvMessageBytes(0)
			if err != nil {
				eno := zmq4.AsErrno(err)
				if eno == zmq4.Errno(syscall.EAGAIN) || eno == zmq4.ETIMEDOUT {
					continue
				}
				f.markUnhealthy("receive", err)
				sub.Close()
				if err := sleepContext(ctx, backoff); err != nil {
					return
				}
				backoff = nextBackoff(backoff)
				break
			}
			if len(frames) == 0 {
				continue
			}
			f.markHealthy()
			// The payload is the last frame; a topic frame may precede it.
			f.handleFrame(ctx, frames[len(frames)-1])
		}
	}
}

func nextBackoff(backoff time.Duration) time.Duration {
	if backoff >= feedRecreateBackoffMax {
		return feedRecreateBackoffMax
	}
	backoff *= 2
	if backoff > feedRecreateBackoffMax {
		backoff = feedRecreateBackoffMax
	}
	return backoff
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
