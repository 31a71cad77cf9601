package main

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// discordNotifier posts operator-facing notices (new accounts, payouts) to a
// configured channel. Disabled silently when no token or channel is set;
// every Notify method is safe on a nil or disabled notifier. Messages never
// include emails, wallets, keys, or any other credential material.
type discordNotifier struct {
	token     string
	channelID string
	dg        *discordgo.Session
	queue     chan string
}

func newDiscordNotifier(token, channelID string) *discordNotifier {
	return &discordNotifier{
		token:     strings.TrimSpace(token),
		channelID: strings.TrimSpace(channelID),
		queue:     make(chan string, 64),
	}
}

func (n *discordNotifier) enabled() bool {
	return n != nil && n.token != "" && n.channelID != ""
}

func (n *discordNotifier) start(ctx context.Context) error {
	if !n.enabled() {
		logger.Info("discord notifier disabled")
		return nil
	}
	dg, err := discordgo.New("Bot " + n.token)
	if err != nil {
		return err
	}
	dg.Identify.Intents = discordgo.MakeIntent(discordgo.IntentsGuilds)
	if err := dg.Open(); err != nil {
		return err
	}
	n.dg = dg
	go n.drain(ctx)
	logger.Info("discord notifier started", "channel_id", n.channelID)
	return nil
}

func (n *discordNotifier) close() {
	if n == nil || n.dg == nil {
		return
	}
	_ = n.dg.Close()
}

func (n *discordNotifier) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.queue:
			if _, err := n.dg.ChannelMessageSend(n.channelID, msg); err != nil {
				logger.Warn("discord send failed", "error", err)
			}
		}
	}
}

func (n *discordNotifier) enqueue(msg string) {
	if !n.enabled() {
		return
	}
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return
	}
	select {
	case n.queue <- "[" + softwareName + "] " + msg:
	default:
		// Drop rather than block a request path on a full queue.
	}
}

func (n *discordNotifier) NotifySignup(name string) {
	n.enqueue("New account registered: " + name)
}

func (n *discordNotifier) NotifyPayment(amount string) {
	n.enqueue("Payment sent: " + amount)
}
