package main

import (
	"context"
	"sync"
	"time"

	"github.com/hako/durafmt"
	"github.com/remeh/sizedwaitgroup"
)

const lastSeenLookupConcurrency = 8

type nodeView struct {
	ID               int64  `json:"id"`
	ConnectionString string `json:"connection_string"`
	LastSeen         string `json:"last_seen"`
}

type paymentView struct {
	Time   string `json:"time"`
	Amount string `json:"amount"`
	Hash   string `json:"hash"`
}

type dashboardData struct {
	BrandName      string        `json:"-"`
	LoggedIn       bool          `json:"-"`
	Flash          string        `json:"-"`
	Notice         string        `json:"-"`
	User           User          `json:"-"`
	ValidationKey  string        `json:"validation_key"`
	Ticker         string        `json:"ticker"`
	Share          ShareDisplay  `json:"share"`
	PendingBalance string        `json:"pending_balance"`
	Nodes          []nodeView    `json:"nodes"`
	TotalNodes     int           `json:"total_nodes"`
	Payments       []paymentView `json:"payments"`
}

// humanizeLastSeen renders the gap since the newest ping from a node IP.
// A node that never pinged shows "Never".
func humanizeLastSeen(seen time.Time, ok bool, now time.Time) string {
	if !ok {
		return "Never"
	}
	gap := now.Sub(seen)
	if gap < time.Second {
		gap = time.Second
	}
	return durafmt.Parse(gap).LimitFirstN(2).String() + " ago"
}

// buildDashboardData assembles everything the dashboard page and the JSON
// endpoint show for one user. Last-seen lookups run concurrently since each
// one is an independent index scan over the pings table.
func buildDashboardData(ctx context.Context, u User, cfg Config, nodes *nodeStore, ledger *ledgerStore) (dashboardData, error) {
	data := dashboardData{
		BrandName: cfg.BrandName,
		LoggedIn:  true,
		User:      u,
		Ticker:    coinTicker,
	}

	// Every account gets a zero share row at signup, so a missing row is a
	// real inconsistency and surfaces as errNotFound instead of fake zeros.
	rec, err := ledger.ShareByUser(ctx, u.ID)
	if err != nil {
		return dashboardData{}, err
	}
	data.Share = shareDisplay(rec, cfg.RoundRewardCoins)
	data.ValidationKey = u.ValidationKey

	amounts, err := ledger.RoundAmounts(ctx, roundNonce(time.Now()))
	if err != nil {
		return dashboardData{}, err
	}
	data.PendingBalance = pendingBalance(amounts, data.Share.PercentRaw)

	userNodes, err := nodes.ByUser(ctx, u.ID)
	if err != nil {
		return dashboardData{}, err
	}
	data.Nodes = make([]nodeView, len(userNodes))
	now := time.Now()
	swg := sizedwaitgroup.New(lastSeenLookupConcurrency)
	var mu sync.Mutex
	var lookupErr error
	for i, n := range userNodes {
		swg.Add()
		go func(i int, n Node) {
			defer swg.Done()
			seen, ok, err := nodes.LastSeen(ctx, n.IP)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if lookupErr == nil {
					lookupErr = err
				}
				return
			}
			data.Nodes[i] = nodeView{
				ID:               n.ID,
				ConnectionString: n.ConnectionString,
				LastSeen:         humanizeLastSeen(seen, ok, now),
			}
		}(i, n)
	}
	swg.Wait()
	if lookupErr != nil {
		return dashboardData{}, lookupErr
	}

	data.TotalNodes, err = nodes.CountAll(ctx)
	if err != nil {
		return dashboardData{}, err
	}

	payments, err := ledger.PaymentsByUser(ctx, u.ID)
	if err != nil {
		return dashboardData{}, err
	}
	data.Payments = make([]paymentView, 0, len(payments))
	for _, p := range payments {
		data.Payments = append(data.Payments, paymentView{
			Time:   formatTimestamp(p.TimestampMS),
			Amount: humanReadable(p.Amount) + " " + coinTicker,
			Hash:   p.Hash,
		})
	}

	return data, nil
}
