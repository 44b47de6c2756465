package giving

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// FundProgress summarizes how far a fund is toward its goal.
type FundProgress struct {
	FundID      string `json:"fund_id"`
	RaisedCents int64  `json:"raised_cents"`
	GoalCents   *int64 `json:"goal_cents"`
	// Percent is nil when the fund has no goal.
	Percent *int `json:"percent"`
}

// Progress computes the fund's progress. Percent is round(raised/goal*100) clamped to [0, 100].
func Progress(fund *Fund) FundProgress {
	p := FundProgress{FundID: fund.ID, RaisedCents: fund.AmountRaisedCents, GoalCents: fund.GoalAmountCents}
	if fund.GoalAmountCents == nil || *fund.GoalAmountCents <= 0 {
		return p
	}

	pct := int(math.Round(float64(fund.AmountRaisedCents) / float64(*fund.GoalAmountCents) * 100))
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	p.Percent = &pct
	return p
}

// Timeframe selects the donations a leaderboard covers.
type Timeframe string

const (
	AllTime     Timeframe = "ALL_TIME"
	YearToDate  Timeframe = "YEARLY"
	MonthToDate Timeframe = "MONTHLY"
)

// DefaultTopN is the leaderboard size used when none is requested.
const DefaultTopN = 10

// ErrUnknownTimeframe is returned by ParseTimeframe for names outside the Timeframe constants.
var ErrUnknownTimeframe = errors.New("unknown leaderboard timeframe")

// ParseTimeframe converts a raw name (case-insensitive) into a Timeframe. Empty means ALL_TIME.
func ParseTimeframe(name string) (Timeframe, error) {
	tf := Timeframe(strings.ToUpper(strings.TrimSpace(name)))
	switch tf {
	case "":
		return AllTime, nil
	case AllTime, YearToDate, MonthToDate:
		return tf, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTimeframe, name)
}

// WindowStart returns the earliest donation time included in tf, evaluated at now in now's
// location. The zero time means no lower bound.
func WindowStart(tf Timeframe, now time.Time) time.Time {
	switch tf {
	case YearToDate:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	case MonthToDate:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	default:
		return time.Time{}
	}
}

// LeaderboardEntry is one donor's aggregated giving.
type LeaderboardEntry struct {
	Rank            int       `json:"rank"`
	UserID          *string   `json:"user_id,omitempty"`
	DisplayName     string    `json:"display_name"`
	TotalCents      int64     `json:"total_cents"`
	DonationCount   int       `json:"donation_count"`
	FirstDonationAt time.Time `json:"first_donation_at"`
	key             string
}

// Leaderboard aggregates donations into a ranked list of donors.
//
// Donations outside the timeframe window or flagged anonymous-on-leaderboard are dropped.
// Donations are grouped by user ID, falling back to display name; donations with neither are
// dropped. Groups are ordered by total descending, then by earliest first donation, then by key,
// and truncated to topN (DefaultTopN when topN <= 0).
func Leaderboard(donations []Donation, tf Timeframe, now time.Time, topN int) []LeaderboardEntry {
	if topN <= 0 {
		topN = DefaultTopN
	}
	since := WindowStart(tf, now)

	groups := make(map[string]*LeaderboardEntry)
	for _, d := range donations {
		if d.IsAnonymousOnLeaderboard {
			continue
		}
		if !since.IsZero() && d.DonatedAt.Before(since) {
			continue
		}

		key, name := donorKey(d)
		if key == "" {
			continue
		}

		e, ok := groups[key]
		if !ok {
			e = &LeaderboardEntry{key: key, UserID: d.UserID, DisplayName: name, FirstDonationAt: d.DonatedAt}
			groups[key] = e
		}
		e.TotalCents += d.AmountCents
		e.DonationCount++
		if d.DonatedAt.Before(e.FirstDonationAt) {
			e.FirstDonationAt = d.DonatedAt
		}
		if e.DisplayName == "" && name != "" {
			e.DisplayName = name
		}
	}

	entries := make([]LeaderboardEntry, 0, len(groups))
	for _, e := range groups {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.TotalCents != b.TotalCents {
			return a.TotalCents > b.TotalCents
		}
		if !a.FirstDonationAt.Equal(b.FirstDonationAt) {
			return a.FirstDonationAt.Before(b.FirstDonationAt)
		}
		return a.key < b.key
	})

	if len(entries) > topN {
		entries = entries[:topN]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func donorKey(d Donation) (key, name string) {
	if d.DisplayName != nil {
		name = strings.TrimSpace(*d.DisplayName)
	}
	if d.UserID != nil && *d.UserID != "" {
		return "user:" + *d.UserID, name
	}
	if name != "" {
		return "name:" + strings.ToLower(name), name
	}
	return "", ""
}
