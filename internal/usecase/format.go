package usecase

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"BountyScanner/internal/domain"
)

const topReposInHeader = 5

// BuildDigest renders the digest for the given records. When the full body
// fits the character budget it is returned as a single message with no
// overflow; otherwise a short header-only message is primary and the bullet
// list is returned as overflow for threaded delivery.
func BuildDigest(records []domain.Record, lookback time.Duration, budget int) (string, string) {
	header := digestHeader(records, lookback)

	bullets := make([]string, len(records))
	for i, r := range records {
		bullets[i] = bullet(r)
	}
	list := strings.Join(bullets, "\n")

	body := header + "\n\n" + list
	if utf8.RuneCountInString(body) <= budget {
		return body, ""
	}

	return header + "\n\n(Details in thread ⤵️)", list
}

func digestHeader(records []domain.Record, lookback time.Duration) string {
	count := len(records)
	plural := "s"
	if count == 1 {
		plural = ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "💎 Bounty digest — last %d min · %d item%s\n", int(lookback.Minutes()), count, plural)
	b.WriteString("Sources: " + sourceBreakdown(records) + "\n")
	b.WriteString("Top repos: " + topRepos(records))
	return b.String()
}

// sourceBreakdown counts records per source in first-seen order.
func sourceBreakdown(records []domain.Record) string {
	order, counts := countBy(records, func(r domain.Record) string { return r.Source })
	if len(order) == 0 {
		return "—"
	}
	parts := make([]string, len(order))
	for i, src := range order {
		parts[i] = fmt.Sprintf("%s (%d)", src, counts[src])
	}
	return strings.Join(parts, ", ")
}

// topRepos ranks repos by occurrence, ties broken by discovery order.
func topRepos(records []domain.Record) string {
	order, counts := countBy(records, func(r domain.Record) string { return r.Repo })
	if len(order) == 0 {
		return "—"
	}

	ranked := make([]string, len(order))
	copy(ranked, order)
	// Stable sort keeps discovery order inside equal counts.
	sort.SliceStable(ranked, func(i, j int) bool {
		return counts[ranked[i]] > counts[ranked[j]]
	})
	if len(ranked) > topReposInHeader {
		ranked = ranked[:topReposInHeader]
	}

	parts := make([]string, len(ranked))
	for i, repo := range ranked {
		parts[i] = fmt.Sprintf("%s (%d)", repo, counts[repo])
	}
	return strings.Join(parts, ", ")
}

func countBy(records []domain.Record, key func(domain.Record) string) ([]string, map[string]int) {
	var order []string
	counts := make(map[string]int)
	for _, r := range records {
		k := key(r)
		if k == "" {
			continue
		}
		if _, seen := counts[k]; !seen {
			order = append(order, k)
		}
		counts[k]++
	}
	return order, counts
}

func bullet(r domain.Record) string {
	var b strings.Builder
	b.WriteString("• ")
	if amount := amountPrefix(r); amount != "" {
		b.WriteString(amount + " — ")
	}
	if r.Repo != "" {
		b.WriteString(r.Repo + " — ")
	}
	b.WriteString(r.Title)
	fmt.Fprintf(&b, "\n  %s (%sZ)", r.URL, r.CreatedAt.UTC().Format("15:04"))
	return b.String()
}

// amountPrefix renders the bounty amount as a currency symbol plus the
// integer-rounded magnitude. The numeric field wins; otherwise the first
// label shaped like "<CUR> <amount>" is parsed. Empty when neither yields
// a value.
func amountPrefix(r domain.Record) string {
	if r.Amount != nil {
		return currencySymbol(r.Currency) + strconv.Itoa(int(math.Round(*r.Amount)))
	}
	for _, label := range r.Labels {
		if cur, value, ok := parseAmountLabel(label); ok {
			return currencySymbol(cur) + strconv.Itoa(int(math.Round(value)))
		}
	}
	return ""
}

func parseAmountLabel(label string) (string, float64, bool) {
	cur, rest, found := strings.Cut(label, " ")
	if !found || len(cur) != 3 || cur != strings.ToUpper(cur) {
		return "", 0, false
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
	if err != nil {
		return "", 0, false
	}
	return cur, value, true
}

func currencySymbol(code string) string {
	switch strings.ToUpper(code) {
	case "", "USD":
		return "$"
	case "EUR":
		return "€"
	case "GBP":
		return "£"
	default:
		return code + " "
	}
}
