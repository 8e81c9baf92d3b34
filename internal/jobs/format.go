package jobs

import (
	"fmt"
	"strings"
	"time"

	"github.com/bandwatch/bandwatch/internal/models"
)

// reportLine is one account's contribution to a usage report.
type reportLine struct {
	Name    string
	UsageGB float64
}

// usageWarningsText aggregates every over-threshold account into one message.
func usageWarningsText(accounts []models.Account) string {
	var b strings.Builder
	b.WriteString("⚠️ Usage warnings\n")
	for _, acc := range accounts {
		fmt.Fprintf(&b, "\n%s: %.1f of %.1f GB (%.0f%%), %.1f GB left",
			acc.Name, acc.CurrentUsageGB, acc.UsageLimitGB, acc.UsagePercent, acc.RemainingGB)
	}
	return b.String()
}

func expiryPhrase(acc models.Account) string {
	days := 0
	if acc.ExpireInDays != nil {
		days = *acc.ExpireInDays
	}
	switch days {
	case 0:
		return "today"
	case 1:
		return "tomorrow"
	default:
		return fmt.Sprintf("in %d days", days)
	}
}

// expiryWarningsText aggregates a recipient's expiring accounts into one
// message per run.
func expiryWarningsText(accounts []models.Account) string {
	if len(accounts) == 1 {
		return fmt.Sprintf("⏳ Account %s expires %s.", accounts[0].Name, expiryPhrase(accounts[0]))
	}

	var b strings.Builder
	b.WriteString("⏳ Accounts expiring soon:\n")
	for _, acc := range accounts {
		fmt.Fprintf(&b, "\n%s — %s", acc.Name, expiryPhrase(acc))
	}
	return b.String()
}

func dailyReportText(lines []reportLine, day time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Daily usage report — %s\n\n", day.Format("2006-01-02"))

	if len(lines) == 0 {
		b.WriteString("No usage recorded today.")
		return b.String()
	}

	var total float64
	for _, line := range lines {
		fmt.Fprintf(&b, "%s: %.2f GB\n", line.Name, line.UsageGB)
		total += line.UsageGB
	}
	fmt.Fprintf(&b, "\nTotal: %.2f GB", total)
	return b.String()
}

func onlineReportText(online []models.Account, usage map[string]float64, updatedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🟢 Online now: %d\n\n", len(online))

	for _, acc := range online {
		if gb, ok := usage[acc.UUID]; ok {
			fmt.Fprintf(&b, "%s — %.2f GB today\n", acc.Name, gb)
		} else {
			fmt.Fprintf(&b, "%s\n", acc.Name)
		}
	}

	fmt.Fprintf(&b, "\nUpdated %s", updatedAt.Format("15:04:05"))
	return b.String()
}

func birthdayText(firstName string, giftGB float64, giftDays int) string {
	name := firstName
	if name == "" {
		name = "friend"
	}
	return fmt.Sprintf("🎂 Happy birthday, %s! We added %.0f GB and %d days to your accounts as a gift.", name, giftGB, giftDays)
}
