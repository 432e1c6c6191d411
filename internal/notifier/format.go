package notifier

import (
	"fmt"
	"strings"

	"price-bot/internal/model"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var enPrinter = message.NewPrinter(language.AmericanEnglish)

// FormatPrice renders v with en-US grouping and at most three fraction digits.
func FormatPrice(v float64) string {
	return enPrinter.Sprint(number.Decimal(v, number.MaxFractionDigits(3)))
}

// FormatChange renders a 24h change with two decimals and a direction marker.
func FormatChange(change float64) string {
	arrow := "🔺"
	if change < 0 {
		arrow = "🔻"
	}
	return fmt.Sprintf("`%.2f%%` %s", change, arrow)
}

// FormatPriceMessage builds the Markdown price post sent to subscribers.
func FormatPriceMessage(symbol string, p model.Price, intervalMinutes int, botUsername string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💎 *%s PRICE UPDATE* 💎\n\n", strings.ToUpper(symbol))
	fmt.Fprintf(&b, "💵 *Current Price:* `$%s`\n", FormatPrice(p.Price))
	fmt.Fprintf(&b, "📊 *24h Change:*  %s\n\n", FormatChange(p.Change24h))
	b.WriteString("━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "⏰ *Next Update:* In %d min(s)", intervalMinutes)
	if botUsername != "" {
		fmt.Fprintf(&b, "\n🤖 @%s", strings.TrimPrefix(botUsername, "@"))
	}
	return b.String()
}
