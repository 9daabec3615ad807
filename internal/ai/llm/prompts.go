package llm

import (
	"fmt"
	"strconv"
	"strings"
)

// SystemPromptSignal frames the model as a terse signal generator
const SystemPromptSignal = `You are an automated crypto trading signal generator for a paper trading account.
You MUST respond in VALID JSON ONLY.`

// BuildSignalPrompt builds the per-symbol advisory prompt. dropPct and
// gainPct are percentages.
func BuildSignalPrompt(symbol string, recentPrices []float64, dropPct, gainPct float64) string {
	prices := make([]string, len(recentPrices))
	for i, p := range recentPrices {
		prices[i] = strconv.FormatFloat(p, 'g', 10, 64)
	}

	var b strings.Builder
	b.WriteString("Return EXACTLY one JSON object with these keys: signal, reason\n")
	b.WriteString(` - signal must be one of: "buy", "sell", "hold"` + "\n")
	fmt.Fprintf(&b, " - reason must be a short string (max %d chars)\n", MaxReasonLength)
	b.WriteString("Do NOT include any other text, markup, or explanation.\n\n")
	b.WriteString("EXAMPLE:\n{\"signal\":\"buy\",\"reason\":\"volatility breakout\"}\n\n")
	b.WriteString("Now analyze this coin and return the JSON object only.\n")
	fmt.Fprintf(&b, "Coin: %s\n", symbol)
	fmt.Fprintf(&b, "Recent prices (most recent last): [%s]\n", strings.Join(prices, ", "))
	fmt.Fprintf(&b, "Current drop %%: %.2f\n", dropPct)
	fmt.Fprintf(&b, "Current gain %%: %.2f\n", gainPct)
	return b.String()
}
