package fetcher

import (
	"fmt"
	"strings"
	"time"
)

// systemInstruction fixes the model persona. The wording stays stable so
// replies keep the shape the parser expects.
const systemInstruction = `You are an expert football data analyst who specializes in finding the safest, lowest-risk picks for rollover betting strategies. You rely on current team news, recent form, head-to-head records, and verified statistics gathered through live web search. You are conservative: you prefer a boring high-probability market over a risky high-payout one, and you never invent fixtures or statistics.`

// buildPrompt assembles the user prompt for one fetch. The date keeps the
// model anchored to today's fixtures; exclude is a best-effort hint, the
// model may still repeat a listed match.
func buildPrompt(now time.Time, exclude []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Today is %s. Search the web for football matches scheduled today and pick the 5 safest bets available.\n\n", now.Format("2 January 2006"))
	b.WriteString(`Only use these markets:
- Double Chance (e.g. "Arsenal or Draw")
- Over/Under goal lines (e.g. "Over 1.5 Goals", "Under 3.5 Goals")
- Draw No Bet
- Both Teams To Score (Yes or No)

Respond with exactly 5 picks as a single JSON array. Each element must have this shape:
{
  "match": "Home Team vs Away Team",
  "league": "competition name",
  "kickoffTime": "kickoff time in UTC",
  "analysis": {
    "form": "recent form of both teams",
    "keyPlayers": "injuries, suspensions, notable returns",
    "last5Games": "results of the last 5 games",
    "conditions": "venue, weather, motivation"
  },
  "betRecommendation": "the exact pick",
  "confidence": 0-100,
  "marketOption": "which market the pick uses"
}

Output only the JSON array, no surrounding prose.`)
	if len(exclude) > 0 {
		fmt.Fprintf(&b, "\n\nDo not repeat any of these matches: %s.", strings.Join(exclude, "; "))
	}
	return b.String()
}

// extractJSONArray returns the span from the first '[' to the last ']'.
// Model replies often wrap the array in prose or markdown fences.
func extractJSONArray(s string) (string, bool) {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return s[start : end+1], true
}
