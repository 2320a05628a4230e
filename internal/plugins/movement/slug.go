package movement

import (
	"regexp"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MarketBaseURL is the prefix of prediction market links.
const MarketBaseURL = "https://prediction-bice.vercel.app/market/"

// whitespaceRun matches the same characters as a JavaScript \s class.
var whitespaceRun = regexp.MustCompile(`[\s\v\p{Z}\x{FEFF}]+`)

// Slug replaces every whitespace run in question with "_" and lowercases the
// result. It is total and idempotent.
func Slug(question string) string {
	replaced := whitespaceRun.ReplaceAllString(question, "_")
	return cases.Lower(language.Und).String(replaced)
}

// MarketURL returns the public link of the market created for question.
func MarketURL(question string) string {
	return MarketBaseURL + Slug(question)
}
