package movement

import (
	"regexp"
	"strings"
	"testing"
	"unicode"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Will BTC reach 100k in 2024":    "will_btc_reach_100k_in_2024",
		"  Leading and\t\ttrailing  ":    "_leading_and_trailing_",
		"ETH\u00a0flips\u3000BTC":        "eth_flips_btc",
		"line\nbreak\r\nand\vtab\ffeed":  "line_break_and_tab_feed",
		"":                               "",
		"already_slugged":                "already_slugged",
		"ÉLECTION Présidentielle 2027":   "élection_présidentielle_2027",
		"zero\ufeffwidth no-break space": "zero_width_no-break_space",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slug(in), "Slug(%q)", in)
	}
	assert.Equal(t, "https://prediction-bice.vercel.app/market/will_sol_flip_eth", MarketURL("Will SOL flip ETH"))
}

var jsWhitespace = regexp.MustCompile(`[\t\n\v\f\r \x{00a0}\x{1680}\x{2000}-\x{200a}\x{2028}\x{2029}\x{202f}\x{205f}\x{3000}\x{feff}]`)

func TestSlugProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("idempotent", prop.ForAll(
		func(s string) bool { return Slug(Slug(s)) == Slug(s) },
		gen.AnyString(),
	))

	properties.Property("no whitespace survives", prop.ForAll(
		func(s string) bool { return !jsWhitespace.MatchString(Slug(s)) },
		gen.AnyString(),
	))

	properties.Property("each whitespace run becomes one underscore", prop.ForAll(
		func(a, sep, b string) bool {
			return Slug(a+sep+b) == Slug(a)+"_"+Slug(b)
		},
		gen.AlphaString(),
		gen.UnicodeString(unicode.Zs).SuchThat(func(s string) bool { return s != "" }),
		gen.AlphaString(),
	))

	properties.Property("lowercase output", prop.ForAll(
		func(s string) bool { return Slug(s) == strings.ToLower(Slug(s)) },
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
