package movement

import (
	"context"
	"strings"

	"ForesightX/internal/agent"
	"ForesightX/internal/config"
	xerrors "ForesightX/internal/errors"
	"ForesightX/internal/web3"
)

// ActionCreatePredictionMarket is the name of the market creation action.
const ActionCreatePredictionMarket = "CREATE_PREDICTION_MARKET"

const (
	marketModule   = "PredictionMarkets"
	marketFunction = "create_market"
)

// PredictionMarketAction creates a market on the configured PredictionMarkets contract.
type PredictionMarketAction struct {
	plugin *Plugin
}

var _ agent.Action = (*PredictionMarketAction)(nil)

func (a *PredictionMarketAction) Name() string { return ActionCreatePredictionMarket }

func (a *PredictionMarketAction) Similes() []string {
	return []string{
		"NEW_PREDICTION_MARKET", "START_PREDICTION_MARKET", "CREATE_MARKET", "NEW_MARKET",
		"MARKET_CREATION", "PREDICTION_PLATFORM_INIT", "FORECAST_MARKET_SETUP", "SPECULATIVE_MARKET_LAUNCH",
		"CRYPTO_MARKET_CREATE", "FINANCIAL_PREDICTION_MARKET", "POLITICAL_FORECAST_MARKET", "SPORTS_PREDICTION_PLATFORM",
		"OUTCOME_MARKET", "PROBABILITY_MARKET", "SPECULATION_PLATFORM", "PREDICTIVE_MARKET_INIT",
		"ELECTION_MARKET", "TECHNOLOGY_FORECAST_MARKET", "ENTERTAINMENT_PREDICTION_PLATFORM", "GLOBAL_EVENT_MARKET",
	}
}

func (a *PredictionMarketAction) Triggers() []string {
	return []string{
		// politics
		"will chief win", "predict election outcome", "who wins presidency", "chances of winning",
		"election prediction", "political race forecast",
		// sports
		"will team win championship", "predict game result", "sports outcome prediction",
		"who wins super bowl", "tournament winner forecast", "predict match winner",
		// crypto and markets
		"will bitcoin reach", "cryptocurrency price prediction", "predict stock price",
		"ethereum forecast", "market trend prediction", "crypto price outlook",
		// technology
		"will company release", "tech breakthrough prediction", "product launch forecast",
		"predict next innovation", "tech company outlook", "startup success chances",
		// entertainment
		"will movie win oscar", "predict award winner", "who gets grammy",
		"entertainment industry forecast", "box office prediction",
		// science
		"breakthrough discovery chances", "predict research outcome", "scientific innovation forecast",
		// world events
		"predict global event", "geopolitical forecast", "international relations prediction",
		// culture
		"social trend prediction", "cultural shift forecast", "predict popular movement",
		// general
		"predict outcome of", "does x happen", "forecast for", "what are odds of", "likelihood of",
		"probability of", "chances that", "will x happen", "predict if", "forecast whether",
	}
}

func (a *PredictionMarketAction) Description() string {
	return "Create a new prediction market both on-chain and in backend"
}

func (a *PredictionMarketAction) Priority() int { return 1000 }

// ShouldHandle matches market creation requests and forecasting questions.
func (a *PredictionMarketAction) ShouldHandle(msg *agent.Memory) bool {
	text := strings.ToLower(msg.Text())
	return strings.Contains(text, "prediction market") ||
		(strings.Contains(text, "market") && strings.Contains(text, "create")) ||
		strings.Contains(text, "predict") ||
		strings.Contains(text, "will") ||
		strings.Contains(text, "chances") ||
		strings.Contains(text, "odds")
}

// Validate requires a username on twitter messages. Chat users may stay anonymous.
func (a *PredictionMarketAction) Validate(_ context.Context, _ agent.Runtime, msg *agent.Memory) bool {
	a.plugin.log.Debug("validating prediction market", "user", msg.UserID, "text", msg.Text())
	if msg.Context.Twitter != nil {
		return strings.TrimSpace(msg.Context.Twitter.Username) != ""
	}
	return true
}

// Handle creates the market and replies with the market and explorer links.
func (a *PredictionMarketAction) Handle(ctx context.Context, rt agent.Runtime, msg *agent.Memory, state agent.State, _ map[string]any, cb agent.HandlerCallback) bool {
	log := a.plugin.log.With("action", ActionCreatePredictionMarket, "message", msg.ID)
	fail := func(err error) bool {
		log.Warn("create prediction market failed", "error", err)
		reply(ctx, cb, errorContent(ActionCreatePredictionMarket, "Error creating prediction market: ", err))
		return false
	}

	contract := rt.GetSetting(config.SettingPredictionMarket)
	if contract == "" {
		return fail(xerrors.New(xerrors.CodeConfigMissing, config.SettingPredictionMarket+" is not configured"))
	}
	s, err := a.plugin.connect(rt)
	if err != nil {
		return fail(err)
	}

	current, err := composeState(ctx, rt, msg, state)
	if err != nil {
		return fail(err)
	}

	var content PredictionMarketContent
	if err := generateContent(ctx, rt, current, predictionMarketTemplate, predictionMarketSchema, &content); err != nil {
		if !isInvalidContent(err) {
			return fail(err)
		}
		log.Debug("prediction market content rejected", "error", err)
		return fail(xerrors.Wrap(xerrors.CodeInvalidContent, err, "Invalid prediction market content"))
	}

	creator := content.Creator()
	fn := web3.NewEntryFunction(contract, marketModule, marketFunction, content.MarketQuestion, creator)
	result, explorerURL, err := a.plugin.submit(ctx, s, ActionCreatePredictionMarket, fn, &content)
	if err != nil {
		return fail(err)
	}

	marketURL := MarketURL(content.MarketQuestion)
	log.Debug("prediction market created", "hash", result.Hash, "question", content.MarketQuestion, "creator", creator, "explorer", explorerURL)
	reply(ctx, cb, agent.Content{
		Text:   "Successfully created prediction market!\nview market: " + marketURL + "\nView on Explorer: " + explorerURL,
		Action: ActionCreatePredictionMarket,
		Fields: map[string]any{
			"success":        true,
			"hash":           result.Hash,
			"marketQuestion": content.MarketQuestion,
			"creator":        creator,
			"explorerUrl":    explorerURL,
			"marketUrl":      marketURL,
			"slug":           Slug(content.MarketQuestion),
		},
	})
	return true
}

func (a *PredictionMarketAction) Examples() [][]agent.ActionExample {
	pairs := [][2]string{
		{"Will Bitcoin hit $100k in 2024? 🚀", "Creating prediction market for Bitcoin price..."},
		{"Predicting Ethereum's price after next halving 📈", "Launching prediction market for Ethereum price..."},
		{"Solana chances of flipping Ethereum this year?", "Creating prediction market for Solana vs Ethereum..."},
		{"Odds of Cardano reaching top 3 cryptocurrencies?", "Setting up prediction market for Cardano ranking..."},
		{"Will Base blockchain become a major L2 solution?", "Creating prediction market for Base blockchain adoption..."},
		{"Predict Binance's regulatory outcome in 2024", "Launching prediction market for Binance regulations..."},
		{"Chances of Ripple winning SEC lawsuit completely?", "Creating prediction market for Ripple legal case..."},
		{"Will Polygon merge with another blockchain ecosystem?", "Setting up prediction market for Polygon ecosystem..."},
		{"Predicting market cap of emerging altcoins", "Launching prediction market for altcoin market cap..."},
		{"Will AI crypto projects dominate next bull run?", "Creating prediction market for AI crypto trends..."},
		{"Odds of Bitcoin ETF full mainstream adoption", "Setting up prediction market for Bitcoin ETF..."},
		{"Predicting Tether's market dynamics in 2024", "Launching prediction market for Tether..."},
		{"Will decentralized exchanges overtake centralized ones?", "Creating prediction market for DEX vs CEX..."},
		{"Predict Layer 2 blockchain market leadership", "Setting up prediction market for Layer 2 blockchain..."},
		{"Chances of major crypto regulation changes?", "Creating prediction market for crypto regulations..."},
		{"Will Web3 gaming platforms gain significant traction?", "Launching prediction market for Web3 gaming..."},
		{"Predicting DeFi total value locked trends", "Creating prediction market for DeFi TVL..."},
		{"Odds of another major crypto exchange collapse?", "Setting up prediction market for crypto exchange risk..."},
		{"Will quantum computing impact blockchain security?", "Creating prediction market for quantum blockchain impact..."},
		{"Predicting next big blockchain innovation?", "Launching prediction market for blockchain innovation..."},
	}
	examples := make([][]agent.ActionExample, 0, len(pairs))
	for _, p := range pairs {
		examples = append(examples, []agent.ActionExample{
			{User: "{{user1}}", Content: agent.Content{Text: p[0]}},
			{User: "{{user2}}", Content: agent.Content{Text: p[1], Action: ActionCreatePredictionMarket}},
		})
	}
	return examples
}
