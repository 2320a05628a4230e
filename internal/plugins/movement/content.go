package movement

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"ForesightX/internal/agent"
	xerrors "ForesightX/internal/errors"
	"ForesightX/internal/llm"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	callContractTemplate     = mustTemplate("call_contract.tmpl")
	predictionMarketTemplate = mustTemplate("prediction_market.tmpl")
	transferTemplate         = mustTemplate("transfer.tmpl")

	callContractSchema     = mustSchema("call_contract.json")
	predictionMarketSchema = mustSchema("prediction_market.json")
	transferSchema         = mustSchema("transfer.json")
)

func mustTemplate(name string) string {
	raw, err := templateFS.ReadFile("templates/" + name)
	if err != nil {
		panic(fmt.Sprintf("load template %s: %v", name, err))
	}
	return string(raw)
}

func mustSchema(name string) *jsonschema.Schema {
	raw, err := schemaFS.ReadFile("schemas/" + name)
	if err != nil {
		panic(fmt.Sprintf("load schema %s: %v", name, err))
	}
	return jsonschema.MustCompileString(name, string(raw))
}

// ContractCallContent is the structured request extracted for CALL_CONTRACT.
type ContractCallContent struct {
	ContractAddress string `json:"contractAddress"`
	Module          string `json:"module"`
	Function        string `json:"function"`
	Arguments       []any  `json:"arguments"`
}

// FunctionID returns <address>::<module>::<function>.
func (c ContractCallContent) FunctionID() string {
	return fmt.Sprintf("%s::%s::%s", c.ContractAddress, c.Module, c.Function)
}

// PredictionMarketContent is the structured request extracted for CREATE_PREDICTION_MARKET.
type PredictionMarketContent struct {
	MarketQuestion string `json:"marketQuestion"`
	Username       string `json:"username"`
}

// Creator returns the username or "anonymous".
func (c PredictionMarketContent) Creator() string {
	if c.Username == "" {
		return anonymousCreator
	}
	return c.Username
}

// TransferContent is the structured request extracted for TRANSFER_MOVE.
type TransferContent struct {
	Recipient string `json:"recipient"`
	Amount    any    `json:"amount"`
}

// generateContent asks the model for the action content. Output that fails the
// shape check is reported as CodeInvalidContent; model and context errors keep
// their own codes.
func generateContent(ctx context.Context, rt agent.Runtime, state agent.State, template string, schema *jsonschema.Schema, out any) error {
	obj, err := rt.GenerateObject(ctx, agent.ComposeContext(state, template), llm.ModelSmall)
	if err != nil {
		return err
	}
	if err := decodeContent(schema, obj, out); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidContent, err, "generated content failed the shape check")
	}
	return nil
}

func isInvalidContent(err error) bool {
	return xerrors.CodeOf(err) == xerrors.CodeInvalidContent
}

// decodeContent validates obj against schema and decodes it into out.
func decodeContent(schema *jsonschema.Schema, obj map[string]any, out any) error {
	if obj == nil {
		return fmt.Errorf("no content generated")
	}
	if err := schema.Validate(obj); err != nil {
		return err
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(out)
}
