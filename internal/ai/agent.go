package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"distro-backoffice/internal/core"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"
)

type AgentService interface {
	InterpretAllocation(ctx context.Context, naturalLanguage string, drivers string, pendingDemand string) (*core.AllocationProposal, error)
}

type Agent struct {
	client *openai.Client
}

func NewAgent(apiKey string) *Agent {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Agent{client: &client}
}

func (a *Agent) InterpretAllocation(ctx context.Context, naturalLanguage string, drivers string, pendingDemand string) (*core.AllocationProposal, error) {
	prompt := fmt.Sprintf(`You are a dispatch planner for a goods distribution company.
Your goal is to interpret a dispatch instruction described in natural language and propose a delivery allocation.
You MUST use the provided driver list and pending demand.
Rules:
1. Use ONLY driver usernames from the list below.
2. Use ONLY product codes that appear in the pending demand.
3. Dates must be in YYYY-MM-DD form; "unspecified" covers orders with no delivery date.
4. Quantities must not exceed the pending demand for the chosen dates.
5. Provide a confidence score (0.0-1.0).
6. Explain your reasoning.

Drivers:
%s

Pending demand by delivery date:
%s

Instruction: %s`, drivers, pendingDemand, naturalLanguage)

	// Dynamically generate the JSON schema from the Go struct
	schemaStruct := generateSchema()
	schemaJSON, err := json.Marshal(schemaStruct)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(schemaJSON, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema to map: %w", err)
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(shared.ChatModelGPT4o),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: param.NewOpt(prompt),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        "allocation_proposal",
					Strict:      param.NewOpt(true),
					Schema:      schemaMap,
					Description: param.NewOpt("A proposed delivery allocation of pending demand to a driver"),
				},
			},
		},
	}

	resp, err := a.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai responses error: %w", err)
	}

	content := resp.OutputText()
	if content == "" {
		return nil, fmt.Errorf("empty response content")
	}

	var proposal core.AllocationProposal
	if err := json.Unmarshal([]byte(content), &proposal); err != nil {
		return nil, fmt.Errorf("failed to parse completion: %w", err)
	}

	proposal.Normalize()
	if err := proposal.Validate(); err != nil {
		return nil, fmt.Errorf("proposal validation failed: %w", err)
	}

	return &proposal, nil
}

func generateSchema() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v core.AllocationProposal
	return reflector.Reflect(v)
}
