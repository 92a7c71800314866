package enrich

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tochukwuani/pharmalink-backend/pkg/db/models"
	pkgerrors "github.com/tochukwuani/pharmalink-backend/pkg/errors"
)

// systemPrompt is the fixed instruction contract for the enrichment model.
// The model must answer with exactly one JSON object and nothing else.
const systemPrompt = `You are a pharmacy inventory enrichment assistant.
You receive one raw inventory row from a vendor spreadsheet, and sometimes a candidate catalog match as a hint.

Rules:
- Extract "amount" (price) and "amount_in_stock" STRICTLY from the raw row. Never invent numbers. Use 0 when the row has no such value.
- Using general pharmaceutical knowledge plus the candidate hint, produce the remaining fields.
- "confidence_score" is an integer 0-100 expressing how certain you are about the match and enrichment.
- Respond with exactly one JSON object, no markdown, no commentary.

Response schema:
{
  "cleaned_name": string,
  "active_ingredient": string,
  "drug_class": string,
  "unit_form": string,
  "is_pom": boolean,
  "amount": number,
  "amount_in_stock": integer,
  "confidence_score": integer
}`

// Result is the parsed model response for one row.
type Result struct {
	CleanedName      string          `json:"cleaned_name"`
	ActiveIngredient string          `json:"active_ingredient"`
	DrugClass        string          `json:"drug_class"`
	UnitForm         string          `json:"unit_form"`
	IsPOM            bool            `json:"is_pom"`
	Amount           decimal.Decimal `json:"amount"`
	AmountInStock    int             `json:"amount_in_stock"`
	ConfidenceScore  int             `json:"confidence_score"`
}

// userPrompt renders one row, plus the optional candidate hint, for the model.
func userPrompt(raw map[string]string, candidate *models.CanonicalProduct) (string, error) {
	rowJSON, err := json.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("encoding raw row: %w", err)
	}

	var b strings.Builder
	b.WriteString("Raw inventory row:\n")
	b.Write(rowJSON)
	if candidate != nil {
		hint := map[string]any{
			"item_name":         candidate.ItemName,
			"active_ingredient": candidate.ActiveIngredient,
			"category":          candidate.Category,
			"is_pom":            candidate.POM,
			"info":              candidate.Info,
		}
		hintJSON, err := json.Marshal(hint)
		if err != nil {
			return "", fmt.Errorf("encoding candidate hint: %w", err)
		}
		b.WriteString("\n\nCandidate catalog match (hint, may be wrong):\n")
		b.Write(hintJSON)
	} else {
		b.WriteString("\n\nNo candidate catalog match was found for this row.")
	}
	return b.String(), nil
}

// parseResult decodes and sanity-checks one model response.
func parseResult(payload json.RawMessage) (Result, error) {
	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "model returned malformed JSON")
	}
	result.CleanedName = strings.TrimSpace(result.CleanedName)
	if result.CleanedName == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeDependency, "model returned an empty cleaned_name")
	}
	if result.ConfidenceScore < 0 {
		result.ConfidenceScore = 0
	}
	if result.ConfidenceScore > 100 {
		result.ConfidenceScore = 100
	}
	return result, nil
}
