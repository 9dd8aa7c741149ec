package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// -------------------- Gemini Client --------------------

const (
	defaultModel = "gemini-2.5-flash"

	systemPrompt = "You are a trade surveillance expert. Match trade instructions to orders accurately."
)

type GeminiConfig struct {
	APIKey string
	Model  string
}

// Gemini implements Client and Classifier on the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("oracle: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("oracle: create client: %w", err)
	}
	return &Gemini{client: client, model: cfg.Model}, nil
}

func (g *Gemini) Match(ctx context.Context, req Request) (Response, error) {
	prompt, err := buildMatchPrompt(req)
	if err != nil {
		return Response{}, err
	}

	text, err := g.generate(ctx, prompt)
	if err != nil {
		return Response{}, err
	}
	return ParseResponse(text)
}

// ClassifyDiscrepancy labels a discrepancy as a trading error
// ("actual") or a mis-reported confirmation ("reporting"). Ambiguity
// resolves to actual.
func (g *Gemini) ClassifyDiscrepancy(ctx context.Context, text string) (DiscrepancyClass, error) {
	out, err := g.generate(ctx, buildClassifyPrompt(text))
	if err != nil {
		return "", err
	}

	raw, err := ExtractJSON(out)
	if err != nil {
		return "", err
	}
	var parsed struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if strings.EqualFold(parsed.Type, string(DiscrepancyReporting)) {
		return DiscrepancyReporting, nil
	}
	return DiscrepancyActual, nil
}

func (g *Gemini) generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(float32(0.1)),
	})
	if err != nil {
		return "", fmt.Errorf("oracle: generate: %w", err)
	}
	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty reply", ErrBadResponse)
	}
	return text, nil
}

// -------------------- Prompts --------------------

func buildMatchPrompt(req Request) (string, error) {
	instructions, err := json.MarshalIndent(req.EvidenceInstructions, "", "  ")
	if err != nil {
		return "", fmt.Errorf("oracle: encode request: %w", err)
	}
	orders, err := json.MarshalIndent(req.CandidateOrders, "", "  ")
	if err != nil {
		return "", fmt.Errorf("oracle: encode request: %w", err)
	}

	var b strings.Builder
	b.WriteString("Match the trade instructions below to the available orders.\n\n")
	b.WriteString("**TRADE INSTRUCTIONS:**\n")
	b.Write(instructions)
	b.WriteString("\n\n**AVAILABLE ORDERS:**\n")
	b.Write(orders)
	b.WriteString(`

**MATCHING RULES:**

1. SYMBOL MATCHING - be intelligent about variations:
   "blue jet healthcare" = "BLUEJET", "Energy INVIT" = "ENERGYINF".

2. VALUE-BASED QUANTITY MATCHING: if an instruction says "Worth INR X",
   match orders whose summed quantity*price approximates X.

3. SPLIT EXECUTION: if multiple orders together fulfil one instruction,
   match ALL of them, not just the largest.

4. ORDER STATUS: match regardless of status (Complete, Active,
   Cancelled, Rejected); flag non-Complete statuses for review.

5. PRICE: "market price"/"CMP" matches any actual price but is flagged
   as a discrepancy.

6. BUY/SELL DIRECTION must match exactly.

**RETURN JSON ONLY:**
{
  "matched_order_ids": ["..."],
  "confidence_score": 0-100,
  "reasoning": "...",
  "match_type": "EXACT_MATCH|SPLIT_EXECUTION|PARTIAL_MATCH|OVER_MATCH|NO_MATCH",
  "discrepancies": ["..."],
  "review_required": true/false
}
`)
	return b.String(), nil
}

func buildClassifyPrompt(text string) string {
	return fmt.Sprintf(`Classify the discrepancy below into one of two categories.

ACTUAL - execution or booking does not match the client's instruction
(wrong price/quantity/side/instrument, over/under-fill).

REPORTING - the trade was executed and booked correctly, but the
communicated confirmation misstated price or quantity.

If execution correctness is unclear, classify actual.

Discrepancy:
%q

Respond with ONLY this JSON:
{"type": "actual" or "reporting", "confidence": 0.0 to 1.0}
`, text)
}
