package scanning

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model name is configured
const DefaultGeminiModel = "gemini-2.5-flash"

// fieldPrompt asks the model for the same field set the HTTP collaborator returns
const fieldPrompt = `You are reading a photographed expense voucher, receipt or invoice. Carefully read all text in the image and extract:

1. "monto": the final total paid. Only the numeric value, with a dot as decimal separator (e.g. "1250.50").
2. "descripcion": the merchant name followed by a short description of what was bought.
3. "fecha": the transaction date in YYYY-MM-DD format. Printed dates are usually day first (DD/MM/YYYY).
4. "tipo_gasto": one short expense category such as "combustible", "alimentacion", "transporte", "hospedaje", "materiales" or "otros".

Return ONLY valid JSON in this exact format:
{
  "monto": "0.00",
  "descripcion": "Merchant - what was bought",
  "fecha": "YYYY-MM-DD",
  "tipo_gasto": "otros"
}

Important:
- If you cannot find a field, use null for that field
- Do not guess values that are not printed on the voucher
- Do not include any text before or after the JSON`

// GeminiExtractor implements the Extractor interface using Google Gemini
type GeminiExtractor struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiExtractor creates a new GeminiExtractor instance
func NewGeminiExtractor(ctx context.Context, apiKey string, modelName string) (*GeminiExtractor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)

	return &GeminiExtractor{
		client: client,
		model:  model,
	}, nil
}

// Extract sends the payload with the field prompt and parses the reply
func (g *GeminiExtractor) Extract(ctx context.Context, jpeg []byte) (*ExtractedFields, error) {
	// genai.ImageData expects just the format suffix, not the full MIME type
	parts := []genai.Part{
		genai.ImageData("jpeg", jpeg),
		genai.Text(fieldPrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("%w: generating content: %v", ErrExtraction, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: no response from gemini", ErrExtraction)
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	fields, err := parseFieldsJSON(responseText.String())
	if err != nil {
		return nil, fmt.Errorf("%w: parsing gemini reply: %v", ErrExtraction, err)
	}
	return fields, nil
}

// Close closes the Gemini client
func (g *GeminiExtractor) Close() error {
	return g.client.Close()
}
