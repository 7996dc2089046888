package flows

import (
	"context"

	"google.golang.org/genai"
)

// genaiGenerator is the production generator over the hosted Gemini API.
// Structured outputs use a JSON response schema so the reply can be
// unmarshaled directly into the flow's output type.
type genaiGenerator struct {
	client *genai.Client
	model  string
}

func (g *genaiGenerator) generate(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	var config *genai.GenerateContentConfig
	if schema != nil {
		config = &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   schema,
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
