package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gitlab.com/yelinaung/finance-tracker/internal/logger"
	"google.golang.org/genai"
)

// MaxDescriptionLength is the maximum allowed length for expense descriptions
// embedded in a prompt.
const MaxDescriptionLength = 200

// suggestTimeout bounds a single categorization call.
const suggestTimeout = 10 * time.Second

// DefaultCategories is the category list offered when the caller has none.
var DefaultCategories = []string{
	"Food - Groceries",
	"Food - Dining Out",
	"Transportation",
	"Housing",
	"Utilities",
	"Healthcare",
	"Entertainment",
	"Shopping",
	"Education",
	"Miscellaneous",
}

// CategorySuggestion represents a suggested category for an expense description.
type CategorySuggestion struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// SuggestCategory asks Gemini for the most appropriate category for an
// expense description, restricted to the given list.
func (c *Client) SuggestCategory(ctx context.Context, description string, categories []string) (*CategorySuggestion, error) {
	if c.generator == nil {
		return nil, fmt.Errorf("gemini client not initialized")
	}
	if description == "" {
		return nil, fmt.Errorf("description is required")
	}
	if len(categories) == 0 {
		categories = DefaultCategories
	}

	// Sanitize the description to prevent prompt injection.
	prompt := buildPrompt(SanitizeForPrompt(description, MaxDescriptionLength), categories)

	timeoutCtx, cancel := context.WithTimeout(ctx, suggestTimeout)
	defer cancel()

	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}

	temp := float32(0.3)
	config := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(500),
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{
				{Text: "You are a JSON API. You MUST respond with ONLY valid JSON, no preamble or explanation. Output a single JSON object."},
			},
		},
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"category": {
					Type:        genai.TypeString,
					Enum:        categories,
					Description: "The most appropriate category from the provided list",
				},
				"confidence": {
					Type:        genai.TypeNumber,
					Description: "Confidence score between 0 and 1",
				},
				"reasoning": {
					Type:        genai.TypeString,
					Description: "Brief explanation for the categorization",
				},
			},
			Required: []string{"category", "confidence", "reasoning"},
		},
	}

	resp, err := c.generator.GenerateContent(timeoutCtx, ModelName, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("no response from Gemini")
	}

	fullText := resp.Text()
	if fullText == "" {
		return nil, fmt.Errorf("no text content in response")
	}

	// Gemini sometimes includes preamble even with a JSON response type.
	jsonText := extractJSON(fullText)
	if jsonText == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var suggestion CategorySuggestion
	if err := json.Unmarshal([]byte(jsonText), &suggestion); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	matched := false
	for _, category := range categories {
		if strings.EqualFold(category, suggestion.Category) {
			suggestion.Category = category
			matched = true
			break
		}
	}
	if !matched {
		return nil, fmt.Errorf("suggested category %q not in available categories", suggestion.Category)
	}

	if suggestion.Confidence < 0.0 || suggestion.Confidence > 1.0 {
		return nil, fmt.Errorf("confidence out of range: %f", suggestion.Confidence)
	}

	suggestion.Reasoning = strings.Join(strings.Fields(suggestion.Reasoning), " ")

	logger.Log.Debug().
		Str("category", suggestion.Category).
		Float64("confidence", suggestion.Confidence).
		Msg("Category suggested")
	return &suggestion, nil
}

func buildPrompt(description string, categories []string) string {
	return fmt.Sprintf(`Categorize this expense: "%s"

Available categories:
- %s

Rules:
- Choose the MOST appropriate category from the list
- Higher confidence (0.8-1.0) for obvious categories, lower (0.5-0.7) for ambiguous ones

Return JSON only:
{"category": "exact category name", "confidence": 0.0-1.0, "reasoning": "brief explanation"}`,
		description, strings.Join(categories, "\n- "))
}

// extractJSON extracts a JSON object from text that may contain preamble.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// SanitizeForPrompt sanitizes user input for safe embedding in a prompt:
// quotes are replaced, control characters removed, whitespace normalized,
// and the result truncated to maxLength.
func SanitizeForPrompt(input string, maxLength int) string {
	input = strings.ReplaceAll(input, `"`, `'`)
	input = strings.ReplaceAll(input, "`", "'")
	input = strings.ReplaceAll(input, "\x00", "")
	input = strings.Join(strings.Fields(input), " ")
	if len(input) > maxLength {
		input = strings.TrimSpace(input[:maxLength])
	}
	return input
}
