// Package gemini is a model-based extraction strategy backed by the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/JakeFAU/leadership-finder/internal/extract"
	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

const defaultMaxPromptChars = 24000

// Config configures the strategy.
type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL.
	BaseURL        string
	MaxPromptChars int
}

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Strategy asks the model for the leaders named on a page.
type Strategy struct {
	models   generator
	model    string
	maxChars int
	logger   *zap.Logger
}

var _ leadership.CandidateExtractor = (*Strategy)(nil)

// New builds a strategy with a live client.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Strategy, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("gemini: model is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return newStrategy(client.Models, cfg, logger), nil
}

func newStrategy(models generator, cfg Config, logger *zap.Logger) *Strategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxChars := cfg.MaxPromptChars
	if maxChars <= 0 {
		maxChars = defaultMaxPromptChars
	}
	return &Strategy{
		models:   models,
		model:    strings.TrimSpace(cfg.Model),
		maxChars: maxChars,
		logger:   logger.Named("gemini"),
	}
}

type leaderJSON struct {
	Name     string `json:"name"`
	Role     string `json:"role"`
	Email    string `json:"email"`
	LinkedIn string `json:"linkedin"`
}

type responseJSON struct {
	Leaders []leaderJSON `json:"leaders"`
}

var outputSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"leaders": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":     {Type: genai.TypeString},
					"role":     {Type: genai.TypeString},
					"email":    {Type: genai.TypeString},
					"linkedin": {Type: genai.TypeString},
				},
				Required: []string{"name", "role"},
			},
		},
	},
	Required: []string{"leaders"},
}

// Extract returns model-proposed candidates. Any model or parse failure
// yields no candidates.
func (s *Strategy) Extract(ctx context.Context, page leadership.Page) []leadership.Candidate {
	source := page.FinalURL
	if source == "" {
		source = page.URL
	}
	text := s.pageText(page.HTML)
	if text == "" {
		return nil
	}

	resp, err := s.models.GenerateContent(ctx, s.model, genai.Text(buildPrompt(source, text)), &genai.GenerateContentConfig{
		CandidateCount:   1,
		ResponseMIMEType: "application/json",
		ResponseSchema:   outputSchema,
	})
	if err != nil {
		s.logger.Warn("model extraction failed", zap.String("url", source), zap.Error(err))
		return nil
	}
	if resp == nil {
		return nil
	}

	var parsed responseJSON
	if err := json.Unmarshal([]byte(resp.Text()), &parsed); err != nil {
		s.logger.Warn("model returned malformed json", zap.String("url", source), zap.Error(err))
		return nil
	}

	out := make([]leadership.Candidate, 0, len(parsed.Leaders))
	for _, l := range parsed.Leaders {
		name, role := strings.TrimSpace(l.Name), strings.TrimSpace(l.Role)
		if name == "" || role == "" {
			continue
		}
		c := leadership.Candidate{
			Name:      name,
			RoleText:  role,
			SourceURL: source,
			Method:    leadership.MethodModel,
			Evidence:  "model:" + s.model,
			Email:     strings.TrimSpace(l.Email),
		}
		if link := strings.TrimSpace(l.LinkedIn); strings.Contains(strings.ToLower(link), "linkedin.com/in/") {
			c.LinkedIn = link
		}
		out = append(out, c)
	}
	return out
}

func (s *Strategy) pageText(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, iframe").Remove()
	text := strings.Join(extract.Lines(doc), "\n")
	if r := []rune(text); len(r) > s.maxChars {
		text = string(r[:s.maxChars])
	}
	return text
}

func buildPrompt(source, text string) string {
	return strings.TrimSpace(`
You extract company leadership from web page text.

Return ONLY a JSON object {"leaders": [...]} where each leader has:
- name (string; a person's full name)
- role (string; the job title exactly as written)
- email (string; empty if not shown)
- linkedin (string; a linkedin.com/in/ profile URL, empty if not shown)

Rules:
- Only include people who hold an executive or senior management role at the company.
- Ignore testimonials, customers, partners and award mentions.
- Do not invent people or titles that are not in the text.

Page: ` + source + `

Text:
` + text)
}
