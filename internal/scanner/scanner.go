package scanner

import (
	"context"

	"github.com/sitegrade/sitegrade/internal/fetcher"
	"github.com/sitegrade/sitegrade/internal/models"
	"github.com/sitegrade/sitegrade/internal/scorer"
)

// Outcome is the persisted product of a successful scan.
type Outcome struct {
	Overall int
	Label   string
	Preview models.JSON
}

// ScanFunc runs the fetch/score pipeline for one claimed audit.
type ScanFunc func(ctx context.Context, audit *models.Audit) (*Outcome, error)

// Pipeline is the production ScanFunc: fetch the page, score the HTML.
type Pipeline struct {
	fetcher *fetcher.Fetcher
}

// NewPipeline creates the fetch/score pipeline.
func NewPipeline(f *fetcher.Fetcher) *Pipeline {
	return &Pipeline{fetcher: f}
}

// Scan fetches the audit's normalized URL and scores the returned HTML.
func (p *Pipeline) Scan(ctx context.Context, audit *models.Audit) (*Outcome, error) {
	page, err := p.fetcher.Fetch(ctx, audit.NormalizedURL)
	if err != nil {
		return nil, err
	}
	result := scorer.ScoreHTML(page.HTML, page.Bytes)
	return &Outcome{
		Overall: result.Overall,
		Label:   result.Label,
		Preview: BuildPreview(result, page.FinalURL),
	}, nil
}

// BuildPreview flattens a score result into the audit's preview document.
// The preview carries the whole analysis; the read path decides how much of
// it a locked audit may see, and the unlock path materializes the full
// report from it.
func BuildPreview(result *scorer.Result, finalURL string) models.JSON {
	return models.JSON{
		"overall":   result.Overall,
		"label":     result.Label,
		"final_url": finalURL,
		"mini_scores": map[string]interface{}{
			"seo":    result.MiniScores.SEO,
			"funnel": result.MiniScores.Funnel,
			"copy":   result.MiniScores.Copy,
			"speed":  result.MiniScores.Speed,
		},
		"critical_issues": result.CriticalIssues,
		"quick_wins":      result.QuickWins,
		"metrics": map[string]interface{}{
			"title":                 result.Analysis.Title,
			"title_length":          result.Analysis.TitleLength,
			"has_meta_description":  result.Analysis.HasMetaDescription,
			"description_length":    result.Analysis.DescriptionLength,
			"has_canonical":         result.Analysis.HasCanonical,
			"has_viewport":          result.Analysis.HasViewport,
			"has_og_title":          result.Analysis.HasOGTitle,
			"has_og_description":    result.Analysis.HasOGDescription,
			"has_noindex":           result.Analysis.HasNoindex,
			"h1_count":              result.Analysis.H1Count,
			"image_count":           result.Analysis.ImageCount,
			"images_missing_alt":    result.Analysis.ImagesMissingAlt,
			"script_count":          result.Analysis.ScriptCount,
			"blocking_script_count": result.Analysis.BlockingScriptCount,
			"stylesheet_count":      result.Analysis.StylesheetCount,
			"link_count":            result.Analysis.LinkCount,
			"has_form":              result.Analysis.HasForm,
			"has_button":            result.Analysis.HasButton,
			"cta_found":             result.Analysis.CTAFound,
			"outcome_found":         result.Analysis.OutcomeFound,
			"word_count":            result.Analysis.WordCount,
			"text_ratio":            result.Analysis.TextRatio,
			"size_kb":               result.Analysis.SizeKB,
		},
	}
}
