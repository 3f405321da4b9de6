// Package scorer turns raw HTML into a heuristic quality score. It never
// parses a DOM: every signal comes from targeted regular expressions over the
// raw markup. That keeps scoring fast and avoids running a parser over
// attacker-controlled documents.
package scorer

import (
	"math"
	"regexp"
	"strings"

	"github.com/sitegrade/sitegrade/internal/constants"
)

var (
	reTitle       = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	reMetaDesc    = regexp.MustCompile(`(?is)<meta[^>]+name=["']description["'][^>]*content=["'](.*?)["']`)
	reMetaDescRev = regexp.MustCompile(`(?is)<meta[^>]+content=["'](.*?)["'][^>]*name=["']description["']`)
	reCanonical   = regexp.MustCompile(`(?is)<link[^>]+rel=["']canonical["']`)
	reViewport    = regexp.MustCompile(`(?is)<meta[^>]+name=["']viewport["']`)
	reOGTitle     = regexp.MustCompile(`(?is)<meta[^>]+property=["']og:title["']`)
	reOGDesc      = regexp.MustCompile(`(?is)<meta[^>]+property=["']og:description["']`)
	reNoindex     = regexp.MustCompile(`(?is)<meta[^>]+name=["']robots["'][^>]*content=["'][^"']*noindex`)
	reH1          = regexp.MustCompile(`(?is)<h1[\s>]`)
	reImg         = regexp.MustCompile(`(?is)<img[^>]*>`)
	reImgAlt      = regexp.MustCompile(`(?is)alt=["'][^"']+["']`)
	reScript      = regexp.MustCompile(`(?is)<script[^>]*>`)
	reScriptSrc   = regexp.MustCompile(`(?is)src=`)
	reScriptAsync = regexp.MustCompile(`(?is)\b(async|defer)\b`)
	reStylesheet  = regexp.MustCompile(`(?is)<link[^>]+rel=["']stylesheet["']`)
	reAnchor      = regexp.MustCompile(`(?is)<a[\s>]`)
	reForm        = regexp.MustCompile(`(?is)<form[\s>]`)
	reButton      = regexp.MustCompile(`(?is)(<button[\s>]|type=["']submit["']|class=["'][^"']*btn)`)
	reTag         = regexp.MustCompile(`(?is)<[^>]*>`)
	reScriptBlock = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	reStyleBlock  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	reWhitespace  = regexp.MustCompile(`\s+`)
)

// ctaKeywords is the fixed call-to-action vocabulary the funnel score looks
// for in visible text and button labels.
var ctaKeywords = []string{
	"buy now",
	"get started",
	"sign up",
	"signup",
	"subscribe",
	"book a call",
	"book now",
	"contact us",
	"start free",
	"free trial",
	"try it",
	"get a quote",
	"order now",
	"download",
	"join now",
	"learn more",
}

// outcomeKeywords are benefit/outcome words the copy score rewards.
var outcomeKeywords = []string{
	"grow",
	"save",
	"increase",
	"boost",
	"faster",
	"results",
	"proven",
	"guarantee",
	"revenue",
	"conversion",
	"customers",
}

// MiniScores are the four independent sub-scores, each clamped to [0,100].
type MiniScores struct {
	SEO    int `json:"seo"`
	Funnel int `json:"funnel"`
	Copy   int `json:"copy"`
	Speed  int `json:"speed"`
}

// Analysis carries the raw signals the scores were derived from.
type Analysis struct {
	Title               string  `json:"title"`
	TitleLength         int     `json:"title_length"`
	HasMetaDescription  bool    `json:"has_meta_description"`
	DescriptionLength   int     `json:"description_length"`
	HasCanonical        bool    `json:"has_canonical"`
	HasViewport         bool    `json:"has_viewport"`
	HasOGTitle          bool    `json:"has_og_title"`
	HasOGDescription    bool    `json:"has_og_description"`
	HasNoindex          bool    `json:"has_noindex"`
	H1Count             int     `json:"h1_count"`
	ImageCount          int     `json:"image_count"`
	ImagesMissingAlt    int     `json:"images_missing_alt"`
	ScriptCount         int     `json:"script_count"`
	BlockingScriptCount int     `json:"blocking_script_count"`
	StylesheetCount     int     `json:"stylesheet_count"`
	LinkCount           int     `json:"link_count"`
	HasForm             bool    `json:"has_form"`
	HasButton           bool    `json:"has_button"`
	CTAFound            bool    `json:"cta_found"`
	OutcomeFound        bool    `json:"outcome_found"`
	WordCount           int     `json:"word_count"`
	TextRatio           float64 `json:"text_ratio"`
	SizeKB              float64 `json:"size_kb"`
}

// Result is the complete scoring outcome for one page.
type Result struct {
	MiniScores     MiniScores `json:"mini_scores"`
	Overall        int        `json:"overall"`
	Label          string     `json:"label"`
	CriticalIssues []string   `json:"critical_issues"`
	QuickWins      []string   `json:"quick_wins"`
	Analysis       Analysis   `json:"analysis"`
}

// ScoreHTML is a pure function: identical (html, byteCount) inputs always
// yield identical results.
func ScoreHTML(html string, byteCount int64) *Result {
	analysis := analyze(html, byteCount)

	scores := MiniScores{
		SEO:    clamp(scoreSEO(analysis)),
		Funnel: clamp(scoreFunnel(analysis)),
		Copy:   clamp(scoreCopy(analysis)),
		Speed:  clamp(scoreSpeed(analysis)),
	}

	overall := clamp(int(math.Round(
		0.20*float64(scores.SEO) +
			0.25*float64(scores.Funnel) +
			0.25*float64(scores.Copy) +
			0.30*float64(scores.Speed),
	)))

	return &Result{
		MiniScores:     scores,
		Overall:        overall,
		Label:          LabelFor(overall),
		CriticalIssues: buildCriticalIssues(analysis),
		QuickWins:      buildQuickWins(analysis),
		Analysis:       analysis,
	}
}

// LabelFor maps an overall score to its label band.
func LabelFor(overall int) string {
	switch {
	case overall <= 39:
		return constants.LabelDanger
	case overall <= 64:
		return constants.LabelWarning
	case overall <= 79:
		return constants.LabelGood
	default:
		return constants.LabelAmazing
	}
}

func analyze(html string, byteCount int64) Analysis {
	lower := strings.ToLower(html)

	a := Analysis{
		HasCanonical:     reCanonical.MatchString(html),
		HasViewport:      reViewport.MatchString(html),
		HasOGTitle:       reOGTitle.MatchString(html),
		HasOGDescription: reOGDesc.MatchString(html),
		HasNoindex:       reNoindex.MatchString(html),
		H1Count:          len(reH1.FindAllString(html, -1)),
		LinkCount:        len(reAnchor.FindAllString(html, -1)),
		HasForm:          reForm.MatchString(html),
		HasButton:        reButton.MatchString(html),
		SizeKB:           float64(byteCount) / 1024.0,
	}

	if m := reTitle.FindStringSubmatch(html); m != nil {
		a.Title = strings.TrimSpace(reWhitespace.ReplaceAllString(m[1], " "))
		a.TitleLength = len(a.Title)
	}
	if m := reMetaDesc.FindStringSubmatch(html); m != nil {
		a.HasMetaDescription = true
		a.DescriptionLength = len(strings.TrimSpace(m[1]))
	} else if m := reMetaDescRev.FindStringSubmatch(html); m != nil {
		a.HasMetaDescription = true
		a.DescriptionLength = len(strings.TrimSpace(m[1]))
	}

	for _, img := range reImg.FindAllString(html, -1) {
		a.ImageCount++
		if !reImgAlt.MatchString(img) {
			a.ImagesMissingAlt++
		}
	}

	for _, tag := range reScript.FindAllString(html, -1) {
		a.ScriptCount++
		// A script only blocks rendering when it is external and neither
		// async nor deferred.
		if reScriptSrc.MatchString(tag) && !reScriptAsync.MatchString(tag) {
			a.BlockingScriptCount++
		}
	}
	a.StylesheetCount = len(reStylesheet.FindAllString(html, -1))

	text := visibleText(html)
	if text != "" {
		a.WordCount = len(strings.Fields(text))
	}
	if len(html) > 0 {
		a.TextRatio = float64(len(text)) / float64(len(html))
	}

	for _, keyword := range ctaKeywords {
		if strings.Contains(lower, keyword) {
			a.CTAFound = true
			break
		}
	}
	for _, keyword := range outcomeKeywords {
		if strings.Contains(lower, keyword) {
			a.OutcomeFound = true
			break
		}
	}

	return a
}

// visibleText strips script/style blocks and all tags, collapsing whitespace.
func visibleText(html string) string {
	stripped := reScriptBlock.ReplaceAllString(html, " ")
	stripped = reStyleBlock.ReplaceAllString(stripped, " ")
	stripped = reTag.ReplaceAllString(stripped, " ")
	return strings.TrimSpace(reWhitespace.ReplaceAllString(stripped, " "))
}

func scoreSEO(a Analysis) int {
	score := 0
	if a.TitleLength > 0 {
		score += 20
		if a.TitleLength < 30 || a.TitleLength > 60 {
			score -= 5
		}
	}
	if a.HasMetaDescription {
		score += 20
		if a.DescriptionLength < 50 || a.DescriptionLength > 160 {
			score -= 5
		}
	}
	if a.H1Count >= 1 {
		score += 15
	}
	if a.HasCanonical {
		score += 10
	}
	if a.HasViewport {
		score += 5
	}
	if a.HasOGTitle {
		score += 10
	}
	if a.HasOGDescription {
		score += 10
	}
	if a.HasNoindex {
		score -= 20
	}
	if a.ImageCount > 0 && float64(a.ImagesMissingAlt)/float64(a.ImageCount) > 0.4 {
		score -= 10
	} else {
		score += 10
	}
	return score
}

func scoreFunnel(a Analysis) int {
	score := 25
	if a.CTAFound {
		score += 25
	} else {
		score -= 10
	}
	if a.HasForm {
		score += 20
	}
	if a.HasButton {
		score += 15
	}
	if a.LinkCount > 8 {
		score += 10
	}
	return score
}

func scoreCopy(a Analysis) int {
	score := 20
	switch {
	case a.WordCount > 1000:
		score += 40
	case a.WordCount > 600:
		score += 30
	case a.WordCount > 300:
		score += 20
	case a.WordCount > 150:
		score += 10
	default:
		score += 5
	}
	if a.TextRatio > 0.1 {
		score += 10
	}
	if a.OutcomeFound {
		score += 20
	}
	return score
}

func scoreSpeed(a Analysis) int {
	score := 100.0 -
		2.0*a.SizeKB -
		3.0*float64(a.ScriptCount) -
		8.0*float64(a.BlockingScriptCount) -
		2.0*float64(a.StylesheetCount)
	return int(math.Round(score))
}

func buildCriticalIssues(a Analysis) []string {
	var issues []string
	if a.TitleLength == 0 {
		issues = append(issues, "Page has no <title> tag, so search results show nothing meaningful.")
	}
	if a.HasNoindex {
		issues = append(issues, "A noindex directive is blocking this page from search engines entirely.")
	}
	if a.H1Count == 0 {
		issues = append(issues, "No H1 headline found; visitors and crawlers cannot tell what the page is about.")
	}
	if !a.CTAFound && !a.HasForm {
		issues = append(issues, "No call to action or form found; the page gives visitors nothing to do next.")
	}
	if a.BlockingScriptCount > 3 {
		issues = append(issues, "Multiple render-blocking scripts are delaying the first paint of the page.")
	}
	if a.SizeKB > 512 {
		issues = append(issues, "The page weighs over half a megabyte of raw HTML, which is slow on mobile connections.")
	}
	return padFindings(issues, genericIssues)
}

func buildQuickWins(a Analysis) []string {
	var wins []string
	if !a.HasMetaDescription {
		wins = append(wins, "Add a meta description (50-160 characters) to control your search snippet.")
	}
	if !a.HasCanonical {
		wins = append(wins, "Add a canonical link tag to avoid duplicate-content dilution.")
	}
	if !a.HasViewport {
		wins = append(wins, "Add a viewport meta tag so the page renders properly on mobile.")
	}
	if a.ImageCount > 0 && a.ImagesMissingAlt > 0 {
		wins = append(wins, "Add alt text to your images for accessibility and image search.")
	}
	if a.BlockingScriptCount > 0 {
		wins = append(wins, "Add async or defer to external scripts so they stop blocking rendering.")
	}
	if a.WordCount <= 300 {
		wins = append(wins, "Expand the page copy; thin pages rarely rank or convert.")
	}
	if !a.HasOGTitle || !a.HasOGDescription {
		wins = append(wins, "Add Open Graph tags so shared links get a proper preview card.")
	}
	return padFindings(wins, genericWins)
}

var genericIssues = []string{
	"Have the page manually reviewed; automated checks only cover the basics.",
	"Verify the page renders correctly across the devices your visitors actually use.",
	"Check that the page's primary promise matches what your traffic was promised.",
}

var genericWins = []string{
	"Benchmark this page against your three strongest competitors.",
	"Test one alternative headline; it is usually the highest-leverage change.",
	"Ask an outsider to describe what the page offers after five seconds.",
}

// padFindings tops a list up to three entries with generic prompts and caps
// it at three.
func padFindings(findings []string, generic []string) []string {
	for _, g := range generic {
		if len(findings) >= 3 {
			break
		}
		findings = append(findings, g)
	}
	if len(findings) > 3 {
		findings = findings[:3]
	}
	return findings
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
