package extract

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/outbid/outbid/internal/model"
)

// cardSelectors are tried in order. The markup changes periodically, so the
// list carries a current selector, the previous one, and a loose fallback.
var cardSelectors = []string{
	"article.job-tile",
	"section.air3-card-section",
	`article[class*="job"], article[class*="tile"]`,
}

const titleSelector = `h3 a, h2 a, a[href*="/jobs/"]`

var (
	hourlyPattern = regexp.MustCompile(`\$(\d+(?:\.\d+)?)\s*-\s*\$(\d+(?:\.\d+)?)`)
	fixedPattern  = regexp.MustCompile(`\$(\d{1,3}(?:,\d{3})*(?:\.\d+)?)`)
)

const (
	maxTags            = 6
	maxDescriptionSize = 500
)

// Extractor parses search result HTML into postings.
type Extractor struct {
	baseURL string
	logger  *slog.Logger
}

// New creates an extractor. Relative posting links are prefixed with baseURL.
func New(baseURL string, logger *slog.Logger) *Extractor {
	return &Extractor{baseURL: strings.TrimSuffix(baseURL, "/"), logger: logger}
}

// Postings parses html and returns every complete job card. Cards missing a
// title or link are skipped, never fatal.
func (e *Extractor) Postings(html string) ([]model.Posting, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var cards *goquery.Selection
	for _, sel := range cardSelectors {
		cards = doc.Find(sel)
		if cards.Length() > 0 {
			break
		}
	}
	if cards == nil || cards.Length() == 0 {
		return nil, nil
	}

	now := time.Now()
	var postings []model.Posting
	skipped := 0
	cards.Each(func(_ int, card *goquery.Selection) {
		p, ok := e.posting(card, now)
		if !ok {
			skipped++
			return
		}
		postings = append(postings, p)
	})
	if skipped > 0 {
		e.logger.Debug("skipped incomplete cards", "count", skipped)
	}
	return postings, nil
}

func (e *Extractor) posting(card *goquery.Selection, now time.Time) (model.Posting, bool) {
	link := card.Find(titleSelector).First()
	title := strings.TrimSpace(link.Text())
	href, _ := link.Attr("href")
	if title == "" || href == "" {
		return model.Posting{}, false
	}
	if strings.HasPrefix(href, "/") {
		href = e.baseURL + href
	}

	p := model.Posting{
		ID:           postingID(href),
		Title:        title,
		Link:         href,
		DiscoveredAt: now,
	}

	text := card.Text()
	p.BudgetMin, p.BudgetMax, p.RateType = parseBudget(text)
	p.ExperienceLevel = parseExperience(text)
	p.PostedLabel = strings.TrimSpace(card.Find("small, time, span[data-test='posted-on']").First().Text())

	card.Find("a[data-test='token'], .air3-token, span.skill").EachWithBreak(func(_ int, tag *goquery.Selection) bool {
		t := strings.TrimSpace(tag.Text())
		if t != "" {
			p.Tags = append(p.Tags, t)
		}
		return len(p.Tags) < maxTags
	})

	desc := strings.TrimSpace(card.Find("p, div.job-description, span[data-test='job-description-text']").First().Text())
	if len(desc) > maxDescriptionSize {
		desc = desc[:maxDescriptionSize]
	}
	p.Description = desc

	return p, true
}

// postingID derives a stable identifier from the canonical link.
func postingID(link string) string {
	sum := md5.Sum([]byte(link))
	return hex.EncodeToString(sum[:])
}

// parseBudget reads the price fragment of a card. An hourly range like
// "$15.00 - $30.00" wins over a fixed price like "$1,500".
func parseBudget(text string) (min, max int, rate model.RateType) {
	if m := hourlyPattern.FindStringSubmatch(text); m != nil {
		lo, _ := strconv.ParseFloat(m[1], 64)
		hi, _ := strconv.ParseFloat(m[2], 64)
		return int(lo), int(hi), model.RateHourly
	}
	if m := fixedPattern.FindStringSubmatch(text); m != nil {
		v, _ := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		return int(v), int(v), model.RateFixed
	}
	return 0, 0, model.RateUnknown
}

var experienceLevels = []string{"Entry level", "Intermediate", "Expert"}

func parseExperience(text string) string {
	for _, level := range experienceLevels {
		if strings.Contains(text, level) {
			return level
		}
	}
	return "Unknown"
}
