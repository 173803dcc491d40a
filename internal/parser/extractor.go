package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/retail-session-scraper/internal/models"
)

// HTMLExtractor reads records out of rendered HTML with goquery. It never
// fails on a missing field; records it cannot identify are dropped.
type HTMLExtractor struct {
	sel       *compiled
	idAttr    string
	idPattern *regexp.Regexp
}

// NewHTMLExtractor compiles the selectors. idPattern, when set, recovers a
// product id from a result link whose tile carries no id attribute; its first
// capture group is the id.
func NewHTMLExtractor(s Selectors, idPattern *regexp.Regexp) (*HTMLExtractor, error) {
	sel, err := compile(s)
	if err != nil {
		return nil, err
	}
	return &HTMLExtractor{sel: sel, idAttr: s.ResultIDAttr, idPattern: idPattern}, nil
}

func parseDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

func (e *HTMLExtractor) SearchResults(html, pageURL string) ([]models.SearchResult, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return nil, err
	}

	base, _ := url.Parse(pageURL)
	results := make([]models.SearchResult, 0)
	seen := make(map[string]bool)

	doc.FindMatcher(e.sel.resultItem).Each(func(i int, s *goquery.Selection) {
		href, _ := s.FindMatcher(e.sel.resultLink).First().Attr("href")
		link := resolve(base, href)

		id := ""
		if e.idAttr != "" {
			id = strings.TrimSpace(s.AttrOr(e.idAttr, ""))
		}
		if id == "" {
			id = e.idFromURL(link)
		}

		title := cleanText(firstText(s, e.sel.resultTitle))
		if id == "" || title == "" || seen[id] {
			return
		}
		seen[id] = true

		result := models.SearchResult{
			ID:       id,
			URL:      link,
			Title:    title,
			Position: len(results) + 1,
		}
		result.Price, _ = parsePrice(firstText(s, e.sel.resultPrice))
		result.Rating = parseRating(firstText(s, e.sel.resultRating))
		result.ReviewCount = parseCount(firstText(s, e.sel.resultReviews))
		if src, ok := s.FindMatcher(e.sel.resultImage).First().Attr("src"); ok {
			result.Image = src
		}

		results = append(results, result)
	})

	return results, nil
}

// Product extracts a product page. It returns ErrNoTitle when the page has
// no product title, which is how a missing or removed product renders.
func (e *HTMLExtractor) Product(html, pageURL, id string) (*models.Product, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return nil, err
	}

	title := cleanText(firstText(doc.Selection, e.sel.productTitle))
	if title == "" {
		return nil, ErrNoTitle
	}

	product := models.NewProduct(id)
	product.URL = pageURL
	product.Title = title
	product.Brand = brand(doc.FindMatcher(e.sel.productBrand).First().Text())
	product.Price, product.Currency = parsePrice(firstText(doc.Selection, e.sel.productPrice))
	product.Rating = parseRating(firstText(doc.Selection, e.sel.productRating))
	product.ReviewCount = parseCount(firstText(doc.Selection, e.sel.productReviews))
	product.Available = available(firstText(doc.Selection, e.sel.productAvailability), product.Price != nil)
	product.Description = cleanText(doc.FindMatcher(e.sel.productDescription).First().Text())
	product.Images = e.images(doc)

	return product, nil
}

func (e *HTMLExtractor) Categories(html, pageURL string) ([]models.Category, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return nil, err
	}

	base, _ := url.Parse(pageURL)
	categories := make([]models.Category, 0)
	seen := make(map[string]bool)

	doc.FindMatcher(e.sel.categoryLink).Each(func(i int, s *goquery.Selection) {
		name := cleanText(s.Text())
		href, ok := s.Attr("href")
		if name == "" || !ok || strings.HasPrefix(href, "javascript:") || href == "#" {
			return
		}

		link := resolve(base, href)
		if seen[link] {
			return
		}
		seen[link] = true

		categories = append(categories, models.Category{Name: name, URL: link})
	})

	return categories, nil
}

func (e *HTMLExtractor) FilterLabels(html string) ([]string, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return nil, err
	}

	labels := make([]string, 0)
	seen := make(map[string]bool)

	doc.FindMatcher(e.sel.filterLabel).Each(func(i int, s *goquery.Selection) {
		label := cleanText(s.Text())
		if label == "" || seen[label] {
			return
		}
		seen[label] = true
		labels = append(labels, label)
	})

	return labels, nil
}

func (e *HTMLExtractor) images(doc *goquery.Document) []string {
	images := make([]string, 0)

	doc.FindMatcher(e.sel.productImages).Each(func(i int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && src != "" {
			images = append(images, strings.Replace(src, "_AC_US40_", "_AC_SL1500_", 1))
		}
	})

	if len(images) == 0 {
		main := doc.FindMatcher(e.sel.productMainImage).First()
		if src, ok := main.Attr("data-old-hires"); ok && src != "" {
			images = append(images, src)
		} else if src, ok := main.Attr("src"); ok && src != "" {
			images = append(images, src)
		}
	}

	return images
}

func (e *HTMLExtractor) idFromURL(link string) string {
	if e.idPattern == nil || link == "" {
		return ""
	}
	m := e.idPattern.FindStringSubmatch(link)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// firstText returns the text of the first element matched by the earliest
// group of sel that yields any text.
func firstText(s *goquery.Selection, sel selector) string {
	for _, g := range sel.groups {
		if text := strings.TrimSpace(s.FindMatcher(g).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

var whitespace = regexp.MustCompile(`\s+`)

func cleanText(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func brand(s string) string {
	s = cleanText(s)
	for _, prefix := range []string{"Brand: ", "Marke: ", "Visit the ", "Besuchen Sie den "} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimSuffix(s, " Store")
	s = strings.TrimSuffix(s, "-Store")
	return strings.TrimSpace(s)
}

var unavailableMarkers = []string{
	"currently unavailable",
	"out of stock",
	"derzeit nicht verfügbar",
	"nicht auf lager",
	"нет в наличии",
}

func available(text string, hasPrice bool) bool {
	text = strings.ToLower(text)
	for _, marker := range unavailableMarkers {
		if strings.Contains(text, marker) {
			return false
		}
	}
	return text != "" || hasPrice
}
