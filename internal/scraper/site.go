package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/maltedev/retail-session-scraper/internal/models"
)

const (
	DefaultBaseURL       = "https://www.amazon.de"
	DefaultProductIDExpr = `/(?:dp|gp/product|gp/aw/d)/([A-Z0-9]{10})(?:[/?#]|$)`
)

var bareIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{4,32}$`)

// LocationSelectors drive the delivery-location dialog.
type LocationSelectors struct {
	Open    string
	Input   string
	Submit  string
	Confirm string
}

// Site knows how the target shop lays out its URLs.
type Site struct {
	BaseURL       string
	SearchPath    string
	QueryParam    string
	PageParam     string
	SortParam     string
	PriceMinParam string
	PriceMaxParam string
	ProductPath   string
	ProductID     *regexp.Regexp
	SortOptions   []models.SortOption
	Location      LocationSelectors
}

func DefaultSite() *Site {
	return &Site{
		BaseURL:       DefaultBaseURL,
		SearchPath:    "/s",
		QueryParam:    "k",
		PageParam:     "page",
		SortParam:     "s",
		PriceMinParam: "low-price",
		PriceMaxParam: "high-price",
		ProductPath:   "/dp/%s",
		ProductID:     regexp.MustCompile(DefaultProductIDExpr),
		SortOptions: []models.SortOption{
			{Value: "relevanceblender", Label: "Featured"},
			{Value: "price-asc-rank", Label: "Price: Low to High"},
			{Value: "price-desc-rank", Label: "Price: High to Low"},
			{Value: "review-rank", Label: "Avg. Customer Review"},
			{Value: "date-desc-rank", Label: "Newest Arrivals"},
			{Value: "exact-aware-popularity-rank", Label: "Best Sellers"},
		},
		Location: LocationSelectors{
			Open:    "#nav-global-location-popover-link",
			Input:   "#GLUXZipUpdateInput",
			Submit:  "#GLUXZipUpdate input, #GLUXZipUpdate",
			Confirm: "#GLUXConfirmClose, .a-popover-footer .a-button-primary input",
		},
	}
}

// HomeURL is the shop's landing page, used for warm-up and categories.
func (s *Site) HomeURL() string {
	return strings.TrimRight(s.BaseURL, "/") + "/"
}

// SearchURL builds a result page URL. Page 1 and empty options are left out.
func (s *Site) SearchURL(query string, opts models.SearchOptions) string {
	params := url.Values{}
	params.Set(s.QueryParam, query)

	if opts.Page > 1 {
		params.Set(s.PageParam, strconv.Itoa(opts.Page))
	}
	if opts.Sort != "" {
		params.Set(s.SortParam, opts.Sort)
	}
	if opts.PriceMin != nil {
		params.Set(s.PriceMinParam, formatPrice(*opts.PriceMin))
	}
	if opts.PriceMax != nil {
		params.Set(s.PriceMaxParam, formatPrice(*opts.PriceMax))
	}

	return strings.TrimRight(s.BaseURL, "/") + s.SearchPath + "?" + params.Encode()
}

// ProductURL resolves a product id or product page URL to the URL to load.
// Full URLs must point at the shop's host or one of its subdomains; anything
// else is treated as an id.
func (s *Site) ProductURL(idOrURL string) (string, error) {
	idOrURL = strings.TrimSpace(idOrURL)
	if idOrURL == "" {
		return "", fmt.Errorf("%w: empty product id", ErrInvalidInput)
	}

	if strings.Contains(idOrURL, "://") {
		u, err := url.Parse(idOrURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "", fmt.Errorf("%w: bad product URL %q", ErrInvalidInput, idOrURL)
		}
		if !s.onSite(u) {
			return "", fmt.Errorf("%w: product URL %q is not on %s", ErrInvalidInput, idOrURL, s.BaseURL)
		}
		return u.String(), nil
	}

	if !bareIDPattern.MatchString(idOrURL) {
		return "", fmt.Errorf("%w: bad product id %q", ErrInvalidInput, idOrURL)
	}

	return strings.TrimRight(s.BaseURL, "/") + fmt.Sprintf(s.ProductPath, url.PathEscape(idOrURL)), nil
}

// onSite reports whether u is served by the shop: the base host with an
// optional leading "www." dropped, or a subdomain of it, on the same port.
func (s *Site) onSite(u *url.URL) bool {
	base, err := url.Parse(s.BaseURL)
	if err != nil || base.Hostname() == "" {
		return false
	}
	if u.User != nil || u.Port() != base.Port() {
		return false
	}

	shop := strings.TrimPrefix(strings.ToLower(base.Hostname()), "www.")
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	return host == shop || strings.HasSuffix(host, "."+shop)
}

// ExtractProductID returns the id in a product page URL, or "" when the URL
// is not a product page.
func (s *Site) ExtractProductID(rawURL string) string {
	if s.ProductID == nil {
		return ""
	}
	m := s.ProductID.FindStringSubmatch(rawURL)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func (s *Site) SortCatalog() []models.SortOption {
	return append([]models.SortOption(nil), s.SortOptions...)
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
