// Package parser turns rendered retail pages into best-effort records.
// Markup knowledge lives in Selectors so that layout changes never reach the
// session protocol.
package parser

import (
	"errors"
	"fmt"

	"github.com/andybalholm/cascadia"
)

var (
	ErrNoTitle = errors.New("page has no recognizable product title")
)

// Selectors are CSS selector lists for every field the extractor reads.
// For single-valued fields the comma-separated groups are tried in the order
// written and the first group with text wins. List fields match the union in
// document order.
type Selectors struct {
	ResultItem    string
	ResultIDAttr  string
	ResultLink    string
	ResultTitle   string
	ResultPrice   string
	ResultRating  string
	ResultReviews string
	ResultImage   string

	ProductTitle        string
	ProductBrand        string
	ProductPrice        string
	ProductRating       string
	ProductReviews      string
	ProductAvailability string
	ProductDescription  string
	ProductImages       string
	ProductMainImage    string

	CategoryLink string
	FilterLabel  string
}

func DefaultSelectors() Selectors {
	return Selectors{
		ResultItem:    `div[data-component-type="s-search-result"], div.s-result-item[data-asin]`,
		ResultIDAttr:  "data-asin",
		ResultLink:    `h2 a, a.a-link-normal.s-no-outline`,
		ResultTitle:   `h2 span, h2`,
		ResultPrice:   `.a-price:not(.a-text-price) .a-offscreen, .a-price .a-offscreen, .a-price-whole`,
		ResultRating:  `.a-icon-star-small .a-icon-alt, .a-icon-alt`,
		ResultReviews: `a[href*="customerReviews"] span, .a-size-base.s-underline-text`,
		ResultImage:   `img.s-image`,

		ProductTitle:        `#productTitle, h1#title`,
		ProductBrand:        `#bylineInfo`,
		ProductPrice:        `.a-price.apexPriceToPay .a-offscreen, #corePrice_feature_div .a-offscreen, #priceblock_dealprice, #priceblock_ourprice, .a-price-whole`,
		ProductRating:       `#acrPopover .a-icon-alt, span[data-hook="rating-out-of-text"]`,
		ProductReviews:      `#acrCustomerReviewText`,
		ProductAvailability: `#availability`,
		ProductDescription:  `#feature-bullets, #productDescription`,
		ProductImages:       `#altImages ul li img`,
		ProductMainImage:    `#landingImage, #imgBlkFront`,

		CategoryLink: `#nav-xshop a.nav-a, #hmenu-content a.hmenu-item[href]`,
		FilterLabel:  `#s-refinements .a-section > .a-text-bold, #s-refinements span.a-size-base.a-color-base.a-text-bold`,
	}
}

type compiled struct {
	resultItem    selector
	resultLink    selector
	resultTitle   selector
	resultPrice   selector
	resultRating  selector
	resultReviews selector
	resultImage   selector

	productTitle        selector
	productBrand        selector
	productPrice        selector
	productRating       selector
	productReviews      selector
	productAvailability selector
	productDescription  selector
	productImages       selector
	productMainImage    selector

	categoryLink selector
	filterLabel  selector
}

func compile(s Selectors) (*compiled, error) {
	c := &compiled{}
	fields := []struct {
		name string
		src  string
		dst  *selector
	}{
		{"result item", s.ResultItem, &c.resultItem},
		{"result link", s.ResultLink, &c.resultLink},
		{"result title", s.ResultTitle, &c.resultTitle},
		{"result price", s.ResultPrice, &c.resultPrice},
		{"result rating", s.ResultRating, &c.resultRating},
		{"result reviews", s.ResultReviews, &c.resultReviews},
		{"result image", s.ResultImage, &c.resultImage},
		{"product title", s.ProductTitle, &c.productTitle},
		{"product brand", s.ProductBrand, &c.productBrand},
		{"product price", s.ProductPrice, &c.productPrice},
		{"product rating", s.ProductRating, &c.productRating},
		{"product reviews", s.ProductReviews, &c.productReviews},
		{"product availability", s.ProductAvailability, &c.productAvailability},
		{"product description", s.ProductDescription, &c.productDescription},
		{"product images", s.ProductImages, &c.productImages},
		{"product main image", s.ProductMainImage, &c.productMainImage},
		{"category link", s.CategoryLink, &c.categoryLink},
		{"filter label", s.FilterLabel, &c.filterLabel},
	}

	for _, f := range fields {
		if f.src == "" {
			return nil, fmt.Errorf("%s selector is empty", f.name)
		}
		sel, err := compileSelector(f.src)
		if err != nil {
			return nil, fmt.Errorf("invalid %s selector %q: %w", f.name, f.src, err)
		}
		*f.dst = sel
	}

	return c, nil
}

// selector is a compiled selector list. The embedded union matches every
// group in document order; groups keeps each group in the order written.
type selector struct {
	cascadia.Selector
	groups []cascadia.Selector
}

func compileSelector(src string) (selector, error) {
	group, err := cascadia.ParseGroup(src)
	if err != nil {
		return selector{}, err
	}

	sel := selector{Selector: cascadia.Selector(group.Match)}
	for _, g := range group {
		sel.groups = append(sel.groups, cascadia.Selector(g.Match))
	}
	return sel, nil
}
