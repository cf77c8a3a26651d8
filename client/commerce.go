package client

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"catalog-ingest/config"
	"catalog-ingest/models"
)

// CommerceClient fetches catalog listings and per-product market data
// from the commerce provider.
type CommerceClient struct {
	http     *resty.Client
	pageSize int
	policy   RetryPolicy

	// OnRetry, when set, is invoked once per retried attempt.
	OnRetry func()

	now func() time.Time
}

const catalogPageSize = 100

// NewCommerceClient builds a commerce API client from cfg.
func NewCommerceClient(cfg *config.Config) *CommerceClient {
	httpClient := resty.New().
		SetBaseURL(cfg.CommerceAPIBaseURL).
		SetTimeout(cfg.RequestTimeout).
		SetHeader("User-Agent", cfg.UserAgent)

	return &CommerceClient{
		http:     httpClient,
		pageSize: catalogPageSize,
		policy: RetryPolicy{
			MaxAttempts: cfg.MaxRetries,
			Backoff:     cfg.RetryBackoff,
			BackoffMax:  cfg.RetryBackoffMax,
		},
		now: time.Now,
	}
}

type catalogItem struct {
	ProductID  string `json:"workno"`
	Title      string `json:"work_name"`
	Maker      string `json:"maker_name"`
	Category   string `json:"work_category"`
	ReleasedAt string `json:"regist_date"`
}

type catalogResponse struct {
	Items []catalogItem `json:"items"`
}

// CatalogPage fetches one listing page. The token is a page number;
// an empty token means the first page. A short or empty page ends the
// pass and yields an empty next token.
func (c *CommerceClient) CatalogPage(ctx context.Context, pageToken string) ([]*models.Product, string, error) {
	page := 1
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 1 {
			return nil, "", fmt.Errorf("malformed catalog resume token %q", pageToken)
		}
		page = n
	}

	params := map[string]string{
		"page":     strconv.Itoa(page),
		"per_page": strconv.Itoa(c.pageSize),
	}

	out, err := withRetry(ctx, c.policy, "commerce.catalog", c.OnRetry, func() (*catalogResponse, error) {
		var listing catalogResponse
		if err := c.get(ctx, "/product/list.json", params, &listing); err != nil {
			return nil, err
		}
		return &listing, nil
	})
	if err != nil {
		return nil, "", err
	}

	fetchedAt := c.now()
	products := make([]*models.Product, 0, len(out.Items))
	for _, item := range out.Items {
		if item.ProductID == "" {
			continue
		}
		products = append(products, &models.Product{
			ProductID:     item.ProductID,
			Title:         item.Title,
			Maker:         item.Maker,
			Category:      item.Category,
			ReleaseDate:   item.ReleasedAt,
			LastFetchedAt: fetchedAt,
		})
	}

	next := ""
	if len(out.Items) >= c.pageSize {
		next = strconv.Itoa(page + 1)
	}
	return products, next, nil
}

type productInfoResponse struct {
	ProductID  string `json:"workno"`
	Title      string `json:"work_name"`
	Maker      string `json:"maker_name"`
	Category   string `json:"work_category"`
	ReleasedAt string `json:"regist_date"`

	Price         *float64           `json:"price"`
	PriceUSD      *float64           `json:"price_en"`
	PriceEUR      *float64           `json:"price_eur"`
	CurrencyPrice map[string]float64 `json:"currency_price"`

	DiscountRate  *int     `json:"discount_rate"`
	CampaignID    *int     `json:"campaign_id"`
	SalesCount    *int     `json:"sales_count"`
	DownloadCount *int     `json:"dl_count"`
	WishlistCount *int     `json:"wishlist_count"`
	RankDay       *int     `json:"rank_day"`
	RankWeek      *int     `json:"rank_week"`
	RankMonth     *int     `json:"rank_month"`
	RatingAverage *float64 `json:"rate_average_2dp"`
	RatingCount   *int     `json:"rate_count"`
}

// ProductInfo fetches current market data for one product and returns
// both the catalog fields to merge and an immutable snapshot capture.
func (c *CommerceClient) ProductInfo(ctx context.Context, productID string) (*models.Product, *models.RawSnapshot, error) {
	if productID == "" {
		return nil, nil, fmt.Errorf("product id is required")
	}

	params := map[string]string{"workno": productID}
	out, err := withRetry(ctx, c.policy, "commerce.product", c.OnRetry, func() (*productInfoResponse, error) {
		var info productInfoResponse
		if err := c.get(ctx, "/product.json", params, &info); err != nil {
			return nil, err
		}
		return &info, nil
	})
	if err != nil {
		return nil, nil, err
	}

	fetchedAt := c.now()
	product := &models.Product{
		ProductID:     productID,
		Title:         out.Title,
		Maker:         out.Maker,
		Category:      out.Category,
		ReleaseDate:   out.ReleasedAt,
		LastFetchedAt: fetchedAt,
	}
	return product, out.snapshot(productID, fetchedAt), nil
}

// snapshot maps the provider payload to a capture, keeping only
// positive price observations and clamping out-of-range values.
func (r *productInfoResponse) snapshot(productID string, capturedAt time.Time) *models.RawSnapshot {
	s := &models.RawSnapshot{
		ItemID:         productID,
		Timestamp:      capturedAt,
		RegionalPrices: models.RegionalPrices{},
		CampaignID:     r.CampaignID,
		WishlistCount:  positiveInt(r.WishlistCount),
		RankDay:        positiveInt(r.RankDay),
		RankWeek:       positiveInt(r.RankWeek),
		RankMonth:      positiveInt(r.RankMonth),
		RatingCount:    positiveInt(r.RatingCount),
	}

	putPrice := func(slot string, candidates ...*float64) {
		for _, p := range candidates {
			if p != nil && *p > 0 {
				s.RegionalPrices[slot] = *p
				return
			}
		}
	}
	currency := func(code string) *float64 {
		if p, ok := r.CurrencyPrice[code]; ok {
			return &p
		}
		return nil
	}
	putPrice("JP", currency("JPY"), r.Price)
	putPrice("US", currency("USD"), r.PriceUSD)
	putPrice("EU", currency("EUR"), r.PriceEUR)
	putPrice("CN", currency("CNY"))
	putPrice("TW", currency("TWD"))
	putPrice("KR", currency("KRW"))

	if r.DiscountRate != nil {
		s.DiscountRate = clampInt(*r.DiscountRate, 0, 100)
	}
	if r.RatingAverage != nil && *r.RatingAverage >= 0 && *r.RatingAverage <= 5 {
		s.RatingAverage = r.RatingAverage
	}

	// Explicit sales counters win over the download counter fallback.
	if sales := positiveInt(r.SalesCount); sales != nil {
		s.SalesCount = sales
	} else {
		s.SalesCount = positiveInt(r.DownloadCount)
	}
	return s
}

func positiveInt(v *int) *int {
	if v != nil && *v > 0 {
		return v
	}
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (c *CommerceClient) get(ctx context.Context, path string, params map[string]string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		return Classify(err, 0)
	}
	if resp.IsError() {
		return Classify(nil, resp.StatusCode())
	}
	if err := decodeJSON(resp.Body(), path, out); err != nil {
		return err
	}
	return nil
}
