// Package broker provides access to the Tradier brokerage API for
// quotes, option chains, market schedule, and single-leg option orders.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	tradierAPIURL     = "https://api.tradier.com/v1"
	tradierSandboxURL = "https://sandbox.tradier.com/v1"

	defaultHTTPTimeout = 30 * time.Second

	// maxErrorBodyBytes caps how much of an error response body we read
	// into memory for diagnostics.
	maxErrorBodyBytes = 64 * 1024
)

// Order statuses reported by Tradier.
const (
	OrderStatusPending  = "pending"
	OrderStatusOpen     = "open"
	OrderStatusPartial  = "partially_filled"
	OrderStatusFilled   = "filled"
	OrderStatusExpired  = "expired"
	OrderStatusCanceled = "canceled"
	OrderStatusRejected = "rejected"
	OrderStatusError    = "error"
)

// IsTerminalOrderStatus reports whether an order in the given status can
// no longer fill.
func IsTerminalOrderStatus(status string) bool {
	switch strings.ToLower(status) {
	case OrderStatusFilled, OrderStatusExpired, OrderStatusCanceled, OrderStatusRejected, OrderStatusError:
		return true
	}
	return false
}

// APIError represents an HTTP error response from the Tradier API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.Status, e.Body)
}

// TradierAPI is a thin HTTP client for the Tradier brokerage API.
type TradierAPI struct {
	apiKey    string
	accountID string
	baseURL   string
	client    *http.Client
}

// NewTradierAPI creates a client against the production or sandbox
// endpoint depending on the sandbox flag.
func NewTradierAPI(apiKey, accountID string, sandbox bool) *TradierAPI {
	baseURL := tradierAPIURL
	if sandbox {
		baseURL = tradierSandboxURL
	}
	return NewTradierAPIWithBaseURL(apiKey, accountID, baseURL)
}

// NewTradierAPIWithBaseURL creates a client against an arbitrary base
// URL. Used by tests to point at an httptest server.
func NewTradierAPIWithBaseURL(apiKey, accountID, baseURL string) *TradierAPI {
	return &TradierAPI{
		apiKey:    apiKey,
		accountID: accountID,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetHTTPClient overrides the underlying HTTP client.
func (t *TradierAPI) SetHTTPClient(c *http.Client) {
	if c != nil {
		t.client = c
	}
}

// singleOrArray handles Tradier's habit of returning a JSON object when
// a collection has one element and an array when it has several.
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == `""` {
		*s = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var arr []T
		if err := json.Unmarshal(data, &arr); err != nil {
			return err
		}
		*s = arr
		return nil
	}
	var single T
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*s = []T{single}
	return nil
}

// Greeks holds the per-contract greeks block returned when
// greeks=true is requested on a chain.
type Greeks struct {
	Delta     float64 `json:"delta"`
	Gamma     float64 `json:"gamma"`
	Theta     float64 `json:"theta"`
	Vega      float64 `json:"vega"`
	MidIV     float64 `json:"mid_iv"`
	SmvVol    float64 `json:"smv_vol"`
	UpdatedAt string  `json:"updated_at"`
}

// Option is a single contract row from an option chain response.
type Option struct {
	Symbol         string  `json:"symbol"`
	Description    string  `json:"description"`
	Underlying     string  `json:"underlying"`
	Strike         float64 `json:"strike"`
	OptionType     string  `json:"option_type"`
	ExpirationDate string  `json:"expiration_date"`
	Last           float64 `json:"last"`
	Bid            float64 `json:"bid"`
	Ask            float64 `json:"ask"`
	Volume         int64   `json:"volume"`
	OpenInterest   int64   `json:"open_interest"`
	Greeks         *Greeks `json:"greeks,omitempty"`
}

// MidPrice returns the bid/ask midpoint.
func (o Option) MidPrice() float64 {
	return (o.Bid + o.Ask) / 2
}

type chainResponse struct {
	Options struct {
		Option singleOrArray[Option] `json:"option"`
	} `json:"options"`
}

// QuoteItem is a single underlying quote.
type QuoteItem struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Volume int64   `json:"volume"`
}

type quotesResponse struct {
	Quotes struct {
		Quote singleOrArray[QuoteItem] `json:"quote"`
	} `json:"quotes"`
}

type expirationsResponse struct {
	Expirations struct {
		Date singleOrArray[string] `json:"date"`
	} `json:"expirations"`
}

// Balance is the subset of the account balance payload the bot uses.
type Balance struct {
	TotalEquity   float64 `json:"total_equity"`
	OptionBP      float64 `json:"option_buying_power"`
	TotalCash     float64 `json:"total_cash"`
	PendingOrders int     `json:"pending_orders_count"`
}

type balanceResponse struct {
	Balances struct {
		TotalEquity float64 `json:"total_equity"`
		TotalCash   float64 `json:"total_cash"`
		Margin      *struct {
			OptionBuyingPower float64 `json:"option_buying_power"`
		} `json:"margin"`
		Cash *struct {
			CashAvailable float64 `json:"cash_available"`
		} `json:"cash"`
		PendingOrdersCount int `json:"pending_orders_count"`
	} `json:"balances"`
}

// MarketClock describes the current market session state.
type MarketClock struct {
	Clock struct {
		Date        string `json:"date"`
		State       string `json:"state"`
		Description string `json:"description"`
		NextChange  string `json:"next_change"`
		NextState   string `json:"next_state"`
	} `json:"clock"`
}

// MarketDay is a single day from the market calendar.
type MarketDay struct {
	Date   string `json:"date"`
	Status string `json:"status"`
}

type calendarResponse struct {
	Calendar struct {
		Month int `json:"month"`
		Year  int `json:"year"`
		Days  struct {
			Day singleOrArray[MarketDay] `json:"day"`
		} `json:"days"`
	} `json:"calendar"`
}

// Order is the order payload returned by order placement and status
// lookups.
type Order struct {
	ID           int     `json:"id"`
	Status       string  `json:"status"`
	Symbol       string  `json:"symbol"`
	OptionSymbol string  `json:"option_symbol"`
	Side         string  `json:"side"`
	Quantity     float64 `json:"quantity"`
	Price        float64 `json:"price"`
	AvgFillPrice float64 `json:"avg_fill_price"`
	ExecQuantity float64 `json:"exec_quantity"`
	CreateDate   string  `json:"create_date"`
	Tag          string  `json:"tag"`
	ReasonDesc   string  `json:"reason_description"`
}

type orderResponse struct {
	Order Order `json:"order"`
}

// GetQuote returns the quote for a single symbol.
func (t *TradierAPI) GetQuote(ctx context.Context, symbol string) (*QuoteItem, error) {
	params := url.Values{}
	params.Set("symbols", symbol)

	var resp quotesResponse
	if err := t.makeRequestCtx(ctx, http.MethodGet, "/markets/quotes?"+params.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}
	if len(resp.Quotes.Quote) == 0 {
		return nil, fmt.Errorf("no quote returned for %s", symbol)
	}
	return &resp.Quotes.Quote[0], nil
}

// GetExpirations returns the available expiration dates for a symbol in
// YYYY-MM-DD order as returned by the API.
func (t *TradierAPI) GetExpirations(ctx context.Context, symbol string) ([]string, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("includeAllRoots", "true")

	var resp expirationsResponse
	if err := t.makeRequestCtx(ctx, http.MethodGet, "/markets/options/expirations?"+params.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get expirations for %s: %w", symbol, err)
	}
	return resp.Expirations.Date, nil
}

// GetOptionChain returns the full chain for one expiration, greeks
// included.
func (t *TradierAPI) GetOptionChain(ctx context.Context, symbol, expiration string) ([]Option, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("expiration", expiration)
	params.Set("greeks", "true")

	var resp chainResponse
	if err := t.makeRequestCtx(ctx, http.MethodGet, "/markets/options/chains?"+params.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get option chain for %s %s: %w", symbol, expiration, err)
	}
	return resp.Options.Option, nil
}

// GetBalance returns account equity and option buying power.
func (t *TradierAPI) GetBalance(ctx context.Context) (*Balance, error) {
	var resp balanceResponse
	endpoint := fmt.Sprintf("/accounts/%s/balances", t.accountID)
	if err := t.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get account balance: %w", err)
	}

	b := &Balance{
		TotalEquity:   resp.Balances.TotalEquity,
		TotalCash:     resp.Balances.TotalCash,
		PendingOrders: resp.Balances.PendingOrdersCount,
	}
	switch {
	case resp.Balances.Margin != nil:
		b.OptionBP = resp.Balances.Margin.OptionBuyingPower
	case resp.Balances.Cash != nil:
		b.OptionBP = resp.Balances.Cash.CashAvailable
	}
	return b, nil
}

// GetMarketClock returns the current market clock. With delayed true
// the request is served from cached data, which is fine for schedule
// checks.
func (t *TradierAPI) GetMarketClock(ctx context.Context, delayed bool) (*MarketClock, error) {
	endpoint := "/markets/clock"
	if delayed {
		endpoint += "?delayed=true"
	}
	var resp MarketClock
	if err := t.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get market clock: %w", err)
	}
	return &resp, nil
}

// IsTradingDay reports whether today appears on the market calendar as
// an open day.
func (t *TradierAPI) IsTradingDay(ctx context.Context, now time.Time) (bool, error) {
	params := url.Values{}
	params.Set("month", strconv.Itoa(int(now.Month())))
	params.Set("year", strconv.Itoa(now.Year()))

	var resp calendarResponse
	if err := t.makeRequestCtx(ctx, http.MethodGet, "/markets/calendar?"+params.Encode(), nil, &resp); err != nil {
		return false, fmt.Errorf("failed to get market calendar: %w", err)
	}

	today := now.Format("2006-01-02")
	for _, day := range resp.Calendar.Days.Day {
		if day.Date == today {
			return day.Status == "open", nil
		}
	}
	return false, nil
}

// PlaceBuyToOpenOrder places a limit buy-to-open order for a single
// option contract.
func (t *TradierAPI) PlaceBuyToOpenOrder(ctx context.Context, optionSymbol string, quantity int, limitPrice float64, duration, tag string) (*Order, error) {
	return t.placeOptionOrder(ctx, "buy_to_open", optionSymbol, quantity, limitPrice, duration, tag)
}

// PlaceSellToCloseOrder places a limit sell-to-close order for a single
// option contract.
func (t *TradierAPI) PlaceSellToCloseOrder(ctx context.Context, optionSymbol string, quantity int, limitPrice float64, duration, tag string) (*Order, error) {
	return t.placeOptionOrder(ctx, "sell_to_close", optionSymbol, quantity, limitPrice, duration, tag)
}

func (t *TradierAPI) placeOptionOrder(ctx context.Context, side, optionSymbol string, quantity int, limitPrice float64, duration, tag string) (*Order, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("invalid quantity %d: must be positive", quantity)
	}
	if limitPrice <= 0 {
		return nil, fmt.Errorf("invalid limit price %.2f: must be positive", limitPrice)
	}
	underlying, err := ExtractUnderlyingFromOSI(optionSymbol)
	if err != nil {
		return nil, fmt.Errorf("invalid option symbol %q: %w", optionSymbol, err)
	}

	params := url.Values{}
	params.Set("class", "option")
	params.Set("symbol", underlying)
	params.Set("option_symbol", optionSymbol)
	params.Set("side", side)
	params.Set("quantity", strconv.Itoa(quantity))
	params.Set("type", "limit")
	params.Set("duration", normalizeDuration(duration))
	params.Set("price", fmt.Sprintf("%.2f", limitPrice))
	if tag != "" {
		params.Set("tag", tag)
	}

	var resp orderResponse
	endpoint := fmt.Sprintf("/accounts/%s/orders", t.accountID)
	if err := t.makeRequestCtx(ctx, http.MethodPost, endpoint, params, &resp); err != nil {
		return nil, fmt.Errorf("failed to place %s order for %s: %w", side, optionSymbol, err)
	}
	return &resp.Order, nil
}

// GetOrderStatus looks up a previously placed order by ID.
func (t *TradierAPI) GetOrderStatus(ctx context.Context, orderID int) (*Order, error) {
	var resp orderResponse
	endpoint := fmt.Sprintf("/accounts/%s/orders/%d", t.accountID, orderID)
	if err := t.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get order %d: %w", orderID, err)
	}
	return &resp.Order, nil
}

// CancelOrder cancels an open order.
func (t *TradierAPI) CancelOrder(ctx context.Context, orderID int) error {
	endpoint := fmt.Sprintf("/accounts/%s/orders/%d", t.accountID, orderID)
	if err := t.makeRequestCtx(ctx, http.MethodDelete, endpoint, nil, &struct{}{}); err != nil {
		return fmt.Errorf("failed to cancel order %d: %w", orderID, err)
	}
	return nil
}

func normalizeDuration(duration string) string {
	switch strings.ToLower(duration) {
	case "day", "gtc", "pre", "post":
		return strings.ToLower(duration)
	default:
		return "day"
	}
}

func (t *TradierAPI) makeRequestCtx(ctx context.Context, method, endpoint string, params url.Values, result interface{}) error {
	reqURL := t.baseURL + endpoint

	var body io.Reader
	if params != nil {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Accept", "application/json")
	if params != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		if readErr != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("failed to read error body: %v", readErr)}
		}
		return &APIError{Status: resp.StatusCode, Body: string(bodyBytes)}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
