package gate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/antihax/optional"
	gateapi "github.com/gateio/gateapi-go/v7"

	"github.com/m3n89t-max/-chatbot/internal/logger"
	"github.com/m3n89t-max/-chatbot/internal/market"
	symbolpkg "github.com/m3n89t-max/-chatbot/internal/pkg/symbol"
	"github.com/m3n89t-max/-chatbot/internal/scheduler"
)

// 中文说明：Gate 合约行情来源，REST 接口取 K 线与最新价。
// 合约符号用下划线格式（BTC_USDT），结算货币固定 USDT。

const (
	gateSettle          = "usdt"
	gateMaxHistoryLimit = 2000
	defaultGateREST     = "https://api.gateio.ws/api/v4"
)

type Source struct {
	cfg  Config
	rest *gateapi.APIClient
}

var _ market.Source = (*Source)(nil)

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	restClient, err := newRESTClient(final)
	if err != nil {
		return nil, err
	}
	return &Source{cfg: final, rest: restClient}, nil
}

func newRESTClient(cfg Config) (*gateapi.APIClient, error) {
	conf := gateapi.NewConfiguration()
	conf.BasePath = strings.TrimSpace(cfg.RESTBaseURL)
	if conf.BasePath == "" {
		conf.BasePath = defaultGateREST
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	if cfg.ProxyEnabled && cfg.RESTProxyURL != "" {
		proxyURL, err := url.Parse(cfg.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid gate REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	conf.HTTPClient = httpClient
	return gateapi.NewAPIClient(conf), nil
}

func (s *Source) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if s == nil || s.rest == nil {
		return nil, fmt.Errorf("gate source not initialized")
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > gateMaxHistoryLimit {
		limit = gateMaxHistoryLimit
	}
	contract := symbolpkg.ToContract(symbol)
	if contract == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}

	opts := &gateapi.ListFuturesCandlesticksOpts{
		Limit:    optional.NewInt32(int32(limit)),
		Interval: optional.NewString(interval),
	}
	kls, _, err := s.rest.FuturesApi.ListFuturesCandlesticks(ctx, gateSettle, contract, opts)
	if err != nil {
		logger.Errorf("[gate] fetch kline failed %s %s limit=%d: %v", symbol, interval, limit, err)
		return nil, err
	}

	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		openTime := int64(kl.T * 1000)
		closeTime := openTime
		if dur, ok := scheduler.ParseIntervalDuration(interval); ok {
			closeTime = openTime + dur.Milliseconds()
		}
		out = append(out, market.Candle{
			OpenTime:  openTime,
			CloseTime: closeTime,
			Open:      parseFloat(kl.O),
			High:      parseFloat(kl.H),
			Low:       parseFloat(kl.L),
			Close:     parseFloat(kl.C),
			Volume:    parseFloat(kl.Sum),
			Trades:    0,
		})
	}
	if dur, ok := scheduler.ParseIntervalDuration(interval); ok {
		out = scheduler.DropUnclosedKline(out, dur)
	}
	return out, nil
}

func (s *Source) LastPrice(ctx context.Context, symbol string) (float64, error) {
	if s == nil || s.rest == nil {
		return 0, fmt.Errorf("gate source not initialized")
	}
	contract := symbolpkg.ToContract(symbol)
	if contract == "" {
		return 0, fmt.Errorf("symbol is required")
	}
	opts := &gateapi.ListFuturesTickersOpts{
		Contract: optional.NewString(contract),
	}
	tickers, _, err := s.rest.FuturesApi.ListFuturesTickers(ctx, gateSettle, opts)
	if err != nil {
		logger.Errorf("[gate] fetch ticker failed %s: %v", symbol, err)
		return 0, err
	}
	for _, t := range tickers {
		if !strings.EqualFold(strings.TrimSpace(t.Contract), contract) {
			continue
		}
		price := parseFloat(t.Last)
		if price <= 0 {
			return 0, fmt.Errorf("invalid price %q for %s", t.Last, contract)
		}
		return price, nil
	}
	return 0, fmt.Errorf("no ticker returned for %s", contract)
}

func (s *Source) Close() error {
	return nil
}

func parseFloat(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}
