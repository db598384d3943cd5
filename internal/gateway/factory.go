package gateway

import (
	"fmt"
	"strings"
	"time"

	brcfg "github.com/m3n89t-max/-chatbot/internal/config"
	"github.com/m3n89t-max/-chatbot/internal/gateway/binance"
	"github.com/m3n89t-max/-chatbot/internal/gateway/gate"
	"github.com/m3n89t-max/-chatbot/internal/market"
)

// NewSourceFromConfig 按 market.active_source 选择行情来源。
func NewSourceFromConfig(cfg *brcfg.Config) (market.Source, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	active := cfg.Market.ResolveActiveSource()
	timeout := time.Duration(cfg.Market.FetchTimeoutSeconds) * time.Second
	name := strings.ToLower(active.Name)
	switch name {
	case "", "binance", "binance-futures":
		return binance.New(binance.Config{
			RESTBaseURL:  active.RESTBaseURL,
			HTTPTimeout:  timeout,
			ProxyEnabled: active.Proxy.Enabled,
			RESTProxyURL: active.Proxy.RESTURL,
		})
	case "gate", "gateio":
		return gate.New(gate.Config{
			RESTBaseURL:  active.RESTBaseURL,
			HTTPTimeout:  timeout,
			ProxyEnabled: active.Proxy.Enabled,
			RESTProxyURL: active.Proxy.RESTURL,
		})
	default:
		return nil, fmt.Errorf("unsupported market source: %s", active.Name)
	}
}
