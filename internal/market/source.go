package market

import "context"

// Source 行情来源。决策侧只做两件事：拉 K 线画图、查最新价对照失效位。
type Source interface {
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	LastPrice(ctx context.Context, symbol string) (float64, error)
	Close() error
}
