package symbol

import (
	"strings"
)

// 中文说明：交易对符号规范化。内部统一使用 BASE/QUOTE 形式，
// 请求行情时再转成交易所拼接格式（BTCUSDT）。

type Symbol struct {
	Base  string
	Quote string
}

// Internal 返回内部统一格式，如 BTC/USDT。
func (s Symbol) Internal() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "/" + s.Quote
}

// Exchange 返回交易所拼接格式，如 BTCUSDT。
func (s Symbol) Exchange() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

// Contract 返回 Gate 合约格式，如 BTC_USDT。
func (s Symbol) Contract() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "_" + s.Quote
}

var quoteCurrencies = []string{"USDT", "USDC", "BUSD", "TUSD", "BTC", "ETH", "BNB"}

// Parse 兼容 BTC/USDT、BTCUSDT、BTC/USDT:USDT 三种写法。
func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	if parts := strings.SplitN(s, "/", 2); len(parts) == 2 {
		return Symbol{Base: strings.TrimSpace(parts[0]), Quote: strings.TrimSpace(parts[1])}
	}
	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{Base: s[:len(s)-len(quote)], Quote: quote}
		}
	}
	return Symbol{}
}

// Normalize 解析失败时返回空串，调用方据此拒绝请求。
func Normalize(s string) string {
	return Parse(s).Internal()
}

// ToExchange 解析失败时退回去斜杠的大写原文，尽量不挡住行情请求。
func ToExchange(s string) string {
	if ex := Parse(s).Exchange(); ex != "" {
		return ex
	}
	return strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(s, "/", "")))
}

// ToContract 解析失败时把斜杠换成下划线兜底。
func ToContract(s string) string {
	if ct := Parse(s).Contract(); ct != "" {
		return ct
	}
	return strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(s, "/", "_")))
}

func IsValid(s string) bool {
	sym := Parse(s)
	return sym.Base != "" && sym.Quote != ""
}
