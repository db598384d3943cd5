package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		base string
		quot string
	}{
		{"BTC/USDT", "BTC", "USDT"},
		{"btc/usdt", "BTC", "USDT"},
		{"ETHUSDT", "ETH", "USDT"},
		{"SOL/USDT:USDT", "SOL", "USDT"},
		{"  doge/usdt  ", "DOGE", "USDT"},
		{"garbage", "", ""},
		{"", "", ""},
	}
	for _, tc := range cases {
		sym := Parse(tc.in)
		assert.Equal(t, tc.base, sym.Base, tc.in)
		assert.Equal(t, tc.quot, sym.Quote, tc.in)
	}
}

func TestFormats(t *testing.T) {
	assert.Equal(t, "BTC/USDT", Normalize("btcusdt"))
	assert.Equal(t, "BTCUSDT", ToExchange("BTC/USDT"))
	assert.Equal(t, "BTC_USDT", ToContract("BTC/USDT"))
	assert.Equal(t, "ETH_USDT", ToContract("ethusdt"))
	// 解析失败的输入走兜底转换
	assert.Equal(t, "GARBAGE", ToContract("garbage"))
	assert.Equal(t, "GARBAGE", ToExchange("garbage"))
	assert.True(t, IsValid("BTC/USDT"))
	assert.False(t, IsValid("weird"))
}
