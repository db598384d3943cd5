package market

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// 中文说明：行情数据类型。时间戳一律为 Unix 毫秒，与交易所返回一致。

type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

type Candles []Candle

func (c Candle) TimeString() string {
	ts := c.CloseTime
	if ts == 0 {
		ts = c.OpenTime
	}
	if ts <= 0 {
		return "-"
	}
	return time.UnixMilli(ts).UTC().Format("01-02 15:04") + "Z"
}

// Summary 压缩成一行给提示词用：收盘价、区间涨跌幅与高低点。
// 图表渲染失败降级为纯文本分析时就靠这一行兜底。
func (cs Candles) Summary(interval string) string {
	if len(cs) == 0 {
		return ""
	}
	first := cs[0]
	last := cs[len(cs)-1]
	base := first.Close
	if base == 0 {
		base = first.Open
	}
	changePct := 0.0
	if base != 0 {
		changePct = (last.Close - base) / base * 100
	}
	low := math.MaxFloat64
	high := -math.MaxFloat64
	for _, bar := range cs {
		if bar.Low < low {
			low = bar.Low
		}
		if bar.High > high {
			high = bar.High
		}
	}
	var sb strings.Builder
	sb.WriteString("close≈" + FormatPrice(last.Close))
	iv := strings.TrimSpace(interval)
	if iv == "" {
		iv = "window"
	}
	if base != 0 {
		sb.WriteString(fmt.Sprintf(" (%+.2f%%/%s)", changePct, iv))
	}
	if low != math.MaxFloat64 && high != -math.MaxFloat64 {
		sb.WriteString(fmt.Sprintf(", 区间 %s~%s", FormatPrice(low), FormatPrice(high)))
	}
	return sb.String()
}

// FormatPrice 按价位选择精度并去掉尾零，小币价格不丢有效位。
func FormatPrice(v float64) string {
	if v == 0 {
		return "0"
	}
	prec := 2
	abs := math.Abs(v)
	switch {
	case abs < 0.01:
		prec = 6
	case abs < 1:
		prec = 4
	case abs < 100:
		prec = 3
	}
	s := strconv.FormatFloat(v, 'f', prec, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	return s
}
