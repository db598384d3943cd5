package chart

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	talib "github.com/markcheno/go-talib"

	"github.com/m3n89t-max/-chatbot/internal/decision"
	"github.com/m3n89t-max/-chatbot/internal/market"
)

// 中文说明：K 线快照渲染。go-echarts 拼 K 线 + EMA + 成交量页面，
// chromedp 无头截图成 PNG，作为视觉附件随提案请求发给模型。
// 渲染失败由调用方降级为纯文本分析，这里只报错不兜底。

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#34d399"
	colorBear          = "#f87171"
	colorEmaFast       = "#3b82f6"
	colorEmaMid        = "#fbbf24"
	colorEmaSlow       = "#f472b6"

	chartWidthPx   = 1600
	klineHeightPx  = 600
	volumeHeightPx = 260

	minBars = 30
)

type Config struct {
	Bars          int
	EMAFast       int
	EMAMid        int
	EMASlow       int
	RenderTimeout time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Bars <= 0 {
		out.Bars = 120
	}
	if out.EMAFast <= 0 {
		out.EMAFast = 21
	}
	if out.EMAMid <= 0 {
		out.EMAMid = 50
	}
	if out.EMASlow <= 0 {
		out.EMASlow = 200
	}
	if out.RenderTimeout <= 0 {
		out.RenderTimeout = 20 * time.Second
	}
	return out
}

type Renderer struct {
	source market.Source
	cfg    Config
}

var _ decision.ChartProvider = (*Renderer)(nil)

func NewRenderer(source market.Source, cfg Config) (*Renderer, error) {
	if source == nil {
		return nil, fmt.Errorf("chart renderer: 行情来源不能为空")
	}
	return &Renderer{source: source, cfg: cfg.withDefaults()}, nil
}

// Snapshot 拉取最近 K 线并渲染为 data URI 附件。
func (r *Renderer) Snapshot(ctx context.Context, symbol, timeframe string) (decision.ImageAttachment, error) {
	symbol = strings.TrimSpace(symbol)
	timeframe = strings.TrimSpace(timeframe)
	if symbol == "" || timeframe == "" {
		return decision.ImageAttachment{}, fmt.Errorf("symbol/timeframe 不能为空")
	}
	if err := EnsureHeadlessAvailable(ctx); err != nil {
		return decision.ImageAttachment{}, fmt.Errorf("无头浏览器不可用: %w", err)
	}
	candles, err := r.source.FetchHistory(ctx, symbol, timeframe, r.cfg.Bars)
	if err != nil {
		return decision.ImageAttachment{}, fmt.Errorf("拉取 K 线失败: %w", err)
	}
	if len(candles) < minBars {
		return decision.ImageAttachment{}, fmt.Errorf("K 线样本不足: %d < %d", len(candles), minBars)
	}
	html, err := r.buildHTML(symbol, timeframe, candles)
	if err != nil {
		return decision.ImageAttachment{}, err
	}
	png, err := renderHTMLToPNG(ctx, html, chartWidthPx, klineHeightPx+volumeHeightPx, r.cfg.RenderTimeout)
	if err != nil {
		return decision.ImageAttachment{}, fmt.Errorf("截图渲染失败: %w", err)
	}
	desc := fmt.Sprintf("%s %s %s", strings.ToUpper(symbol), timeframe, market.Candles(candles).Summary(timeframe))
	return decision.ImageAttachment{
		DataURI:     "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		Description: desc,
	}, nil
}

func (r *Renderer) buildHTML(symbol, timeframe string, candles []market.Candle) ([]byte, error) {
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)

	minPrice, maxPrice := priceBounds(candles)
	padding := (maxPrice - minPrice) * 0.05
	if padding <= 0 {
		padding = math.Max(1, math.Abs(maxPrice)*0.01)
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", klineHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithTitleOpts(opts.Title{
			Title:      fmt.Sprintf("%s %s", strings.ToUpper(symbol), timeframe),
			Left:       "left",
			Top:        "10",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			Min:       round(minPrice-padding, 4),
			Max:       round(maxPrice+padding, 4),
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)

	xAxis := buildXAxis(candles)
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", buildKlineSeries(candles))

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	emaLine := charts.NewLine()
	emaLine.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	emaLine.SetXAxis(xAxis)
	addEMASeries(emaLine, closes, r.cfg.EMAFast, colorEmaFast, len(candles))
	addEMASeries(emaLine, closes, r.cfg.EMAMid, colorEmaMid, len(candles))
	addEMASeries(emaLine, closes, r.cfg.EMASlow, colorEmaSlow, len(candles))
	kline.Overlap(emaLine)

	volume := buildVolumeChart(xAxis, candles)
	page.AddCharts(kline, volume)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, fmt.Errorf("图表 HTML 渲染失败: %w", err)
	}
	return buf.Bytes(), nil
}

func addEMASeries(line *charts.Line, closes []float64, period int, color string, length int) {
	series := emaSeries(closes, period)
	if len(series) == 0 {
		return
	}
	line.AddSeries(fmt.Sprintf("EMA%d", period), toLineData(series, length),
		charts.WithLineStyleOpts(opts.LineStyle{Color: color, Width: 2}))
}

func emaSeries(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) < period {
		return nil
	}
	raw := talib.Ema(closes, period)
	out := make([]float64, 0, len(raw))
	for _, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) || almostZero(v) {
			continue
		}
		out = append(out, round(v, 4))
	}
	return out
}

func buildXAxis(candles []market.Candle) []string {
	x := make([]string, len(candles))
	for i, c := range candles {
		x[i] = time.UnixMilli(c.CloseTime).UTC().Format("01-02 15:04")
	}
	return x
}

func buildKlineSeries(candles []market.Candle) []opts.KlineData {
	data := make([]opts.KlineData, 0, len(candles))
	for _, c := range candles {
		data = append(data, opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}})
	}
	return data
}

func buildVolumeChart(xAxis []string, candles []market.Candle) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", volumeHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: "Volume", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			SplitNumber: 6,
			AxisLabel:   &opts.AxisLabel{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	vols := make([]opts.BarData, len(candles))
	for i, c := range candles {
		color := colorBear
		if c.Close >= c.Open {
			color = colorBull
		}
		vols[i] = opts.BarData{
			Value:     c.Volume,
			ItemStyle: &opts.ItemStyle{Color: color, Opacity: opts.Float(0.6)},
		}
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("Volume", vols)
	return bar
}

func toLineData(series []float64, length int) []opts.LineData {
	line := make([]opts.LineData, length)
	offset := length - len(series)
	if offset < 0 {
		offset = 0
	}
	for i := 0; i < offset; i++ {
		line[i] = opts.LineData{Value: nil}
	}
	for i := 0; i < len(series) && offset+i < length; i++ {
		line[offset+i] = opts.LineData{Value: series[i]}
	}
	return line
}

func priceBounds(candles []market.Candle) (minVal, maxVal float64) {
	if len(candles) == 0 {
		return 0, 0
	}
	minVal = candles[0].Low
	maxVal = candles[0].High
	for _, c := range candles {
		if c.Low < minVal {
			minVal = c.Low
		}
		if c.High > maxVal {
			maxVal = c.High
		}
	}
	return minVal, maxVal
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}

func almostZero(v float64) bool {
	return math.Abs(v) < 1e-9
}

var (
	headlessOnce sync.Once
	headlessErr  error
)

// EnsureHeadlessAvailable 启动一次无头浏览器探测，失败后整个进程
// 内的图表渲染都直接短路。
func EnsureHeadlessAvailable(ctx context.Context) error {
	headlessOnce.Do(func() {
		targetCtx := ctx
		if targetCtx == nil {
			targetCtx = context.Background()
		}
		parent, cancel := chromedp.NewContext(targetCtx)
		if cancel != nil {
			defer cancel()
		}
		headlessErr = chromedp.Run(parent)
	})
	return headlessErr
}

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int, timeout time.Duration) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, timeout)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}
