package eastmoney

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/wonny/fundscope/internal/contracts"
	"github.com/wonny/fundscope/internal/fetch"
)

// BenchmarkProvider fetches daily index closes from the kline API.
// Params.InstrumentID is the secid, e.g. "1.000300" (沪深300).
func (c *Client) BenchmarkProvider() fetch.Provider[contracts.Series] {
	return fetch.ProviderFunc[contracts.Series]{
		ProviderName: SourceBenchmark,
		Fn: func(ctx context.Context, p fetch.Params) (contracts.Series, error) {
			from, to, err := c.dateRange(p)
			if err != nil {
				return contracts.Series{}, err
			}

			params := url.Values{}
			params.Set("secid", p.InstrumentID)
			params.Set("fields1", "f1,f2,f3,f4,f5,f6")
			params.Set("fields2", "f51,f52,f53,f54,f55,f56")
			params.Set("klt", "101") // 일봉
			params.Set("fqt", "1")
			params.Set("beg", from.Format(compactDateLayout))
			params.Set("end", to.Format(compactDateLayout))

			body, err := c.get(ctx, c.klineURL+"/api/qt/stock/kline/get", params, "https://quote.eastmoney.com/")
			if err != nil {
				return contracts.Series{}, err
			}
			return ParseKline(p.InstrumentID, body)
		},
	}
}

type klineResponse struct {
	Data *struct {
		Code   string   `json:"code"`
		Klines []string `json:"klines"` // "date,open,close,high,low,volume"
	} `json:"data"`
}

// ParseKline parses closes from a kline response
func ParseKline(id string, body []byte) (contracts.Series, error) {
	var resp klineResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return contracts.Series{}, parseErr("kline json: %v", err)
	}
	if resp.Data == nil {
		return contracts.Series{}, parseErr("kline: no data for %s", id)
	}

	points := make([]contracts.TimePoint, 0, len(resp.Data.Klines))
	for _, line := range resp.Data.Klines {
		fields := strings.Split(line, ",")
		if len(fields) < 3 {
			continue
		}
		if pt, ok := navPoint(fields[0], fields[2]); ok {
			points = append(points, pt)
		}
	}
	return contracts.NewSeries(id, points), nil
}
