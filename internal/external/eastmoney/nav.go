package eastmoney

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/fundscope/internal/contracts"
	"github.com/wonny/fundscope/internal/fetch"
)

// NAVProviders returns the NAV history sources in fallback order:
// JSON API, F10 HTML table, pingzhongdata trend script
func (c *Client) NAVProviders() []fetch.Provider[contracts.Series] {
	return []fetch.Provider[contracts.Series]{
		fetch.ProviderFunc[contracts.Series]{ProviderName: SourceNAVAPI, Fn: c.fetchNAVAPI},
		fetch.ProviderFunc[contracts.Series]{ProviderName: SourceNAVTable, Fn: c.fetchNAVTable},
		fetch.ProviderFunc[contracts.Series]{ProviderName: SourceNAVTrend, Fn: c.fetchNAVTrend},
	}
}

// MinPoints rejects series too short for the metrics engine
func MinPoints(n int) fetch.Validator[contracts.Series] {
	return func(s contracts.Series) error {
		if s.Len() < n {
			return fmt.Errorf("%w: %d points, need %d", fetch.ErrInsufficientData, s.Len(), n)
		}
		return nil
	}
}

// --- (1) api.fund.eastmoney.com/f10/lsjz ---

type lsjzResponse struct {
	Data *struct {
		LSJZList []struct {
			FSRQ string `json:"FSRQ"` // 净值日期
			DWJZ string `json:"DWJZ"` // 单位净值
		} `json:"LSJZList"`
	} `json:"Data"`
	ErrCode int    `json:"ErrCode"`
	ErrMsg  string `json:"ErrMsg"`
}

func (c *Client) fetchNAVAPI(ctx context.Context, p fetch.Params) (contracts.Series, error) {
	from, to, err := c.dateRange(p)
	if err != nil {
		return contracts.Series{}, err
	}

	params := url.Values{}
	params.Set("fundCode", p.InstrumentID)
	params.Set("pageIndex", "1")
	params.Set("pageSize", "20000")
	params.Set("startDate", from.Format(dateLayout))
	params.Set("endDate", to.Format(dateLayout))

	body, err := c.get(ctx, c.apiURL+"/f10/lsjz", params, c.f10URL+"/")
	if err != nil {
		return contracts.Series{}, err
	}
	return ParseNAVAPI(p.InstrumentID, body)
}

// ParseNAVAPI parses the lsjz JSON response
func ParseNAVAPI(id string, body []byte) (contracts.Series, error) {
	var resp lsjzResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return contracts.Series{}, parseErr("lsjz json: %v", err)
	}
	if resp.ErrCode != 0 {
		return contracts.Series{}, parseErr("lsjz error %d: %s", resp.ErrCode, resp.ErrMsg)
	}
	if resp.Data == nil {
		return contracts.Series{}, parseErr("lsjz: no Data")
	}

	points := make([]contracts.TimePoint, 0, len(resp.Data.LSJZList))
	for _, row := range resp.Data.LSJZList {
		if pt, ok := navPoint(row.FSRQ, row.DWJZ); ok {
			points = append(points, pt)
		}
	}
	return contracts.NewSeries(id, points), nil
}

// --- (2) fundf10 F10DataApi.aspx?type=lsjz (HTML table inside JS) ---

func (c *Client) fetchNAVTable(ctx context.Context, p fetch.Params) (contracts.Series, error) {
	from, to, err := c.dateRange(p)
	if err != nil {
		return contracts.Series{}, err
	}

	params := url.Values{}
	params.Set("type", "lsjz")
	params.Set("code", p.InstrumentID)
	params.Set("page", "1")
	params.Set("per", "65535")
	params.Set("sdate", from.Format(dateLayout))
	params.Set("edate", to.Format(dateLayout))

	body, err := c.get(ctx, c.f10URL+"/F10DataApi.aspx", params, c.f10URL+"/")
	if err != nil {
		return contracts.Series{}, err
	}
	return ParseNAVTable(p.InstrumentID, body)
}

// ParseNAVTable parses the 净值日期 / 单位净值 columns of the lsjz table
func ParseNAVTable(id string, body []byte) (contracts.Series, error) {
	content, err := apidataContent(body)
	if err != nil {
		return contracts.Series{}, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return contracts.Series{}, parseErr("lsjz table: %v", err)
	}

	rows := doc.Find("tbody tr")
	if rows.Length() == 0 {
		return contracts.Series{}, parseErr("lsjz table has no rows")
	}

	var points []contracts.TimePoint
	rows.Each(func(_ int, tr *goquery.Selection) {
		tds := tr.Find("td")
		if tds.Length() < 2 {
			return // 暂无数据
		}
		if pt, ok := navPoint(tds.Eq(0).Text(), tds.Eq(1).Text()); ok {
			points = append(points, pt)
		}
	})
	return contracts.NewSeries(id, points), nil
}

// --- (3) fund.eastmoney.com/pingzhongdata/{code}.js ---

var netWorthTrendRe = regexp.MustCompile(`(?s)Data_netWorthTrend\s*=\s*(\[.*?\]);`)

func (c *Client) fetchNAVTrend(ctx context.Context, p fetch.Params) (contracts.Series, error) {
	from, to, err := c.dateRange(p)
	if err != nil {
		return contracts.Series{}, err
	}

	body, err := c.get(ctx, fmt.Sprintf("%s/pingzhongdata/%s.js", c.fundURL, p.InstrumentID), nil, c.fundURL+"/")
	if err != nil {
		return contracts.Series{}, err
	}
	s, err := ParseNAVTrend(p.InstrumentID, body)
	if err != nil {
		return contracts.Series{}, err
	}
	// the script always carries the full history
	return s.Since(utcDay(from)).Until(utcDay(to)), nil
}

// ParseNAVTrend parses Data_netWorthTrend ({x: epoch ms, y: NAV})
func ParseNAVTrend(id string, body []byte) (contracts.Series, error) {
	m := netWorthTrendRe.FindSubmatch(body)
	if m == nil {
		return contracts.Series{}, parseErr("Data_netWorthTrend not found")
	}

	var raw []struct {
		X int64   `json:"x"`
		Y float64 `json:"y"`
	}
	if err := json.NewDecoder(bytes.NewReader(m[1])).Decode(&raw); err != nil {
		return contracts.Series{}, parseErr("Data_netWorthTrend: %v", err)
	}

	points := make([]contracts.TimePoint, 0, len(raw))
	for _, r := range raw {
		if r.Y <= 0 {
			continue
		}
		points = append(points, contracts.TimePoint{
			Date:  utcDay(time.UnixMilli(r.X).In(chinaTZ)),
			Value: r.Y,
		})
	}
	return contracts.NewSeries(id, points), nil
}

// navPoint parses one (date, NAV) cell pair; blank or non-positive NAVs are skipped
func navPoint(dateStr, valueStr string) (contracts.TimePoint, bool) {
	d, err := time.Parse(dateLayout, strings.TrimSpace(dateStr))
	if err != nil {
		return contracts.TimePoint{}, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(valueStr), 64)
	if err != nil || v <= 0 {
		return contracts.TimePoint{}, false
	}
	return contracts.TimePoint{Date: d, Value: v}, true
}

// utcDay keeps the calendar date of t at midnight UTC
func utcDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
