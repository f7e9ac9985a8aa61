package eastmoney

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/fundscope/internal/fetch"
	"github.com/wonny/fundscope/pkg/config"
	"github.com/wonny/fundscope/pkg/httputil"
	"github.com/wonny/fundscope/pkg/logger"
)

// Params keys understood by the providers
const (
	ParamWindow   = "window"    // 3y, 6m ...
	ParamAsOf     = "as_of"     // ranking end date, YYYY-MM-DD
	ParamFundType = "fund_type" // hh, gp, zs, zq, all
	ParamFrom     = "from"      // YYYY-MM-DD
	ParamTo       = "to"        // YYYY-MM-DD
)

// Provider names, reported as Outcome.Source
const (
	SourceFundList   = "eastmoney-fundcode"
	SourceRanking    = "eastmoney-rankhandler"
	SourceNAVAPI     = "eastmoney-lsjz-api"
	SourceNAVTable   = "eastmoney-f10-table"
	SourceNAVTrend   = "eastmoney-pingzhongdata"
	SourceFeePage    = "eastmoney-fund-page"
	SourceFeeProfile = "eastmoney-jbgk"
	SourceHoldings   = "eastmoney-jjcc"
	SourceManager    = "eastmoney-jjjl"
	SourceBenchmark  = "eastmoney-kline"
)

const (
	dateLayout        = "2006-01-02"
	compactDateLayout = "20060102"
)

// chinaTZ: 净值日期 are exchange calendar dates (UTC+8)
var chinaTZ = time.FixedZone("CST", 8*3600)

// Client handles communication with the eastmoney fund sites
// ⭐ SSOT: eastmoney 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	fundURL    string
	f10URL     string
	apiURL     string
	klineURL   string
	now        func() time.Time
}

// NewClient creates a new eastmoney client
func NewClient(httpClient *httputil.Client, cfg config.EastmoneyConfig, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.Component("eastmoney"),
		fundURL:    strings.TrimRight(cfg.FundURL, "/"),
		f10URL:     strings.TrimRight(cfg.F10URL, "/"),
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		klineURL:   strings.TrimRight(cfg.KlineURL, "/"),
		now:        time.Now,
	}
}

// get fetches one page with the Referer the sites expect
func (c *Client) get(ctx context.Context, path string, params url.Values, referer string) ([]byte, error) {
	fullURL := path
	if len(params) > 0 {
		fullURL = fmt.Sprintf("%s?%s", path, params.Encode())
	}

	body, err := c.httpClient.GetWithHeaders(ctx, fullURL, map[string]string{
		"Referer": referer,
	})
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	return body, nil
}

// dateRange resolves from/to params, defaulting to the last three years
func (c *Client) dateRange(p fetch.Params) (time.Time, time.Time, error) {
	to := c.now().In(chinaTZ)
	if v := p.Get(ParamTo); v != "" {
		t, err := time.ParseInLocation(dateLayout, v, chinaTZ)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: %s %q: %v", fetch.ErrInvalidRequest, ParamTo, v, err)
		}
		to = t
	}
	from := to.AddDate(-3, 0, 0)
	if v := p.Get(ParamFrom); v != "" {
		t, err := time.ParseInLocation(dateLayout, v, chinaTZ)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: %s %q: %v", fetch.ErrInvalidRequest, ParamFrom, v, err)
		}
		from = t
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from %s after to %s", fetch.ErrInvalidRequest, from.Format(dateLayout), to.Format(dateLayout))
	}
	return from, to, nil
}

// parseErr wraps fetch.ErrParse so the chain does not retry it
func parseErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", fetch.ErrParse, fmt.Sprintf(format, args...))
}

// apidataRe extracts the HTML payload of `var apidata={ content:"...",records:...}`
var apidataRe = regexp.MustCompile(`(?s)content:"(.*?)",\s*[a-z]+:`)

func apidataContent(body []byte) (string, error) {
	m := apidataRe.FindSubmatch(body)
	if m == nil {
		return "", parseErr("apidata content not found")
	}
	return string(m[1]), nil
}

// parsePercent turns "1.20%（每年）" or "-0.29" into 1.20 / -0.29
var leadingNumberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

func parsePercent(s string) (float64, bool) {
	m := leadingNumberRe.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
