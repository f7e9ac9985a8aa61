package eastmoney

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/fundscope/internal/contracts"
	"github.com/wonny/fundscope/internal/fetch"
)

var (
	rankDatasRe   = regexp.MustCompile(`(?s)datas:\[(.*?)\]`)
	rankRecordsRe = regexp.MustCompile(`allRecords:(\d+)`)
	quotedRe      = regexp.MustCompile(`"([^"]*)"`)
)

// ParseRanking extracts rows and allRecords from rankhandler.aspx.
// Each row is "code,name,abbr,return%,..." in ranking order.
func ParseRanking(window string, body []byte) (contracts.RankingPage, error) {
	dm := rankDatasRe.FindSubmatch(body)
	if dm == nil {
		return contracts.RankingPage{}, parseErr("datas not found in ranking %s", window)
	}
	rm := rankRecordsRe.FindSubmatch(body)
	if rm == nil {
		return contracts.RankingPage{}, parseErr("allRecords not found in ranking %s", window)
	}
	total, err := strconv.Atoi(string(rm[1]))
	if err != nil {
		return contracts.RankingPage{}, parseErr("allRecords %q: %v", rm[1], err)
	}

	page := contracts.RankingPage{Window: window, Total: total}
	for _, q := range quotedRe.FindAllSubmatch(dm[1], -1) {
		fields := strings.Split(string(q[1]), ",")
		if len(fields) < 4 || fields[0] == "" {
			continue
		}
		ret, _ := parsePercent(fields[3]) // 빈 값은 0
		page.Rows = append(page.Rows, contracts.RankedID{ID: fields[0], Return: ret})
	}
	return page, nil
}

// WindowStart returns the start of a lookback window ending at end.
// Windows are "<n>y", "<n>m" or "<n>d".
func WindowStart(window string, end time.Time) (time.Time, error) {
	if len(window) < 2 {
		return time.Time{}, fmt.Errorf("%w: window %q", fetch.ErrInvalidRequest, window)
	}
	n, err := strconv.Atoi(window[:len(window)-1])
	if err != nil || n <= 0 {
		return time.Time{}, fmt.Errorf("%w: window %q", fetch.ErrInvalidRequest, window)
	}
	switch window[len(window)-1] {
	case 'y':
		return end.AddDate(-n, 0, 0), nil
	case 'm':
		return end.AddDate(0, -n, 0), nil
	case 'd':
		return end.AddDate(0, 0, -n), nil
	}
	return time.Time{}, fmt.Errorf("%w: window unit %q", fetch.ErrInvalidRequest, window)
}

// RankingProvider fetches the open-ended fund ranking for one window
func (c *Client) RankingProvider() fetch.Provider[contracts.RankingPage] {
	return fetch.ProviderFunc[contracts.RankingPage]{
		ProviderName: SourceRanking,
		Fn: func(ctx context.Context, p fetch.Params) (contracts.RankingPage, error) {
			window := p.Get(ParamWindow)
			end := c.now().In(chinaTZ)
			if v := p.Get(ParamAsOf); v != "" {
				t, err := time.ParseInLocation(dateLayout, v, chinaTZ)
				if err != nil {
					return contracts.RankingPage{}, fmt.Errorf("%w: %s %q: %v", fetch.ErrInvalidRequest, ParamAsOf, v, err)
				}
				end = t
			}
			start, err := WindowStart(window, end)
			if err != nil {
				return contracts.RankingPage{}, err
			}

			fundType := p.Get(ParamFundType)
			if fundType == "" {
				fundType = "all"
			}

			params := url.Values{}
			params.Set("op", "dy")
			params.Set("dt", "kf")
			params.Set("ft", fundType)
			params.Set("rs", "")
			params.Set("gs", "0")
			params.Set("sc", "qjzf") // 区间涨幅
			params.Set("st", "desc")
			params.Set("sd", start.Format(dateLayout))
			params.Set("ed", end.Format(dateLayout))
			params.Set("es", "1")
			params.Set("qdii", "")
			params.Set("pi", "1")
			params.Set("pn", "10000")
			params.Set("dx", "1")

			body, err := c.get(ctx, c.fundURL+"/data/rankhandler.aspx", params, c.fundURL+"/data/fundranking.html")
			if err != nil {
				return contracts.RankingPage{}, err
			}
			return ParseRanking(window, body)
		},
	}
}

// ValidateRanking rejects empty pages
func ValidateRanking(p contracts.RankingPage) error {
	if p.Total <= 0 || len(p.Rows) == 0 {
		return fmt.Errorf("%w: ranking %s is empty", fetch.ErrInsufficientData, p.Window)
	}
	return nil
}
