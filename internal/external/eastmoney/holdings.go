package eastmoney

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/fundscope/internal/contracts"
	"github.com/wonny/fundscope/internal/fetch"
)

// HoldingsProvider fetches the latest top-10 stock holdings
func (c *Client) HoldingsProvider() fetch.Provider[[]contracts.Holding] {
	return fetch.ProviderFunc[[]contracts.Holding]{
		ProviderName: SourceHoldings,
		Fn: func(ctx context.Context, p fetch.Params) ([]contracts.Holding, error) {
			params := url.Values{}
			params.Set("type", "jjcc")
			params.Set("code", p.InstrumentID)
			params.Set("topline", "10")
			params.Set("year", "")
			params.Set("month", "")

			body, err := c.get(ctx, c.f10URL+"/FundArchivesDatas.aspx", params, c.f10URL+"/ccmx_"+p.InstrumentID+".html")
			if err != nil {
				return nil, err
			}
			return ParseHoldings(body)
		},
	}
}

// ParseHoldings reads the first (latest quarter) holdings table.
// Columns are located by header text; funds without stock holdings
// return an empty slice.
func ParseHoldings(body []byte) ([]contracts.Holding, error) {
	content, err := apidataContent(body)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return []contracts.Holding{}, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, parseErr("jjcc: %v", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return []contracts.Holding{}, nil
	}

	codeIdx, nameIdx, weightIdx := -1, -1, -1
	table.Find("tr").First().Find("th").Each(func(i int, th *goquery.Selection) {
		text := th.Text()
		switch {
		case strings.Contains(text, "代码") && codeIdx < 0:
			codeIdx = i
		case strings.Contains(text, "名称") && nameIdx < 0:
			nameIdx = i
		case strings.Contains(text, "占净值") && weightIdx < 0:
			weightIdx = i
		}
	})
	if codeIdx < 0 || nameIdx < 0 || weightIdx < 0 {
		return nil, parseErr("jjcc header missing columns (code=%d name=%d weight=%d)", codeIdx, nameIdx, weightIdx)
	}

	holdings := []contracts.Holding{}
	table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		tds := tr.Find("td")
		if tds.Length() <= weightIdx {
			return
		}
		weight, ok := parsePercent(tds.Eq(weightIdx).Text())
		if !ok {
			return
		}
		holdings = append(holdings, contracts.Holding{
			Code:   strings.TrimSpace(tds.Eq(codeIdx).Text()),
			Name:   strings.TrimSpace(tds.Eq(nameIdx).Text()),
			Weight: weight,
		})
	})
	return holdings, nil
}
