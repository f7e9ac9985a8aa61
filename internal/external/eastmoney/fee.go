package eastmoney

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/fundscope/internal/fetch"
)

// FeeProviders returns the management fee sources in fallback order
func (c *Client) FeeProviders() []fetch.Provider[float64] {
	return []fetch.Provider[float64]{
		fetch.ProviderFunc[float64]{ProviderName: SourceFeePage, Fn: c.fetchFeePage},
		fetch.ProviderFunc[float64]{ProviderName: SourceFeeProfile, Fn: c.fetchFeeProfile},
	}
}

// feePageRe: <span>管理费率</span>1.20%（每年）
var feePageRe = regexp.MustCompile(`管理费率(?:<[^>]+>|[\s：:])*(\d+(?:\.\d+)?)%`)

func (c *Client) fetchFeePage(ctx context.Context, p fetch.Params) (float64, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/%s.html", c.fundURL, p.InstrumentID), nil, c.fundURL+"/")
	if err != nil {
		return 0, err
	}
	return ParseFeePage(body)
}

// ParseFeePage finds the management fee (% per year) on the fund page
func ParseFeePage(body []byte) (float64, error) {
	m := feePageRe.FindSubmatch(body)
	if m == nil {
		return 0, parseErr("管理费率 not found on fund page")
	}
	v, ok := parsePercent(string(m[1]))
	if !ok {
		return 0, parseErr("management fee %q", m[1])
	}
	return v, nil
}

func (c *Client) fetchFeeProfile(ctx context.Context, p fetch.Params) (float64, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/jbgk_%s.html", c.f10URL, p.InstrumentID), nil, c.f10URL+"/")
	if err != nil {
		return 0, err
	}
	return ParseFeeProfile(body)
}

// ParseFeeProfile reads the 管理费率 cell of the jbgk (基本概况) table
func ParseFeeProfile(body []byte) (float64, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0, parseErr("jbgk: %v", err)
	}

	var (
		fee   float64
		found bool
	)
	doc.Find("th").EachWithBreak(func(_ int, th *goquery.Selection) bool {
		if !strings.Contains(th.Text(), "管理费率") {
			return true
		}
		if v, ok := parsePercent(th.Next().Text()); ok {
			fee, found = v, true
		}
		return false
	})
	if !found {
		return 0, parseErr("管理费率 not found in jbgk table")
	}
	return fee, nil
}

// ValidateFee rejects values outside a plausible annual fee range
func ValidateFee(v float64) error {
	if v < 0 || v > 5 {
		return fmt.Errorf("%w: management fee %.2f%% out of range", fetch.ErrParse, v)
	}
	return nil
}
