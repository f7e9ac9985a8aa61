package eastmoney

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/wonny/fundscope/internal/contracts"
	"github.com/wonny/fundscope/internal/fetch"
	"github.com/wonny/fundscope/pkg/logger"
)

// fundCodeRe matches one ["code","abbr","name","category","pinyin"] tuple
var fundCodeRe = regexp.MustCompile(`\["(\d{6})","[^"]*","([^"]*)","([^"]*)","[^"]*"\]`)

// ParseFundList extracts every fund from fundcode_search.js
func ParseFundList(body []byte) ([]contracts.Instrument, error) {
	matches := fundCodeRe.FindAllSubmatch(body, -1)
	if len(matches) == 0 {
		return nil, parseErr("no fund tuples in fundcode_search.js")
	}

	out := make([]contracts.Instrument, 0, len(matches))
	for _, m := range matches {
		out = append(out, contracts.Instrument{
			ID:       string(m[1]),
			Name:     string(m[2]),
			Category: string(m[3]),
		})
	}
	return out, nil
}

// FundListProvider fetches the full fund list
func (c *Client) FundListProvider() fetch.Provider[[]contracts.Instrument] {
	return fetch.ProviderFunc[[]contracts.Instrument]{
		ProviderName: SourceFundList,
		Fn: func(ctx context.Context, _ fetch.Params) ([]contracts.Instrument, error) {
			body, err := c.get(ctx, c.fundURL+"/js/fundcode_search.js", nil, c.fundURL+"/")
			if err != nil {
				return nil, err
			}
			return ParseFundList(body)
		},
	}
}

// Universe is the contracts.UniverseProvider backed by the fund list
type Universe struct {
	fetcher    fetch.Fetcher[[]contracts.Instrument]
	categories []string
	logger     *logger.Logger
}

// NewUniverse keeps only funds whose category starts with one of the
// given prefixes (混合型, 股票型 ...); no prefixes keeps everything
func NewUniverse(fetcher fetch.Fetcher[[]contracts.Instrument], categories []string, log *logger.Logger) *Universe {
	return &Universe{
		fetcher:    fetcher,
		categories: categories,
		logger:     log.Component("universe"),
	}
}

// ListInstruments implements contracts.UniverseProvider
func (u *Universe) ListInstruments(ctx context.Context) ([]contracts.Instrument, error) {
	out := u.fetcher.Fetch(ctx, fetch.Params{})
	if !out.OK() {
		return nil, fmt.Errorf("list instruments: %w", out.Err)
	}

	all := out.Value
	if len(u.categories) == 0 {
		return all, nil
	}

	kept := make([]contracts.Instrument, 0, len(all))
	for _, inst := range all {
		for _, prefix := range u.categories {
			if strings.HasPrefix(inst.Category, prefix) {
				kept = append(kept, inst)
				break
			}
		}
	}

	u.logger.WithFields(map[string]interface{}{
		"total":      len(all),
		"kept":       len(kept),
		"categories": u.categories,
		"source":     out.Source,
	}).Info("Universe loaded")

	return kept, nil
}
