package eastmoney

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/fundscope/internal/contracts"
	"github.com/wonny/fundscope/internal/fetch"
)

// ManagerProvider fetches the current manager from the jjjl (基金经理) page
func (c *Client) ManagerProvider() fetch.Provider[contracts.Manager] {
	return fetch.ProviderFunc[contracts.Manager]{
		ProviderName: SourceManager,
		Fn: func(ctx context.Context, p fetch.Params) (contracts.Manager, error) {
			body, err := c.get(ctx, fmt.Sprintf("%s/jjjl_%s.html", c.f10URL, p.InstrumentID), nil, c.f10URL+"/")
			if err != nil {
				return contracts.Manager{}, err
			}
			return ParseManager(body)
		},
	}
}

// ParseManager reads the tenure table (起始期 / 截止期 / 基金经理 / 任职期间).
// The current manager is the first row ending 至今, else the first row.
func ParseManager(body []byte) (contracts.Manager, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return contracts.Manager{}, parseErr("jjjl: %v", err)
	}

	var (
		table                              *goquery.Selection
		startIdx, endIdx, nameIdx, termIdx = -1, -1, -1, -1
	)
	doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		s, e, n, d := -1, -1, -1, -1
		t.Find("tr").First().Find("th, td").Each(func(i int, th *goquery.Selection) {
			text := th.Text()
			switch {
			case strings.Contains(text, "起始期") && s < 0:
				s = i
			case strings.Contains(text, "截止期") && e < 0:
				e = i
			case strings.Contains(text, "基金经理") && n < 0:
				n = i
			case strings.Contains(text, "任职期间") && d < 0:
				d = i
			}
		})
		if n < 0 || d < 0 {
			return true
		}
		table, startIdx, endIdx, nameIdx, termIdx = t, s, e, n, d
		return false
	})
	if table == nil {
		return contracts.Manager{}, parseErr("jjjl tenure table not found")
	}

	var current *goquery.Selection
	table.Find("tr").Slice(1, goquery.ToEnd).EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		if tr.Find("td").Length() <= nameIdx || tr.Find("td").Length() <= termIdx {
			return true
		}
		if current == nil {
			current = tr
		}
		if endIdx >= 0 && strings.Contains(tr.Find("td").Eq(endIdx).Text(), "至今") {
			current = tr
			return false
		}
		return true
	})
	if current == nil {
		return contracts.Manager{}, parseErr("jjjl tenure table has no rows")
	}

	tds := current.Find("td")
	m := contracts.Manager{Name: strings.Join(strings.Fields(tds.Eq(nameIdx).Text()), " ")}
	if m.Name == "" {
		return contracts.Manager{}, parseErr("jjjl manager name empty")
	}
	years, ok := parseTenure(tds.Eq(termIdx).Text())
	if !ok {
		return contracts.Manager{}, parseErr("jjjl tenure %q", strings.TrimSpace(tds.Eq(termIdx).Text()))
	}
	m.TenureYears = years
	if startIdx >= 0 {
		if t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(tds.Eq(startIdx).Text()), chinaTZ); err == nil {
			m.Since = t
		}
	}
	return m, nil
}

// tenureRe matches 任职期间 text: "3年又120天", "125天", "2年"
var tenureRe = regexp.MustCompile(`^(?:(\d+)年)?又?(?:(\d+)天)?$`)

// parseTenure converts 任职期间 text to years (365-day years)
func parseTenure(s string) (float64, bool) {
	s = strings.Join(strings.Fields(s), "")
	m := tenureRe.FindStringSubmatch(s)
	if m == nil || (m[1] == "" && m[2] == "") {
		return 0, false
	}
	var years float64
	if m[1] != "" {
		y, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, false
		}
		years = float64(y)
	}
	if m[2] != "" {
		d, err := strconv.Atoi(m[2])
		if err != nil {
			return 0, false
		}
		years += float64(d) / 365
	}
	return years, true
}
