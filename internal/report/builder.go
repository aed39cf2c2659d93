// Package report renders a collection as a ranked HTML page.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/browser"

	"github.com/ibeckermayer/reelsort/internal/collection"
	"github.com/ibeckermayer/reelsort/internal/metrics"
	"github.com/ibeckermayer/reelsort/internal/sorting"
	"github.com/ibeckermayer/reelsort/internal/store"
)

// SiteURL prefixes relative permalinks.
const SiteURL = "https://www.instagram.com"

// Builder creates reports from collected items
type Builder struct {
	maxItems  int
	followers int64
	engine    *sorting.Engine
	template  *template.Template
}

// New creates a new report builder. followers feeds the reach column;
// metrics.DefaultFollowers is used when it is 0.
func New(maxItems int, followers int64, engine *sorting.Engine) (*Builder, error) {
	tmpl, err := template.New("report").Parse(defaultTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	if engine == nil {
		engine = sorting.New(sorting.Options{})
	}

	return &Builder{
		maxItems:  maxItems,
		followers: followers,
		engine:    engine,
		template:  tmpl,
	}, nil
}

// Report is a rendered page.
type Report struct {
	Title     string
	HTMLBody  string
	PlainBody string
	ItemIDs   []string
	CreatedAt time.Time
}

// ReportData is the template data structure
type ReportData struct {
	Title  string
	Date   string
	Source string
	Items  []ItemData
	Stats  StatsData
}

// ItemData is one row of the report
type ItemData struct {
	Rank       int
	ID         string
	Author     string
	TimeText   string
	Views      string
	Likes      string
	Comments   string
	Reach      string
	Engagement string
	Grade      string
	Class      string
	Emoji      string
	URL        string
}

// StatsData contains report statistics
type StatsData struct {
	TotalCollected int
	TotalIncluded  int
	TotalViews     string
	FirstSeen      string
}

// Build orders items by key and renders them. source names where they were
// collected, usually the feed URL.
func (b *Builder) Build(items []collection.Item, key sorting.Key, source string) (*Report, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("no items to include in report")
	}

	ordered := b.engine.Order(items, key, sorting.ScopeAll)
	if b.maxItems > 0 && len(ordered) > b.maxItems {
		ordered = ordered[:b.maxItems]
	}

	now := time.Now()
	var total int64
	first := now
	for _, it := range items {
		total += it.Views
		if !it.FirstSeenAt.IsZero() && it.FirstSeenAt.Before(first) {
			first = it.FirstSeenAt
		}
	}

	data := ReportData{
		Title:  fmt.Sprintf("Reels by %s", capitalize(string(key))),
		Date:   now.Format("Monday, January 2 15:04"),
		Source: source,
		Items:  make([]ItemData, len(ordered)),
		Stats: StatsData{
			TotalCollected: len(items),
			TotalIncluded:  len(ordered),
			TotalViews:     humanize.Comma(total),
			FirstSeen:      humanize.Time(first),
		},
	}

	ids := make([]string, len(ordered))
	for i, it := range ordered {
		reach := metrics.ReachRate(it.Views, b.followers)
		eng := metrics.EngagementRate(it.Likes, it.Comments, 0, it.Views)
		class := metrics.Classify(reach)
		data.Items[i] = ItemData{
			Rank:       i + 1,
			ID:         it.ID,
			Author:     it.Author,
			TimeText:   it.TimeText,
			Views:      humanize.Comma(it.Views),
			Likes:      humanize.Comma(it.Likes),
			Comments:   humanize.Comma(it.Comments),
			Reach:      metrics.FormatRate(reach),
			Engagement: metrics.FormatRate(eng),
			Grade:      metrics.Grade(reach, eng),
			Class:      string(class),
			Emoji:      class.Emoji(),
			URL:        absolute(it.Permalink),
		}
		ids[i] = it.ID
	}

	var htmlBuf bytes.Buffer
	if err := b.template.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}

	return &Report{
		Title:     data.Title,
		HTMLBody:  htmlBuf.String(),
		PlainBody: buildPlainText(data),
		ItemIDs:   ids,
		CreatedAt: now,
	}, nil
}

// Save writes the report to the reports cache, or to dir when it is set,
// and returns its path.
func Save(r *Report, dir string) (string, error) {
	if dir == "" {
		return store.SaveTextOutput(store.StepReport, r.HTMLBody, ".html")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "reelsort-"+r.CreatedAt.Format("2006-01-02T15-04-05")+".html")
	if err := os.WriteFile(path, []byte(r.HTMLBody), 0600); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// Open shows a saved report in the default browser.
func Open(path string) error {
	return browser.OpenFile(path)
}

// Latest returns the path of the most recent saved report.
func Latest() (string, error) {
	return store.LatestStepFile(store.StepReport)
}

func absolute(permalink string) string {
	switch {
	case permalink == "":
		return ""
	case strings.HasPrefix(permalink, "http://"), strings.HasPrefix(permalink, "https://"):
		return permalink
	}
	return SiteURL + "/" + strings.TrimPrefix(permalink, "/")
}

func capitalize(s string) string {
	if len(s) == 0 {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func buildPlainText(data ReportData) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n%s\n\n", data.Title, data.Date)

	for _, it := range data.Items {
		fmt.Fprintf(&buf, "%d. %s  %s views  %s likes  %s comments  reach %s  %s\n",
			it.Rank, it.ID, it.Views, it.Likes, it.Comments, it.Reach, it.Grade)
		if it.URL != "" {
			fmt.Fprintf(&buf, "   %s\n", it.URL)
		}
	}

	return buf.String()
}

const defaultTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 900px; margin: 0 auto; padding: 20px; background: #fafafa; }
        .container { background: white; border-radius: 8px; padding: 20px; }
        h1 { color: #d62976; margin-bottom: 5px; }
        .date { color: #666; margin-bottom: 20px; }
        table { width: 100%; border-collapse: collapse; font-size: 14px; }
        th { text-align: left; color: #999; font-weight: 600; border-bottom: 2px solid #eee; padding: 6px; }
        td { border-bottom: 1px solid #eee; padding: 6px; }
        td.num { text-align: right; font-variant-numeric: tabular-nums; }
        .grade { font-weight: bold; }
        .super-viral { color: #c2185b; }
        .hot { color: #f57c00; }
        .good { color: #388e3c; }
        .link { color: #d62976; text-decoration: none; }
        .footer { margin-top: 20px; padding-top: 15px; border-top: 1px solid #eee; color: #999; font-size: 12px; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <div class="date">{{.Date}}{{if .Source}} · {{.Source}}{{end}}</div>

        <table>
            <tr><th>#</th><th>Reel</th><th>Views</th><th>Likes</th><th>Comments</th><th>Reach</th><th>Engagement</th><th>Grade</th></tr>
            {{range .Items}}
            <tr class="{{.Class}}">
                <td>{{.Rank}}</td>
                <td>{{if .URL}}<a href="{{.URL}}" class="link">{{.ID}}</a>{{else}}{{.ID}}{{end}}{{if .Author}} · {{.Author}}{{end}}{{if .TimeText}} · {{.TimeText}}{{end}}</td>
                <td class="num">{{.Views}}</td>
                <td class="num">{{.Likes}}</td>
                <td class="num">{{.Comments}}</td>
                <td class="num">{{.Emoji}} {{.Reach}}</td>
                <td class="num">{{.Engagement}}</td>
                <td class="grade">{{.Grade}}</td>
            </tr>
            {{end}}
        </table>

        <div class="footer">
            Included {{.Stats.TotalIncluded}} of {{.Stats.TotalCollected}} reels · {{.Stats.TotalViews}} views · collecting since {{.Stats.FirstSeen}} · Generated by reelsort
        </div>
    </div>
</body>
</html>`
