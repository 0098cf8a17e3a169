// Package rss extracts region launch dates from the AWS global
// infrastructure news feed. Feed entries announce region openings; the
// region code is scraped from the entry text and the launch date from its
// publication timestamp.
package rss

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// DefaultFeedURL is the public regions feed.
const DefaultFeedURL = "https://docs.aws.amazon.com/global-infrastructure/latest/regions/regions.rss"

// regionCodePattern matches region codes in entry titles and descriptions,
// including GovCloud (us-gov-west-1) and isolated (us-isob-east-1) forms.
var regionCodePattern = regexp.MustCompile(`\b([a-z]{2}(?:-gov|-iso[a-z]?)?-[a-z]+-\d{1,2})\b`)

// isoDatePattern matches YYYY-MM-DD dates inside entry descriptions, used
// as a fallback when the feed omits a parsable publication timestamp.
var isoDatePattern = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)

// publishedLayouts are tried in order for entries whose timestamp gofeed
// could not parse itself.
var publishedLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02",
}

// Client fetches and parses the launch date feed.
type Client struct {
	parser *gofeed.Parser
	url    string
	logger *slog.Logger
}

// NewClient creates a feed client. An empty feedURL uses DefaultFeedURL.
func NewClient(feedURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if feedURL == "" {
		feedURL = DefaultFeedURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	return &Client{
		parser: parser,
		url:    feedURL,
		logger: logger,
	}
}

// FetchLaunchDates downloads the feed and returns launch dates keyed by
// region code, formatted YYYY-MM-DD. Entries that name no region code or
// carry no usable date are skipped. Callers treat an error as a degraded
// run, not a fatal one: launch dates are enrichment.
func (c *Client) FetchLaunchDates(ctx context.Context) (map[string]string, error) {
	feed, err := c.parser.ParseURLWithContext(c.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", c.url, err)
	}
	dates := c.extract(feed)
	c.logger.Info("launch dates fetched", "entries", len(feed.Items), "regions", len(dates))
	return dates, nil
}

// extract walks the feed items and pairs region codes with launch dates.
func (c *Client) extract(feed *gofeed.Feed) map[string]string {
	dates := make(map[string]string)
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		text := item.Title + " " + item.Description
		match := regionCodePattern.FindStringSubmatch(strings.ToLower(text))
		if match == nil {
			continue
		}
		code := match[1]

		date := launchDate(item)
		if date == "" {
			c.logger.Debug("feed entry has no usable date", "region", code, "title", item.Title)
			continue
		}
		dates[code] = date
	}
	return dates
}

// launchDate resolves an entry's launch date: the parsed publication
// timestamp when present, then the raw published string against known
// layouts, then an ISO date inside the description.
func launchDate(item *gofeed.Item) string {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC().Format("2006-01-02")
	}
	published := strings.TrimSpace(item.Published)
	if published != "" {
		for _, layout := range publishedLayouts {
			if t, err := time.Parse(layout, published); err == nil {
				return t.UTC().Format("2006-01-02")
			}
		}
	}
	if match := isoDatePattern.FindStringSubmatch(item.Description); match != nil {
		return match[1]
	}
	return ""
}
