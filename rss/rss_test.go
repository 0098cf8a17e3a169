package rss

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>AWS Regions</title>
    <item>
      <title>Now open: the AWS Asia Pacific (Melbourne) Region - ap-southeast-4</title>
      <description>The Asia Pacific (Melbourne) Region is now available.</description>
      <pubDate>Mon, 23 Jan 2023 18:00:00 +0000</pubDate>
    </item>
    <item>
      <title>AWS GovCloud (US-East) now available</title>
      <description>The us-gov-east-1 region opened for government workloads.</description>
      <pubDate>Mon, 12 Nov 2018 12:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Announcing the Europe (Spain) Region - eu-south-2</title>
      <description>Launched on 2022-11-16 in Aragon, Spain.</description>
    </item>
    <item>
      <title>AWS expands its global footprint</title>
      <description>No region code in this marketing entry.</description>
      <pubDate>Tue, 01 Aug 2023 09:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Coming soon: a brand new Region - af-south-9</title>
      <description>No date anywhere in this entry.</description>
    </item>
  </channel>
</rss>`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseSample(t *testing.T, xml string) *gofeed.Feed {
	t.Helper()
	feed, err := gofeed.NewParser().ParseString(xml)
	require.NoError(t, err)
	return feed
}

func TestExtractLaunchDates(t *testing.T) {
	c := NewClient(DefaultFeedURL, 10*time.Second, testLogger())
	feed := parseSample(t, sampleFeed)

	dates := c.extract(feed)

	assert.Equal(t, map[string]string{
		"ap-southeast-4": "2023-01-23",
		"us-gov-east-1":  "2018-11-12",
		"eu-south-2":     "2022-11-16",
	}, dates)
}

func TestExtractDescriptionDateFallback(t *testing.T) {
	c := NewClient(DefaultFeedURL, 10*time.Second, testLogger())
	feed := parseSample(t, sampleFeed)

	dates := c.extract(feed)
	// eu-south-2 has no pubDate; the ISO date in the description wins.
	assert.Equal(t, "2022-11-16", dates["eu-south-2"])
	// af-south-9 has neither and is skipped.
	_, ok := dates["af-south-9"]
	assert.False(t, ok)
}

func TestFetchLaunchDates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, sampleFeed)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, testLogger())
	dates, err := c.FetchLaunchDates(context.Background())
	require.NoError(t, err)
	assert.Len(t, dates, 3)
	assert.Equal(t, "2023-01-23", dates["ap-southeast-4"])
}

func TestFetchLaunchDatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, testLogger())
	_, err := c.FetchLaunchDates(context.Background())
	assert.Error(t, err)
}

func TestFetchLaunchDatesBadXML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "this is not a feed")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, testLogger())
	_, err := c.FetchLaunchDates(context.Background())
	assert.Error(t, err)
}

func TestRegionCodePattern(t *testing.T) {
	testCases := []struct {
		text string
		want string
	}{
		{"now open: us-east-1", "us-east-1"},
		{"the ap-southeast-4 region", "ap-southeast-4"},
		{"govcloud us-gov-west-1 expansion", "us-gov-west-1"},
		{"isolated us-isob-east-1 region", "us-isob-east-1"},
		{"china cn-north-1 region", "cn-north-1"},
		{"launched eu-central-2 today", "eu-central-2"},
		{"no codes here", ""},
		{"almost a code: useast1", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.text, func(t *testing.T) {
			match := regionCodePattern.FindStringSubmatch(tc.text)
			if tc.want == "" {
				assert.Nil(t, match)
				return
			}
			require.NotNil(t, match)
			assert.Equal(t, tc.want, match[1])
		})
	}
}

func TestLaunchDateLayouts(t *testing.T) {
	item := &gofeed.Item{Published: "2019-04-17"}
	assert.Equal(t, "2019-04-17", launchDate(item))

	item = &gofeed.Item{Published: "17 Apr 19 10:00 UTC"}
	assert.Equal(t, "2019-04-17", launchDate(item))

	item = &gofeed.Item{Description: "went live on 2020-06-30, see details"}
	assert.Equal(t, "2020-06-30", launchDate(item))

	item = &gofeed.Item{Description: strings.Repeat("nothing ", 3)}
	assert.Equal(t, "", launchDate(item))
}
