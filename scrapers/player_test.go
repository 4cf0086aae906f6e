package scrapers

import (
	"context"
	"math"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sebastianrcnt/learnus-bot/browser"
	"github.com/sebastianrcnt/learnus-bot/browser/browsertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		now, lo, hi float64
		want        float64
	}{
		{50, 0, 200, 0.25},
		{0, 0, 100, 0},
		{100, 0, 100, 1},
		{15, 10, 30, 0.25},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.now, tt.lo, tt.hi)
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, 1e-12)
	}
}

func TestNormalize_EmptyRange(t *testing.T) {
	_, err := Normalize(5, 100, 100)
	assert.ErrorIs(t, err, ErrInvalidProgressReading)
}

func TestNormalize_NonFinite(t *testing.T) {
	tests := []struct {
		name        string
		now, lo, hi float64
	}{
		{"nan reading", math.NaN(), 0, 100},
		{"inf reading", math.Inf(1), 0, 100},
		{"nan max", 50, 0, math.NaN()},
		{"-inf min", 50, math.Inf(-1), 100},
		{"overflowing result", math.MaxFloat64, -math.MaxFloat64, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.now, tt.lo, tt.hi)
			assert.ErrorIs(t, err, ErrInvalidProgressReading)
			assert.Zero(t, got)
		})
	}
}

func TestParseRateRule(t *testing.T) {
	r, err := ParseRateRule(" Fastest ")
	require.NoError(t, err)
	assert.Equal(t, RateFastest, r)

	_, err = ParseRateRule("slowest")
	assert.Error(t, err)
}

func TestRateRule_Pick(t *testing.T) {
	menu := []string{"2x", "1.5x", "1.25x", "1x"}
	assert.Equal(t, 0, RateFirst.Pick(menu))
	assert.Equal(t, 3, RateLast.Pick(menu))
	assert.Equal(t, 0, RateFastest.Pick(menu))
	assert.Equal(t, 2, RateFastest.Pick([]string{"1x", "1.5x", "2.0x", "Normal"}))
	assert.Equal(t, 0, RateFastest.Pick([]string{"Normal", "Fast"}))
	assert.Equal(t, -1, RateFirst.Pick(nil))
}

// playerPage serves a player whose progress bar reads value(n) on the n-th poll.
func playerPage(value func(n int) string) (*browsertest.Page, *atomic.Int32) {
	var reads atomic.Int32
	page := browsertest.New()
	page.Present[selPlayButton] = true
	page.Present[selRateButton] = true
	page.TextsBySelector[selRateItems] = []string{"2x", "1.5x", "1x"}
	page.AttrFunc = func(selector, name string) (string, bool, bool) {
		if selector != selProgressHold {
			return "", false, false
		}
		switch name {
		case "aria-valuenow":
			n := int(reads.Add(1))
			return value(n), true, true
		case "aria-valuemin":
			return "0", true, true
		case "aria-valuemax":
			return "1000", true, true
		}
		return "", false, true
	}
	return page, &reads
}

func sequence(vals ...string) func(n int) string {
	return func(n int) string {
		if n > len(vals) {
			return vals[len(vals)-1]
		}
		return vals[n-1]
	}
}

func TestPlayVod_ExitsOnlyAboveThreshold(t *testing.T) {
	page, reads := playerPage(sequence("0", "500", "995", "1000"))
	rep := &recordingReporter{}
	p := NewPortal(page, testConfig(), testLogger())

	err := p.PlayVod(context.Background(), Vod{Name: "Lecture 1", Link: "vod1"}, rep, "worker-1: Lecture 1")

	require.NoError(t, err)
	assert.Equal(t, int32(4), reads.Load())
	require.Len(t, rep.updates, 4)
	assert.InDelta(t, 9950, rep.updates[2], 1)
	assert.Equal(t, int64(10000), rep.updates[3])
	assert.Equal(t, []string{"worker-1: Lecture 1"}, rep.names)
	assert.Equal(t, 1, rep.finished)
	assert.Equal(t, []string{"vod1"}, page.Navigated)
	assert.Equal(t, []string{selPlayButton, selRateButton, selRateItems + "[0]"}, page.Clicked)
}

func TestPlayVod_AcceptsDialog(t *testing.T) {
	page, _ := playerPage(sequence("1000"))
	page.Dialogs = []string{"Resume from last position?"}
	p := NewPortal(page, testConfig(), testLogger())

	err := p.PlayVod(context.Background(), Vod{Link: "vod1"}, &recordingReporter{}, "t")

	require.NoError(t, err)
	assert.Equal(t, []string{"Resume from last position?"}, page.Accepted)
}

func TestPlayVod_UsesRateRule(t *testing.T) {
	page, _ := playerPage(sequence("1000"))
	cfg := testConfig()
	cfg.RateRule = RateLast
	p := NewPortal(page, cfg, testLogger())

	require.NoError(t, p.PlayVod(context.Background(), Vod{Link: "vod1"}, &recordingReporter{}, "t"))
	assert.Contains(t, page.Clicked, selRateItems+"[2]")
}

func TestPlayVod_StalledPlaybackFails(t *testing.T) {
	page, _ := playerPage(sequence("100"))
	cfg := testConfig()
	cfg.StallTimeout = 20 * time.Millisecond
	rep := &recordingReporter{}
	p := NewPortal(page, cfg, testLogger())

	err := p.PlayVod(context.Background(), Vod{Link: "vod1"}, rep, "t")

	assert.ErrorIs(t, err, ErrPlaybackStalled)
	assert.Equal(t, 1, rep.finished)
}

func TestPlayVod_MaxPlaybackBound(t *testing.T) {
	page, _ := playerPage(func(n int) string { return strconv.Itoa(n % 900) })
	cfg := testConfig()
	cfg.StallTimeout = 0
	cfg.MaxPlayback = 20 * time.Millisecond
	p := NewPortal(page, cfg, testLogger())

	err := p.PlayVod(context.Background(), Vod{Link: "vod1"}, &recordingReporter{}, "t")

	assert.ErrorIs(t, err, ErrPlaybackTimeout)
}

func TestPlayVod_EmptyProgressRange(t *testing.T) {
	page, _ := playerPage(sequence("0"))
	page.AttrFunc = func(selector, name string) (string, bool, bool) {
		return "100", true, selector == selProgressHold
	}
	p := NewPortal(page, testConfig(), testLogger())

	err := p.PlayVod(context.Background(), Vod{Link: "vod1"}, &recordingReporter{}, "t")

	assert.ErrorIs(t, err, ErrInvalidProgressReading)
}

func TestPlayVod_UnparsableProgress(t *testing.T) {
	page, _ := playerPage(sequence("NaN?"))
	p := NewPortal(page, testConfig(), testLogger())

	err := p.PlayVod(context.Background(), Vod{Link: "vod1"}, &recordingReporter{}, "t")

	assert.ErrorIs(t, err, ErrInvalidProgressReading)
}

func TestPlayVod_SkipsNaNUntilDurationIsKnown(t *testing.T) {
	page, _ := playerPage(sequence("NaN", "NaN", "500", "1000"))
	rep := &recordingReporter{}
	p := NewPortal(page, testConfig(), testLogger())

	err := p.PlayVod(context.Background(), Vod{Link: "vod1"}, rep, "t")

	require.NoError(t, err)
	assert.Equal(t, []int64{5000, 10000}, rep.updates)
}

func TestPlayVod_PersistentNaNIsInvalid(t *testing.T) {
	for _, reading := range []string{"NaN", "Inf", "-Inf"} {
		t.Run(reading, func(t *testing.T) {
			page, _ := playerPage(sequence(reading))
			cfg := testConfig()
			cfg.StallTimeout = 0
			rep := &recordingReporter{}
			p := NewPortal(page, cfg, testLogger())

			err := p.PlayVod(context.Background(), Vod{Link: "vod1"}, rep, "t")

			assert.ErrorIs(t, err, ErrInvalidProgressReading)
			assert.Empty(t, rep.updates)
			assert.Equal(t, 1, rep.finished)
		})
	}
}

func TestPlayVod_MissingPlayButtonIsFatal(t *testing.T) {
	page, _ := playerPage(sequence("1000"))
	delete(page.Present, selPlayButton)
	p := NewPortal(page, testConfig(), testLogger())

	err := p.PlayVod(context.Background(), Vod{Link: "vod1"}, &recordingReporter{}, "t")

	assert.ErrorIs(t, err, browser.ErrElementNotFound)
}

func TestPlayVod_EmptyRateMenuIsFatal(t *testing.T) {
	page, _ := playerPage(sequence("1000"))
	page.TextsBySelector[selRateItems] = nil
	p := NewPortal(page, testConfig(), testLogger())

	err := p.PlayVod(context.Background(), Vod{Link: "vod1"}, &recordingReporter{}, "t")

	assert.ErrorIs(t, err, browser.ErrElementNotFound)
}

func TestPlayVod_Cancelled(t *testing.T) {
	page, _ := playerPage(sequence("0"))
	cfg := testConfig()
	cfg.StallTimeout = 0
	p := NewPortal(page, cfg, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.PlayVod(ctx, Vod{Link: "vod1"}, &recordingReporter{}, "t")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
