package scrapers

import (
	"context"
	"testing"

	"github.com/sebastianrcnt/learnus-bot/browser"
	"github.com/sebastianrcnt/learnus-bot/browser/browsertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	assert.Equal(t, "https://portal.test/mod/vod/viewer.php?id=1", Canonicalize("https://portal.test/mod/vod/view.php?id=1"))
	assert.Equal(t, "https://portal.test/course/index.php?id=1", Canonicalize("https://portal.test/course/index.php?id=1"))
}

func TestDedupe_KeepsFirstOccurrence(t *testing.T) {
	in := []Vod{
		{Name: "week 1", Link: "a"},
		{Name: "week 2", Link: "b"},
		{Name: "week 1 (again)", Link: "a", IsComplete: true},
		{Name: "week 3", Link: "c"},
		{Name: "week 2 (again)", Link: "b"},
	}

	out := Dedupe(in)

	assert.Equal(t, []Vod{
		{Name: "week 1", Link: "a"},
		{Name: "week 2", Link: "b"},
		{Name: "week 3", Link: "c"},
	}, out)

	seen := map[string]bool{}
	for _, v := range out {
		assert.False(t, seen[v.Link], "duplicate link %s", v.Link)
		seen[v.Link] = true
	}
}

func TestListCourses(t *testing.T) {
	page := browsertest.New()
	page.Records[selCourseBox] = []browser.Record{
		{"link": "https://portal.test/course/view.php?id=1", "title": " Algorithms "},
		{"link": "https://portal.test/course/view.php?id=2", "title": "Networks"},
	}
	p := NewPortal(page, testConfig(), testLogger())

	courses, err := p.ListCourses(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []Course{
		{Title: "Algorithms", Link: "https://portal.test/course/view.php?id=1"},
		{Title: "Networks", Link: "https://portal.test/course/view.php?id=2"},
	}, courses)
	assert.Equal(t, []string{selSemesterLabel}, page.Removed)
	assert.Equal(t, []string{"https://portal.test/"}, page.Navigated)
}

func TestListCourses_MissingLinkIsFatal(t *testing.T) {
	page := browsertest.New()
	page.Records[selCourseBox] = []browser.Record{{"title": "Algorithms"}}
	p := NewPortal(page, testConfig(), testLogger())

	_, err := p.ListCourses(context.Background())

	assert.ErrorIs(t, err, browser.ErrElementNotFound)
}

func TestListCourses_MissingTitleIsFatal(t *testing.T) {
	page := browsertest.New()
	page.Records[selCourseBox] = []browser.Record{{"link": "x"}}
	p := NewPortal(page, testConfig(), testLogger())

	_, err := p.ListCourses(context.Background())

	assert.ErrorIs(t, err, browser.ErrElementNotFound)
}

func TestListVods_DedupesAndReadsCompletion(t *testing.T) {
	page := browsertest.New()
	page.Records[selVodActivity] = []browser.Record{
		{"name": "Lecture 1", "link": "https://portal.test/mod/vod/view.php?id=10", "icon": "https://portal.test/theme/icon/completion-auto-y"},
		{"name": "Lecture 1 copy", "link": "https://portal.test/mod/vod/view.php?id=10", "icon": "https://portal.test/theme/icon/completion-auto-n"},
		{"name": "Lecture 2", "link": "https://portal.test/mod/vod/view.php?id=11", "icon": "https://portal.test/theme/icon/completion-auto-n"},
		{"name": "Lecture 3", "link": "https://portal.test/mod/vod/view.php?id=12"},
	}
	p := NewPortal(page, testConfig(), testLogger())

	vods, err := p.ListVods(context.Background(), Course{Title: "Algorithms", Link: "url1"})

	require.NoError(t, err)
	assert.Equal(t, []Vod{
		{Name: "Lecture 1", Link: "https://portal.test/mod/vod/viewer.php?id=10", IsComplete: true},
		{Name: "Lecture 2", Link: "https://portal.test/mod/vod/viewer.php?id=11"},
		{Name: "Lecture 3", Link: "https://portal.test/mod/vod/viewer.php?id=12"},
	}, vods)
	assert.Equal(t, []string{"url1"}, page.Navigated)
	assert.Equal(t, []string{selAccessHide}, page.Removed)
}

func TestListVods_MissingLinkIsFatal(t *testing.T) {
	page := browsertest.New()
	page.Records[selVodActivity] = []browser.Record{{"name": "Lecture 1"}}
	p := NewPortal(page, testConfig(), testLogger())

	_, err := p.ListVods(context.Background(), Course{Title: "Algorithms", Link: "url1"})

	assert.ErrorIs(t, err, browser.ErrElementNotFound)
}

func TestScan_TwoCoursesWithDuplicateEntries(t *testing.T) {
	page := browsertest.New()
	page.Records[selCourseBox] = []browser.Record{
		{"link": "url1", "title": "Algorithms"},
		{"link": "url2", "title": "Networks"},
	}
	page.OnNavigate = func(p *browsertest.Page, url string) {
		switch url {
		case "url1":
			p.Records[selVodActivity] = []browser.Record{
				{"name": "Sorting", "link": "https://portal.test/mod/vod/view.php?id=1"},
				{"name": "Sorting (repeat)", "link": "https://portal.test/mod/vod/view.php?id=1"},
			}
		case "url2":
			p.Records[selVodActivity] = []browser.Record{
				{"name": "TCP", "link": "https://portal.test/mod/vod/view.php?id=2"},
			}
		}
	}
	p := NewPortal(page, testConfig(), testLogger())
	ctx := context.Background()

	courses, err := p.ListCourses(ctx)
	require.NoError(t, err)
	require.Equal(t, []Course{{Title: "Algorithms", Link: "url1"}, {Title: "Networks", Link: "url2"}}, courses)

	vods, err := p.ListVods(ctx, courses[0])
	require.NoError(t, err)
	require.Len(t, vods, 1)
	assert.Equal(t, "Sorting", vods[0].Name)
	assert.False(t, vods[0].IsComplete)
}
