package scrapers

import (
	"context"
	"fmt"
	"strings"

	"github.com/sebastianrcnt/learnus-bot/browser"
)

const (
	selCourseBox     = ".course-box"
	selSemesterLabel = ".semester-name"
	selAccessHide    = ".accesshide"
	selVodActivity   = ".vod.activity"

	completeIconSuffix = "completion-auto-y"
)

var (
	courseFields = []browser.Field{
		{Name: "link", Selector: "a.course-link", Attr: "href"},
		{Name: "title", Selector: ".course-title h3"},
	}
	vodFields = []browser.Field{
		{Name: "name", Selector: "span.instancename"},
		{Name: "link", Selector: "a", Attr: "href"},
		{Name: "icon", Selector: "img.icon", Attr: "src"},
	}
)

// ListCourses returns the dashboard's course tiles in document order.
func (p *Portal) ListCourses(ctx context.Context) ([]Course, error) {
	if err := p.page.Navigate(ctx, p.cfg.BaseURL+"/"); err != nil {
		return nil, fmt.Errorf("failed to open dashboard: %w", err)
	}
	if err := p.page.Remove(ctx, selSemesterLabel); err != nil {
		return nil, fmt.Errorf("failed to clean course titles: %w", err)
	}

	records, err := p.page.Collect(ctx, selCourseBox, courseFields)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}

	courses := make([]Course, 0, len(records))
	for i, rec := range records {
		link, ok := rec["link"]
		if !ok {
			return nil, fmt.Errorf("course %d: %w", i, browser.NotFound(courseFields[0].Selector))
		}
		title, ok := rec["title"]
		if !ok {
			return nil, fmt.Errorf("course %d: %w", i, browser.NotFound(courseFields[1].Selector))
		}
		courses = append(courses, Course{Title: strings.TrimSpace(title), Link: link})
	}
	p.logger.Printf("Found %d courses", len(courses))
	return courses, nil
}

// ListVods returns the course's videos, canonicalized and deduplicated by link.
func (p *Portal) ListVods(ctx context.Context, course Course) ([]Vod, error) {
	if err := p.page.Navigate(ctx, course.Link); err != nil {
		return nil, fmt.Errorf("failed to open course %s: %w", course.Title, err)
	}
	if err := p.page.Remove(ctx, selAccessHide); err != nil {
		return nil, fmt.Errorf("failed to clean course page: %w", err)
	}

	records, err := p.page.Collect(ctx, selVodActivity, vodFields)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos of %s: %w", course.Title, err)
	}

	vods := make([]Vod, 0, len(records))
	for i, rec := range records {
		name, ok := rec["name"]
		if !ok {
			return nil, fmt.Errorf("%s video %d: %w", course.Title, i, browser.NotFound(vodFields[0].Selector))
		}
		link, ok := rec["link"]
		if !ok {
			return nil, fmt.Errorf("%s video %d: %w", course.Title, i, browser.NotFound(vodFields[1].Selector))
		}
		// A missing icon means the status is unknown, not an error.
		icon := rec["icon"]
		vods = append(vods, Vod{
			Name:       strings.TrimSpace(name),
			Link:       Canonicalize(link),
			IsComplete: strings.HasSuffix(icon, completeIconSuffix),
		})
	}
	return Dedupe(vods), nil
}

// Canonicalize rewrites a VOD link to the viewer endpoint, which plays
// without redirecting.
func Canonicalize(link string) string {
	return strings.ReplaceAll(link, "view.php", "viewer.php")
}

// Dedupe drops every Vod whose link was already seen, keeping the first.
func Dedupe(vods []Vod) []Vod {
	seen := make(map[string]struct{}, len(vods))
	out := make([]Vod, 0, len(vods))
	for _, v := range vods {
		if _, ok := seen[v.Link]; ok {
			continue
		}
		seen[v.Link] = struct{}{}
		out = append(out, v)
	}
	return out
}
