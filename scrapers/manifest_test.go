package scrapers

import (
	"context"
	"testing"

	"github.com/sebastianrcnt/learnus-bot/browser"
	"github.com/sebastianrcnt/learnus-bot/browser/browsertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifest = "https://cdn.portal.test/vod/1/playlist.m3u8"

func TestManifestURL(t *testing.T) {
	page := browsertest.New()
	page.Attrs[selVideoSource] = map[string]string{"src": manifest}
	p := NewPortal(page, testConfig(), testLogger())

	got, err := p.ManifestURL(context.Background(), Vod{Link: "vod1"})

	require.NoError(t, err)
	assert.Equal(t, manifest, got)
	assert.Equal(t, []string{"vod1"}, page.Navigated)
}

func TestManifestURL_DialogOnLoadIsAccepted(t *testing.T) {
	page := browsertest.New()
	page.Attrs[selVideoSource] = map[string]string{"src": manifest}
	page.Dialogs = []string{"This video is not in the attendance period."}
	p := NewPortal(page, testConfig(), testLogger())

	got, err := p.ManifestURL(context.Background(), Vod{Link: "vod1"})

	require.NoError(t, err)
	assert.Equal(t, manifest, got)
	assert.Len(t, page.Accepted, 1)
}

func TestManifestURL_RetriesOnceAfterInterruptingDialog(t *testing.T) {
	page := browsertest.New()
	page.LateDialog = "Continue?"
	var reads int
	page.AttrFunc = func(selector, name string) (string, bool, bool) {
		reads++
		if reads == 1 {
			return "", false, false
		}
		return manifest, true, true
	}
	p := NewPortal(page, testConfig(), testLogger())

	got, err := p.ManifestURL(context.Background(), Vod{Link: "vod1"})

	require.NoError(t, err)
	assert.Equal(t, manifest, got)
	assert.Equal(t, 2, reads)
	assert.Equal(t, []string{"Continue?"}, page.Accepted)
}

func TestManifestURL_MissingSourceWithoutDialogFails(t *testing.T) {
	page := browsertest.New()
	p := NewPortal(page, testConfig(), testLogger())

	_, err := p.ManifestURL(context.Background(), Vod{Link: "vod1"})

	assert.ErrorIs(t, err, browser.ErrElementNotFound)
}
