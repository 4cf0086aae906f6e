package updater

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	repo    string
	release *selfupdate.Release
	found   bool
	err     error
	updated bool
}

func (f *fakeSource) DetectLatest(ctx context.Context, repository selfupdate.Repository) (*selfupdate.Release, bool, error) {
	owner, repo, _ := repository.GetSlug()
	f.repo = owner + "/" + repo
	return f.release, f.found, f.err
}

func (f *fakeSource) UpdateTo(ctx context.Context, rel *selfupdate.Release, cmdPath string) error {
	f.updated = true
	return nil
}

func newTestUpdater(version string, src *fakeSource) *Updater {
	u := New(DefaultConfig(version), log.New(io.Discard, "", 0))
	u.source = func() (releaseSource, error) { return src, nil }
	return u
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("1.2.0")
	assert.Equal(t, "sebastianrcnt/learnus-bot", cfg.Slug())
	assert.Equal(t, "1.2.0", cfg.CurrentVersion)
}

func TestNormalizeVersion(t *testing.T) {
	v, err := normalizeVersion("1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "v1.2.3", v)

	v, err = normalizeVersion("v0.4.0")
	require.NoError(t, err)
	assert.Equal(t, "v0.4.0", v)

	_, err = normalizeVersion("dev")
	assert.ErrorIs(t, err, ErrDevelopmentBuild)
	_, err = normalizeVersion("")
	assert.ErrorIs(t, err, ErrDevelopmentBuild)
}

func TestCheckForUpdate_NoRelease(t *testing.T) {
	src := &fakeSource{}
	u := newTestUpdater("1.0.0", src)

	rel, needs, err := u.CheckForUpdate(context.Background())

	require.NoError(t, err)
	assert.Nil(t, rel)
	assert.False(t, needs)
	assert.Equal(t, "sebastianrcnt/learnus-bot", src.repo)
}

func TestCheckForUpdate_SourceError(t *testing.T) {
	errRateLimited := errors.New("rate limited")
	u := newTestUpdater("1.0.0", &fakeSource{err: errRateLimited})

	_, _, err := u.CheckForUpdate(context.Background())

	assert.ErrorIs(t, err, errRateLimited)
}

func TestCheckForUpdate_DevBuildRefuses(t *testing.T) {
	src := &fakeSource{}
	u := newTestUpdater("dev", src)

	rel, needs, err := u.CheckForUpdate(context.Background())

	assert.ErrorIs(t, err, ErrDevelopmentBuild)
	assert.Nil(t, rel)
	assert.False(t, needs)
	assert.Empty(t, src.repo)
}
