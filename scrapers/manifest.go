package scrapers

import (
	"context"
	"fmt"
)

const selVideoSource = "video source"

// ManifestURL opens vod's player and returns its streaming manifest URL.
// A dialog that interrupts the read is accepted and the read retried once.
func (p *Portal) ManifestURL(ctx context.Context, vod Vod) (string, error) {
	if err := p.page.Navigate(ctx, vod.Link); err != nil {
		return "", fmt.Errorf("failed to open video: %w", err)
	}
	if err := p.acceptDialog(ctx); err != nil {
		return "", err
	}

	src, err := p.page.Attribute(ctx, selVideoSource, "src")
	if err == nil {
		return src, nil
	}

	msg, derr := p.page.AcceptDialog(ctx)
	if derr != nil {
		return "", fmt.Errorf("failed to read manifest url: %w", err)
	}
	p.logger.Printf("Accepted dialog: %s", msg)

	src, err = p.page.Attribute(ctx, selVideoSource, "src")
	if err != nil {
		return "", fmt.Errorf("failed to read manifest url: %w", err)
	}
	return src, nil
}
