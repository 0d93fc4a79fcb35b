package update

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/adamancini/hatch/internal/blockmap"
	"github.com/adamancini/hatch/internal/failure"
)

// BlockMapSuffix is appended to an artifact URL to locate its block map.
const BlockMapSuffix = ".blockmap"

// BlockMapURLs returns the block-map URLs of the running version's artifact
// and of the new one. The old URL is the artifact URL with every
// occurrence of the new version in its path replaced by the old version.
func BlockMapURLs(artifactURL, oldVersion, newVersion string) (oldURL, newURL string, err error) {
	if !ValidVersion(oldVersion) {
		return "", "", fmt.Errorf("invalid running version %q", oldVersion)
	}
	if !ValidVersion(newVersion) {
		return "", "", fmt.Errorf("invalid new version %q", newVersion)
	}

	u, err := url.Parse(artifactURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid artifact URL: %w", err)
	}

	newU := *u
	newU.Path = u.Path + BlockMapSuffix
	newU.RawPath = ""

	oldU := *u
	oldU.Path = strings.ReplaceAll(u.Path, NormalizeVersion(newVersion), NormalizeVersion(oldVersion)) + BlockMapSuffix
	oldU.RawPath = ""

	return oldU.String(), newU.String(), nil
}

// fetchBlockMaps downloads and parses both block maps in parallel.
func fetchBlockMaps(ctx context.Context, d Downloader, oldURL, newURL string, opts Options) (*blockmap.BlockMap, *blockmap.BlockMap, error) {
	urls := []string{oldURL, newURL}
	maps := make([]*blockmap.BlockMap, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		g.Go(func() error {
			data, err := d.DownloadToBuffer(gctx, u, Options{Headers: opts.Headers})
			if err != nil {
				return err
			}
			m, err := blockmap.Parse(data)
			if err != nil {
				return failure.Corruption("fetch block map", fmt.Errorf("cannot parse block map %q: %w", u, err))
			}
			maps[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return maps[0], maps[1], nil
}
