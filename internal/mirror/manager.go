package mirror

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hlsmirror/go-hlsmirror/internal/config"
	"github.com/hlsmirror/go-hlsmirror/internal/playlist"
	"github.com/hlsmirror/go-hlsmirror/internal/resolver"
)

// ErrNoFilename is returned when a master playlist URL has no filename
// component to persist it under.
var ErrNoFilename = errors.New("mirror: cannot derive a filename from url")

type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL) ([]byte, error)
}

type ManagerCtx struct {
	logger zerolog.Logger
	client Fetcher
	config *config.Stream
	length FetchLength
}

func New(client Fetcher, config *config.Stream) *ManagerCtx {
	return &ManagerCtx{
		logger: log.With().Str("module", "mirror").Logger(),
		client: client,
		config: config,
		length: FetchLength{
			Duration: config.Duration,
			Count:    config.Count,
		},
	}
}

// Mirror fetches the playlist tree rooted at the configured URL and
// persists it under the output directory, preserving the origin's relative
// directory shape. Files already present on disk are skipped, so an
// aborted run can be resumed by running again.
func (m *ManagerCtx) Mirror(ctx context.Context) error {
	rootURL := m.config.Source

	if err := os.MkdirAll(m.config.Output, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	data, err := m.client.Fetch(ctx, rootURL)
	if err != nil {
		return err
	}

	master, _, err := playlist.Parse(data)
	if err != nil {
		return err
	}

	base, err := resolver.Base(rootURL)
	if err != nil {
		return err
	}

	if master != nil {
		m.logger.Info().Str("url", rootURL.String()).Msg("master playlist found")
		return m.mirrorMaster(ctx, rootURL, base, master, data)
	}

	m.logger.Info().Str("url", rootURL.String()).Msg("media playlist found")
	return m.mirrorMedia(ctx, rootURL, base, data)
}

func (m *ManagerCtx) mirrorMaster(ctx context.Context, rootURL, base *url.URL, master *playlist.Master, data []byte) error {
	name, ok := resolver.Filename(rootURL)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoFilename, rootURL)
	}

	path := filepath.Join(m.config.Output, name)
	if err := saveFile(path, data); err != nil {
		return err
	}
	m.logger.Info().Str("path", path).Msg("master playlist saved")

	total := len(master.Variants)
	for i, variant := range master.Variants {
		m.logger.Info().
			Int("variant", i+1).
			Int("total", total).
			Str("uri", variant.URI).
			Uint32("bandwidth", variant.Bandwidth).
			Msg("processing variant")

		variantURL, err := joinURL(base, variant.URI)
		if err != nil {
			return err
		}

		// renditions are mirrored one after another, only segments
		// within one rendition run concurrently
		if err := m.mirrorMedia(ctx, variantURL, base, nil); err != nil {
			return err
		}
	}

	return nil
}

// mirrorMedia persists the media playlist at manifestURL below the output
// directory and fans out over the selected window of its segments. data
// carries already-fetched playlist bytes and may be nil.
func (m *ManagerCtx) mirrorMedia(ctx context.Context, manifestURL, outerBase *url.URL, data []byte) error {
	rel, err := resolver.Relative(outerBase, manifestURL)
	if err != nil {
		return err
	}
	path := filepath.Join(m.config.Output, filepath.FromSlash(rel))

	if data == nil {
		if data, err = m.client.Fetch(ctx, manifestURL); err != nil {
			return err
		}
	}

	master, media, err := playlist.Parse(data)
	if err != nil {
		return err
	}
	if master != nil {
		return fmt.Errorf("%w: expected a media playlist at %s", playlist.ErrParse, manifestURL)
	}

	if err := saveFile(path, data); err != nil {
		return err
	}
	m.logger.Info().Str("path", path).Msg("media playlist saved")

	// segment URIs are relative to the media playlist itself, not to the
	// master that referenced it
	base, err := resolver.Base(manifestURL)
	if err != nil {
		return err
	}

	window := m.length.Window(media.Segments)
	if len(window) < len(media.Segments) {
		m.logger.Info().
			Int("selected", len(window)).
			Int("total", len(media.Segments)).
			Msg("fetch length limit applied")
	}

	return m.fanOut(ctx, filepath.Dir(path), base, window)
}

type segmentTask struct {
	index int
	url   *url.URL
	path  string
	done  chan error
}

// fanOut downloads segments concurrently, bounded by the configured
// concurrency, and reports completions in playlist order. The first
// failure aborts the wait; the group context cancels siblings still in
// flight, and the earliest actual failure is surfaced.
func (m *ManagerCtx) fanOut(ctx context.Context, dir string, base *url.URL, segments []playlist.Segment) error {
	total := len(segments)

	tasks := make([]*segmentTask, 0, total)
	for i, segment := range segments {
		segmentURL, err := joinURL(base, segment.URI)
		if err != nil {
			return err
		}

		rel, err := resolver.Relative(base, segmentURL)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, filepath.FromSlash(rel))

		if _, err := os.Stat(path); err == nil {
			m.logger.Info().
				Int("segment", i+1).
				Int("total", total).
				Str("path", path).
				Msg("segment already exists, skipping")
			continue
		}

		tasks = append(tasks, &segmentTask{
			index: i,
			url:   segmentURL,
			path:  path,
			done:  make(chan error, 1),
		})
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.config.Concurrency)

	for _, task := range tasks {
		task := task
		g.Go(func() error {
			err := m.fetchSegment(ctx, task, total)
			task.done <- err
			return err
		})
	}

	for _, task := range tasks {
		if err := <-task.done; err != nil {
			// let siblings finish, then surface the first failure
			if werr := g.Wait(); werr != nil {
				return werr
			}
			return err
		}

		m.logger.Info().
			Int("segment", task.index+1).
			Int("total", total).
			Str("path", task.path).
			Msg("segment saved")
	}

	return g.Wait()
}

func (m *ManagerCtx) fetchSegment(ctx context.Context, task *segmentTask, total int) error {
	m.logger.Debug().
		Int("segment", task.index+1).
		Int("total", total).
		Str("url", task.url.String()).
		Msg("processing segment")

	data, err := m.client.Fetch(ctx, task.url)
	if err != nil {
		return err
	}

	return saveFile(task.path, data)
}

func joinURL(base *url.URL, uri string) (*url.URL, error) {
	ref, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse reference %q: %w", uri, err)
	}
	return base.ResolveReference(ref), nil
}

func saveFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
