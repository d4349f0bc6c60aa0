package mirror

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hlsmirror/go-hlsmirror/internal/config"
	"github.com/hlsmirror/go-hlsmirror/internal/fetch"
	"github.com/hlsmirror/go-hlsmirror/internal/playlist"
	"github.com/hlsmirror/go-hlsmirror/internal/resolver"
)

const testMaster = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1000000,RESOLUTION=1280x720
gear1/playlist.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=500000,RESOLUTION=854x480
gear2/playlist.m3u8
`

func testMedia(segments ...string) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:4\n#EXT-X-MEDIA-SEQUENCE:0\n")
	for _, segment := range segments {
		fmt.Fprintf(&b, "#EXTINF:4.000,\n%s\n", segment)
	}
	b.WriteString("#EXT-X-ENDLIST\n")
	return b.String()
}

// origin is a fake HLS origin counting every request it serves.
type origin struct {
	mu       sync.Mutex
	requests map[string]int
	files    map[string]string
	status   map[string]int
}

func newOrigin() *origin {
	return &origin{
		requests: map[string]int{},
		files:    map[string]string{},
		status:   map[string]int{},
	}
}

func (o *origin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	o.requests[r.URL.Path]++
	o.mu.Unlock()

	if code, ok := o.status[r.URL.Path]; ok {
		w.WriteHeader(code)
		return
	}

	body, ok := o.files[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write([]byte(body))
}

func (o *origin) count(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.requests[path]
}

func (o *origin) segmentRequests() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := 0
	for path, count := range o.requests {
		if strings.HasSuffix(path, ".ts") {
			n += count
		}
	}
	return n
}

func (o *origin) addTree() {
	o.files["/a/master.m3u8"] = testMaster
	for _, gear := range []string{"gear1", "gear2"} {
		o.files["/a/"+gear+"/playlist.m3u8"] = testMedia("seg0.ts", "seg1.ts", "seg2.ts")
		for i := 0; i < 3; i++ {
			path := fmt.Sprintf("/a/%s/seg%d.ts", gear, i)
			o.files[path] = gear + " segment " + path
		}
	}
}

func newManager(t *testing.T, ts *httptest.Server, rootPath string, mutate func(s *config.Stream)) (*ManagerCtx, string) {
	t.Helper()

	rootURL, err := url.Parse(ts.URL + rootPath)
	require.NoError(t, err)

	cfg := &config.Stream{
		Source:      rootURL,
		Output:      t.TempDir(),
		Concurrency: 4,
	}
	if mutate != nil {
		mutate(cfg)
	}

	return New(fetch.New(nil), cfg), cfg.Output
}

func requireFile(t *testing.T, output, rel, content string) {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(output, filepath.FromSlash(rel)))
	require.NoError(t, err, "expected %s to exist", rel)
	assert.Equal(t, content, string(data))
}

func TestMirrorMasterTree(t *testing.T) {
	o := newOrigin()
	o.addTree()
	ts := httptest.NewServer(o)
	defer ts.Close()

	m, output := newManager(t, ts, "/a/master.m3u8", nil)
	require.NoError(t, m.Mirror(context.Background()))

	requireFile(t, output, "master.m3u8", testMaster)
	for _, gear := range []string{"gear1", "gear2"} {
		requireFile(t, output, gear+"/playlist.m3u8", o.files["/a/"+gear+"/playlist.m3u8"])
		for i := 0; i < 3; i++ {
			rel := fmt.Sprintf("%s/seg%d.ts", gear, i)
			requireFile(t, output, rel, o.files["/a/"+rel])
		}
	}

	assert.Equal(t, 6, o.segmentRequests())
}

func TestMirrorIdempotentRerun(t *testing.T) {
	o := newOrigin()
	o.addTree()
	ts := httptest.NewServer(o)
	defer ts.Close()

	m, _ := newManager(t, ts, "/a/master.m3u8", nil)
	require.NoError(t, m.Mirror(context.Background()))
	require.Equal(t, 6, o.segmentRequests())

	// playlists are always re-fetched to walk the tree, segments already
	// on disk are not
	require.NoError(t, m.Mirror(context.Background()))
	assert.Equal(t, 6, o.segmentRequests())
}

func TestMirrorRootMediaPlaylist(t *testing.T) {
	o := newOrigin()
	o.addTree()
	ts := httptest.NewServer(o)
	defer ts.Close()

	m, output := newManager(t, ts, "/a/gear1/playlist.m3u8", nil)
	require.NoError(t, m.Mirror(context.Background()))

	requireFile(t, output, "playlist.m3u8", o.files["/a/gear1/playlist.m3u8"])
	requireFile(t, output, "seg0.ts", o.files["/a/gear1/seg0.ts"])

	// the root media playlist is fetched exactly once
	assert.Equal(t, 1, o.count("/a/gear1/playlist.m3u8"))
}

func TestMirrorCountWindow(t *testing.T) {
	o := newOrigin()
	o.addTree()
	ts := httptest.NewServer(o)
	defer ts.Close()

	m, output := newManager(t, ts, "/a/gear1/playlist.m3u8", func(s *config.Stream) {
		s.Count = 2
	})
	require.NoError(t, m.Mirror(context.Background()))

	requireFile(t, output, "seg0.ts", o.files["/a/gear1/seg0.ts"])
	requireFile(t, output, "seg1.ts", o.files["/a/gear1/seg1.ts"])
	assert.NoFileExists(t, filepath.Join(output, "seg2.ts"))
	assert.Equal(t, 2, o.segmentRequests())
}

func TestMirrorDurationWindow(t *testing.T) {
	o := newOrigin()
	o.addTree()
	ts := httptest.NewServer(o)
	defer ts.Close()

	// segments are 4s each, the threshold is crossed by the second one
	m, output := newManager(t, ts, "/a/gear1/playlist.m3u8", func(s *config.Stream) {
		s.Duration = 7.0
	})
	require.NoError(t, m.Mirror(context.Background()))

	requireFile(t, output, "seg1.ts", o.files["/a/gear1/seg1.ts"])
	assert.NoFileExists(t, filepath.Join(output, "seg2.ts"))
	assert.Equal(t, 2, o.segmentRequests())
}

func TestMirrorSegmentFailure(t *testing.T) {
	o := newOrigin()
	o.addTree()
	o.status["/a/gear1/seg1.ts"] = http.StatusInternalServerError
	ts := httptest.NewServer(o)
	defer ts.Close()

	m, output := newManager(t, ts, "/a/gear1/playlist.m3u8", func(s *config.Stream) {
		s.Concurrency = 1
	})

	err := m.Mirror(context.Background())
	require.Error(t, err)

	var statusErr *fetch.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)

	// completed work before the failure stays on disk
	requireFile(t, output, "seg0.ts", o.files["/a/gear1/seg0.ts"])
	assert.NoFileExists(t, filepath.Join(output, "seg1.ts"))
}

func TestMirrorMasterWithoutFilename(t *testing.T) {
	o := newOrigin()
	o.addTree()
	o.files["/a/"] = testMaster
	ts := httptest.NewServer(o)
	defer ts.Close()

	m, _ := newManager(t, ts, "/a/", nil)

	err := m.Mirror(context.Background())
	require.ErrorIs(t, err, ErrNoFilename)
	assert.Equal(t, 0, o.segmentRequests())
}

func TestMirrorForeignHostVariant(t *testing.T) {
	o := newOrigin()
	o.files["/a/master.m3u8"] = "#EXTM3U\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=1000000\n" +
		"https://cdn.elsewhere.example/gear1/playlist.m3u8\n"
	ts := httptest.NewServer(o)
	defer ts.Close()

	m, _ := newManager(t, ts, "/a/master.m3u8", nil)

	err := m.Mirror(context.Background())
	require.ErrorIs(t, err, resolver.ErrHostMismatch)
}

func TestMirrorRootParseFailure(t *testing.T) {
	o := newOrigin()
	o.files["/a/master.m3u8"] = "<html>not a playlist</html>"
	ts := httptest.NewServer(o)
	defer ts.Close()

	m, _ := newManager(t, ts, "/a/master.m3u8", nil)

	err := m.Mirror(context.Background())
	require.ErrorIs(t, err, playlist.ErrParse)
}

func TestMirrorMasterWhereMediaExpected(t *testing.T) {
	o := newOrigin()
	o.addTree()
	o.files["/a/gear1/playlist.m3u8"] = testMaster
	ts := httptest.NewServer(o)
	defer ts.Close()

	m, _ := newManager(t, ts, "/a/master.m3u8", nil)

	err := m.Mirror(context.Background())
	require.ErrorIs(t, err, playlist.ErrParse)
}
