package resolver

import (
	"errors"
	"net/url"
	"strings"
)

var (
	// ErrHostMismatch is returned when two URLs being relativized do not
	// share an authority. The mirror follows one origin's tree only.
	ErrHostMismatch = errors.New("resolver: hosts do not match")

	// ErrNoPath is returned when a URL has no path to derive a base from.
	ErrNoPath = errors.New("resolver: url has no path segments")
)

var dirRef = &url.URL{Path: "./"}

// Base truncates a URL to its containing directory, keeping the trailing
// slash. References inside a playlist are resolved against the base of the
// playlist's own URL.
func Base(u *url.URL) (*url.URL, error) {
	if u.Path == "" {
		return nil, ErrNoPath
	}
	return u.ResolveReference(dirRef), nil
}

// Relative computes where target lives below the directory base points to:
// the suffix of target's path segments after the longest common segment
// prefix with base, joined with slashes. An empty result is valid and means
// target is the base directory itself.
func Relative(base, target *url.URL) (string, error) {
	if base.Host != target.Host {
		return "", ErrHostMismatch
	}

	baseSegs := pathSegments(base)
	targetSegs := pathSegments(target)

	i := 0
	for i < len(baseSegs) && i < len(targetSegs) {
		if baseSegs[i] != targetSegs[i] {
			break
		}
		i++
	}

	return strings.Join(targetSegs[i:], "/"), nil
}

// Filename returns the last path segment of u, or ok=false when the path
// ends in a slash and has no filename component. A segment starting with a
// dot (".m3u8" style directory index) is prefixed with the segment before
// it, so distinct indexes do not collapse to the same dot-file on disk.
func Filename(u *url.URL) (string, bool) {
	if u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return "", false
	}

	segs := pathSegments(u)
	name := segs[len(segs)-1]
	if strings.HasPrefix(name, ".") && len(segs) > 1 {
		name = segs[len(segs)-2] + name
	}

	return name, true
}

func pathSegments(u *url.URL) []string {
	return strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
}
