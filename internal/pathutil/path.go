// Package pathutil implements the path predicates the bundle registry
// needs to merge, sub-queue, and relocate bundles on disk. Paths are
// slash-normalized strings; callers pass whatever separator the local
// filesystem uses and get back slash-normalized segments.
package pathutil

import (
	"regexp"
	"strings"
)

// subDirPattern matches directory names that are commonly used to split a
// single release across several local folders (CD1, Disc 2, Sample, ...).
// A match here is not itself proof of a correct association; it only tells
// FindRemoteDir to keep walking up and compare another segment instead of
// trusting the final one (spec.md §4.1, §9 "Path matching of CD1-like subdirs").
var subDirPattern = regexp.MustCompile(`(?i)^(cd|dvd|disc|disk|part|sample|proof|cover[s]?|subs?)[ ._-]?[0-9]{0,2}$`)

// Normalize converts OS separators to '/' and trims a single trailing slash.
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = p[:len(p)-1]
	}
	return p
}

func segments(p string) []string {
	p = Normalize(p)
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// LastSegment returns the final path component, ignoring a trailing separator.
func LastSegment(p string) string {
	segs := segments(p)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// IsSub reports whether a is strictly inside b (a != b).
func IsSub(a, b string) bool {
	as, bs := segments(a), segments(b)
	if len(as) <= len(bs) {
		return false
	}
	for i, s := range bs {
		if !strings.EqualFold(s, as[i]) {
			return false
		}
	}
	return true
}

// IsParentOrExact reports whether b is a (exact) or b is strictly inside a.
func IsParentOrExact(a, b string) bool {
	as, bs := segments(a), segments(b)
	if len(as) > len(bs) {
		return false
	}
	for i, s := range as {
		if !strings.EqualFold(s, bs[i]) {
			return false
		}
	}
	return true
}

// IsSubDirLike reports whether the last segment of p looks like a disc/part
// split rather than a meaningful release name.
func IsSubDirLike(name string) bool {
	return subDirPattern.MatchString(strings.TrimSpace(name))
}

// GetMountPath resolves p to the longest entry of volumes that is a prefix
// of p, mirroring AirUtil::getMountPath's "longest matching mount point"
// behaviour. Returns "" if no volume matches.
func GetMountPath(p string, volumes []string) string {
	pn := Normalize(p)
	best := ""
	for _, v := range volumes {
		vn := Normalize(v)
		if vn == "" {
			continue
		}
		if pn == vn || strings.HasPrefix(pn+"/", vn+"/") {
			if len(vn) > len(best) {
				best = vn
			}
		}
	}
	return best
}
