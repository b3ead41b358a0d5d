// Package staging turns uploaded raster and gridded files into the arrays the
// inference service consumes.
package staging

import "strings"

// Stager loads assets from local paths. It holds no per-call state and is
// safe for concurrent use.
type Stager struct {
	overrides   map[string]string
	segmentSize int
}

// Option configures a Stager.
type Option func(*Stager)

// WithVariableOverrides pins the dataset variable used for a hint, e.g.
// {"temperature": "t2m"}. Hints are matched case-insensitively.
func WithVariableOverrides(m map[string]string) Option {
	return func(s *Stager) {
		for k, v := range m {
			s.overrides[strings.ToLower(k)] = v
		}
	}
}

// WithSegmentSize attaches size x size tiles of the urban raster to staged
// raster data. Zero disables segmentation.
func WithSegmentSize(size int) Option {
	return func(s *Stager) {
		s.segmentSize = size
	}
}

// New creates a Stager.
func New(opts ...Option) *Stager {
	s := &Stager{overrides: map[string]string{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
