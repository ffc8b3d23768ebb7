// Package slideshow provides the use case for composing a video slideshow
// from stored image and audio assets and uploading the result.
package slideshow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/slidekit/slideshow-api/internal/filtergraph"
)

// Static errors for spec validation.
var (
	// ErrImageCountMismatch is returned when image keys and timings differ in length.
	ErrImageCountMismatch = errors.New("slideshow: image key and timing counts differ")
	// ErrAudioCountMismatch is returned when audio keys and timings differ in length.
	ErrAudioCountMismatch = errors.New("slideshow: audio key and timing counts differ")
	// ErrOutputRequired is returned when no output key is given.
	ErrOutputRequired = errors.New("slideshow: output key is required")
	// ErrOutputIsRoot is returned when the output key targets the storage root.
	ErrOutputIsRoot = errors.New("slideshow: output key must not target the storage root")
)

// Spec describes one slideshow job: ordered timed images, ordered timed
// audio, an optional crossfade, and the storage key for the output.
// Image and audio counts are independent of each other.
type Spec struct {
	Images     []filtergraph.Segment `json:"images"`
	Audio      []filtergraph.Segment `json:"audio"`
	Transition float64               `json:"transition,omitempty"`
	Output     string                `json:"output"`
}

// NewSpec pairs the parallel key and timing lists of a submission into a
// Spec. The lists must be equal in length per kind.
func NewSpec(imageKeys []string, imageTimings []float64, audioKeys []string, audioTimings []float64, transition float64, output string) (Spec, error) {
	if len(imageKeys) != len(imageTimings) {
		return Spec{}, fmt.Errorf("%w: %d keys, %d timings", ErrImageCountMismatch, len(imageKeys), len(imageTimings))
	}
	if len(audioKeys) != len(audioTimings) {
		return Spec{}, fmt.Errorf("%w: %d keys, %d timings", ErrAudioCountMismatch, len(audioKeys), len(audioTimings))
	}

	spec := Spec{
		Transition: transition,
		Output:     output,
	}
	for i, key := range imageKeys {
		spec.Images = append(spec.Images, filtergraph.Segment{Key: key, Duration: imageTimings[i]})
	}
	for j, key := range audioKeys {
		spec.Audio = append(spec.Audio, filtergraph.Segment{Key: key, Duration: audioTimings[j]})
	}

	return spec, nil
}

// Validate checks the spec without touching storage or spawning anything.
// The graph builder performs the duration and transition checks; output
// key checks are done here.
func (s Spec) Validate(opts filtergraph.Options) error {
	if s.Output == "" {
		return ErrOutputRequired
	}
	if strings.Trim(s.Output, "/") == "" || strings.HasSuffix(s.Output, "/") {
		return fmt.Errorf("%w: %q", ErrOutputIsRoot, s.Output)
	}

	_, err := filtergraph.Build(s.graphSpec(), opts)
	return err
}

// graphSpec projects the slideshow spec onto the filter graph input.
func (s Spec) graphSpec() filtergraph.Spec {
	return filtergraph.Spec{
		Images:     s.Images,
		Audio:      s.Audio,
		Transition: s.Transition,
	}
}
