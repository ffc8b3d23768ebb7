// Package filtergraph builds ffmpeg filter_complex graphs for slideshow
// composition. Given ordered image and audio segments with per-segment
// durations, it produces the graph string and the full argument list for
// a single ffmpeg invocation reading every asset from a dedicated pipe.
package filtergraph

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Terminal labels of the generated graph.
const (
	// VideoOut is the label carrying the assembled video stream.
	VideoOut = "vout"
	// AudioOut is the label carrying the assembled audio stream.
	AudioOut = "aout"
)

// firstInputFD is the file descriptor of the first piped input. Descriptors
// 0-2 are stdin/stdout/stderr; extra pipes start at 3.
const firstInputFD = 3

// Static errors for graph validation.
var (
	// ErrNoImages is returned when the spec contains no image segments.
	ErrNoImages = errors.New("filtergraph: at least one image is required")
	// ErrNoAudio is returned when the spec contains no audio segments.
	ErrNoAudio = errors.New("filtergraph: at least one audio segment is required")
	// ErrInvalidDuration is returned when a segment duration is not positive.
	ErrInvalidDuration = errors.New("filtergraph: segment duration must be positive")
	// ErrTransitionTooLong is returned when the crossfade duration is not
	// shorter than every image display duration. Longer transitions would
	// produce negative crossfade offsets and a malformed graph.
	ErrTransitionTooLong = errors.New("filtergraph: transition must be shorter than every image duration")
)

// Segment is one timed entry of the slideshow: an asset reference and how
// long it plays for.
type Segment struct {
	// Key identifies the source asset in object storage.
	Key string
	// Duration is the display (image) or playback (audio) time in seconds.
	Duration float64
}

// Spec describes one slideshow composition.
type Spec struct {
	// Images are the ordered image segments.
	Images []Segment
	// Audio are the ordered audio segments.
	Audio []Segment
	// Transition is the crossfade duration in seconds between consecutive
	// images. Zero disables crossfading and images are hard-cut.
	Transition float64
}

// Options configures the output canvas and encoding.
type Options struct {
	// Width and Height define the canvas every image is scaled and padded to.
	Width  int
	Height int
	// PixelFormat is the output pixel format. Defaults to yuv420p.
	PixelFormat string
}

// DefaultOptions returns the default canvas and pixel format.
func DefaultOptions() Options {
	return Options{
		Width:       1280,
		Height:      720,
		PixelFormat: "yuv420p",
	}
}

// Graph is an assembled filter graph. It is immutable once built.
type Graph struct {
	clauses []string
	inputs  int
	audio   int
	opts    Options
}

// Build assembles the filter graph for the given spec.
//
// Every image is scaled and padded onto the canvas, trimmed to its display
// duration, and its timestamps reset to zero. Video assembly either
// concatenates the segments back to back, or, when a transition is set and
// more than one image is present, folds them pairwise with xfade: the
// crossfade into image i starts at the running total duration minus the
// transition, and each fold shortens the running total by one transition.
// Audio is always concatenated; transitions apply to video only.
func Build(spec Spec, opts Options) (*Graph, error) {
	if len(spec.Images) == 0 {
		return nil, ErrNoImages
	}
	if len(spec.Audio) == 0 {
		return nil, ErrNoAudio
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = DefaultOptions().Width, DefaultOptions().Height
	}
	if opts.PixelFormat == "" {
		opts.PixelFormat = DefaultOptions().PixelFormat
	}

	for _, seg := range spec.Images {
		if seg.Duration <= 0 {
			return nil, fmt.Errorf("%w: image %q has duration %s", ErrInvalidDuration, seg.Key, seconds(seg.Duration))
		}
	}
	for _, seg := range spec.Audio {
		if seg.Duration <= 0 {
			return nil, fmt.Errorf("%w: audio %q has duration %s", ErrInvalidDuration, seg.Key, seconds(seg.Duration))
		}
	}
	if spec.Transition > 0 {
		for _, seg := range spec.Images {
			if spec.Transition >= seg.Duration {
				return nil, fmt.Errorf("%w: transition %s, image %q plays %s",
					ErrTransitionTooLong, seconds(spec.Transition), seg.Key, seconds(seg.Duration))
			}
		}
	}

	g := &Graph{
		inputs: len(spec.Images) + len(spec.Audio),
		audio:  len(spec.Audio),
		opts:   opts,
	}

	// Per-image preparation clauses, labelled v0..v{n-1}.
	for i, seg := range spec.Images {
		g.clauses = append(g.clauses, fmt.Sprintf(
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black,setsar=1,trim=duration=%s,setpts=PTS-STARTPTS[v%d]",
			i, opts.Width, opts.Height, opts.Width, opts.Height, seconds(seg.Duration), i,
		))
	}

	// Per-audio preparation clauses, labelled a0..a{m-1}. Audio inputs
	// follow the image inputs positionally.
	for j, seg := range spec.Audio {
		g.clauses = append(g.clauses, fmt.Sprintf(
			"[%d:a]atrim=duration=%s,asetpts=PTS-STARTPTS[a%d]",
			len(spec.Images)+j, seconds(seg.Duration), j,
		))
	}

	if spec.Transition > 0 && len(spec.Images) > 1 {
		g.buildCrossfade(spec)
	} else {
		g.buildVideoConcat(len(spec.Images))
	}

	g.buildAudioConcat(len(spec.Audio))

	return g, nil
}

// buildVideoConcat joins all image segments back to back into VideoOut.
func (g *Graph) buildVideoConcat(n int) {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "[v%d]", i)
	}
	fmt.Fprintf(&b, "concat=n=%d:v=1:a=0[%s]", n, VideoOut)
	g.clauses = append(g.clauses, b.String())
}

// buildCrossfade folds the image segments left to right with xfade. The
// running label starts at v0 with a cumulative duration of the first image;
// each fold starts its crossfade at cumulative minus the transition and
// shortens the cumulative total by one transition.
func (g *Graph) buildCrossfade(spec Spec) {
	current := "v0"
	cumulative := spec.Images[0].Duration

	for i := 1; i < len(spec.Images); i++ {
		offset := cumulative - spec.Transition
		next := fmt.Sprintf("x%d", i)
		g.clauses = append(g.clauses, fmt.Sprintf(
			"[%s][v%d]xfade=transition=fade:duration=%s:offset=%s[%s]",
			current, i, seconds(spec.Transition), seconds(offset), next,
		))
		current = next
		cumulative += spec.Images[i].Duration - spec.Transition
	}

	g.clauses = append(g.clauses, fmt.Sprintf("[%s]format=%s[%s]", current, g.opts.PixelFormat, VideoOut))
}

// buildAudioConcat joins all audio segments back to back into AudioOut.
func (g *Graph) buildAudioConcat(m int) {
	var b strings.Builder
	for j := 0; j < m; j++ {
		fmt.Fprintf(&b, "[a%d]", j)
	}
	fmt.Fprintf(&b, "concat=n=%d:v=0:a=1[%s]", m, AudioOut)
	g.clauses = append(g.clauses, b.String())
}

// FilterComplex returns the graph as a single filter_complex string.
func (g *Graph) FilterComplex() string {
	return strings.Join(g.clauses, ";")
}

// Clauses returns the individual graph clauses in order.
func (g *Graph) Clauses() []string {
	out := make([]string, len(g.clauses))
	copy(out, g.clauses)
	return out
}

// InputCount returns the number of piped inputs the graph expects,
// images first, audio after.
func (g *Graph) InputCount() int {
	return g.inputs
}

// Args returns the complete ffmpeg argument list for this graph, writing
// the composed video to output. Inputs are declared as pipe sources on
// descriptors 3 and up, images first, matching the positional stream
// references inside the graph. Image pipes use image2pipe rather than a
// frame-looping flag because a stream cannot be looped.
func (g *Graph) Args(output string) []string {
	args := []string{"-y"}

	images := g.inputs - g.audio
	for i := 0; i < images; i++ {
		args = append(args, "-f", "image2pipe", "-i", fmt.Sprintf("pipe:%d", firstInputFD+i))
	}
	for j := 0; j < g.audio; j++ {
		args = append(args, "-i", fmt.Sprintf("pipe:%d", firstInputFD+images+j))
	}

	args = append(args,
		"-filter_complex", g.FilterComplex(),
		"-map", fmt.Sprintf("[%s]", VideoOut),
		"-map", fmt.Sprintf("[%s]", AudioOut),
		"-c:v", "libx264",
		"-pix_fmt", g.opts.PixelFormat,
		"-c:a", "aac",
		"-shortest",
		output,
	)

	return args
}

// seconds formats a duration value without trailing zeros, the way ffmpeg
// filter arguments expect.
func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
