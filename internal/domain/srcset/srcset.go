// Package srcset parses responsive image source declarations and picks
// the candidate best matching a viewport.
package srcset

import (
	"regexp"
	"sort"
	"strconv"

	"storyview-server-go/internal/platform/errors"
)

// Mode distinguishes width-described sets ("640w") from density
// described sets ("2x"). A set is always exactly one of the two.
type Mode string

const (
	ModeWidth   Mode = "width"
	ModeDensity Mode = "density"
)

// Candidate is one entry of a source set. Width is set in width mode,
// Density in density mode.
type Candidate struct {
	URL     string
	Width   int
	Density float64
}

// SourceSet holds parsed candidates sorted from largest to smallest.
type SourceSet struct {
	mode       Mode
	candidates []Candidate
}

// candidateRe matches "url", "url 640w" and "url 2x" entries separated
// by commas. URLs must not contain whitespace.
var candidateRe = regexp.MustCompile(`(\S+?)(?:\s+(-?\d+(?:\.\d+)?)([a-zA-Z]*))?\s*(?:,|$)`)

// Parse reads a srcset declaration. Entries with an unknown or
// non-positive descriptor are dropped; mixing width and density
// descriptors in one declaration is an error, as is a declaration that
// yields no usable candidate.
func Parse(decl string) (*SourceSet, error) {
	matches := candidateRe.FindAllStringSubmatch(decl, -1)

	var candidates []Candidate
	hasWidth := false
	hasDensity := false
	for _, m := range matches {
		url := m[1]
		if url == "" || url == "," {
			continue
		}
		if m[2] == "" {
			// No descriptor means 1x.
			candidates = append(candidates, Candidate{URL: url, Density: 1})
			hasDensity = true
			continue
		}
		value, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		switch m[3] {
		case "w", "W":
			if value <= 0 {
				continue
			}
			candidates = append(candidates, Candidate{URL: url, Width: int(value)})
			hasWidth = true
		case "x", "X":
			if value <= 0 {
				continue
			}
			candidates = append(candidates, Candidate{URL: url, Density: value})
			hasDensity = true
		default:
			continue
		}
	}

	if len(candidates) == 0 {
		return nil, errors.New(errors.KindConfig, "srcset.parse", "no usable candidates in declaration")
	}
	if hasWidth && hasDensity {
		return nil, errors.New(errors.KindConfig, "srcset.parse", "declaration mixes width and density descriptors")
	}

	mode := ModeDensity
	if hasWidth {
		mode = ModeWidth
	}

	set := &SourceSet{mode: mode, candidates: candidates}
	set.sortDescending()
	return set, nil
}

// FromSrc wraps a bare src URL as a single 1x candidate.
func FromSrc(url string) *SourceSet {
	return &SourceSet{
		mode:       ModeDensity,
		candidates: []Candidate{{URL: url, Density: 1}},
	}
}

func (s *SourceSet) sortDescending() {
	if s.mode == ModeWidth {
		sort.SliceStable(s.candidates, func(i, j int) bool {
			return s.candidates[i].Width > s.candidates[j].Width
		})
	} else {
		sort.SliceStable(s.candidates, func(i, j int) bool {
			return s.candidates[i].Density > s.candidates[j].Density
		})
	}
}

// Mode reports whether the set is width or density described.
func (s *SourceSet) Mode() Mode {
	return s.mode
}

// Candidates returns the candidates, largest first.
func (s *SourceSet) Candidates() []Candidate {
	out := make([]Candidate, len(s.candidates))
	copy(out, s.candidates)
	return out
}

// Select picks the candidate for a viewport width in CSS pixels and a
// device pixel ratio. The width must not be negative and the ratio must
// be positive. Selection is deterministic: the same inputs always
// return the same candidate.
//
// Width mode targets viewportWidth*dpr device pixels and picks the
// smallest candidate at least that wide, or the widest available when
// none suffices. Density mode picks the candidate closest to dpr,
// preferring the denser one on ties.
func (s *SourceSet) Select(viewportWidth int, dpr float64) (Candidate, error) {
	if viewportWidth < 0 {
		return Candidate{}, errors.New(errors.KindConfig, "srcset.select",
			"viewport width must not be negative")
	}
	if dpr <= 0 {
		return Candidate{}, errors.New(errors.KindConfig, "srcset.select",
			"device pixel ratio must be positive")
	}
	if len(s.candidates) == 0 {
		return Candidate{}, errors.New(errors.KindConfig, "srcset.select", "source set has no candidates")
	}
	if s.mode == ModeWidth {
		return s.candidates[s.selectByWidth(float64(viewportWidth)*dpr)], nil
	}
	return s.candidates[s.selectByDensity(dpr)], nil
}

// selectByWidth walks the descending list to the smallest candidate
// still covering the target.
func (s *SourceSet) selectByWidth(target float64) int {
	index := 0
	for index < len(s.candidates)-1 && float64(s.candidates[index+1].Width) >= target {
		index++
	}
	return index
}

func (s *SourceSet) selectByDensity(dpr float64) int {
	index := 0
	for index < len(s.candidates)-1 && s.candidates[index+1].Density >= dpr {
		index++
	}
	// The loop lands on the sparsest candidate still at or above dpr;
	// check whether the one below is strictly closer.
	if index < len(s.candidates)-1 {
		above := s.candidates[index].Density - dpr
		below := dpr - s.candidates[index+1].Density
		if below >= 0 && below < above {
			index++
		}
	}
	return index
}
