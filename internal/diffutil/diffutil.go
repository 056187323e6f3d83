// Package diffutil computes the iteration_diff summary between two
// attempts' generated source, using the same line-level diffmatchpatch
// engine this codebase's teacher uses for file diffs.
package diffutil

import (
	"regexp"
	"strings"
	"sync"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Summary is the component/trace-level delta one pair of attempts produced.
type Summary struct {
	AddedComponents        int
	RemovedComponents      int
	ChangedComponentValues int
	TraceCountDelta        int
}

// Engine wraps a diffmatchpatch instance; NewEngine disables its timeout
// the same way the teacher's file-diff engine does, favoring accuracy over
// a bounded worst case since circuit source files are small.
type Engine struct {
	dmp   *diffmatchpatch.DiffMatchPatch
	cache sync.Map
}

func NewEngine() *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	return &Engine{dmp: dmp}
}

var defaultEngine = NewEngine()

// Compute summarizes the change between oldCode and newCode using the
// default engine.
func Compute(oldCode, newCode string) Summary {
	return defaultEngine.Compute(oldCode, newCode)
}

type cacheKey struct{ oldHash, newHash uint64 }

func (e *Engine) Compute(oldCode, newCode string) Summary {
	key := cacheKey{hash(oldCode), hash(newCode)}
	if cached, ok := e.cache.Load(key); ok {
		return cached.(Summary)
	}

	a, b, lineArray := e.dmp.DiffLinesToChars(oldCode, newCode)
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCleanupSemantic(diffs)
	diffs = e.dmp.DiffCharsToLines(diffs, lineArray)

	added := map[string]bool{}
	removed := map[string]bool{}
	addedValues := map[string]string{}
	removedValues := map[string]string{}
	traceDelta := 0

	for _, d := range diffs {
		for _, line := range strings.Split(d.Text, "\n") {
			if line == "" {
				continue
			}
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				if ref, ok := componentRef(line); ok {
					added[ref] = true
					addedValues[ref] = componentValue(line)
				}
				traceDelta += strings.Count(line, "<trace")
			case diffmatchpatch.DiffDelete:
				if ref, ok := componentRef(line); ok {
					removed[ref] = true
					removedValues[ref] = componentValue(line)
				}
				traceDelta -= strings.Count(line, "<trace")
			}
		}
	}

	changed := 0
	for ref := range added {
		if removed[ref] {
			if addedValues[ref] != removedValues[ref] {
				changed++
			}
			delete(added, ref)
			delete(removed, ref)
		}
	}

	summary := Summary{
		AddedComponents:        len(added),
		RemovedComponents:      len(removed),
		ChangedComponentValues: changed,
		TraceCountDelta:        traceDelta,
	}
	e.cache.Store(key, summary)
	return summary
}

var (
	componentRefRe = regexp.MustCompile(`<component\s+name="([^"]+)"`)
	valueRe        = regexp.MustCompile(`value="([^"]*)"`)
)

func componentRef(line string) (string, bool) {
	m := componentRefRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func componentValue(line string) string {
	m := valueRe.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	return m[1]
}

func hash(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}
