package diva

import (
	"iter"
	"strings"
)

// CollectOutputs yields the downloadable files of doc, in output order, that
// pass filter. A nil filter keeps every file. The sequence reads only doc and
// can be ranged over any number of times.
func CollectOutputs(doc *ResultDocument, filter OutputFilter) iter.Seq[Artifact] {
	return func(yield func(Artifact) bool) {
		if doc == nil {
			return
		}
		for _, item := range doc.Output {
			if item.File == nil || item.File.Name == "" || item.File.URL == "" {
				continue
			}
			if filter != nil && !filter(*item.File) {
				continue
			}
			if !yield(Artifact{Name: item.File.Name, URL: item.File.URL}) {
				return
			}
		}
	}
}

// All keeps every output file.
func All(OutputFile) bool { return true }

// NameContains keeps files whose declared name contains any of substrs.
func NameContains(substrs ...string) OutputFilter {
	return func(file OutputFile) bool {
		for _, sub := range substrs {
			if strings.Contains(file.Name, sub) {
				return true
			}
		}
		return false
	}
}

// Outcome classifies the document's status.
func (d *ResultDocument) Outcome() Outcome {
	switch d.Status {
	case StatusPlanned:
		return OutcomePending
	case StatusDone:
		return OutcomeSucceeded
	case StatusError, StatusFailed:
		return OutcomeFailed
	default:
		return OutcomeAmbiguous
	}
}

// Err returns nil for a successfully finished job, and an error describing why
// the outputs must not be collected otherwise.
func (d *ResultDocument) Err() error {
	const op = "check result"
	switch d.Outcome() {
	case OutcomeSucceeded:
		return nil
	case OutcomeFailed:
		return newError(KindJobFailed, op, nil, "job reported status %q", d.Status)
	case OutcomePending:
		return newError(KindAmbiguousOutcome, op, nil, "job is still %q", d.Status)
	default:
		return newError(KindAmbiguousOutcome, op, nil, "unrecognized job status %q", d.Status)
	}
}
