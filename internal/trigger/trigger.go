// Package trigger decides whether a push event should run the publish
// pipeline, and under which release version the result is published.
package trigger

import (
	"strings"
)

const (
	branchRefPrefix = "refs/heads/"
	tagRefPrefix    = "refs/tags/"
)

// Event is a push event as delivered by a forge webhook or synthesized
// by the CLI from two commits.
type Event struct {
	Ref          string   // full ref name, e.g. refs/heads/main or refs/tags/concrete-core-1.4.0
	ChangedPaths []string // repository-relative paths touched by the push
}

// Rules are the fixed trigger constants for one pipeline instance.
type Rules struct {
	DocsDir        string // path filter; a push must touch this directory to build
	DefaultBranch  string // branch whose builds publish under DefaultVersion
	TagPrefix      string // tag prefix identifying release tags
	DefaultVersion string // version label for default-branch builds
}

// Decision is the outcome of evaluating an event against the rules.
type Decision struct {
	ShouldBuild   bool
	ShouldPublish bool
	// Version is the release version label. Non-empty whenever
	// ShouldPublish is true; used verbatim as a destination sub-path.
	Version string
	Reason  string
}

// Evaluate applies the trigger rules to a push event.
//
// Branch pushes build only when the change set intersects DocsDir.
// Release tags always build: a tagged release publishes the full doc
// set even when the tagging commit touched nothing under DocsDir.
func Evaluate(rules Rules, event Event) Decision {
	switch {
	case strings.HasPrefix(event.Ref, tagRefPrefix):
		return evaluateTag(rules, event)
	case strings.HasPrefix(event.Ref, branchRefPrefix):
		return evaluateBranch(rules, event)
	default:
		return Decision{Reason: "ref is neither a branch nor a tag"}
	}
}

func evaluateTag(rules Rules, event Event) Decision {
	tag := strings.TrimPrefix(event.Ref, tagRefPrefix)
	if !strings.HasPrefix(tag, rules.TagPrefix) {
		return Decision{Reason: "tag does not match configured prefix"}
	}

	// Strip the prefix exactly once; the remainder is the version.
	version := strings.TrimPrefix(tag, rules.TagPrefix)
	if version == "" {
		return Decision{Reason: "tag matches prefix but carries no version"}
	}

	return Decision{
		ShouldBuild:   true,
		ShouldPublish: true,
		Version:       version,
		Reason:        "release tag",
	}
}

func evaluateBranch(rules Rules, event Event) Decision {
	if !touchesDocs(rules.DocsDir, event.ChangedPaths) {
		return Decision{Reason: "no changes under docs directory"}
	}

	branch := strings.TrimPrefix(event.Ref, branchRefPrefix)
	if branch == rules.DefaultBranch {
		return Decision{
			ShouldBuild:   true,
			ShouldPublish: true,
			Version:       rules.DefaultVersion,
			Reason:        "push to default branch",
		}
	}

	// Non-default branches build for status visibility but never publish.
	return Decision{
		ShouldBuild: true,
		Version:     rules.DefaultVersion,
		Reason:      "push to non-default branch",
	}
}

// touchesDocs reports whether any changed path is the docs directory
// itself or lies beneath it.
func touchesDocs(docsDir string, paths []string) bool {
	docsDir = strings.Trim(docsDir, "/")
	if docsDir == "" {
		return len(paths) > 0
	}
	for _, p := range paths {
		p = strings.TrimPrefix(p, "/")
		if p == docsDir || strings.HasPrefix(p, docsDir+"/") {
			return true
		}
	}
	return false
}
