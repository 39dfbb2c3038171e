// Package env detects the runtime environment: CI provider and host OS.
package env

import (
	"os"
	"runtime"
	"strings"
)

// CI provider names, matching the identifiers CI tooling conventionally uses.
const (
	ProviderNone           = ""
	ProviderGitHubActions  = "github_actions"
	ProviderGitLab         = "gitlab"
	ProviderCircleCI       = "circleci"
	ProviderTravis         = "travis"
	ProviderBuildkite      = "buildkite"
	ProviderJenkins        = "jenkins"
	ProviderAzurePipelines = "azure_pipelines"
	ProviderBitbucket      = "bitbucket"
	ProviderGeneric        = "ci"
)

// providerVars is checked in order; the first variable present wins.
var providerVars = []struct {
	name string
	env  string
}{
	{ProviderGitHubActions, "GITHUB_ACTIONS"},
	{ProviderGitLab, "GITLAB_CI"},
	{ProviderCircleCI, "CIRCLECI"},
	{ProviderTravis, "TRAVIS"},
	{ProviderBuildkite, "BUILDKITE"},
	{ProviderJenkins, "JENKINS_URL"},
	{ProviderAzurePipelines, "SYSTEM_TEAMFOUNDATIONCOLLECTIONURI"},
	{ProviderBitbucket, "BITBUCKET_COMMIT"},
}

// Detector answers environment questions from an injectable lookup so tests
// do not depend on the machine they run on.
type Detector struct {
	Lookup func(string) (string, bool)
	GOOS   string
}

// Default reads the process environment and runtime.GOOS.
var Default = Detector{Lookup: os.LookupEnv, GOOS: runtime.GOOS}

// Provider returns the detected CI provider, ProviderGeneric when only CI is
// set, or ProviderNone.
func (d Detector) Provider() string {
	for _, p := range providerVars {
		if _, ok := d.Lookup(p.env); ok {
			return p.name
		}
	}
	if truthy(d.Lookup("CI")) {
		return ProviderGeneric
	}
	return ProviderNone
}

// IsCI reports whether any CI provider was detected.
func (d Detector) IsCI() bool {
	return d.Provider() != ProviderNone
}

func (d Detector) IsMacOS() bool {
	return d.GOOS == "darwin"
}

// IsPersonalDevice is false under GitHub Actions and otherwise true only on
// macOS.
func (d Detector) IsPersonalDevice() bool {
	if d.Provider() == ProviderGitHubActions {
		return false
	}
	return d.IsMacOS()
}

func Provider() string       { return Default.Provider() }
func IsCI() bool             { return Default.IsCI() }
func IsMacOS() bool          { return Default.IsMacOS() }
func IsPersonalDevice() bool { return Default.IsPersonalDevice() }

func truthy(v string, ok bool) bool {
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no":
		return false
	}
	return true
}
