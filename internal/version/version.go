/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package version resolves the version of the siteapi binary.
package version

import (
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ProductName is used in the User-Agent header of outgoing requests.
const ProductName = "siteapi"

// PrometheusLabel is the name of the constant label with the binary version.
const PrometheusLabel = "siteapi_version"

const develVersion = "v0.0.0-devel"

// Version may be set at link time (-ldflags "-X github.com/leadforge/siteapi/internal/version.Version=v1.2.3").
// The main module version from the build info is used otherwise.
var Version string

var resolvedVersion string
var resolveOnce sync.Once

// Get returns the binary version.
func Get() string {
	resolveOnce.Do(func() {
		resolvedVersion = Version
		if resolvedVersion == "" {
			if buildInfo, ok := debug.ReadBuildInfo(); ok {
				resolvedVersion = mainModuleVersion(buildInfo)
			}
		}
		if resolvedVersion == "" {
			resolvedVersion = develVersion
		}
	})
	return resolvedVersion
}

// UserAgent returns the User-Agent header value, e.g. "siteapi/v1.2.3".
func UserAgent() string {
	return ProductName + "/" + Get()
}

// AddPrometheusLabel returns a copy of labels with the version label added.
func AddPrometheusLabel(labels prometheus.Labels) prometheus.Labels {
	labelsCopy := make(prometheus.Labels, len(labels)+1)
	for k, v := range labels {
		labelsCopy[k] = v
	}
	labelsCopy[PrometheusLabel] = Get()
	return labelsCopy
}

// mainModuleVersion returns the version of the main module, "(devel)" builds have no version.
func mainModuleVersion(buildInfo *debug.BuildInfo) string {
	if buildInfo == nil || buildInfo.Main.Version == "(devel)" {
		return ""
	}
	return buildInfo.Main.Version
}
