// Package plugin loads services from a declarative manifest. A manifest is a
// YAML file naming plugin instances by id, type, and config; each type is
// backed by a registered Builder that turns the config into a service. The
// loader initializes each service with a bounded timeout, registers it, and
// can watch the manifest to apply additions, changes, and removals at
// runtime.
package plugin
