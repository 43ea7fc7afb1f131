// Package config defines the format-agnostic configuration tree read by the
// Backend and its built-in services, along with the Loader interface that
// format-specific packages (hclconfig, yamlconfig) implement.
//
// Values are addressed with dotted paths such as "backend.listen.port".
// Several sources are merged in order; later sources win key by key.
package config
