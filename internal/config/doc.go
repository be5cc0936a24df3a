// Package config loads, normalizes, and validates docket's TOML
// configuration.
//
// Configuration resolves from an explicit path, ~/.config/docket/config.toml,
// or a docket.toml in the working directory, in that order, with embedded
// defaults filling any gaps. All path fields are tilde- and env-expanded to
// absolute paths before other packages see them.
package config
