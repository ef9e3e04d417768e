// Package file provides filesystem-backed configuration adapters.
//
//   - ConfigStore: settings in ~/.fabric/config.toml
//   - EnvStore: environment and .env overrides layered on a ConfigStore
//   - PromptStore: user-editable prompts in ~/.fabric/prompts
//   - Manifest: YAML fabric definitions for `fabric create -f`
package file
