// Package assetloader locates and loads the assets produced by the
// "zenstack generate" step: model metadata, access policies and the
// optional zod schema set. It resolves them from an explicit load path,
// from the runtime's default location, or in test mode from the working
// directory, and returns them as opaque decoded values.
package assetloader
