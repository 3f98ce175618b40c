// Package providers registers every built-in generation backend.
// Import this package to make them available via provider.New():
//
//	import _ "github.com/randalmurphal/promptctx/providers"
package providers

import (
	_ "github.com/randalmurphal/promptctx/local"
)
