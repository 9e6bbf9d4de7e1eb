//go:build !xarena_debug

package arena

const debugChecks = false
