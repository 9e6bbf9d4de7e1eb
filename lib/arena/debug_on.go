//go:build xarena_debug

package arena

// Built with -tags xarena_debug, Get checks every handle against the
// current cursor.
const debugChecks = true
