// Package ndgr is the public entry point a consumer imports: Client wires
// components A-I (internal/*) into the three operations spec.md §6
// exposes — streamComments, downloadBackward, updateChannelAliasMap/
// listProgramsOn — without requiring the caller to import any internal/*
// package directly. Mirrors the teacher's cli/cmd root command in shape: a
// plain options struct rather than functional options, matching
// linkerd-linkerd2's proxyConfigOptions pattern.
package ndgr

// Options configures a Client. The zero value is ready to use (an
// unauthenticated session); set LoginMail/LoginPassword to enable timeshift
// activation on ended programs (spec.md §4.C step 3).
type Options struct {
	// LoginMail and LoginPassword, if both set, log the session in before
	// any operation runs. Leave both empty to operate logged out; timeshift
	// activation is then skipped rather than attempted. When logged in, a
	// failed activation is returned as an error from the operation.
	LoginMail     string
	LoginPassword string
}

// DefaultOptions returns an unauthenticated Options value.
func DefaultOptions() Options {
	return Options{}
}

func (o Options) loginConfigured() bool {
	return o.LoginMail != "" && o.LoginPassword != ""
}
