package cos

import "github.com/google/uuid"

// GenCorrelationID returns a fresh random id used only to tie together
// log lines for one Context.Create call, bootstrap included (spec.md §9
// "Global singletons" names this as ambient tracing, not part of any
// wire format).
func GenCorrelationID() string {
	return uuid.NewString()
}
