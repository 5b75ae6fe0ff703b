// Package cos provides small low-level utilities shared by every shaco
// package: id generation and common error types.
package cos

import (
	"github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"
)

const uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var sid *shortid.Shortid

func init() {
	sid = shortid.MustNew(1, uuidABC, 1)
}

// GenSessionSeed derives a pseudo-random, non-zero 32-bit seed for a
// harbor session id from a short-id string, so that two bootstraps of the
// same process don't replay the same session sequence.
func GenSessionSeed() int32 {
	u := sid.MustGenerate()
	h := xxhash.ChecksumString32(u)
	v := int32(h)
	if v == 0 {
		v = 1
	}
	return v
}

// GenSlaveTie produces a short tie-breaker string, used to disambiguate
// two slave-attach commands that race for the same slave id.
func GenSlaveTie() string {
	return sid.MustGenerate()[:3]
}
