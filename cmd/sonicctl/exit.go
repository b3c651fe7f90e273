package main

import (
	"context"
	"errors"

	"thirdcoast.systems/sonicstream/internal/faults"
)

// Exit codes by failure kind. Scripts depend on these values.
var exitCodes = map[string]int{
	"BadRequest":       2,
	"AssetNotFound":    3,
	"NamingExhausted":  4,
	"ToolFailed":       5,
	"ToolTimedOut":     6,
	"OutputMissing":    7,
	"OutputMalformed":  7,
	"NoStemsProduced":  8,
	"PublishFailed":    9,
	"StoreUnavailable": 10,
}

const exitCanceled = 130

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		return exitCanceled
	}
	if code, ok := exitCodes[faults.KindOf(err)]; ok {
		return code
	}
	return 1
}
