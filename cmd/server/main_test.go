package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunReturnsExitCodeOnStartupFailure(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("STORE_DRIVER", "bogus")
	t.Setenv("JAEGER_ENDPOINT", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("KAFKA_BROKERS", "")

	// returning, instead of exiting, is what lets the deferred closes run
	assert.Equal(t, 1, run())
}
