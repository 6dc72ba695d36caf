package config

import (
	"testing"

	"go.viam.com/sensing/testutils"
)

func TestMain(m *testing.M) {
	testutils.VerifyTestMain(m)
}
