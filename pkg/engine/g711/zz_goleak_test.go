package g711

import (
	"testing"

	"go.uber.org/goleak"
)

// Горутины движков должны завершаться в Stop, Reset и Release
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
