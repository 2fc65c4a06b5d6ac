package testlog

import (
	"testing"

	"github.com/hpetrik/chatproto/internal/logging"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	logger := logging.New("test")
	logger.Info().Str("test", t.Name()).Msg("start")
}
