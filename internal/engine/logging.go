package engine

import (
	"os"

	"github.com/charmbracelet/log"
)

func defaultLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "april",
	})
}
