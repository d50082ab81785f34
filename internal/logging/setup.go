package logging

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// Setup configures the global logger. When debug is true the level drops to
// Debug and caller reporting is enabled. If logFile is non-empty, output is
// duplicated to that file.
func Setup(debug bool, logFile string) error {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if debug {
		log.SetLevel(log.DebugLevel)
		log.SetReportCaller(true)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	} else {
		log.SetOutput(os.Stdout)
	}
	return nil
}
