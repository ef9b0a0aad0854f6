package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// stderrHook mirrors error-and-above records to stderr, matching the
// source logger's behavior of always surfacing serious conditions on the
// console in addition to the rotating file.
type stderrHook struct {
	formatter logrus.Formatter
}

func (h *stderrHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.FatalLevel, logrus.ErrorLevel, logrus.PanicLevel}
}

func (h *stderrHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = os.Stderr.Write(line)
	return err
}
