package logging

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// lineFormatter renders one record per line as
// "YYYY-MM-DD HH:MM:SS.mmm [LEVEL] message", with any logrus fields
// appended as "key=value" pairs, space-separated, after the message.
type lineFormatter struct{}

var levelLabel = map[logrus.Level]string{
	logrus.DebugLevel: "DEBUG",
	logrus.InfoLevel:  "INFO",
	logrus.WarnLevel:  "WARNING",
	logrus.ErrorLevel: "ERROR",
	logrus.FatalLevel: "FATAL",
	logrus.PanicLevel: "FATAL",
	logrus.TraceLevel: "DEBUG",
}

func (f *lineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	label, ok := levelLabel[entry.Level]
	if !ok {
		label = "INFO"
	}

	line := fmt.Sprintf("%s [%s] %s",
		entry.Time.Format("2006-01-02 15:04:05.000"), label, entry.Message)

	for key, val := range entry.Data {
		line += fmt.Sprintf(" %s=%v", key, val)
	}
	line += "\n"
	return []byte(line), nil
}
