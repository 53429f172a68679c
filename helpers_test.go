package main

import "github.com/sirupsen/logrus"

// testLogEntry returns a discard-bound logrus entry so test output stays
// quiet; used anywhere a *logrus.Entry parameter is required.
func testLogEntry() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}
