// Copyright (c) 2024 0x9ef. All rights reserved.
// Use of this source code is governed by an MIT license
// that can be found in the LICENSE file.
package pcapreader

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Warner receives best-effort diagnostics about well-framed but
// unsupported input (skipped block types, once per type per trace).
// Warnings never abort decoding.
type Warner interface {
	Warnf(format string, args ...interface{})
}

// logrusWarner is the default Warner, writing to stderr at WarnLevel.
type logrusWarner struct {
	log *logrus.Logger
}

func (w *logrusWarner) Warnf(format string, args ...interface{}) {
	w.log.Warnf(format, args...)
}

func newDefaultWarner() Warner {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logrusWarner{log: log}
}
