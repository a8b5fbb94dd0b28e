package util

import (
	"fmt"

	"github.com/rs/zerolog"
)

// RestyLogger routes resty's retry and error messages into zerolog.
type RestyLogger struct {
	Logger    zerolog.Logger
	Component string
}

func (l RestyLogger) Errorf(format string, v ...any) {
	l.Logger.Error().Str("component", l.Component).Msg(fmt.Sprintf(format, v...))
}

func (l RestyLogger) Warnf(format string, v ...any) {
	l.Logger.Warn().Str("component", l.Component).Msg(fmt.Sprintf(format, v...))
}

func (l RestyLogger) Debugf(format string, v ...any) {
	l.Logger.Debug().Str("component", l.Component).Msg(fmt.Sprintf(format, v...))
}
