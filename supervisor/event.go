package supervisor

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type EventLevel string

const (
	LvlError EventLevel = "error"
	LvlInfo  EventLevel = "info"
)

// Event is a notification about a worker lifecycle change or failure.
type Event struct {
	Level   EventLevel
	Worker  WorkerName
	Fields  map[string]interface{}
	Message string
}

func (e Event) IsError() bool {
	return e.Level == LvlError
}

func (e Event) ToError() error {
	if !e.IsError() {
		return nil
	}
	return errors.New(e.Message)
}

func (e Event) SetField(key string, value interface{}) Event {
	if e.Fields == nil {
		e.Fields = map[string]interface{}{}
	}
	e.Fields[key] = value
	return e
}

func (e Event) SetWorker(name WorkerName) Event {
	e.Worker = name
	return e
}

func ErrorEvent(msg string) Event {
	return Event{
		Level:   LvlError,
		Message: msg,
	}
}

func InfoEvent(msg string) Event {
	return Event{
		Level:   LvlInfo,
		Message: msg,
	}
}

// EventHandler processes supervision events; optional hook for the
// embedding application and for tests.
type EventHandler func(Event)

// LogrusEventHandler returns an `EventHandler` that writes all events to `entry`.
func LogrusEventHandler(entry *logrus.Entry) EventHandler {
	return func(event Event) {
		var level logrus.Level
		switch event.Level {
		case LvlError:
			level = logrus.ErrorLevel
		case LvlInfo:
			level = logrus.InfoLevel
		default:
			level = logrus.WarnLevel
		}

		entry.WithField("worker", event.Worker).
			WithFields(logrus.Fields(event.Fields)).
			Log(level, event.Message)
	}
}
