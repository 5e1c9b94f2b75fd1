package logging

// EntryLoggerAdapter is the method set of entry-style loggers whose
// builders return their own type T, for example *logrus.Entry.
type EntryLoggerAdapter[T any] interface {
	Error(args ...any)
	Info(args ...any)
	Debug(args ...any)
	Trace(args ...any)
	WithError(err error) T
	WithField(key string, value any) T
}

// EntryLogger is an entry logger whose builders return the interface.
type EntryLogger interface {
	EntryLoggerAdapter[EntryLogger]
}

// NewEntryServiceLogger logs through an entry-style logger.
func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	if any(entry) == nil {
		panic("contractflow: entry logger cannot be nil")
	}
	return entryLogger[T]{entry}
}

type entryLogger[T EntryLoggerAdapter[T]] struct{ entry T }

func (e entryLogger[T]) with(fields LogFields) T {
	out := e.entry
	for key, value := range fields {
		out = out.WithField(key, value)
	}
	return out
}

func (e entryLogger[T]) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return e
	}
	return entryLogger[T]{e.with(fields)}
}

func (e entryLogger[T]) Debug(msg string, fields LogFields) { e.with(fields).Debug(msg) }
func (e entryLogger[T]) Info(msg string, fields LogFields)  { e.with(fields).Info(msg) }
func (e entryLogger[T]) Trace(msg string, fields LogFields) { e.with(fields).Trace(msg) }

func (e entryLogger[T]) Error(msg string, err error, fields LogFields) {
	out := e.with(fields)
	if err != nil {
		out = out.WithError(err)
	}
	out.Error(msg)
}
