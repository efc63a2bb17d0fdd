package bus

import "context"

// NullSink discards every event. Useful as a default sink in tests and in
// headless runs that don't care about observability output.
type NullSink struct{}

func (NullSink) Emit(Event)              {}
func (NullSink) Flush(context.Context) error { return nil }
