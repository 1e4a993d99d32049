package events

// Publisher adapts an *EventBus to perrors.EventPublisher's TryPublish(event
// any) bool. perrors can't import events directly (events would have to
// import perrors right back for EnhancedError, a cycle), so perrors defines
// its own narrow EventPublisher interface and this is the concrete type that
// satisfies it.
type Publisher struct {
	bus *EventBus
}

// NewPublisher wraps bus for use as a perrors.EventPublisher.
func NewPublisher(bus *EventBus) *Publisher {
	return &Publisher{bus: bus}
}

// TryPublish type-asserts event to ErrorEvent and forwards it to the bus.
// perrors only ever passes *perrors.EnhancedError, which implements
// ErrorEvent; the assertion exists because the interface is typed any at
// the perrors boundary to avoid the import cycle.
func (p *Publisher) TryPublish(event any) bool {
	if p == nil || p.bus == nil {
		return false
	}
	ee, ok := event.(ErrorEvent)
	if !ok {
		return false
	}
	return p.bus.TryPublish(ee)
}
