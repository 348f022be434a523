package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types emitted by the booking service. Consumers (calendar sync,
// notification dispatch) react to these after commit; their failures
// never affect the booking itself.
const (
	EventAppointmentScheduled = "booking.appointment.scheduled.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
)
