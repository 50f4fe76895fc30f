package services

// Domain event names published after successful writes.
const (
	EventUserRegistered  = "user.registered"
	EventFavoriteAdded   = "favorite.added"
	EventFavoriteRemoved = "favorite.removed"
)

// EventPublisher delivers domain events to interested consumers.
// Implemented by *rabbitmq.Client.
type EventPublisher interface {
	PublishEvent(name string, payload map[string]interface{}) error
}
