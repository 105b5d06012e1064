package services

import "github.com/ndharma28/omega-gaming/internal/models"

type Broadcaster interface {
	BroadcastEvent(event *models.Event)
}

// NopBroadcaster drops events. Used in tests and headless tooling.
type NopBroadcaster struct{}

func (NopBroadcaster) BroadcastEvent(event *models.Event) {}
