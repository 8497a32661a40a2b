package events

import "context"

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishBookCreated(context.Context, uint, string, string, int) error { return nil }
func (NopPublisher) PublishBookUpdated(context.Context, uint, string, string, int) error { return nil }
func (NopPublisher) PublishBookDeleted(context.Context, uint) error                      { return nil }
func (NopPublisher) PublishBookIssued(context.Context, uint, uint, uint, int, int) error { return nil }

func (NopPublisher) PublishBookReturned(context.Context, uint, uint, int, int, bool, int) error {
	return nil
}

func (NopPublisher) IsHealthy() bool { return true }
func (NopPublisher) Close() error    { return nil }
