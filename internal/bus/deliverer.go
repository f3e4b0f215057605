package bus

import "context"

// Deliverer routes batcher replies back to a single channel via the outbound queue.
type Deliverer struct {
	router  MessageRouter
	channel string
}

// NewDeliverer returns a Deliverer that tags every reply with channel.
func NewDeliverer(router MessageRouter, channel string) *Deliverer {
	return &Deliverer{router: router, channel: channel}
}

func (d *Deliverer) Deliver(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.router.PublishOutbound(OutboundMessage{
		Channel: d.channel,
		ChatID:  chatID,
		Content: text,
	})
	return nil
}
