package api

import (
	"context"
	"fmt"
)

// InsertEmailSubscriber creates a new email subscriber.
func (c *Client) InsertEmailSubscriber(ctx context.Context, subscriber Entity) (*Response, error) {
	return c.Insert(ctx, c.endpoint(emailSubscribersResource), subscriber, "email subscriber")
}

// FindEmailSubscriber gets the subscriber with the given email address.
func (c *Client) FindEmailSubscriber(ctx context.Context, email string, errorIfNotFound bool) (*Response, error) {
	if email == "" {
		return nil, fmt.Errorf("email must not be empty")
	}
	c.logger.Debug().Str("email", email).Msg("Trying to find email subscriber")
	return c.Get(ctx, c.itemEndpoint(emailSubscribersResource, email), errorIfNotFound)
}

// ListEmailSubscribers returns all email subscribers.
func (c *Client) ListEmailSubscribers(ctx context.Context) ([]Entity, error) {
	return c.ListAll(ctx, c.endpoint(emailSubscribersResource))
}

// FilterEmailSubscribers returns the subscribers matching the given filter
// expression.
func (c *Client) FilterEmailSubscribers(ctx context.Context, filter string) ([]Entity, error) {
	return c.FilterList(ctx, c.endpoint(emailSubscribersResource), filter)
}

// CountEmailSubscribers returns the total number of email subscribers.
func (c *Client) CountEmailSubscribers(ctx context.Context) (int, error) {
	return c.Count(ctx, c.endpoint(emailSubscribersResource))
}

// ConfirmEmailSubscriber marks the subscriber as confirmed and clears the
// confirmation token.
func (c *Client) ConfirmEmailSubscriber(ctx context.Context, email string) (*Response, error) {
	if email == "" {
		return nil, fmt.Errorf("email must not be empty")
	}
	updates := Entity{"confirmed": true, "confirm_token": ""}
	return c.Patch(ctx, c.itemEndpoint(emailSubscribersResource, email), updates)
}

// UnsubscribeEmailSubscriber removes the subscriber with the given email
// address.
func (c *Client) UnsubscribeEmailSubscriber(ctx context.Context, email string) (*Response, error) {
	if email == "" {
		return nil, fmt.Errorf("email must not be empty")
	}
	return c.Delete(ctx, c.itemEndpoint(emailSubscribersResource, email))
}
