package api

import (
	"context"
	"fmt"
)

// InsertAccount creates a new account.
func (c *Client) InsertAccount(ctx context.Context, account Entity) (*Response, error) {
	return c.Insert(ctx, c.endpoint(accountsResource), account, "account")
}

// FindAccount gets the account with the given email address.
func (c *Client) FindAccount(ctx context.Context, email string, errorIfNotFound bool) (*Response, error) {
	if email == "" {
		return nil, fmt.Errorf("email must not be empty")
	}
	c.logger.Debug().Str("email", email).Msg("Trying to find account")
	return c.Get(ctx, c.itemEndpoint(accountsResource, email), errorIfNotFound)
}

// ListAccounts returns all accounts.
func (c *Client) ListAccounts(ctx context.Context) ([]Entity, error) {
	return c.ListAll(ctx, c.endpoint(accountsResource))
}

// FilterAccounts returns the accounts matching the given filter expression.
func (c *Client) FilterAccounts(ctx context.Context, filter string) ([]Entity, error) {
	return c.FilterList(ctx, c.endpoint(accountsResource), filter)
}

// FilterAccountForToken returns the account associated with the given
// authentication token.
func (c *Client) FilterAccountForToken(ctx context.Context, token string) ([]Entity, error) {
	return c.FilterAccounts(ctx, fmt.Sprintf(`{"token":"%s"}`, token))
}

// CountAccounts returns the total number of accounts.
func (c *Client) CountAccounts(ctx context.Context) (int, error) {
	return c.Count(ctx, c.endpoint(accountsResource))
}
