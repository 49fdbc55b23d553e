package api

import (
	"context"
	"fmt"
)

// InsertMinedBuildPair creates a new mined build pair.
func (c *Client) InsertMinedBuildPair(ctx context.Context, buildPair Entity) (*Response, error) {
	return c.Insert(ctx, c.endpoint(minedBuildPairsResource), buildPair, "mined build pair")
}

// BulkInsertMinedBuildPairs inserts mined build pairs in chunks and reports
// whether every chunk succeeded.
func (c *Client) BulkInsertMinedBuildPairs(ctx context.Context, buildPairs []Entity) (bool, error) {
	responses, err := c.BulkInsert(ctx, c.endpoint(minedBuildPairsResource), buildPairs, "mined build pairs")
	if err != nil {
		return false, err
	}
	return AllOK(responses), nil
}

// FindMinedBuildPair gets the mined build pair with the given object ID.
func (c *Client) FindMinedBuildPair(ctx context.Context, objectID string, errorIfNotFound bool) (*Response, error) {
	if objectID == "" {
		return nil, fmt.Errorf("object ID must not be empty")
	}
	c.logger.Debug().Str("object_id", objectID).Msg("Trying to find mined build pair")
	return c.Get(ctx, c.itemEndpoint(minedBuildPairsResource, objectID), errorIfNotFound)
}

// ListMinedBuildPairs returns all mined build pairs.
func (c *Client) ListMinedBuildPairs(ctx context.Context) ([]Entity, error) {
	return c.ListAll(ctx, c.endpoint(minedBuildPairsResource))
}

// FilterMinedBuildPairs returns the mined build pairs matching the given
// filter expression.
func (c *Client) FilterMinedBuildPairs(ctx context.Context, filter string) ([]Entity, error) {
	return c.FilterList(ctx, c.endpoint(minedBuildPairsResource), filter)
}

// CountMinedBuildPairs returns the total number of mined build pairs.
func (c *Client) CountMinedBuildPairs(ctx context.Context) (int, error) {
	return c.Count(ctx, c.endpoint(minedBuildPairsResource))
}

// FilterMinedBuildPairsForRepo returns the build pairs mined from repo. The
// result is empty when the repository has no pairs or has not been mined.
func (c *Client) FilterMinedBuildPairsForRepo(ctx context.Context, repo string) ([]Entity, error) {
	return c.FilterMinedBuildPairs(ctx, fmt.Sprintf(`{"repo": "%s"}`, repo))
}

// PatchJobPairs replaces the job pairs of the mined build pair with the given
// object ID.
func (c *Client) PatchJobPairs(ctx context.Context, objectID string, jobPairs any) (*Response, error) {
	if objectID == "" {
		return nil, fmt.Errorf("object ID must not be empty")
	}
	return c.Patch(ctx, c.itemEndpoint(minedBuildPairsResource, objectID), Entity{"jobpairs": jobPairs})
}

// RemoveMinedBuildPairsForRepo non-atomically removes the existing mined build
// pairs for repo. Callers that want to replace pairs should use
// ReplaceMinedBuildPairsForRepo.
func (c *Client) RemoveMinedBuildPairsForRepo(ctx context.Context, repo string) (bool, error) {
	pairs, err := c.FilterMinedBuildPairsForRepo(ctx, repo)
	if err != nil {
		return false, err
	}
	for _, bp := range pairs {
		id, ok := bp["_id"].(string)
		if !ok {
			c.logger.Error().Str("repo", repo).Msg("Mined build pair has no _id field")
			return false, nil
		}
		resp, err := c.Delete(ctx, c.itemEndpoint(minedBuildPairsResource, id))
		if err != nil {
			return false, err
		}
		if !resp.OK() {
			c.logger.Error().Str("repo", repo).Msg("Could not remove an existing mined build pair")
			return false, nil
		}
	}
	return true, nil
}

// ReplaceMinedBuildPairsForRepo non-atomically removes the existing mined
// build pairs for repo and then inserts the newly mined pairs in bulk.
func (c *Client) ReplaceMinedBuildPairsForRepo(ctx context.Context, repo string, newBuildPairs []Entity) (bool, error) {
	removed, err := c.RemoveMinedBuildPairsForRepo(ctx, repo)
	if err != nil || !removed {
		return false, err
	}
	inserted, err := c.BulkInsertMinedBuildPairs(ctx, newBuildPairs)
	if err != nil {
		return false, err
	}
	if !inserted {
		c.logger.Error().Str("repo", repo).Msg("While replacing mined build pairs, a bulk insertion failed")
		return false, nil
	}
	return true, nil
}
