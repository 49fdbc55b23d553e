package api

import (
	"context"
	"fmt"
)

// InsertMinedProject creates a new mined project.
func (c *Client) InsertMinedProject(ctx context.Context, minedProject Entity) (*Response, error) {
	return c.Insert(ctx, c.endpoint(minedProjectsResource), minedProject, "mined project")
}

// FindMinedProject gets the mined project with the given repository slug.
func (c *Client) FindMinedProject(ctx context.Context, repo string, errorIfNotFound bool) (*Response, error) {
	if repo == "" {
		return nil, fmt.Errorf("repository slug must not be empty")
	}
	c.logger.Debug().Str("repo", repo).Msg("Trying to find mined project")
	return c.Get(ctx, c.itemEndpoint(minedProjectsResource, repo), errorIfNotFound)
}

// ListMinedProjects returns all mined projects.
func (c *Client) ListMinedProjects(ctx context.Context) ([]Entity, error) {
	return c.ListAll(ctx, c.endpoint(minedProjectsResource))
}

// FilterMinedProjects returns the mined projects matching the given filter
// expression.
func (c *Client) FilterMinedProjects(ctx context.Context, filter string) ([]Entity, error) {
	return c.FilterList(ctx, c.endpoint(minedProjectsResource), filter)
}

// CountMinedProjects returns the total number of mined projects.
func (c *Client) CountMinedProjects(ctx context.Context) (int, error) {
	return c.Count(ctx, c.endpoint(minedProjectsResource))
}

// UpsertMinedProject creates or replaces a mined project. Used for initial
// mining and re-mining of a project; the entity must carry its repository slug
// in the "repo" field.
func (c *Client) UpsertMinedProject(ctx context.Context, minedProject Entity) (*Response, error) {
	repo, ok := minedProject["repo"].(string)
	if !ok || repo == "" {
		return nil, fmt.Errorf("mined project must carry a non-empty repo field")
	}
	return c.Upsert(ctx, c.itemEndpoint(minedProjectsResource, repo), minedProject, "mined project")
}

// SetMinedProjectProgressionMetric adds or overwrites a mining progression
// metric on an existing mined project.
func (c *Client) SetMinedProjectProgressionMetric(ctx context.Context, repo, metricName string, metricValue any) (*Response, error) {
	if repo == "" {
		return nil, fmt.Errorf("repository slug must not be empty")
	}
	if metricName == "" {
		return nil, fmt.Errorf("metric name must not be empty")
	}
	updates := Entity{"progression_metrics." + metricName: metricValue}
	return c.Patch(ctx, c.itemEndpoint(minedProjectsResource, repo), updates)
}
