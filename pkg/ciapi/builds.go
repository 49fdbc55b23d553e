package ciapi

import (
	"context"
	"fmt"
	"net/url"
)

// Repository describes a project known to the CI provider.
type Repository struct {
	ID          int64  `json:"id"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}

// Build is one CI build of a repository.
type Build struct {
	ID     int64   `json:"id"`
	Number string  `json:"number"`
	State  string  `json:"state"`
	JobIDs []int64 `json:"job_ids"`
}

// Job is one job within a build.
type Job struct {
	ID     int64          `json:"id"`
	Number string         `json:"number"`
	State  string         `json:"state"`
	Config map[string]any `json:"config"`
}

// SearchRepositories looks up repositories matching the given term.
func (c *Client) SearchRepositories(ctx context.Context, term string) ([]Repository, error) {
	var result struct {
		Repos []Repository `json:"repos"`
	}

	query := url.Values{}
	query.Set("search", term)

	if err := c.GetJSON(ctx, "/repos", query, &result); err != nil {
		return nil, err
	}

	return result.Repos, nil
}

// BuildsForRepo returns every build of the repository, newest first. The
// provider pages builds with an after_number cursor; pages are fetched until
// the provider returns an empty batch or build number 1 has been seen.
func (c *Client) BuildsForRepo(ctx context.Context, repoSlug string) ([]Build, error) {
	endpoint := fmt.Sprintf("/repos/%s/builds", repoSlug)

	var builds []Build
	var cursor string

	for {
		query := url.Values{}
		if cursor != "" {
			query.Set("after_number", cursor)
		}

		var batch []Build
		if err := c.GetJSON(ctx, endpoint, query, &batch); err != nil {
			return nil, err
		}

		if len(batch) == 0 {
			break
		}

		builds = append(builds, batch...)

		last := batch[len(batch)-1]
		if last.Number == "1" {
			break
		}
		cursor = last.Number
	}

	c.logger.Debug().
		Str("repo", repoSlug).
		Int("builds", len(builds)).
		Msg("Fetched builds for repository")

	return builds, nil
}

// BuildInfo returns the details of a single build.
func (c *Client) BuildInfo(ctx context.Context, buildID int64) (*Build, error) {
	var build Build
	if err := c.GetJSON(ctx, fmt.Sprintf("/builds/%d", buildID), nil, &build); err != nil {
		return nil, err
	}
	return &build, nil
}

// JobInfo returns the details of a single job.
func (c *Client) JobInfo(ctx context.Context, jobID int64) (*Job, error) {
	var job Job
	if err := c.GetJSON(ctx, fmt.Sprintf("/jobs/%d", jobID), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}
