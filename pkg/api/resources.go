package api

import (
	"fmt"
	"strings"
)

// Resource names exposed by the metadata store.
const (
	artifactsResource        = "artifacts"
	minedBuildPairsResource  = "minedBuildPairs"
	minedProjectsResource    = "minedProjects"
	emailSubscribersResource = "emailSubscribers"
	accountsResource         = "accounts"
)

// endpoint joins the configured base URL with a resource name.
func (c *Client) endpoint(resource string) string {
	return strings.Join([]string{c.config.BaseURL, resource}, "/")
}

// itemEndpoint joins a collection endpoint with an item identifier.
func (c *Client) itemEndpoint(resource, id string) string {
	return strings.Join([]string{c.endpoint(resource), id}, "/")
}

// ImageTag constructs the unique image tag identifying the artifact for the
// given repository slug and failed job ID. The slug must contain exactly one
// slash.
func ImageTag(repo string, failedJobID int64) (string, error) {
	if repo == "" {
		return "", fmt.Errorf("repository slug must not be empty")
	}
	if strings.Count(repo, "/") != 1 {
		return "", fmt.Errorf("repository slug %q should contain exactly one slash", repo)
	}
	return fmt.Sprintf("%s-%d", strings.ReplaceAll(repo, "/", "-"), failedJobID), nil
}
