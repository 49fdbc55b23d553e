package api

import (
	"context"
	"fmt"
	"time"
)

// defaultArtifactFilter selects Java and Python artifacts with at least one
// successful reproduction.
const defaultArtifactFilter = `{"reproduce_successes":{"$gt":0},"lang":{"$in":["Java","Python"]}}`

// Valid values for an artifact's current status.
var artifactStatuses = map[string]bool{
	"Unreproducible": true,
	"Reproducible":   true,
	"Broken":         true,
	"Flaky":          true,
}

// InsertArtifact creates a new artifact.
func (c *Client) InsertArtifact(ctx context.Context, artifact Entity) (*Response, error) {
	return c.Insert(ctx, c.endpoint(artifactsResource), artifact, "artifact")
}

// PatchArtifact applies partial updates to the artifact with the given image
// tag.
func (c *Client) PatchArtifact(ctx context.Context, imageTag string, updates Entity) (*Response, error) {
	if imageTag == "" {
		return nil, fmt.Errorf("image tag must not be empty")
	}
	return c.Patch(ctx, c.itemEndpoint(artifactsResource, imageTag), updates)
}

// FindArtifact gets artifact data for the given image tag. With
// errorIfNotFound false, a 404 is an expected outcome and is not logged.
func (c *Client) FindArtifact(ctx context.Context, imageTag string, errorIfNotFound bool) (*Response, error) {
	if imageTag == "" {
		return nil, fmt.Errorf("image tag must not be empty")
	}
	c.logger.Debug().Str("image_tag", imageTag).Msg("Trying to find artifact")
	return c.Get(ctx, c.itemEndpoint(artifactsResource, imageTag), errorIfNotFound)
}

// ListArtifacts returns the Java and Python artifacts with at least one
// successful reproduction.
func (c *Client) ListArtifacts(ctx context.Context) ([]Entity, error) {
	return c.FilterArtifacts(ctx, defaultArtifactFilter)
}

// FilterArtifacts returns the artifacts matching the given filter expression.
func (c *Client) FilterArtifacts(ctx context.Context, filter string) ([]Entity, error) {
	return c.FilterList(ctx, c.endpoint(artifactsResource), filter)
}

// CountArtifacts returns the total number of artifacts.
func (c *Client) CountArtifacts(ctx context.Context) (int, error) {
	return c.Count(ctx, c.endpoint(artifactsResource))
}

// SetArtifactMetric adds or overwrites a metric on an existing artifact. The
// metric value can be any value the store accepts.
func (c *Client) SetArtifactMetric(ctx context.Context, imageTag, metricName string, metricValue any) (*Response, error) {
	if metricName == "" {
		return nil, fmt.Errorf("metric name must not be empty")
	}
	updates := Entity{"metrics." + metricName: metricValue}
	return c.PatchArtifact(ctx, imageTag, updates)
}

// SetArtifactCurrentStatus updates the artifact's current status. The status
// must be one of Unreproducible, Reproducible, Broken, or Flaky, and the date
// must be formatted YYYY-MM-DD.
func (c *Client) SetArtifactCurrentStatus(ctx context.Context, imageTag, status, date string) (*Response, error) {
	if !artifactStatuses[status] {
		return nil, fmt.Errorf("incorrect status %q, should be Unreproducible/Reproducible/Broken/Flaky", status)
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("incorrect date format, should be YYYY-MM-DD: %w", err)
	}
	updates := Entity{"current_status": Entity{"status": status, "time_stamp": date}}
	return c.PatchArtifact(ctx, imageTag, updates)
}

// SetArtifactReproduceSuccesses updates the artifact's reproduction success
// count.
func (c *Client) SetArtifactReproduceSuccesses(ctx context.Context, imageTag string, successes int) (*Response, error) {
	return c.PatchArtifact(ctx, imageTag, Entity{"reproduce_successes": successes})
}

// SetArtifactStability updates the artifact's stability value.
func (c *Client) SetArtifactStability(ctx context.Context, imageTag string, stability any) (*Response, error) {
	return c.PatchArtifact(ctx, imageTag, Entity{"stability": stability})
}

// SetArtifactClassification adds or overwrites a classification category
// confidence on an existing artifact.
func (c *Client) SetArtifactClassification(ctx context.Context, imageTag, categoryType string, confidence any) (*Response, error) {
	if categoryType == "" {
		return nil, fmt.Errorf("category type must not be empty")
	}
	updates := Entity{"classification." + categoryType: confidence}
	return c.PatchArtifact(ctx, imageTag, updates)
}

// SetArtifactClassificationExceptions sets the code exceptions recorded in the
// artifact's classification metadata.
func (c *Client) SetArtifactClassificationExceptions(ctx context.Context, imageTag string, exceptions []string) (*Response, error) {
	return c.PatchArtifact(ctx, imageTag, Entity{"classification.exceptions": exceptions})
}

// SetArtifactFailedConfig stores the failed job's configuration on an existing
// artifact.
func (c *Client) SetArtifactFailedConfig(ctx context.Context, imageTag string, config any) (*Response, error) {
	return c.PatchArtifact(ctx, imageTag, Entity{"failed_job.config": config})
}

// SetArtifactPassedConfig stores the passed job's configuration on an existing
// artifact.
func (c *Client) SetArtifactPassedConfig(ctx context.Context, imageTag string, config any) (*Response, error) {
	return c.PatchArtifact(ctx, imageTag, Entity{"passed_job.config": config})
}
