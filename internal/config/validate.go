package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration invariants that would otherwise surface
// as confusing runtime failures mid-pipeline.
func (c *Config) Validate() error {
	if err := c.validateProject(); err != nil {
		return err
	}
	if err := c.validateBucket(); err != nil {
		return err
	}
	return c.validateCDN()
}

func (c *Config) validateProject() error {
	if strings.TrimSpace(c.Project.ID) == "" {
		return errors.New("project.id is required")
	}
	if strings.ContainsAny(c.Project.ID, "/ ") {
		return fmt.Errorf("project.id must not contain slashes or spaces: %q", c.Project.ID)
	}
	if strings.TrimSpace(c.Project.TagPrefix) == "" {
		return errors.New("project.tag_prefix is required")
	}
	if strings.TrimSpace(c.Project.DefaultVersion) == "" {
		return errors.New("project.default_version must not be empty")
	}
	return nil
}

func (c *Config) validateBucket() error {
	if strings.TrimSpace(c.Bucket.Name) == "" {
		return errors.New("bucket.name is required")
	}
	if strings.TrimSpace(c.Bucket.Endpoint) == "" {
		return errors.New("bucket.endpoint is required")
	}
	if strings.Contains(c.Bucket.Endpoint, "://") {
		return fmt.Errorf("bucket.endpoint must not include scheme: %q", c.Bucket.Endpoint)
	}
	if strings.TrimSpace(c.Bucket.DestPrefix) == "" {
		return errors.New("bucket.dest_prefix is required")
	}
	if strings.HasPrefix(c.Bucket.DestPrefix, "/") || strings.HasSuffix(c.Bucket.DestPrefix, "/") {
		return fmt.Errorf("bucket.dest_prefix must not have leading or trailing slashes: %q", c.Bucket.DestPrefix)
	}
	return nil
}

func (c *Config) validateCDN() error {
	// CDN is optional; when enabled the distribution must be identified.
	if c.CDN.Endpoint == "" {
		return nil
	}
	if !strings.HasPrefix(c.CDN.Endpoint, "http://") && !strings.HasPrefix(c.CDN.Endpoint, "https://") {
		return fmt.Errorf("cdn.endpoint must be an http(s) URL: %q", c.CDN.Endpoint)
	}
	if strings.TrimSpace(c.CDN.DistributionID) == "" {
		return errors.New("cdn.distribution_id is required when cdn.endpoint is set")
	}
	return nil
}
