package connector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-version"

	"github.com/glorpus-work/pkgconnect/internal/logger"
	"github.com/glorpus-work/pkgconnect/pkg/errutils"
	"github.com/glorpus-work/pkgconnect/pkg/identity"
	"github.com/glorpus-work/pkgconnect/pkg/model"
)

// Operation suffixes relative to the base URL.
const (
	SuffixStatus            = "status"
	SuffixDownloads         = "getDownloads/"
	SuffixDownload          = "getDownload/"
	SuffixRenewRegistration = "remoteRenewRegistration"
	SuffixAvailableProjects = "getAvailableProjectsForRegistration"
	SuffixRegisterInstance  = "remoteRegisterInstance"
	SuffixTrialRegistration = "submitTrialRegistration"
)

func (c *Connector) decode(resp *Response, v any, what string) error {
	if err := c.serializer.Unmarshal(resp.Body, v); err != nil {
		return errutils.NewServerError(errutils.KindServer, resp.StatusCode, fmt.Sprintf("malformed %s payload: %v", what, err))
	}
	return nil
}

// Status returns the subscription status. While HTTP caching is enabled and the server
// cannot be reached, the last status received is returned instead of the error.
// A server without status data yields nil.
func (c *Connector) Status(ctx context.Context) (*model.SubscriptionStatus, error) {
	resp, err := c.call(ctx, request{method: http.MethodGet, suffix: SuffixStatus, cacheFor: c.cfg.StatusMaxAge})
	if err != nil {
		if last := c.lastStatus.Load(); last != nil && c.cfg.CacheEnabled && errutils.IsUnreachable(err) {
			logger.Warn("Connect server unreachable, serving last known status", logger.Fields{"error": err.Error()})
			c.metrics.StaleStatus()
			stale := *last
			return &stale, nil
		}
		return nil, err
	}
	if resp.NoData {
		return nil, nil
	}

	var status model.SubscriptionStatus
	if err := c.decode(resp, &status, "status"); err != nil {
		return nil, err
	}
	stored := status
	c.lastStatus.Store(&stored)
	return &status, nil
}

// LastStatus returns the last status received, or nil.
func (c *Connector) LastStatus() *model.SubscriptionStatus {
	last := c.lastStatus.Load()
	if last == nil {
		return nil
	}
	cp := *last
	return &cp
}

// listMaxAge returns the cache max age for download lists of packageType.
func (c *Connector) listMaxAge(packageType string) time.Duration {
	maxAge := c.cfg.MaxAge
	if c.cfg.ShortPackageType != "" && packageType == c.cfg.ShortPackageType &&
		c.cfg.ShortMaxAge > 0 && c.cfg.ShortMaxAge < maxAge {
		maxAge = c.cfg.ShortMaxAge
	}
	return maxAge
}

// Downloads lists the packages of packageType available to this instance.
func (c *Connector) Downloads(ctx context.Context, packageType string) ([]model.PackageDescriptor, error) {
	if strings.TrimSpace(packageType) == "" {
		return nil, fmt.Errorf("%w: package type is required", errutils.ErrValidation)
	}
	resp, err := c.call(ctx, request{
		method:   http.MethodGet,
		suffix:   SuffixDownloads + url.PathEscape(packageType),
		cacheFor: c.listMaxAge(packageType),
	})
	if err != nil {
		return nil, err
	}
	if resp.NoData {
		return nil, nil
	}
	var list []model.PackageDescriptor
	if err := c.decode(resp, &list, "download list"); err != nil {
		return nil, err
	}
	return list, nil
}

// Download returns the descriptor of one package, or nil when the server does not know it.
func (c *Connector) Download(ctx context.Context, id string) (*model.PackageDescriptor, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: package id is required", errutils.ErrValidation)
	}
	resp, err := c.call(ctx, request{method: http.MethodGet, suffix: SuffixDownload + url.PathEscape(id)})
	if err != nil {
		return nil, err
	}
	if resp.NoData {
		return nil, nil
	}
	var desc model.PackageDescriptor
	if err := c.decode(resp, &desc, "download"); err != nil {
		return nil, err
	}
	return &desc, nil
}

// RenewRegistration asks the server to extend the current registration.
func (c *Connector) RenewRegistration(ctx context.Context) (*model.RenewalResponse, error) {
	resp, err := c.call(ctx, request{method: http.MethodPost, suffix: SuffixRenewRegistration})
	if err != nil {
		return nil, err
	}
	if resp.NoData || len(resp.Body) == 0 {
		return &model.RenewalResponse{Renewed: resp.StatusCode == http.StatusNoContent}, nil
	}
	var renewal model.RenewalResponse
	if err := c.decode(resp, &renewal, "renewal"); err != nil {
		return nil, err
	}
	return &renewal, nil
}

// AvailableProjects lists the projects this instance may register to.
func (c *Connector) AvailableProjects(ctx context.Context) ([]model.Project, error) {
	resp, err := c.call(ctx, request{method: http.MethodGet, suffix: SuffixAvailableProjects, anonymous: true})
	if err != nil {
		return nil, err
	}
	if resp.NoData {
		return nil, nil
	}
	var projects []model.Project
	if err := c.decode(resp, &projects, "project list"); err != nil {
		return nil, err
	}
	return projects, nil
}

// RegisterInstance registers this instance to projectID and persists the issued identity.
func (c *Connector) RegisterInstance(ctx context.Context, projectID, description string, instanceType identity.InstanceType) (identity.LogicalID, error) {
	if strings.TrimSpace(projectID) == "" {
		return identity.LogicalID{}, fmt.Errorf("%w: project id is required", errutils.ErrValidation)
	}
	if instanceType == "" {
		instanceType = identity.TypeProd
	}

	reqBody := model.RegistrationRequest{
		ProjectID:    projectID,
		Description:  description,
		InstanceType: string(instanceType),
	}
	if c.techID != nil {
		reqBody.TechnicalID = c.techID.String()
	}
	if host, err := os.Hostname(); err == nil {
		reqBody.Hostname = host
	}
	payload, err := c.serializer.Marshal(reqBody)
	if err != nil {
		return identity.LogicalID{}, errutils.Wrap(err, "encoding registration request")
	}

	resp, err := c.call(ctx, request{method: http.MethodPost, suffix: SuffixRegisterInstance, body: payload, anonymous: true})
	if err != nil {
		return identity.LogicalID{}, err
	}
	if resp.NoData {
		return identity.LogicalID{}, errutils.NewServerError(errutils.KindNotFound, resp.StatusCode,
			fmt.Sprintf("project %s is not available for registration", projectID))
	}

	var reg model.RegistrationResponse
	if err := c.decode(resp, &reg, "registration"); err != nil {
		return identity.LogicalID{}, err
	}
	issuedType := instanceType
	if reg.InstanceType != "" {
		if t, err := identity.ParseInstanceType(reg.InstanceType); err == nil {
			issuedType = t
		}
	}
	if reg.Description != "" {
		description = reg.Description
	}
	id := identity.LogicalID{ID1: reg.ID1, ID2: reg.ID2, Description: description, Type: issuedType}
	if err := id.Validate(); err != nil {
		return identity.LogicalID{}, errutils.NewServerError(errutils.KindServer, resp.StatusCode, err.Error())
	}

	if c.store != nil {
		if err := c.store.Save(id); err != nil {
			return identity.LogicalID{}, err
		}
	}
	logger.Success("Instance registered", logger.Fields{"client_id": id.String(), "project": projectID})
	return id, nil
}

// SubmitTrialRegistration requests a trial subscription.
func (c *Connector) SubmitTrialRegistration(ctx context.Context, trial model.TrialRegistration) error {
	if strings.TrimSpace(trial.Email) == "" {
		return fmt.Errorf("%w: email is required", errutils.ErrValidation)
	}
	payload, err := c.serializer.Marshal(trial)
	if err != nil {
		return errutils.Wrap(err, "encoding trial registration")
	}
	_, err = c.call(ctx, request{method: http.MethodPost, suffix: SuffixTrialRegistration, body: payload, anonymous: true})
	return err
}

// CheckClientVersion fails with a client_version error when status requires a newer client.
// Unparsable versions on either side are not treated as a mismatch.
func (c *Connector) CheckClientVersion(status *model.SubscriptionStatus) error {
	if status == nil || status.MinClientVersion == "" || c.cfg.ClientVersion == "" {
		return nil
	}
	current, err := version.NewVersion(c.cfg.ClientVersion)
	if err != nil {
		logger.Debug("Cannot parse client version", logger.Fields{"version": c.cfg.ClientVersion})
		return nil
	}
	required, err := version.NewVersion(status.MinClientVersion)
	if err != nil {
		logger.Debug("Cannot parse minimum client version", logger.Fields{"version": status.MinClientVersion})
		return nil
	}
	if current.LessThan(required) {
		return errutils.NewServerError(errutils.KindClientVersion, 0,
			fmt.Sprintf("client version %s is older than the required %s", current, required))
	}
	return nil
}
