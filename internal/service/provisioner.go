package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/valtp/saas-platform/panel-service/internal/client"
	"github.com/valtp/saas-platform/panel-service/internal/config"
	"github.com/valtp/saas-platform/panel-service/internal/models"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// persistTimeout bounds local writes once remote state has changed. They run
// detached from the request so a client disconnect cannot split the two.
const persistTimeout = 10 * time.Second

// Provisioner creates the remote user and server for a panel, then
// persists the local record.
type Provisioner struct {
	cfg       config.PterodactylConfig
	directory *Directory
	panels    PanelStore
	profiles  ProfileStore
	remotes   RemoteFactory
	passwords *PasswordGenerator
	audit     auditor
	logger    *zap.Logger
}

func NewProvisioner(
	cfg config.PterodactylConfig,
	directory *Directory,
	panels PanelStore,
	profiles ProfileStore,
	audit AuditLog,
	remotes RemoteFactory,
	logger *zap.Logger,
) *Provisioner {
	return &Provisioner{
		cfg:       cfg,
		directory: directory,
		panels:    panels,
		profiles:  profiles,
		remotes:   remotes,
		passwords: NewPasswordGenerator(cfg.PasswordMode, cfg.PasswordSuffix),
		audit:     auditor{store: audit, logger: logger},
		logger:    logger,
	}
}

// Provision runs the whole create flow. Remote objects created before a
// later failure are left in place and recorded in the panel log.
func (p *Provisioner) Provision(ctx context.Context, caller models.Caller, req *models.CreatePanelRequest) (*models.Panel, error) {
	if !caller.Authenticated() {
		return nil, newError(ErrUnauthorized, msgUnauthorized, nil)
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, newError(ErrInvalidInput, msgUsernameRequired, nil)
	}
	if !usernamePattern.MatchString(username) {
		return nil, newError(ErrInvalidInput, msgInvalidUsername, nil)
	}
	if req.RAM < 0 || req.CPU < 0 || req.Disk < 0 {
		return nil, newError(ErrInvalidInput, msgInvalidLimits, nil)
	}

	inst, err := p.directory.Lookup(ctx, req.ServerID)
	if err != nil {
		return nil, err
	}

	log := p.logger.With(
		zap.String("user_id", caller.UserID),
		zap.String("instance_id", inst.ID),
		zap.String("username", username))
	log.Info("provisioning panel", zap.Int("ram", req.RAM), zap.Int("cpu", req.CPU), zap.Int("disk", req.Disk))

	email := username + "@" + p.cfg.EmailDomain
	password, err := p.passwords.Generate(username)
	if err != nil {
		return nil, newError(ErrPersistence, msgInternal, err)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, newError(ErrPersistence, msgInternal, err)
	}

	p.audit.record(ctx, &models.PanelLog{
		UserID:     caller.UserID,
		InstanceID: inst.ID,
		Action:     models.ActionProvisionStarted,
		Status:     models.LogStatusOK,
		Message:    fmt.Sprintf("provisioning %s (ram=%d cpu=%d disk=%d)", username, req.RAM, req.CPU, req.Disk),
	})

	remote := p.remotes.For(inst.Domain, inst.AppKey)

	remoteUserID, reused, err := p.ensureUser(ctx, remote, log, username, email, password)
	if err != nil {
		return nil, err
	}
	if reused {
		p.audit.record(ctx, &models.PanelLog{
			UserID:     caller.UserID,
			InstanceID: inst.ID,
			Action:     models.ActionRemoteUserReused,
			Status:     models.LogStatusOK,
			Message:    fmt.Sprintf("reused remote user %d for %s", remoteUserID, username),
			Metadata:   map[string]interface{}{"ptero_user_id": remoteUserID},
		})
		// The existing remote account keeps its own password. Only the
		// derived legacy password is known to match it.
		if p.cfg.PasswordMode != config.PasswordModeLegacy {
			password = ""
			hash = ""
		}
	} else {
		p.audit.record(ctx, &models.PanelLog{
			UserID:     caller.UserID,
			InstanceID: inst.ID,
			Action:     models.ActionRemoteUserCreated,
			Status:     models.LogStatusOK,
			Message:    fmt.Sprintf("created remote user %d for %s", remoteUserID, username),
			Metadata:   map[string]interface{}{"ptero_user_id": remoteUserID},
		})
	}

	srv, err := remote.CreateServer(ctx, p.serverRequest(inst, remoteUserID, username, req))
	if err != nil {
		log.Error("create remote server failed",
			zap.Int("ptero_user_id", remoteUserID),
			zap.Error(err))
		p.audit.record(ctx, &models.PanelLog{
			UserID:     caller.UserID,
			InstanceID: inst.ID,
			Action:     models.ActionRemoteServerFailed,
			Status:     models.LogStatusFailed,
			Message:    err.Error(),
			Metadata:   map[string]interface{}{"ptero_user_id": remoteUserID, "user_reused": reused},
		})
		return nil, newError(ErrRemote, msgCreateServerFail, err)
	}

	instanceID := inst.ID
	panel := &models.Panel{
		ID:            uuid.New().String(),
		UserID:        caller.UserID,
		ServerID:      &instanceID,
		PteroUserID:   &remoteUserID,
		PteroServerID: &srv.ID,
		Username:      username,
		Email:         email,
		PasswordHash:  hash,
		LoginURL:      inst.Domain,
		RAM:           req.RAM,
		CPU:           req.CPU,
		Disk:          req.Disk,
		IsActive:      true,
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := p.panels.Create(persistCtx, panel); err != nil {
		log.Error("save panel failed, remote objects left behind",
			zap.Int("ptero_user_id", remoteUserID),
			zap.Int("ptero_server_id", srv.ID),
			zap.Error(err))
		p.audit.record(persistCtx, &models.PanelLog{
			UserID:     caller.UserID,
			InstanceID: inst.ID,
			Action:     models.ActionPanelPersistFailed,
			Status:     models.LogStatusFailed,
			Message:    err.Error(),
			Metadata:   map[string]interface{}{"ptero_user_id": remoteUserID, "ptero_server_id": srv.ID},
		})
		return nil, newError(ErrPersistence, msgSavePanelFailed, err)
	}

	if err := p.profiles.IncrementPanelCount(persistCtx, caller.UserID); err != nil {
		log.Warn("increment panel count failed", zap.Error(err))
	}

	panelID := panel.ID
	p.audit.record(persistCtx, &models.PanelLog{
		PanelID:    &panelID,
		UserID:     caller.UserID,
		InstanceID: inst.ID,
		Action:     models.ActionPanelCreated,
		Status:     models.LogStatusOK,
		Message:    fmt.Sprintf("panel %s created", username),
		Metadata:   map[string]interface{}{"ptero_user_id": remoteUserID, "ptero_server_id": srv.ID},
	})

	log.Info("panel provisioned",
		zap.String("panel_id", panel.ID),
		zap.Int("ptero_user_id", remoteUserID),
		zap.Int("ptero_server_id", srv.ID))

	panel.Password = password
	return panel, nil
}

// ensureUser creates the remote user, or on a uniqueness conflict resolves
// the existing user with the same username.
func (p *Provisioner) ensureUser(ctx context.Context, remote client.API, log *zap.Logger, username, email, password string) (int, bool, error) {
	user, err := remote.CreateUser(ctx, &client.CreateUserRequest{
		Email:     email,
		Username:  username,
		FirstName: username,
		LastName:  "User",
		Password:  password,
	})
	if err == nil {
		return user.ID, false, nil
	}
	if !errors.Is(err, client.ErrConflict) {
		log.Error("create remote user failed", zap.Error(err))
		return 0, false, newError(ErrRemote, msgCreateUserFailed, err)
	}
	conflict := err

	log.Info("remote user exists, looking it up")

	users, err := remote.FindUsersByUsername(ctx, username)
	if err != nil {
		log.Error("look up existing remote user failed", zap.Error(err))
		return 0, false, newError(ErrRemote, msgCreateUserFailed, err)
	}
	if u := matchUsername(users, username); u != nil {
		return u.ID, true, nil
	}

	// The username filter is a paged substring match; the email filter
	// narrows to the one account the conflict may be about.
	users, err = remote.FindUsersByEmail(ctx, email)
	if err != nil {
		log.Error("look up existing remote user by email failed", zap.Error(err))
		return 0, false, newError(ErrRemote, msgCreateUserFailed, err)
	}
	if u := matchUsername(users, username); u != nil {
		return u.ID, true, nil
	}

	log.Warn("remote reported a conflict but no user matches", zap.Error(conflict))
	return 0, false, newError(ErrProvisioningConflict, msgUserConflict, conflict)
}

func matchUsername(users []client.User, username string) *client.User {
	for i := range users {
		if strings.EqualFold(users[i].Username, username) {
			return &users[i]
		}
	}
	return nil
}

// serverRequest builds the create-server payload. Limits are passed through
// verbatim: 0 means unlimited on the remote side.
func (p *Provisioner) serverRequest(inst *models.BackingInstance, userID int, username string, req *models.CreatePanelRequest) *client.CreateServerRequest {
	env := make(map[string]string, len(p.cfg.Environment))
	for k, v := range p.cfg.Environment {
		env[k] = v
	}

	return &client.CreateServerRequest{
		Name:        username,
		User:        userID,
		Egg:         inst.EggID,
		DockerImage: p.cfg.DockerImage,
		Startup:     p.cfg.Startup,
		Environment: env,
		Limits: client.ServerLimits{
			Memory: req.RAM,
			Swap:   0,
			Disk:   req.Disk,
			IO:     p.cfg.IO,
			CPU:    req.CPU,
		},
		FeatureLimits: client.FeatureLimits{
			Databases:   0,
			Backups:     1,
			Allocations: 1,
		},
		Allocation: client.Allocation{Default: nil},
		Deploy: client.Deploy{
			Locations:   []int{inst.LocationID},
			DedicatedIP: false,
			PortRange:   []string{},
		},
	}
}
