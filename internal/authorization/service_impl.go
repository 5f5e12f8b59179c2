package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/toolhub/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectTool    = "tool"
	ObjectContact = "contact_message"
	ObjectSession = "session"
)

const (
	ActionToolViewPending = "tool.view_pending"
	ActionToolApprove     = "tool.approve"
	ActionContactView     = "contact_message.view"
	ActionSessionPurge    = "session.purge"
)

const (
	RoleAdmin  = "role:admin"
	RoleSystem = "role:system"

	ActorSystem = "system"
)

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Config   config.Config
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log         *zap.Logger
	enforcer    *casbin.SyncedEnforcer
	adminEmails map[string]struct{}
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	admins := make(map[string]struct{}, len(p.Config.AdminEmails))
	for _, email := range p.Config.AdminEmails {
		if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
			admins[email] = struct{}{}
		}
	}
	return &ServiceImpl{
		log:         p.Log.Named("authorization.service"),
		enforcer:    p.Enforcer,
		adminEmails: admins,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, object string, action string) error {
	subject, err := resolveActor(actor)
	if err != nil {
		return err
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) SyncUserRoles(ctx context.Context, userID snowflake.ID, email string) error {
	if userID == 0 {
		return ErrInvalidActor
	}
	subject := UserActor(userID)
	_, isAdmin := s.adminEmails[strings.ToLower(strings.TrimSpace(email))]

	has, err := s.enforcer.HasGroupingPolicy(subject, RoleAdmin)
	if err != nil {
		return err
	}
	switch {
	case isAdmin && !has:
		_, err = s.enforcer.AddGroupingPolicy(subject, RoleAdmin)
		if err == nil {
			s.log.Info("granted admin role", zap.String("user_id", userID.String()))
		}
	case !isAdmin && has:
		_, err = s.enforcer.RemoveGroupingPolicy(subject, RoleAdmin)
	}
	return err
}

func (s *ServiceImpl) IsAdmin(ctx context.Context, userID snowflake.ID) (bool, error) {
	return s.enforcer.HasGroupingPolicy(UserActor(userID), RoleAdmin)
}

func UserActor(userID snowflake.ID) string {
	return "user:" + userID.String()
}

func resolveActor(actor string) (string, error) {
	actor = strings.TrimSpace(actor)
	if actor == ActorSystem {
		return actor, nil
	}
	if raw, ok := strings.CutPrefix(actor, "user:"); ok {
		userID, err := snowflake.ParseString(raw)
		if err != nil || userID == 0 {
			return "", ErrInvalidActor
		}
		return UserActor(userID), nil
	}
	return "", ErrInvalidActor
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{RoleAdmin, ObjectTool, ActionToolViewPending},
		{RoleAdmin, ObjectTool, ActionToolApprove},
		{RoleAdmin, ObjectContact, ActionContactView},

		{RoleSystem, ObjectSession, ActionSessionPurge},
		{RoleSystem, ObjectTool, ActionToolApprove},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	if _, err := enforcer.AddGroupingPolicy(ActorSystem, RoleSystem); err != nil {
		return err
	}
	return nil
}
