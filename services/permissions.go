package services

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"journalhub/models"
)

// Rollen-Namen, die pro Paper automatisch angelegt werden.
const (
	RoleCorrespondingAuthor = "corresponding-author"
	RoleAuthor              = "author"
)

// PermissionService verwaltet Rollen und (Entity, Action)-Grants. Ein
// Nutzer "hat" eine Berechtigung entweder direkt oder transitiv über
// user_roles.
type PermissionService struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewPermissionService erstellt eine neue Instanz des PermissionService.
func NewPermissionService(db *gorm.DB, logger *zap.Logger) *PermissionService {
	return &PermissionService{DB: db, Logger: logger}
}

// CreateRole legt eine Rolle mitsamt ihren Grants an. Die Rolle muss an
// genau ein Paper oder genau ein Journal gebunden sein.
func (s *PermissionService) CreateRole(ctx context.Context, role *models.Role) error {
	if !role.Scoped() {
		return ErrInvalidScope
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		perms := role.Permissions
		role.Permissions = nil
		if err := tx.Create(role).Error; err != nil {
			return err
		}
		for i := range perms {
			perms[i].RoleID = role.ID
			if err := tx.Create(&perms[i]).Error; err != nil {
				return err
			}
		}
		role.Permissions = perms
		return nil
	})
}

// AssignRole ordnet einem Nutzer eine Rolle zu.
func (s *PermissionService) AssignRole(ctx context.Context, userID, roleID uint) error {
	return s.DB.WithContext(ctx).Create(&models.UserRole{UserID: userID, RoleID: roleID}).Error
}

// grants baut die RolePermission-Liste für eine Entity-Action-Matrix.
func grants(matrix map[models.Entity][]models.Action) []models.RolePermission {
	var perms []models.RolePermission
	for entity, actions := range matrix {
		for _, action := range actions {
			perms = append(perms, models.RolePermission{Entity: entity, Action: action})
		}
	}
	return perms
}

// CreatePaperRoles legt die beiden Standard-Rollen eines neuen Papers an
// und weist sie zu: der Corresponding Author bekommt volle Grants, die
// übrigen Autoren die reduzierte Lese-/Versions-Sicht.
func (s *PermissionService) CreatePaperRoles(ctx context.Context, paperID, correspondingAuthorID uint, authorIDs []uint) error {
	corresponding := &models.Role{
		Name:    RoleCorrespondingAuthor,
		PaperID: &paperID,
		Permissions: grants(map[models.Entity][]models.Action{
			models.EntityPaper:        {models.ActionUpdate, models.ActionRead, models.ActionDelete, models.ActionGrant},
			models.EntityPaperVersion: {models.ActionCreate, models.ActionRead, models.ActionUpdate, models.ActionDelete, models.ActionGrant},
		}),
	}
	author := &models.Role{
		Name:    RoleAuthor,
		PaperID: &paperID,
		Permissions: grants(map[models.Entity][]models.Action{
			models.EntityPaper:        {models.ActionRead},
			models.EntityPaperVersion: {models.ActionCreate, models.ActionRead},
		}),
	}

	if err := s.CreateRole(ctx, corresponding); err != nil {
		return err
	}
	if err := s.CreateRole(ctx, author); err != nil {
		return err
	}

	if err := s.AssignRole(ctx, correspondingAuthorID, corresponding.ID); err != nil {
		return err
	}
	for _, userID := range authorIDs {
		if userID == correspondingAuthorID {
			continue
		}
		if err := s.AssignRole(ctx, userID, author.ID); err != nil {
			return err
		}
	}

	s.Logger.Info("paper roles created",
		zap.Uint("paper_id", paperID), zap.Uint("corresponding_author", correspondingAuthorID))
	return nil
}

// RolesForPaper liefert alle Rollen eines Papers inklusive Grants.
func (s *PermissionService) RolesForPaper(ctx context.Context, paperID uint) ([]models.Role, error) {
	var roles []models.Role
	err := s.DB.WithContext(ctx).
		Preload("Permissions").
		Where("paper_id = ?", paperID).
		Order("id asc").
		Find(&roles).Error
	return roles, err
}

// Can prüft, ob ein Nutzer die Aktion auf der Entity ausführen darf -
// direkt über user_permissions oder transitiv über eine Rolle im passenden
// Scope. Grants ohne Scope gelten global.
func (s *PermissionService) Can(ctx context.Context, userID uint, entity models.Entity, action models.Action, paperID, journalID *uint) (bool, error) {
	db := s.DB.WithContext(ctx)

	direct := db.Model(&models.UserPermission{}).
		Where("user_id = ? AND entity = ? AND action = ?", userID, entity, action)
	direct = scopeCondition(direct, "paper_id", "journal_id", paperID, journalID)

	var count int64
	if err := direct.Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	viaRole := db.Table("role_permissions").
		Joins("JOIN user_roles ON user_roles.role_id = role_permissions.role_id").
		Joins("JOIN roles ON roles.id = role_permissions.role_id").
		Where("user_roles.user_id = ? AND role_permissions.entity = ? AND role_permissions.action = ?",
			userID, entity, action)
	viaRole = scopeCondition(viaRole, "roles.paper_id", "roles.journal_id", paperID, journalID)

	if err := viaRole.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func scopeCondition(q *gorm.DB, paperCol, journalCol string, paperID, journalID *uint) *gorm.DB {
	switch {
	case paperID != nil:
		return q.Where(paperCol+" = ?", *paperID)
	case journalID != nil:
		return q.Where(journalCol+" = ?", *journalID)
	default:
		return q.Where(paperCol + " IS NULL AND " + journalCol + " IS NULL")
	}
}
