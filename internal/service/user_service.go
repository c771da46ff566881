package service

import (
	"context"
	"errors"

	"go-seedvault/internal/model"
	"go-seedvault/internal/repository"

	"github.com/google/uuid"
)

var (
	ErrEmailExists  = errors.New("email already exists")
	ErrRoleNotFound = errors.New("role not found")
)

type UserService interface {
	CreateUser(ctx context.Context, req *CreateUserRequest, creatorID string) (*model.User, error)
	UpdateUserPrivileges(ctx context.Context, userID uuid.UUID, privilegeCodes []string, updaterID string) (*model.User, error)
	GetAllUsers(ctx context.Context) ([]model.UserResponse, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.UserResponse, error)
	ListRoles(ctx context.Context) ([]model.Role, error)
	ListPrivileges(ctx context.Context) ([]model.Privilege, error)
	SeedAccessControl(ctx context.Context) error
	EnsureAdmin(ctx context.Context, email, password, fullName string) (bool, error)
}

type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	FullName string `json:"full_name" validate:"required"`
	RoleID   uint   `json:"role_id" validate:"required"`
}

type userService struct {
	userRepo      repository.UserRepository
	privilegeRepo repository.PrivilegeRepository
	roleRepo      repository.RoleRepository
}

func NewUserService(userRepo repository.UserRepository, privilegeRepo repository.PrivilegeRepository, roleRepo repository.RoleRepository) UserService {
	return &userService{
		userRepo:      userRepo,
		privilegeRepo: privilegeRepo,
		roleRepo:      roleRepo,
	}
}

func (s *userService) CreateUser(ctx context.Context, req *CreateUserRequest, creatorID string) (*model.User, error) {
	// 1. Validate request
	if err := validate(req); err != nil {
		return nil, err
	}

	// 2. Check if email already exists
	if existing, err := s.userRepo.FindByEmail(ctx, req.Email); err == nil && existing != nil {
		return nil, ErrEmailExists
	}

	// 3. Validate role exists
	role, err := s.roleRepo.FindByID(ctx, req.RoleID)
	if err != nil {
		return nil, ErrRoleNotFound
	}

	// 4. Create user with the role's privileges
	user := &model.User{
		Email:      req.Email,
		FullName:   req.FullName,
		RoleID:     &req.RoleID,
		IsActive:   true,
		Privileges: role.Privileges,
	}
	user.CreatedBy = creatorID
	user.UpdatedBy = creatorID
	if err := user.SetPassword(req.Password); err != nil {
		return nil, errors.New("failed to hash password")
	}

	// 5. Save to database
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return s.userRepo.FindByID(ctx, user.ID)
}

func (s *userService) UpdateUserPrivileges(ctx context.Context, userID uuid.UUID, privilegeCodes []string, updaterID string) (*model.User, error) {
	privileges, err := s.privilegeRepo.FindByCodes(ctx, privilegeCodes)
	if err != nil {
		return nil, errors.New("failed to find privileges")
	}
	if len(privileges) != len(privilegeCodes) {
		return nil, invalid("unknown privilege code in %v", privilegeCodes)
	}
	if err := s.userRepo.ReplacePrivileges(ctx, userID, privileges, updaterID); err != nil {
		return nil, notFoundAs(err, ErrUserNotFound)
	}
	return s.userRepo.FindByID(ctx, userID)
}

func (s *userService) GetAllUsers(ctx context.Context) ([]model.UserResponse, error) {
	users, err := s.userRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	responses := make([]model.UserResponse, len(users))
	for i, user := range users {
		responses[i] = user.ToResponse()
	}
	return responses, nil
}

func (s *userService) GetUserByID(ctx context.Context, id uuid.UUID) (*model.UserResponse, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, ErrUserNotFound
	}
	response := user.ToResponse()
	return &response, nil
}

func (s *userService) ListRoles(ctx context.Context) ([]model.Role, error) {
	return s.roleRepo.FindAll(ctx)
}

func (s *userService) ListPrivileges(ctx context.Context) ([]model.Privilege, error) {
	return s.privilegeRepo.FindAll(ctx)
}

// SeedAccessControl creates the default privileges and roles and binds them.
// MASTER_ADMIN receives every privilege.
func (s *userService) SeedAccessControl(ctx context.Context) error {
	if err := s.privilegeRepo.SeedDefaults(ctx); err != nil {
		return err
	}
	if err := s.roleRepo.SeedDefaults(ctx); err != nil {
		return err
	}
	all, err := s.privilegeRepo.FindAll(ctx)
	if err != nil {
		return err
	}
	for _, code := range []string{model.RoleMasterAdmin, model.RoleSupervisor, model.RoleOperator} {
		role, err := s.roleRepo.FindByCode(ctx, code)
		if err != nil {
			return err
		}
		privileges := all
		if code != model.RoleMasterAdmin {
			privileges, err = s.privilegeRepo.FindByCodes(ctx, model.DefaultRolePrivileges[code])
			if err != nil {
				return err
			}
		}
		if err := s.roleRepo.AssignPrivileges(ctx, role, privileges); err != nil {
			return err
		}
	}
	return nil
}

// EnsureAdmin creates a MASTER_ADMIN account unless the email is already
// registered. It reports whether a user was created.
func (s *userService) EnsureAdmin(ctx context.Context, email, password, fullName string) (bool, error) {
	if _, err := s.userRepo.FindByEmail(ctx, email); err == nil {
		return false, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}

	role, err := s.roleRepo.FindByCode(ctx, model.RoleMasterAdmin)
	if err != nil {
		return false, ErrRoleNotFound
	}
	admin := &model.User{
		Email:      email,
		FullName:   fullName,
		RoleID:     &role.ID,
		IsActive:   true,
		Privileges: role.Privileges,
	}
	admin.CreatedBy = "system"
	admin.UpdatedBy = "system"
	if err := admin.SetPassword(password); err != nil {
		return false, errors.New("failed to hash password")
	}
	if err := s.userRepo.Create(ctx, admin); err != nil {
		return false, err
	}
	return true, nil
}
