package v1

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/nestmate/nestmate/citystats"
	"github.com/nestmate/nestmate/indexer"
	"github.com/nestmate/nestmate/internal/profile"
	"github.com/nestmate/nestmate/store"
)

const (
	avatarMaxEdge    = 512
	avatarThumbEdge  = 128
	avatarMaxBodyLen = 8 << 20
)

type UserService struct {
	Store   *store.Store
	Profile *profile.Profile
	Indexer *indexer.Indexer
	Stats   *citystats.Aggregator

	thumbnailSemaphore *semaphore.Weighted
}

// CreateUserRequest is the user creation body.
type CreateUserRequest struct {
	FirstName   string             `json:"firstName"`
	LastName    string             `json:"lastName"`
	Email       string             `json:"email"`
	DateOfBirth string             `json:"dateOfBirth"`
	Gender      string             `json:"gender"`
	ZipCode     string             `json:"zipCode"`
	MoreAboutMe string             `json:"moreAboutMe"`
	Budget      *BudgetPayload     `json:"budget"`
	Lifestyle   *LifestylePayload  `json:"lifestyle"`
	Preferences *PreferencePayload `json:"preferences"`
}

// CreateUser handles POST /api/v1/users.
func (s *UserService) CreateUser(c echo.Context) error {
	req := &CreateUserRequest{}
	if err := c.Bind(req); err != nil {
		return jsonError(c, http.StatusBadRequest, "malformed request body")
	}

	dob, err := parseDate(req.DateOfBirth)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "dateOfBirth must be YYYY-MM-DD")
	}
	if req.Budget != nil && req.Budget.Min > req.Budget.Max {
		return jsonError(c, http.StatusBadRequest, "budget min must not exceed max")
	}

	user, err := s.Store.CreateUser(c.Request().Context(), &store.UserProfile{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		DateOfBirth: dob,
		Gender:      req.Gender,
		ZipCode:     req.ZipCode,
		MoreAboutMe: req.MoreAboutMe,
		Budget:      req.Budget.toStore(),
		Lifestyle:   req.Lifestyle.toStore(),
		Preferences: req.Preferences.toStore(),
	})
	if err != nil {
		slog.Error("user creation failed", slog.Any("err", err))
		return internalError(c)
	}

	s.Stats.Apply(nil, user)
	s.Indexer.EnqueueSync(user.ID)
	return c.JSON(http.StatusCreated, convertUser(user))
}

// GetUser handles GET /api/v1/users/:id.
func (s *UserService) GetUser(c echo.Context) error {
	userID := c.Param("id")
	user, err := s.Store.GetUser(c.Request().Context(), &store.FindUser{ID: &userID})
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return jsonError(c, http.StatusNotFound, "user not found")
		}
		slog.Error("user lookup failed", slog.String("user", userID), slog.Any("err", err))
		return internalError(c)
	}
	return c.JSON(http.StatusOK, convertUser(user))
}

// UpdateUserRequest carries a partial user update. Absent fields are
// untouched.
type UpdateUserRequest struct {
	FirstName   *string            `json:"firstName"`
	LastName    *string            `json:"lastName"`
	Email       *string            `json:"email"`
	DateOfBirth *string            `json:"dateOfBirth"`
	Gender      *string            `json:"gender"`
	ZipCode     *string            `json:"zipCode"`
	MoreAboutMe *string            `json:"moreAboutMe"`
	Budget      *BudgetPayload     `json:"budget"`
	Lifestyle   *LifestylePayload  `json:"lifestyle"`
	Preferences *PreferencePayload `json:"preferences"`
}

// UpdateUser handles PATCH /api/v1/users/:id.
func (s *UserService) UpdateUser(c echo.Context) error {
	userID := c.Param("id")
	req := &UpdateUserRequest{}
	if err := c.Bind(req); err != nil {
		return jsonError(c, http.StatusBadRequest, "malformed request body")
	}

	before, err := s.Store.GetUser(c.Request().Context(), &store.FindUser{ID: &userID})
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return jsonError(c, http.StatusNotFound, "user not found")
		}
		slog.Error("user lookup failed", slog.String("user", userID), slog.Any("err", err))
		return internalError(c)
	}
	beforeCopy := *before

	update := &store.UpdateUser{
		ID:          userID,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		Gender:      req.Gender,
		ZipCode:     req.ZipCode,
		MoreAboutMe: req.MoreAboutMe,
		Budget:      req.Budget.toStore(),
		Lifestyle:   req.Lifestyle.toStore(),
		Preferences: req.Preferences.toStore(),
	}
	if req.DateOfBirth != nil {
		dob, err := parseDate(*req.DateOfBirth)
		if err != nil {
			return jsonError(c, http.StatusBadRequest, "dateOfBirth must be YYYY-MM-DD")
		}
		update.DateOfBirth = dob
	}

	user, err := s.Store.UpdateUser(c.Request().Context(), update)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return jsonError(c, http.StatusNotFound, "user not found")
		}
		slog.Error("user update failed", slog.String("user", userID), slog.Any("err", err))
		return internalError(c)
	}

	s.Stats.Apply(&beforeCopy, user)
	s.Indexer.EnqueueSync(user.ID)
	return c.JSON(http.StatusOK, convertUser(user))
}

// SetPreferences handles PUT /api/v1/users/:id/preferences, replacing the
// whole preference block.
func (s *UserService) SetPreferences(c echo.Context) error {
	userID := c.Param("id")
	req := &PreferencePayload{}
	if err := c.Bind(req); err != nil {
		return jsonError(c, http.StatusBadRequest, "malformed request body")
	}
	if req.MinAge != nil && req.MaxAge != nil && *req.MinAge > *req.MaxAge {
		return jsonError(c, http.StatusBadRequest, "minAge must not exceed maxAge")
	}

	user, err := s.Store.UpdateUser(c.Request().Context(), &store.UpdateUser{
		ID:          userID,
		Preferences: req.toStore(),
	})
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return jsonError(c, http.StatusNotFound, "user not found")
		}
		slog.Error("preference update failed", slog.String("user", userID), slog.Any("err", err))
		return internalError(c)
	}

	s.Indexer.EnqueueSync(user.ID)
	return c.JSON(http.StatusOK, convertUser(user))
}

// DeleteUser handles DELETE /api/v1/users/:id.
func (s *UserService) DeleteUser(c echo.Context) error {
	userID := c.Param("id")
	before, err := s.Store.GetUser(c.Request().Context(), &store.FindUser{ID: &userID})
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return jsonError(c, http.StatusNotFound, "user not found")
		}
		slog.Error("user lookup failed", slog.String("user", userID), slog.Any("err", err))
		return internalError(c)
	}

	if err := s.Store.DeleteUser(c.Request().Context(), userID); err != nil {
		slog.Error("user deletion failed", slog.String("user", userID), slog.Any("err", err))
		return internalError(c)
	}

	s.Stats.Apply(before, nil)
	s.Indexer.EnqueueRemove(userID)
	return c.NoContent(http.StatusNoContent)
}

// UploadAvatar handles POST /api/v1/users/:id/avatar. The image is
// re-encoded and downscaled before it is stored, which also strips any
// metadata the upload carried.
func (s *UserService) UploadAvatar(c echo.Context) error {
	userID := c.Param("id")
	if _, err := s.Store.GetUser(c.Request().Context(), &store.FindUser{ID: &userID}); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return jsonError(c, http.StatusNotFound, "user not found")
		}
		slog.Error("user lookup failed", slog.String("user", userID), slog.Any("err", err))
		return internalError(c)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "file field is required")
	}
	if fileHeader.Size > avatarMaxBodyLen {
		return jsonError(c, http.StatusRequestEntityTooLarge, "avatar too large")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "unreadable upload")
	}
	defer src.Close()

	img, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "unsupported image format")
	}

	if err := s.thumbnailSemaphore.Acquire(c.Request().Context(), 1); err != nil {
		return internalError(c)
	}
	defer s.thumbnailSemaphore.Release(1)

	avatarDir := filepath.Join(s.Profile.Data, "avatars")
	if err := os.MkdirAll(avatarDir, 0o770); err != nil {
		slog.Error("avatar directory creation failed", slog.Any("err", err))
		return internalError(c)
	}

	avatarPath := filepath.Join(avatarDir, userID+".jpg")
	resized := imaging.Fit(img, avatarMaxEdge, avatarMaxEdge, imaging.Lanczos)
	if err := imaging.Save(resized, avatarPath, imaging.JPEGQuality(85)); err != nil {
		slog.Error("avatar save failed", slog.String("user", userID), slog.Any("err", err))
		return internalError(c)
	}

	thumb := imaging.Fill(img, avatarThumbEdge, avatarThumbEdge, imaging.Center, imaging.Lanczos)
	thumbPath := filepath.Join(avatarDir, userID+"_thumb.jpg")
	if err := imaging.Save(thumb, thumbPath, imaging.JPEGQuality(85)); err != nil {
		slog.Error("avatar thumbnail save failed", slog.String("user", userID), slog.Any("err", err))
		return internalError(c)
	}

	if _, err := s.Store.UpdateUser(c.Request().Context(), &store.UpdateUser{
		ID:         userID,
		AvatarPath: &avatarPath,
	}); err != nil {
		slog.Error("avatar path update failed", slog.String("user", userID), slog.Any("err", err))
		return internalError(c)
	}
	return c.JSON(http.StatusOK, map[string]any{"avatarPath": avatarPath})
}

// GetAvatar handles GET /api/v1/users/:id/avatar, optionally serving the
// thumbnail via ?thumbnail=true.
func (s *UserService) GetAvatar(c echo.Context) error {
	userID := c.Param("id")
	user, err := s.Store.GetUser(c.Request().Context(), &store.FindUser{ID: &userID})
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return jsonError(c, http.StatusNotFound, "user not found")
		}
		return internalError(c)
	}
	if user.AvatarPath == "" {
		return jsonError(c, http.StatusNotFound, "no avatar uploaded")
	}

	path := user.AvatarPath
	if c.QueryParam("thumbnail") == "true" {
		ext := filepath.Ext(path)
		path = path[:len(path)-len(ext)] + "_thumb" + ext
	}
	if _, err := os.Stat(path); err != nil {
		return jsonError(c, http.StatusNotFound, "avatar file missing")
	}
	return c.File(path)
}
