package v1

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/nestmate/nestmate/citystats"
	"github.com/nestmate/nestmate/indexer"
	"github.com/nestmate/nestmate/store"
)

// Identity event types accepted on the webhook.
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// WebhookService ingests user lifecycle events pushed by the identity
// provider. Events are authenticated with an HS256 JWT signed with the
// shared webhook secret.
type WebhookService struct {
	Store   *store.Store
	Secret  string
	Indexer *indexer.Indexer
	Stats   *citystats.Aggregator
}

// IdentityEvent is the webhook body.
type IdentityEvent struct {
	Type string               `json:"type"`
	User *IdentityUserPayload `json:"user"`
}

// IdentityUserPayload mirrors the identity provider's user record.
type IdentityUserPayload struct {
	ID          string `json:"id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	DateOfBirth string `json:"dateOfBirth"`
	Gender      string `json:"gender"`
	ZipCode     string `json:"zipCode"`
}

// HandleIdentityEvent handles POST /api/v1/webhooks/identity.
func (s *WebhookService) HandleIdentityEvent(c echo.Context) error {
	if s.Secret == "" {
		return jsonError(c, http.StatusNotImplemented, "webhook ingestion is not configured")
	}
	if err := s.authenticate(c); err != nil {
		return jsonError(c, http.StatusUnauthorized, "invalid webhook token")
	}

	event := &IdentityEvent{}
	if err := c.Bind(event); err != nil {
		return jsonError(c, http.StatusBadRequest, "malformed event body")
	}
	if event.User == nil || event.User.ID == "" {
		return jsonError(c, http.StatusBadRequest, "event user id is required")
	}

	ctx := c.Request().Context()
	switch event.Type {
	case EventUserCreated, EventUserUpdated:
		if err := s.upsertUser(c, event.User); err != nil {
			slog.Error("webhook upsert failed",
				slog.String("user", event.User.ID),
				slog.Any("err", err))
			return internalError(c)
		}
	case EventUserDeleted:
		before, err := s.Store.GetUser(ctx, &store.FindUser{ID: &event.User.ID})
		if err != nil && !errors.Is(err, store.ErrUserNotFound) {
			return internalError(c)
		}
		if before != nil {
			if err := s.Store.DeleteUser(ctx, event.User.ID); err != nil {
				slog.Error("webhook deletion failed",
					slog.String("user", event.User.ID),
					slog.Any("err", err))
				return internalError(c)
			}
			s.Stats.Apply(before, nil)
		}
		s.Indexer.EnqueueRemove(event.User.ID)
	default:
		return jsonError(c, http.StatusBadRequest, "unknown event type")
	}

	return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
}

func (s *WebhookService) authenticate(c echo.Context) error {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return errors.New("missing bearer token")
	}

	_, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(s.Secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	return err
}

// upsertUser creates or updates the local mirror of an identity user,
// preserving locally managed fields (budget, lifestyle, preferences).
func (s *WebhookService) upsertUser(c echo.Context, payload *IdentityUserPayload) error {
	dob, err := parseDate(payload.DateOfBirth)
	if err != nil {
		return errors.Wrap(err, "parse dateOfBirth")
	}

	ctx := c.Request().Context()
	before, err := s.Store.GetUser(ctx, &store.FindUser{ID: &payload.ID})
	if err != nil && !errors.Is(err, store.ErrUserNotFound) {
		return err
	}

	if before == nil {
		user, err := s.Store.CreateUser(ctx, &store.UserProfile{
			ID:          payload.ID,
			FirstName:   payload.FirstName,
			LastName:    payload.LastName,
			Email:       payload.Email,
			DateOfBirth: dob,
			Gender:      payload.Gender,
			ZipCode:     payload.ZipCode,
		})
		if err != nil {
			return err
		}
		s.Stats.Apply(nil, user)
		s.Indexer.EnqueueSync(user.ID)
		return nil
	}

	beforeCopy := *before
	user, err := s.Store.UpdateUser(ctx, &store.UpdateUser{
		ID:          payload.ID,
		FirstName:   &payload.FirstName,
		LastName:    &payload.LastName,
		Email:       &payload.Email,
		DateOfBirth: dob,
		Gender:      &payload.Gender,
		ZipCode:     &payload.ZipCode,
	})
	if err != nil {
		return err
	}
	s.Stats.Apply(&beforeCopy, user)
	s.Indexer.EnqueueSync(user.ID)
	return nil
}
