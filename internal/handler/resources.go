package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"devcamper-api/internal/apperr"
	"devcamper-api/internal/auth"
	"devcamper-api/internal/model"
	"devcamper-api/internal/pipeline"
	"devcamper-api/internal/service"
	"devcamper-api/internal/store"
)

// bootcampParam names the parent bootcamp in nested course and review routes.
const bootcampParam = "bootcampId"

// ResourceHandler serves the CRUD routes of one collection.
type ResourceHandler struct {
	svc        *service.ResourceService
	collection string
	noun       string
	// owned resources may only be changed by their user or an admin.
	owned  bool
	logger *slog.Logger
}

// Resources groups the handlers of every collection.
type Resources struct {
	Bootcamps *ResourceHandler
	Courses   *ResourceHandler
	Reviews   *ResourceHandler
	Users     *ResourceHandler
}

// NewResources creates the collection handlers.
func NewResources(svc *service.ResourceService, logger *slog.Logger) *Resources {
	mk := func(collection, noun string, owned bool) *ResourceHandler {
		return &ResourceHandler{
			svc:        svc,
			collection: collection,
			noun:       noun,
			owned:      owned,
			logger:     logger.With("component", collection+"_handler"),
		}
	}
	return &Resources{
		Bootcamps: mk(service.Bootcamps, "bootcamp", true),
		Courses:   mk(service.Courses, "course", true),
		Reviews:   mk(service.Reviews, "review", true),
		Users:     mk(service.Users, "user", false),
	}
}

// List returns a page of documents. Nested routes only list the children
// of the bootcamp in the path.
func (h *ResourceHandler) List(c echo.Context) error {
	params, err := service.ParseListParams(c.QueryParams())
	if err != nil {
		return err
	}

	var scope map[string]any
	if id := c.Param(bootcampParam); id != "" {
		scope = map[string]any{"bootcamp": id}
	}

	page, err := h.svc.List(c.Request().Context(), h.collection, params, scope)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, model.ListResponse{
		Success:    true,
		Count:      len(page.Data),
		Pagination: page.Pagination,
		Data:       page.Data,
	})
}

// Get returns one document.
func (h *ResourceHandler) Get(c echo.Context) error {
	d, err := h.svc.Get(c.Request().Context(), h.collection, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, model.OK(d))
}

// Create stores the parsed body as a new document owned by the signed-in
// user, if any.
func (h *ResourceHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	body := pipeline.Body(c)
	fixed := map[string]any{}

	user, signedIn := auth.CurrentUser(c)
	if signedIn {
		fixed["user"] = user.ID()
	}

	if h.collection == service.Courses || h.collection == service.Reviews {
		id := c.Param(bootcampParam)
		if id == "" {
			id, _ = body["bootcamp"].(string)
		}
		if id != "" {
			if err := h.requireBootcamp(ctx, id); err != nil {
				return err
			}
			fixed["bootcamp"] = id
		}
	}

	if h.collection == service.Bootcamps && signedIn && role(user) != auth.RoleAdmin {
		_, err := h.svc.FindOne(ctx, service.Bootcamps, map[string]any{"user": user.ID()})
		if err == nil {
			return apperr.Validation(fmt.Sprintf("The user with ID %s has already published a bootcamp", user.ID()))
		}
		if !isNotFound(err) {
			return err
		}
	}

	d, err := h.svc.Create(ctx, h.collection, body, fixed)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, model.OK(d))
}

// Update applies the parsed body to an existing document.
func (h *ResourceHandler) Update(c echo.Context) error {
	id := c.Param("id")
	if err := h.authorizeOwner(c, id, "update"); err != nil {
		return err
	}

	body := pipeline.Body(c)
	if h.owned {
		delete(body, "user")
	}
	d, err := h.svc.Update(c.Request().Context(), h.collection, id, body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, model.OK(d))
}

// Delete removes a document.
func (h *ResourceHandler) Delete(c echo.Context) error {
	id := c.Param("id")
	if err := h.authorizeOwner(c, id, "delete"); err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), h.collection, id); err != nil {
		return err
	}
	h.logger.Info("deleted", "id", id)
	return c.JSON(http.StatusOK, model.OK(map[string]any{}))
}

// authorizeOwner lets the change through when nobody is signed in on an
// open route, when the user is an admin, or when the user owns the document.
func (h *ResourceHandler) authorizeOwner(c echo.Context, id, action string) error {
	user, ok := auth.CurrentUser(c)
	if !ok || !h.owned || role(user) == auth.RoleAdmin {
		return nil
	}

	d, err := h.svc.Get(c.Request().Context(), h.collection, id)
	if err != nil {
		return err
	}
	if owner, _ := d["user"].(string); owner != user.ID() {
		return apperr.Auth(fmt.Sprintf("User %s is not authorized to %s this %s", user.ID(), action, h.noun))
	}
	return nil
}

func (h *ResourceHandler) requireBootcamp(ctx context.Context, id string) error {
	ok, err := h.svc.Exists(ctx, service.Bootcamps, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound(fmt.Sprintf("No bootcamp with the id of %s", id))
	}
	return nil
}

func role(user store.Document) string {
	r, _ := user["role"].(string)
	return r
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID)
}
