package provisioning

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// RouteRegistrar captures the router methods used by the admin controller
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Put(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// AdminControllerRoutes holds the route paths relative to the registrar
type AdminControllerRoutes struct {
	Admins    string
	Providers string
	ChangeLog string
	RPC       string

	// EmailConfirmation serves invitation links and is mounted without middleware
	EmailConfirmation string
}

type AdminController struct {
	Debug        bool
	Logger       Logger
	Orchestrator *Orchestrator
	RPC          *ProviderAdminRPC
	URLs         URLBuilder
	Routes       *AdminControllerRoutes
	// ContextKey is the locals key holding the verified *jwt.Token
	ContextKey string
	Middleware []router.MiddlewareFunc
}

type AdminControllerOption func(*AdminController) *AdminController

func WithControllerLogger(logger Logger) AdminControllerOption {
	return func(c *AdminController) *AdminController {
		c.Logger = logger
		return c
	}
}

func WithControllerURLBuilder(urls URLBuilder) AdminControllerOption {
	return func(c *AdminController) *AdminController {
		c.URLs = urls
		return c
	}
}

func WithControllerContextKey(key string) AdminControllerOption {
	return func(c *AdminController) *AdminController {
		if key != "" {
			c.ContextKey = key
		}
		return c
	}
}

// WithControllerMiddleware runs mw before every admin route, typically jwtware
func WithControllerMiddleware(mw ...router.MiddlewareFunc) AdminControllerOption {
	return func(c *AdminController) *AdminController {
		c.Middleware = append(c.Middleware, mw...)
		return c
	}
}

func WithControllerDebug(debug bool) AdminControllerOption {
	return func(c *AdminController) *AdminController {
		c.Debug = debug
		return c
	}
}

func NewAdminController(orchestrator *Orchestrator, opts ...AdminControllerOption) *AdminController {
	c := &AdminController{
		Logger:       defLogger{name: "http"},
		Orchestrator: orchestrator,
		ContextKey:   "user",
		Routes: &AdminControllerRoutes{
			Admins:    "/admins",
			Providers: "/providers",
			ChangeLog: "/changelog",
			RPC:       "/rpc/provider-admins",

			EmailConfirmation: "/account/email-confirmation",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Orchestrator == nil {
		panic("Missing Orchestrator in admin controller...")
	}

	if c.RPC == nil {
		c.RPC = NewProviderAdminRPC(c.Orchestrator, c.URLs).WithLogger(c.Logger)
	}

	return c
}

// RegisterAdminRoutes mounts the admin provisioning API on app
func RegisterAdminRoutes(app RouteRegistrar, orchestrator *Orchestrator, opts ...AdminControllerOption) *AdminController {
	c := NewAdminController(orchestrator, opts...)
	mw := c.Middleware

	admin := c.Routes.Admins + "/:role"
	member := admin + "/:id"

	app.Post(admin, c.Create, mw...).SetName("admins.create")
	app.Put(member, c.Update, mw...).SetName("admins.update")
	app.Delete(member, c.Delete, mw...).SetName("admins.delete")
	app.Post(member+"/block", c.Block, mw...).SetName("admins.block")
	app.Post(member+"/unblock", c.Unblock, mw...).SetName("admins.unblock")
	app.Post(member+"/reinvite", c.Reinvite, mw...).SetName("admins.reinvite")

	provider := c.Routes.Providers + "/:providerId"
	app.Post(provider+"/block", c.BlockProvider, mw...).SetName("providers.block")
	app.Post(provider+"/unblock", c.UnblockProvider, mw...).SetName("providers.unblock")

	app.Get(c.Routes.ChangeLog, c.ListChangeLog, mw...).SetName("admins.changelog")

	app.Post(c.Routes.RPC, c.CreateProviderAdminRPC, mw...).SetName("rpc.provider-admins.create")

	app.Get(c.Routes.EmailConfirmation, c.ConfirmEmail).SetName("account.email-confirmation")

	return c
}

func (a *AdminController) Create(ctx router.Context) error {
	role, actorID, err := a.target(ctx)
	if err != nil {
		return a.fail(ctx, err)
	}

	payload := new(CreateAdminMessage)
	if err := ctx.Bind(payload); err != nil {
		return a.fail(ctx, newValidationError(err))
	}

	a.dump("CREATE ADMIN", payload)

	resp := a.Orchestrator.For(role).Create(ctx.Context(), *payload, actorID, a.URLs)
	return a.reply(ctx, resp)
}

func (a *AdminController) Update(ctx router.Context) error {
	role, actorID, err := a.target(ctx)
	if err != nil {
		return a.fail(ctx, err)
	}

	id, err := paramUUID(ctx, "id")
	if err != nil {
		return a.fail(ctx, err)
	}

	payload := new(UpdateAdminMessage)
	if err := ctx.Bind(payload); err != nil {
		return a.fail(ctx, newValidationError(err))
	}
	payload.ID = id

	a.dump("UPDATE ADMIN", payload)

	resp := a.Orchestrator.For(role).Update(ctx.Context(), *payload, actorID)
	return a.reply(ctx, resp)
}

func (a *AdminController) Delete(ctx router.Context) error {
	return a.member(ctx, func(p AdminProvisioner, id uuid.UUID, actorID string) Response {
		return p.Delete(ctx.Context(), id, actorID)
	})
}

func (a *AdminController) Block(ctx router.Context) error {
	return a.member(ctx, func(p AdminProvisioner, id uuid.UUID, actorID string) Response {
		return p.Block(ctx.Context(), id, true, actorID)
	})
}

func (a *AdminController) Unblock(ctx router.Context) error {
	return a.member(ctx, func(p AdminProvisioner, id uuid.UUID, actorID string) Response {
		return p.Block(ctx.Context(), id, false, actorID)
	})
}

func (a *AdminController) Reinvite(ctx router.Context) error {
	return a.member(ctx, func(p AdminProvisioner, id uuid.UUID, actorID string) Response {
		return p.Reinvite(ctx.Context(), id, actorID, a.URLs)
	})
}

func (a *AdminController) BlockProvider(ctx router.Context) error {
	return a.provider(ctx, true)
}

func (a *AdminController) UnblockProvider(ctx router.Context) error {
	return a.provider(ctx, false)
}

// ListChangeLog returns change log rows matching the query filter
func (a *AdminController) ListChangeLog(ctx router.Context) error {
	if _, err := a.actor(ctx); err != nil {
		return a.fail(ctx, err)
	}

	filter, err := changeLogFilterFromQuery(ctx)
	if err != nil {
		return a.fail(ctx, err)
	}

	entries, total, err := a.Orchestrator.ChangeLog().List(ctx.Context(), filter)
	if err != nil {
		return a.fail(ctx, storeError(err, "failed to list change log"))
	}

	return ctx.JSON(router.StatusOK, NewSuccessResponse(map[string]any{
		"entries": entries,
		"total":   total,
	}))
}

// CreateProviderAdminRPC answers with the boolean rpc reply instead of the envelope
// ConfirmEmail handles the confirmation link of an invitation email
func (a *AdminController) ConfirmEmail(ctx router.Context) error {
	userID, err := queryUUID(ctx, "userId")
	if err != nil {
		return a.fail(ctx, err)
	}

	req := ConfirmEmailMessage{
		Email:       ctx.Query("email", ""),
		Token:       ctx.Query("token", ""),
		RedirectURL: ctx.Query("redirectUrl", ""),
	}
	if userID != nil {
		req.UserID = *userID
	}

	return a.reply(ctx, a.Orchestrator.ConfirmEmail(ctx.Context(), req))
}

func (a *AdminController) CreateProviderAdminRPC(ctx router.Context) error {
	actorID, err := a.actor(ctx)
	if err != nil {
		return a.fail(ctx, err)
	}

	payload := new(CreateProviderAdminRequest)
	if err := ctx.Bind(payload); err != nil {
		return ctx.JSON(router.StatusBadRequest, CreateProviderAdminReply{})
	}

	return ctx.JSON(router.StatusOK, a.RPC.CreateProviderAdmin(ctx.Context(), actorID, *payload))
}

func (a *AdminController) member(ctx router.Context, fn func(p AdminProvisioner, id uuid.UUID, actorID string) Response) error {
	role, actorID, err := a.target(ctx)
	if err != nil {
		return a.fail(ctx, err)
	}

	id, err := paramUUID(ctx, "id")
	if err != nil {
		return a.fail(ctx, err)
	}

	return a.reply(ctx, fn(a.Orchestrator.For(role), id, actorID))
}

func (a *AdminController) provider(ctx router.Context, blocked bool) error {
	actorID, err := a.actor(ctx)
	if err != nil {
		return a.fail(ctx, err)
	}

	providerID, err := paramUUID(ctx, "providerId")
	if err != nil {
		return a.fail(ctx, err)
	}

	return a.reply(ctx, a.Orchestrator.BlockByProvider(ctx.Context(), providerID, blocked, actorID))
}

func (a *AdminController) target(ctx router.Context) (AdminRole, string, error) {
	actorID, err := a.actor(ctx)
	if err != nil {
		return "", "", err
	}

	role, err := ParseAdminRole(ctx.Param("role"))
	if err != nil {
		return "", "", err
	}

	return role, actorID, nil
}

// actor reads the subject of the verified token stored by the jwt middleware
func (a *AdminController) actor(ctx router.Context) (string, error) {
	token, ok := ctx.Locals(a.ContextKey).(*jwt.Token)
	if !ok || token == nil {
		return "", ErrMissingActor
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrMissingActor
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrMissingActor
	}

	return sub, nil
}

func (a *AdminController) reply(ctx router.Context, resp Response) error {
	if !resp.IsSuccess {
		a.Logger.Debug("admin request failed",
			"path", ctx.Path(),
			"status", resp.HTTPStatusCode,
			"message", resp.Message,
		)
	}
	return ctx.JSON(resp.HTTPStatusCode, resp)
}

func (a *AdminController) fail(ctx router.Context, err error) error {
	resp := NewResponseFromError(err)
	a.Logger.Warn("admin request rejected",
		"path", ctx.Path(),
		"status", resp.HTTPStatusCode,
		"error", err,
	)
	return ctx.JSON(resp.HTTPStatusCode, resp)
}

func (a *AdminController) dump(title string, payload any) {
	if !a.Debug {
		return
	}
	fmt.Println("======= " + title + " ======")
	fmt.Println(print.MaybePrettyJSON(payload))
	fmt.Println("=========================")
}

func paramUUID(ctx router.Context, name string) (uuid.UUID, error) {
	raw := ctx.Param(name, "")
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, newValidationError(fmt.Errorf("%s: must be a valid UUID", name))
	}
	return id, nil
}

func queryUUID(ctx router.Context, name string) (*uuid.UUID, error) {
	raw := strings.TrimSpace(ctx.Query(name, ""))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, newValidationError(fmt.Errorf("%s: must be a valid UUID", name))
	}
	return &id, nil
}

func queryTime(ctx router.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(ctx.Query(name, ""))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, newValidationError(fmt.Errorf("%s: must be an RFC3339 timestamp", name))
	}
	return &t, nil
}

func changeLogFilterFromQuery(ctx router.Context) (ChangeLogFilter, error) {
	var (
		filter ChangeLogFilter
		err    error
	)

	if filter.AdminUserID, err = queryUUID(ctx, "adminUserId"); err != nil {
		return filter, err
	}
	if filter.OperationID, err = queryUUID(ctx, "operationId"); err != nil {
		return filter, err
	}
	if filter.From, err = queryTime(ctx, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = queryTime(ctx, "to"); err != nil {
		return filter, err
	}

	if raw := ctx.Query("role", ""); raw != "" {
		if filter.Role, err = ParseAdminRole(raw); err != nil {
			return filter, err
		}
	}

	if raw := ctx.Query("operation", ""); raw != "" {
		op := OperationKind(raw)
		if !isOperationKind(op) {
			return filter, newValidationError(fmt.Errorf("operation: unknown value %q", raw))
		}
		filter.Operation = op
	}

	filter.ActorID = ctx.Query("actorId", "")

	if filter.Limit, err = queryNonNegative(ctx, "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = queryNonNegative(ctx, "offset"); err != nil {
		return filter, err
	}

	return filter, nil
}

func queryNonNegative(ctx router.Context, name string) (int, error) {
	raw := ctx.Query(name, "")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, newValidationError(fmt.Errorf("%s: must be a non negative integer", name))
	}
	return n, nil
}
