package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escolar/core"
	"github.com/trezcool/escolar/core/user"
)

const tokenTypeBearer = "bearer"

type userApi struct {
	svc      *user.Service
	validate *validator.Validate
	conf     *core.Config
	logger   core.Logger
}

func registerUserAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *user.Service, opts Options) {
	api := userApi{
		svc:      svc,
		validate: opts.Validate,
		conf:     opts.Conf,
		logger:   opts.Logger,
	}

	// un-authed endpoints
	// TODO: rate limit `/login`, `/password-reset` & `/password-reset-confirm`
	ag := g.Group("/auth")
	ag.POST("/register", api.register)
	ag.POST("/login", api.login)
	ag.POST("/refresh", api.refresh)
	ag.POST("/password-reset", api.resetPassword)
	ag.POST("/password-reset-confirm", api.confirmPasswordReset)

	// authed endpoints
	ag.POST("/logout", api.logout, authed...)
	ag.GET("/me", api.me, authed...)
	ag.PUT("/me", api.updateMe, authed...)
	ag.GET("/me/devices", api.myDevices, authed...)

	// admin endpoints
	cg := g.Group("/control", append(authed, adminMiddleware())...)
	cg.POST("/users", api.create)
	cg.GET("/users", api.query)
	cg.GET("/users/:id", api.retrieve, api.userMiddleware())
	cg.PUT("/users/:id", api.update, api.userMiddleware())

	cg.POST("/access-codes", api.createCode)
	cg.GET("/access-codes", api.queryCodes)
	cg.GET("/access-codes/:id", api.retrieveCode, api.codeMiddleware())
	cg.PUT("/access-codes/:id", api.updateCode, api.codeMiddleware())
	cg.DELETE("/access-codes/:id", api.destroyCode, api.codeMiddleware())
}

func (api *userApi) userMiddleware() echo.MiddlewareFunc {
	return objectMiddleware(func(ctx context.Context, id int64) (interface{}, error) {
		return api.svc.GetByID(ctx, id)
	})
}

func (api *userApi) codeMiddleware() echo.MiddlewareFunc {
	return objectMiddleware(func(ctx context.Context, id int64) (interface{}, error) {
		return api.svc.GetAccessCode(ctx, id)
	})
}

func (api *userApi) tokenResponse(sess user.Session) (TokenResponse, error) {
	token, err := GenerateToken(api.conf, sess.User)
	if err != nil {
		return TokenResponse{}, errors.Wrap(err, "generating token")
	}
	return TokenResponse{
		AccessToken:  token,
		RefreshToken: sess.RefreshToken.Token,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int64(api.conf.Server.JWTExpirationDelta.Seconds()),
		User:         sess.User,
	}, nil
}

// Auth handlers

func (api *userApi) register(ctx echo.Context) error {
	var data user.Registration
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	usr, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) login(ctx echo.Context) error {
	var data user.Credentials
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sess, err := api.svc.Login(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "logging in")
	}
	resp, err := api.tokenResponse(sess)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *userApi) refresh(ctx echo.Context) error {
	var data RefreshRequest
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	sess, err := api.svc.Refresh(ctx.Request().Context(), data.RefreshToken)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	resp, err := api.tokenResponse(sess)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *userApi) logout(ctx echo.Context) error {
	var data RefreshRequest
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.svc.Logout(ctx.Request().Context(), usr, data.RefreshToken); err != nil {
		return errors.Wrap(err, "logging out")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email)
	if !(err == nil || core.IsNotFound(err) || errors.Cause(err) == user.ErrAccountDeactivated) {
		// do not return errors to attackers
		api.logger.Error("requesting password reset", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *userApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) updateMe(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data user.UpdateProfile
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate, usr); err != nil {
		return err
	}

	usr, err = api.svc.UpdateProfile(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "updating profile")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) myDevices(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	devices, err := api.svc.QueryDevices(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "querying devices")
	}
	return ctx.JSON(http.StatusOK, devices)
}

// Admin handlers

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	usr, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) query(ctx echo.Context) error {
	var filter user.QueryFilter
	page, ordering, err := bindQuery(ctx, &filter)
	if err != nil {
		return err
	}

	users, err := api.svc.Filter(ctx.Request().Context(), filter, ordering, page)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, err := getContextObject[user.User](ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	usr, err := getContextObject[user.User](ctx)
	if err != nil {
		return err
	}

	var data user.UpdateUser
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	// admins cannot lock themselves out
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if usr.ID == ctxUsr.ID && data.IsActive != nil && !*data.IsActive {
		return errHttpForbidden
	}

	usr, err = api.svc.Update(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) createCode(ctx echo.Context) error {
	var data user.NewAccessCode
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	code, err := api.svc.CreateAccessCode(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "creating access code")
	}
	return ctx.JSON(http.StatusCreated, code)
}

func (api *userApi) queryCodes(ctx echo.Context) error {
	var filter user.AccessCodeFilter
	page, _, err := bindQuery(ctx, &filter)
	if err != nil {
		return err
	}

	codes, err := api.svc.FilterAccessCodes(ctx.Request().Context(), filter, page)
	if err != nil {
		return errors.Wrap(err, "querying access codes")
	}
	return ctx.JSON(http.StatusOK, codes)
}

func (api *userApi) retrieveCode(ctx echo.Context) error {
	code, err := getContextObject[user.AccessCode](ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, code)
}

func (api *userApi) updateCode(ctx echo.Context) error {
	code, err := getContextObject[user.AccessCode](ctx)
	if err != nil {
		return err
	}

	var data user.UpdateAccessCode
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	code, err = api.svc.UpdateAccessCode(ctx.Request().Context(), code, data)
	if err != nil {
		return errors.Wrap(err, "updating access code")
	}
	return ctx.JSON(http.StatusOK, code)
}

func (api *userApi) destroyCode(ctx echo.Context) error {
	code, err := getContextObject[user.AccessCode](ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteAccessCode(ctx.Request().Context(), code.ID); err != nil {
		return errors.Wrap(err, "deleting access code")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type (
	TokenResponse struct {
		AccessToken  string    `json:"access_token"`
		RefreshToken string    `json:"refresh_token"`
		TokenType    string    `json:"token_type"`
		ExpiresIn    int64     `json:"expires_in"` // seconds
		User         user.User `json:"user"`
	}

	RefreshRequest struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
