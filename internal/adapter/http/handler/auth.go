package handler

import (
	"net/http"

	"github.com/Temutjin2k/taxi-dispatch/internal/adapter/http/handler/dto"
	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
	"github.com/Temutjin2k/taxi-dispatch/pkg/validator"
)

type Auth struct {
	tokens TokenIssuer
	l      logger.Logger
}

func NewAuth(tokens TokenIssuer, l logger.Logger) *Auth {
	return &Auth{
		tokens: tokens,
		l:      l,
	}
}

// IssueToken mints an actor token. The route is admin only.
//
// @Summary      Issue an actor token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body dto.IssueTokenReq true "Actor"
// @Success      201 {object} map[string]interface{} "Bearer token"
// @Router       /auth/token [post]
func (h *Auth) IssueToken(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "issue_token")

	var req dto.IssueTokenReq
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	v := validator.New()
	req.Validate(v)
	if !v.Valid() {
		failedValidationResponse(w, v.Errors)
		return
	}

	token, exp, err := h.tokens.Issue(ctx, req.ToModel())
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to issue token", err)
		serviceErrorResponse(w, err)
		return
	}

	response := envelope{
		"token":      token,
		"token_type": "Bearer",
		"expires_at": exp,
		"kind":       req.Kind,
		"id":         req.ID,
	}
	if err := writeJSON(w, http.StatusCreated, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
	}

	h.l.Info(ctx, "token issued", "kind", req.Kind.String(), "id", req.ID)
}
