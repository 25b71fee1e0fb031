package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Login    string `json:"login" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is returned on successful login.
type LoginResponse struct {
	Token    string `json:"token"`
	Operator string `json:"operator"`
	Override bool   `json:"override"`
}

// AuthHandler handles authentication-related HTTP requests.
type AuthHandler struct {
	operators  *OperatorService
	jwtService *JWTService
	validator  *validator.Validate
	log        logrus.FieldLogger
}

// NewAuthHandler creates a new AuthHandler with the given dependencies.
func NewAuthHandler(operators *OperatorService, jwtService *JWTService, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{
		operators:  operators,
		jwtService: jwtService,
		validator:  validator.New(),
		log:        log.WithField("component", "auth"),
	}
}

// Login handles operator login requests.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Message: "invalid request body"})
		return
	}

	if err := h.validator.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Message: extractValidationErrors(err)})
		return
	}

	op, err := h.operators.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		status := HTTPStatus(err)
		if status == http.StatusUnauthorized {
			h.log.WithField("login", req.Login).Warn("login rejected")
			writeJSON(w, status, ErrorBody{Message: err.Error()})
			return
		}
		h.log.WithError(err).Error("login failed")
		writeJSON(w, http.StatusServiceUnavailable, ErrorBody{Message: "authentication backend unavailable"})
		return
	}

	token, err := h.jwtService.GenerateToken(op.Login, op.CanOverride)
	if err != nil {
		h.log.WithError(err).Error("failed to generate token")
		writeJSON(w, http.StatusInternalServerError, ErrorBody{Message: "failed to generate token"})
		return
	}

	h.log.WithFields(logrus.Fields{"login": op.Login, "override": op.CanOverride}).Info("operator logged in")
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, Operator: op.Login, Override: op.CanOverride})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// extractValidationErrors extracts validation error messages from validator errors.
func extractValidationErrors(err error) string {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrors) > 0 {
			// Return first validation error for simplicity
			ve := validationErrors[0]
			return "validation error: " + ve.Field() + " - " + ve.Tag()
		}
	}
	return "validation error: invalid request"
}
