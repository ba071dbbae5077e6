package dto

import (
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/pkg/validator"
)

type IssueTokenReq struct {
	Kind types.ActorKind `json:"kind"`
	ID   int64           `json:"id"`
}

func (r *IssueTokenReq) Validate(v *validator.Validator) {
	v.Check(r.Kind.IsValid(), "kind", "must be one of driver, passenger, admin")
	v.Check(r.ID > 0, "id", "must be positive")
}

func (r *IssueTokenReq) ToModel() models.Actor {
	return models.Actor{Kind: r.Kind, ID: r.ID}
}
