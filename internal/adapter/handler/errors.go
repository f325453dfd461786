package handler

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/shop-seckill/internal/core/domain"
)

// rejection is how a domain error is presented on the wire.
type rejection struct {
	target     error
	httpStatus int
	grpcCode   codes.Code
	reason     string
}

var rejections = []rejection{
	{domain.ErrInvalidArgument, http.StatusBadRequest, codes.InvalidArgument, "INVALID_ARGUMENT"},
	{domain.ErrUnauthorized, http.StatusUnauthorized, codes.Unauthenticated, "UNAUTHORIZED"},
	{domain.ErrNotFound, http.StatusNotFound, codes.NotFound, "NOT_FOUND"},
	{domain.ErrSaleNotStarted, http.StatusForbidden, codes.FailedPrecondition, "SALE_NOT_STARTED"},
	{domain.ErrSaleEnded, http.StatusGone, codes.FailedPrecondition, "SALE_ENDED"},
	{domain.ErrOutOfStock, http.StatusGone, codes.ResourceExhausted, "OUT_OF_STOCK"},
	{domain.ErrDuplicate, http.StatusConflict, codes.AlreadyExists, "DUPLICATE_PURCHASE"},
	{domain.ErrAlreadyExists, http.StatusConflict, codes.AlreadyExists, "ALREADY_EXISTS"},
	{domain.ErrOversold, http.StatusConflict, codes.Aborted, "PURCHASE_FAILED"},
	{domain.ErrContention, http.StatusTooManyRequests, codes.Unavailable, "CONTENTION"},
}

var internalRejection = rejection{
	target:     domain.ErrInfrastructure,
	httpStatus: http.StatusInternalServerError,
	grpcCode:   codes.Internal,
	reason:     "INTERNAL",
}

func classify(err error) rejection {
	for _, r := range rejections {
		if errors.Is(err, r.target) {
			return r
		}
	}
	return internalRejection
}

// message is safe to show to a client. Internal causes are never exposed.
func (r rejection) message() string {
	if r.reason == internalRejection.reason {
		return "internal error"
	}
	return r.target.Error()
}
