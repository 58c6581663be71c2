package handler

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dtroode/identity-store/internal/model"
)

func handleError(err error) error {
	if _, ok := status.FromError(err); ok && err != nil {
		return err
	}

	var modelErr *model.Error
	if !errors.As(err, &modelErr) {
		return status.Error(codes.Internal, "internal server error")
	}

	switch modelErr.Code {
	case model.CodeStore:
		return status.Error(codes.Unavailable, "store unavailable")
	case model.CodeInvalidCriteria:
		return status.Error(codes.InvalidArgument, modelErr.Message)
	case model.CodeUniquenessConflict:
		return status.Error(codes.AlreadyExists, modelErr.Message)
	case model.CodeNotFound:
		return status.Error(codes.NotFound, model.ErrNotFound.Message)
	case model.CodeSerialization:
		return status.Error(codes.InvalidArgument, modelErr.Message)
	default:
		return status.Error(codes.Internal, "internal server error")
	}
}
