// Package grpcserver exposes the directory admin API over gRPC.
package grpcserver

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/userdir/internal/auth"
	"github.com/and161185/userdir/internal/convert"
	"github.com/and161185/userdir/internal/errs"
	"github.com/and161185/userdir/internal/model"
	"github.com/and161185/userdir/internal/service"
)

// Server wires the directory service into gRPC handlers. Admin callers get
// the privileged operations and see API keys; other callers get them redacted.
type Server struct {
	dir service.DirectoryService
}

var _ DirectoryServer = (*Server)(nil)

// New constructs a gRPC server over dir.
func New(dir service.DirectoryService) *Server {
	return &Server{dir: dir}
}

// Get returns the record with the given uuid.
func (s *Server) Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	in, err := convert.FromStruct(req)
	if err != nil {
		return nil, toStatus(err)
	}
	if in.UUID == "" {
		return nil, status.Error(codes.InvalidArgument, "empty uuid")
	}
	u, err := s.dir.Get(ctx, in.UUID)
	if err != nil {
		return nil, toStatus(err)
	}
	return render(u, caller)
}

// LookupByExternalID returns the single record carrying the given id.
func (s *Server) LookupByExternalID(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	in, err := convert.FromStruct(req)
	if err != nil {
		return nil, toStatus(err)
	}
	if in.ExternalID == "" {
		return nil, status.Error(codes.InvalidArgument, "empty id")
	}
	u, err := s.dir.LookupByExternalID(ctx, in.ExternalID)
	if err != nil {
		return nil, toStatus(err)
	}
	return render(u, caller)
}

// Create stores a new record.
func (s *Server) Create(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	in, err := convert.FromStruct(req)
	if err != nil {
		return nil, toStatus(err)
	}
	create := s.dir.Create
	if caller.Privileged() {
		create = s.dir.CreatePrivileged
	}
	u, err := create(ctx, in)
	if err != nil {
		return nil, toStatus(err)
	}
	return render(u, caller)
}

// Update merges the request into the stored record.
func (s *Server) Update(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	in, err := convert.FromStruct(req)
	if err != nil {
		return nil, toStatus(err)
	}
	update := s.dir.Update
	if caller.Privileged() {
		update = s.dir.UpdatePrivileged
	}
	u, err := update(ctx, in)
	if err != nil {
		return nil, toStatus(err)
	}
	return render(u, caller)
}

// Delete removes the record with the given uuid; missing records are fine.
// Only admin callers may delete.
func (s *Server) Delete(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	caller, err := callerFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	if !caller.Privileged() {
		return nil, status.Error(codes.PermissionDenied, "delete requires admin role")
	}
	in, err := convert.FromStruct(req)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := s.dir.Remove(ctx, in.UUID); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func callerFromCtx(ctx context.Context) (auth.Claims, error) {
	c, ok := CallerFromCtx(ctx)
	if !ok {
		return auth.Claims{}, status.Error(codes.Unauthenticated, "no auth")
	}
	return c, nil
}

func render(u *model.User, caller auth.Claims) (*structpb.Struct, error) {
	if u == nil {
		return nil, status.Error(codes.NotFound, "not found")
	}
	out, err := convert.ToStruct(*u, !caller.Privileged())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "render: %v", err)
	}
	return out, nil
}

// toStatus maps service errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, errs.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, errs.ErrIntegrity):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, errs.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, "rate limited")
	default:
		return status.Errorf(codes.Internal, "internal: %v", err)
	}
}
