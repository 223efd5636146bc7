package grpc

import (
	"github.com/meshagent/meshagent/api/proto/serviceapipb"
	"github.com/meshagent/meshagent/internal/application/serviceapi"
)

// ServiceAPIServer implements the MBFlowServiceAPI gRPC service.
type ServiceAPIServer struct {
	serviceapipb.UnimplementedMBFlowServiceAPIServer
	ops *serviceapi.Operations
}

// NewServiceAPIServer creates a new gRPC server backed by the operations layer.
func NewServiceAPIServer(ops *serviceapi.Operations) *ServiceAPIServer {
	return &ServiceAPIServer{ops: ops}
}
