package interfaces

//go:generate mockgen -source=provider_gateway_interface.go -destination=mocks/provider_gateway_mock.go -package=mock_interfaces

import (
	"context"

	"github.com/saccohub/settlement/internal/domain"
)

// IProviderGateway abstracts the mobile-money provider API.
//
// Implementations translate transport problems into the mpesa package's
// sentinel errors; callers never see raw HTTP failures.
type IProviderGateway interface {
	InitiateSTKPush(ctx context.Context, req domain.STKPushRequest) (domain.ProviderAck, error)
	InitiateB2C(ctx context.Context, req domain.B2CRequest) (domain.ProviderAck, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (domain.ProviderStatus, error)
}
