package handler

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/shop-seckill/internal/core/domain"
)

const (
	seckillServiceName = "seckill.SeckillService"
	errorDomain        = "seckill"
)

type SeckillRequest struct {
	VoucherID int64 `json:"voucher_id"`
}

type SeckillResponse struct {
	OrderID int64 `json:"order_id"`
}

type GetShopRequest struct {
	ID int64 `json:"id"`
}

type GetShopResponse struct {
	Shop *domain.Shop `json:"shop"`
}

// SeckillServer is the server API of seckill.SeckillService.
type SeckillServer interface {
	Seckill(ctx context.Context, req *SeckillRequest) (*SeckillResponse, error)
	GetShop(ctx context.Context, req *GetShopRequest) (*GetShopResponse, error)
}

type GRPCHandler struct {
	shops  ShopCatalog
	orders OrderPlacer
}

func NewGRPCHandler(shops ShopCatalog, orders OrderPlacer) *GRPCHandler {
	return &GRPCHandler{shops: shops, orders: orders}
}

func (h *GRPCHandler) Seckill(ctx context.Context, req *SeckillRequest) (*SeckillResponse, error) {
	user, ok := domain.UserFromContext(ctx)
	if !ok {
		return nil, statusError(domain.ErrUnauthorized)
	}

	orderID, err := h.orders.Seckill(ctx, req.VoucherID, user.ID)
	if err != nil {
		return nil, statusError(err)
	}
	return &SeckillResponse{OrderID: orderID}, nil
}

func (h *GRPCHandler) GetShop(ctx context.Context, req *GetShopRequest) (*GetShopResponse, error) {
	shop, err := h.shops.Get(ctx, req.ID)
	if err != nil {
		return nil, statusError(err)
	}
	return &GetShopResponse{Shop: shop}, nil
}

// statusError converts a domain error into a gRPC status whose ErrorInfo
// detail carries the same reason code as the HTTP envelope.
func statusError(err error) error {
	rej := classify(err)
	if rej.reason == internalRejection.reason {
		log.Error().Err(err).Msg("rpc failed")
	}

	st := status.New(rej.grpcCode, rej.message())
	detailed, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: rej.reason, Domain: errorDomain})
	if derr != nil {
		return st.Err()
	}
	return detailed.Err()
}

// ReasonOf returns the reason code attached by statusError, or "" when err
// carries none.
func ReasonOf(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info.GetReason()
		}
	}
	return ""
}

// SessionInterceptor attaches the session user named by the authorization
// metadata. Handlers decide whether a user is required.
func SessionInterceptor(sessions Authenticator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		tokens := md.Get(authorizationHeader)
		if len(tokens) == 0 || tokens[0] == "" {
			return handler(ctx, req)
		}

		user, err := sessions.Authenticate(ctx, tokens[0])
		if errors.Is(err, domain.ErrUnauthorized) {
			return handler(ctx, req)
		}
		if err != nil {
			return nil, statusError(err)
		}
		return handler(domain.ContextWithUser(ctx, user), req)
	}
}

func RegisterSeckillServer(s grpc.ServiceRegistrar, srv SeckillServer) {
	s.RegisterService(&seckillServiceDesc, srv)
}

func seckillHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SeckillRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SeckillServer).Seckill(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + seckillServiceName + "/Seckill",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SeckillServer).Seckill(ctx, req.(*SeckillRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getShopHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetShopRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SeckillServer).GetShop(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + seckillServiceName + "/GetShop",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SeckillServer).GetShop(ctx, req.(*GetShopRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var seckillServiceDesc = grpc.ServiceDesc{
	ServiceName: seckillServiceName,
	HandlerType: (*SeckillServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Seckill", Handler: seckillHandler},
		{MethodName: "GetShop", Handler: getShopHandler},
	},
	Streams: []grpc.StreamDesc{},
}

// SeckillClient calls seckill.SeckillService using the JSON codec.
type SeckillClient struct {
	cc grpc.ClientConnInterface
}

func NewSeckillClient(cc grpc.ClientConnInterface) *SeckillClient {
	return &SeckillClient{cc: cc}
}

func (c *SeckillClient) Seckill(ctx context.Context, req *SeckillRequest, opts ...grpc.CallOption) (*SeckillResponse, error) {
	out := new(SeckillResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+seckillServiceName+"/Seckill", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SeckillClient) GetShop(ctx context.Context, req *GetShopRequest, opts ...grpc.CallOption) (*GetShopResponse, error) {
	out := new(GetShopResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+seckillServiceName+"/GetShop", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
