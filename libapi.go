package replybus

import (
	"google.golang.org/protobuf/proto"

	runtimepkg "github.com/drblury/replybus/internal/runtime"
	configpkg "github.com/drblury/replybus/internal/runtime/config"
	"github.com/drblury/replybus/internal/runtime/correlation"
	"github.com/drblury/replybus/internal/runtime/envelope"
	errspkg "github.com/drblury/replybus/internal/runtime/errors"
	idspkg "github.com/drblury/replybus/internal/runtime/ids"
	loggingpkg "github.com/drblury/replybus/internal/runtime/logging"
	"github.com/drblury/replybus/internal/runtime/stats"
	"github.com/drblury/replybus/internal/runtime/subscriptions"
	transportpkg "github.com/drblury/replybus/internal/runtime/transport"
	newtransport "github.com/drblury/replybus/transport"
)

type (
	Config       = configpkg.Config
	Bus          = runtimepkg.Bus
	Dependencies = runtimepkg.Dependencies

	Handler                       = runtimepkg.Handler
	Request                       = runtimepkg.Request
	RequestBuilder                = runtimepkg.RequestBuilder
	Callback                      = correlation.Callback
	Subscription                  = subscriptions.Subscription
	JSONHandler[T any]            = runtimepkg.JSONHandler[T]
	ProtoHandler[T proto.Message] = runtimepkg.ProtoHandler[T]

	Envelope    = envelope.Envelope
	Address     = envelope.Address
	Kind        = envelope.Kind
	RemoteError = envelope.RemoteError

	Snapshot         = stats.Snapshot
	BusInfo          = runtimepkg.BusInfo
	SubscriptionInfo = runtimepkg.SubscriptionInfo

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration

	HandlerContext = runtimepkg.HandlerContext
	HandlerHooks   = runtimepkg.HandlerHooks

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	SendError         = errspkg.SendError
	HandlerPanicError = errspkg.HandlerPanicError

	EnvelopeTransport = transportpkg.EnvelopeTransport
	EnvelopeHandler   = transportpkg.EnvelopeHandler
	TransportFactory  = transportpkg.Factory

	// Modular transport types
	Transport             = newtransport.Transport
	TransportBuilder      = newtransport.Builder
	TransportConfig       = newtransport.Config
	TransportRegistry     = newtransport.Registry
	TransportCapabilities = newtransport.Capabilities
)

var (
	NewBus         = runtimepkg.NewBus
	TryNewBus      = runtimepkg.TryNewBus
	ValidateConfig = configpkg.ValidateConfig
	LoadConfig     = configpkg.Load
	ParseConfig    = configpkg.Parse

	DefaultMiddlewares     = runtimepkg.DefaultMiddlewares
	LogEnvelopesMiddleware = runtimepkg.LogEnvelopesMiddleware
	TracerMiddleware       = runtimepkg.TracerMiddleware
	MetricsMiddleware      = runtimepkg.MetricsMiddleware
	RecovererMiddleware    = runtimepkg.RecovererMiddleware

	LoggingHooks = runtimepkg.LoggingHooks

	DefaultTransportFactory  = transportpkg.DefaultFactory
	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register
	BuildTransport           = newtransport.Build
	GetCapabilities          = newtransport.GetCapabilities

	ParseAddress = envelope.ParseAddress
	EncodeBody   = envelope.EncodeBody
	DecodeBody   = envelope.DecodeBody
	DecodeError  = envelope.DecodeError

	ErrConfigRequired      = errspkg.ErrConfigRequired
	ErrLoggerRequired      = errspkg.ErrLoggerRequired
	ErrServiceNameRequired = errspkg.ErrServiceNameRequired
	ErrBusClosed           = errspkg.ErrBusClosed
	ErrTargetRequired      = errspkg.ErrTargetRequired
	ErrTypeRequired        = errspkg.ErrTypeRequired
	ErrReservedType        = errspkg.ErrReservedType
	ErrHandlerRequired     = errspkg.ErrHandlerRequired
	ErrDuplicateID         = errspkg.ErrDuplicateID
	ErrBodyTooLarge        = errspkg.ErrBodyTooLarge
	ErrNoSubscribers       = errspkg.ErrNoSubscribers
	ErrRequestTimeout      = errspkg.ErrRequestTimeout

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewNopLogger         = loggingpkg.NewNopLogger

	NewMessageID  = idspkg.NewMessageID
	NewInstanceID = idspkg.NewInstanceID
)

// Protocol type tags.
const (
	TypePing          = envelope.TypePing
	TypePong          = envelope.TypePong
	TypeReply         = envelope.TypeReply
	TypeReplyErr      = envelope.TypeReplyErr
	TypeNoSubscribers = envelope.TypeNoSubscribers
)

// Error codes carried by RemoteError.
const (
	CodeNoSubscribers = envelope.CodeNoSubscribers
	CodeInvalidBody   = envelope.CodeInvalidBody
)

// DefaultTopicPrefix namespaces inbox topics unless Config.TopicPrefix is set.
const DefaultTopicPrefix = configpkg.DefaultTopicPrefix

func SubscribeJSON[T any](b *Bus, typ string, handler JSONHandler[T]) (Subscription, error) {
	return runtimepkg.SubscribeJSON(b, typ, handler)
}

func SubscribeProto[T proto.Message](b *Bus, typ string, handler ProtoHandler[T]) (Subscription, error) {
	return runtimepkg.SubscribeProto(b, typ, handler)
}
