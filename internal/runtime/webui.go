package runtime

import (
	"net/http"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/drblury/replybus/internal/runtime/stats"
)

// SubscriptionInfo describes one subscribed type in the WebUI API.
type SubscriptionInfo struct {
	Type     string `json:"type"`
	Handlers int    `json:"handlers"`
}

// TransportInfo describes the transport of the bus in the WebUI API.
type TransportInfo struct {
	Name               string `json:"name"`
	SharedServiceInbox bool   `json:"shared_service_inbox"`
	Durable            bool   `json:"durable"`
	Ordered            bool   `json:"ordered"`
	ReliableDelivery   bool   `json:"reliable_delivery"`
	MaxMessageSize     int64  `json:"max_message_size,omitempty"`
}

// BusInfo is the document served on /api/bus.
type BusInfo struct {
	Address       string             `json:"address"`
	Service       string             `json:"service"`
	Transport     TransportInfo      `json:"transport"`
	Subscriptions []SubscriptionInfo `json:"subscriptions"`
	Stats         stats.Snapshot     `json:"stats"`
}

// Info collects the address, live subscriptions and counters of the bus.
func (b *Bus) Info() BusInfo {
	types := b.subs.Types()
	subs := make([]SubscriptionInfo, 0, len(types))
	for _, typ := range types {
		if n := b.subs.Count(typ); n > 0 {
			subs = append(subs, SubscriptionInfo{Type: typ, Handlers: n})
		}
	}
	return BusInfo{
		Address:       b.address.String(),
		Service:       b.address.Service,
		Transport:     b.transportInfo(),
		Subscriptions: subs,
		Stats:         b.Stats(),
	}
}

func (b *Bus) transportInfo() TransportInfo {
	caps := b.capabilities
	info := TransportInfo{
		Name:               caps.Name,
		SharedServiceInbox: caps.SharedServiceInbox,
		Durable:            caps.Durable,
		Ordered:            caps.SupportsOrdering,
		ReliableDelivery:   caps.SupportsReliableDelivery(),
		MaxMessageSize:     caps.MaxMessageSize,
	}
	if info.Name == "" {
		info.Name = b.Conf.PubSubSystem
	}
	return info
}

func (b *Bus) registerWebUI() {
	if !b.Conf.WebUIEnabled {
		return
	}
	b.RegisterHTTPHandler(b.Conf.WebUIPort, "/api/bus", http.HandlerFunc(b.handleGetBus))
}

func (b *Bus) handleGetBus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if origin := b.allowedCORSOrigin(r.Header.Get("Origin")); origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	payload, err := sonic.Marshal(b.Info())
	if err != nil {
		b.Logger.Error("Failed to encode bus info", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(payload)
}

func (b *Bus) allowedCORSOrigin(requestOrigin string) string {
	for _, allowed := range b.Conf.WebUICORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if requestOrigin != "" && strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
