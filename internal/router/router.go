// Package router turns configuration plus the caller's requested model
// into a routing decision for one endpoint call.
//
// DESIGN: the decision is computed once per request and is read-only
// downstream. A model name of the form "byok:<providerId>:<model>" wins
// over any configured override, since it is the user explicitly picking a
// provider from the merged model list. Anything the router cannot resolve
// degrades to official rather than failing; only an explicit "disabled"
// route mode produces an error, and that happens in dispatch.
package router

import (
	"strings"

	"github.com/byokrelay/gateway/internal/config"
	"github.com/byokrelay/gateway/internal/protocol"
)

// Route modes.
const (
	ModeOfficial = "official"
	ModeBYOK     = "byok"
	ModeDisabled = "disabled"
)

// BYOKModelPrefix marks model names synthesized by the get-models merge.
const BYOKModelPrefix = "byok:"

// Route is the per-call routing decision.
type Route struct {
	Mode           string
	Provider       *config.Provider
	Model          string
	RequestedModel string
}

// RequestedModel pulls the caller's model selection out of a request body.
func RequestedModel(body any) string {
	return strings.TrimSpace(protocol.PickString(body, "model", "model_name", "model_id"))
}

// ParseBYOKModel splits "byok:<providerId>:<model>" into its parts.
func ParseBYOKModel(name string) (providerID, model string, ok bool) {
	if !strings.HasPrefix(name, BYOKModelPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(name, BYOKModelPrefix)
	providerID, model, found := strings.Cut(rest, ":")
	if !found || strings.TrimSpace(providerID) == "" || strings.TrimSpace(model) == "" {
		return "", "", false
	}
	return strings.TrimSpace(providerID), strings.TrimSpace(model), true
}

// BYOKModelName renders the merged-list name for a provider's model.
func BYOKModelName(providerID, model string) string {
	return BYOKModelPrefix + providerID + ":" + model
}

// Decide resolves the route for one endpoint call.
func Decide(cfg *config.Config, endpoint string, body any) Route {
	requested := RequestedModel(body)

	// Explicit byok model selection overrides configured routing.
	if providerID, model, ok := ParseBYOKModel(requested); ok {
		if p := cfg.ProviderByID(providerID); p != nil {
			return Route{Mode: ModeBYOK, Provider: p, Model: model, RequestedModel: requested}
		}
		return Route{Mode: ModeOfficial, RequestedModel: requested}
	}

	override, hasOverride := cfg.Routing.Endpoints[endpoint]
	if hasOverride {
		switch strings.TrimSpace(override.Mode) {
		case ModeDisabled:
			return Route{Mode: ModeDisabled, RequestedModel: requested}
		case ModeOfficial:
			return Route{Mode: ModeOfficial, RequestedModel: requested}
		case ModeBYOK, "":
			return byokRoute(cfg, override, requested)
		default:
			// Unknown mode strings route official so a config typo
			// degrades instead of breaking the endpoint.
			return Route{Mode: ModeOfficial, RequestedModel: requested}
		}
	}

	// No override: route byok through the default provider (falling back to
	// the first configured one); with no providers at all this degrades to
	// official inside byokRoute.
	return byokRoute(cfg, config.EndpointRoute{}, requested)
}

func byokRoute(cfg *config.Config, override config.EndpointRoute, requested string) Route {
	var p *config.Provider
	if id := strings.TrimSpace(override.ProviderID); id != "" {
		p = cfg.ProviderByID(id)
	} else {
		p = cfg.DefaultProvider()
	}
	if p == nil {
		return Route{Mode: ModeOfficial, RequestedModel: requested}
	}

	model := strings.TrimSpace(override.Model)
	if model == "" {
		model = p.ResolveDefaultModel()
	}
	if model == "" {
		return Route{Mode: ModeOfficial, RequestedModel: requested}
	}
	return Route{Mode: ModeBYOK, Provider: p, Model: model, RequestedModel: requested}
}
