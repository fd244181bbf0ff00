package payments

import (
	"context"

	"github.com/angelmondragon/estore-backend/pkg/cashfree"
	"github.com/angelmondragon/estore-backend/pkg/config"
	"github.com/angelmondragon/estore-backend/pkg/httpclient"
	"github.com/angelmondragon/estore-backend/pkg/logger"
	"github.com/angelmondragon/estore-backend/pkg/metrics"
	"github.com/angelmondragon/estore-backend/pkg/phonepe"
)

// GatewaysFromConfig returns the online gateways whose credentials are
// configured. A gateway with missing credentials is logged and skipped; COD
// needs no gateway.
func GatewaysFromConfig(ctx context.Context, cfg *config.Config, logg *logger.Logger, gm *metrics.GatewayMetrics) []Gateway {
	var out []Gateway

	phonePeTransport := httpclient.New("phonepe", cfg.Gateway, httpclient.WithMetrics(gm))
	tokens, err := phonepe.NewOAuthTokenProvider(cfg.PhonePe, phonePeTransport)
	if err == nil {
		var client *phonepe.Client
		client, err = phonepe.NewClient(cfg.PhonePe, phonePeTransport, tokens)
		if err == nil {
			out = append(out, NewPhonePeGateway(client))
		}
	}
	if err != nil {
		logg.Warn(logg.WithField(ctx, "reason", err.Error()), "phonepe gateway disabled")
	}

	cashfreeClient, err := cashfree.NewClient(cfg.Cashfree, httpclient.New("cashfree", cfg.Gateway, httpclient.WithMetrics(gm)))
	if err != nil {
		logg.Warn(logg.WithField(ctx, "reason", err.Error()), "cashfree gateway disabled")
	} else {
		out = append(out, NewCashfreeGateway(cashfreeClient))
	}

	return out
}
