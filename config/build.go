package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/tinywideclouds/go-push-dispatch/gateway/apns"
	"github.com/tinywideclouds/go-push-dispatch/gateway/c2dm"
	"github.com/tinywideclouds/go-push-dispatch/gateway/fcm"
	"github.com/tinywideclouds/go-push-dispatch/gateway/webpush"
	"github.com/tinywideclouds/go-push-dispatch/middleware"
	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

// Build assembles a Dispatcher from the validated configuration. Middlewares
// are constructed eagerly (they are cheap); gateways are registered lazily so
// credential handshakes run on the first delivery, not at startup, and at
// most once.
func Build(cfg *Config, logger *slog.Logger) (*push.Dispatcher, error) {
	d := push.NewDispatcher(logger)

	for _, mw := range cfg.Middlewares {
		switch mw.Type {
		case MiddlewareLogging:
			d.Use(middleware.NewLogging(logger))
		case MiddlewareRateLimit:
			burst := mw.Burst
			if burst <= 0 {
				burst = 1
			}
			d.Use(middleware.NewRateLimit(rate.Limit(mw.Rate), burst, mw.Wait, logger))
		case MiddlewareRetry:
			delay := mw.BaseDelay
			if delay <= 0 {
				delay = time.Second
			}
			d.Use(middleware.NewRetry(mw.MaxRetries, delay, logger))
		default:
			return nil, fmt.Errorf("unknown middleware type %q", mw.Type)
		}
	}

	for _, gw := range cfg.Gateways {
		opts := gw.Options
		switch gw.Type {
		case GatewayC2DM:
			d.AddGatewayLazy(func() (push.Gateway, error) {
				return c2dm.New(context.Background(), opts, logger)
			})
		case GatewayAPNS:
			d.AddGatewayLazy(func() (push.Gateway, error) {
				return apns.New(opts, logger)
			})
		case GatewayFCM:
			d.AddGatewayLazy(func() (push.Gateway, error) {
				return fcm.New(context.Background(), opts, logger)
			})
		case GatewayWebPush:
			d.AddGatewayLazy(func() (push.Gateway, error) {
				return webpush.New(opts, logger)
			})
		default:
			return nil, fmt.Errorf("unknown gateway type %q", gw.Type)
		}
	}

	return d, nil
}
