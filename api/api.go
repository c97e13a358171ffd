/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/autopost/autopost"
	"github.com/autopost/autopost/api/middleware"
	"github.com/autopost/autopost/config"
	"github.com/autopost/autopost/internal/trigger"
)

// CycleRunner runs a cycle synchronously.
type CycleRunner interface {
	Run(ctx context.Context, opts trigger.Options) (*trigger.Report, error)
}

// CycleQueue hands a cycle to the workers.
type CycleQueue interface {
	EnqueueCycle(ctx context.Context, reason string) (*asynq.TaskInfo, error)
}

// BreakerState exposes the caption circuit breaker for the overview.
type BreakerState interface {
	State() string
}

type Api struct {
	autopost *autopost.Autopost
	runner   CycleRunner
	queue    CycleQueue
	breaker  BreakerState
	router   *gin.Engine
}

type Option func(*Api)

// WithQueue enables asynchronous POST /cycles through the worker queue.
func WithQueue(q CycleQueue) Option {
	return func(a *Api) { a.queue = q }
}

func WithBreaker(b BreakerState) Option {
	return func(a *Api) { a.breaker = b }
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.GET("/overview", a.GetOverview)
	router.GET("/posts", a.GetPosts)
	router.GET("/errors", a.GetErrors)
	router.GET("/assets", a.GetAssets)
	router.GET("/schedule", a.GetSchedule)
	router.POST("/cycles", a.RunCycle)
	router.POST("/captions/preview", a.PreviewCaption)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return a.router
}

func NewAPI(ap *autopost.Autopost, runner CycleRunner, opts ...Option) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	if conf.EnableTelemetry {
		r.Use(otelgin.Middleware("AUTOPOST"))
	}
	r.Use(middleware.RateLimitMiddleware(conf, middleware.PublicPaths...))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware(conf, middleware.PublicPaths...))
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	a := &Api{autopost: ap, runner: runner, router: r}
	for _, opt := range opts {
		opt(a)
	}
	return a
}
