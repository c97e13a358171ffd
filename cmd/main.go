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

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/autopost/autopost"
	"github.com/autopost/autopost/assets"
	"github.com/autopost/autopost/config"
	"github.com/autopost/autopost/database"
	redlock "github.com/autopost/autopost/internal/lock"
	"github.com/autopost/autopost/internal/notification"
	redis_db "github.com/autopost/autopost/internal/redis-db"
	"github.com/autopost/autopost/internal/trigger"
	"github.com/autopost/autopost/model"
)

// Autopost represents the CLI application, encapsulating the root Cobra command.
type Autopost struct {
	cmd *cobra.Command
}

// autopostInstance holds everything the subcommands share once the configuration is loaded.
type autopostInstance struct {
	autopost *autopost.Autopost
	runner   *trigger.Runner
	queue    *autopost.Queue
	breaker  *autopost.BreakerBackend
	cnf      *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and wires the service before any command runs.
func preRun(app *autopostInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config ", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}
		if level, err := logrus.ParseLevel(cnf.LogLevel); err == nil {
			logrus.SetLevel(level)
		}

		if !needsService(cmd) {
			app.cnf = cnf
			return nil
		}

		if err := setupAutopost(cmd.Context(), app, cnf); err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}
		return nil
	}
}

// needsService reports whether cmd touches the ledger or the remote backends.
func needsService(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "config", "up", "down":
		return false
	}
	return true
}

// setupAutopost connects the ledger, the asset source and the remote backends.
func setupAutopost(ctx context.Context, app *autopostInstance, cfg *config.Configuration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := database.GetDBConnection(cfg)
	if err != nil {
		return fmt.Errorf("error getting datasource: %v", err)
	}
	if n, err := database.Migrate(db.Conn, db.Dialect, autopost.SQLFiles, migrate.Up); err != nil {
		return fmt.Errorf("error migrating datasource: %v", err)
	} else if n > 0 {
		logrus.Infof("applied %d migrations", n)
	}

	source, err := assets.NewSource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("error creating asset source: %v", err)
	}

	metrics := autopost.NewMetrics(prometheus.DefaultRegisterer)
	opts := []autopost.Option{
		autopost.WithPublishBackend(autopost.NewXBackend(cfg.Twitter, nil)),
		autopost.WithMetrics(metrics),
		autopost.WithLogger(logrus.StandardLogger()),
		autopost.WithErrorNotifier(notification.NotifyError),
	}
	if captioner := autopost.NewOpenAICaptioner(cfg, nil); captioner != nil {
		cooldown := time.Duration(cfg.Caption.CooldownSeconds) * time.Second
		app.breaker = autopost.NewBreakerBackend(captioner, cfg.Caption.FailureThreshold, cooldown, logrus.StandardLogger(), metrics)
		opts = append(opts, autopost.WithCaptionBackend(app.breaker))
	} else {
		logrus.Warn("no OpenAI API key configured, captions will come from templates")
	}
	if !cfg.Twitter.Configured() {
		logrus.Warn("X credentials are incomplete, every post will be simulated")
	}

	var runnerOpts []trigger.RunnerOption
	if cfg.Redis.Dns != "" {
		queue, err := autopost.NewQueue(cfg)
		if err != nil {
			return err
		}
		app.queue = queue
		opts = append(opts, autopost.WithEventSink(queue))

		client, err := redis_db.NewRedisClient(cfg.Redis.Dns, cfg.Redis.SkipTLSVerify)
		if err != nil {
			return fmt.Errorf("error connecting to redis: %v", err)
		}
		owner := model.GenerateUUIDWithSuffix("lck")
		runnerOpts = append(runnerOpts, trigger.WithLocker(redlock.NewLocker(client.Client(), trigger.LockKey, owner)))
	}

	app.autopost = autopost.NewAutopost(db, source, opts...)
	app.runner = trigger.NewRunner(app.autopost, runnerOpts...)
	app.cnf = cfg
	return nil
}

// NewCLI creates the root command and its subcommands.
func NewCLI() *Autopost {
	var configFile string
	b := &autopostInstance{}

	var rootCmd = &cobra.Command{
		Use:   "autopost",
		Short: "Scheduled image publishing with AI captions",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./autopost.json", "Configuration file for autopost")
	rootCmd.PersistentPreRunE = preRun(b, &configFile)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(runCommands(b))
	rootCmd.AddCommand(historyCommands(b))
	rootCmd.AddCommand(migrateCommands(b))
	rootCmd.AddCommand(configCommands(b))

	return &Autopost{cmd: rootCmd}
}

func (w Autopost) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
