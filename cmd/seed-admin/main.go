// Command seed-admin creates or refreshes the administrator account.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/app"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/auth"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/config"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/event"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/repository/postgres"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/service"
	pkgconfig "github.com/Danreby/Back-end-Advanced-MVP-API/pkg/config"
	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/logger"
)

// adminConfig is read from ADMIN_EMAIL, ADMIN_NAME and ADMIN_PASSWORD.
type adminConfig struct {
	Email    string `env:"EMAIL" envDefault:"admin@example.com"`
	Name     string `env:"NAME" envDefault:"Administrador"`
	Password string `env:"PASSWORD,required"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New(cfg.ServiceName+"-seed", cfg.LogLevel)

	var admin adminConfig
	if err := pkgconfig.LoadWithPrefix(&admin, "ADMIN_"); err != nil {
		log.Error("failed to load admin settings", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := run(cfg, admin, log); err != nil {
		log.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, admin adminConfig, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := app.OpenDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	accounts := service.NewAccountService(
		postgres.NewUserRepository(pool),
		auth.NewHasher(cfg.BcryptCost),
		nil,
		nil,
		event.NoopPublisher{},
		log,
	)

	user, err := accounts.EnsureAdmin(ctx, admin.Email, admin.Name, admin.Password)
	if err != nil {
		return err
	}

	log.Info("admin ready",
		slog.String("user_id", user.ID),
		slog.String("email", logger.MaskEmail(user.Email)),
	)
	return nil
}
