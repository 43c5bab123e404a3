package main

import (
	"pixelmint/pkg/config"
	app "pixelmint/services/credits/internal/app"

	_ "pixelmint/services/credits/docs" // Swagger docs
)

// @title           Credits Service API
// @version         1.0
// @description     Credit accounting and image generation service for PixelMint

// @contact.name   API Support
// @contact.email  support@pixelmint.dev

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	if cfg.JWTSecret == "your-secret-key-change-in-production" || cfg.JWTSecret == "" {
		panic("JWT_SECRET must be set in environment variables")
	}

	application, err := app.NewApp(cfg)
	if err != nil {
		panic(err)
	}

	if err := application.Run(); err != nil {
		panic(err)
	}

	application.Wait()

	if err := application.Shutdown(); err != nil {
		panic(err)
	}
}
