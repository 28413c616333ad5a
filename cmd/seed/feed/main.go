package main

import (
	"context"
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sponsorportal/pkg/auth"
	"sponsorportal/pkg/config"
	"sponsorportal/pkg/db"
	"sponsorportal/pkg/gen"
	"sponsorportal/pkg/hashistack/secretmanager"
	"sponsorportal/pkg/logger"
	"sponsorportal/services/feed"
)

var author = &auth.Identity{UserID: "seed-missionary", Email: "misionero@example.com", Role: auth.RoleMissionary}

var posts = []feed.CreatePost{
	{
		Title:      "Llegada a Cusco",
		Content:    "Después de un largo viaje llegamos a Cusco. Gracias por sus oraciones y apoyo.",
		AuthorName: "Élder Ramírez",
		Location:   "Cusco, Perú",
		Tags:       []string{"peru", "llegada"},
	},
	{
		Title:      "Clases de inglés en la comunidad",
		Content:    "Esta semana comenzamos clases de inglés gratuitas para jóvenes del barrio.",
		AuthorName: "Élder Ramírez",
		Location:   "Cusco, Perú",
		Tags:       []string{"servicio", "educación"},
	},
	{
		Title:      "Proyecto de agua potable",
		Content:    "Con sus donaciones instalamos dos filtros de agua en la escuela local.",
		AuthorName: "Hermana Torres",
		Location:   "Puno, Perú",
		Tags:       []string{"donaciones", "agua"},
	},
}

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		fx.Provide(feed.NewService),
		fx.Invoke(seed),
		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func seed(conn *gorm.DB, svc *feed.Service) error {
	if err := db.Migrate(conn, &feed.Post{}); err != nil {
		return err
	}

	seeded, err := svc.Import(context.Background(), author, posts)
	if err != nil {
		zap.L().Error("failed to seed posts", zap.Error(err))
		return err
	}
	for _, p := range seeded {
		zap.L().Info("seeded post", zap.String("id", p.ID), zap.String("slug", p.Slug))
	}
	return nil
}
