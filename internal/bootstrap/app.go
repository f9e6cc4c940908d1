package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/GoSim-25-26J-441/uml-studio-backend/config"
	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/auth"
	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/events"
	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/generator"
	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/repository"
	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/service"
	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/renderer"
	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/users"
)

// App holds every long-lived dependency of the API and the worker.
type App struct {
	Config *config.Config
	Log    zerolog.Logger

	SQL   *sql.DB
	Pool  *pgxpool.Pool
	Redis *redis.Client

	Store        service.Store
	Bus          *events.RedisBus
	Users        *users.Repo
	Verifier     *fbauth.Client
	LocalUploads *renderer.LocalObjectStore

	Orchestrator *service.Orchestrator
	Projects     *service.ProjectService
	Versions     *service.VersionManager
}

// Build opens connections and wires services. Callers must Close the App.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	a.Redis, err = OpenRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	var pub service.Publisher = events.Nop{}
	if a.Redis != nil {
		a.Bus = events.NewRedisBus(a.Redis, log)
		pub = a.Bus
	}

	gen, err := generator.New(generator.Options{
		Provider:    cfg.Generator.Provider,
		PromptsFile: cfg.Generator.PromptsFile,
		OpenAI: generator.OpenAIOptions{
			APIKey:      cfg.Generator.OpenAIKey,
			Model:       cfg.Generator.OpenAIModel,
			BaseURL:     cfg.Generator.OpenAIBaseURL,
			Temperature: float32(cfg.Generator.Temperature),
		},
		UpstreamURL: cfg.Generator.UpstreamURL,
		Timeout:     cfg.Generator.Timeout,
	}, log)
	if err != nil {
		return nil, err
	}

	objects, err := a.openObjectStore(ctx)
	if err != nil {
		return nil, err
	}
	rend := renderer.NewHTTPRenderer(renderer.Options{
		PlantUMLURL: cfg.Renderer.PlantUMLURL,
		MermaidURL:  cfg.Renderer.MermaidURL,
		Format:      cfg.Renderer.Format,
		Timeout:     cfg.Renderer.Timeout,
	}, objects)

	if cfg.App.AuthMode == "firebase" {
		a.Verifier, err = auth.InitializeFirebase(ctx, cfg.Firebase)
		if err != nil {
			return nil, err
		}
	}

	a.Orchestrator = service.NewOrchestrator(service.OrchestratorDeps{
		Store:       a.Store,
		Generator:   gen,
		Renderer:    rend,
		Events:      pub,
		Logger:      log,
		Parallelism: cfg.Generator.Parallelism,
	})
	a.Projects = service.NewProjectService(a.Store, rend, pub, log)
	a.Versions = service.NewVersionManager(a.Store, pub, log)

	log.Info().
		Str("store", cfg.App.StoreDriver).
		Str("storage", cfg.Storage.Driver).
		Str("llm", cfg.Generator.Provider).
		Str("auth", cfg.App.AuthMode).
		Bool("redis", a.Redis != nil).
		Msg("application wired")
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config
	if cfg.App.StoreDriver == "memory" {
		a.Log.Warn().Msg("using in-memory store, data is lost on restart")
		a.Store = repository.NewMemoryStore()
		return nil
	}

	db, err := OpenSQL(ctx, cfg.Database)
	if err != nil {
		return err
	}
	a.SQL = db
	a.Store = repository.NewPostgresStore(db)

	pool, err := OpenDB(ctx, DBOptions{DSN: cfg.Database.DSN(), MaxConns: 5})
	if err != nil {
		return err
	}
	a.Pool = pool
	a.Users = users.NewRepo(pool)
	return nil
}

func (a *App) openObjectStore(ctx context.Context) (renderer.ObjectStore, error) {
	cfg := a.Config.Storage
	switch cfg.Driver {
	case "s3":
		return renderer.NewS3ObjectStore(ctx, renderer.S3Options{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			PublicBaseURL: cfg.PublicBaseURL,
		})
	case "local":
		prefix := cfg.PublicBaseURL
		if prefix == "" {
			prefix = fmt.Sprintf("http://localhost:%s/uploads", a.Config.Server.Port)
		}
		local, err := renderer.NewLocalObjectStore(cfg.LocalDir, prefix)
		if err != nil {
			return nil, err
		}
		a.LocalUploads = local
		return local, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Migrate applies the project schema. It is a no-op for the memory store.
func (a *App) Migrate(ctx context.Context) error {
	pg, ok := a.Store.(*repository.PostgresStore)
	if !ok {
		return nil
	}
	return pg.Migrate(ctx)
}

func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.SQL != nil {
		_ = a.SQL.Close()
	}
}
