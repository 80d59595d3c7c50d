package main

import (
	"context"
	"database/sql"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/template/django/v3"
	gconfig "github.com/goliatone/go-config/config"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	accounts "github.com/prophet-studio/go-accounts"
	"github.com/prophet-studio/go-accounts/activity/natssink"
	"github.com/prophet-studio/go-accounts/config"
	"github.com/prophet-studio/go-accounts/sessionstore/redisstore"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

type App struct {
	config   *gconfig.Container[*config.BaseConfig]
	logger   *glog.BaseLogger
	db       *bun.DB
	repo     accounts.RepositoryManager
	activity accounts.ActivitySink
	srv      router.Server[*fiber.App]
	closers  []func() error
}

func (a *App) Config() *config.BaseConfig {
	return a.config.Raw()
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	_ = godotenv.Load()

	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Info),
		glog.WithName("accounts"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	cfg := gconfig.New(&config.BaseConfig{}).
		WithLogger(lgr.GetLogger("config"))

	ctx := context.Background()
	if err := cfg.Load(ctx); err != nil {
		panic(err)
	}

	app := &App{
		config: cfg,
		logger: lgr,
	}

	if app.Config().GetApp().Debug {
		lgr.GetLogger("config").Debug("configuration loaded", "config", print.MaybeHighlightJSON(cfg.Raw()))
	}

	if err := WithPersistence(ctx, app); err != nil {
		panic(err)
	}

	if err := WithActivity(app); err != nil {
		panic(err)
	}

	if err := WithHTTPServer(app); err != nil {
		panic(err)
	}

	addr := app.Config().GetApp().Address
	if addr == "" {
		addr = ":8080"
	}

	app.srv.Serve(addr)

	sig := WaitExitSignal()
	lgr.GetLogger("app").Info("shutting down", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.srv.Shutdown(shutdownCtx); err != nil {
		lgr.GetLogger("app").Error("server shutdown", "error", err)
	}

	for _, closer := range app.closers {
		if err := closer(); err != nil {
			lgr.GetLogger("app").Error("close resource", "error", err)
		}
	}
}

func openDatabase(pcfg config.Persistence) (*sql.DB, schema.Dialect, error) {
	switch pcfg.GetDriver() {
	case "postgres":
		db, err := sql.Open("postgres", pcfg.GetDSN())
		return db, pgdialect.New(), err
	default:
		db, err := sql.Open(sqliteshim.ShimName, pcfg.GetDSN())
		if err == nil {
			db.SetMaxOpenConns(1)
		}
		return db, sqlitedialect.New(), err
	}
}

func WithPersistence(ctx context.Context, app *App) error {
	pcfg := app.Config().GetPersistence()

	db, dialect, err := openDatabase(pcfg)
	if err != nil {
		return err
	}

	persistence.RegisterModel((*accounts.User)(nil))
	persistence.RegisterModel((*accounts.Organization)(nil))
	persistence.RegisterModel((*accounts.OrganizationMember)(nil))
	persistence.RegisterModel((*accounts.Project)(nil))
	persistence.RegisterModel((*accounts.SAMLConfig)(nil))
	persistence.RegisterModel((*accounts.APIToken)(nil))
	persistence.RegisterModel((*accounts.Session)(nil))

	client, err := persistence.New(pcfg, db, dialect)
	if err != nil {
		return err
	}

	client.SetLogger(app.GetLogger("persistence"))

	migrationsFS, err := fs.Sub(accounts.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		return err
	}
	client.RegisterDialectMigrations(
		migrationsFS,
		persistence.WithDialectSourceLabel("data/sql/migrations"),
	)

	if err := client.Migrate(ctx); err != nil {
		return err
	}

	app.db = client.DB()

	var opts []accounts.RepositoryManagerOption
	if url := app.Config().GetRedis().URL; url != "" {
		rdb, err := redisstore.Connect(ctx, url)
		if err != nil {
			return err
		}
		app.closers = append(app.closers, rdb.Close)
		opts = append(opts, accounts.WithSessionStore(redisstore.New(rdb)))
		app.GetLogger("persistence").Info("sessions stored in redis")
	}

	app.repo = accounts.NewRepositoryManager(app.db, opts...)

	return app.repo.Validate()
}

func WithActivity(app *App) error {
	ncfg := app.Config().GetNATS()
	logger := app.GetLogger("activity")

	if ncfg.URL == "" {
		app.activity = accounts.ActivitySinkFunc(func(_ context.Context, event accounts.ActivityEvent) error {
			logger.Info("activity", "event", event.EventType, "user_id", event.UserID, "organization_id", event.OrganizationID)
			return nil
		})
		return nil
	}

	nc, err := natssink.Connect(ncfg.URL, logger)
	if err != nil {
		return err
	}
	app.closers = append(app.closers, nc.Drain)

	app.activity = natssink.New(nc,
		natssink.WithSubjectPrefix(ncfg.SubjectPrefix),
		natssink.WithLogger(logger),
	)
	return nil
}

func viewsFS(dir string) http.FileSystem {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return http.Dir(dir)
		}
	}
	return http.FS(accounts.GetViewsFS())
}

func WithHTTPServer(app *App) error {
	acfg := app.Config().GetApp()
	auth := app.Config().GetAuth()
	logger := app.GetLogger("accounts")

	engine := django.NewFileSystem(viewsFS(acfg.ViewsDir), ".html")
	engine.Reload(acfg.Debug)

	avatars := accounts.NewAvatarHandler(auth, app.repo,
		accounts.WithAvatarLogger(app.GetLogger("avatars")),
		accounts.WithAvatarActivitySink(app.activity),
	)

	csrfCookie := acfg.CSRFCookie
	if csrfCookie == "" {
		csrfCookie = "csrftoken"
	}

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		f := router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			StrictRouting:     false,
			PassLocalsToViews: true,
			BodyLimit:         2 * 1024 * 1024,
			Views:             engine,
		}))

		f.Use(csrf.New(csrf.Config{
			KeyLookup:      "form:csrfmiddlewaretoken",
			CookieName:     csrfCookie,
			CookieSameSite: "Lax",
			ContextKey:     "csrf",
			Next:           accounts.CSRFExempt,
		}))

		avatars.Register(f, "/user/avatar")

		avatarRoot := auth.GetAvatarPath()
		if avatarRoot == "" {
			avatarRoot = "avatars"
		}
		f.Static("/"+strings.Trim(avatarRoot, "/"), avatarRoot)

		return f
	})

	srv.Router().WithLogger(app.GetLogger("router"))

	controller := accounts.RegisterAccountRoutes(srv.Router(),
		accounts.WithConfig(auth),
		accounts.WithRepository(app.repo),
		accounts.WithLogger(logger),
		accounts.WithActivitySink(app.activity),
		accounts.WithDebug(acfg.Debug),
	)

	api := accounts.NewAPIController(auth, app.repo,
		accounts.WithAPILogger(app.GetLogger("api")),
	)
	accounts.RegisterAPIRoutes(srv.Router(), api)

	projectIndex := auth.GetProjectIndexPath()
	if projectIndex == "" {
		projectIndex = "/projects/"
	}

	srv.Router().Get("/", func(ctx router.Context) error {
		return ctx.Redirect(projectIndex, http.StatusFound)
	})

	srv.Router().Get(projectIndex, ProjectsIndex(app, controller.Sessions()))

	app.srv = srv
	return nil
}

// ProjectsIndex lists the projects of the active organization
func ProjectsIndex(app *App, sessions *accounts.SessionManager) router.HandlerFunc {
	return func(ctx router.Context) error {
		session, user, err := sessions.Current(ctx)
		if err != nil {
			return ctx.Redirect("/user/login?next="+ctx.OriginalURL(), http.StatusFound)
		}

		orgID := session.OrganizationID
		if orgID == nil {
			orgID = user.ActiveOrganizationID
		}

		projects := []string{}
		if orgID != nil {
			ids, err := app.repo.Projects().IDsForOrganization(ctx.Context(), *orgID)
			if err != nil {
				return accounts.NewErrorHandler(app.GetLogger("projects"))(ctx, err)
			}
			for _, id := range ids {
				projects = append(projects, id.String())
			}
		}

		return ctx.Render("projects/index", router.ViewContext{
			"user":     user,
			"projects": projects,
		})
	}
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
