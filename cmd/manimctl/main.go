// Command manimctl is a CLI client for the Manim Forge animation
// generation service.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/manimforge/go-manim-client/auth"
	"github.com/manimforge/go-manim-client/internal/config"
	"github.com/manimforge/go-manim-client/jobs"
	"github.com/manimforge/go-manim-client/session/filestore"
	"github.com/manimforge/go-manim-client/session/memstore"
	"github.com/manimforge/go-manim-client/theme"
	"github.com/manimforge/go-manim-client/transport"
	"github.com/rs/zerolog"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `manimctl
Usage:
  manimctl [-api URL] [-data DIR] [-v] <cmd> [args]

Commands:
  version
  waitlist      -email <email> -name <name> [-reason <text>]
  register      -email <email> -password <pw> -first <name> -last <name> -invite <token>
  verify-email  -token <token>
  login         -email <email> -password <pw>        (saves session)
  whoami                                             (re-validates session)
  logout
  generate      -prompt <text> [-provider gemini|azure_openai] [-execute]
  jobs
  job           -id <id>
  theme         [-set on|off|toggle]
`)
	os.Exit(2)
}

func main() {
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	apiURL := flag.String("api", "", "backend base URL (overrides API_BASE_URL)")
	dataDir := flag.String("data", "", "data folder for the session jar (overrides DATA_FOLDER)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	cfg := config.New()
	logger := newLogger(*verbose)

	a, err := newApp(cfg, logger, *apiURL, *dataDir)
	if err != nil {
		fail(err)
	}

	ctx := context.Background()

	switch cmd {
	case "version":
		displayAppname(cfg.GetAppName())
		fmt.Printf("manimctl %s (%s)\n", version, buildDate)

	case "waitlist":
		fs := flag.NewFlagSet("waitlist", flag.ExitOnError)
		email := fs.String("email", "", "email address")
		name := fs.String("name", "", "full name")
		reason := fs.String("reason", "", "why you want access")
		_ = fs.Parse(args)
		if *email == "" || *name == "" {
			fmt.Fprintln(os.Stderr, "need -email and -name")
			os.Exit(1)
		}
		a.auth.JoinWaitlist(ctx, auth.WaitlistRequest{Email: *email, Name: *name, Reason: *reason})
		a.finishAuth("you're on the waitlist")

	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		email := fs.String("email", "", "email address")
		password := fs.String("password", "", "password")
		first := fs.String("first", "", "first name")
		last := fs.String("last", "", "last name")
		invite := fs.String("invite", "", "invitation token")
		_ = fs.Parse(args)
		if *email == "" || *password == "" || *invite == "" {
			fmt.Fprintln(os.Stderr, "need -email, -password and -invite")
			os.Exit(1)
		}
		a.auth.Register(ctx, auth.RegisterRequest{
			Email:           *email,
			Password:        *password,
			Password2:       *password,
			FirstName:       *first,
			LastName:        *last,
			InvitationToken: *invite,
		})
		a.finishAuth("registered; check your email to verify the address")

	case "verify-email":
		fs := flag.NewFlagSet("verify-email", flag.ExitOnError)
		token := fs.String("token", "", "verification token")
		_ = fs.Parse(args)
		if *token == "" {
			fmt.Fprintln(os.Stderr, "need -token")
			os.Exit(1)
		}
		a.auth.VerifyEmail(ctx, *token)
		a.finishAuth("email verified")

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		email := fs.String("email", "", "email address")
		password := fs.String("password", "", "password")
		_ = fs.Parse(args)
		if *email == "" || *password == "" {
			fmt.Fprintln(os.Stderr, "need -email and -password")
			os.Exit(1)
		}
		a.auth.Login(ctx, *email, *password)
		st := a.auth.State()
		if st.Error != "" {
			fmt.Fprintln(os.Stderr, st.Error)
			os.Exit(1)
		}
		if !st.IsAuthenticated {
			fmt.Fprintln(os.Stderr, "login failed")
			os.Exit(1)
		}
		fmt.Printf("logged in as %s %s <%s>\n", st.User.FirstName, st.User.LastName, st.User.Email)

	case "whoami":
		a.auth.InitAuth(ctx)
		st := a.auth.State()
		if !st.IsAuthenticated {
			fmt.Fprintln(os.Stderr, "not logged in")
			os.Exit(1)
		}
		printJSON(st.User)

	case "logout":
		a.auth.Logout()
		fmt.Println("ok")

	case "generate":
		fs := flag.NewFlagSet("generate", flag.ExitOnError)
		prompt := fs.String("prompt", "", "animation prompt")
		provider := fs.String("provider", string(jobs.ProviderGemini), "model provider")
		execute := fs.Bool("execute", false, "render the generated script")
		_ = fs.Parse(args)
		if *prompt == "" {
			fmt.Fprintln(os.Stderr, "need -prompt")
			os.Exit(1)
		}
		job := a.jobs.Generate(ctx, *prompt, jobs.Provider(*provider), *execute)
		if job == nil {
			fmt.Fprintln(os.Stderr, a.jobs.State().Error)
			os.Exit(1)
		}
		printJSON(job)

	case "jobs":
		a.jobs.FetchJobs(ctx)
		st := a.jobs.State()
		if st.Error != "" {
			fmt.Fprintln(os.Stderr, st.Error)
			os.Exit(1)
		}
		type row struct{ ID, Status, Provider, Prompt, CreatedAt string }
		rows := make([]row, 0, len(st.Jobs))
		for _, j := range st.Jobs {
			rows = append(rows, row{
				ID:        j.ID,
				Status:    string(j.Status),
				Provider:  string(j.Provider),
				Prompt:    j.Prompt,
				CreatedAt: j.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		printJSON(rows)

	case "job":
		fs := flag.NewFlagSet("job", flag.ExitOnError)
		id := fs.String("id", "", "job id")
		_ = fs.Parse(args)
		if *id == "" {
			fmt.Fprintln(os.Stderr, "need -id")
			os.Exit(1)
		}
		a.jobs.FetchJob(ctx, *id)
		st := a.jobs.State()
		if st.Error != "" {
			fmt.Fprintln(os.Stderr, st.Error)
			os.Exit(1)
		}
		printJSON(st.Current)

	case "theme":
		fs := flag.NewFlagSet("theme", flag.ExitOnError)
		set := fs.String("set", "", "on, off or toggle")
		_ = fs.Parse(args)
		a.theme.Init()
		defer a.theme.Cleanup()
		switch *set {
		case "":
		case "on":
			a.theme.Set(true)
		case "off":
			a.theme.Set(false)
		case "toggle":
			a.theme.Toggle()
		default:
			fmt.Fprintln(os.Stderr, "-set takes on, off or toggle")
			os.Exit(1)
		}
		if a.theme.DarkMode() {
			fmt.Println("dark")
		} else {
			fmt.Println("light")
		}

	default:
		usage()
	}
}

// app wires the stores over a file-backed session jar so credentials
// survive between invocations.
type app struct {
	auth  *auth.Store
	jobs  *jobs.Store
	theme *theme.Store
}

func newApp(cfg config.Config, logger zerolog.Logger, apiURL, dataDir string) (*app, error) {
	baseURL := apiURL
	if baseURL == "" {
		baseURL = cfg.GetAPIBaseURL()
	}
	folder := dataDir
	if folder == "" {
		folder = cfg.GetDataFolder()
	}
	if folder == "" {
		folder = defaultDataFolder()
	}

	jar := filestore.New(filepath.Join(folder, "session.json"))

	httpClient := &http.Client{}
	if raw := cfg.GetHTTPTimeout(); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid HTTP_TIMEOUT %q: %w", raw, err)
		}
		httpClient.Timeout = timeout
	}

	api, err := transport.New(baseURL, jar,
		transport.WithHTTPClient(httpClient),
		transport.WithLogger(logger),
		transport.WithAuthFailureHandler(func() {
			fmt.Fprintln(os.Stderr, "session expired; run 'manimctl login'")
		}),
	)
	if err != nil {
		return nil, err
	}

	authStore, err := auth.NewStore(api, auth.Stores{
		Credentials: jar,
		Tab:         memstore.New(), // process-scoped, like a fresh tab
	}, auth.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	jobStore, err := jobs.NewStore(api, jobs.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	themeStore := theme.NewStore(jar, theme.WithLogger(logger))

	return &app{auth: authStore, jobs: jobStore, theme: themeStore}, nil
}

// finishAuth reports the outcome of an auth operation that carries no
// payload beyond success or a recorded error.
func (a *app) finishAuth(successMsg string) {
	if err := a.auth.State().Error; err != "" {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(successMsg)
}

func defaultDataFolder() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "manimforge")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "manimforge")
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
