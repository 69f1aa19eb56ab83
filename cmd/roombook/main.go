// Command roombook is the command-line front-end for the campus room-booking
// service. It signs users in against the external REST service, persists the
// session locally so it survives restarts, and drives the booking lifecycle:
// browse buildings and rooms, request reservations, and (for administrators)
// work the pending approval queue.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/example/roombooking/internal/api"
	"github.com/example/roombooking/internal/application"
	"github.com/example/roombooking/internal/config"
	"github.com/example/roombooking/internal/logging"
	"github.com/example/roombooking/internal/persistence"
	"github.com/example/roombooking/internal/persistence/sqlite"
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("ROOMBOOK_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := logging.New(os.Stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, os.Args[1:]); err != nil {
		var vErr *application.ValidationError
		if errors.As(err, &vErr) {
			fmt.Fprintln(os.Stderr, "invalid input:")
			for field, msg := range vErr.FieldErrors {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", field, msg)
			}
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, args []string) error {
	if len(args) == 0 {
		printUsage()
		return fmt.Errorf("a command is required")
	}
	command, args := args[0], args[1:]

	if command == "help" || command == "-h" || command == "--help" {
		printUsage()
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := sqlite.Open(cfg.StateDSN)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close state store", "error", cerr)
		}
	}()

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	// The client reads the access token through the session manager, and the
	// manager authenticates through the client; break the cycle with a late
	// bound token source.
	var manager *application.SessionManager
	client := api.NewClient(cfg.APIBaseURL,
		api.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		api.WithTokenSource(func() string { return manager.AccessToken() }),
		api.WithLogger(logger),
	)

	sessionStore := application.NewSealedSessionStore(
		newSessionStoreAdapter(sqlite.NewCredentialRepository(store)),
		cfg.StateSecret,
	)
	manager = application.NewSessionManagerWithLogger(sessionStore, client, time.Now, logger)

	bookingCache := newBookingCacheAdapter(sqlite.NewBookingCacheRepository(store))
	controller := application.NewBookingController(client, manager, time.Now,
		application.WithMinimumDuration(cfg.MinBookingDuration),
		application.WithBookingCache(bookingCache),
		application.WithControllerLogger(logger),
	)
	catalog := application.NewCatalogServiceWithLogger(client, manager, logger)

	if err := manager.Initialize(ctx); err != nil {
		// A corrupt snapshot has already been cleared; continue signed out.
		logger.Warn("stored session discarded", "error", err)
	}

	app := &cli{
		manager:    manager,
		controller: controller,
		catalog:    catalog,
		logger:     logger,
		out:        os.Stdout,
	}
	return app.dispatch(ctx, command, args)
}

type cli struct {
	manager    *application.SessionManager
	controller *application.BookingController
	catalog    *application.CatalogService
	logger     *slog.Logger
	out        *os.File
}

func (c *cli) dispatch(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return c.login(ctx, args)
	case "logout":
		c.manager.Logout(ctx)
		fmt.Fprintln(c.out, "signed out")
		return nil
	case "register":
		return c.register(ctx, args)
	case "whoami":
		return c.whoami(ctx, args)
	case "refresh":
		return c.manager.Refresh(ctx)
	case "buildings":
		return c.buildings(ctx)
	case "add-building":
		return c.addBuilding(ctx, args)
	case "rooms":
		return c.rooms(ctx, args)
	case "bookings":
		return c.bookings(ctx, args)
	case "book":
		return c.book(ctx, args)
	case "approve":
		return c.transition(ctx, args, c.controller.Approve)
	case "reject":
		return c.transition(ctx, args, c.controller.Reject)
	case "cancel":
		return c.transition(ctx, args, c.controller.Cancel)
	case "users":
		return c.users(ctx)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func (c *cli) login(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("login", pflag.ContinueOnError)
	username := flags.String("username", "", "account username")
	password := flags.String("password", os.Getenv("ROOMBOOK_PASSWORD"), "account password (or ROOMBOOK_PASSWORD)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *username == "" && flags.NArg() > 0 {
		*username = flags.Arg(0)
	}

	user, err := c.manager.Login(ctx, *username, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "signed in as %s %s (@%s, %s)\n", user.FirstName, user.LastName, user.Username, user.Role)
	return nil
}

func (c *cli) register(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("register", pflag.ContinueOnError)
	input := api.RegistrationInput{}
	var role string
	flags.StringVar(&input.Username, "username", "", "account username")
	flags.StringVar(&input.Password, "password", "", "account password")
	flags.StringVar(&input.Password2, "password2", "", "password confirmation")
	flags.StringVar(&input.Email, "email", "", "email address")
	flags.StringVar(&input.FirstName, "first-name", "", "first name")
	flags.StringVar(&input.LastName, "last-name", "", "last name")
	flags.StringVar(&role, "role", string(api.RoleStudent), "requested role")
	flags.StringVar(&input.Phone, "phone", "", "phone number")
	flags.StringVar(&input.Department, "department", "", "department")
	if err := flags.Parse(args); err != nil {
		return err
	}
	input.Role = api.Role(role)

	if err := c.manager.Register(ctx, input); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "account created; sign in with: roombook login --username", input.Username)
	return nil
}

func (c *cli) whoami(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("whoami", pflag.ContinueOnError)
	remote := flags.Bool("remote", false, "fetch the authoritative record from the service")
	if err := flags.Parse(args); err != nil {
		return err
	}

	var user api.User
	if *remote {
		fetched, err := c.manager.Me(ctx)
		if err != nil {
			return err
		}
		user = fetched
	} else {
		cached, ok := c.manager.CurrentUser()
		if !ok {
			fmt.Fprintln(c.out, "not signed in")
			return nil
		}
		user = cached
	}

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "username\t%s\n", user.Username)
	fmt.Fprintf(w, "name\t%s %s\n", user.FirstName, user.LastName)
	fmt.Fprintf(w, "email\t%s\n", user.Email)
	fmt.Fprintf(w, "role\t%s\n", user.Role)
	if user.Department != "" {
		fmt.Fprintf(w, "department\t%s\n", user.Department)
	}
	return w.Flush()
}

func (c *cli) buildings(ctx context.Context) error {
	buildings, err := c.catalog.Buildings(ctx)
	if err != nil {
		return err
	}
	sort.Slice(buildings, func(i, j int) bool { return buildings[i].ID < buildings[j].ID })

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tADDRESS")
	for _, building := range buildings {
		fmt.Fprintf(w, "%d\t%s\t%s\n", building.ID, building.Name, building.Address)
	}
	return w.Flush()
}

func (c *cli) addBuilding(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("add-building", pflag.ContinueOnError)
	name := flags.String("name", "", "building name")
	address := flags.String("address", "", "building address")
	if err := flags.Parse(args); err != nil {
		return err
	}

	building, err := c.catalog.CreateBuilding(ctx, api.BuildingInput{Name: *name, Address: *address})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "created building %d: %s\n", building.ID, building.Name)
	return nil
}

func (c *cli) rooms(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("rooms", pflag.ContinueOnError)
	buildingID := flags.Int64("building", 0, "filter by building ID")
	if err := flags.Parse(args); err != nil {
		return err
	}

	rooms, err := c.catalog.Rooms(ctx, *buildingID)
	if err != nil {
		return err
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBUILDING\tROOM\tTYPE\tCAPACITY\tFLOOR\tEQUIPMENT")
	for _, room := range rooms {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%s\n",
			room.ID, room.Building.Name, room.Number, room.Type, room.Capacity, room.Floor, equipment(room))
	}
	return w.Flush()
}

func (c *cli) bookings(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("bookings", pflag.ContinueOnError)
	pending := flags.Bool("pending", false, "show the service-wide pending queue (admin)")
	cached := flags.Bool("cached", false, "show the last confirmed local state without a network call")
	if err := flags.Parse(args); err != nil {
		return err
	}

	var bookings []api.Booking
	var err error
	switch {
	case *cached:
		bookings, err = c.controller.Cached(ctx)
	case *pending:
		bookings, err = c.controller.List(ctx, application.ScopePending)
	default:
		bookings, err = c.controller.List(ctx, application.ScopeOwn)
	}
	if err != nil {
		return err
	}
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].StartTime.Before(bookings[j].StartTime) })

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tROOM\tSTART\tEND\tSTATUS\tPURPOSE")
	for _, booking := range bookings {
		fmt.Fprintf(w, "%d\t%s %s\t%s\t%s\t%s\t%s\n",
			booking.ID,
			booking.Room.Building.Name,
			booking.Room.Number,
			booking.StartTime.Local().Format("2006-01-02 15:04"),
			booking.EndTime.Local().Format("15:04"),
			booking.Status,
			booking.Purpose,
		)
	}
	return w.Flush()
}

func (c *cli) book(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("book", pflag.ContinueOnError)
	params := application.CreateBookingParams{}
	flags.Int64Var(&params.RoomID, "room", 0, "room ID")
	flags.StringVar(&params.Start, "start", "", "start time (RFC 3339 or YYYY-MM-DDTHH:MM)")
	flags.StringVar(&params.End, "end", "", "end time")
	flags.StringVar(&params.Purpose, "purpose", "", "purpose of the reservation")
	if err := flags.Parse(args); err != nil {
		return err
	}

	booking, err := c.controller.Create(ctx, params)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "booking %d submitted, status: %s\n", booking.ID, booking.Status)
	return nil
}

func (c *cli) transition(ctx context.Context, args []string, action func(context.Context, int64) (api.Booking, error)) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one booking ID")
	}
	var id int64
	if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
		return fmt.Errorf("invalid booking ID %q", args[0])
	}

	booking, err := action(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "booking %d is now %s\n", booking.ID, booking.Status)
	return nil
}

func (c *cli) users(ctx context.Context) error {
	users, err := c.catalog.Users(ctx)
	if err != nil {
		return err
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tNAME\tEMAIL\tROLE\tDEPARTMENT")
	for _, user := range users {
		fmt.Fprintf(w, "%d\t%s\t%s %s\t%s\t%s\t%s\n",
			user.ID, user.Username, user.FirstName, user.LastName, user.Email, user.Role, user.Department)
	}
	return w.Flush()
}

func equipment(room api.Room) string {
	marks := ""
	if room.HasProjector {
		marks += "projector "
	}
	if room.HasWhiteboard {
		marks += "whiteboard "
	}
	if room.HasComputers {
		marks += "computers"
	}
	if marks == "" {
		return "-"
	}
	return marks
}

func printUsage() {
	fmt.Fprint(os.Stderr, `usage: roombook <command> [flags]

session:
  login --username U --password P   sign in and persist the session
  logout                            clear the persisted session
  register [flags]                  create an account (does not sign in)
  whoami [--remote]                 show the current user
  refresh                           exchange the refresh token for new tokens

catalog:
  buildings                         list buildings
  add-building --name N --address A create a building (admin)
  rooms [--building ID]             list rooms
  users                             list accounts (admin)

bookings:
  bookings [--pending|--cached]     list bookings
  book --room ID --start T --end T --purpose P
  approve <id>                      approve a pending booking (admin)
  reject <id>                       reject a pending booking (admin)
  cancel <id>                       cancel a pending or approved booking
`)
}

// --------------------------- persistence adapters --------------------------

type sessionStoreAdapter struct {
	repo persistence.CredentialRepository
}

func newSessionStoreAdapter(repo persistence.CredentialRepository) *sessionStoreAdapter {
	return &sessionStoreAdapter{repo: repo}
}

func (a *sessionStoreAdapter) Load(ctx context.Context) (application.SessionSnapshot, error) {
	creds, err := a.repo.LoadCredentials(ctx)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return application.SessionSnapshot{}, application.ErrNotFound
		}
		return application.SessionSnapshot{}, err
	}

	var user api.User
	if err := json.Unmarshal(creds.UserSnapshot, &user); err != nil {
		return application.SessionSnapshot{}, fmt.Errorf("%w: %w", application.ErrSnapshotCorrupt, err)
	}

	return application.SessionSnapshot{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		User:         user,
		SavedAt:      creds.SavedAt,
	}, nil
}

func (a *sessionStoreAdapter) Save(ctx context.Context, snapshot application.SessionSnapshot) error {
	encoded, err := json.Marshal(snapshot.User)
	if err != nil {
		return err
	}
	return a.repo.SaveCredentials(ctx, persistence.Credentials{
		AccessToken:  snapshot.AccessToken,
		RefreshToken: snapshot.RefreshToken,
		UserSnapshot: encoded,
		SavedAt:      snapshot.SavedAt,
	})
}

func (a *sessionStoreAdapter) Clear(ctx context.Context) error {
	return a.repo.ClearCredentials(ctx)
}

type bookingCacheAdapter struct {
	repo persistence.BookingCacheRepository
}

func newBookingCacheAdapter(repo persistence.BookingCacheRepository) *bookingCacheAdapter {
	return &bookingCacheAdapter{repo: repo}
}

func (a *bookingCacheAdapter) ReplaceAll(ctx context.Context, bookings []api.Booking) error {
	cached := make([]persistence.CachedBooking, 0, len(bookings))
	for _, booking := range bookings {
		record, err := toCachedBooking(booking)
		if err != nil {
			return err
		}
		cached = append(cached, record)
	}
	return a.repo.ReplaceBookings(ctx, cached)
}

func (a *bookingCacheAdapter) Upsert(ctx context.Context, booking api.Booking) error {
	record, err := toCachedBooking(booking)
	if err != nil {
		return err
	}
	return a.repo.UpsertBooking(ctx, record)
}

func (a *bookingCacheAdapter) List(ctx context.Context) ([]api.Booking, error) {
	records, err := a.repo.ListBookings(ctx)
	if err != nil {
		return nil, err
	}
	bookings := make([]api.Booking, 0, len(records))
	for _, record := range records {
		var booking api.Booking
		if err := json.Unmarshal(record.Payload, &booking); err != nil {
			return nil, fmt.Errorf("corrupt cached booking %d: %w", record.ID, err)
		}
		bookings = append(bookings, booking)
	}
	return bookings, nil
}

func toCachedBooking(booking api.Booking) (persistence.CachedBooking, error) {
	payload, err := json.Marshal(booking)
	if err != nil {
		return persistence.CachedBooking{}, err
	}
	return persistence.CachedBooking{
		ID:        booking.ID,
		Status:    string(booking.Status),
		StartTime: booking.StartTime,
		EndTime:   booking.EndTime,
		Payload:   payload,
	}, nil
}
