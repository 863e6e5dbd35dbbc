package http

import (
	"context"
	"errors"
	"net/http"
	"sv-governance/internal/adminclient"
	"sv-governance/internal/app"
	"sv-governance/internal/contract"
	"sv-governance/internal/ports/http/middleware/cors"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Authenticator wraps the handlers that need a logged in user.
type Authenticator interface {
	Middleware(next http.Handler) http.Handler
}

const defaultRequestTimeout = 10 * time.Second

type Options struct {
	Address        string
	RequestTimeout time.Duration
	AllowedOrigins []string
}

type server struct {
	app        *app.App
	auth       Authenticator
	gatherer   prometheus.Gatherer
	httpServer *http.Server
	options    Options
	logger     *zap.Logger
}

func (ser *server) badRequest(w http.ResponseWriter, message string) {
	ser.logger.Warn(message)
	ser.writeError(w, http.StatusBadRequest, message)
}

func (ser *server) serverError(w http.ResponseWriter, message string) {
	ser.logger.Error(message)
	ser.writeError(w, http.StatusInternalServerError, message)
}

// queryError maps the errors of a query to the status the dashboard gets.
func (ser *server) queryError(w http.ResponseWriter, err error) {
	var fetchErr *adminclient.FetchError
	var decodeErr *contract.DecodeError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		ser.logger.Warn("query timed out: " + err.Error())
		ser.writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &fetchErr):
		ser.logger.Warn("admin api failed: "+err.Error(), zap.Int("status", fetchErr.StatusCode))
		ser.writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &decodeErr):
		ser.logger.Error("invalid contract from admin api: "+err.Error(), zap.String("contractID", string(decodeErr.ContractID)))
		ser.writeError(w, http.StatusBadGateway, err.Error())
	default:
		ser.serverError(w, err.Error())
	}
}

func (ser *server) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(message)); err != nil {
		ser.logger.Error("failed to write an error message: " + err.Error())
	}
}

func (ser *server) registerHandlers(router *mux.Router) {

	router.HandleFunc("/health", healthcheck).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(ser.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(ser.auth.Middleware)

	api.HandleFunc("/config", ser.getConfig).Methods(http.MethodGet)
	api.HandleFunc("/votes", ser.getVotes).Methods(http.MethodGet)
	api.HandleFunc("/votes", ser.postVotes).Methods(http.MethodPost)
	api.HandleFunc("/votes/cache", ser.deleteVoteCache).Methods(http.MethodDelete)
}

func healthcheck(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("all good here"))
}

func NewServer(logger *zap.Logger, a *app.App, auth Authenticator, gatherer prometheus.Gatherer, options Options) *server {
	if options.RequestTimeout <= 0 {
		options.RequestTimeout = defaultRequestTimeout
	}

	return &server{
		app:      a,
		auth:     auth,
		gatherer: gatherer,
		options:  options,
		logger:   logger,
	}
}

func (ser *server) Handler() http.Handler {
	router := mux.NewRouter()
	ser.registerHandlers(router)

	return cors.AddCorsPolicy(router, ser.options.AllowedOrigins)
}

func (ser *server) Run() error {
	ser.httpServer = &http.Server{
		Handler:           ser.Handler(),
		Addr:              ser.options.Address,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ser.logger.Info("listening", zap.String("address", ser.options.Address))
	if err := ser.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (ser *server) Shutdown(ctx context.Context) error {
	if ser.httpServer == nil {
		return nil
	}
	return ser.httpServer.Shutdown(ctx)
}
