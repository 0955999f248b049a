// Package server assembles the Socket.IO server, the HTTP router and the
// static file host into one lifecycle.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"

	"github.com/elmynz/subasta-server/internal/auction"
	"github.com/elmynz/subasta-server/internal/handlers"
	"github.com/elmynz/subasta-server/internal/models"
	"github.com/elmynz/subasta-server/internal/trade"
)

type Options struct {
	Port      int
	StaticDir string
	PhotosDir string
}

type Server struct {
	opts       Options
	log        *zap.Logger
	io         *socket.Server
	ioOpts     *socket.ServerOptions
	httpServer *http.Server
	rooms      *models.RoomManager
	handler    *handlers.Handler
}

func New(opts Options, log *zap.Logger) *Server {
	ioOpts := socket.DefaultServerOptions()
	ioOpts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})
	ioOpts.SetAllowEIO3(true)

	io := socket.NewServer(nil, ioOpts)
	rooms := models.NewRoomManager()
	emit := handlers.RoomEmitter{IO: io}
	auctionEng := auction.NewEngine(rooms, emit, log)
	tradeEng := trade.NewEngine(rooms, emit, log)
	handler := handlers.New(rooms, auctionEng, tradeEng, emit, opts.PhotosDir, log)

	return &Server{
		opts:    opts,
		log:     log,
		io:      io,
		ioOpts:  ioOpts,
		rooms:   rooms,
		handler: handler,
	}
}

func (s *Server) Start() error {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		s.log.Debug("client connected", zap.String("id", string(client.Id())))
		s.handler.Register(client)
	})

	router := mux.NewRouter()
	router.PathPrefix("/socket.io/").Handler(s.io.ServeHandler(s.ioOpts))
	router.HandleFunc("/photo-manifest", s.handler.PhotoManifest).Methods("GET")
	router.HandleFunc("/health", s.healthCheck).Methods("GET")
	router.HandleFunc("/api/room/{code}", s.handler.GetRoom).Methods("GET")
	router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.opts.StaticDir)))

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.log.Info("server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("http server", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.io != nil {
		s.io.Close(nil)
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
	}
	return nil
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
