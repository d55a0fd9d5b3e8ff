// veritext-casd serves a CAS backend over gRPC.
//
// Configuration comes from the environment:
//
//	VERITEXT_LISTEN   listen address (default 127.0.0.1:7777)
//	VERITEXT_BACKEND  backend name: localfs or memory (default localfs)
//	VERITEXT_DIR      localfs root directory (default ~/.veritext/cas)
package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"google.golang.org/grpc"

	"github.com/veritext/veritext/storage"
	"github.com/veritext/veritext/storage/grpccas"
	"github.com/veritext/veritext/storage/localfs"
	"github.com/veritext/veritext/storage/memory"
)

type config struct {
	Listen  string `env:"VERITEXT_LISTEN" envDefault:"127.0.0.1:7777"`
	Backend string `env:"VERITEXT_BACKEND" envDefault:"localfs"`
	Dir     string `env:"VERITEXT_DIR"`
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := env.ParseAs[config]()
	if err != nil {
		logger.Error("parse config", "err", err)
		os.Exit(2)
	}

	cas, err := openBackend(cfg)
	if err != nil {
		logger.Error("open backend", "backend", cfg.Backend, "err", err)
		os.Exit(2)
	}

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		logger.Error("listen", "addr", cfg.Listen, "err", err)
		os.Exit(1)
	}
	defer lis.Close()

	s := grpc.NewServer()
	grpccas.RegisterCASServer(s, &grpccas.Server{CAS: cas})

	logger.Info("veritext-casd listening", "addr", lis.Addr().String(), "backend", cfg.Backend)
	if err := s.Serve(lis); err != nil {
		logger.Error("serve", "err", err)
		os.Exit(1)
	}
}

func openBackend(cfg config) (storage.CAS, error) {
	switch cfg.Backend {
	case "memory":
		return memory.New(), nil
	case "localfs":
		dir := cfg.Dir
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			dir = filepath.Join(home, ".veritext", "cas")
		}
		return localfs.New(dir)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
