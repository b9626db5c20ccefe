package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/MegaGrindStone/go-jsonrpc"
	"github.com/MegaGrindStone/go-jsonrpc/servers/filesystem"
)

func main() {
	path := flag.String("path", "", "Path to process (required)")
	flag.StringVar(path, "p", "", "Path to process (required) (shorthand)")

	flag.Parse()

	if *path == "" {
		fmt.Println("Error: path is required")
		flag.Usage()
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	srvReader, srvWriter := io.Pipe()
	cliReader, cliWriter := io.Pipe()

	cliIO := jsonrpc.NewStreamTransport(cliReader, srvWriter, jsonrpc.WithStreamCloser(srvWriter))
	srvIO := jsonrpc.NewStdIO(srvReader, cliWriter, jsonrpc.WithStreamCloser(cliWriter))

	fs, err := filesystem.NewServer([]string{*path}, filesystem.WithLogger(logger))
	if err != nil {
		fmt.Println("Error: failed to create filesystem server:", err)
		os.Exit(1)
	}
	registry, err := fs.Register(jsonrpc.NewRegistryBuilder()).Build()
	if err != nil {
		fmt.Println("Error: failed to build registry:", err)
		os.Exit(1)
	}

	srv := jsonrpc.NewServer(registry, srvIO,
		jsonrpc.WithServerLogger(logger),
		jsonrpc.WithServerInvocationTimeout(30*time.Second),
	)

	go srv.Serve()

	cli := newClient(cliIO, registry.Names(), logger)
	go cli.run()

	<-cli.done

	if err := srv.Shutdown(context.Background()); err != nil {
		fmt.Printf("Server forced to shutdown: %v", err)
		return
	}
}
